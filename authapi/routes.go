package authapi

// Routes exposed by the backing auth service. Shared with the in-process
// test server so client and fixture can never drift apart.
const (
	RouteLogin    = "/auth/login"
	RouteRegister = "/auth/register"
	RouteRefresh  = "/auth/refresh"
	RouteMe       = "/auth/me"
	RouteLogout   = "/auth/logout"
)
