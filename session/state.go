package session

import "github.com/jrsteele09/go-auth-client/users"

// Status is the externally observable position in the session lifecycle.
// Transitions run uninitialised -> loading -> {authenticated | unauthenticated};
// after that only an explicit login, register, logout or a terminal refresh
// failure moves the status again.
type Status string

const (
	StatusUninitialised   Status = "uninitialised"   // Initialise has not been called yet
	StatusLoading         Status = "loading"         // reconciliation in progress
	StatusAuthenticated   Status = "authenticated"   // a signed-in profile is held
	StatusUnauthenticated Status = "unauthenticated" // no usable session
)

// State is a snapshot of the session. User is only set while the status is
// StatusAuthenticated.
type State struct {
	Status       Status      // lifecycle position
	User         *users.User // signed-in profile
	FirstSession bool        // the account was created during this sign-in
}

// Authenticated reports whether a signed-in profile is held
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

// copy detaches the profile pointer so callers cannot mutate the manager's
// held state through a returned snapshot.
func (s State) copy() State {
	if s.User != nil {
		user := *s.User
		s.User = &user
	}
	return s
}
