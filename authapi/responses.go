package authapi

import "github.com/jrsteele09/go-auth-client/users"

// TokenResponse represents the body returned by the credential-issuing
// endpoints (login, register, refresh).
type TokenResponse struct {
	// AccessToken is the JWT used to access protected resources.
	// Example: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."
	// Usage: Include in Authorization header: "Bearer <access_token>"
	// Lifespan: Short-lived (typically 15 minutes - 1 hour)
	AccessToken *string `json:"access_token,omitempty"`

	// TokenType indicates how to use the access token (always "bearer").
	// Usage: Tells client to use "Authorization: Bearer <token>" header
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Example: 900 (for 15 minutes)
	// Note: This is a hint - actual expiration is in the JWT's "exp" claim
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is an opaque token used to obtain new access tokens.
	// Security: Normally absent from the body - the server delivers it as
	// an http-only cookie the client never reads. Only populated for
	// non-browser integrations that opt out of cookies.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// User is the profile of the authenticated account. Present on login
	// and register responses; absent from refresh responses.
	User *users.User `json:"user,omitempty"`

	// UserID identifies the created account on register responses.
	UserID string `json:"user_id,omitempty"`
}

// LoginRequest is the body for the login endpoint
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body for the register endpoint
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
