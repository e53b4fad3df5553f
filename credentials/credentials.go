package credentials

import (
	"time"

	"github.com/jrsteele09/go-auth-client/token"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Credential is the bearer credential identifying the current session.
type Credential struct {
	AccessToken  string    `json:"access_token"`            // Bearer token attached to outbound requests
	RefreshToken *string   `json:"refresh_token,omitempty"` // Rarely present - the refresh credential normally lives in an http-only cookie
	IssuedAt     time.Time `json:"issued_at"`               // When the credential was issued
	ExpiresAt    time.Time `json:"expires_at,omitempty"`    // Expiry hint read from the token; zero when unknown
}

// New builds a Credential from a freshly issued access token. When the
// token is a JWT its iat/exp claims supply the timestamps; opaque tokens
// fall back to the current time with an unknown expiry.
func New(accessToken string, refreshToken *string) Credential {
	credential := Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IssuedAt:     NowTimeFunc(),
	}

	if claims, err := token.Inspect(accessToken); err == nil {
		if !claims.IssuedAt.IsZero() {
			credential.IssuedAt = claims.IssuedAt
		}
		credential.ExpiresAt = claims.ExpiresAt
	}

	return credential
}

// Expired reports whether the expiry hint has passed. Credentials without
// a hint never report expired; the server remains the authority either way.
func (c Credential) Expired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return NowTimeFunc().After(c.ExpiresAt)
}
