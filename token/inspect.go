package token

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/internal/utils"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims represents the metadata read from a bearer access token.
// Tokens are parsed without signature verification: the client holds no
// signing keys, so these values feed expiry tracking and logging, never
// an authorisation decision - that stays server-side.
type Claims struct {
	Subject   string    `json:"sub,omitempty"`   // Users unique ID
	Email     string    `json:"email,omitempty"` // Email claim, when the server includes one
	ID        string    `json:"jti,omitempty"`   // Unique token ID
	Roles     []string  `json:"roles,omitempty"` // Roles assigned to the user
	IssuedAt  time.Time `json:"-"`               // iat claim
	ExpiresAt time.Time `json:"-"`               // exp claim; zero when the token carries none
}

// Inspect extracts claim metadata from a JWT without verifying its signature
func Inspect(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.New("empty token")
	}

	unverifiedToken, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims, ok := unverifiedToken.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims")
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	jti, _ := claims["jti"].(string)
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)

	var roles []string
	if claimRoles, ok := claims["roles"].([]any); ok {
		roles = utils.ToStringSlice(claimRoles)
	}

	tokenClaims := &Claims{
		Subject: sub,
		Email:   email,
		ID:      jti,
		Roles:   roles,
	}
	if iat != 0 {
		tokenClaims.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp != 0 {
		tokenClaims.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return tokenClaims, nil
}

// Expired reports whether the exp claim is in the past. Tokens without an
// exp claim never report expired.
func (c *Claims) Expired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return NowTimeFunc().After(c.ExpiresAt)
}
