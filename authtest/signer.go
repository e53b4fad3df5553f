package authtest

import (
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// hmacSigner signs and verifies the fake server's access tokens using
// symmetric HMAC-SHA256. The client under test never verifies signatures;
// only the fake server itself does.
type hmacSigner struct {
	secret []byte
}

func newHMACSigner(secret string) *hmacSigner {
	return &hmacSigner{
		secret: []byte(secret),
	}
}

func (h *hmacSigner) Sign(claims jwtlib.MapClaims) (string, error) {
	jwtToken := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signedToken, err := jwtToken.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

func (h *hmacSigner) GetVerificationKey(token *jwtlib.Token) (any, error) {
	if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}
