package config

const (
	oidcIssuerURLVar    = "OIDC_ISSUER_URL"
	oidcClientIDVar     = "OIDC_CLIENT_ID"
	oidcClientSecretVar = "OIDC_CLIENT_SECRET"
	oidcRefreshTokenVar = "OIDC_REFRESH_TOKEN"
)

type OIDCConfig interface {
	GetOIDCIssuerURL() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
	GetOIDCRefreshToken() string
}

// OIDC configures the optional external session provider. With no refresh
// token configured the provider reports no session and the manager falls
// back to the persisted credential.
type OIDC struct{}

var _ OIDCConfig = OIDC{}

func (OIDC) GetOIDCIssuerURL() string {
	return GetEnv(oidcIssuerURLVar, "")
}

func (OIDC) GetOIDCClientID() string {
	return GetEnv(oidcClientIDVar, "")
}

func (OIDC) GetOIDCClientSecret() string {
	return GetEnv(oidcClientSecretVar, "")
}

func (OIDC) GetOIDCRefreshToken() string {
	return GetEnv(oidcRefreshTokenVar, "")
}
