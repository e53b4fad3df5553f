package oidc

import (
	"context"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Config describes the relying-party settings for an OIDC provider that
// manages the user's session outside this application.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string // Defaults to openid, profile, email, offline_access

	// RefreshToken is a previously issued offline token, e.g. from a
	// device-flow sign-in on this machine. Empty means the provider holds
	// no session here and the source resolves absent immediately.
	RefreshToken string
}

// Source hydrates a session snapshot by redeeming the configured offline
// token against the OIDC provider: discovery, refresh grant, then ID token
// verification. It satisfies provider.Source.
type Source struct {
	config Config
	log    zerolog.Logger
}

type SourceOption func(*Source)

// WithLogger sets the source's logger
func WithLogger(log zerolog.Logger) SourceOption {
	return func(s *Source) {
		s.log = log
	}
}

func New(config Config, options ...SourceOption) (*Source, error) {
	if config.RefreshToken != "" {
		if strings.TrimSpace(config.IssuerURL) == "" {
			return nil, errors.New("[New] no issuer URL")
		}
		if strings.TrimSpace(config.ClientID) == "" {
			return nil, errors.New("[New] no client ID")
		}
	}

	source := &Source{config: config, log: zerolog.Nop()}
	for _, option := range options {
		option(source)
	}
	return source, nil
}

func (s *Source) Session(ctx context.Context) (provider.Snapshot, error) {
	if strings.TrimSpace(s.config.RefreshToken) == "" {
		return provider.Snapshot{}, nil
	}

	oidcProvider, err := gooidc.NewProvider(ctx, s.config.IssuerURL)
	if err != nil {
		return provider.Snapshot{}, errors.Wrap(err, "[Session] discovering provider")
	}

	oauthConfig := oauth2.Config{
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
		Endpoint:     oidcProvider.Endpoint(),
		Scopes:       s.scopes(),
	}

	oauthToken, err := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: s.config.RefreshToken}).Token()
	if err != nil {
		return provider.Snapshot{}, errors.Wrap(err, "[Session] redeeming offline token")
	}

	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok {
		return provider.Snapshot{}, errors.New("[Session] no id_token in token response")
	}

	idToken, err := oidcProvider.Verifier(&gooidc.Config{ClientID: s.config.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return provider.Snapshot{}, errors.Wrap(err, "[Session] verifying id token")
	}

	var claims struct {
		Email        string `json:"email"`
		Name         string `json:"name"`
		FirstSession bool   `json:"first_session"` // Set by the workspace IdP on the account's first sign-in
	}
	if err := idToken.Claims(&claims); err != nil {
		return provider.Snapshot{}, errors.Wrap(err, "[Session] parsing id token claims")
	}

	credential := credentials.New(oauthToken.AccessToken, nil)
	if oauthToken.RefreshToken != "" && oauthToken.RefreshToken != s.config.RefreshToken {
		// The provider rotated the offline token
		credential.RefreshToken = utils.Ptr(oauthToken.RefreshToken)
	}

	s.log.Debug().Str("email", claims.Email).Bool("first_session", claims.FirstSession).Msg("external session hydrated")
	return provider.Snapshot{Credential: &credential, FirstSession: claims.FirstSession}, nil
}

func (s *Source) scopes() []string {
	if len(s.config.Scopes) > 0 {
		return s.config.Scopes
	}
	return []string{gooidc.ScopeOpenID, "profile", "email", gooidc.ScopeOfflineAccess}
}
