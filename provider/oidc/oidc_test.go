package oidc_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/provider/oidc"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "support-desk"
	testRefreshToken = "offline-token-001"
)

// mockIdP is a minimal OIDC provider: discovery, JWKS and a token endpoint
// honouring the refresh_token grant.
type mockIdP struct {
	server       *httptest.Server
	privateKey   *rsa.PrivateKey
	keyID        string
	issuer       string
	firstSession bool
	tokenCalls   atomic.Int32
}

func newMockIdP(t *testing.T) *mockIdP {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &mockIdP{privateKey: privateKey, keyID: "test-key-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", idp.handleDiscovery)
	mux.HandleFunc("/jwks", idp.handleJWKS)
	mux.HandleFunc("/token", idp.handleToken)

	idp.server = httptest.NewServer(mux)
	idp.issuer = idp.server.URL
	t.Cleanup(idp.server.Close)
	return idp
}

func (m *mockIdP) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                m.issuer,
		"authorization_endpoint":                m.issuer + "/authorize",
		"token_endpoint":                        m.issuer + "/token",
		"jwks_uri":                              m.issuer + "/jwks",
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"subject_types_supported":               []string{"public"},
		"response_types_supported":              []string{"code"},
	})
}

func (m *mockIdP) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	publicKey := &m.privateKey.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": m.keyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
		}},
	})
}

func (m *mockIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	m.tokenCalls.Add(1)

	if err := r.ParseForm(); err != nil || r.FormValue("grant_type") != "refresh_token" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	if r.FormValue("refresh_token") != testRefreshToken {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	now := time.Now()
	idToken := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, jwtlib.MapClaims{
		"iss":           m.issuer,
		"sub":           "user-001",
		"aud":           testClientID,
		"iat":           now.Unix(),
		"exp":           now.Add(time.Hour).Unix(),
		"email":         "agent@example.com",
		"name":          "Avery Agent",
		"first_session": m.firstSession,
	})
	idToken.Header["kid"] = m.keyID
	signedIDToken, err := idToken.SignedString(m.privateKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  "idp-access-001",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "offline-token-002",
		"id_token":      signedIDToken,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func TestSessionHydratesFromOfflineToken(t *testing.T) {
	idp := newMockIdP(t)
	idp.firstSession = true

	source, err := oidc.New(oidc.Config{
		IssuerURL:    idp.issuer,
		ClientID:     testClientID,
		RefreshToken: testRefreshToken,
	})
	require.NoError(t, err)

	snapshot, err := source.Session(context.Background())
	require.NoError(t, err)
	require.True(t, snapshot.Present())
	require.True(t, snapshot.FirstSession)
	require.Equal(t, "idp-access-001", snapshot.Credential.AccessToken)

	t.Run("rotated offline token surfaced", func(t *testing.T) {
		require.NotNil(t, snapshot.Credential.RefreshToken)
		require.Equal(t, "offline-token-002", *snapshot.Credential.RefreshToken)
	})
}

func TestSessionAbsentWithoutOfflineToken(t *testing.T) {
	idp := newMockIdP(t)

	source, err := oidc.New(oidc.Config{IssuerURL: idp.issuer, ClientID: testClientID})
	require.NoError(t, err)

	snapshot, err := source.Session(context.Background())
	require.NoError(t, err)
	require.False(t, snapshot.Present())
	require.Equal(t, int32(0), idp.tokenCalls.Load())
}

func TestSessionRejectedOfflineToken(t *testing.T) {
	idp := newMockIdP(t)

	source, err := oidc.New(oidc.Config{
		IssuerURL:    idp.issuer,
		ClientID:     testClientID,
		RefreshToken: "revoked-offline-token",
	})
	require.NoError(t, err)

	_, err = source.Session(context.Background())
	require.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Run("offline token requires issuer", func(t *testing.T) {
		_, err := oidc.New(oidc.Config{ClientID: testClientID, RefreshToken: testRefreshToken})
		require.Error(t, err)
	})

	t.Run("offline token requires client ID", func(t *testing.T) {
		_, err := oidc.New(oidc.Config{IssuerURL: "https://idp.example.com", RefreshToken: testRefreshToken})
		require.Error(t, err)
	})

	t.Run("no offline token needs nothing else", func(t *testing.T) {
		_, err := oidc.New(oidc.Config{})
		require.NoError(t, err)
	})
}
