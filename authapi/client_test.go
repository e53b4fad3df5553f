package authapi_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-auth-client/authapi"
	"github.com/jrsteele09/go-auth-client/authtest"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "agent@example.com"
	testPassword = "Str0ngPassword1"
	testFullName = "Avery Agent"
)

type testFixture struct {
	backend *authtest.Server
	server  *httptest.Server
	client  *authapi.Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	backend := authtest.New()
	_, err := backend.AddUser(testEmail, testPassword, testFullName, users.RoleAgent)
	require.NoError(t, err)

	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	client, err := authapi.New(server.URL)
	require.NoError(t, err)

	return &testFixture{backend: backend, server: server, client: client}
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := authapi.New("  ")
	require.ErrorIs(t, err, authapi.ErrNoBaseURL)
}

func TestLogin(t *testing.T) {
	fixture := setupTestFixture(t)
	ctx := context.Background()

	tokenResponse, err := fixture.client.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, utils.Value(tokenResponse.AccessToken))
	require.NotNil(t, tokenResponse.User)
	require.Equal(t, testEmail, tokenResponse.User.Email)
	require.Equal(t, testFullName, tokenResponse.User.DisplayName)

	t.Run("refresh cookie usable afterwards", func(t *testing.T) {
		refreshed, err := fixture.client.Refresh(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, utils.Value(refreshed.AccessToken))
		require.Nil(t, refreshed.User)
	})
}

func TestLoginInvalidCredentials(t *testing.T) {
	fixture := setupTestFixture(t)

	_, err := fixture.client.Login(context.Background(), testEmail, "WrongPassword1")
	require.ErrorIs(t, err, authapi.ErrInvalidCredentials)
}

func TestRegister(t *testing.T) {
	fixture := setupTestFixture(t)
	ctx := context.Background()

	tokenResponse, err := fixture.client.Register(ctx, authapi.RegisterRequest{
		Email:    "new-agent@example.com",
		Password: "An0therStrongOne",
		FullName: "Noor Newcomer",
	})
	require.NoError(t, err)
	require.NotEmpty(t, tokenResponse.UserID)
	require.NotEmpty(t, utils.Value(tokenResponse.AccessToken))
	require.Nil(t, tokenResponse.User)

	t.Run("duplicate email rejected", func(t *testing.T) {
		_, err := fixture.client.Register(ctx, authapi.RegisterRequest{
			Email:    "new-agent@example.com",
			Password: "An0therStrongOne",
			FullName: "Noor Newcomer",
		})
		require.ErrorIs(t, err, authapi.ErrEmailTaken)
	})

	t.Run("weak password rejected", func(t *testing.T) {
		_, err := fixture.client.Register(ctx, authapi.RegisterRequest{
			Email:    "weak@example.com",
			Password: "weak",
			FullName: "Weak Password",
		})
		require.ErrorIs(t, err, authapi.ErrInvalidRequest)
	})
}

func TestRefreshWithoutCookie(t *testing.T) {
	fixture := setupTestFixture(t)

	_, err := fixture.client.Refresh(context.Background())
	require.ErrorIs(t, err, authapi.ErrUnauthorized)
}

func TestRefreshRotation(t *testing.T) {
	fixture := setupTestFixture(t)
	ctx := context.Background()

	_, err := fixture.client.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	// Each refresh rotates the cookie; consecutive refreshes must keep
	// working because the jar picks up every rotation.
	for i := 0; i < 3; i++ {
		_, err = fixture.client.Refresh(ctx)
		require.NoError(t, err)
	}
}

func TestMe(t *testing.T) {
	fixture := setupTestFixture(t)
	ctx := context.Background()

	tokenResponse, err := fixture.client.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	user, err := fixture.client.Me(ctx, utils.Value(tokenResponse.AccessToken))
	require.NoError(t, err)
	require.Equal(t, testEmail, user.Email)
	require.Empty(t, user.PasswordHash)

	t.Run("garbage token unauthorized", func(t *testing.T) {
		_, err := fixture.client.Me(ctx, "not-a-token")
		require.ErrorIs(t, err, authapi.ErrUnauthorized)
	})
}

func TestLogoutInvalidatesSession(t *testing.T) {
	fixture := setupTestFixture(t)
	ctx := context.Background()

	tokenResponse, err := fixture.client.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	accessToken := utils.Value(tokenResponse.AccessToken)

	require.NoError(t, fixture.client.Logout(ctx, accessToken))

	t.Run("access token revoked", func(t *testing.T) {
		_, err := fixture.client.Me(ctx, accessToken)
		require.ErrorIs(t, err, authapi.ErrUnauthorized)
	})

	t.Run("refresh session dropped", func(t *testing.T) {
		_, err := fixture.client.Refresh(ctx)
		require.ErrorIs(t, err, authapi.ErrUnauthorized)
	})
}
