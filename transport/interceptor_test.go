package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/authapi"
	"github.com/jrsteele09/go-auth-client/authtest"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/token/refresh"
	"github.com/jrsteele09/go-auth-client/transport"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "agent@example.com"
	testPassword = "Str0ngPassword1"
)

// apiRefresher adapts the auth API client to the coordinator's Refresher
type apiRefresher struct {
	api *authapi.Client
}

func (r apiRefresher) Refresh(ctx context.Context) (credentials.Credential, error) {
	tokenResponse, err := r.api.Refresh(ctx)
	if err != nil {
		return credentials.Credential{}, err
	}
	return credentials.New(utils.Value(tokenResponse.AccessToken), tokenResponse.RefreshToken), nil
}

type testFixture struct {
	backend      *authtest.Server
	server       *httptest.Server
	api          *authapi.Client
	store        *credentials.Store
	client       *http.Client
	expiredCalls *atomic.Int32
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	backend := authtest.New()
	_, err := backend.AddUser(testEmail, testPassword, "Avery Agent", users.RoleAgent)
	require.NoError(t, err)

	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	api, err := authapi.New(server.URL)
	require.NoError(t, err)

	store := credentials.NewStore()
	expiredCalls := new(atomic.Int32)
	coordinator, err := refresh.NewCoordinator(apiRefresher{api: api}, store,
		refresh.WithSessionExpiredFunc(func() { expiredCalls.Add(1) }))
	require.NoError(t, err)

	interceptor, err := transport.New(store, coordinator)
	require.NoError(t, err)

	return &testFixture{
		backend:      backend,
		server:       server,
		api:          api,
		store:        store,
		client:       &http.Client{Transport: interceptor},
		expiredCalls: expiredCalls,
	}
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()
	tokenResponse, err := f.api.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	f.store.Set(credentials.New(utils.Value(tokenResponse.AccessToken), nil))
}

func (f *testFixture) expireCredential(t *testing.T) {
	t.Helper()
	expiredToken, err := f.backend.MintAccessToken(testEmail, -time.Minute)
	require.NoError(t, err)
	f.store.Set(credentials.New(expiredToken, nil))
}

func TestAttachesCurrentCredential(t *testing.T) {
	fixture := setupTestFixture(t)
	fixture.login(t)

	resp, err := fixture.client.Get(fixture.server.URL + authtest.RoutePing)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 0, fixture.backend.Requests("POST "+authapi.RouteRefresh))
}

func TestRefreshAndRetryOnExpiredCredential(t *testing.T) {
	fixture := setupTestFixture(t)
	fixture.login(t)
	fixture.expireCredential(t)
	fixture.backend.ResetRequests()

	resp, err := fixture.client.Get(fixture.server.URL + authtest.RoutePing)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, fixture.backend.Requests("POST "+authapi.RouteRefresh))
	require.Equal(t, 2, fixture.backend.Requests("GET "+authtest.RoutePing))

	t.Run("store holds the refreshed credential", func(t *testing.T) {
		held := fixture.store.Get()
		require.NotNil(t, held)
		require.False(t, held.Expired())
	})
	require.Equal(t, int32(0), fixture.expiredCalls.Load())
}

func TestConcurrentRequestsShareOneRefresh(t *testing.T) {
	fixture := setupTestFixture(t)
	fixture.login(t)
	fixture.expireCredential(t)
	fixture.backend.SetRefreshDelay(75 * time.Millisecond)
	fixture.backend.ResetRequests()

	const concurrent = 3
	statuses := make(chan int, concurrent)
	errs := make(chan error, concurrent)
	var wg sync.WaitGroup
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := fixture.client.Get(fixture.server.URL + authtest.RoutePing)
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for status := range statuses {
		require.Equal(t, http.StatusOK, status)
	}

	require.Equal(t, 1, fixture.backend.Requests("POST "+authapi.RouteRefresh))
	require.Equal(t, concurrent*2, fixture.backend.Requests("GET "+authtest.RoutePing))
}

func TestIrrecoverableRefreshFailure(t *testing.T) {
	fixture := setupTestFixture(t)
	fixture.login(t)
	fixture.expireCredential(t)
	fixture.backend.SetFailRefresh(true)

	_, err := fixture.client.Get(fixture.server.URL + authtest.RoutePing)
	require.Error(t, err)
	require.ErrorIs(t, err, refresh.ErrSessionExpired)

	require.Nil(t, fixture.store.Get())
	require.Equal(t, int32(1), fixture.expiredCalls.Load())

	t.Run("later requests fail fast without refresh calls", func(t *testing.T) {
		fixture.backend.ResetRequests()
		_, err := fixture.client.Get(fixture.server.URL + authtest.RoutePing)
		require.ErrorIs(t, err, refresh.ErrSessionExpired)
		require.Equal(t, 0, fixture.backend.Requests("POST "+authapi.RouteRefresh))
	})
}

func TestPassthroughWithExplicitAuthorization(t *testing.T) {
	fixture := setupTestFixture(t)
	fixture.login(t)

	req, err := http.NewRequest(http.MethodGet, fixture.server.URL+authtest.RoutePing, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-real-token")

	resp, err := fixture.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 0, fixture.backend.Requests("POST "+authapi.RouteRefresh))
}

// stubRefresher always hands back the same credential without a network hop
type stubRefresher struct {
	credential credentials.Credential
	calls      *atomic.Int32
}

func (s stubRefresher) Refresh(ctx context.Context) (credentials.Credential, error) {
	if s.calls != nil {
		s.calls.Add(1)
	}
	return s.credential, nil
}

func TestRetryStillUnauthorizedIsSurfaced(t *testing.T) {
	var attempts atomic.Int32
	always401 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(always401.Close)

	store := credentials.NewStore()
	store.Set(credentials.Credential{AccessToken: "stale-access"})
	coordinator, err := refresh.NewCoordinator(stubRefresher{credential: credentials.Credential{AccessToken: "fresh-access"}}, store)
	require.NoError(t, err)
	interceptor, err := transport.New(store, coordinator)
	require.NoError(t, err)
	client := &http.Client{Transport: interceptor}

	resp, err := client.Get(always401.URL + "/conversations")
	require.NoError(t, err)
	defer resp.Body.Close()

	// One refresh, exactly one retry, then the failure belongs to the caller.
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(2), attempts.Load())
}

func TestNonReplayableBodyIsNotRetried(t *testing.T) {
	always401 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(always401.Close)

	store := credentials.NewStore()
	refreshCalls := new(atomic.Int32)
	coordinator, err := refresh.NewCoordinator(stubRefresher{calls: refreshCalls}, store)
	require.NoError(t, err)
	interceptor, err := transport.New(store, coordinator)
	require.NoError(t, err)
	client := &http.Client{Transport: interceptor}

	// io.LimitReader hides the body's type, so the request has no GetBody
	// and cannot be replayed.
	req, err := http.NewRequest(http.MethodPost, always401.URL+"/notes", io.LimitReader(strings.NewReader("draft"), 5))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(0), refreshCalls.Load())
}
