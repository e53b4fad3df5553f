package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/authapi"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/jrsteele09/go-auth-client/token/refresh"
	"github.com/jrsteele09/go-auth-client/transport"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const defaultBootstrapTimeout = 5 * time.Second

// Manager owns the authenticated session. It holds the current credential,
// reconciles the persisted and externally provided session sources at
// startup, refreshes the credential behind failing requests and exposes the
// login, register, logout and profile operations. One Manager is constructed
// per backend and handed to every component that makes authorised calls.
type Manager struct {
	api              *authapi.Client        // plain client for the auth endpoints, owns the refresh cookie
	authedAPI        *authapi.Client        // same endpoints behind the authorising transport
	store            *credentials.Store     // the single in-memory credential
	fileStore        *credentials.FileStore // optional persistence across restarts
	coordinator      *refresh.Coordinator
	source           provider.Source // optional external session provider
	bootstrapTimeout time.Duration
	refreshTimeout   time.Duration
	baseTransport    http.RoundTripper
	httpClient       *http.Client
	log              zerolog.Logger

	lock           sync.Mutex
	state          State
	pass           int // live reconciliation pass; manual auth retires it by bumping
	listeners      map[int]func(State)
	nextListenerID int
}

type ManagerOption func(*Manager)

// WithFileStore persists the access credential across process restarts
func WithFileStore(fileStore *credentials.FileStore) ManagerOption {
	return func(m *Manager) {
		m.fileStore = fileStore
	}
}

// WithSource supplies the external session provider consulted during
// Initialise when no usable local credential exists.
func WithSource(source provider.Source) ManagerOption {
	return func(m *Manager) {
		m.source = source
	}
}

// WithBootstrapTimeout bounds how long Initialise waits for the external
// session provider before falling back to unauthenticated.
func WithBootstrapTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.bootstrapTimeout = timeout
	}
}

// WithRefreshTimeout bounds the shared credential refresh call
func WithRefreshTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshTimeout = timeout
	}
}

// WithBaseTransport sets the transport beneath the authorising interceptor,
// defaulting to http.DefaultTransport.
func WithBaseTransport(base http.RoundTripper) ManagerOption {
	return func(m *Manager) {
		m.baseTransport = base
	}
}

// WithLogger sets the logger (defaults to a no-op logger)
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

func NewManager(api *authapi.Client, options ...ManagerOption) (*Manager, error) {
	if api == nil {
		return nil, errors.New("[NewManager] api client is required")
	}

	manager := &Manager{
		api:              api,
		store:            credentials.NewStore(),
		bootstrapTimeout: defaultBootstrapTimeout,
		log:              zerolog.Nop(),
		state:            State{Status: StatusUninitialised},
		listeners:        make(map[int]func(State)),
	}
	for _, option := range options {
		option(manager)
	}

	coordinatorOptions := []refresh.CoordinatorOption{
		refresh.WithLogger(manager.log),
		refresh.WithSessionExpiredFunc(manager.sessionExpired),
	}
	if manager.refreshTimeout > 0 {
		coordinatorOptions = append(coordinatorOptions, refresh.WithTimeout(manager.refreshTimeout))
	}
	coordinator, err := refresh.NewCoordinator(&apiRefresher{api: api}, manager.store, coordinatorOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "[NewManager] building refresh coordinator")
	}
	manager.coordinator = coordinator

	interceptorOptions := []transport.InterceptorOption{transport.WithLogger(manager.log)}
	if manager.baseTransport != nil {
		interceptorOptions = append(interceptorOptions, transport.WithBase(manager.baseTransport))
	}
	interceptor, err := transport.New(manager.store, coordinator, interceptorOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "[NewManager] building request interceptor")
	}
	manager.httpClient = &http.Client{Transport: interceptor}

	authedAPI, err := authapi.New(api.BaseURL(), authapi.WithHTTPClient(manager.httpClient))
	if err != nil {
		return nil, errors.Wrap(err, "[NewManager] building authorised api client")
	}
	manager.authedAPI = authedAPI

	return manager, nil
}

// Client returns an http.Client whose requests carry the current credential
// and transparently recover from an expired one. Every API-calling component
// outside the auth surface should use it.
func (m *Manager) Client() *http.Client {
	return m.httpClient
}

// Transport returns the authorising round tripper for callers that bring
// their own http.Client.
func (m *Manager) Transport() http.RoundTripper {
	return m.httpClient.Transport
}

// Credential returns a copy of the credential currently backing requests, or
// nil when signed out.
func (m *Manager) Credential() *credentials.Credential {
	return m.store.Get()
}

// State returns the current session snapshot
func (m *Manager) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state.copy()
}

// OnChange registers an observer notified on every state transition. The
// returned function cancels the registration. Observers run synchronously on
// the transitioning goroutine and must not call back into the Manager.
func (m *Manager) OnChange(notify func(State)) func() {
	m.lock.Lock()
	defer m.lock.Unlock()

	id := m.nextListenerID
	m.nextListenerID++
	m.listeners[id] = notify

	return func() {
		m.lock.Lock()
		defer m.lock.Unlock()
		delete(m.listeners, id)
	}
}

// Login exchanges email and password for a new session. On success the
// credential is stored and any in-flight reconciliation pass is retired in
// the same step, before the profile fetch; the authenticated state is then
// published. Invalid credentials and network failures surface to the caller
// without a state transition.
func (m *Manager) Login(ctx context.Context, email, password string) (*users.User, error) {
	response, err := m.api.Login(ctx, email, password)
	if err != nil {
		return nil, errors.Wrap(err, "[Login] exchanging credentials")
	}
	if utils.Value(response.AccessToken) == "" {
		return nil, errors.Wrap(NoAccessTokenErr, "[Login]")
	}

	credential := credentials.New(utils.Value(response.AccessToken), response.RefreshToken)
	m.adoptCredential(credential)

	user, err := m.api.Me(ctx, credential.AccessToken)
	if err != nil {
		// The login response usually embeds the profile; prefer falling back
		// to it over failing a login whose credential was already issued.
		if response.User == nil {
			m.store.Clear()
			m.clearPersisted()
			return nil, errors.Wrap(err, "[Login] fetching profile")
		}
		m.log.Debug().Err(err).Msg("[Login] profile fetch failed, using the login response profile")
		user = response.User
	}

	m.publish(State{Status: StatusAuthenticated, User: user})
	return user, nil
}

// Register creates an account and signs it straight in; the published state
// carries FirstSession=true. A failed follow-up profile fetch is tolerated
// by synthesising a minimal profile from the registration response.
func (m *Manager) Register(ctx context.Context, email, password, fullName string) (*users.User, error) {
	if err := users.ValidatePasswordStrength(password); err != nil {
		return nil, errors.Wrap(err, "[Register] validating password")
	}

	response, err := m.api.Register(ctx, authapi.RegisterRequest{Email: email, Password: password, FullName: fullName})
	if err != nil {
		return nil, errors.Wrap(err, "[Register] creating account")
	}
	if utils.Value(response.AccessToken) == "" {
		return nil, errors.Wrap(NoAccessTokenErr, "[Register]")
	}

	credential := credentials.New(utils.Value(response.AccessToken), response.RefreshToken)
	m.adoptCredential(credential)

	user, err := m.api.Me(ctx, credential.AccessToken)
	if err != nil {
		m.log.Debug().Err(err).Msg("[Register] profile fetch failed, synthesising a profile")
		user = &users.User{
			ID:          response.UserID,
			Email:       email,
			DisplayName: fullName,
		}
	}

	m.publish(State{Status: StatusAuthenticated, User: user, FirstSession: true})
	return user, nil
}

// Logout publishes the signed-out state immediately, then invalidates the
// credential server side as a best effort. Calling it again is a no-op with
// no further network traffic.
func (m *Manager) Logout(ctx context.Context) {
	credential := m.store.Get()
	m.retirePass()
	m.store.Clear()
	m.clearPersisted()
	m.publish(State{Status: StatusUnauthenticated})

	if credential == nil || credential.AccessToken == "" {
		return
	}
	if err := m.api.Logout(ctx, credential.AccessToken); err != nil {
		m.log.Debug().Err(err).Msg("[Logout] server-side invalidation failed")
	}
}

// RefreshUser re-fetches the signed-in profile with the current credential.
// The session status is not altered; observers see the updated profile.
func (m *Manager) RefreshUser(ctx context.Context) (*users.User, error) {
	if !m.State().Authenticated() {
		return nil, NotAuthenticatedErr
	}

	user, err := m.authedAPI.Me(ctx, "")
	if err != nil {
		return nil, errors.Wrap(err, "[RefreshUser] fetching profile")
	}

	m.lock.Lock()
	if m.state.Status != StatusAuthenticated {
		m.lock.Unlock()
		return user, nil
	}
	m.state.User = user
	state := m.state.copy()
	listeners := m.listenerSnapshotLocked()
	m.lock.Unlock()

	for _, notify := range listeners {
		notify(state)
	}
	return user, nil
}

// sessionExpired runs when a credential refresh fails terminally. The
// coordinator has already cleared the in-memory credential.
func (m *Manager) sessionExpired() {
	m.log.Info().Msg("session expired, signing out")
	m.retirePass()
	m.clearPersisted()
	m.publish(State{Status: StatusUnauthenticated})
}

// adoptCredential installs a freshly issued credential and retires any live
// reconciliation pass in the same lock acquisition; a retired pass can
// neither overwrite the store nor publish over the login that superseded it.
func (m *Manager) adoptCredential(credential credentials.Credential) {
	m.lock.Lock()
	m.store.Set(credential)
	m.coordinator.Reset()
	m.pass++
	m.lock.Unlock()

	m.persist(credential)
}

// retirePass supersedes any live reconciliation pass without publishing
func (m *Manager) retirePass() {
	m.lock.Lock()
	m.pass++
	m.lock.Unlock()
}

// publish replaces the current state and notifies observers. Re-publishing
// the unauthenticated state over itself is silent, which keeps repeated
// logouts observer-quiet.
func (m *Manager) publish(state State) {
	m.lock.Lock()
	if state.Status == StatusUnauthenticated && m.state.Status == StatusUnauthenticated {
		m.lock.Unlock()
		return
	}
	m.state = state
	published := state.copy()
	listeners := m.listenerSnapshotLocked()
	m.lock.Unlock()

	for _, notify := range listeners {
		notify(published)
	}
}

func (m *Manager) listenerSnapshotLocked() []func(State) {
	notifiers := make([]func(State), 0, len(m.listeners))
	for _, notify := range m.listeners {
		notifiers = append(notifiers, notify)
	}
	return notifiers
}

func (m *Manager) persist(credential credentials.Credential) {
	if m.fileStore == nil {
		return
	}
	if err := m.fileStore.Save(credential); err != nil {
		m.log.Warn().Err(err).Msg("saving credential")
	}
}

func (m *Manager) clearPersisted() {
	if m.fileStore == nil {
		return
	}
	if err := m.fileStore.Clear(); err != nil {
		m.log.Warn().Err(err).Msg("removing persisted credential")
	}
}

// apiRefresher adapts the cookie-based refresh endpoint to the coordinator's
// Refresher contract.
type apiRefresher struct {
	api *authapi.Client
}

func (r *apiRefresher) Refresh(ctx context.Context) (credentials.Credential, error) {
	response, err := r.api.Refresh(ctx)
	if err != nil {
		return credentials.Credential{}, errors.Wrap(err, "[Refresh] requesting new access token")
	}
	if utils.Value(response.AccessToken) == "" {
		return credentials.Credential{}, errors.Wrap(NoAccessTokenErr, "[Refresh]")
	}
	return credentials.New(utils.Value(response.AccessToken), response.RefreshToken), nil
}
