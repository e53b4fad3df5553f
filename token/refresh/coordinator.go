package refresh

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned once refreshing the session has terminally
// failed. A fresh login is the only way back; the coordinator never retries
// on its own.
var ErrSessionExpired = errors.New("session expired")

const (
	defaultRefreshTimeout = 10 * time.Second

	refreshKey = "refresh"
)

// Refresher issues one refresh call against the auth service and returns
// the newly minted credential. The refresh credential itself travels in an
// http-only cookie the Refresher's client carries.
type Refresher interface {
	Refresh(ctx context.Context) (credentials.Credential, error)
}

// Coordinator owns the single-flight refresh protocol: at most one refresh
// network call is in flight at any time, and every caller waiting behind it
// receives the identical outcome.
type Coordinator struct {
	refresher Refresher
	store     *credentials.Store
	timeout   time.Duration
	log       zerolog.Logger

	onSessionExpired func()

	group  singleflight.Group
	failed atomic.Bool
}

type CoordinatorOption func(*Coordinator)

// WithTimeout bounds the shared refresh call
func WithTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// WithLogger sets the coordinator's logger
func WithLogger(log zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithSessionExpiredFunc registers the hook fired exactly once when a
// refresh fails terminally. The session manager uses it to transition to
// unauthenticated and route the user back to login.
func WithSessionExpiredFunc(onSessionExpired func()) CoordinatorOption {
	return func(c *Coordinator) {
		c.onSessionExpired = onSessionExpired
	}
}

func NewCoordinator(refresher Refresher, store *credentials.Store, options ...CoordinatorOption) (*Coordinator, error) {
	if refresher == nil {
		return nil, errors.New("[NewCoordinator] no refresher")
	}
	if store == nil {
		return nil, errors.New("[NewCoordinator] no credential store")
	}

	coordinator := &Coordinator{
		refresher: refresher,
		store:     store,
		timeout:   defaultRefreshTimeout,
		log:       zerolog.Nop(),
	}
	for _, option := range options {
		option(coordinator)
	}
	return coordinator, nil
}

// EnsureFresh returns a freshly refreshed credential. Concurrent callers
// share one network call; a caller whose context ends stops waiting without
// aborting the flight others depend on. After a terminal failure every call
// fails fast with ErrSessionExpired until Reset.
func (c *Coordinator) EnsureFresh(ctx context.Context) (credentials.Credential, error) {
	if c.failed.Load() {
		return credentials.Credential{}, ErrSessionExpired
	}

	resultCh := c.group.DoChan(refreshKey, func() (any, error) {
		return c.refresh()
	})

	select {
	case <-ctx.Done():
		return credentials.Credential{}, errors.Wrap(ctx.Err(), "[EnsureFresh] waiting for refresh")
	case result := <-resultCh:
		if result.Err != nil {
			return credentials.Credential{}, result.Err
		}
		return result.Val.(credentials.Credential), nil
	}
}

// Reset clears the terminal-failure latch after a successful login or
// register establishes a new session.
func (c *Coordinator) Reset() {
	c.failed.Store(false)
}

// refresh performs the one network call shared by every waiter. It runs
// under its own timeout, detached from any caller's context, so a cancelled
// waiter cannot abort the flight.
func (c *Coordinator) refresh() (credentials.Credential, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	credential, err := c.refresher.Refresh(ctx)
	if err != nil {
		c.store.Clear()
		c.failed.Store(true)
		c.log.Err(err).Msg("session refresh failed")
		if c.onSessionExpired != nil {
			c.onSessionExpired()
		}
		return credentials.Credential{}, errors.Wrap(ErrSessionExpired, "[refresh] refresh rejected")
	}

	c.store.Set(credential)
	c.log.Debug().Time("expires_at", credential.ExpiresAt).Msg("session refreshed")
	return credential, nil
}
