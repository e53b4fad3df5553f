package session

import (
	"context"

	"github.com/jrsteele09/go-auth-client/authapi"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/pkg/errors"
)

// Initialise reconciles the two places a session can come from after a cold
// start: the locally persisted credential and the external session provider.
// It publishes the loading state, then blocks until exactly one terminal
// outcome is published - authenticated, unauthenticated, or unauthenticated
// via the bootstrap timeout. A login, register or logout completing while
// Initialise is still running wins: the pass's own outcome is discarded and
// its store and file mutations are refused.
func (m *Manager) Initialise(ctx context.Context) error {
	pass := m.beginPass()

	if credential := m.loadLocalCredential(pass); credential != nil {
		user, err := m.api.Me(ctx, credential.AccessToken)
		if err == nil {
			m.completePass(pass, State{Status: StatusAuthenticated, User: user})
			return nil
		}
		m.log.Debug().Err(err).Msg("local credential rejected")
		m.clearIfLive(pass, errors.Is(err, authapi.ErrUnauthorized))
	}

	if m.source == nil {
		m.completePass(pass, State{Status: StatusUnauthenticated})
		return nil
	}

	sourceCtx, cancel := context.WithTimeout(ctx, m.bootstrapTimeout)
	defer cancel()

	snapshot, err := m.source.Session(sourceCtx)
	if err != nil {
		m.completePass(pass, State{Status: StatusUnauthenticated})
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "[Initialise] reconciliation abandoned")
		}
		m.log.Debug().Err(err).Msg("external session source did not resolve in time")
		return nil
	}
	if !snapshot.Present() {
		m.completePass(pass, State{Status: StatusUnauthenticated})
		return nil
	}

	credential := *snapshot.Credential
	if !m.adoptIfLive(pass, credential) {
		m.log.Debug().Msg("external session ignored, session changed during reconciliation")
		return nil
	}

	user, err := m.api.Me(ctx, credential.AccessToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("externally supplied credential rejected")
		m.clearIfLive(pass, false)
		m.completePass(pass, State{Status: StatusUnauthenticated})
		return nil
	}
	m.persistIfLive(pass, credential)

	m.completePass(pass, State{Status: StatusAuthenticated, User: user, FirstSession: snapshot.FirstSession})
	return nil
}

// loadLocalCredential hydrates the in-memory store from disk and returns the
// credential worth probing. Credentials that are already expired by their own
// claims are dropped without a network call.
func (m *Manager) loadLocalCredential(pass int) *credentials.Credential {
	if credential := m.store.Get(); credential != nil {
		if credential.Expired() {
			m.log.Debug().Msg("held credential already expired")
			m.clearIfLive(pass, true)
			return nil
		}
		return credential
	}

	if m.fileStore == nil {
		return nil
	}
	loaded, err := m.fileStore.Load()
	if err != nil {
		m.log.Warn().Err(err).Msg("reading persisted credential")
		return nil
	}
	if loaded == nil {
		return nil
	}
	if loaded.Expired() {
		m.log.Debug().Msg("persisted credential already expired")
		m.clearIfLive(pass, true)
		return nil
	}
	if !m.adoptIfLive(pass, *loaded) {
		return nil
	}
	return loaded
}

// beginPass claims a new reconciliation pass, superseding any previous one,
// and publishes the loading state.
func (m *Manager) beginPass() int {
	m.lock.Lock()
	m.pass++
	pass := m.pass
	m.state = State{Status: StatusLoading}
	state := m.state
	listeners := m.listenerSnapshotLocked()
	m.lock.Unlock()

	for _, notify := range listeners {
		notify(state)
	}
	return pass
}

// completePass publishes the pass outcome unless the pass was retired in the
// meantime by a login, register or logout. Reports whether the outcome was
// published.
func (m *Manager) completePass(pass int, state State) bool {
	m.lock.Lock()
	if pass != m.pass {
		m.lock.Unlock()
		m.log.Debug().Msg("stale reconciliation outcome discarded")
		return false
	}
	m.state = state
	published := state.copy()
	listeners := m.listenerSnapshotLocked()
	m.lock.Unlock()

	for _, notify := range listeners {
		notify(published)
	}
	return true
}

// adoptIfLive installs a credential discovered by the pass. The liveness
// check and the store write share one lock acquisition, so a pass retired by
// a concurrent login, register or logout can no longer touch the store.
func (m *Manager) adoptIfLive(pass int, credential credentials.Credential) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if pass != m.pass {
		return false
	}
	m.store.Set(credential)
	m.coordinator.Reset()
	return true
}

// clearIfLive drops the pass's credential after a rejected probe, and the
// persisted copy with it when dropPersisted is set. Transient rejections
// keep the file, leaving the session resumable by a later start.
func (m *Manager) clearIfLive(pass int, dropPersisted bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if pass != m.pass {
		return
	}
	m.store.Clear()
	if dropPersisted {
		m.clearPersisted()
	}
}

// persistIfLive saves the pass's credential for the next start
func (m *Manager) persistIfLive(pass int, credential credentials.Credential) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if pass != m.pass {
		return
	}
	m.persist(credential)
}
