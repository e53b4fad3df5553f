package credentials

import "sync"

// Store holds the credential for the active session in memory. It is the
// single mutable resource shared by the session manager, the refresh
// coordinator and the request interceptor; the interceptor only ever reads.
type Store struct {
	lock       sync.RWMutex
	credential *Credential
}

func NewStore() *Store {
	return &Store{}
}

// Set replaces the current credential
func (s *Store) Set(credential Credential) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.credential = &credential
}

// Get returns a copy of the current credential, or nil when none is held
func (s *Store) Get() *Credential {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.credential == nil {
		return nil
	}
	credential := *s.credential
	return &credential
}

// Clear drops the current credential
func (s *Store) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.credential = nil
}
