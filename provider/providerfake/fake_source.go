package providerfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/provider"
)

var _ provider.Source = (*FakeSource)(nil)

// FakeSource is a controllable external session source. Session blocks
// until one of the Resolve methods is called, mimicking a provider whose
// hydration completes at an arbitrary point after startup.
type FakeSource struct {
	lock     sync.Mutex
	once     sync.Once
	resolved chan struct{}
	snapshot provider.Snapshot
	err      error
	calls    int
}

func New() *FakeSource {
	return &FakeSource{resolved: make(chan struct{})}
}

func (f *FakeSource) Session(ctx context.Context) (provider.Snapshot, error) {
	f.lock.Lock()
	f.calls++
	f.lock.Unlock()

	select {
	case <-ctx.Done():
		return provider.Snapshot{}, ctx.Err()
	case <-f.resolved:
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	return f.snapshot, f.err
}

// ResolvePresent completes the source with an external credential
func (f *FakeSource) ResolvePresent(credential credentials.Credential, firstSession bool) {
	f.lock.Lock()
	f.snapshot = provider.Snapshot{Credential: &credential, FirstSession: firstSession}
	f.lock.Unlock()
	f.once.Do(func() { close(f.resolved) })
}

// ResolveAbsent completes the source with no external session
func (f *FakeSource) ResolveAbsent() {
	f.once.Do(func() { close(f.resolved) })
}

// Fail completes the source with an error
func (f *FakeSource) Fail(err error) {
	f.lock.Lock()
	f.err = err
	f.lock.Unlock()
	f.once.Do(func() { close(f.resolved) })
}

// Calls reports how many times the source was consulted
func (f *FakeSource) Calls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls
}
