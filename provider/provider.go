package provider

import (
	"context"

	"github.com/jrsteele09/go-auth-client/credentials"
)

// Snapshot is the read-only view of an externally managed session. A nil
// Credential means the provider holds no session for this user.
type Snapshot struct {
	Credential   *credentials.Credential
	FirstSession bool
}

// Present reports whether the provider supplied a credential
func (s Snapshot) Present() bool {
	return s.Credential != nil
}

// Source is an external identity provider whose session object is one of
// the two sources of truth at bootstrap. Session blocks until the provider
// resolves or ctx ends. Each reconciliation pass reads the snapshot once
// and never mutates it.
type Source interface {
	Session(ctx context.Context) (Snapshot, error)
}
