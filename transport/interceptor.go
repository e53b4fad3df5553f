package transport

import (
	"io"
	"net/http"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/token/refresh"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Interceptor is an http.RoundTripper that authorises every outbound
// request with the current bearer credential and recovers from credential
// expiry in place: on an unauthorized response it refreshes through the
// coordinator (single-flight across all concurrent failures) and replays
// the original request exactly once. A second unauthorized response is
// surfaced to the caller untouched.
type Interceptor struct {
	base        http.RoundTripper
	store       *credentials.Store
	coordinator *refresh.Coordinator
	log         zerolog.Logger
}

type InterceptorOption func(*Interceptor)

// WithBase sets the wrapped transport, defaulting to http.DefaultTransport
func WithBase(base http.RoundTripper) InterceptorOption {
	return func(t *Interceptor) {
		t.base = base
	}
}

// WithLogger sets the interceptor's logger
func WithLogger(log zerolog.Logger) InterceptorOption {
	return func(t *Interceptor) {
		t.log = log
	}
}

func New(store *credentials.Store, coordinator *refresh.Coordinator, options ...InterceptorOption) (*Interceptor, error) {
	if store == nil {
		return nil, errors.New("[New] no credential store")
	}
	if coordinator == nil {
		return nil, errors.New("[New] no refresh coordinator")
	}

	interceptor := &Interceptor{
		base:        http.DefaultTransport,
		store:       store,
		coordinator: coordinator,
		log:         zerolog.Nop(),
	}
	for _, option := range options {
		option(interceptor)
	}
	return interceptor, nil
}

func (t *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	// Requests carrying their own Authorization header pass through
	// untouched - the auth endpoints themselves must never loop back into
	// the refresh protocol.
	if req.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(req)
	}

	resp, err := t.base.RoundTrip(t.authorize(req))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// A request whose body cannot be replayed is surfaced as-is rather
	// than retried with half a body.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	drainAndClose(resp)

	credential, err := t.coordinator.EnsureFresh(req.Context())
	if err != nil {
		return nil, errors.Wrap(err, "[RoundTrip] refreshing credential")
	}

	retry, err := cloneForRetry(req)
	if err != nil {
		return nil, err
	}
	retry.Header.Set("Authorization", "Bearer "+credential.AccessToken)

	t.log.Debug().Str("path", req.URL.Path).Msg("retrying request with refreshed credential")
	return t.base.RoundTrip(retry)
}

// authorize clones the request and attaches the current bearer credential
// when one is held; without one the request goes out unauthenticated.
func (t *Interceptor) authorize(req *http.Request) *http.Request {
	authorized := req.Clone(req.Context())
	if credential := t.store.Get(); credential != nil {
		authorized.Header.Set("Authorization", "Bearer "+credential.AccessToken)
	}
	return authorized
}

func cloneForRetry(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, errors.Wrap(err, "[cloneForRetry] replaying request body")
		}
		retry.Body = body
	}
	return retry, nil
}

// drainAndClose discards the rest of a response so the underlying
// connection can be reused for the retry.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
