// Package transport provides the request interceptor chain: an
// http.RoundTripper that attaches the current access credential to every
// call and transparently refreshes and replays a call rejected with 401.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kodj/kodjadmin/authapi"
	"github.com/kodj/kodjadmin/internal/logging"
	"github.com/kodj/kodjadmin/internal/uuid"
	"github.com/kodj/kodjadmin/tokenstore"
)

// HeaderRequestID carries a per-call correlation id.
const HeaderRequestID = "X-Request-ID"

// Request outcomes recorded in metrics.
const (
	OutcomeOK             = "ok"
	OutcomeReplayed       = "replayed"
	OutcomeUnauthorized   = "unauthorized"
	OutcomeSessionExpired = "session_expired"
	OutcomeTransportError = "transport_error"
)

type retriedKey struct{}

// Retried reports whether ctx belongs to a request that has already been
// replayed once after a refresh. Such a request is never replayed again.
func Retried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

// Refresher exchanges the stored refresh credential for a new pair,
// coalescing concurrent callers.
type Refresher interface {
	Refresh(ctx context.Context) (authapi.TokenPair, error)
}

// Interceptor is the authenticated transport.
type Interceptor struct {
	base      http.RoundTripper
	store     tokenstore.Store
	refresher Refresher
	metrics   *Metrics
	logger    *slog.Logger

	hookMu    sync.RWMutex
	onExpired func(error)
}

var _ http.RoundTripper = (*Interceptor)(nil)

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithBase sets the transport requests are sent through. Defaults to
// http.DefaultTransport.
func WithBase(rt http.RoundTripper) Option {
	return func(i *Interceptor) {
		i.base = rt
	}
}

// WithMetrics records request, refresh and replay counts.
func WithMetrics(m *Metrics) Option {
	return func(i *Interceptor) {
		i.metrics = m
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interceptor) {
		i.logger = logger
	}
}

// WithSessionExpiredHook sets the function called after a failed refresh
// has cleared the store.
func WithSessionExpiredHook(fn func(error)) Option {
	return func(i *Interceptor) {
		i.onExpired = fn
	}
}

// New creates an Interceptor reading credentials from store.
func New(store tokenstore.Store, refresher Refresher, opts ...Option) *Interceptor {
	i := &Interceptor{store: store, refresher: refresher}
	for _, opt := range opts {
		opt(i)
	}
	if i.base == nil {
		i.base = http.DefaultTransport
	}
	i.logger = logging.OrDefault(i.logger).With("component", "interceptor")
	return i
}

// SetSessionExpiredHook replaces the hook set with WithSessionExpiredHook.
// It lets the session controller, which is built on top of a client using
// this transport, register itself afterwards.
func (i *Interceptor) SetSessionExpiredHook(fn func(error)) {
	i.hookMu.Lock()
	defer i.hookMu.Unlock()
	i.onExpired = fn
}

// Client returns an *http.Client using the interceptor with the given
// overall timeout.
func (i *Interceptor) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: i, Timeout: timeout}
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	return i.roundTrip(req, Retried(req.Context()))
}

func (i *Interceptor) roundTrip(req *http.Request, retried bool) (*http.Response, error) {
	out, err := prepare(req)
	if err != nil {
		return nil, err
	}

	// Read the credential at send time, not when the request was built.
	sent := out.Header.Get("Authorization")
	explicit := sent != "" && !retried
	if sent == "" {
		if token, ok := i.store.Get(tokenstore.AccessToken); ok && token != "" {
			sent = bearer(token)
			out.Header.Set("Authorization", sent)
		}
	}
	if out.Header.Get(HeaderRequestID) == "" {
		out.Header.Set(HeaderRequestID, uuid.New())
	}

	resp, err := i.base.RoundTrip(out)
	if err != nil {
		i.metrics.request(OutcomeTransportError)
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		if retried {
			i.metrics.request(OutcomeReplayed)
		} else {
			i.metrics.request(OutcomeOK)
		}
		return resp, nil
	}
	if explicit {
		// The caller's own credential was rejected; it is not the session's.
		i.metrics.request(OutcomeUnauthorized)
		return resp, nil
	}
	if retried {
		i.logger.Warn("request rejected after replay", "method", req.Method, "path", req.URL.Path, "request_id", out.Header.Get(HeaderRequestID))
		i.metrics.request(OutcomeUnauthorized)
		return resp, nil
	}

	next, ok := i.renewedCredential(out.Context(), sent)
	if !ok {
		if out.Context().Err() == nil {
			i.metrics.request(OutcomeSessionExpired)
		} else {
			i.metrics.request(OutcomeUnauthorized)
		}
		return resp, nil
	}

	drain(resp)
	replay := out.Clone(withRetried(out.Context()))
	if err := rewind(replay, out); err != nil {
		return nil, err
	}
	replay.Header.Set("Authorization", bearer(next))
	i.metrics.replay()
	return i.roundTrip(replay, true)
}

// renewedCredential returns the access credential to replay with after a
// 401. If another flight already replaced the credential this request was
// sent with, that value is used without refreshing again. A failed refresh
// ends the session and reports false.
func (i *Interceptor) renewedCredential(ctx context.Context, sent string) (string, bool) {
	if current, ok := i.store.Get(tokenstore.AccessToken); ok && current != "" && bearer(current) != sent {
		return current, true
	}
	pair, err := i.refresher.Refresh(ctx)
	if err == nil {
		return pair.AccessToken, true
	}
	if ctx.Err() != nil {
		// The caller gave up; the shared refresh may still succeed.
		return "", false
	}
	i.expire(err)
	return "", false
}

func (i *Interceptor) expire(cause error) {
	if err := i.store.ClearAll(); err != nil {
		i.logger.Error("clearing credentials failed", "error", err)
	}
	i.logger.Info("session expired", "reason", authapi.KindOf(cause).String())

	i.hookMu.RLock()
	hook := i.onExpired
	i.hookMu.RUnlock()
	if hook != nil {
		hook(cause)
	}
}

func bearer(token string) string {
	return "Bearer " + token
}

// prepare clones req so the caller's request is never mutated, and makes
// its body replayable.
func prepare(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return out, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffering request body: %w", err)
	}
	out.Body = io.NopCloser(bytes.NewReader(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	out.ContentLength = int64(len(data))
	return out, nil
}

func rewind(replay, sent *http.Request) error {
	if sent.Body == nil || sent.Body == http.NoBody {
		return nil
	}
	if sent.GetBody == nil {
		return fmt.Errorf("request body cannot be replayed")
	}
	body, err := sent.GetBody()
	if err != nil {
		return fmt.Errorf("rewinding request body: %w", err)
	}
	replay.Body = body
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
