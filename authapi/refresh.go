package authapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kodj/kodjadmin/internal/logging"
	"github.com/kodj/kodjadmin/tokenstore"
)

const refreshFlightKey = "refresh"

// Refresh outcomes reported to a RefreshObserver.
const (
	RefreshSuccess      = "success"
	RefreshRejected     = "rejected"
	RefreshUnreachable  = "unreachable"
	RefreshNoCredential = "no_credential"
)

// RefreshObserver is notified once per network refresh attempt, not once per
// caller sharing it.
type RefreshObserver interface {
	ObserveRefresh(outcome string)
}

// RefreshConfig describes the refresh endpoint contract.
type RefreshConfig struct {
	URL     string
	Method  string
	Shape   string
	Timeout time.Duration
}

// Refresher exchanges the stored refresh credential for a new pair.
//
// Concurrent calls share one in-flight exchange and its outcome. The
// exchange runs detached from any single caller's cancellation and is
// bounded by the configured timeout. A Refresher never clears the store;
// whether a failure ends the session is the caller's decision.
type Refresher struct {
	cfg      RefreshConfig
	store    tokenstore.Store
	http     *http.Client
	logger   *slog.Logger
	observer RefreshObserver
	group    singleflight.Group
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithRefreshHTTPClient sets the client used for the refresh call. It must
// not route through the interceptor chain.
func WithRefreshHTTPClient(c *http.Client) RefresherOption {
	return func(r *Refresher) {
		r.http = c
	}
}

// WithRefreshLogger sets the structured logger.
func WithRefreshLogger(logger *slog.Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = logger
	}
}

// WithRefreshObserver registers an observer for refresh outcomes.
func WithRefreshObserver(o RefreshObserver) RefresherOption {
	return func(r *Refresher) {
		r.observer = o
	}
}

// NewRefresher creates a Refresher backed by store.
func NewRefresher(store tokenstore.Store, cfg RefreshConfig, opts ...RefresherOption) *Refresher {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.Shape == "" {
		cfg.Shape = ShapeAuto
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	r := &Refresher{cfg: cfg, store: store}
	for _, opt := range opts {
		opt(r)
	}
	if r.http == nil {
		r.http = &http.Client{Timeout: cfg.Timeout}
	}
	r.logger = logging.OrDefault(r.logger).With("component", "refresher")
	return r
}

// Refresh obtains a new credential pair, joining an exchange already in
// flight if there is one. The new pair is written to the store before
// Refresh returns.
func (r *Refresher) Refresh(ctx context.Context) (TokenPair, error) {
	ch := r.group.DoChan(refreshFlightKey, func() (any, error) {
		return r.exchange(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return TokenPair{}, res.Err
		}
		return res.Val.(TokenPair), nil
	case <-ctx.Done():
		return TokenPair{}, &Error{Kind: KindRefreshFailed, Message: MsgSessionExpired, Err: ctx.Err()}
	}
}

func (r *Refresher) exchange(ctx context.Context) (TokenPair, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	refresh, ok := r.store.Get(tokenstore.RefreshToken)
	if !ok || refresh == "" {
		r.observe(RefreshNoCredential)
		return TokenPair{}, &Error{Kind: KindNoRefreshCredential, Message: MsgSessionExpired}
	}

	var payload any
	if r.cfg.Method != http.MethodGet {
		payload = struct{}{}
	}
	rep, err := doJSON(ctx, r.http, r.cfg.Method, r.cfg.URL, payload, refresh)
	if err != nil {
		r.observe(RefreshUnreachable)
		r.logger.Warn("refresh request failed", "error", err)
		return TokenPair{}, &Error{Kind: KindRefreshFailed, Message: MsgSessionExpired, Err: err}
	}
	if !rep.ok() {
		r.observe(RefreshRejected)
		r.logger.Info("refresh rejected", "status", rep.status)
		return TokenPair{}, &Error{Kind: KindRefreshFailed, Status: rep.status, Message: MsgSessionExpired}
	}

	pair, err := decodeTokenPair(rep.body, r.cfg.Shape)
	if err != nil {
		r.observe(RefreshRejected)
		return TokenPair{}, &Error{Kind: KindRefreshFailed, Status: rep.status, Message: MsgSessionExpired, Err: err}
	}
	if pair.RefreshToken == "" {
		// Fixed refresh credential: the backend only rotates the access side.
		pair.RefreshToken = refresh
	}
	if err := r.store.SetPair(pair.AccessToken, pair.RefreshToken); err != nil {
		r.observe(RefreshRejected)
		return TokenPair{}, &Error{Kind: KindRefreshFailed, Status: rep.status, Message: MsgSessionExpired, Err: fmt.Errorf("storing refreshed credentials: %w", err)}
	}
	r.observe(RefreshSuccess)
	r.logger.Debug("credentials refreshed")
	return pair, nil
}

func (r *Refresher) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveRefresh(outcome)
	}
}
