// Package session owns the authentication lifecycle: startup validation,
// the two-step OTP login, logout, forced expiry and background credential
// renewal. It is the only writer of session state; every other component
// reads snapshots and subscribes to changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/kodj/kodjadmin/authapi"
	"github.com/kodj/kodjadmin/internal/logging"
	"github.com/kodj/kodjadmin/internal/util"
	"github.com/kodj/kodjadmin/tokenstore"
)

var (
	// ErrNoChallenge is returned by VerifyOTP and ResendOTP when no login
	// is pending.
	ErrNoChallenge = errors.New("session: no login challenge pending")
	// ErrBusy is returned when a login is attempted while the session is
	// being validated or is already signed in.
	ErrBusy = errors.New("session: already signed in or validating")
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("session: controller closed")
)

// Backend is the subset of the auth API the controller calls.
type Backend interface {
	SendOTP(ctx context.Context, req authapi.LoginRequest) error
	VerifyOTP(ctx context.Context, email, otp string) (authapi.TokenPair, error)
	Principal(ctx context.Context) (authapi.User, error)
}

// Refresher renews credentials, sharing one exchange among concurrent callers.
type Refresher interface {
	Refresh(ctx context.Context) (authapi.TokenPair, error)
}

// Navigator moves the UI to a location.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Config holds the controller's tunables.
type Config struct {
	// RenewInterval is the period of proactive credential renewal.
	RenewInterval time.Duration
	// RenewSkew renews early when the access credential is a JWT expiring
	// within this window.
	RenewSkew time.Duration
	// ResendCooldown is the minimum gap between OTP deliveries.
	ResendCooldown time.Duration
	// DeviceType and ClientAddress are reported with the password step.
	DeviceType    string
	ClientAddress string
	// LoginPath and HomePath are the navigation targets.
	LoginPath string
	HomePath  string
	Policy    Policy
}

func (c *Config) applyDefaults() {
	if c.RenewInterval <= 0 {
		c.RenewInterval = 15 * time.Minute
	}
	if c.DeviceType == "" {
		c.DeviceType = "web"
	}
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if c.HomePath == "" {
		c.HomePath = "/"
	}
	if strings.TrimSpace(c.Policy.LocalProvider) == "" {
		c.Policy.LocalProvider = DefaultPolicy().LocalProvider
	}
}

type event struct {
	state    State
	navigate string
}

// Controller is the session state machine.
type Controller struct {
	cfg       Config
	store     tokenstore.Store
	backend   Backend
	refresher Refresher
	nav       Navigator
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	state      State
	epoch      uint64
	password   *memguard.Enclave
	lastSend   time.Time
	subs       map[int]func(State)
	nextSub    int
	pending    []event
	delivering bool
	closed     bool

	renewCancel context.CancelFunc
	renewWG     sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithNavigator sets where navigation requests go.
func WithNavigator(n Navigator) Option {
	return func(c *Controller) {
		c.nav = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock overrides the time source used for the resend cooldown.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New creates a Controller in PhaseUninitialized.
func New(store tokenstore.Store, backend Backend, refresher Refresher, cfg Config, opts ...Option) *Controller {
	cfg.applyDefaults()
	c := &Controller{
		cfg:       cfg,
		store:     store,
		backend:   backend,
		refresher: refresher,
		now:       time.Now,
		subs:      make(map[int]func(State)),
		state:     State{Phase: PhaseUninitialized},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger).With("component", "session")
	return c
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change. Callbacks run outside the
// controller's lock, in the order the changes happened, and may call back
// into the controller.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// setLocked replaces the state and queues a notification. A navigation is
// queued only when the phase actually changed.
func (c *Controller) setLocked(next State, navigate string) {
	prev := c.state
	c.state = next
	if prev.Phase == next.Phase {
		navigate = ""
		if sameState(prev, next) {
			return
		}
	}
	c.pending = append(c.pending, event{state: next, navigate: navigate})
}

func sameState(a, b State) bool {
	return a.Phase == b.Phase && a.Principal == b.Principal && a.Challenge == b.Challenge && a.Err == b.Err
}

// flush delivers queued notifications. Only one goroutine delivers at a
// time; re-entrant calls from subscribers just enqueue.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending = c.pending[1:]
		subs := make([]func(State), 0, len(c.subs))
		for id := 0; id < c.nextSub; id++ {
			if fn, ok := c.subs[id]; ok {
				subs = append(subs, fn)
			}
		}
		c.mu.Unlock()

		for _, fn := range subs {
			fn(ev.state)
		}
		if ev.navigate != "" && c.nav != nil {
			c.nav.Navigate(ev.navigate)
		}

		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
}

// Start resolves the persisted session, if any. Without stored credentials
// the session becomes anonymous with no network call.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Phase != PhaseUninitialized {
		c.mu.Unlock()
		return nil
	}
	if tokenstore.Empty(c.store) {
		c.setLocked(State{Phase: PhaseAnonymous}, "")
		c.mu.Unlock()
		c.flush()
		return nil
	}
	c.setLocked(State{Phase: PhaseValidating}, "")
	epoch := c.epoch
	c.mu.Unlock()
	c.flush()

	principal, err := c.resolve(ctx)

	c.mu.Lock()
	if epoch != c.epoch || c.state.Phase != PhaseValidating {
		// Logged out or expired while validating.
		c.mu.Unlock()
		return err
	}
	if err == nil {
		c.setLocked(State{Phase: PhaseAuthenticated, Principal: principal}, "")
		c.startRenewalLocked()
		c.mu.Unlock()
		c.flush()
		c.logger.Info("session restored", "principal_id", principal.ID)
		return nil
	}

	var shown error
	switch {
	case ctx.Err() != nil, authapi.IsTransient(err):
		// Keep the credentials; the next start may succeed.
		c.logger.Warn("session validation deferred", "error", err)
		shown = err
	case authapi.KindOf(err) == authapi.KindAuthorizationDenied:
		c.clearStoreLocked()
		shown = err
	default:
		c.logger.Info("stored session rejected", "reason", authapi.KindOf(err).String())
		c.clearStoreLocked()
	}
	c.setLocked(State{Phase: PhaseAnonymous, Err: shown}, "")
	c.mu.Unlock()
	c.flush()
	return err
}

// resolve validates the stored credentials and returns the admitted
// principal. When only a refresh credential is stored it refreshes first.
func (c *Controller) resolve(ctx context.Context) (*Principal, error) {
	if token, ok := c.store.Get(tokenstore.AccessToken); !ok || token == "" {
		if _, err := c.refresher.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	u, err := c.backend.Principal(ctx)
	if err != nil {
		return nil, err
	}
	p := principalFromUser(u)
	if err := c.cfg.Policy.Check(p); err != nil {
		return nil, err
	}
	return p, nil
}

// SendOTP submits the password step. On success a challenge for the
// normalized email is pending and the password is remembered, sealed in
// memory, so the code can be re-sent.
func (c *Controller) SendOTP(ctx context.Context, email, password string) error {
	email = util.NormalizeEmail(email)
	if email == "" || password == "" {
		return c.fail(&authapi.Error{Kind: authapi.KindBadCredentials, Message: authapi.MsgBadCredentials})
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Phase == PhaseAuthenticated || c.state.Phase == PhaseValidating {
		c.mu.Unlock()
		return ErrBusy
	}
	// A new login replaces any earlier challenge.
	c.epoch++
	epoch := c.epoch
	c.password = nil
	c.setLocked(State{Phase: c.state.Phase}, "")
	c.mu.Unlock()
	c.flush()

	err := c.backend.SendOTP(ctx, authapi.LoginRequest{
		Email:      email,
		Password:   password,
		IPAddress:  c.cfg.ClientAddress,
		DeviceType: c.cfg.DeviceType,
	})
	if err != nil {
		c.logger.Info("otp request failed", "email", util.MaskEmail(email), "reason", authapi.KindOf(err).String())
		return c.fail(err)
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return ErrNoChallenge
	}
	c.password = memguard.NewEnclave([]byte(password))
	c.lastSend = c.now()
	c.setLocked(State{Phase: c.state.Phase, Challenge: &Challenge{Email: email, AwaitingOTP: true}}, "")
	c.mu.Unlock()
	c.flush()
	c.logger.Info("otp sent", "email", util.MaskEmail(email))
	return nil
}

// VerifyOTP completes the pending login with the one-time code. A failure
// keeps the challenge so the code can be retried or re-sent.
func (c *Controller) VerifyOTP(ctx context.Context, code string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	ch := c.state.Challenge
	epoch := c.epoch
	c.mu.Unlock()
	if ch == nil {
		return ErrNoChallenge
	}

	code = NormalizeOTP(code)
	if !ValidOTP(code) {
		return c.fail(&authapi.Error{Kind: authapi.KindBadCredentials, Message: authapi.MsgBadCredentials, Err: fmt.Errorf("code must be %d digits", otpLength)})
	}

	pair, err := c.backend.VerifyOTP(ctx, ch.Email, code)
	if err != nil {
		c.logger.Info("otp verification failed", "email", util.MaskEmail(ch.Email), "reason", authapi.KindOf(err).String())
		return c.fail(err)
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return ErrNoChallenge
	}
	c.mu.Unlock()

	if err := c.store.SetPair(pair.AccessToken, pair.RefreshToken); err != nil {
		return c.fail(fmt.Errorf("storing credentials: %w", err))
	}
	c.mu.Lock()
	if epoch != c.epoch {
		// Logged out while the pair was being written.
		c.clearStoreLocked()
		c.mu.Unlock()
		return ErrNoChallenge
	}
	c.mu.Unlock()
	principal, err := c.resolve(ctx)

	c.mu.Lock()
	if epoch != c.epoch {
		c.clearStoreLocked()
		c.mu.Unlock()
		return ErrNoChallenge
	}
	c.password = nil
	if err != nil {
		c.clearStoreLocked()
		c.setLocked(State{Phase: PhaseAnonymous, Err: err}, "")
		c.mu.Unlock()
		c.flush()
		c.logger.Warn("login refused after verification", "email", util.MaskEmail(ch.Email), "reason", authapi.KindOf(err).String())
		return err
	}
	c.setLocked(State{Phase: PhaseAuthenticated, Principal: principal}, c.cfg.HomePath)
	c.startRenewalLocked()
	c.mu.Unlock()
	c.flush()
	c.logger.Info("signed in", "principal_id", principal.ID)
	return nil
}

// ResendOTP repeats the password step with the remembered credentials.
// It is refused with a RateLimited error during the cooldown.
func (c *Controller) ResendOTP(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	ch := c.state.Challenge
	enclave := c.password
	if ch == nil || enclave == nil {
		c.mu.Unlock()
		return ErrNoChallenge
	}
	if wait := c.cfg.ResendCooldown - c.now().Sub(c.lastSend); wait > 0 {
		c.mu.Unlock()
		return &authapi.Error{Kind: authapi.KindRateLimited, Message: authapi.MsgRateLimited, RetryAfter: wait}
	}
	epoch := c.epoch
	c.lastSend = c.now()
	c.mu.Unlock()

	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("opening password enclave: %w", err)
	}
	password := string(buf.Bytes())
	buf.Destroy()

	err = c.backend.SendOTP(ctx, authapi.LoginRequest{
		Email:      ch.Email,
		Password:   password,
		IPAddress:  c.cfg.ClientAddress,
		DeviceType: c.cfg.DeviceType,
	})
	if err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	if epoch == c.epoch && c.state.Err != nil {
		c.setLocked(State{Phase: c.state.Phase, Challenge: c.state.Challenge}, "")
	}
	c.mu.Unlock()
	c.flush()
	c.logger.Info("otp re-sent", "email", util.MaskEmail(ch.Email))
	return nil
}

// RetryAfter reports how long until ResendOTP is allowed again.
func (c *Controller) RetryAfter() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait := c.cfg.ResendCooldown - c.now().Sub(c.lastSend); wait > 0 {
		return wait
	}
	return 0
}

// fail records err on the current state without changing the phase.
func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.setLocked(State{Phase: c.state.Phase, Principal: c.state.Principal, Challenge: c.state.Challenge, Err: err}, "")
	c.mu.Unlock()
	c.flush()
	return err
}

// Logout ends the session. It is idempotent: when already anonymous it only
// re-clears the store.
func (c *Controller) Logout() {
	c.end(nil, "logout")
}

// ExpireSession forces the session to anonymous after the credentials were
// rejected. An AuthorizationDenied cause is kept for display; any other
// cause ends the session silently.
func (c *Controller) ExpireSession(cause error) {
	var shown error
	if authapi.KindOf(cause) == authapi.KindAuthorizationDenied {
		shown = cause
	}
	c.end(shown, "expired")
}

func (c *Controller) end(shown error, reason string) {
	c.mu.Lock()
	c.epoch++
	c.stopRenewalLocked()
	c.password = nil
	c.clearStoreLocked()
	prev := c.state.Phase
	next := State{Phase: PhaseAnonymous, Err: shown}
	if prev == PhaseUninitialized {
		// Not started yet; Start will settle the phase.
		next.Phase = PhaseUninitialized
	}
	c.setLocked(next, c.cfg.LoginPath)
	c.mu.Unlock()
	c.flush()
	if prev != PhaseAnonymous && prev != PhaseUninitialized {
		c.logger.Info("session ended", "reason", reason)
	}
}

func (c *Controller) clearStoreLocked() {
	if err := c.store.ClearAll(); err != nil {
		c.logger.Error("clearing credentials failed", "error", err)
	}
}

// Close stops background renewal and waits for it to exit. The stored
// credentials are kept.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopRenewalLocked()
	c.password = nil
	c.mu.Unlock()
	c.renewWG.Wait()
}

// NormalizeOTP strips the spaces and dashes people type into codes.
func NormalizeOTP(code string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(code))
}

const otpLength = 6

// ValidOTP reports whether code is exactly six ASCII digits.
func ValidOTP(code string) bool {
	if len(code) != otpLength {
		return false
	}
	for _, ch := range code {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
