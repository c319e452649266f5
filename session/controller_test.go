package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodj/kodjadmin/authapi"
	"github.com/kodj/kodjadmin/internal/logging"
	"github.com/kodj/kodjadmin/tokenstore"
	"github.com/kodj/kodjadmin/transport"
)

type fakeBackend struct {
	mu           sync.Mutex
	sendErr      error
	verifyErr    error
	principalErr error
	pair         authapi.TokenPair
	user         authapi.User
	block        chan struct{}

	sends          []authapi.LoginRequest
	verifies       []string
	principalCalls int
}

func localUser() authapi.User {
	return authapi.User{ID: 7, Email: "admin@kodj.dev", Name: "Ada Admin", Role: "ADMIN", OAuthProvider: "LOCAL"}
}

func (b *fakeBackend) SendOTP(_ context.Context, req authapi.LoginRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sends = append(b.sends, req)
	return b.sendErr
}

func (b *fakeBackend) VerifyOTP(_ context.Context, email, otp string) (authapi.TokenPair, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verifies = append(b.verifies, email+":"+otp)
	if b.verifyErr != nil {
		return authapi.TokenPair{}, b.verifyErr
	}
	return b.pair, nil
}

func (b *fakeBackend) Principal(context.Context) (authapi.User, error) {
	b.mu.Lock()
	block := b.block
	b.principalCalls++
	b.mu.Unlock()
	if block != nil {
		<-block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.user, b.principalErr
}

func (b *fakeBackend) counts() (sends, verifies, principals int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sends), len(b.verifies), b.principalCalls
}

type fakeRefresher struct {
	store tokenstore.Store
	err   error
	calls atomic.Int32
	mu    sync.Mutex
}

func (r *fakeRefresher) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *fakeRefresher) Refresh(context.Context) (authapi.TokenPair, error) {
	r.calls.Add(1)
	r.mu.Lock()
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return authapi.TokenPair{}, err
	}
	pair := authapi.TokenPair{AccessToken: "renewed-access", RefreshToken: "renewed-refresh"}
	return pair, r.store.SetPair(pair.AccessToken, pair.RefreshToken)
}

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

type fixture struct {
	store     *tokenstore.Memory
	backend   *fakeBackend
	refresher *fakeRefresher
	nav       *recorder
	ctrl      *Controller
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   tokenstore.NewMemory(),
		backend: &fakeBackend{user: localUser(), pair: authapi.TokenPair{AccessToken: "a1", RefreshToken: "r1"}},
		nav:     &recorder{},
	}
	f.refresher = &fakeRefresher{store: f.store}
	opts = append([]Option{WithNavigator(f.nav), WithLogger(logging.Discard())}, opts...)
	f.ctrl = New(f.store, f.backend, f.refresher, cfg, opts...)
	t.Cleanup(f.ctrl.Close)
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ctrl.SendOTP(context.Background(), "admin@kodj.dev", "pw"))
	require.NoError(t, f.ctrl.VerifyOTP(context.Background(), "123456"))
}

func TestStart_EmptyStoreIsAnonymousWithoutNetwork(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.ctrl.Start(context.Background()))

	st := f.ctrl.State()
	assert.Equal(t, PhaseAnonymous, st.Phase)
	assert.Nil(t, st.Err)
	_, _, principals := f.backend.counts()
	assert.Zero(t, principals)
	assert.Zero(t, f.refresher.calls.Load())
	assert.Empty(t, f.nav.list())
}

func TestStart_RestoresStoredSession(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.store.SetPair("a0", "r0"))

	var phases []Phase
	f.ctrl.Subscribe(func(s State) { phases = append(phases, s.Phase) })
	require.NoError(t, f.ctrl.Start(context.Background()))

	st := f.ctrl.State()
	require.True(t, st.Authenticated())
	assert.Equal(t, "Ada Admin", st.Principal.DisplayName)
	assert.Equal(t, []Phase{PhaseValidating, PhaseAuthenticated}, phases)
	assert.Zero(t, f.refresher.calls.Load())
	assert.Empty(t, f.nav.list(), "restoring a session does not navigate")
}

func TestStart_RefreshesWhenOnlyRefreshCredentialStored(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.store.Set(tokenstore.RefreshToken, "r0"))

	require.NoError(t, f.ctrl.Start(context.Background()))
	assert.Equal(t, PhaseAuthenticated, f.ctrl.State().Phase)
	assert.EqualValues(t, 1, f.refresher.calls.Load())
	v, _ := f.store.Get(tokenstore.AccessToken)
	assert.Equal(t, "renewed-access", v)
}

func TestStart_NonLocalPrincipalIsDenied(t *testing.T) {
	f := newFixture(t, Config{})
	f.backend.user.OAuthProvider = "GOOGLE"
	require.NoError(t, f.store.SetPair("a0", "r0"))

	err := f.ctrl.Start(context.Background())
	require.ErrorIs(t, err, authapi.ErrAuthorizationDenied)

	st := f.ctrl.State()
	assert.Equal(t, PhaseAnonymous, st.Phase)
	assert.Nil(t, st.Principal)
	assert.Equal(t, authapi.MsgAuthorizationDenied, st.ErrMessage())
	assert.True(t, tokenstore.Empty(f.store))
}

func TestStart_TransientFailureKeepsCredentials(t *testing.T) {
	f := newFixture(t, Config{})
	f.backend.principalErr = &authapi.Error{Kind: authapi.KindNetworkError, Message: authapi.MsgNetworkError}
	require.NoError(t, f.store.SetPair("a0", "r0"))

	require.Error(t, f.ctrl.Start(context.Background()))
	st := f.ctrl.State()
	assert.Equal(t, PhaseAnonymous, st.Phase)
	assert.Equal(t, authapi.MsgNetworkError, st.ErrMessage())
	assert.False(t, tokenstore.Empty(f.store))
}

func TestStart_RejectedCredentialsAreClearedSilently(t *testing.T) {
	f := newFixture(t, Config{})
	f.backend.principalErr = &authapi.Error{Kind: authapi.KindBadCredentials, Status: http.StatusUnauthorized}
	require.NoError(t, f.store.SetPair("a0", "r0"))

	require.Error(t, f.ctrl.Start(context.Background()))
	st := f.ctrl.State()
	assert.Equal(t, PhaseAnonymous, st.Phase)
	assert.Nil(t, st.Err)
	assert.True(t, tokenstore.Empty(f.store))
}

func TestStart_LogoutDuringValidationWins(t *testing.T) {
	f := newFixture(t, Config{})
	f.backend.block = make(chan struct{})
	require.NoError(t, f.store.SetPair("a0", "r0"))

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Start(context.Background()) }()
	require.Eventually(t, func() bool { return f.ctrl.State().Phase == PhaseValidating }, time.Second, 5*time.Millisecond)

	f.ctrl.Logout()
	close(f.backend.block)
	require.NoError(t, <-done)

	assert.Equal(t, PhaseAnonymous, f.ctrl.State().Phase)
	assert.True(t, tokenstore.Empty(f.store))
}

func TestLogin_TwoStepFlow(t *testing.T) {
	f := newFixture(t, Config{DeviceType: "cli", ClientAddress: "10.0.0.9"})
	require.NoError(t, f.ctrl.Start(context.Background()))

	require.NoError(t, f.ctrl.SendOTP(context.Background(), "  Admin@KODJ.dev ", "pw"))
	st := f.ctrl.State()
	require.NotNil(t, st.Challenge)
	assert.Equal(t, "admin@kodj.dev", st.Challenge.Email)
	assert.True(t, st.Challenge.AwaitingOTP)
	assert.Equal(t, PhaseAnonymous, st.Phase)

	require.Len(t, f.backend.sends, 1)
	assert.Equal(t, authapi.LoginRequest{Email: "admin@kodj.dev", Password: "pw", IPAddress: "10.0.0.9", DeviceType: "cli"}, f.backend.sends[0])

	require.NoError(t, f.ctrl.VerifyOTP(context.Background(), "123 456"))
	st = f.ctrl.State()
	require.True(t, st.Authenticated())
	assert.Nil(t, st.Challenge)
	assert.Equal(t, []string{"admin@kodj.dev:123456"}, f.backend.verifies)

	access, _ := f.store.Get(tokenstore.AccessToken)
	refresh, _ := f.store.Get(tokenstore.RefreshToken)
	assert.Equal(t, "a1", access)
	assert.Equal(t, "r1", refresh)
	assert.Equal(t, []string{"/"}, f.nav.list())
}

func TestSendOTP_Failures(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.ctrl.Start(context.Background()))

	err := f.ctrl.SendOTP(context.Background(), "", "pw")
	require.ErrorIs(t, err, authapi.ErrBadCredentials)
	sends, _, _ := f.backend.counts()
	assert.Zero(t, sends)

	f.backend.sendErr = &authapi.Error{Kind: authapi.KindNotFound, Status: 404, Message: authapi.MsgNotFound}
	err = f.ctrl.SendOTP(context.Background(), "nobody@kodj.dev", "pw")
	require.ErrorIs(t, err, authapi.ErrNotFound)
	st := f.ctrl.State()
	assert.Nil(t, st.Challenge)
	assert.Equal(t, authapi.MsgNotFound, st.ErrMessage())
}

func TestSendOTP_RefusedWhenSignedIn(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.ctrl.Start(context.Background()))
	f.login(t)

	require.ErrorIs(t, f.ctrl.SendOTP(context.Background(), "admin@kodj.dev", "pw"), ErrBusy)
}

func TestVerifyOTP_WithoutChallenge(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.ctrl.Start(context.Background()))
	require.ErrorIs(t, f.ctrl.VerifyOTP(context.Background(), "123456"), ErrNoChallenge)
}

func TestVerifyOTP_MalformedCodeSkipsNetwork(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.ctrl.Start(context.Background()))
	require.NoError(t, f.ctrl.SendOTP(context.Background(), "admin@kodj.dev", "pw"))

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		require.ErrorIs(t, f.ctrl.VerifyOTP(context.Background(), code), authapi.ErrBadCredentials, code)
	}
	_, verifies, _ := f.backend.counts()
	assert.Zero(t, verifies)
	assert.NotNil(t, f.ctrl.State().Challenge)
}

func TestVerifyOTP_BackendRejectionKeepsChallenge(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.ctrl.Start(context.Background()))
	require.NoError(t, f.ctrl.SendOTP(context.Background(), "admin@kodj.dev", "pw"))

	f.backend.verifyErr = &authapi.Error{Kind: authapi.KindBadCredentials, Status: 400, Message: authapi.MsgBadCredentials}
	require.ErrorIs(t, f.ctrl.VerifyOTP(context.Background(), "000000"), authapi.ErrBadCredentials)

	st := f.ctrl.State()
	assert.Equal(t, PhaseAnonymous, st.Phase)
	require.NotNil(t, st.Challenge)
	assert.Equal(t, authapi.MsgBadCredentials, st.ErrMessage())
	assert.True(t, tokenstore.Empty(f.store))

	f.backend.verifyErr = nil
	require.NoError(t, f.ctrl.VerifyOTP(context.Background(), "111111"))
	assert.True(t, f.ctrl.State().Authenticated())
}

func TestVerifyOTP_DeniedPrincipalLeavesNoCredentials(t *testing.T) {
	f := newFixture(t, Config{})
	f.backend.user.OAuthProvider = "GITHUB"
	require.NoError(t, f.ctrl.Start(context.Background()))
	require.NoError(t, f.ctrl.SendOTP(context.Background(), "admin@kodj.dev", "pw"))

	require.ErrorIs(t, f.ctrl.VerifyOTP(context.Background(), "123456"), authapi.ErrAuthorizationDenied)
	st := f.ctrl.State()
	assert.Equal(t, PhaseAnonymous, st.Phase)
	assert.Nil(t, st.Challenge)
	assert.Equal(t, authapi.MsgAuthorizationDenied, st.ErrMessage())
	assert.True(t, tokenstore.Empty(f.store))
	assert.Empty(t, f.nav.list())
}

func TestZeroConfigDeniesFederatedPrincipal(t *testing.T) {
	store := tokenstore.NewMemory()
	user := localUser()
	user.OAuthProvider = "GOOGLE"
	backend := &fakeBackend{user: user, pair: authapi.TokenPair{AccessToken: "a1", RefreshToken: "r1"}}
	ctrl := New(store, backend, &fakeRefresher{store: store}, Config{}, WithLogger(logging.Discard()))
	t.Cleanup(ctrl.Close)

	require.NoError(t, ctrl.Start(context.Background()))
	require.NoError(t, ctrl.SendOTP(context.Background(), "admin@kodj.dev", "pw"))
	require.ErrorIs(t, ctrl.VerifyOTP(context.Background(), "123456"), authapi.ErrAuthorizationDenied)

	assert.Equal(t, PhaseAnonymous, ctrl.State().Phase)
	assert.True(t, tokenstore.Empty(store))
}

// writeHookStore runs beforeSetPair ahead of every pair write.
type writeHookStore struct {
	*tokenstore.Memory
	beforeSetPair func()
}

func (s *writeHookStore) SetPair(access, refresh string) error {
	if s.beforeSetPair != nil {
		s.beforeSetPair()
	}
	return s.Memory.SetPair(access, refresh)
}

func TestVerifyOTP_LogoutDuringCredentialWrite(t *testing.T) {
	store := &writeHookStore{Memory: tokenstore.NewMemory()}
	backend := &fakeBackend{user: localUser(), pair: authapi.TokenPair{AccessToken: "a1", RefreshToken: "r1"}}
	ctrl := New(store, backend, &fakeRefresher{store: store}, Config{}, WithLogger(logging.Discard()))
	t.Cleanup(ctrl.Close)

	require.NoError(t, ctrl.Start(context.Background()))
	require.NoError(t, ctrl.SendOTP(context.Background(), "admin@kodj.dev", "pw"))
	var once sync.Once
	store.beforeSetPair = func() { once.Do(ctrl.Logout) }

	require.ErrorIs(t, ctrl.VerifyOTP(context.Background(), "123456"), ErrNoChallenge)
	assert.Equal(t, PhaseAnonymous, ctrl.State().Phase)
	assert.True(t, tokenstore.Empty(store), "logout must not be undone by the late write")
	_, _, principals := backend.counts()
	assert.Zero(t, principals)
}

func TestVerifyOTP_RequiredRole(t *testing.T) {
	f := newFixture(t, Config{Policy: Policy{LocalProvider: "LOCAL", RequiredRole: "SUPERADMIN"}})
	require.NoError(t, f.ctrl.Start(context.Background()))
	require.NoError(t, f.ctrl.SendOTP(context.Background(), "admin@kodj.dev", "pw"))
	require.ErrorIs(t, f.ctrl.VerifyOTP(context.Background(), "123456"), authapi.ErrAuthorizationDenied)
}

func TestResendOTP_Cooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	f := newFixture(t, Config{ResendCooldown: 30 * time.Second}, WithClock(clock))
	require.NoError(t, f.ctrl.Start(context.Background()))

	require.ErrorIs(t, f.ctrl.ResendOTP(context.Background()), ErrNoChallenge)
	require.NoError(t, f.ctrl.SendOTP(context.Background(), "admin@kodj.dev", "pw"))

	now = now.Add(10 * time.Second)
	err := f.ctrl.ResendOTP(context.Background())
	require.ErrorIs(t, err, authapi.ErrRateLimited)
	var ae *authapi.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 20*time.Second, ae.RetryAfter)
	assert.Equal(t, 20*time.Second, f.ctrl.RetryAfter())

	now = now.Add(25 * time.Second)
	require.NoError(t, f.ctrl.ResendOTP(context.Background()))
	require.Len(t, f.backend.sends, 2)
	assert.Equal(t, f.backend.sends[0], f.backend.sends[1], "resend repeats the password step")
}

func TestLogout_IsIdempotent(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.ctrl.Start(context.Background()))
	f.login(t)

	f.ctrl.Logout()
	f.ctrl.Logout()

	assert.Equal(t, PhaseAnonymous, f.ctrl.State().Phase)
	assert.True(t, tokenstore.Empty(f.store))
	assert.Equal(t, []string{"/", "/login"}, f.nav.list(), "login page is navigated to once")
}

func TestExpireSession(t *testing.T) {
	t.Run("silent", func(t *testing.T) {
		f := newFixture(t, Config{})
		require.NoError(t, f.ctrl.Start(context.Background()))
		f.login(t)

		f.ctrl.ExpireSession(authapi.ErrRefreshFailed)
		st := f.ctrl.State()
		assert.Equal(t, PhaseAnonymous, st.Phase)
		assert.Nil(t, st.Err)
		assert.True(t, tokenstore.Empty(f.store))
		assert.Equal(t, []string{"/", "/login"}, f.nav.list())
	})

	t.Run("denied is shown", func(t *testing.T) {
		f := newFixture(t, Config{})
		require.NoError(t, f.ctrl.Start(context.Background()))
		f.login(t)

		f.ctrl.ExpireSession(authapi.ErrAuthorizationDenied)
		assert.Equal(t, authapi.MsgAuthorizationDenied, f.ctrl.State().ErrMessage())
	})
}

func TestSubscribe_ReentrantCallbacksKeepOrder(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.store.SetPair("a0", "r0"))

	var seen []Phase
	unsubscribe := f.ctrl.Subscribe(func(s State) {
		seen = append(seen, s.Phase)
		if s.Phase == PhaseAuthenticated {
			// Calling back into the controller from a callback must not deadlock.
			assert.Equal(t, PhaseAuthenticated, f.ctrl.State().Phase)
			f.ctrl.Logout()
		}
	})
	require.NoError(t, f.ctrl.Start(context.Background()))
	unsubscribe()
	unsubscribe()

	assert.Equal(t, []Phase{PhaseValidating, PhaseAuthenticated, PhaseAnonymous}, seen)
	f.ctrl.Logout()
	assert.Len(t, seen, 3)
}

func TestRenewal_RefreshesPeriodically(t *testing.T) {
	f := newFixture(t, Config{RenewInterval: 20 * time.Millisecond})
	require.NoError(t, f.ctrl.Start(context.Background()))
	f.login(t)

	require.Eventually(t, func() bool { return f.refresher.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.ctrl.State().Authenticated())
}

func TestRenewal_TransientFailureKeepsSession(t *testing.T) {
	f := newFixture(t, Config{RenewInterval: 20 * time.Millisecond})
	require.NoError(t, f.ctrl.Start(context.Background()))
	f.login(t)
	f.refresher.setErr(&authapi.Error{Kind: authapi.KindRefreshFailed, Message: authapi.MsgSessionExpired})

	require.Eventually(t, func() bool { return f.refresher.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.ctrl.State().Authenticated())
	assert.False(t, tokenstore.Empty(f.store))
}

func TestRenewal_RejectionExpiresSession(t *testing.T) {
	f := newFixture(t, Config{RenewInterval: 20 * time.Millisecond})
	require.NoError(t, f.ctrl.Start(context.Background()))
	f.login(t)
	f.refresher.setErr(&authapi.Error{Kind: authapi.KindRefreshFailed, Status: http.StatusUnauthorized, Message: authapi.MsgSessionExpired})

	require.Eventually(t, func() bool { return f.ctrl.State().Phase == PhaseAnonymous }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, tokenstore.Empty(f.store))
	assert.Nil(t, f.ctrl.State().Err)
}

func TestRenewal_StopsOnLogout(t *testing.T) {
	f := newFixture(t, Config{RenewInterval: 20 * time.Millisecond})
	require.NoError(t, f.ctrl.Start(context.Background()))
	f.login(t)
	f.ctrl.Logout()

	calls := f.refresher.calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, f.refresher.calls.Load())
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "7", "exp": exp.Unix()}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestNextRenewal(t *testing.T) {
	now := time.Now()
	f := newFixture(t, Config{RenewInterval: 15 * time.Minute, RenewSkew: time.Minute})

	assert.Equal(t, 15*time.Minute, f.ctrl.nextRenewal(now), "no credential")

	require.NoError(t, f.store.Set(tokenstore.AccessToken, "opaque"))
	assert.Equal(t, 15*time.Minute, f.ctrl.nextRenewal(now), "opaque credential")

	require.NoError(t, f.store.Set(tokenstore.AccessToken, signedToken(t, now.Add(time.Hour))))
	assert.Equal(t, 15*time.Minute, f.ctrl.nextRenewal(now), "expires after the interval")

	require.NoError(t, f.store.Set(tokenstore.AccessToken, signedToken(t, now.Add(5*time.Minute))))
	d := f.ctrl.nextRenewal(now)
	assert.InDelta(t, (4 * time.Minute).Seconds(), d.Seconds(), 1, "expires within the interval")

	require.NoError(t, f.store.Set(tokenstore.AccessToken, signedToken(t, now.Add(-time.Hour))))
	assert.Equal(t, minRenewDelay, f.ctrl.nextRenewal(now), "already expired")
}

func TestNextRenewal_ShortLivedCredential(t *testing.T) {
	now := time.Now()
	f := newFixture(t, Config{RenewInterval: 15 * time.Minute, RenewSkew: time.Minute})

	require.NoError(t, f.store.Set(tokenstore.AccessToken, signedToken(t, now.Add(40*time.Second))))
	assert.InDelta(t, (20 * time.Second).Seconds(), f.ctrl.nextRenewal(now).Seconds(), 1, "lifetime shorter than the skew")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Add(-10 * time.Second).Unix(),
		"exp": now.Add(50 * time.Second).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	require.NoError(t, f.store.Set(tokenstore.AccessToken, token))
	assert.InDelta(t, (20 * time.Second).Seconds(), f.ctrl.nextRenewal(now).Seconds(), 1, "renews at half the issued lifetime")
}

func TestNormalizeOTP(t *testing.T) {
	assert.Equal(t, "123456", NormalizeOTP(" 123-456 "))
	assert.True(t, ValidOTP("000000"))
	assert.False(t, ValidOTP("１２３４５６"))
}

// TestExpiredSessionThroughInterceptor drives a real interceptor chain: a
// rejected access credential whose refresh is also rejected ends the
// session and sends the operator to the login page.
func TestExpiredSessionThroughInterceptor(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token/refresh":
			refreshes.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		case "/auth/me":
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"data":{"id":7,"email":"admin@kodj.dev","role":"ADMIN","oauthProvider":"LOCAL"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	store := tokenstore.NewMemory()
	refresher := authapi.NewRefresher(store, authapi.RefreshConfig{URL: srv.URL + "/auth/token/refresh"})
	ic := transport.New(store, refresher)
	client := authapi.NewClient(authapi.Endpoints{BaseURL: srv.URL, PrincipalPath: "/auth/me"},
		authapi.WithAuthorizedClient(ic.Client(5*time.Second)))

	nav := &recorder{}
	ctrl := New(store, client, refresher, Config{}, WithNavigator(nav), WithLogger(logging.Discard()))
	t.Cleanup(ctrl.Close)
	ic.SetSessionExpiredHook(ctrl.ExpireSession)

	require.NoError(t, store.SetPair("good", "r0"))
	require.NoError(t, ctrl.Start(context.Background()))
	require.True(t, ctrl.State().Authenticated())

	require.NoError(t, store.Set(tokenstore.AccessToken, "stale"))
	_, err := client.Principal(context.Background())
	require.Error(t, err)

	assert.Equal(t, PhaseAnonymous, ctrl.State().Phase)
	assert.Nil(t, ctrl.State().Err)
	assert.True(t, tokenstore.Empty(store))
	assert.EqualValues(t, 1, refreshes.Load())
	assert.Equal(t, []string{"/login"}, nav.list())
}
