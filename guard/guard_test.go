package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodj/kodjadmin/internal/logging"
	"github.com/kodj/kodjadmin/session"
	"github.com/kodj/kodjadmin/tokenstore"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		phase    session.Phase
		location string
		want     Decision
	}{
		{"uninitialized never redirects", session.PhaseUninitialized, "/meetups", Decision{Action: Loading}},
		{"validating never redirects", session.PhaseValidating, "/login", Decision{Action: Loading}},
		{"anonymous on private page", session.PhaseAnonymous, "/meetups", Decision{Action: Redirect, Location: "/login"}},
		{"anonymous on home", session.PhaseAnonymous, "/", Decision{Action: Redirect, Location: "/login"}},
		{"anonymous on login", session.PhaseAnonymous, "/login", Decision{Action: Render}},
		{"anonymous on login with slash", session.PhaseAnonymous, "/login/", Decision{Action: Render}},
		{"anonymous on register", session.PhaseAnonymous, "/register", Decision{Action: Render}},
		{"anonymous on forgot password", session.PhaseAnonymous, "/forgot-password?email=x", Decision{Action: Render}},
		{"anonymous on login subpath", session.PhaseAnonymous, "/login/verify", Decision{Action: Redirect, Location: "/login"}},
		{"authenticated on login", session.PhaseAuthenticated, "/login", Decision{Action: Redirect, Location: "/"}},
		{"authenticated on private page", session.PhaseAuthenticated, "/news/3", Decision{Action: Render}},
		{"authenticated on register", session.PhaseAuthenticated, "/register", Decision{Action: Render}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.phase, tt.location))
		})
	}
}

func TestClean(t *testing.T) {
	assert.Equal(t, "/", Clean(""))
	assert.Equal(t, "/", Clean("/"))
	assert.Equal(t, "/login", Clean("login"))
	assert.Equal(t, "/login", Clean("/login//"))
	assert.Equal(t, "/news", Clean("/news/3/..#top"))
}

func TestNew_CustomPaths(t *testing.T) {
	g := New(Paths{Login: "/signin/", Home: "/dashboard"})
	assert.Equal(t, Decision{Action: Redirect, Location: "/signin"}, g.Decide(session.PhaseAnonymous, "/"))
	assert.Equal(t, Decision{Action: Render}, g.Decide(session.PhaseAnonymous, "/signin"))
	assert.Equal(t, Decision{Action: Redirect, Location: "/dashboard"}, g.Decide(session.PhaseAuthenticated, "/signin"))
}

type fakeSource struct {
	mu    sync.Mutex
	state session.State
	subs  []func(session.State)
}

func (s *fakeSource) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSource) Subscribe(fn func(session.State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.subs)
	s.subs = append(s.subs, fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs[i] = nil
	}
}

func (s *fakeSource) set(phase session.Phase) {
	s.mu.Lock()
	s.state = session.State{Phase: phase}
	subs := append(([]func(session.State))(nil), s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(session.State{Phase: phase})
		}
	}
}

func TestMiddleware(t *testing.T) {
	src := &fakeSource{}
	h := Middleware(src)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	serve := func(method, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
		return rec
	}

	rec := serve(http.MethodGet, "/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"status":"loading"}`, rec.Body.String())

	src.set(session.PhaseAnonymous)
	rec = serve(http.MethodPost, "/logout")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, http.StatusTeapot, serve(http.MethodGet, "/login").Code)

	src.set(session.PhaseAuthenticated)
	rec = serve(http.MethodGet, "/login")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, http.StatusTeapot, serve(http.MethodGet, "/meetups").Code)
}

type navRecorder struct {
	mu       sync.Mutex
	location string
	paths    []string
}

func (n *navRecorder) Navigate(p string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = p
	n.paths = append(n.paths, p)
}

func (n *navRecorder) current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func TestWatch(t *testing.T) {
	src := &fakeSource{}
	nav := &navRecorder{location: "/meetups"}
	stop := Watch(src, nav.current, nav)

	assert.Empty(t, nav.paths, "no redirect while loading")

	src.set(session.PhaseValidating)
	src.set(session.PhaseAnonymous)
	require.Equal(t, []string{"/login"}, nav.paths)

	src.set(session.PhaseAnonymous)
	assert.Len(t, nav.paths, 1, "same phase is not re-evaluated")

	src.set(session.PhaseAuthenticated)
	assert.Equal(t, []string{"/login", "/"}, nav.paths)

	stop()
	src.set(session.PhaseAnonymous)
	assert.Len(t, nav.paths, 2)
}

func TestWatch_FollowsController(t *testing.T) {
	ctrl := session.New(tokenstore.NewMemory(), nil, nil, session.Config{}, session.WithLogger(logging.Discard()))
	t.Cleanup(ctrl.Close)
	nav := &navRecorder{location: "/news"}
	stop := Watch(ctrl, nav.current, nav)
	defer stop()

	// An empty store settles to anonymous without calling the backend.
	require.NoError(t, ctrl.Start(context.Background()))
	assert.Equal(t, []string{"/login"}, nav.paths)
}
