// Package guard decides, from the session phase and the current location,
// whether a surface may render, must wait, or must redirect. It only reads
// session state.
package guard

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/kodj/kodjadmin/session"
)

// Action is what the caller should do with the current location.
type Action int

const (
	Render Action = iota
	Loading
	Redirect
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the outcome of evaluating a location. Location is set only
// for Redirect.
type Decision struct {
	Action   Action
	Location string
}

// Paths names the surfaces the guard routes between.
type Paths struct {
	Login string
	Home  string
	// Public lists the locations anonymous visitors may open.
	Public []string
}

// DefaultPaths returns the admin panel's login, home and public surfaces.
func DefaultPaths() Paths {
	return Paths{
		Login:  "/login",
		Home:   "/",
		Public: []string{"/login", "/forgot-password", "/register"},
	}
}

// Guard evaluates locations against a fixed set of paths.
type Guard struct {
	login  string
	home   string
	public map[string]struct{}
}

// New creates a Guard. The login surface is always public.
func New(p Paths) *Guard {
	d := DefaultPaths()
	if p.Login == "" {
		p.Login = d.Login
	}
	if p.Home == "" {
		p.Home = d.Home
	}
	g := &Guard{
		login:  Clean(p.Login),
		home:   Clean(p.Home),
		public: make(map[string]struct{}, len(p.Public)+1),
	}
	g.public[g.login] = struct{}{}
	for _, pub := range p.Public {
		g.public[Clean(pub)] = struct{}{}
	}
	return g
}

var defaultGuard = New(DefaultPaths())

// Decide evaluates location with the default paths.
func Decide(phase session.Phase, location string) Decision {
	return defaultGuard.Decide(phase, location)
}

// Decide never redirects while the phase is unsettled. Anonymous visitors
// are sent to the login surface from any non-public location; signed-in
// staff are sent home from the login surface.
func (g *Guard) Decide(phase session.Phase, location string) Decision {
	location = Clean(location)
	switch phase {
	case session.PhaseAnonymous:
		if _, ok := g.public[location]; !ok {
			return Decision{Action: Redirect, Location: g.login}
		}
	case session.PhaseAuthenticated:
		if location == g.login {
			return Decision{Action: Redirect, Location: g.home}
		}
	default:
		return Decision{Action: Loading}
	}
	return Decision{Action: Render}
}

// Clean normalizes a location for comparison: query and fragment dropped,
// dot segments resolved, trailing slash ignored.
func Clean(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	if location == "" {
		return "/"
	}
	if !strings.HasPrefix(location, "/") {
		location = "/" + location
	}
	return path.Clean(location)
}

// Source exposes the session snapshot.
type Source interface {
	State() session.State
}

// Middleware applies the default guard to every request.
func Middleware(src Source) func(http.Handler) http.Handler {
	return defaultGuard.Middleware(src)
}

// Middleware returns chi-compatible middleware. Requests arriving while the
// session is unsettled get 503 with Retry-After; redirects use 303 so that a
// POST is followed by a GET.
func (g *Guard) Middleware(src Source) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Decide(src.State().Phase, r.URL.Path)
			switch d.Action {
			case Loading:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "loading"})
			case Redirect:
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Subscribable is a Source that reports changes.
type Subscribable interface {
	Source
	Subscribe(fn func(session.State)) (unsubscribe func())
}

// Navigator moves the UI to a location.
type Navigator interface {
	Navigate(path string)
}

// Watch evaluates the current location now and on every phase change, and
// navigates when the decision is a redirect. It returns a stop function.
func Watch(src Subscribable, location func() string, nav Navigator) (stop func()) {
	return defaultGuard.Watch(src, location, nav)
}

// Watch is the Guard-specific form of the package-level Watch.
func (g *Guard) Watch(src Subscribable, location func() string, nav Navigator) (stop func()) {
	var (
		mu   sync.Mutex
		last = session.Phase(-1)
	)
	evaluate := func(phase session.Phase) {
		mu.Lock()
		if phase == last {
			mu.Unlock()
			return
		}
		last = phase
		mu.Unlock()

		current := location()
		if d := g.Decide(phase, current); d.Action == Redirect && d.Location != Clean(current) {
			nav.Navigate(d.Location)
		}
	}
	stop = src.Subscribe(func(s session.State) { evaluate(s.Phase) })
	evaluate(src.State().Phase)
	return stop
}
