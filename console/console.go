// Package console serves the local admin console: the login and home
// surfaces of the session manager behind the route guard, plus an
// authenticated pass-through to the backend API.
package console

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-openapi/runtime/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kodj/kodjadmin/authapi"
	"github.com/kodj/kodjadmin/guard"
	"github.com/kodj/kodjadmin/internal/logging"
	"github.com/kodj/kodjadmin/session"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Session is the part of the session controller the console drives.
type Session interface {
	State() session.State
	Subscribe(fn func(session.State)) (unsubscribe func())
	SendOTP(ctx context.Context, email, password string) error
	VerifyOTP(ctx context.Context, code string) error
	ResendOTP(ctx context.Context) error
	RetryAfter() time.Duration
	Logout()
}

// Server holds the console's dependencies.
type Server struct {
	sess        Session
	guard       *guard.Guard
	location    *Location
	proxy       http.Handler
	proxyTarget *url.URL
	proxyRT     http.RoundTripper
	gatherer    prometheus.Gatherer
	registerer  prometheus.Registerer
	audit       *auditLogger
	otpLimiter  *attemptLimiter
	ipLimiter   *attemptLimiter
	logger      *slog.Logger

	loggingOut atomic.Bool
	stopOnce   sync.Once
	stops      []func()
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger used for request and audit logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry exposes reg at /metrics and registers the console's own
// collectors on it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.gatherer = reg
		s.registerer = reg
	}
}

// WithAPIProxy enables /api/* forwarding to target through rt.
func WithAPIProxy(target *url.URL, rt http.RoundTripper) Option {
	return func(s *Server) {
		s.proxyTarget = target
		s.proxyRT = rt
	}
}

// WithLocation shares a navigation location with the session controller.
func WithLocation(l *Location) Option {
	return func(s *Server) {
		s.location = l
	}
}

// ConsolePaths returns the guard configuration of the console. The OTP
// steps of the login surface are public along with the login page itself.
func ConsolePaths() guard.Paths {
	p := guard.DefaultPaths()
	p.Public = append(p.Public, "/login/verify", "/login/resend")
	return p
}

// New creates a Server for sess. It watches the session for audit events
// and guard redirects until Close.
func New(sess Session, opts ...Option) *Server {
	s := &Server{
		sess:       sess,
		guard:      guard.New(ConsolePaths()),
		otpLimiter: newAttemptLimiter(otpMaxFailures, otpBaseLockout, otpMaxLockout),
		ipLimiter:  newAttemptLimiter(ipMaxFailures, ipBaseLockout, ipMaxLockout),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDefault(s.logger).With("component", "console")
	if s.proxyTarget != nil {
		s.proxy = newAPIProxy(s.proxyTarget, s.proxyRT, s.logger)
	}
	if s.location == nil {
		s.location = NewLocation(s.logger)
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.audit = newAuditLogger(s.logger, s.registerer)

	s.stops = append(s.stops,
		sess.Subscribe(s.auditTransition()),
		s.guard.Watch(sess, s.location.Current, s.location),
	)
	return s
}

// Close stops watching the session.
func (s *Server) Close() {
	s.stopOnce.Do(func() {
		for _, stop := range s.stops {
			stop()
		}
	})
}

// Location returns the console's navigation location.
func (s *Server) Location() *Location {
	return s.location
}

// auditTransition records a forced end of an authenticated session. Logouts
// through the console are recorded by the handler.
func (s *Server) auditTransition() func(session.State) {
	var mu sync.Mutex
	last := session.PhaseUninitialized
	return func(st session.State) {
		mu.Lock()
		prev := last
		last = st.Phase
		mu.Unlock()
		if prev != session.PhaseAuthenticated || st.Phase != session.PhaseAnonymous {
			return
		}
		ctx := context.Background()
		switch {
		case authapi.KindOf(st.Err) == authapi.KindAuthorizationDenied:
			s.audit.record(ctx, AuditAccessDenied, slog.String("reason", st.ErrMessage()))
		case !s.loggingOut.Load():
			s.audit.record(ctx, AuditSessionExpired)
		}
	}
}

// Router returns a chi.Router with all console routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))
	r.Get("/metrics", s.metrics)
	r.Get("/session", s.SessionState)

	r.Group(func(r chi.Router) {
		r.Use(s.track)
		r.Use(s.guard.Middleware(s.sess))

		r.Get("/login", s.LoginState)
		r.Post("/login", s.SendOTP)
		r.Post("/login/verify", s.VerifyOTP)
		r.Post("/login/resend", s.ResendOTP)
		r.Post("/logout", s.Logout)
		r.Get("/", s.Home)
		r.Handle("/api/*", http.HandlerFunc(s.api))
	})
	return r
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Server) api(w http.ResponseWriter, r *http.Request) {
	if s.proxy == nil {
		writeError(w, http.StatusNotFound, "api pass-through is not configured")
		return
	}
	s.proxy.ServeHTTP(w, r)
}

// track records page visits as the current location. It runs before the
// guard so that a redirect is evaluated against where the operator is.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && s.location != nil {
			s.location.visit(r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}
