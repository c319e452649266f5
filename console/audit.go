package console

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kodj/kodjadmin/internal/uuid"
)

// AuditEvent identifies a security-relevant action.
type AuditEvent string

const (
	AuditLoginOTPSent     AuditEvent = "login_otp_sent"
	AuditLoginSuccess     AuditEvent = "login_success"
	AuditLoginFailure     AuditEvent = "login_failure"
	AuditLoginRateLimited AuditEvent = "login_rate_limited"
	AuditLogout           AuditEvent = "logout"
	AuditSessionExpired   AuditEvent = "session_expired"
	AuditAccessDenied     AuditEvent = "access_denied"
)

// auditLogger writes structured audit entries and counts them.
type auditLogger struct {
	logger *slog.Logger
	events *prometheus.CounterVec
}

func newAuditLogger(logger *slog.Logger, reg prometheus.Registerer) *auditLogger {
	al := &auditLogger{logger: logger.With("component", "audit")}
	if reg != nil {
		al.events = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kodjadmin_audit_events_total",
			Help: "Security audit events recorded by the console.",
		}, []string{"event"})
	}
	return al
}

func (al *auditLogger) record(ctx context.Context, event AuditEvent, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("id", uuid.New()),
		slog.String("event", string(event)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", append(base, attrs...)...)
	if al.events != nil {
		al.events.WithLabelValues(string(event)).Inc()
	}
}

// log records an event caused by an HTTP request.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	attrs = append([]slog.Attr{slog.String("remote_addr", r.RemoteAddr)}, attrs...)
	al.record(r.Context(), event, attrs...)
}

// logFailure records a failed attempt with its reason.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	al.log(event, r, append([]slog.Attr{slog.String("reason", reason)}, extra...)...)
}
