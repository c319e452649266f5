package console

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"

	"github.com/kodj/kodjadmin/authapi"
	"github.com/kodj/kodjadmin/internal/util"
	"github.com/kodj/kodjadmin/session"
)

const maxBodyBytes = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) sessionResponse() SessionResponse {
	st := s.sess.State()
	resp := SessionResponse{
		Phase:     st.Phase.String(),
		Principal: st.Principal,
		Challenge: st.Challenge,
		Error:     st.ErrMessage(),
		Location:  s.location.Current(),
	}
	if st.Challenge != nil {
		if wait := s.sess.RetryAfter(); wait > 0 {
			resp.ResendIn = int(math.Ceil(wait.Seconds()))
		}
	}
	return resp
}

// SessionState handles GET /session. It is not guarded so that clients can
// poll while the session is still being validated.
func (s *Server) SessionState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionResponse())
}

// LoginState handles GET /login.
func (s *Server) LoginState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionResponse())
}

// SendOTP handles POST /login, the password step.
func (s *Server) SendOTP(w http.ResponseWriter, r *http.Request) {
	ip := clientAddr(r)
	if blocked, retryAfter := s.ipLimiter.check(ip); blocked {
		s.audit.logFailure(AuditLoginRateLimited, r, "ip_locked")
		writeRateLimited(w, authapi.MsgRateLimited, retryAfter)
		return
	}

	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	masked := slog.String("email", util.MaskEmail(util.NormalizeEmail(req.Email)))
	if err := s.sess.SendOTP(r.Context(), req.Email, req.Password); err != nil {
		switch authapi.KindOf(err) {
		case authapi.KindBadCredentials, authapi.KindNotFound:
			s.ipLimiter.recordFailure(ip)
		}
		s.audit.logFailure(AuditLoginFailure, r, failureReason(err), masked)
		mapError(w, err)
		return
	}
	s.audit.log(AuditLoginOTPSent, r, masked)
	writeJSON(w, http.StatusAccepted, s.sessionResponse())
}

// VerifyOTP handles POST /login/verify.
func (s *Server) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	st := s.sess.State()
	if st.Challenge == nil {
		mapError(w, session.ErrNoChallenge)
		return
	}
	key := st.Challenge.Email
	masked := slog.String("email", util.MaskEmail(key))
	if blocked, retryAfter := s.otpLimiter.check(key); blocked {
		s.audit.logFailure(AuditLoginRateLimited, r, "otp_locked", masked)
		writeRateLimited(w, authapi.MsgRateLimited, retryAfter)
		return
	}

	var req VerifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.sess.VerifyOTP(r.Context(), req.Code); err != nil {
		switch authapi.KindOf(err) {
		case authapi.KindBadCredentials:
			s.otpLimiter.recordFailure(key)
			s.audit.logFailure(AuditLoginFailure, r, failureReason(err), masked)
		case authapi.KindAuthorizationDenied:
			s.audit.logFailure(AuditAccessDenied, r, "policy", masked)
		default:
			s.audit.logFailure(AuditLoginFailure, r, failureReason(err), masked)
		}
		mapError(w, err)
		return
	}
	s.otpLimiter.recordSuccess(key)

	resp := s.sessionResponse()
	attrs := []slog.Attr{masked}
	if resp.Principal != nil {
		attrs = append(attrs, slog.Int64("principal_id", resp.Principal.ID))
	}
	s.audit.log(AuditLoginSuccess, r, attrs...)
	writeJSON(w, http.StatusOK, resp)
}

// ResendOTP handles POST /login/resend.
func (s *Server) ResendOTP(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.ResendOTP(r.Context()); err != nil {
		mapError(w, err)
		return
	}
	st := s.sess.State()
	if st.Challenge != nil {
		s.audit.log(AuditLoginOTPSent, r, slog.String("email", util.MaskEmail(st.Challenge.Email)), slog.Bool("resend", true))
	}
	writeJSON(w, http.StatusAccepted, s.sessionResponse())
}

// Logout handles POST /logout.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	s.loggingOut.Store(true)
	s.sess.Logout()
	s.loggingOut.Store(false)
	s.audit.log(AuditLogout, r)
	writeJSON(w, http.StatusOK, s.sessionResponse())
}

// Home handles GET /, the landing surface of a signed-in operator.
func (s *Server) Home(w http.ResponseWriter, r *http.Request) {
	st := s.sess.State()
	if !st.Authenticated() {
		// The phase changed between the guard and here.
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, HomeResponse{
		Principal: st.Principal,
		Greeting:  "Welcome back, " + st.Principal.DisplayName,
	})
}

func failureReason(err error) string {
	if errors.Is(err, session.ErrNoChallenge) {
		return "no_challenge"
	}
	if errors.Is(err, session.ErrBusy) {
		return "busy"
	}
	return authapi.KindOf(err).String()
}
