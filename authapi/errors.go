package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a session or login failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoRefreshCredential
	KindRefreshFailed
	KindAuthorizationDenied
	KindBadCredentials
	KindNotFound
	KindRateLimited
	KindServerError
	KindNetworkError
)

func (k Kind) String() string {
	switch k {
	case KindNoRefreshCredential:
		return "no_refresh_credential"
	case KindRefreshFailed:
		return "refresh_failed"
	case KindAuthorizationDenied:
		return "authorization_denied"
	case KindBadCredentials:
		return "bad_credentials"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindNetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// User-facing messages. They are displayed verbatim.
const (
	MsgBadCredentials      = "Invalid email, password or code."
	MsgNotFound            = "No account found for this email."
	MsgRateLimited         = "Too many attempts. Please wait and try again."
	MsgServerError         = "Server error. Please try again later."
	MsgNetworkError        = "Network error. Check your connection and try again."
	MsgAuthorizationDenied = "Access denied. Admin privileges required."
	MsgSessionExpired      = "Your session has expired. Please sign in again."
)

// Error is a classified failure. Message is safe to show to the operator.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// RetryAfter is set for rate-limited failures when the backend or the
	// local cooldown says how long to wait.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d", e.Kind, e.Status)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels below work with
// errors.Is regardless of status or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNoRefreshCredential = &Error{Kind: KindNoRefreshCredential, Message: MsgSessionExpired}
	ErrRefreshFailed       = &Error{Kind: KindRefreshFailed, Message: MsgSessionExpired}
	ErrAuthorizationDenied = &Error{Kind: KindAuthorizationDenied, Message: MsgAuthorizationDenied}
	ErrBadCredentials      = &Error{Kind: KindBadCredentials, Message: MsgBadCredentials}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: MsgNotFound}
	ErrRateLimited         = &Error{Kind: KindRateLimited, Message: MsgRateLimited}
	ErrServerError         = &Error{Kind: KindServerError, Message: MsgServerError}
	ErrNetworkError        = &Error{Kind: KindNetworkError, Message: MsgNetworkError}
)

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage returns the operator-facing message for err.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return MsgServerError
}

// IsTransient reports whether err is a failure that may succeed on retry:
// a transport failure, a server error, or a refresh that failed before the
// backend answered.
func IsTransient(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindNetworkError, KindServerError:
		return true
	case KindRefreshFailed:
		return e.Status == 0 || e.Status >= 500
	}
	return false
}

// Classify maps a login, OTP or principal failure to the error taxonomy.
// A non-nil err is a transport failure; otherwise status and body describe
// the backend's answer.
func Classify(status int, body []byte, err error) *Error {
	if err != nil {
		return &Error{Kind: KindNetworkError, Message: MsgNetworkError, Err: err}
	}
	switch {
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Status: status, Message: MsgNotFound}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Status: status, Message: MsgRateLimited}
	case status >= 500:
		msg := backendMessage(body)
		if msg == "" {
			msg = MsgServerError
		}
		return &Error{Kind: KindServerError, Status: status, Message: msg}
	default:
		return &Error{Kind: KindBadCredentials, Status: status, Message: MsgBadCredentials}
	}
}

func classifyResponse(resp *http.Response, body []byte) *Error {
	e := Classify(resp.StatusCode, body, nil)
	if e.Kind == KindRateLimited {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return e
}

func classifyTransport(err error) *Error {
	e := Classify(0, nil, err)
	if errors.Is(err, context.DeadlineExceeded) {
		e.Err = fmt.Errorf("request timed out: %w", err)
	}
	return e
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
