package console

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kodj/kodjadmin/authapi"
	"github.com/kodj/kodjadmin/session"
	"github.com/kodj/kodjadmin/transport"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeRateLimited(w http.ResponseWriter, msg string, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, msg)
}

// mapError translates session and backend failures into responses. The
// body carries only the operator-facing message.
func mapError(w http.ResponseWriter, err error) {
	var ae *authapi.Error
	switch {
	case errors.Is(err, session.ErrNoChallenge), errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, transport.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, authapi.MsgServerError)
	case errors.As(err, &ae):
		switch ae.Kind {
		case authapi.KindBadCredentials, authapi.KindNoRefreshCredential, authapi.KindRefreshFailed:
			writeError(w, http.StatusUnauthorized, authapi.UserMessage(err))
		case authapi.KindAuthorizationDenied:
			writeError(w, http.StatusForbidden, authapi.UserMessage(err))
		case authapi.KindNotFound:
			writeError(w, http.StatusNotFound, authapi.UserMessage(err))
		case authapi.KindRateLimited:
			writeRateLimited(w, authapi.UserMessage(err), ae.RetryAfter)
		case authapi.KindServerError, authapi.KindNetworkError:
			writeError(w, http.StatusBadGateway, authapi.UserMessage(err))
		default:
			writeError(w, http.StatusInternalServerError, authapi.UserMessage(err))
		}
	default:
		writeError(w, http.StatusInternalServerError, authapi.MsgServerError)
	}
}
