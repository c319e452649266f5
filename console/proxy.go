package console

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/kodj/kodjadmin/authapi"
	"github.com/kodj/kodjadmin/transport"
)

// newAPIProxy forwards /api/* to the backend through rt, which is expected
// to be the interceptor chain. Caller-supplied credentials are dropped so
// that only the session's credential reaches the backend.
func newAPIProxy(target *url.URL, rt http.RoundTripper, logger *slog.Logger) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, "/api")
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		Transport: rt,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("api pass-through failed", "path", r.URL.Path, "error", err)
			switch {
			case errors.Is(err, transport.ErrCircuitOpen):
				writeError(w, http.StatusServiceUnavailable, authapi.MsgServerError)
			case r.Context().Err() != nil:
				writeError(w, http.StatusGatewayTimeout, authapi.MsgNetworkError)
			default:
				writeError(w, http.StatusBadGateway, authapi.MsgNetworkError)
			}
		},
	}
}
