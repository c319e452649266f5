// Package authapi talks to the backend's authentication endpoints: the
// two-step login, principal resolution and credential refresh.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kodj/kodjadmin/internal/logging"
	"github.com/kodj/kodjadmin/internal/util"
)

const maxResponseBytes = 1 << 20

// Endpoints locates the authentication routes under a base URL.
type Endpoints struct {
	BaseURL       string
	LoginPath     string
	VerifyOTPPath string
	RefreshPath   string
	PrincipalPath string
}

func (e Endpoints) url(path string) string {
	return strings.TrimRight(e.BaseURL, "/") + path
}

// Client calls the login, OTP and principal endpoints.
type Client struct {
	endpoints Endpoints
	public    *http.Client
	authed    *http.Client
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for unauthenticated calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.public = c
	}
}

// WithAuthorizedClient sets the client used for calls that need the access
// credential. It is expected to carry the interceptor chain.
func WithAuthorizedClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.authed = c
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// NewClient creates a Client for the given endpoints.
func NewClient(endpoints Endpoints, opts ...Option) *Client {
	c := &Client{endpoints: endpoints}
	for _, opt := range opts {
		opt(c)
	}
	if c.public == nil {
		c.public = &http.Client{Timeout: 30 * time.Second}
	}
	if c.authed == nil {
		c.authed = c.public
	}
	c.logger = logging.OrDefault(c.logger).With("component", "authapi")
	return c
}

// SendOTP submits the password step. On success the backend delivers a
// one-time code out of band.
func (c *Client) SendOTP(ctx context.Context, req LoginRequest) error {
	rep, err := doJSON(ctx, c.public, http.MethodPost, c.endpoints.url(c.endpoints.LoginPath), req, "")
	if err != nil {
		return classifyTransport(err)
	}
	if !rep.ok() {
		c.logger.Info("login rejected", "status", rep.status, "email", util.MaskEmail(req.Email))
		return rep.classify()
	}
	return nil
}

// VerifyOTP exchanges the one-time code for a credential pair.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (TokenPair, error) {
	rep, err := doJSON(ctx, c.public, http.MethodPost, c.endpoints.url(c.endpoints.VerifyOTPPath), verifyOTPRequest{Email: email, OTP: otp}, "")
	if err != nil {
		return TokenPair{}, classifyTransport(err)
	}
	if !rep.ok() {
		c.logger.Info("otp rejected", "status", rep.status, "email", util.MaskEmail(email))
		return TokenPair{}, rep.classify()
	}
	pair, err := decodeTokenPair(rep.body, ShapeAuto)
	if err != nil || pair.RefreshToken == "" {
		if err == nil {
			err = fmt.Errorf("token response has no refresh token")
		}
		return TokenPair{}, &Error{Kind: KindServerError, Status: rep.status, Message: MsgServerError, Err: err}
	}
	return pair, nil
}

// Principal resolves the user behind the current access credential. The
// call goes through the authorized client, so an expired credential is
// refreshed and the call replayed once before an error is returned.
func (c *Client) Principal(ctx context.Context) (User, error) {
	rep, err := doJSON(ctx, c.authed, http.MethodGet, c.endpoints.url(c.endpoints.PrincipalPath), nil, "")
	if err != nil {
		return User{}, classifyTransport(err)
	}
	if !rep.ok() {
		return User{}, rep.classify()
	}
	var u User
	if err := decodeData(rep.body, &u); err != nil {
		return User{}, &Error{Kind: KindServerError, Status: rep.status, Message: MsgServerError, Err: fmt.Errorf("decoding principal: %w", err)}
	}
	return u, nil
}

type reply struct {
	status int
	header http.Header
	body   []byte
}

func (r reply) ok() bool { return r.status/100 == 2 }

func (r reply) classify() *Error {
	return classifyResponse(&http.Response{StatusCode: r.status, Header: r.header}, r.body)
}

// doJSON sends payload (if any) as JSON and reads at most maxResponseBytes
// of the answer. A non-empty bearer is sent as the Authorization header.
func doJSON(ctx context.Context, client *http.Client, method, url string, payload any, bearer string) (reply, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return reply{}, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return reply{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return reply{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return reply{}, fmt.Errorf("reading response: %w", err)
	}
	return reply{status: resp.StatusCode, header: resp.Header, body: data}, nil
}
