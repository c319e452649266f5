// Package adminapi provides typed clients for the KODJ back-office
// resources. Every call goes through the caller's HTTP client, which is
// expected to be the session's authorized client so that credentials are
// attached and renewed transparently.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/kodj/kodjadmin/internal/logging"
)

const maxResponseBytes = 8 << 20

// Envelope is the backend's standard response wrapper.
type Envelope[T any] struct {
	Message    string `json:"message"`
	Data       T      `json:"data"`
	StatusCode int    `json:"statusCode"`
	Error      bool   `json:"error,omitempty"`
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("admin api: status %d", e.Status)
	}
	return fmt.Sprintf("admin api: status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// File is an upload attached to a multipart request.
type File struct {
	Name    string
	Content io.Reader
}

// Client is the shared request plumbing for the resource clients.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	Meetups    *MeetupService
	News       *NewsService
	Jobs       *JobService
	Statistics *StatisticsService
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client rooted at baseURL.
func New(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger).With("component", "adminapi")
	c.Meetups = &MeetupService{c: c}
	c.News = &NewsService{c: c}
	c.Jobs = &JobService{c: c}
	c.Statistics = &StatisticsService{c: c}
	return c
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// doJSON sends payload as JSON, or no body when payload is nil, and decodes
// the envelope's data into out.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
		contentType = "application/json"
	}
	return c.do(ctx, method, c.url(path, query), body, contentType, out)
}

// doForm sends the JSON fields of form as multipart form values, plus an
// optional file under fileField.
func (c *Client) doForm(ctx context.Context, method, path string, form any, fileField string, file *File, out any) error {
	fields, err := formFields(form)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range sortedKeys(fields) {
		if err := mw.WriteField(name, fields[name]); err != nil {
			return fmt.Errorf("writing form field %s: %w", name, err)
		}
	}
	if file != nil && file.Content != nil {
		fw, err := mw.CreateFormFile(fileField, file.Name)
		if err != nil {
			return fmt.Errorf("creating form file: %w", err)
		}
		if _, err := io.Copy(fw, file.Content); err != nil {
			return fmt.Errorf("copying %s: %w", file.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing form: %w", err)
	}
	return c.do(ctx, method, c.url(path, nil), &buf, mw.FormDataContentType(), out)
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		c.logger.Debug("admin api error", "method", method, "path", req.URL.Path, "status", resp.StatusCode)
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	env := Envelope[json.RawMessage]{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

// errorMessage extracts the backend's message from an error body, which
// carries it either at the top level or under data.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Data    struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	if body.Data.Message != "" {
		return body.Data.Message
	}
	return body.Message
}

// formFields flattens the JSON representation of v into string values.
// Fields omitted by their json tags are left out of the form.
func formFields(v any) (map[string]string, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding form: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("encoding form: %w", err)
	}
	fields := make(map[string]string, len(m))
	for k, val := range m {
		if val == nil {
			continue
		}
		fields[k] = fmt.Sprint(val)
	}
	return fields, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pathf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
