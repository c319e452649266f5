package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		err     error
		kind    Kind
		message string
	}{
		{"bad request", 400, `{"message":"wrong password for a@b.com"}`, nil, KindBadCredentials, MsgBadCredentials},
		{"unauthorized", 401, ``, nil, KindBadCredentials, MsgBadCredentials},
		{"forbidden", 403, ``, nil, KindBadCredentials, MsgBadCredentials},
		{"not found", 404, `{"message":"user a@b.com missing"}`, nil, KindNotFound, MsgNotFound},
		{"rate limited", 429, ``, nil, KindRateLimited, MsgRateLimited},
		{"server error with message", 500, `{"message":"mail relay down"}`, nil, KindServerError, "mail relay down"},
		{"server error without message", 503, `<html>`, nil, KindServerError, MsgServerError},
		{"transport", 0, ``, errors.New("connection refused"), KindNetworkError, MsgNetworkError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Classify(tt.status, []byte(tt.body), tt.err)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, tt.message, UserMessage(e))
		})
	}
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("validating: %w", &Error{Kind: KindRefreshFailed, Status: 403, Message: MsgSessionExpired})

	assert.True(t, errors.Is(err, ErrRefreshFailed))
	assert.False(t, errors.Is(err, ErrNoRefreshCredential))
	assert.Equal(t, KindRefreshFailed, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&Error{Kind: KindRefreshFailed, Err: errors.New("dial tcp")}))
	assert.True(t, IsTransient(&Error{Kind: KindRefreshFailed, Status: 502}))
	assert.False(t, IsTransient(&Error{Kind: KindRefreshFailed, Status: 403}))
	assert.False(t, IsTransient(&Error{Kind: KindNoRefreshCredential}))
	assert.True(t, IsTransient(classifyTransport(context.DeadlineExceeded)))
	assert.False(t, IsTransient(errors.New("plain")))
}

func TestRetryAfter(t *testing.T) {
	resp := &http.Response{StatusCode: 429, Header: http.Header{"Retry-After": []string{"42"}}}
	e := classifyResponse(resp, nil)
	assert.Equal(t, 42*time.Second, e.RetryAfter)

	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("soon"))
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	assert.Greater(t, parseRetryAfter(future), 30*time.Second)
}

func TestUserMessageFallback(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, MsgServerError, UserMessage(errors.New("boom")))
	assert.Equal(t, MsgAuthorizationDenied, UserMessage(ErrAuthorizationDenied))
}
