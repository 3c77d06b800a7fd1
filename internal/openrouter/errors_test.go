package openrouter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusRequestTimeout, KindTransient},
		{http.StatusConflict, KindTransient},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusBadRequest, KindValidation},
		{http.StatusPaymentRequired, KindValidation},
		{http.StatusUnprocessableEntity, KindValidation},
		{http.StatusOK, KindUnknown},
	}
	for _, tt := range tests {
		if got := kindForStatus(tt.status); got != tt.want {
			t.Errorf("kindForStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestClassify(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		ctx    context.Context
		err    error
		kind   Kind
		status int
	}{
		{"canceled", canceled, context.Canceled, KindCanceled, 0},
		{"client timeout", context.Background(), fmt.Errorf("post: %w", context.DeadlineExceeded), KindTransient, 0},
		{"network", context.Background(), &net.OpError{Op: "dial", Err: timeoutError{}}, KindTransient, 0},
		{"eof", context.Background(), fmt.Errorf("read: %w", io.ErrUnexpectedEOF), KindTransient, 0},
		{"api error", context.Background(), &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, KindRateLimit, 429},
		{"request error", context.Background(), &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, KindTransient, 502},
		{"already classified", context.Background(), fmt.Errorf("wrap: %w", &Error{Kind: KindAuth}), KindAuth, 0},
		{"other", context.Background(), errors.New("boom"), KindUnknown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := classify(tt.ctx, tt.err, testKey)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.status, e.Status)
		})
	}
}

func TestClassify_RedactsKey(t *testing.T) {
	err := fmt.Errorf("dial https://user:%s@openrouter.ai: connection refused", testKey)
	e := classify(context.Background(), err, testKey)

	assert.NotContains(t, e.Error(), testKey)
	assert.NotContains(t, e.Unwrap().Error(), testKey)
}

func TestError(t *testing.T) {
	e := &Error{Kind: KindRateLimit, Status: 429, Message: "slow down", RetryAfter: time.Second}
	assert.Equal(t, "openrouter rate limit error (HTTP 429): slow down", e.Error())
	assert.True(t, e.Retryable())

	wrapped := fmt.Errorf("summarize: %w", &Error{Kind: KindAuth, Message: "bad key"})
	assert.True(t, IsAuth(wrapped))
	assert.Equal(t, KindAuth, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, (&Error{Kind: KindValidation}).Retryable())
}
