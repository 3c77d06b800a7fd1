package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "sk-or-v1-0123456789abcdef0123456789abcdef0123456789abcdef"

const successBody = `{
  "id": "gen-123",
  "model": "openai/gpt-4o-mini-2024-07-18",
  "choices": [{
    "index": 0,
    "message": {"role": "assistant", "content": "## Goal\nShip it.", "reasoning": "Read the log first."},
    "finish_reason": "stop"
  }],
  "usage": {"prompt_tokens": 1000, "completion_tokens": 200, "total_tokens": 1200,
            "completion_tokens_details": {"reasoning_tokens": 50}}
}`

func zeroBackOff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	opts = append([]Option{WithBackOff(zeroBackOff)}, opts...)
	c, err := NewClient(testKey, srv.URL, opts...)
	require.NoError(t, err)
	return c, &calls
}

func testRequest() Request {
	return Request{
		Model:           "openai/gpt-4o-mini",
		Messages:        []Message{{Role: "system", Content: "Summarize."}, {Role: "user", Content: "transcript"}},
		Temperature:     0.2,
		ReasoningEffort: "medium",
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"message":%q,"code":%d}}`, message, status)
}

func TestComplete_Success(t *testing.T) {
	var got map[string]any
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.com/app", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "codex-summarize-session", r.Header.Get("X-Title"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, successBody)
	}, WithAppInfo("https://example.com/app", "codex-summarize-session"))

	comp, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "gen-123", comp.ID)
	assert.Equal(t, "openai/gpt-4o-mini-2024-07-18", comp.Model)
	assert.Equal(t, "## Goal\nShip it.", comp.Text)
	assert.Equal(t, "Read the log first.", comp.Reasoning)
	assert.Equal(t, "stop", comp.FinishReason)
	assert.Equal(t, Usage{PromptTokens: 1000, CompletionTokens: 200, ReasoningTokens: 50, TotalTokens: 1200}, comp.Usage)
	assert.Equal(t, 1, comp.Attempts)

	assert.Equal(t, "openai/gpt-4o-mini", got["model"])
	assert.Equal(t, "medium", got["reasoning_effort"])
	assert.InDelta(t, 0.2, got["temperature"], 0.0001)
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestComplete_RetriesTransientAndRateLimit(t *testing.T) {
	statuses := []int{http.StatusInternalServerError, http.StatusTooManyRequests}
	var n atomic.Int32
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		i := int(n.Add(1)) - 1
		if i < len(statuses) {
			writeError(w, statuses[i], "try again")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, successBody)
	})

	comp, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, comp.Attempts)
}

func TestComplete_GivesUpAfterMaxAttempts(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, "overloaded")
	}, WithMaxAttempts(2))

	_, err := c.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindTransient, e.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, e.Status)
}

func TestComplete_PermanentFailures(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusBadRequest, KindValidation},
		{http.StatusPaymentRequired, KindValidation},
		{http.StatusNotFound, KindValidation},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tt.status, "nope")
			})

			_, err := c.Complete(context.Background(), testRequest())
			if got := KindOf(err); got != tt.kind {
				t.Errorf("KindOf(err) = %v, want %v (err: %v)", got, tt.kind, err)
			}
			if calls.Load() != 1 {
				t.Errorf("calls = %d, want 1", calls.Load())
			}
		})
	}
}

func TestComplete_ErrorNeverContainsKey(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "invalid key "+testKey)
	})

	_, err := c.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.NotContains(t, err.Error(), testKey)
	assert.Contains(t, err.Error(), "<REDACTED>")
}

func TestComplete_EmptyChoicesIsTransient(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","choices":[]}`)
	}, WithMaxAttempts(2))

	_, err := c.Complete(context.Background(), testRequest())
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestComplete_ValidationBeforeNetwork(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"no model", func(r *Request) { r.Model = " " }},
		{"no messages", func(r *Request) { r.Messages = nil }},
		{"temperature", func(r *Request) { r.Temperature = 2.5 }},
		{"max tokens", func(r *Request) { r.MaxTokens = -1 }},
		{"effort", func(r *Request) { r.ReasoningEffort = "extreme" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
			req := testRequest()
			tt.mutate(&req)

			_, err := c.Complete(context.Background(), req)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Equal(t, int32(0), calls.Load())
		})
	}
}

func TestComplete_Canceled(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, successBody)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, testRequest())
	assert.Equal(t, KindCanceled, KindOf(err))
	assert.Equal(t, int32(0), calls.Load())
}

func TestComplete_CanceledDuringBackOff(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, "overloaded")
	}, WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(30 * time.Second)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	_, err := c.Complete(ctx, testRequest())
	assert.Equal(t, KindCanceled, KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient("  ", "")
	assert.True(t, IsAuth(err))
	assert.True(t, strings.Contains(err.Error(), "API key"))
}
