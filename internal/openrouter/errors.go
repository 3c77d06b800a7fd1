package openrouter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/QuesmaOrg/codex-summarize-session/internal/scrubber"
	"github.com/sashabaranov/go-openai"
)

// Kind classifies a remote failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindRateLimit
	KindTransient
	KindValidation
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate limit"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is a classified failure from the completion or catalog endpoints.
// Message never contains the API key.
type Error struct {
	Kind       Kind
	Status     int // HTTP status, 0 when no response was received
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("openrouter %s error (HTTP %d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("openrouter %s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the request may succeed if sent again.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindTransient
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindAuth
}

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// kindForStatus maps an HTTP status to a failure kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout,
		status == http.StatusConflict,
		status == http.StatusTooEarly,
		status >= 500:
		return KindTransient
	case status == http.StatusPaymentRequired, status >= 400:
		return KindValidation
	default:
		return KindUnknown
	}
}

// classify converts an error from the HTTP layer into an *Error with any
// occurrence of apiKey removed from the message. Context errors only count
// as cancellation when ctx itself is done; an HTTP client timeout is transient.
func classify(ctx context.Context, err error, apiKey string) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	var (
		apiErr *openai.APIError
		reqErr *openai.RequestError
		netErr net.Error
	)

	e := &Error{Err: err}
	switch {
	case ctx.Err() != nil:
		e.Kind = KindCanceled
		e.Message = "request canceled"
	case errors.As(err, &apiErr):
		e.Status = apiErr.HTTPStatusCode
		e.Kind = kindForStatus(apiErr.HTTPStatusCode)
		e.Message = apiErr.Message
	case errors.As(err, &reqErr):
		e.Status = reqErr.HTTPStatusCode
		e.Kind = kindForStatus(reqErr.HTTPStatusCode)
		e.Message = reqErr.Error()
	case errors.As(err, &netErr), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		e.Kind = KindTransient
		e.Message = err.Error()
	default:
		e.Kind = KindUnknown
		e.Message = err.Error()
	}

	e.Message = scrubber.RedactSecret(e.Message, apiKey)
	if apiKey != "" && strings.Contains(err.Error(), apiKey) {
		e.Err = errors.New(e.Message)
	}
	return e
}
