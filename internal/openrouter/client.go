// Package openrouter talks to the OpenRouter chat completion and model
// catalog endpoints.
package openrouter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/QuesmaOrg/codex-summarize-session/internal/log"
	"github.com/cenkalti/backoff/v5"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultMaxAttempts = 4
	defaultTimeout     = 5 * time.Minute
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string
	Content string
}

// Request is a single chat completion request.
type Request struct {
	Model           string
	Messages        []Message
	Temperature     float32
	MaxTokens       int
	ReasoningEffort string
}

// Usage holds token counts reported by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int
	TotalTokens      int
}

// Completion is a successful response. Reasoning is kept apart from Text.
type Completion struct {
	ID           string
	Model        string
	Text         string
	Reasoning    string
	FinishReason string
	Usage        Usage
	Attempts     int
}

// Client issues chat completions with bounded retries.
type Client struct {
	api         *openai.Client
	apiKey      string
	maxAttempts uint
	newBackOff  func() backoff.BackOff
	httpClient  *http.Client
	referer     string
	title       string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxAttempts bounds the number of tries per request.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = uint(n)
		}
	}
}

// WithBackOff replaces the delay policy between attempts.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = factory }
}

// WithAppInfo sets the HTTP-Referer and X-Title attribution headers.
func WithAppInfo(referer, title string) Option {
	return func(c *Client) {
		c.referer = referer
		c.title = title
	}
}

// DefaultBackOff is capped exponential backoff with jitter: 1s doubling to
// 16s, each delay randomized by ±50%.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 16 * time.Second
	b.RandomizationFactor = 0.5
	return b
}

// NewClient creates a client for baseURL (DefaultBaseURL when empty).
// A missing key is an auth error.
func NewClient(apiKey, baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &Error{Kind: KindAuth, Message: "no OpenRouter API key configured"}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		apiKey:      apiKey,
		maxAttempts: DefaultMaxAttempts,
		newBackOff:  DefaultBackOff,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := *c.httpClient
	hc.Transport = &appTransport{base: base, referer: c.referer, title: c.title}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &hc
	c.api = openai.NewClientWithConfig(cfg)
	return c, nil
}

// Complete sends req, retrying rate-limit and transient failures. The last
// classified error is returned once attempts are exhausted.
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:           req.Model,
		Temperature:     req.Temperature,
		MaxTokens:       req.MaxTokens,
		ReasoningEffort: req.ReasoningEffort,
	}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	attempts := 0
	op := func() (*Completion, error) {
		attempts++
		comp, err := c.completeOnce(ctx, chatReq)
		if err == nil {
			comp.Attempts = attempts
			return comp, nil
		}
		if !err.Retryable() {
			return nil, backoff.Permanent(err)
		}
		log.Warn().Str("model", req.Model).Int("attempt", attempts).Str("kind", err.Kind.String()).Int("status", err.Status).Msg("completion attempt failed")
		return nil, err
	}

	comp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxAttempts),
	)
	if err != nil {
		return nil, c.finalError(ctx, err)
	}
	return comp, nil
}

// finalError unwraps the retry loop's result into a classified error.
func (c *Client) finalError(ctx context.Context, err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return classify(ctx, err, c.apiKey)
}

func (c *Client) completeOnce(ctx context.Context, req openai.ChatCompletionRequest) (*Completion, *Error) {
	if ctx.Err() != nil {
		return nil, &Error{Kind: KindCanceled, Message: "request canceled", Err: ctx.Err()}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classify(ctx, err, c.apiKey)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindTransient, Message: "response contained no choices"}
	}

	choice := resp.Choices[0]
	comp := &Completion{
		ID:           resp.ID,
		Model:        resp.Model,
		Text:         choice.Message.Content,
		Reasoning:    choice.Message.ReasoningContent,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if d := resp.Usage.CompletionTokensDetails; d != nil {
		comp.Usage.ReasoningTokens = d.ReasoningTokens
	}
	if comp.Model == "" {
		comp.Model = req.Model
	}
	return comp, nil
}

func validateRequest(req Request) error {
	switch {
	case strings.TrimSpace(req.Model) == "":
		return &Error{Kind: KindValidation, Message: "model is required"}
	case len(req.Messages) == 0:
		return &Error{Kind: KindValidation, Message: "at least one message is required"}
	case req.Temperature < 0 || req.Temperature > 2:
		return &Error{Kind: KindValidation, Message: "temperature must be between 0 and 2"}
	case req.MaxTokens < 0:
		return &Error{Kind: KindValidation, Message: "max tokens must not be negative"}
	}
	switch req.ReasoningEffort {
	case "", "minimal", "low", "medium", "high":
	default:
		return &Error{Kind: KindValidation, Message: "unsupported reasoning effort " + req.ReasoningEffort}
	}
	return nil
}
