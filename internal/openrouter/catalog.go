package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/QuesmaOrg/codex-summarize-session/internal/fsutil"
	"github.com/QuesmaOrg/codex-summarize-session/internal/log"
	"github.com/QuesmaOrg/codex-summarize-session/internal/scrubber"
	"github.com/cenkalti/backoff/v5"
	"github.com/maypok86/otter"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
)

// DefaultCatalogTTL is how long a fetched model list stays fresh.
const DefaultCatalogTTL = time.Hour

const catalogKey = "models"

var (
	// ErrModelNotFound is returned when the catalog has no entry for a model.
	ErrModelNotFound = errors.New("model not found in catalog")
	// ErrPricingUnavailable is returned when a model's pricing is missing or variable.
	ErrPricingUnavailable = errors.New("pricing unavailable")
)

// Pricing is USD per token, as decimal strings.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
	Request    string `json:"request,omitempty"`
}

// ModelInfo describes one model in the catalog.
type ModelInfo struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ContextLength int     `json:"context_length"`
	Pricing       Pricing `json:"pricing"`
}

// Cost is an estimated USD cost for one completion.
type Cost struct {
	Prompt     decimal.Decimal
	Completion decimal.Decimal
	Total      decimal.Decimal
}

// catalogFile is the on-disk cache format.
type catalogFile struct {
	Timestamp int64       `json:"timestamp"`
	Data      []ModelInfo `json:"data"`
}

// CatalogOptions configures a Catalog.
type CatalogOptions struct {
	BaseURL     string
	APIKey      string // Optional; the models endpoint is public
	HTTPClient  *http.Client
	Fs          afero.Fs
	CachePath   string // On-disk cache; empty disables it
	TTL         time.Duration
	MaxAttempts int
	BackOff     func() backoff.BackOff
	Now         func() time.Time
}

// Catalog serves model metadata from memory, then disk, then the network.
type Catalog struct {
	opts  CatalogOptions
	cache otter.Cache[string, []ModelInfo]
	mu    sync.Mutex // serializes refreshes
}

// NewCatalog creates a catalog with defaults filled in.
func NewCatalog(opts CatalogOptions) (*Catalog, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultCatalogTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackOff == nil {
		opts.BackOff = DefaultBackOff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cache, err := otter.MustBuilder[string, []ModelInfo](16).
		WithTTL(opts.TTL).
		Build()
	if err != nil {
		return nil, err
	}
	return &Catalog{opts: opts, cache: cache}, nil
}

// Models returns the model list, fetching it when no fresh copy is cached.
// A stale disk copy is served if the fetch fails.
func (c *Catalog) Models(ctx context.Context) ([]ModelInfo, error) {
	if models, ok := c.cache.Get(catalogKey); ok {
		return models, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if models, ok := c.cache.Get(catalogKey); ok {
		return models, nil
	}

	disk, fetchedAt, diskErr := c.readDisk()
	if diskErr == nil && c.opts.Now().Sub(fetchedAt) < c.opts.TTL {
		c.cache.Set(catalogKey, disk)
		return disk, nil
	}

	models, err := c.fetch(ctx)
	if err != nil {
		if diskErr == nil && len(disk) > 0 {
			log.Warn().Err(err).Time("fetched_at", fetchedAt).Msg("using stale model catalog")
			return disk, nil
		}
		return nil, err
	}
	c.store(models)
	return models, nil
}

// Refresh bypasses both caches.
func (c *Catalog) Refresh(ctx context.Context) ([]ModelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	models, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.store(models)
	return models, nil
}

// Lookup returns the entry for id.
func (c *Catalog) Lookup(ctx context.Context, id string) (ModelInfo, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return ModelInfo{}, err
	}
	for _, m := range models {
		if m.ID == id {
			return m, nil
		}
	}
	return ModelInfo{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
}

// EstimateCost prices usage with the catalog entry for model.
func (c *Catalog) EstimateCost(ctx context.Context, model string, usage Usage) (Cost, error) {
	info, err := c.Lookup(ctx, model)
	if err != nil {
		return Cost{}, err
	}
	return info.Pricing.Estimate(usage)
}

// Estimate computes the cost of usage. Reasoning tokens are billed as part
// of completion tokens and are not added again.
func (p Pricing) Estimate(usage Usage) (Cost, error) {
	prompt, err := parsePrice(p.Prompt)
	if err != nil {
		return Cost{}, err
	}
	completion, err := parsePrice(p.Completion)
	if err != nil {
		return Cost{}, err
	}
	request := decimal.Zero
	if p.Request != "" {
		if request, err = parsePrice(p.Request); err != nil {
			return Cost{}, err
		}
	}

	cost := Cost{
		Prompt:     prompt.Mul(decimal.NewFromInt(int64(usage.PromptTokens))),
		Completion: completion.Mul(decimal.NewFromInt(int64(usage.CompletionTokens))),
	}
	cost.Total = cost.Prompt.Add(cost.Completion).Add(request)
	return cost, nil
}

// parsePrice rejects missing and negative (variable) prices.
func parsePrice(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, ErrPricingUnavailable
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: variable pricing", ErrPricingUnavailable)
	}
	return d, nil
}

func (c *Catalog) store(models []ModelInfo) {
	c.cache.Set(catalogKey, models)
	if c.opts.CachePath == "" {
		return
	}
	data, err := json.Marshal(catalogFile{Timestamp: c.opts.Now().Unix(), Data: models})
	if err != nil {
		return
	}
	if err := fsutil.WriteFileAtomic(c.opts.Fs, c.opts.CachePath, data, 0644); err != nil {
		log.Warn().Err(err).Str("path", c.opts.CachePath).Msg("failed to write model catalog cache")
	}
}

func (c *Catalog) readDisk() ([]ModelInfo, time.Time, error) {
	if c.opts.CachePath == "" {
		return nil, time.Time{}, ErrModelNotFound
	}
	data, err := afero.ReadFile(c.opts.Fs, c.opts.CachePath)
	if err != nil {
		return nil, time.Time{}, err
	}
	var f catalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, time.Time{}, err
	}
	return f.Data, time.Unix(f.Timestamp, 0), nil
}

// fetch downloads the catalog, honoring Retry-After on throttled responses.
func (c *Catalog) fetch(ctx context.Context) ([]ModelInfo, error) {
	bo := &hintedBackOff{BackOff: c.opts.BackOff()}

	op := func() ([]ModelInfo, error) {
		models, err := c.fetchOnce(ctx)
		if err == nil {
			return models, nil
		}
		bo.hint = err.RetryAfter
		if !err.Retryable() {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	models, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.opts.MaxAttempts)),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		var e *Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, classify(ctx, err, c.opts.APIKey)
	}
	return models, nil
}

func (c *Catalog) fetchOnce(ctx context.Context) ([]ModelInfo, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.opts.BaseURL, "/")+"/models", nil)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: err.Error(), Err: err}
	}
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, classify(ctx, err, c.opts.APIKey)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(ctx, err, c.opts.APIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Kind:       kindForStatus(resp.StatusCode),
			Status:     resp.StatusCode,
			Message:    scrubber.RedactSecret(truncate(string(body), 200), c.opts.APIKey),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.opts.Now()),
		}
	}

	var payload struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Kind: KindTransient, Message: "invalid catalog response: " + err.Error(), Err: err}
	}
	return payload.Data, nil
}

// hintedBackOff lets a server Retry-After hint raise the next delay.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
