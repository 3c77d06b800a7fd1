package summary

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/QuesmaOrg/codex-summarize-session/internal/log"
	"github.com/QuesmaOrg/codex-summarize-session/internal/openrouter"
	"github.com/QuesmaOrg/codex-summarize-session/internal/scrubber"
	"github.com/QuesmaOrg/codex-summarize-session/internal/session"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Request asks for a summary of one session.
type Request struct {
	SessionPath     string
	PromptVariant   string
	Model           string
	Temperature     float32
	MaxTokens       int
	ReasoningEffort string
	Refresh         bool
	Scrub           bool // Scrub secrets and personal data before upload
}

// Key returns the cache key of the request.
func (r Request) Key() CacheKey {
	return CacheKey{Source: r.SessionPath, PromptVariant: r.PromptVariant, Model: r.Model}
}

// Completer issues one chat completion.
type Completer interface {
	Complete(ctx context.Context, req openrouter.Request) (*openrouter.Completion, error)
}

// CostEstimator prices a completion.
type CostEstimator interface {
	EstimateCost(ctx context.Context, model string, usage openrouter.Usage) (openrouter.Cost, error)
}

// Options wires a Service.
type Options struct {
	Fs       afero.Fs
	Resolver *PathResolver
	Prompts  *PromptLoader
	Client   Completer     // nil allows cache reads only
	Pricing  CostEstimator // nil records unknown cost
	Scrubber scrubber.Scrubber
	Now      func() time.Time
}

// Service decides between the cache and the remote client, and persists
// results. It is safe for concurrent use.
type Service struct {
	fs       afero.Fs
	resolver *PathResolver
	store    *Store
	prompts  *PromptLoader
	client   Completer
	pricing  CostEstimator
	index    *Index
	scrubber scrubber.Scrubber
	now      func() time.Time
}

// NewService creates a service.
func NewService(opts Options) *Service {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Prompts == nil {
		opts.Prompts = NewPromptLoader(opts.Fs)
	}
	if opts.Scrubber == nil {
		opts.Scrubber = &scrubber.NoopScrubber{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		fs:       opts.Fs,
		resolver: opts.Resolver,
		store:    NewStore(opts.Fs),
		prompts:  opts.Prompts,
		client:   opts.Client,
		pricing:  opts.Pricing,
		index:    NewIndex(opts.Fs, opts.Resolver.SummariesRoot),
		scrubber: opts.Scrubber,
		now:      opts.Now,
	}
}

// Locate returns where artifacts for a session are stored.
func (s *Service) Locate(sessionPath string) Location {
	return s.resolver.Resolve(CacheKey{Source: sessionPath})
}

// Index returns the summaries index.
func (s *Service) Index() *Index {
	return s.index
}

// Cached loads whatever summary exists for a session, regardless of the
// model or prompt that produced it.
func (s *Service) Cached(sessionPath string) (*Record, error) {
	rec, err := s.store.Load(s.Locate(sessionPath).SummaryPath)
	if err != nil {
		return nil, err
	}
	rec.CacheHit = true
	return rec, nil
}

// Summarize returns the cached summary for req when it matches, and
// otherwise generates and persists a new one.
func (s *Service) Summarize(ctx context.Context, req Request) (*Record, error) {
	return s.summarize(ctx, req, nil)
}

// Explain runs the cache check and prompt preflight without generating.
func (s *Service) Explain(req Request) (*Trace, error) {
	trace := &Trace{Key: req.Key(), Refresh: req.Refresh}

	loc := s.resolve(req, trace)
	if _, hit, err := s.checkCache(req, loc, trace); err != nil && !hit {
		trace.LoadError = err.Error()
	}

	prompt, err := s.prompts.Load(req.PromptVariant)
	if err != nil {
		trace.PromptError = err.Error()
		return trace, nil
	}
	trace.PromptPath = prompt.Path
	trace.Placeholders = prompt.Placeholders()
	if err := prompt.CheckPlaceholders(s.templateVars(req, loc.Source, "", 0, "")); err != nil {
		trace.PromptError = err.Error()
	}
	return trace, nil
}

func (s *Service) summarize(ctx context.Context, req Request, trace *Trace) (*Record, error) {
	requestID := uuid.NewString()
	logger := log.Logger().With().
		Str("request_id", requestID).
		Str("session", req.SessionPath).
		Str("model", req.Model).
		Str("prompt", req.PromptVariant).
		Logger()

	if err := ctx.Err(); err != nil {
		trace.enter(StateFailed)
		return nil, err
	}

	loc := s.resolve(req, trace)

	cached, hit, err := s.checkCache(req, loc, trace)
	if err != nil {
		trace.enter(StateFailed)
		return nil, fmt.Errorf("failed to read cached summary (use --refresh to regenerate): %w", err)
	}
	if hit {
		logger.Debug().Str("path", loc.SummaryPath).Msg("summary cache hit")
		return cached, nil
	}

	trace.enter(StateGenerating)
	logger.Debug().Str("path", loc.SummaryPath).Msg("summary cache miss")

	rec, transcript, err := s.generate(ctx, req, loc, requestID)
	if err != nil {
		trace.enter(StateFailed)
		logger.Debug().Err(err).Msg("summary generation failed")
		return nil, err
	}

	trace.enter(StatePersisting)
	if err := s.persist(loc, rec, transcript); err != nil {
		trace.enter(StateFailed)
		logger.Error().Err(err).Msg("summary generated but not saved")
		return nil, &PersistenceError{Path: loc.SummaryPath, Record: rec, Err: err}
	}

	trace.enter(StateDone)
	logger.Info().
		Int("prompt_tokens", rec.Metadata.Usage.PromptTokens).
		Int("completion_tokens", rec.Metadata.Usage.CompletionTokens).
		Str("cost", rec.Metadata.CostEstimate.String()).
		Msg("summary generated")
	return rec, nil
}

func (s *Service) resolve(req Request, trace *Trace) Location {
	trace.enter(StateResolving)
	loc := s.resolver.Resolve(req.Key())
	if trace != nil {
		trace.Location = loc
	}
	return loc
}

// checkCache returns the cached record when it can satisfy req. A damaged
// document is an error; a missing one is a miss.
func (s *Service) checkCache(req Request, loc Location, trace *Trace) (*Record, bool, error) {
	trace.enter(StateCacheCheck)

	rec, err := s.store.Load(loc.SummaryPath)
	switch {
	case errors.Is(err, ErrNoSummary):
		s.decide(trace, "miss: no cached summary")
		return nil, false, nil
	case err != nil:
		if req.Refresh {
			s.decide(trace, "refresh: unreadable cached summary will be replaced")
			return nil, false, nil
		}
		s.decide(trace, "failed: cached summary is unreadable")
		return nil, false, err
	}

	if trace != nil {
		trace.CacheExists = true
		trace.CachedModel = rec.Metadata.Model
		trace.CachedPrompt = rec.Metadata.PromptVariant
		trace.CachedAt = rec.Metadata.GeneratedAt
	}

	switch {
	case req.Refresh:
		s.decide(trace, "refresh: regenerate")
		return nil, false, nil
	case !rec.Metadata.Matches(req.Model, req.PromptVariant):
		s.decide(trace, "miss: cached summary was generated with a different model or prompt")
		return nil, false, nil
	}

	s.decide(trace, "hit: cached summary will be returned")
	trace.enter(StateCacheHit)
	rec.CacheHit = true
	return rec, true, nil
}

func (s *Service) decide(trace *Trace, decision string) {
	if trace != nil {
		trace.CacheDecision = decision
	}
}

// generate builds the prompt, calls the client and assembles the record.
// Everything that can be rejected locally is checked before the network call.
func (s *Service) generate(ctx context.Context, req Request, loc Location, requestID string) (*Record, *session.Transcript, error) {
	prompt, err := s.prompts.Load(req.PromptVariant)
	if err != nil {
		return nil, nil, err
	}

	transcript, err := session.ExtractFile(s.fs, loc.Source)
	if err != nil {
		return nil, nil, err
	}

	transcriptText, err := s.transcriptForUpload(transcript, req.Scrub)
	if err != nil {
		return nil, nil, err
	}

	vars := s.templateVars(req, loc.Source, transcript.WorkingDir, len(transcript.Messages), transcriptText)
	rendered, err := prompt.Render(vars)
	if err != nil {
		return nil, nil, err
	}

	if s.client == nil {
		return nil, nil, &openrouter.Error{Kind: openrouter.KindAuth, Message: "no OpenRouter API key configured"}
	}

	completion, err := s.client.Complete(ctx, openrouter.Request{
		Model:           req.Model,
		Messages:        buildMessages(prompt, rendered, transcriptText),
		Temperature:     req.Temperature,
		MaxTokens:       req.MaxTokens,
		ReasoningEffort: req.ReasoningEffort,
	})
	if err != nil {
		return nil, nil, err
	}

	meta := Metadata{
		SourcePath:    loc.Source,
		Model:         req.Model,
		PromptVariant: req.PromptVariant,
		PromptPath:    prompt.Path,
		Usage: &Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			ReasoningTokens:  completion.Usage.ReasoningTokens,
		},
		CostEstimate: s.estimateCost(ctx, req.Model, completion.Usage),
		GeneratedAt:  s.now().UTC().Truncate(time.Second),
		MessageCount: len(transcript.Messages),
		MessagesPath: loc.MessagesPath,
		FinishReason: completion.FinishReason,
		Reasoning:    completion.Reasoning,
		RequestID:    requestID,
	}
	if completion.Model != "" && completion.Model != req.Model {
		meta.ResolvedModel = completion.Model
	}

	// Stored documents always end in a newline; keep the in-memory copy identical.
	body := strings.TrimRight(completion.Text, "\n") + "\n"
	return &Record{Metadata: meta, Body: body}, transcript, nil
}

// transcriptForUpload renders the cleaned transcript as JSONL, scrubbing
// message content when requested.
func (s *Service) transcriptForUpload(t *session.Transcript, scrub bool) (string, error) {
	messages := t.Messages
	if scrub {
		messages = make([]session.Message, len(t.Messages))
		for i, m := range t.Messages {
			content, err := s.scrubber.ScrubJSON(m.Content)
			if err != nil {
				return "", fmt.Errorf("failed to scrub message %d: %w", i, err)
			}
			m.Content = content
			messages[i] = m
		}
	}

	data, err := session.EncodeJSONL(messages)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func (s *Service) templateVars(req Request, source, cwd string, count int, transcript string) map[string]string {
	return map[string]string{
		VarSourcePath:    source,
		VarSessionName:   strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)),
		VarCWD:           cwd,
		VarMessageCount:  strconv.Itoa(count),
		VarModel:         req.Model,
		VarPromptVariant: req.PromptVariant,
		VarTranscript:    transcript,
	}
}

// buildMessages sends a template that embeds the transcript as a single user
// message; otherwise the template is the system prompt and the transcript
// follows between session markers.
func buildMessages(prompt *Prompt, rendered, transcript string) []openrouter.Message {
	if prompt.Uses(VarTranscript) {
		return []openrouter.Message{{Role: "user", Content: rendered}}
	}
	block := "<session start>\n\"\"\"\n" + transcript + "\n\"\"\"\n</session end>"
	return []openrouter.Message{
		{Role: "system", Content: strings.TrimSpace(rendered)},
		{Role: "user", Content: block},
	}
}

// estimateCost degrades to the unknown marker when pricing cannot be found.
func (s *Service) estimateCost(ctx context.Context, model string, usage openrouter.Usage) *Cost {
	if s.pricing == nil {
		return UnknownCost()
	}
	cost, err := s.pricing.EstimateCost(ctx, model, usage)
	if err != nil {
		log.Warn().Err(err).Str("model", model).Msg("cost estimate unavailable")
		return UnknownCost()
	}
	return &Cost{Known: true, Prompt: cost.Prompt, Completion: cost.Completion, Total: cost.Total}
}

// persist writes the cleaned transcript, then the summary, then the index entry.
// The index is advisory, so failing to update it is only logged.
func (s *Service) persist(loc Location, rec *Record, transcript *session.Transcript) error {
	if err := session.WriteJSONLFile(s.fs, loc.MessagesPath, transcript.Messages, true); err != nil {
		return err
	}
	if err := s.store.Save(loc.SummaryPath, rec); err != nil {
		return err
	}

	entry := IndexEntry{
		SourcePath:    rec.Metadata.SourcePath,
		SummaryPath:   loc.SummaryPath,
		Model:         rec.Metadata.Model,
		PromptVariant: rec.Metadata.PromptVariant,
		GeneratedAt:   rec.Metadata.GeneratedAt,
		MessageCount:  rec.Metadata.MessageCount,
	}
	if c := rec.Metadata.CostEstimate; c != nil && c.Known {
		entry.CostUSD = c.Total.String()
	}
	if err := s.index.Append(entry); err != nil {
		log.Warn().Err(err).Str("path", s.index.Path()).Msg("failed to update summary index")
	}
	return nil
}
