package cmd

import (
	"os"
	"time"

	"github.com/QuesmaOrg/codex-summarize-session/internal/openrouter"
	"github.com/QuesmaOrg/codex-summarize-session/internal/scrubber"
	"github.com/QuesmaOrg/codex-summarize-session/internal/session"
	"github.com/QuesmaOrg/codex-summarize-session/internal/summary"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const appURL = "https://github.com/QuesmaOrg/codex-summarize-session"

var fs = afero.NewOsFs()

// summaryFlags are shared by every command that builds a summary request.
type summaryFlags struct {
	refresh bool
}

func addSummaryFlags(cmd *cobra.Command, f *summaryFlags) {
	flags := cmd.Flags()
	flags.String("model", "", "OpenRouter model id (default: openai/gpt-4o-mini)")
	flags.String("prompt", "", "Prompt variant name or template path (default: default)")
	flags.String("reasoning-effort", "", "Reasoning effort: minimal, low, medium, high")
	flags.Float64("temperature", 0.2, "Sampling temperature")
	flags.Int("max-tokens", 0, "Maximum completion tokens (0 = provider default)")
	flags.Bool("scrub", false, "Redact secrets and personal data before upload")
	flags.BoolVar(&f.refresh, "refresh", false, "Ignore the cached summary and generate a new one")
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func resolveSession(arg string, trace *session.TraceContext) (string, error) {
	return session.ResolveSessionPath(fs, cfg.SessionsDir, arg, trace)
}

func newResolver() (*summary.PathResolver, error) {
	return summary.NewPathResolver(cfg.SummariesDir, cfg.SessionsDir)
}

func newCatalog() (*openrouter.Catalog, error) {
	return openrouter.NewCatalog(openrouter.CatalogOptions{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Fs:        fs,
		CachePath: cfg.ModelsCache,
	})
}

// newService wires the summary service. Without an API key the service can
// still read cached summaries; generation reports an auth error.
func newService() (*summary.Service, error) {
	resolver, err := newResolver()
	if err != nil {
		return nil, err
	}

	opts := summary.Options{
		Fs:       fs,
		Resolver: resolver,
		Prompts:  summary.NewPromptLoader(fs, cfg.PromptsDir),
		Now:      time.Now,
	}

	if cfg.APIKey != "" {
		client, err := openrouter.NewClient(cfg.APIKey, cfg.BaseURL,
			openrouter.WithAppInfo(appURL, "codex-summarize-session"))
		if err != nil {
			return nil, err
		}
		opts.Client = client

		catalog, err := newCatalog()
		if err != nil {
			return nil, err
		}
		opts.Pricing = catalog
	}

	if cfg.Scrub {
		pii, err := scrubber.NewDefault()
		if err != nil {
			return nil, err
		}
		opts.Scrubber = pii
	}

	return summary.NewService(opts), nil
}

func summaryRequest(path string, f *summaryFlags) summary.Request {
	return summary.Request{
		SessionPath:     path,
		PromptVariant:   cfg.Prompt,
		Model:           cfg.Model,
		Temperature:     float32(cfg.Temperature),
		MaxTokens:       cfg.MaxTokens,
		ReasoningEffort: cfg.ReasoningEffort,
		Refresh:         f.refresh,
		Scrub:           cfg.Scrub,
	}
}
