package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/QuesmaOrg/codex-summarize-session/internal/display"
	"github.com/QuesmaOrg/codex-summarize-session/internal/session"
	"github.com/QuesmaOrg/codex-summarize-session/internal/summary"
	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

var (
	summarizeFlags      summaryFlags
	summarizeRecentFlag int
	summarizeRawFlag    bool
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [session...]",
	Short: "Summarize sessions with an OpenRouter model",
	Long: `Summarize one or more sessions. A cached summary is returned when it was
produced with the same model and prompt; otherwise the session is sent to
OpenRouter and the result is stored under the summaries directory together
with the extracted messages.

Several sessions are summarized concurrently (see --jobs). An authentication
failure stops the remaining requests.

Examples:
  codex-summarize-session summarize 1
  codex-summarize-session summarize 1 --model anthropic/claude-sonnet-4 --prompt brief
  codex-summarize-session summarize --recent 5 --jobs 2
  codex-summarize-session summarize 1 --refresh --scrub`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSummarize(cmd.Context(), args); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	addSummaryFlags(summarizeCmd, &summarizeFlags)
	summarizeCmd.Flags().IntP("jobs", "j", summary.DefaultJobs, "Number of sessions summarized concurrently")
	summarizeCmd.Flags().IntVar(&summarizeRecentFlag, "recent", 0, "Summarize the N most recent sessions")
	summarizeCmd.Flags().BoolVar(&summarizeRawFlag, "raw", false, "Print Markdown without terminal rendering")
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(ctx context.Context, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	paths, err := summarizeTargets(args)
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}

	if len(paths) == 1 {
		return summarizeOne(ctx, svc, paths[0])
	}
	return summarizeMany(ctx, svc, paths)
}

func summarizeTargets(args []string) ([]string, error) {
	switch {
	case len(args) > 0 && summarizeRecentFlag > 0:
		return nil, errors.New("pass sessions or --recent, not both")
	case len(args) > 0:
		paths := make([]string, 0, len(args))
		for _, arg := range args {
			path, err := resolveSession(arg, nil)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
		return paths, nil
	case summarizeRecentFlag > 0:
		sessions, err := session.FindSessions(fs, cfg.SessionsDir)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			return nil, fmt.Errorf("no session files found under %s", cfg.SessionsDir)
		}
		n := min(summarizeRecentFlag, len(sessions))
		paths := make([]string, 0, n)
		for _, s := range sessions[:n] {
			paths = append(paths, s.Path)
		}
		return paths, nil
	default:
		return nil, errors.New("no session given; pass an index, path or name (see 'list'), or --recent N")
	}
}

func summarizeOne(ctx context.Context, svc *summary.Service, path string) error {
	var s *spinner.Spinner
	if isTerminal(os.Stderr) {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = " Summarizing " + display.TruncateText(path, 60)
		s.Start()
	}

	rec, err := svc.Summarize(ctx, summaryRequest(path, &summarizeFlags))
	if s != nil {
		s.Stop()
	}

	var perr *summary.PersistenceError
	if errors.As(err, &perr) && perr.Record != nil {
		printSummary(perr.Record)
		return err
	}
	if err != nil {
		return err
	}

	printSummary(rec)
	fmt.Fprintln(os.Stderr, summaryStatus(rec))
	return nil
}

func summarizeMany(ctx context.Context, svc *summary.Service, paths []string) error {
	reqs := make([]summary.Request, len(paths))
	for i, p := range paths {
		reqs[i] = summaryRequest(p, &summarizeFlags)
	}

	done := 0
	results := svc.SummarizeAll(ctx, reqs, cfg.Jobs, func(r summary.Result) {
		done++
		status := "error: " + errString(r.Err)
		if r.Err == nil {
			status = summaryStatus(r.Record)
		}
		fmt.Fprintf(os.Stderr, "[%d/%d] %s\n        %s\n", done, len(reqs), r.Request.SessionPath, status)
	})

	failed := 0
	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.Err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d summaries failed: %w", failed, len(results), firstErr)
	}
	fmt.Fprintf(os.Stderr, "Summarized %s\n", display.Plural(len(results), "session"))
	return nil
}

func summaryStatus(rec *summary.Record) string {
	meta := rec.Metadata
	state := "generated"
	if rec.CacheHit {
		state = "cached"
	}
	status := fmt.Sprintf("%s: %s (%s, prompt %s", state, rec.Path, meta.Model, meta.PromptVariant)
	if meta.Usage != nil {
		status += fmt.Sprintf(", %s tokens", display.FormatTokens(meta.Usage.PromptTokens+meta.Usage.CompletionTokens))
	}
	if meta.CostEstimate != nil {
		status += ", cost " + meta.CostEstimate.String()
	}
	return status + ")"
}

func printSummary(rec *summary.Record) {
	printMarkdown(rec.Body, summarizeRawFlag)
}

// printMarkdown renders body for the terminal, or prints it unchanged when
// raw is set or stdout is not a terminal.
func printMarkdown(body string, raw bool) {
	if raw || !isTerminal(os.Stdout) {
		fmt.Print(body)
		return
	}
	out, err := display.RenderMarkdown(body, display.TerminalWidth(os.Stdout))
	if err != nil {
		fmt.Print(body)
		return
	}
	fmt.Println(out)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
