package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/QuesmaOrg/codex-summarize-session/internal/browse"
	"github.com/QuesmaOrg/codex-summarize-session/internal/config"
	"github.com/QuesmaOrg/codex-summarize-session/internal/log"
	"github.com/QuesmaOrg/codex-summarize-session/internal/session"
	"github.com/QuesmaOrg/codex-summarize-session/internal/summary"
	"github.com/spf13/cobra"
)

var (
	browseFlags   summaryFlags
	browseNoWatch bool
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse sessions and summaries interactively",
	Long: `Open an interactive browser over the sessions directory.

The left pane lists sessions (● marks those with a cached summary); the
right pane shows the summary or, after pressing v, the extracted messages.
New sessions appear as Codex writes them.

Keys:
  j/k, g/G        move
  J/K, pgup/pgdn  scroll the detail pane
  s, enter        summarize (reuses a matching cached summary)
  r               regenerate the summary
  x               extract messages next to the cached summary
  v               toggle summary / messages
  /               filter sessions
  q               quit

While the browser runs, logs go to the log file only.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runBrowse(cmd.Context()); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	addSummaryFlags(browseCmd, &browseFlags)
	browseCmd.Flags().BoolVar(&browseNoWatch, "no-watch", false, "Do not watch the sessions directory for changes")
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(ctx context.Context) error {
	if !isTerminal(os.Stdout) {
		return fmt.Errorf("browse needs a terminal; use 'list' and 'show' instead")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = config.DefaultLogFile()
	}
	if err := log.Setup(log.Options{Level: cfg.LogLevel, File: logFile, FileOnly: true}); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	svc, err := newService()
	if err != nil {
		return err
	}

	var changes <-chan struct{}
	if !browseNoWatch {
		if _, err := fs.Stat(cfg.SessionsDir); err == nil {
			w, err := session.NewWatcher(cfg.SessionsDir, session.DefaultWatchDebounce)
			if err != nil {
				log.Warn().Err(err).Msg("not watching sessions directory")
			} else {
				defer w.Close()
				changes = w.Changes()
			}
		}
	}

	return browse.Run(ctx, &browseBackend{svc: svc}, changes)
}

// browseBackend adapts the summary service to the browser.
type browseBackend struct {
	svc *summary.Service
}

func (b *browseBackend) Sessions() ([]session.CodexSession, error) {
	return session.FindSessions(fs, cfg.SessionsDir)
}

func (b *browseBackend) WorkingDir(path string) string {
	return session.ScanWorkingDir(fs, path)
}

func (b *browseBackend) Cached(path string) (*summary.Record, error) {
	return b.svc.Cached(path)
}

func (b *browseBackend) Summarize(ctx context.Context, path string, refresh bool) (*summary.Record, error) {
	f := browseFlags
	f.refresh = f.refresh || refresh
	return b.svc.Summarize(ctx, summaryRequest(path, &f))
}

func (b *browseBackend) Extract(path string) (string, int, error) {
	t, err := session.ExtractFile(fs, path)
	if err != nil {
		return "", 0, err
	}
	out := b.svc.Locate(path).MessagesPath
	if err := session.WriteJSONLFile(fs, out, t.Messages, true); err != nil {
		return "", 0, err
	}
	return out, len(t.Messages), nil
}

func (b *browseBackend) Messages(path string) ([]session.Message, error) {
	t, err := session.ExtractFile(fs, path)
	if err != nil {
		return nil, err
	}
	return t.Messages, nil
}
