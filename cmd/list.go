package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/QuesmaOrg/codex-summarize-session/internal/display"
	"github.com/QuesmaOrg/codex-summarize-session/internal/log"
	"github.com/QuesmaOrg/codex-summarize-session/internal/session"
	"github.com/QuesmaOrg/codex-summarize-session/internal/summary"
	"github.com/spf13/cobra"
)

var listLimitFlag int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	Long: `List Codex session logs, most recently modified first.

Each line shows the index (usable in place of a path in other commands),
the path relative to the sessions directory, the size, the age, the working
directory recorded in the session and, if one exists, the model of the
cached summary.

Examples:
  codex-summarize-session list
  codex-summarize-session list --limit 50`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := listSessions(); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	listCmd.Flags().IntVarP(&listLimitFlag, "limit", "n", 20, "Limit number of entries (0 = all)")
	rootCmd.AddCommand(listCmd)
}

func listSessions() error {
	if _, err := fs.Stat(cfg.SessionsDir); err != nil {
		return fmt.Errorf("sessions dir does not exist: %s", cfg.SessionsDir)
	}

	sessions, err := session.FindSessions(fs, cfg.SessionsDir)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Printf("No session files found under %s\n", cfg.SessionsDir)
		return nil
	}
	if listLimitFlag > 0 && len(sessions) > listLimitFlag {
		sessions = sessions[:listLimitFlag]
	}

	resolver, err := newResolver()
	if err != nil {
		return err
	}
	latest, err := summary.NewIndex(fs, cfg.SummariesDir).Latest()
	if err != nil {
		log.Debug().Err(err).Msg("summary index unavailable")
	}

	home, _ := os.UserHomeDir()
	fmt.Printf("Sessions under %s\n", display.FormatPath(cfg.SessionsDir, home))

	type row struct {
		prefix, size, age, cwd, cached string
	}
	rows := make([]row, 0, len(sessions))
	prefixWidth, sizeWidth, ageWidth := 0, 0, 0
	for _, s := range sessions {
		r := row{
			prefix: fmt.Sprintf("%3d. %s", s.Index, filepath.ToSlash(s.RelPath)),
			size:   display.FormatSize(s.Size),
			age:    display.FormatAge(s.Modified),
			cwd:    "?",
		}
		if cwd := session.ScanWorkingDir(fs, s.Path); cwd != "" {
			r.cwd = display.FormatPath(cwd, home)
		}
		if e, ok := latest[indexKey(resolver, s.Path)]; ok {
			r.cached = "  [summary: " + e.Model + "]"
		}
		prefixWidth = max(prefixWidth, len(r.prefix))
		sizeWidth = max(sizeWidth, len(r.size))
		ageWidth = max(ageWidth, len(r.age))
		rows = append(rows, r)
	}

	for _, r := range rows {
		fmt.Printf("%s  %s  %s  cwd: %s%s\n",
			padRight(r.prefix, prefixWidth),
			padLeft(r.size, sizeWidth),
			padRight(r.age, ageWidth),
			r.cwd, r.cached)
	}
	return nil
}

// indexKey returns the source path as the summary index records it.
func indexKey(resolver *summary.PathResolver, path string) string {
	return resolver.Resolve(summary.CacheKey{Source: path}).Source
}

func padRight(s string, width int) string {
	if n := width - len(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

func padLeft(s string, width int) string {
	if n := width - len(s); n > 0 {
		return strings.Repeat(" ", n) + s
	}
	return s
}
