package cmd

import (
	"errors"
	"fmt"

	"github.com/QuesmaOrg/codex-summarize-session/internal/summary"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	showRawFlag      bool
	showMetadataFlag bool
)

var showCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Show the cached summary for a session",
	Long: `Show the cached summary for a session without contacting OpenRouter.

The summary is printed whatever model or prompt produced it. In a terminal
the Markdown is rendered; use --raw for the stored text.

Examples:
  codex-summarize-session show 1
  codex-summarize-session show 1 --metadata
  codex-summarize-session show rollout-2025-09-01 --raw > summary.md`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := showSummary(args[0]); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	showCmd.Flags().BoolVar(&showRawFlag, "raw", false, "Print Markdown without terminal rendering")
	showCmd.Flags().BoolVar(&showMetadataFlag, "metadata", false, "Print the front matter instead of the body")
	rootCmd.AddCommand(showCmd)
}

func showSummary(arg string) error {
	path, err := resolveSession(arg, nil)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}

	rec, err := svc.Cached(path)
	if errors.Is(err, summary.ErrNoSummary) {
		return fmt.Errorf("no cached summary for %s (run 'codex-summarize-session summarize %s')", path, arg)
	}
	if err != nil {
		return err
	}

	if showMetadataFlag {
		out, err := yaml.Marshal(rec.Metadata)
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n%s", rec.Path, out)
		return nil
	}

	printMarkdown(rec.Body, showRawFlag)
	return nil
}
