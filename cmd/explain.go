package cmd

import (
	"fmt"
	"os"

	"github.com/QuesmaOrg/codex-summarize-session/internal/session"
	"github.com/spf13/cobra"
)

var explainFlags summaryFlags

var explainCmd = &cobra.Command{
	Use:   "explain <session>",
	Short: "Explain session resolution and cache decisions",
	Long: `Explain what summarize would do for a session, without calling OpenRouter.

Shows:
- How the session argument was resolved
- Where the summary and extracted messages are stored
- Whether the cached summary would be reused, and why
- Which prompt template would be used and its placeholders

Accepts the same model and prompt flags as summarize.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := explainSession(args[0]); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	addSummaryFlags(explainCmd, &explainFlags)
	rootCmd.AddCommand(explainCmd)
}

func explainSession(arg string) error {
	trace := &session.TraceContext{}
	path, err := resolveSession(arg, trace)
	renderSessionTrace(trace)
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	t, err := svc.Explain(summaryRequest(path, &explainFlags))
	if t != nil {
		t.Render(os.Stdout)
	}
	return err
}

func renderSessionTrace(t *session.TraceContext) {
	fmt.Println("=== Session ===")
	fmt.Println()
	fmt.Printf("Argument:      %q\n", t.Argument)
	fmt.Printf("Sessions root: %s\n", t.SessionsRoot)
	if t.Method != "" {
		fmt.Printf("Matched by:    %s\n", t.Method)
	}
	if len(t.Candidates) > 0 {
		fmt.Printf("Candidates:    %d\n", len(t.Candidates))
		for _, c := range t.Candidates {
			fmt.Printf("  - %s\n", c)
		}
	}
	if t.Resolved != "" {
		fmt.Printf("Resolved:      %s\n", t.Resolved)
	} else {
		fmt.Println("Resolved:      (no match)")
	}
	fmt.Println()
}
