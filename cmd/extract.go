package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/QuesmaOrg/codex-summarize-session/internal/display"
	"github.com/QuesmaOrg/codex-summarize-session/internal/log"
	"github.com/QuesmaOrg/codex-summarize-session/internal/session"
	"github.com/spf13/cobra"
)

var (
	extractOutputFlag    string
	extractOutputDirFlag string
	extractStdoutFlag    bool
	extractForceFlag     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <session>",
	Short: "Extract the conversation messages of a session to JSONL",
	Long: `Extract the message records of a session log, one JSON object per line
with role, content and timestamp. Everything else in the log (tool calls,
reasoning, token counts) is dropped.

The session may be given as an index from 'list', a path, or a file name
under the sessions directory. By default the output is written to
<name>.messages.jsonl in the current directory.

Examples:
  codex-summarize-session extract 1
  codex-summarize-session extract rollout-2025-09-01T10-00-00-abc.jsonl --output-dir out/
  codex-summarize-session extract 3 --stdout | jq .`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := extractSession(args[0]); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutputFlag, "output", "o", "", "Output file path")
	extractCmd.Flags().StringVar(&extractOutputDirFlag, "output-dir", "", "Directory for the output file")
	extractCmd.Flags().BoolVar(&extractStdoutFlag, "stdout", false, "Write to stdout instead of a file")
	extractCmd.Flags().BoolVarP(&extractForceFlag, "force", "f", false, "Overwrite output if it exists")
	extractCmd.MarkFlagsMutuallyExclusive("output", "output-dir", "stdout")
	rootCmd.AddCommand(extractCmd)
}

func extractSession(arg string) error {
	path, err := resolveSession(arg, nil)
	if err != nil {
		return err
	}

	transcript, err := session.ExtractFile(fs, path)
	if err != nil {
		return err
	}
	if transcript.Malformed > 0 {
		log.Warn().Int("lines", transcript.Malformed).Str("session", path).Msg("skipped malformed lines")
	}

	if extractStdoutFlag {
		return session.WriteJSONL(os.Stdout, transcript.Messages)
	}

	out := extractOutputPath(path)
	if err := session.WriteJSONLFile(fs, out, transcript.Messages, extractForceFlag); err != nil {
		if errors.Is(err, session.ErrOutputExists) {
			return fmt.Errorf("refusing to overwrite existing file %s; use --force or choose --output", out)
		}
		return err
	}

	fmt.Printf("Wrote %s to %s\n", display.Plural(len(transcript.Messages), "message line"), out)
	return nil
}

func extractOutputPath(input string) string {
	if extractOutputFlag != "" {
		return extractOutputFlag
	}
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".messages.jsonl"
	if extractOutputDirFlag != "" {
		return filepath.Join(extractOutputDirFlag, name)
	}
	return name
}
