package cmd

import (
	"fmt"
	"strings"

	"github.com/QuesmaOrg/codex-summarize-session/internal/summary"
	"github.com/spf13/cobra"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List available prompt variants",
	Long: `List prompt variants usable with --prompt.

Templates in the prompts directory (see --prompts-dir) override the built-in
ones of the same name. Each line shows where the template is loaded from
and the placeholders it uses.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		loader := summary.NewPromptLoader(fs, cfg.PromptsDir)
		for _, name := range loader.Variants() {
			p, err := loader.Load(name)
			if err != nil {
				fmt.Printf("  %-12s  (invalid: %v)\n", name, err)
				continue
			}
			marker := " "
			if name == cfg.Prompt {
				marker = "*"
			}
			vars := ""
			if names := p.Placeholders(); len(names) > 0 {
				vars = "  {{" + strings.Join(names, "}} {{") + "}}"
			}
			fmt.Printf("%s %-12s  %s%s\n", marker, name, p.Path, vars)
		}
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
}
