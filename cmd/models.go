package cmd

import (
	"context"
	"fmt"

	"github.com/QuesmaOrg/codex-summarize-session/internal/openrouter"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	modelsRefreshFlag bool
	modelsLimitFlag   int
)

var perMillion = decimal.NewFromInt(1_000_000)

var modelsCmd = &cobra.Command{
	Use:   "models [filter]",
	Short: "List OpenRouter models and prices",
	Long: `List models from the OpenRouter catalog with their context length and
price per million prompt and completion tokens.

The catalog is cached on disk for an hour; --refresh fetches it again. An
optional filter fuzzily matches model ids.

Examples:
  codex-summarize-session models
  codex-summarize-session models claude
  codex-summarize-session models --refresh --limit 0`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query := ""
		if len(args) > 0 {
			query = args[0]
		}
		if err := listModels(cmd.Context(), query); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsRefreshFlag, "refresh", false, "Fetch the catalog even if a cached copy is fresh")
	modelsCmd.Flags().IntVarP(&modelsLimitFlag, "limit", "n", 30, "Limit number of entries (0 = all)")
	rootCmd.AddCommand(modelsCmd)
}

func listModels(ctx context.Context, query string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	catalog, err := newCatalog()
	if err != nil {
		return err
	}

	var models []openrouter.ModelInfo
	if modelsRefreshFlag {
		models, err = catalog.Refresh(ctx)
	} else {
		models, err = catalog.Models(ctx)
	}
	if err != nil {
		return err
	}

	models = openrouter.FilterModels(models, query)
	if len(models) == 0 {
		fmt.Printf("No models match %q\n", query)
		return nil
	}
	total := len(models)
	if modelsLimitFlag > 0 && total > modelsLimitFlag {
		models = models[:modelsLimitFlag]
	}

	idWidth := 0
	for _, m := range models {
		idWidth = max(idWidth, len(m.ID))
	}
	fmt.Printf("%s  %9s  %10s  %10s\n", padRight("MODEL", idWidth), "CONTEXT", "PROMPT/1M", "OUTPUT/1M")
	for _, m := range models {
		fmt.Printf("%s  %9s  %10s  %10s\n",
			padRight(m.ID, idWidth),
			humanize.Comma(int64(m.ContextLength)),
			pricePerMillion(m.Pricing.Prompt),
			pricePerMillion(m.Pricing.Completion))
	}
	if len(models) < total {
		fmt.Printf("... %d more (use --limit 0 to show all)\n", total-len(models))
	}
	return nil
}

// pricePerMillion converts a per-token USD price to dollars per million
// tokens. Missing or variable prices print as "-".
func pricePerMillion(perToken string) string {
	d, err := decimal.NewFromString(perToken)
	if err != nil || d.IsNegative() {
		return "-"
	}
	return "$" + d.Mul(perMillion).StringFixed(2)
}
