package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/QuesmaOrg/codex-summarize-session/internal/config"
	"github.com/QuesmaOrg/codex-summarize-session/internal/log"
	"github.com/QuesmaOrg/codex-summarize-session/internal/openrouter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var version = "dev"

func SetVersionInfo(v, commit, date string) {
	version = v

	// Build version string with optional commit and date
	var parts []string
	parts = append(parts, v)
	if commit != "" {
		parts = append(parts, commit)
	}
	if date != "" {
		// Shorten ISO date to just the date part if it's a full timestamp
		if len(date) > 10 {
			date = date[:10]
		}
		parts = append(parts, date)
	}

	rootCmd.Version = strings.Join(parts, " ")
}

var (
	configFileFlag string
	verboseFlag    bool

	v   *viper.Viper
	cfg *config.Config
)

// flagKeys maps flag names to configuration keys. Any command defining one
// of these flags gets it bound to viper, so flags override the config file
// and environment.
var flagKeys = map[string]string{
	"sessions-dir":     config.KeySessionsDir,
	"summaries-dir":    config.KeySummariesDir,
	"prompts-dir":      config.KeyPromptsDir,
	"log-level":        config.KeyLogLevel,
	"log-file":         config.KeyLogFile,
	"model":            config.KeyModel,
	"prompt":           config.KeyPrompt,
	"reasoning-effort": config.KeyReasoningEffort,
	"temperature":      config.KeyTemperature,
	"max-tokens":       config.KeyMaxTokens,
	"jobs":             config.KeyJobs,
	"scrub":            config.KeyScrub,
}

var rootCmd = &cobra.Command{
	Use:   "codex-summarize-session",
	Short: "List, extract and summarize Codex CLI sessions",
	Long: `codex-summarize-session works with the JSONL session logs written by the
Codex CLI (by default under ~/.codex/sessions).

It lists sessions, extracts their conversation messages, and produces
Markdown summaries through OpenRouter. Summaries are cached on disk next to
a copy of the extracted messages and reused until the model or prompt
changes, or --refresh is given.

Configuration is read from config.yaml in the user config directory, from
CODEX_SUMMARIZE_* environment variables and from flags, in increasing order
of precedence.

Run without a command in a terminal to open the interactive browser.`,
	Args:              cobra.NoArgs,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, args []string) {
		if !isTerminal(os.Stdout) || !isTerminal(os.Stdin) {
			_ = cmd.Help()
			return
		}
		if err := runBrowse(cmd.Context()); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFileFlag, "config", "", "Config file (default: "+config.ConfigDir()+"/config.yaml)")
	flags.String("sessions-dir", "", "Directory containing Codex session logs (default: ~/.codex/sessions)")
	flags.String("summaries-dir", "", "Directory for cached summaries")
	flags.String("prompts-dir", "", "Directory searched for prompt templates before the built-in ones")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Also write logs to this file")
	flags.BoolVarP(&verboseFlag, "verbose", "v", false, "Shorthand for --log-level=debug")
}

// setup loads configuration and configures logging before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	v = config.New(configFileFlag)
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	loaded, err := config.Load(v, config.NewKeyring())
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.LogLevel
	if verboseFlag {
		level = "debug"
	}
	if err := log.Setup(log.Options{Level: level, File: cfg.LogFile}); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	log.Debug().Str("config", cfg.ConfigFile).Str("sessions", cfg.SessionsDir).Str("summaries", cfg.SummariesDir).Msg("configuration loaded")
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		exitWithError(err)
	}
}

// exitWithError reports err the same way for every command.
func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "codex-summarize-session: %v\n", err)
	if openrouter.IsAuth(err) {
		fmt.Fprintln(os.Stderr, "hint: set OPENROUTER_API_KEY or run 'codex-summarize-session auth set'")
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(err, os.ErrPermission) {
		fmt.Fprintln(os.Stderr, "hint: check permissions or choose another directory with --summaries-dir")
	}
	os.Exit(1)
}
