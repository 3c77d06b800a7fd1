package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/QuesmaOrg/codex-summarize-session/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the OpenRouter API key",
	Long: `Manage the OpenRouter API key stored in the system keyring.

The key is looked up in this order: the api_key config setting (or
CODEX_SUMMARIZE_API_KEY), the OPENROUTER_API_KEY environment variable, and
the keyring.`,
}

var authSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the API key in the system keyring",
	Long: `Store the OpenRouter API key in the system keyring.

In a terminal the key is read without echo; otherwise it is read from the
first line of stdin:

  echo "$KEY" | codex-summarize-session auth set`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := setAPIKey(); err != nil {
			exitWithError(err)
		}
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the API key comes from",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.APIKey == "" {
			fmt.Println("No API key configured.")
			fmt.Println("Set OPENROUTER_API_KEY or run 'codex-summarize-session auth set'.")
			return
		}
		fmt.Printf("API key: %s (from %s)\n", maskKey(cfg.APIKey), cfg.KeySource)
	},
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the API key from the system keyring",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		err := config.NewKeyring().Delete()
		if errors.Is(err, config.ErrNoAPIKey) {
			fmt.Println("No API key stored in the keyring.")
			return
		}
		if err != nil {
			exitWithError(err)
		}
		fmt.Println("API key removed from the keyring.")
	},
}

func init() {
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authDeleteCmd)
	rootCmd.AddCommand(authCmd)
}

func setAPIKey() error {
	key, err := readAPIKey(os.Stdin)
	if err != nil {
		return err
	}
	if err := config.NewKeyring().Set(key); err != nil {
		return err
	}
	fmt.Printf("Stored API key %s in the keyring.\n", maskKey(strings.TrimSpace(key)))
	if cfg.KeySource == config.KeySourceConfig || cfg.KeySource == config.KeySourceEnv {
		fmt.Printf("Note: the key from %s still takes precedence.\n", cfg.KeySource)
	}
	return nil
}

func readAPIKey(in *os.File) (string, error) {
	if isTerminal(in) {
		fmt.Fprint(os.Stderr, "OpenRouter API key: ")
		b, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return line, nil
}

// maskKey keeps enough of the key to recognize it.
func maskKey(key string) string {
	if len(key) <= 12 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "..." + key[len(key)-4:]
}
