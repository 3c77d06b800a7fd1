// Package config layers defaults, the config file, environment variables and
// command-line flags into one Config, and stores the API key in the OS keyring.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// AppName names the XDG directories, the keyring service and the log file.
const AppName = "codex-summarize-session"

// EnvPrefix is prepended to every configuration key read from the environment.
const EnvPrefix = "CODEX_SUMMARIZE"

// OpenRouterKeyEnv is the conventional variable read when no key is configured.
const OpenRouterKeyEnv = "OPENROUTER_API_KEY"

// Configuration keys, shared by the config file, the environment and flags.
const (
	KeySessionsDir     = "sessions_dir"
	KeySummariesDir    = "summaries_dir"
	KeyPromptsDir      = "prompts_dir"
	KeyModelsCache     = "models_cache"
	KeyLogFile         = "log_file"
	KeyLogLevel        = "log_level"
	KeyModel           = "model"
	KeyPrompt          = "prompt"
	KeyReasoningEffort = "reasoning_effort"
	KeyTemperature     = "temperature"
	KeyMaxTokens       = "max_tokens"
	KeyJobs            = "jobs"
	KeyBaseURL         = "base_url"
	KeyAPIKey          = "api_key"
	KeyScrub           = "scrub"
)

// Defaults for the summary request.
const (
	DefaultModel           = "openai/gpt-4o-mini"
	DefaultPrompt          = "default"
	DefaultReasoningEffort = "medium"
	DefaultTemperature     = 0.2
	DefaultJobs            = 3
	DefaultBaseURL         = "https://openrouter.ai/api/v1"
)

// Config is the resolved configuration.
type Config struct {
	SessionsDir     string  `mapstructure:"sessions_dir"`
	SummariesDir    string  `mapstructure:"summaries_dir"`
	PromptsDir      string  `mapstructure:"prompts_dir"`
	ModelsCache     string  `mapstructure:"models_cache"`
	LogFile         string  `mapstructure:"log_file"`
	LogLevel        string  `mapstructure:"log_level"`
	Model           string  `mapstructure:"model"`
	Prompt          string  `mapstructure:"prompt"`
	ReasoningEffort string  `mapstructure:"reasoning_effort"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Jobs            int     `mapstructure:"jobs"`
	BaseURL         string  `mapstructure:"base_url"`
	Scrub           bool    `mapstructure:"scrub"`

	// APIKey is filled by Load from configuration, the environment or the keyring.
	APIKey    string    `mapstructure:"api_key"`
	KeySource KeySource `mapstructure:"-"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

// ConfigDir returns the directory holding config.yaml and prompts.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultSessionsDir is where Codex writes session logs.
func DefaultSessionsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".codex", "sessions")
	}
	return filepath.Join(home, ".codex", "sessions")
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeySessionsDir, DefaultSessionsDir())
	v.SetDefault(KeySummariesDir, filepath.Join(xdg.DataHome, AppName, "summaries"))
	v.SetDefault(KeyPromptsDir, filepath.Join(ConfigDir(), "prompts"))
	v.SetDefault(KeyModelsCache, filepath.Join(xdg.CacheHome, AppName, "models.json"))
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyModel, DefaultModel)
	v.SetDefault(KeyPrompt, DefaultPrompt)
	v.SetDefault(KeyReasoningEffort, DefaultReasoningEffort)
	v.SetDefault(KeyTemperature, DefaultTemperature)
	v.SetDefault(KeyMaxTokens, 0)
	v.SetDefault(KeyJobs, DefaultJobs)
	v.SetDefault(KeyBaseURL, DefaultBaseURL)
	v.SetDefault(KeyScrub, false)
}

// DefaultLogFile is used when the terminal is owned by the browser.
func DefaultLogFile() string {
	return filepath.Join(xdg.StateHome, AppName, AppName+".log")
}

// New returns a viper instance with defaults, the config search path and
// environment binding set up. configFile, when non-empty, replaces the search.
func New(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (a missing default file is fine), applies the
// environment and resolves the API key.
func Load(v *viper.Viper, keys KeyStore) (*Config, error) {
	cfg, err := read(v)
	if err != nil {
		return nil, err
	}
	cfg.APIKey, cfg.KeySource = resolveAPIKey(v, keys)
	return cfg, nil
}

func read(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	cfg.SessionsDir = ExpandHome(cfg.SessionsDir)
	cfg.SummariesDir = ExpandHome(cfg.SummariesDir)
	cfg.PromptsDir = ExpandHome(cfg.PromptsDir)
	cfg.ModelsCache = ExpandHome(cfg.ModelsCache)
	cfg.LogFile = ExpandHome(cfg.LogFile)

	if cfg.Jobs < 1 {
		return nil, fmt.Errorf("invalid %s %d: must be at least 1", KeyJobs, cfg.Jobs)
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, fmt.Errorf("invalid %s %g: must be between 0 and 2", KeyTemperature, cfg.Temperature)
	}
	return &cfg, nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
