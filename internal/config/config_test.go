package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// clearEnv unsets variables from the developer's shell that would leak into
// Load and points the XDG directories at a temporary directory.
func clearEnv(t *testing.T) {
	t.Helper()
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(base, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(base, "cache"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "state"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix+"_") || name == OpenRouterKeyEnv {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	keyring.MockInit()

	cfg, err := Load(New(""), nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.ConfigFile)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultPrompt, cfg.Prompt)
	assert.Equal(t, DefaultReasoningEffort, cfg.ReasoningEffort)
	assert.InDelta(t, DefaultTemperature, cfg.Temperature, 1e-9)
	assert.Equal(t, DefaultJobs, cfg.Jobs)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.True(t, strings.HasSuffix(cfg.SessionsDir, filepath.Join(".codex", "sessions")), cfg.SessionsDir)
	assert.Equal(t, filepath.Join(xdg.DataHome, AppName, "summaries"), cfg.SummariesDir)
	assert.Equal(t, filepath.Join(xdg.ConfigHome, AppName, "prompts"), cfg.PromptsDir)
	assert.Equal(t, filepath.Join(xdg.CacheHome, AppName, "models.json"), cfg.ModelsCache)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, KeySourceNone, cfg.KeySource)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(New(filepath.Join(t.TempDir(), "absent.yaml")), nil)
	assert.Error(t, err)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "model: anthropic/claude-sonnet-4\njobs: 5\nsummaries_dir: ~/summaries\nprompt: brief\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("CODEX_SUMMARIZE_JOBS", "8")

	cfg, err := Load(New(path), nil)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "anthropic/claude-sonnet-4", cfg.Model)
	assert.Equal(t, "brief", cfg.Prompt)
	assert.Equal(t, 8, cfg.Jobs)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "summaries"), cfg.SummariesDir)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	tests := map[string]string{
		"jobs":        "jobs: 0\n",
		"temperature": "temperature: 3.5\n",
		"yaml":        "model: [unclosed\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			_, err := Load(New(path), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoad_APIKeyPrecedence(t *testing.T) {
	clearEnv(t)
	keyring.MockInit()
	store := NewKeyring()
	require.NoError(t, store.Set("sk-or-from-keyring"))

	cfg, err := Load(New(""), store)
	require.NoError(t, err)
	assert.Equal(t, "sk-or-from-keyring", cfg.APIKey)
	assert.Equal(t, KeySourceKeyring, cfg.KeySource)

	t.Setenv(OpenRouterKeyEnv, "sk-or-from-openrouter-env")
	cfg, err = Load(New(""), store)
	require.NoError(t, err)
	assert.Equal(t, "sk-or-from-openrouter-env", cfg.APIKey)
	assert.Equal(t, KeySourceEnv, cfg.KeySource)

	t.Setenv("CODEX_SUMMARIZE_API_KEY", "sk-or-from-prefixed-env")
	cfg, err = Load(New(""), store)
	require.NoError(t, err)
	assert.Equal(t, "sk-or-from-prefixed-env", cfg.APIKey)
	assert.Equal(t, KeySourceEnv, cfg.KeySource)
}

func TestKeyring_RoundTrip(t *testing.T) {
	keyring.MockInit()
	store := NewKeyring()

	_, err := store.Get()
	assert.ErrorIs(t, err, ErrNoAPIKey)

	assert.Error(t, store.Set("   "))
	require.NoError(t, store.Set(" sk-or-v1-abc "))

	key, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "sk-or-v1-abc", key)

	require.NoError(t, store.Delete())
	assert.ErrorIs(t, store.Delete(), ErrNoAPIKey)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/x/y", filepath.Join(home, "x", "y")},
		{"/abs/path", "/abs/path"},
		{"rel/~/path", "rel/~/path"},
		{"~other/path", "~other/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
