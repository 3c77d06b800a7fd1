package summary

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptLoader_Builtin(t *testing.T) {
	loader := NewPromptLoader(afero.NewMemMapFs())

	p, err := loader.Load("default")
	require.NoError(t, err)
	assert.Equal(t, "builtin:default.md", p.Path)
	assert.ElementsMatch(t, []string{VarSessionName, VarCWD, VarMessageCount}, p.Placeholders())
	assert.False(t, p.Uses(VarTranscript))

	brief, err := loader.Load("brief")
	require.NoError(t, err)
	assert.True(t, brief.Uses(VarTranscript))
}

func TestPromptLoader_SearchOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/user/prompts/default.md", []byte("user {{cwd}}"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/shared/prompts/default.md", []byte("shared {{cwd}}"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/shared/prompts/terse.txt", []byte("terse {{transcript}}"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/tmp/mine.md", []byte("mine {{model}}"), 0644))

	loader := NewPromptLoader(fs, "/user/prompts", "", "/shared/prompts")

	tests := []struct {
		variant string
		path    string
	}{
		{"default", "/user/prompts/default.md"},
		{"terse", "/shared/prompts/terse.txt"},
		{"terse.txt", "/shared/prompts/terse.txt"},
		{"/tmp/mine.md", "/tmp/mine.md"},
		{"changelog", "builtin:changelog.md"},
	}
	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			p, err := loader.Load(tt.variant)
			if err != nil {
				t.Fatalf("Load(%q) error: %v", tt.variant, err)
			}
			if p.Path != tt.path {
				t.Errorf("Load(%q).Path = %q, want %q", tt.variant, p.Path, tt.path)
			}
		})
	}
}

func TestPromptLoader_Invalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/p/unbalanced.md", []byte("{{cwd}} and }}"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/p/static.md", []byte("no placeholders here"), 0644))
	loader := NewPromptLoader(fs, "/p")

	for _, variant := range []string{"unbalanced", "static", "missing", ""} {
		t.Run(variant, func(t *testing.T) {
			_, err := loader.Load(variant)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Load(%q) error = %v, want *ValidationError", variant, err)
			}
		})
	}
}

func TestPrompt_Render(t *testing.T) {
	p := &Prompt{Name: "t", Content: "Session {{ session_name }} in {{cwd}}: {{cwd}}"}

	got, err := p.Render(map[string]string{VarSessionName: "rollout-a", VarCWD: "/work"})
	require.NoError(t, err)
	assert.Equal(t, "Session rollout-a in /work: /work", got)
}

func TestPrompt_RenderDoesNotExpandValues(t *testing.T) {
	p := &Prompt{Name: "t", Content: "{{transcript}}"}

	got, err := p.Render(map[string]string{VarTranscript: `{"content":"{{cwd}}"}`})
	require.NoError(t, err)
	assert.Equal(t, `{"content":"{{cwd}}"}`, got)
}

func TestPrompt_CheckPlaceholders(t *testing.T) {
	p := &Prompt{Name: "t", Content: "{{cwd}} {{ticket_id}} {{owner}}"}

	err := p.CheckPlaceholders(map[string]string{VarCWD: "/w"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "ticket_id, owner")

	_, err = p.Render(map[string]string{VarCWD: "/w"})
	assert.ErrorAs(t, err, &verr)
}

func TestPromptLoader_Variants(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/p/review.md", []byte("{{cwd}}"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/p/default.txt", []byte("{{cwd}}"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/p/notes.json", []byte("{}"), 0644))

	got := NewPromptLoader(fs, "/p", "/missing").Variants()
	want := []string{"brief", "changelog", "default", "review"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Variants() mismatch (-want +got):\n%s", diff)
	}
}
