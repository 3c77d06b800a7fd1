package summary

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/valyala/fasttemplate"
)

//go:embed prompts/*.md
var builtinPrompts embed.FS

const (
	placeholderOpen  = "{{"
	placeholderClose = "}}"
	builtinPrefix    = "builtin:"
)

// Placeholders the service knows how to fill.
const (
	VarSourcePath    = "source_path"
	VarSessionName   = "session_name"
	VarCWD           = "cwd"
	VarMessageCount  = "message_count"
	VarModel         = "model"
	VarPromptVariant = "prompt_variant"
	VarTranscript    = "transcript"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// Prompt is a loaded prompt template.
type Prompt struct {
	Name    string
	Path    string // File path, or builtin:<name>.md for embedded prompts
	Content string
}

// Placeholders lists the distinct placeholder names in the template.
func (p *Prompt) Placeholders() []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(p.Content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Uses reports whether the template references name.
func (p *Prompt) Uses(name string) bool {
	for _, n := range p.Placeholders() {
		if n == name {
			return true
		}
	}
	return false
}

// CheckPlaceholders fails if the template references a name missing from vars.
func (p *Prompt) CheckPlaceholders(vars map[string]string) error {
	var missing []string
	for _, name := range p.Placeholders() {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Reason: fmt.Sprintf("prompt %q references unknown placeholder(s): %s", p.Name, strings.Join(missing, ", "))}
	}
	return nil
}

// Render substitutes vars into the template.
func (p *Prompt) Render(vars map[string]string) (string, error) {
	if err := p.CheckPlaceholders(vars); err != nil {
		return "", err
	}
	tpl, err := fasttemplate.NewTemplate(p.Content, placeholderOpen, placeholderClose)
	if err != nil {
		return "", &ValidationError{Reason: fmt.Sprintf("prompt %q: %v", p.Name, err)}
	}
	return tpl.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		return w.Write([]byte(vars[strings.TrimSpace(tag)]))
	})
}

// PromptLoader resolves prompt variant names to templates.
type PromptLoader struct {
	fs   afero.Fs
	dirs []string
}

// NewPromptLoader searches dirs in order before the embedded prompts.
func NewPromptLoader(fs afero.Fs, dirs ...string) *PromptLoader {
	var clean []string
	for _, d := range dirs {
		if d != "" {
			clean = append(clean, d)
		}
	}
	return &PromptLoader{fs: fs, dirs: clean}
}

// Load resolves variant, which may be a file path, a name in a prompt
// directory (with or without extension) or a built-in name.
func (l *PromptLoader) Load(variant string) (*Prompt, error) {
	if variant == "" {
		return nil, &ValidationError{Reason: "prompt variant is empty"}
	}

	p, err := l.find(variant)
	if err != nil {
		return nil, err
	}
	if err := validateTemplate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (l *PromptLoader) find(variant string) (*Prompt, error) {
	if info, err := l.fs.Stat(variant); err == nil && !info.IsDir() {
		return l.readFile(variant, variant)
	}

	for _, dir := range l.dirs {
		for _, name := range variantCandidates(variant) {
			path := filepath.Join(dir, name)
			if info, err := l.fs.Stat(path); err == nil && !info.IsDir() {
				return l.readFile(variant, path)
			}
		}
	}

	for _, name := range variantCandidates(variant) {
		data, err := builtinPrompts.ReadFile("prompts/" + name)
		if err == nil {
			return &Prompt{Name: variant, Path: builtinPrefix + name, Content: string(data)}, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	searched := append(append([]string{}, l.dirs...), "built-in prompts")
	return nil, &ValidationError{Reason: fmt.Sprintf("prompt %q not found (searched %s)", variant, strings.Join(searched, ", "))}
}

func (l *PromptLoader) readFile(variant, path string) (*Prompt, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt: %w", err)
	}
	return &Prompt{Name: variant, Path: path, Content: string(data)}, nil
}

// Variants lists prompt names available from the prompt directories and
// the built-in set.
func (l *PromptLoader) Variants() []string {
	seen := make(map[string]bool)
	add := func(name string) {
		ext := filepath.Ext(name)
		if ext != ".md" && ext != ".txt" {
			return
		}
		seen[strings.TrimSuffix(name, ext)] = true
	}

	for _, dir := range l.dirs {
		entries, err := afero.ReadDir(l.fs, dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				add(e.Name())
			}
		}
	}
	if entries, err := builtinPrompts.ReadDir("prompts"); err == nil {
		for _, e := range entries {
			add(e.Name())
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func variantCandidates(variant string) []string {
	if filepath.Ext(variant) != "" {
		return []string{variant}
	}
	return []string{variant + ".md", variant + ".txt"}
}

// validateTemplate checks brace balance and that at least one placeholder exists.
func validateTemplate(p *Prompt) error {
	open := strings.Count(p.Content, placeholderOpen)
	closing := strings.Count(p.Content, placeholderClose)
	if open != closing {
		return &ValidationError{Reason: fmt.Sprintf("prompt %q has mismatched template braces: %d '{{' vs %d '}}'", p.Path, open, closing)}
	}
	if open == 0 {
		return &ValidationError{Reason: fmt.Sprintf("prompt %q has no template placeholders", p.Path)}
	}
	return nil
}
