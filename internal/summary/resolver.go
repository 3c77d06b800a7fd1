// Package summary derives cache locations, persists summary documents and
// orchestrates summary generation for session logs.
package summary

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	SummaryFileName  = "summary.md"
	MessagesFileName = "summary.messages.jsonl"
	IndexFileName    = "index.jsonl"

	externalDir   = "external"
	hashLength    = 12
	maxSlugLength = 48
)

// CacheKey identifies one summary request.
// Prompt variant and model live in metadata, not in the path.
type CacheKey struct {
	Source        string
	PromptVariant string
	Model         string
}

// Location is where the artifacts of one session live.
type Location struct {
	Dir          string
	SummaryPath  string
	MessagesPath string
	Source       string // Normalized absolute source path
	External     bool
}

// PathResolver maps sessions to cache directories. It performs no I/O after
// construction.
type PathResolver struct {
	SummariesRoot string
	SessionsRoot  string
	WorkDir       string // Base for relative source paths
}

// NewPathResolver captures the working directory once so resolution of
// relative paths stays deterministic for the life of the resolver.
func NewPathResolver(summariesRoot, sessionsRoot string) (*PathResolver, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	r := &PathResolver{WorkDir: wd}
	r.SummariesRoot = r.normalize(summariesRoot)
	if sessionsRoot != "" {
		r.SessionsRoot = r.normalize(sessionsRoot)
	}
	return r, nil
}

// Resolve returns the cache location for key.
func (r *PathResolver) Resolve(key CacheKey) Location {
	src := r.normalize(key.Source)

	var dir string
	external := false
	if rel, ok := r.relativeToSessions(src); ok {
		dir = filepath.Join(r.SummariesRoot, rel)
	} else {
		external = true
		dir = filepath.Join(r.SummariesRoot, externalDir, ExternalLabel(src))
	}

	return Location{
		Dir:          dir,
		SummaryPath:  filepath.Join(dir, SummaryFileName),
		MessagesPath: filepath.Join(dir, MessagesFileName),
		Source:       src,
		External:     external,
	}
}

func (r *PathResolver) relativeToSessions(src string) (string, bool) {
	if r.SessionsRoot == "" {
		return "", false
	}
	rel, err := filepath.Rel(r.SessionsRoot, src)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

func (r *PathResolver) normalize(path string) string {
	if path == "" {
		return r.WorkDir
	}
	if strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.WorkDir, path)
	}
	return filepath.Clean(path)
}

// ExternalLabel returns "<hash>-<slug>" for a source outside the sessions root.
// The hash covers the full normalized path; the slug is only for humans.
func ExternalLabel(path string) string {
	sum := sha1.Sum([]byte(path))
	digest := hex.EncodeToString(sum[:])[:hashLength]
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return digest + "-" + Slugify(stem)
}

// Slugify lower-cases s and replaces runs of non-alphanumerics with "-".
// An empty result becomes "default".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(truncateRunes(slug, maxSlugLength), "-")
	}
	if slug == "" {
		return "default"
	}
	return slug
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
