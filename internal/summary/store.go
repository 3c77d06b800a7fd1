package summary

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/QuesmaOrg/codex-summarize-session/internal/fsutil"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const frontMatterDelimiter = "---"

var (
	// ErrNoSummary is returned by Load when no document exists at the path.
	ErrNoSummary = errors.New("no cached summary")
	// ErrFrontMatter is returned when the metadata block itself is damaged.
	ErrFrontMatter = errors.New("malformed front matter")
)

// Store reads and writes summary documents.
type Store struct {
	fs afero.Fs
}

// NewStore creates a store over fs.
func NewStore(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// Load reads the document at path. A missing file yields ErrNoSummary; an
// unreadable file or damaged front matter is a hard error.
func (s *Store) Load(path string) (*Record, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSummary
		}
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	meta, body, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Record{Metadata: meta, Body: body, Path: path}, nil
}

// Save atomically writes rec to path and records the path on rec.
func (s *Store) Save(path string, rec *Record) error {
	data, err := Render(rec.Metadata, rec.Body)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.fs, path, data, 0644); err != nil {
		return err
	}
	rec.Path = path
	return nil
}

// Parse splits a document into front matter and body. A document that does
// not start with a delimiter line has empty metadata.
func Parse(data []byte) (Metadata, string, error) {
	text := string(data)
	first, rest, found := strings.Cut(text, "\n")
	if !isDelimiter(first) {
		return Metadata{}, text, nil
	}
	if !found {
		return Metadata{}, "", fmt.Errorf("%w: unterminated block", ErrFrontMatter)
	}

	var front strings.Builder
	for {
		line, next, more := strings.Cut(rest, "\n")
		if isDelimiter(line) {
			meta, err := decodeFrontMatter(front.String())
			if err != nil {
				return Metadata{}, "", err
			}
			body := strings.TrimPrefix(strings.TrimPrefix(next, "\r"), "\n")
			return meta, body, nil
		}
		if !more {
			return Metadata{}, "", fmt.Errorf("%w: unterminated block", ErrFrontMatter)
		}
		front.WriteString(line)
		front.WriteByte('\n')
		rest = next
	}
}

// isDelimiter reports whether line is exactly "---". Indented lines belong
// to YAML block scalars and never close the front matter.
func isDelimiter(line string) bool {
	return strings.TrimSuffix(line, "\r") == frontMatterDelimiter
}

func decodeFrontMatter(text string) (Metadata, error) {
	var meta Metadata
	if strings.TrimSpace(text) == "" {
		return meta, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		return meta, fmt.Errorf("%w: %v", ErrFrontMatter, err)
	}
	if len(node.Content) == 0 {
		return meta, nil
	}
	if node.Content[0].Kind != yaml.MappingNode {
		return meta, fmt.Errorf("%w: expected a mapping", ErrFrontMatter)
	}
	if err := node.Decode(&meta); err != nil {
		return meta, fmt.Errorf("%w: %v", ErrFrontMatter, err)
	}
	return meta, nil
}

// Render produces front matter, a blank line, then the body with a
// trailing newline.
func Render(meta Metadata, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(frontMatterDelimiter + "\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(meta); err != nil {
		return nil, fmt.Errorf("failed to encode front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode front matter: %w", err)
	}

	buf.WriteString(frontMatterDelimiter + "\n\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
