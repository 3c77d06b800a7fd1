package summary

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// IndexEntry is one line of the summaries index
type IndexEntry struct {
	SourcePath    string    `json:"source_path"`
	SummaryPath   string    `json:"summary_path"`
	Model         string    `json:"model"`
	PromptVariant string    `json:"prompt_variant"`
	GeneratedAt   time.Time `json:"generated_at"`
	MessageCount  int       `json:"message_count"`
	CostUSD       string    `json:"cost_usd,omitempty"`
}

// Index is the flat index.jsonl under the summaries root. It is a listing
// aid only; summary documents remain the source of truth.
type Index struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewIndex returns the index stored under summariesRoot.
func NewIndex(fs afero.Fs, summariesRoot string) *Index {
	return &Index{fs: fs, path: filepath.Join(summariesRoot, IndexFileName)}
}

// Path returns the index file location.
func (i *Index) Path() string {
	return i.path
}

// Append adds one entry to the index.
func (i *Index) Append(e IndexEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.fs.MkdirAll(filepath.Dir(i.path), 0755); err != nil {
		return err
	}
	f, err := i.fs.OpenFile(i.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}

// Load reads all index entries. A missing index is empty; damaged lines are skipped.
func (i *Index) Load() ([]IndexEntry, error) {
	f, err := i.fs.Open(i.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []IndexEntry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []IndexEntry
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			var e IndexEntry
			if json.Unmarshal(line, &e) == nil && e.SourcePath != "" {
				entries = append(entries, e)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read index: %w", err)
		}
	}
	return entries, nil
}

// Latest returns the most recent entry per source path.
func (i *Index) Latest() (map[string]IndexEntry, error) {
	entries, err := i.Load()
	if err != nil {
		return nil, err
	}
	latest := make(map[string]IndexEntry, len(entries))
	for _, e := range entries {
		if prev, ok := latest[e.SourcePath]; !ok || !e.GeneratedAt.Before(prev.GeneratedAt) {
			latest[e.SourcePath] = e
		}
	}
	return latest, nil
}
