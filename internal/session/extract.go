package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/QuesmaOrg/codex-summarize-session/internal/fsutil"
	"github.com/spf13/afero"
)

// ErrOutputExists is returned when an extraction target already exists and
// overwriting was not requested.
var ErrOutputExists = errors.New("output file already exists")

// Extract reads session log lines from r and returns the normalized transcript.
// Per-line parse failures are counted, never returned; only read errors abort.
func Extract(r io.Reader, source string) (*Transcript, error) {
	t := &Transcript{Source: source, Messages: []Message{}}

	// bufio.Reader rather than Scanner: response lines have no size bound.
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			t.addLine(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read %s: %w", source, err)
		}
	}

	return t, nil
}

// addLine classifies one raw line and updates the transcript counts.
func (t *Transcript) addLine(line []byte) {
	t.Lines++

	if t.WorkingDir == "" {
		t.WorkingDir = workingDirFromLine(line)
	}

	msg, kind := ParseEntry(line)
	switch kind {
	case LineMessage:
		t.Messages = append(t.Messages, msg)
	case LineMalformed:
		t.Malformed++
		t.Skipped++
	default:
		t.Skipped++
	}
}

// ExtractFile opens path on fs and extracts it.
func ExtractFile(fs afero.Fs, path string) (*Transcript, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer f.Close()

	return Extract(f, path)
}

// WriteJSONL writes one canonical message per line.
func WriteJSONL(w io.Writer, messages []Message) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, m := range messages {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}
	return bw.Flush()
}

// EncodeJSONL renders messages as JSONL in memory.
func EncodeJSONL(messages []Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteJSONL(&buf, messages); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSONLFile atomically writes messages to path. An existing file is
// only replaced when force is set.
func WriteJSONLFile(fs afero.Fs, path string, messages []Message, force bool) error {
	if !force && fsutil.Exists(fs, path) {
		return fmt.Errorf("%s: %w", path, ErrOutputExists)
	}

	data, err := EncodeJSONL(messages)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(fs, path, data, 0644)
}
