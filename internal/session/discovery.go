package session

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// headerScanLines bounds how far ScanWorkingDir reads into a session.
// Codex writes session_meta (with cwd) as the first record.
const headerScanLines = 200

// ErrSessionNotFound is returned when a CLI argument matches no session.
var ErrSessionNotFound = errors.New("session not found")

// FindSessions discovers Codex session logs under root.
// Returns sessions sorted by modified time (most recent first).
func FindSessions(afs afero.Fs, root string) ([]CodexSession, error) {
	if _, err := afs.Stat(root); errors.Is(err, os.ErrNotExist) {
		return nil, nil // No sessions directory = no sessions
	}

	var sessions []CodexSession
	err := afero.Walk(afs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".jsonl") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		sessions = append(sessions, CodexSession{
			Path:     path,
			RelPath:  rel,
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].Modified.Equal(sessions[j].Modified) {
			return sessions[i].RelPath > sessions[j].RelPath
		}
		return sessions[i].Modified.After(sessions[j].Modified)
	})
	for i := range sessions {
		sessions[i].Index = i + 1
	}

	return sessions, nil
}

// ResolveSessionPath turns a CLI argument into a session file path.
// The argument may be a 1-based index into FindSessions, a path to an
// existing file, or a file name (with or without .jsonl) under root.
func ResolveSessionPath(afs afero.Fs, root, arg string, trace *TraceContext) (string, error) {
	if trace != nil {
		trace.Argument = arg
		trace.SessionsRoot = root
	}

	if n, err := strconv.Atoi(arg); err == nil && n > 0 && !fileExists(afs, arg) {
		sessions, err := FindSessions(afs, root)
		if err != nil {
			return "", err
		}
		if n > len(sessions) {
			return "", fmt.Errorf("%w: index %d out of range (found %d sessions)", ErrSessionNotFound, n, len(sessions))
		}
		trace.resolved("index", sessions[n-1].Path)
		return sessions[n-1].Path, nil
	}

	if fileExists(afs, arg) {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return "", err
		}
		trace.resolved("path", abs)
		return abs, nil
	}

	name := filepath.Base(arg)
	if !strings.HasSuffix(name, ".jsonl") {
		name += ".jsonl"
	}
	sessions, err := FindSessions(afs, root)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, s := range sessions {
		if filepath.Base(s.Path) == name {
			matches = append(matches, s.Path)
		}
	}
	if trace != nil {
		trace.Candidates = matches
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, arg)
	case 1:
		trace.resolved("name", matches[0])
		return matches[0], nil
	default:
		return "", fmt.Errorf("%s matches %d sessions; pass a full path", arg, len(matches))
	}
}

// ScanWorkingDir reads the head of a session and returns its working directory.
func ScanWorkingDir(afs afero.Fs, path string) string {
	f, err := afs.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for i := 0; i < headerScanLines; i++ {
		line, err := reader.ReadBytes('\n')
		if cwd := workingDirFromLine(line); cwd != "" {
			return cwd
		}
		if err != nil {
			break
		}
	}
	return ""
}

func fileExists(afs afero.Fs, path string) bool {
	info, err := afs.Stat(path)
	return err == nil && !info.IsDir()
}
