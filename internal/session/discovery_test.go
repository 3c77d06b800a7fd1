package session

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func writeSession(t *testing.T, fs afero.Fs, path, content string, mtime time.Time) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", path, err)
	}
	if err := fs.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Chtimes(%s) error: %v", path, err)
	}
}

func newSessionsFs(t *testing.T) (afero.Fs, string) {
	t.Helper()
	fs := afero.NewMemMapFs()
	root := "/home/dev/.codex/sessions"
	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	writeSession(t, fs, filepath.Join(root, "2025/09/01/rollout-a.jsonl"), `{"type":"session_meta","payload":{"cwd":"/work/a"}}`+"\n", base)
	writeSession(t, fs, filepath.Join(root, "2025/09/02/rollout-b.jsonl"), `{"type":"message","role":"user","content":"<cwd>/work/b</cwd>"}`+"\n", base.Add(time.Hour))
	writeSession(t, fs, filepath.Join(root, "2025/09/02/notes.txt"), "ignored", base.Add(2*time.Hour))
	return fs, root
}

func TestFindSessions_SortedByModified(t *testing.T) {
	fs, root := newSessionsFs(t)

	sessions, err := FindSessions(fs, root)
	if err != nil {
		t.Fatalf("FindSessions() error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].RelPath != filepath.FromSlash("2025/09/02/rollout-b.jsonl") {
		t.Errorf("sessions[0].RelPath = %q, want most recent first", sessions[0].RelPath)
	}
	if sessions[0].Index != 1 || sessions[1].Index != 2 {
		t.Errorf("indexes = %d,%d, want 1,2", sessions[0].Index, sessions[1].Index)
	}
}

func TestFindSessions_MissingRoot(t *testing.T) {
	sessions, err := FindSessions(afero.NewMemMapFs(), "/nowhere")
	if err != nil {
		t.Fatalf("FindSessions() error: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected no sessions, got %d", len(sessions))
	}
}

func TestResolveSessionPath(t *testing.T) {
	fs, root := newSessionsFs(t)

	tests := []struct {
		name       string
		arg        string
		want       string
		wantMethod string
	}{
		{"index", "2", filepath.Join(root, "2025/09/01/rollout-a.jsonl"), "index"},
		{"full path", filepath.Join(root, "2025/09/02/rollout-b.jsonl"), filepath.Join(root, "2025/09/02/rollout-b.jsonl"), "path"},
		{"file name", "rollout-a.jsonl", filepath.Join(root, "2025/09/01/rollout-a.jsonl"), "name"},
		{"stem", "rollout-b", filepath.Join(root, "2025/09/02/rollout-b.jsonl"), "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trace := &TraceContext{}
			got, err := ResolveSessionPath(fs, root, tt.arg, trace)
			if err != nil {
				t.Fatalf("ResolveSessionPath(%q) error: %v", tt.arg, err)
			}
			if got != tt.want {
				t.Errorf("ResolveSessionPath(%q) = %q, want %q", tt.arg, got, tt.want)
			}
			if trace.Method != tt.wantMethod {
				t.Errorf("trace.Method = %q, want %q", trace.Method, tt.wantMethod)
			}
		})
	}
}

func TestResolveSessionPath_NotFound(t *testing.T) {
	fs, root := newSessionsFs(t)

	for _, arg := range []string{"9", "missing"} {
		if _, err := ResolveSessionPath(fs, root, arg, nil); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("ResolveSessionPath(%q) error = %v, want ErrSessionNotFound", arg, err)
		}
	}
}

func TestScanWorkingDir(t *testing.T) {
	fs, root := newSessionsFs(t)

	tests := []struct {
		path string
		want string
	}{
		{filepath.Join(root, "2025/09/01/rollout-a.jsonl"), "/work/a"},
		{filepath.Join(root, "2025/09/02/rollout-b.jsonl"), "/work/b"},
		{filepath.Join(root, "missing.jsonl"), ""},
	}

	for _, tt := range tests {
		if got := ScanWorkingDir(fs, tt.path); got != tt.want {
			t.Errorf("ScanWorkingDir(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
