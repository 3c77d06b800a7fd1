package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_SignalsOnNewSession(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(root, "rollout.jsonl"), []byte("{}\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change signal")
	}
}
