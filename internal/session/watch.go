package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/QuesmaOrg/codex-summarize-session/internal/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of writes Codex makes per turn.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watcher reports session log changes under a root directory.
// Codex nests sessions by date, so directories are watched recursively.
type Watcher struct {
	watcher *fsnotify.Watcher
	changes chan struct{}
	delay   time.Duration
	done    chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher starts watching root. Close must be called to release it.
func NewWatcher(root string, delay time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher: fw,
		changes: make(chan struct{}, 1),
		delay:   delay,
		done:    make(chan struct{}),
	}
	if err := w.watchRecursive(root); err != nil {
		fw.Close()
		return nil, err
	}

	go w.eventLoop()
	return w, nil
}

// Changes delivers one signal per debounced burst of session changes.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

// watchRecursive adds all directories under root to the watcher
func (w *Watcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to watch directory")
			}
		}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watchRecursive(event.Name)
			return
		}
	}
	if !strings.HasSuffix(event.Name, ".jsonl") {
		return
	}
	w.queue()
}

// queue (re)arms the debounce timer.
func (w *Watcher) queue() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, func() {
		select {
		case w.changes <- struct{}{}:
		default: // A signal is already pending
		}
	})
}
