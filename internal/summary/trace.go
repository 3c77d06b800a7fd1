package summary

import (
	"fmt"
	"io"
	"time"
)

// State is a step of the summary state machine.
type State string

const (
	StateResolving  State = "resolving"
	StateCacheCheck State = "cache-check"
	StateCacheHit   State = "cache-hit"
	StateGenerating State = "generating"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Trace captures the decisions made for one summary request.
// When nil is passed to functions, they operate normally without tracing overhead.
type Trace struct {
	Key      CacheKey
	Location Location
	States   []State

	// Cache check
	CacheExists   bool
	CachedModel   string
	CachedPrompt  string
	CachedAt      time.Time
	LoadError     string
	Refresh       bool
	CacheDecision string

	// Prompt preflight
	PromptPath   string
	Placeholders []string
	PromptError  string
}

func (t *Trace) enter(s State) {
	if t != nil {
		t.States = append(t.States, s)
	}
}

// Final returns the last state reached.
func (t *Trace) Final() State {
	if t == nil || len(t.States) == 0 {
		return ""
	}
	return t.States[len(t.States)-1]
}

// Render writes a human-readable explanation of the trace.
func (t *Trace) Render(w io.Writer) {
	fmt.Fprintln(w, "=== Cache Location ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Session: %s\n", t.Location.Source)
	if t.Location.External {
		fmt.Fprintln(w, "  Outside the sessions root: stored under external/<hash>-<name>")
	} else {
		fmt.Fprintln(w, "  Under the sessions root: relative path mirrored")
	}
	fmt.Fprintf(w, "Summary:  %s\n", t.Location.SummaryPath)
	fmt.Fprintf(w, "Messages: %s\n", t.Location.MessagesPath)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Cache Check ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Requested: model=%s prompt=%s\n", t.Key.Model, t.Key.PromptVariant)
	switch {
	case t.LoadError != "":
		fmt.Fprintf(w, "Cached document: unreadable (%s)\n", t.LoadError)
	case t.CacheExists:
		cachedAt := "(unknown time)"
		if !t.CachedAt.IsZero() {
			cachedAt = t.CachedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "Cached document: model=%s prompt=%s generated %s\n", t.CachedModel, t.CachedPrompt, cachedAt)
	default:
		fmt.Fprintln(w, "Cached document: none")
	}
	if t.Refresh {
		fmt.Fprintln(w, "Refresh requested: cache ignored")
	}
	fmt.Fprintf(w, "Decision: %s\n", t.CacheDecision)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Prompt ===")
	fmt.Fprintln(w)
	if t.PromptPath != "" {
		fmt.Fprintf(w, "Template: %s\n", t.PromptPath)
	}
	if len(t.Placeholders) > 0 {
		fmt.Fprintf(w, "Placeholders: %v\n", t.Placeholders)
	}
	if t.PromptError != "" {
		fmt.Fprintf(w, "Error: %s\n", t.PromptError)
	} else if t.PromptPath != "" {
		fmt.Fprintln(w, "Status: ok")
	}
}
