package session

// TraceContext captures how a session argument was resolved.
// When nil is passed to functions, they operate normally without tracing overhead.
type TraceContext struct {
	Argument     string
	SessionsRoot string
	Method       string   // "index", "path" or "name"
	Candidates   []string // Name matches considered
	Resolved     string
}

func (t *TraceContext) resolved(method, path string) {
	if t == nil {
		return
	}
	t.Method = method
	t.Resolved = path
}
