package browse

import (
	"github.com/QuesmaOrg/codex-summarize-session/internal/session"
	"github.com/QuesmaOrg/codex-summarize-session/internal/summary"
	"github.com/sahilm/fuzzy"
)

// item is one session row in the browser.
type item struct {
	Session session.CodexSession
	CWD     string
	Summary *summary.Record
	Err     error // last summary load or generation failure

	rendered      string
	renderedWidth int
}

// Path returns the session log path.
func (it *item) Path() string {
	return it.Session.Path
}

type itemSource []*item

func (s itemSource) String(i int) string { return s[i].Session.RelPath + " " + s[i].CWD }
func (s itemSource) Len() int            { return len(s) }

// filterItems returns indexes of the items matching query, best match
// first. An empty query keeps every item in listing order.
func filterItems(items []*item, query string) []int {
	if query == "" {
		idx := make([]int, len(items))
		for i := range items {
			idx[i] = i
		}
		return idx
	}
	matches := fuzzy.FindFrom(query, itemSource(items))
	idx := make([]int, 0, len(matches))
	for _, m := range matches {
		idx = append(idx, m.Index)
	}
	return idx
}
