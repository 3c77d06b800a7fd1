package openrouter

import (
	"github.com/sahilm/fuzzy"
)

type modelSource []ModelInfo

func (s modelSource) String(i int) string { return s[i].ID }
func (s modelSource) Len() int            { return len(s) }

// FilterModels returns the models whose id fuzzily matches query, best
// match first. An empty query returns models unchanged.
func FilterModels(models []ModelInfo, query string) []ModelInfo {
	if query == "" {
		return models
	}
	matches := fuzzy.FindFrom(query, modelSource(models))
	out := make([]ModelInfo, 0, len(matches))
	for _, m := range matches {
		out = append(out, models[m.Index])
	}
	return out
}
