package session

import (
	"encoding/json"
	"maps"
	"regexp"
	"slices"
	"strings"
)

var cwdTagPattern = regexp.MustCompile(`<cwd>\s*([^<]+?)\s*</cwd>`)

// workingDirFromLine returns the working directory a record exposes, if any.
// Checked in order: top-level "cwd", payload "cwd" (Codex session_meta),
// then a <cwd>...</cwd> tag inside any string value.
func workingDirFromLine(line []byte) string {
	if !strings.Contains(string(line), "cwd") {
		return ""
	}

	var obj map[string]any
	if err := json.Unmarshal(line, &obj); err != nil {
		return ""
	}

	if cwd, ok := obj["cwd"].(string); ok && cwd != "" {
		return cwd
	}
	if payload, ok := obj["payload"].(map[string]any); ok {
		if cwd, ok := payload["cwd"].(string); ok && cwd != "" {
			return cwd
		}
	}
	return findCWDTag(obj)
}

// findCWDTag walks v depth-first and returns the first tagged working directory.
func findCWDTag(v any) string {
	switch val := v.(type) {
	case string:
		if m := cwdTagPattern.FindStringSubmatch(val); m != nil {
			return m[1]
		}
	case map[string]any:
		for _, key := range slices.Sorted(maps.Keys(val)) {
			if cwd := findCWDTag(val[key]); cwd != "" {
				return cwd
			}
		}
	case []any:
		for _, inner := range val {
			if cwd := findCWDTag(inner); cwd != "" {
				return cwd
			}
		}
	}
	return ""
}
