// Package display provides shared display utilities for terminal output.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// RoleEmoji maps message roles to their display emojis.
var RoleEmoji = map[string]string{
	"user":      "💬",
	"assistant": "🤖",
	"system":    "⚙️",
}

// GetRoleEmoji returns an emoji for the given role.
// Returns "•" for unknown roles.
func GetRoleEmoji(role string) string {
	if emoji, ok := RoleEmoji[role]; ok {
		return emoji
	}
	return "•"
}

// TruncateText truncates text to maxLen runes, replacing newlines with spaces.
// If truncated, adds "..." suffix.
func TruncateText(s string, maxLen int) string {
	text := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, s)

	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// FormatSize renders a byte count like "1.2 MB".
func FormatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// FormatAge renders how long ago t was, like "3 hours ago".
func FormatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// FormatTokens renders a token count with thousands separators.
func FormatTokens(n int) string {
	return humanize.Comma(int64(n))
}

// FormatPath shortens a path under home to "~/...".
func FormatPath(path, home string) string {
	if home != "" && (path == home || strings.HasPrefix(path, home+"/")) {
		return "~" + strings.TrimPrefix(path, home)
	}
	return path
}

// Plural returns "1 message" or "n messages".
func Plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
