package session

import (
	"encoding/json"
	"strings"
	"time"
)

// Role is the normalized speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleUnknown   Role = "unknown"
)

// ParseRole maps a raw role string onto the normalized set.
// Codex records developer instructions as "developer"; those are system turns.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssistant
	case "system", "developer":
		return RoleSystem
	default:
		return RoleUnknown
	}
}

// Message is one normalized utterance extracted from a session log.
// Field order is the JSONL output order.
type Message struct {
	Role      Role            `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// ContentPart represents one segment of structured message content
// ("input_text", "output_text", "text", tool payloads, ...).
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Text extracts the readable text of the message.
// Handles both string content and arrays of content parts.
func (m Message) Text() string {
	if len(m.Content) == 0 {
		return ""
	}

	var str string
	if err := json.Unmarshal(m.Content, &str); err == nil {
		return str
	}

	var parts []ContentPart
	if err := json.Unmarshal(m.Content, &parts); err == nil {
		var texts []string
		for _, part := range parts {
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
		return strings.Join(texts, "\n")
	}

	return ""
}

// Transcript is the ordered result of extracting one session log.
// Lines == len(Messages) + Skipped; Malformed is the subset of Skipped
// that failed to parse.
type Transcript struct {
	Source     string
	WorkingDir string
	Messages   []Message
	Lines      int
	Skipped    int
	Malformed  int
}

// CodexSession represents a discovered session log file
type CodexSession struct {
	Index    int       // 1-based position in the most-recent-first listing
	Path     string    // Full path to the JSONL file
	RelPath  string    // Path relative to the sessions root
	Size     int64     // File size in bytes
	Modified time.Time // File modification time
}
