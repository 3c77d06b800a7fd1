package session

import (
	"bytes"
	"encoding/json"
)

const (
	typeMessage      = "message"
	typeResponseItem = "response_item"
)

// LineKind classifies the outcome of parsing one log line.
type LineKind int

const (
	LineMessage   LineKind = iota // produced a Message
	LineIgnored                   // valid record that is not a message
	LineBlank                     // empty or whitespace-only
	LineMalformed                 // not a JSON object
)

// rawRecord is the subset of a Codex log record the parser looks at.
// Payload is only set on envelope records.
type rawRecord struct {
	Type      string          `json:"type"`
	Role      json.RawMessage `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp json.RawMessage `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// recordKind is the tag of a decoded record.
type recordKind int

const (
	kindOther recordKind = iota
	kindMessage
	kindEnvelope
)

func (r *rawRecord) kind() recordKind {
	switch r.Type {
	case typeMessage:
		return kindMessage
	case typeResponseItem:
		return kindEnvelope
	default:
		return kindOther
	}
}

// ParseEntry converts one raw log line into at most one Message.
// It never fails: malformed input is reported through the returned kind.
func ParseEntry(line []byte) (Message, LineKind) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Message{}, LineBlank
	}

	var rec rawRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return Message{}, LineMalformed
	}

	switch rec.kind() {
	case kindMessage:
		return messageFromRecord(&rec, ""), LineMessage
	case kindEnvelope:
		// Envelopes are unwrapped once; a nested envelope is not a message.
		var inner rawRecord
		if len(rec.Payload) == 0 || json.Unmarshal(rec.Payload, &inner) != nil {
			return Message{}, LineIgnored
		}
		if inner.kind() != kindMessage {
			return Message{}, LineIgnored
		}
		return messageFromRecord(&inner, stringValue(rec.Timestamp)), LineMessage
	default:
		return Message{}, LineIgnored
	}
}

// messageFromRecord builds a Message from a message-typed record.
// fallbackTimestamp is used when the record carries none of its own.
func messageFromRecord(rec *rawRecord, fallbackTimestamp string) Message {
	content := rec.Content
	if len(content) == 0 || bytes.Equal(content, []byte("null")) {
		content = json.RawMessage(`""`)
	}

	ts := stringValue(rec.Timestamp)
	if ts == "" {
		ts = fallbackTimestamp
	}

	return Message{
		Role:      ParseRole(stringValue(rec.Role)),
		Content:   content,
		Timestamp: ts,
	}
}

// stringValue returns the JSON string held in raw, or "" for anything else.
func stringValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
