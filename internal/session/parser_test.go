package session

import (
	"testing"
)

func TestParseEntry_DirectMessage(t *testing.T) {
	msg, kind := ParseEntry([]byte(`{"type":"message","role":"user","content":"hi"}`))
	if kind != LineMessage {
		t.Fatalf("kind = %v, want LineMessage", kind)
	}
	if msg.Role != RoleUser {
		t.Errorf("role = %q, want %q", msg.Role, RoleUser)
	}
	if string(msg.Content) != `"hi"` {
		t.Errorf("content = %s, want %q", msg.Content, `"hi"`)
	}
	if msg.Timestamp != "" {
		t.Errorf("timestamp = %q, want empty", msg.Timestamp)
	}
}

func TestParseEntry_ResponseItemEnvelope(t *testing.T) {
	line := `{"type":"response_item","payload":{"type":"message","role":"assistant","content":"ok","timestamp":"2025-01-01T00:00:00Z"}}`

	msg, kind := ParseEntry([]byte(line))
	if kind != LineMessage {
		t.Fatalf("kind = %v, want LineMessage", kind)
	}
	if msg.Role != RoleAssistant {
		t.Errorf("role = %q, want %q", msg.Role, RoleAssistant)
	}
	if string(msg.Content) != `"ok"` {
		t.Errorf("content = %s, want %q", msg.Content, `"ok"`)
	}
	if msg.Timestamp != "2025-01-01T00:00:00Z" {
		t.Errorf("timestamp = %q, want %q", msg.Timestamp, "2025-01-01T00:00:00Z")
	}
}

func TestParseEntry_EnvelopeTimestampFallback(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "envelope timestamp used when payload has none",
			line: `{"timestamp":"2025-09-01T10:00:00.000Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"hello"}]}}`,
			want: "2025-09-01T10:00:00.000Z",
		},
		{
			name: "payload timestamp wins",
			line: `{"timestamp":"2025-09-01T10:00:00Z","type":"response_item","payload":{"type":"message","role":"user","content":"x","timestamp":"2025-09-01T09:00:00Z"}}`,
			want: "2025-09-01T09:00:00Z",
		},
		{
			name: "no timestamps anywhere",
			line: `{"type":"response_item","payload":{"type":"message","role":"user","content":"x"}}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, kind := ParseEntry([]byte(tt.line))
			if kind != LineMessage {
				t.Fatalf("kind = %v, want LineMessage", kind)
			}
			if msg.Timestamp != tt.want {
				t.Errorf("timestamp = %q, want %q", msg.Timestamp, tt.want)
			}
		})
	}
}

func TestParseEntry_StructuredContentPreserved(t *testing.T) {
	line := `{"type":"message","role":"assistant","content":[{"type":"output_text","text":"done"},{"type":"tool_use","name":"shell","input":{"cmd":["ls","-la"]}}]}`

	msg, kind := ParseEntry([]byte(line))
	if kind != LineMessage {
		t.Fatalf("kind = %v, want LineMessage", kind)
	}
	want := `[{"type":"output_text","text":"done"},{"type":"tool_use","name":"shell","input":{"cmd":["ls","-la"]}}]`
	if string(msg.Content) != want {
		t.Errorf("content = %s, want %s", msg.Content, want)
	}
}

func TestParseEntry_NonMessages(t *testing.T) {
	tests := []struct {
		name string
		line string
		want LineKind
	}{
		{"other type", `{"type":"other"}`, LineIgnored},
		{"no type", `{"role":"user","content":"hi"}`, LineIgnored},
		{"session meta", `{"type":"session_meta","payload":{"id":"abc","cwd":"/repo"}}`, LineIgnored},
		{"envelope with non-message payload", `{"type":"response_item","payload":{"type":"function_call","name":"shell"}}`, LineIgnored},
		{"envelope without payload", `{"type":"response_item"}`, LineIgnored},
		{"nested envelope not unwrapped", `{"type":"response_item","payload":{"type":"response_item","payload":{"type":"message","role":"user","content":"x"}}}`, LineIgnored},
		{"payload on unknown wrapper", `{"type":"event_msg","payload":{"type":"message","role":"user","content":"x"}}`, LineIgnored},
		{"blank", "   ", LineBlank},
		{"empty", "", LineBlank},
		{"truncated json", `{"type":"message","role":"user"`, LineMalformed},
		{"array", `[1,2,3]`, LineMalformed},
		{"plain text", `hello world`, LineMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, kind := ParseEntry([]byte(tt.line))
			if kind != tt.want {
				t.Errorf("ParseEntry(%q) kind = %v, want %v", tt.line, kind, tt.want)
			}
		})
	}
}

func TestParseEntry_MissingContent(t *testing.T) {
	msg, kind := ParseEntry([]byte(`{"type":"message","role":"user"}`))
	if kind != LineMessage {
		t.Fatalf("kind = %v, want LineMessage", kind)
	}
	if string(msg.Content) != `""` {
		t.Errorf("content = %s, want empty string", msg.Content)
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input string
		want  Role
	}{
		{"user", RoleUser},
		{"assistant", RoleAssistant},
		{"system", RoleSystem},
		{"developer", RoleSystem},
		{"USER", RoleUser},
		{"tool", RoleUnknown},
		{"", RoleUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseRole(tt.input); got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"string", `"hello"`, "hello"},
		{"parts", `[{"type":"input_text","text":"a"},{"type":"image"},{"type":"input_text","text":"b"}]`, "a\nb"},
		{"object", `{"x":1}`, ""},
		{"empty", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Message{Role: RoleUser, Content: []byte(tt.content)}
			if got := m.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}
