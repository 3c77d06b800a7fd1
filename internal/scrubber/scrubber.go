// Package scrubber redacts secrets and personal data from transcripts
// before they leave the machine, and from diagnostics.
package scrubber

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

// Scrubber is the interface for PII scrubbing implementations
type Scrubber interface {
	// Scrub processes JSONL content and replaces PII with placeholders
	Scrub(content []byte) ([]byte, error)
	// ScrubJSON scrubs the string values of a single JSON document
	ScrubJSON(value []byte) ([]byte, error)
	// ScrubText scrubs plain text
	ScrubText(text string) string
}

// Recognizer defines a PII pattern recognizer
type Recognizer struct {
	Name        string    `yaml:"name"`
	EntityType  string    `yaml:"entity_type"`
	Patterns    []Pattern `yaml:"patterns"`
	Replacement string    `yaml:"replacement"`
}

// Pattern defines a single regex pattern
type Pattern struct {
	Regex string `yaml:"regex"`
}

// CompiledRecognizer is a recognizer with compiled regex patterns
type CompiledRecognizer struct {
	Name        string
	EntityType  string
	Patterns    []*regexp.Regexp
	Replacement string
}

// PIIScrubber implements the Scrubber interface
type PIIScrubber struct {
	recognizers []CompiledRecognizer
}

var defaultScrubber *PIIScrubber

func init() {
	// Ensure patterns compile at init time to catch errors early
	s, err := NewDefault()
	if err != nil {
		panic("invalid default pattern: " + err.Error())
	}
	defaultScrubber = s
}

// New creates a new PIIScrubber with the given recognizers
func New(recognizers []Recognizer) (*PIIScrubber, error) {
	compiled := make([]CompiledRecognizer, 0, len(recognizers))

	for _, r := range recognizers {
		cr := CompiledRecognizer{
			Name:        r.Name,
			EntityType:  r.EntityType,
			Replacement: r.Replacement,
			Patterns:    make([]*regexp.Regexp, 0, len(r.Patterns)),
		}

		for _, p := range r.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, err
			}
			cr.Patterns = append(cr.Patterns, re)
		}

		compiled = append(compiled, cr)
	}

	return &PIIScrubber{recognizers: compiled}, nil
}

// NewDefault creates a PIIScrubber with built-in patterns
func NewDefault() (*PIIScrubber, error) {
	return New(DefaultRecognizers())
}

// Scrub implements the Scrubber interface for JSONL content.
// Lines that are not JSON are scrubbed as plain text.
func (s *PIIScrubber) Scrub(content []byte) ([]byte, error) {
	var result bytes.Buffer
	reader := bufio.NewReader(bytes.NewReader(content))

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := bytes.TrimRight(line, "\r\n")
			newline := line[len(trimmed):]

			scrubbed, jsonErr := s.ScrubJSON(trimmed)
			if jsonErr != nil {
				scrubbed = []byte(s.ScrubText(string(trimmed)))
			}
			result.Write(scrubbed)
			result.Write(newline)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}

	return result.Bytes(), nil
}

// ScrubJSON decodes one JSON value, scrubs its strings and re-encodes it
// without HTML escaping so placeholders stay readable.
func (s *PIIScrubber) ScrubJSON(value []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(value, &v); err != nil {
		return nil, err
	}
	v = s.scrubValue(v)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// scrubText applies all recognizers to a plain text string
func (s *PIIScrubber) scrubText(text string) string {
	result := text
	for _, r := range s.recognizers {
		for _, pattern := range r.Patterns {
			result = pattern.ReplaceAllString(result, r.Replacement)
		}
	}
	return result
}

// scrubValue recursively scrubs JSON values
func (s *PIIScrubber) scrubValue(v any) any {
	switch val := v.(type) {
	case string:
		return s.scrubText(val)
	case map[string]any:
		for k, inner := range val {
			val[k] = s.scrubValue(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = s.scrubValue(inner)
		}
		return val
	default:
		return v
	}
}

// ScrubText is a convenience method to scrub plain text
func (s *PIIScrubber) ScrubText(text string) string {
	return s.scrubText(text)
}

// RedactSecret removes a known secret and anything matching the default
// recognizers from text. Used for error messages and log fields.
func RedactSecret(text, secret string) string {
	if secret = strings.TrimSpace(secret); len(secret) >= 4 {
		text = strings.ReplaceAll(text, secret, "<REDACTED>")
	}
	return defaultScrubber.ScrubText(text)
}

// NoopScrubber is a scrubber that does nothing (pass-through)
type NoopScrubber struct{}

// Scrub returns content unchanged
func (n *NoopScrubber) Scrub(content []byte) ([]byte, error) {
	return content, nil
}

// ScrubJSON returns value unchanged
func (n *NoopScrubber) ScrubJSON(value []byte) ([]byte, error) {
	return value, nil
}

// ScrubText returns text unchanged
func (n *NoopScrubber) ScrubText(text string) string {
	return text
}

// DefaultRecognizers returns the built-in PII recognizers
func DefaultRecognizers() []Recognizer {
	return []Recognizer{
		// Private key blocks, before anything that could match inside them
		{
			Name:       "private_key",
			EntityType: "PRIVATE_KEY",
			Patterns: []Pattern{
				{Regex: `(?s)-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----.*?(?:-----END (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----|\z)`},
			},
			Replacement: "<PRIVATE_KEY>",
		},

		// Home directories leak the user name
		{
			Name:       "unix_home_path",
			EntityType: "USER_PATH",
			Patterns: []Pattern{
				{Regex: `/(?:Users|home)/[a-zA-Z0-9._-]+/`},
			},
			Replacement: "/<REDACTED>/",
		},
		{
			Name:       "windows_user_path",
			EntityType: "USER_PATH",
			Patterns: []Pattern{
				{Regex: `C:\\Users\\[a-zA-Z0-9._-]+\\`},
			},
			Replacement: `C:\<REDACTED>\`,
		},

		// Email addresses
		{
			Name:       "email",
			EntityType: "EMAIL",
			Patterns: []Pattern{
				{Regex: `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`},
			},
			Replacement: "<EMAIL>",
		},

		// AWS credentials
		{
			Name:       "aws_access_key",
			EntityType: "AWS_KEY",
			Patterns: []Pattern{
				{Regex: `AKIA[0-9A-Z]{16}`},
			},
			Replacement: "<AWS_ACCESS_KEY>",
		},

		// Provider keys (specific prefixes before the generic OpenAI form)
		{
			Name:       "openrouter_api_key",
			EntityType: "OPENROUTER_KEY",
			Patterns: []Pattern{
				{Regex: `sk-or-(?:v1-)?[a-zA-Z0-9]{32,}`},
			},
			Replacement: "<OPENROUTER_API_KEY>",
		},
		{
			Name:       "anthropic_api_key",
			EntityType: "ANTHROPIC_KEY",
			Patterns: []Pattern{
				{Regex: `sk-ant-[a-zA-Z0-9_-]{40,}`},
			},
			Replacement: "<ANTHROPIC_API_KEY>",
		},
		{
			Name:       "openai_api_key",
			EntityType: "OPENAI_KEY",
			Patterns: []Pattern{
				{Regex: `sk-(?:proj-)?[a-zA-Z0-9_-]{40,}`},
			},
			Replacement: "<OPENAI_API_KEY>",
		},
		{
			Name:       "google_api_key",
			EntityType: "GOOGLE_KEY",
			Patterns: []Pattern{
				{Regex: `AIza[0-9A-Za-z_-]{35}`},
			},
			Replacement: "<GOOGLE_API_KEY>",
		},

		// GitHub tokens
		{
			Name:       "github_token",
			EntityType: "GITHUB_TOKEN",
			Patterns: []Pattern{
				{Regex: `gh[pousr]_[A-Za-z0-9_]{36,}`},
			},
			Replacement: "<GITHUB_TOKEN>",
		},

		// Slack tokens
		{
			Name:       "slack_token",
			EntityType: "SLACK_TOKEN",
			Patterns: []Pattern{
				{Regex: `xox[baprs]-[0-9]+-[0-9]+-[a-zA-Z0-9]+`},
			},
			Replacement: "<SLACK_TOKEN>",
		},

		// Bearer tokens
		{
			Name:       "bearer_token",
			EntityType: "AUTH_TOKEN",
			Patterns: []Pattern{
				{Regex: `(?i)bearer\s+[a-zA-Z0-9_.=-]{8,}`},
			},
			Replacement: "Bearer <TOKEN>",
		},

		// Passwords in config/env
		{
			Name:       "password_assignment",
			EntityType: "PASSWORD",
			Patterns: []Pattern{
				{Regex: `(?i)(?:password|passwd|pwd)['":\s=]+[^\s'"]{8,}`},
			},
			Replacement: "<PASSWORD>",
		},
	}
}

// Ensure PIIScrubber implements Scrubber
var _ Scrubber = (*PIIScrubber)(nil)
var _ Scrubber = (*NoopScrubber)(nil)
