package openrouter

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// appTransport adds the optional OpenRouter attribution headers and copies
// the provider's "reasoning" message field into "reasoning_content", which
// is where go-openai reads reasoning text from.
type appTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *appTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.referer != "" || t.title != "" {
		req = req.Clone(req.Context())
		if t.referer != "" {
			req.Header.Set("HTTP-Referer", t.referer)
		}
		if t.title != "" {
			req.Header.Set("X-Title", t.title)
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK || !strings.HasSuffix(req.URL.Path, "/chat/completions") {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	body = normalizeReasoning(body)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Del("Content-Length")
	return resp, nil
}

// normalizeReasoning rewrites choices[].message.reasoning to reasoning_content.
// Bodies it cannot interpret are returned unchanged.
func normalizeReasoning(body []byte) []byte {
	if !bytes.Contains(body, []byte(`"reasoning"`)) {
		return body
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return body
	}
	var choices []map[string]json.RawMessage
	if err := json.Unmarshal(doc["choices"], &choices); err != nil {
		return body
	}

	changed := false
	for _, choice := range choices {
		var msg map[string]json.RawMessage
		if err := json.Unmarshal(choice["message"], &msg); err != nil {
			continue
		}
		reasoning, ok := msg["reasoning"]
		if !ok || string(reasoning) == "null" {
			continue
		}
		if _, exists := msg["reasoning_content"]; exists {
			continue
		}
		msg["reasoning_content"] = reasoning
		encoded, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		choice["message"] = encoded
		changed = true
	}
	if !changed {
		return body
	}

	encoded, err := json.Marshal(choices)
	if err != nil {
		return body
	}
	doc["choices"] = encoded
	out, err := json.Marshal(doc)
	if err != nil {
		return body
	}
	return out
}
