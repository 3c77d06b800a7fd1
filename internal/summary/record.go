package summary

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// unknownCost is written in place of a cost breakdown when pricing could
// not be determined.
const unknownCost = "unknown"

// Usage holds token counts reported by the provider.
type Usage struct {
	PromptTokens     int `yaml:"prompt_tokens"`
	CompletionTokens int `yaml:"completion_tokens"`
	ReasoningTokens  int `yaml:"reasoning_tokens"`
}

// Cost is an estimated USD cost. A zero Cost with Known unset means the
// pricing lookup failed.
type Cost struct {
	Known      bool
	Prompt     decimal.Decimal
	Completion decimal.Decimal
	Total      decimal.Decimal
}

// UnknownCost returns the marker used when pricing is unavailable.
func UnknownCost() *Cost {
	return &Cost{}
}

// String renders the total, or "unknown".
func (c *Cost) String() string {
	if c == nil || !c.Known {
		return unknownCost
	}
	return "$" + c.Total.String()
}

type costFields struct {
	Prompt     string `yaml:"prompt"`
	Completion string `yaml:"completion"`
	Total      string `yaml:"total"`
}

// MarshalYAML writes either the breakdown or the unknown marker.
func (c Cost) MarshalYAML() (any, error) {
	if !c.Known {
		return unknownCost, nil
	}
	return costFields{
		Prompt:     c.Prompt.String(),
		Completion: c.Completion.String(),
		Total:      c.Total.String(),
	}, nil
}

// UnmarshalYAML accepts the marker or a mapping of decimal values. Numbers
// written by other tools as floats are read through their literal text.
func (c *Cost) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if v := strings.TrimSpace(node.Value); v != "" && v != unknownCost && node.Tag != "!!null" {
			return fmt.Errorf("cost_estimate_usd: unexpected value %q", node.Value)
		}
		*c = Cost{}
		return nil
	case yaml.MappingNode:
		parsed := Cost{Known: true}
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i].Value, node.Content[i+1].Value
			var target *decimal.Decimal
			switch key {
			case "prompt":
				target = &parsed.Prompt
			case "completion":
				target = &parsed.Completion
			case "total":
				target = &parsed.Total
			default:
				continue
			}
			d, err := decimal.NewFromString(val)
			if err != nil {
				return fmt.Errorf("cost_estimate_usd.%s: %w", key, err)
			}
			*target = d
		}
		*c = parsed
		return nil
	default:
		return fmt.Errorf("cost_estimate_usd: unexpected YAML node kind %d", node.Kind)
	}
}

// Metadata is the front matter of a summary document. Keys not modeled
// here are kept in Extra and written back unchanged.
type Metadata struct {
	SourcePath    string         `yaml:"source_path,omitempty"`
	Model         string         `yaml:"model,omitempty"`
	ResolvedModel string         `yaml:"resolved_model,omitempty"`
	PromptVariant string         `yaml:"prompt_variant,omitempty"`
	PromptPath    string         `yaml:"prompt_path,omitempty"`
	Usage         *Usage         `yaml:"usage,omitempty"`
	CostEstimate  *Cost          `yaml:"cost_estimate_usd,omitempty"`
	GeneratedAt   time.Time      `yaml:"generated_at,omitempty"`
	MessageCount  int            `yaml:"message_count,omitempty"`
	MessagesPath  string         `yaml:"messages_path,omitempty"`
	FinishReason  string         `yaml:"finish_reason,omitempty"`
	Reasoning     string         `yaml:"reasoning,omitempty"`
	RequestID     string         `yaml:"request_id,omitempty"`
	Extra         map[string]any `yaml:",inline"`
}

// Matches reports whether a cached document was produced for the same
// model and prompt variant.
func (m *Metadata) Matches(model, promptVariant string) bool {
	return m.Model == model && m.PromptVariant == promptVariant
}

// Record is a summary document plus where it lives.
type Record struct {
	Metadata Metadata
	Body     string
	Path     string
	CacheHit bool
}
