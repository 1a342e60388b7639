package provider

import (
	"context"
	"fmt"

	"github.com/nadira/kirin/pkg/chat"
)

// ToolDeclaration describes a callable tool to the model.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request contains the parameters for one completion call.
type Request struct {
	Model       string
	Messages    []chat.Message
	Tools       []ToolDeclaration
	MaxTokens   int
	Temperature float64
}

// Response is a complete, non-streamed result.
type Response struct {
	Content         string
	ToolInvocations []chat.ToolInvocation
	Finish          chat.FinishReason
}

// DeltaStream is a lazy sequence of incremental deltas. The iteration
// contract follows the SDK stream shape: Next advances and reports
// whether a delta is available, Current returns it, Err reports the
// terminal error after Next returns false.
type DeltaStream interface {
	Next() bool
	Current() chat.Delta
	Err() error
	Close() error
}

// CompletionProvider is the upstream language-model transport.
type CompletionProvider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (DeltaStream, error)
}

// Config selects and configures a concrete provider.
type Config struct {
	Kind    string // "openai" or "anthropic"
	APIKey  string
	BaseURL string
}

// New creates a provider from config.
func New(cfg Config) (CompletionProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider api key is required")
	}
	switch cfg.Kind {
	case "", "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind: %s", cfg.Kind)
	}
}

// sliceStream replays a fixed set of deltas. Used by providers that only
// support complete responses and by tests.
type sliceStream struct {
	deltas []chat.Delta
	pos    int
	err    error
}

// NewSliceStream wraps pre-built deltas in a DeltaStream.
func NewSliceStream(deltas []chat.Delta) DeltaStream {
	return &sliceStream{deltas: deltas}
}

func (s *sliceStream) Next() bool {
	if s.pos >= len(s.deltas) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Current() chat.Delta { return s.deltas[s.pos-1] }
func (s *sliceStream) Err() error          { return s.err }
func (s *sliceStream) Close() error        { return nil }
