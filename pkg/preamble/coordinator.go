// Package preamble emits a fast acknowledgement ahead of the primary
// model response. It is best effort: every failure path is swallowed
// and the primary call proceeds as if the coordinator did not exist.
package preamble

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nadira/kirin/internal/observability"
	"github.com/nadira/kirin/internal/tracing"
	"github.com/nadira/kirin/pkg/chat"
	"github.com/nadira/kirin/pkg/provider"
)

const (
	DefaultMaxTokens   = 60
	DefaultTemperature = 0.7

	ackInstruction = "Write one short sentence acknowledging the user's request and indicating a fuller answer is coming. Do not answer the request itself."
)

// Coordinator issues the secondary-model acknowledgement call.
type Coordinator struct {
	provider    provider.CompletionProvider
	model       string
	maxTokens   int
	temperature float64
	enabled     bool
	logger      zerolog.Logger
}

// Config holds coordinator configuration. Enabled is the deployment
// default; a per-request override takes precedence in both directions.
type Config struct {
	Provider    provider.CompletionProvider
	Model       string
	MaxTokens   int
	Temperature float64
	Enabled     bool
	Logger      zerolog.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}

	return &Coordinator{
		provider:    cfg.Provider,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		enabled:     cfg.Enabled,
		logger:      cfg.Logger,
	}, nil
}

// Active reports whether a preamble should be attempted. A non-nil
// override wins over the deployment default.
func (c *Coordinator) Active(override *bool) bool {
	if override != nil {
		return *override
	}
	return c.enabled
}

// MaybeEmitPreamble calls the secondary model with the latest user
// content and forwards the full acknowledgement text through emit as
// one unit. It reports whether anything was emitted. Provider and emit
// failures are logged and swallowed.
func (c *Coordinator) MaybeEmitPreamble(ctx context.Context, history []chat.Message, override *bool, emit func(string) error) bool {
	if !c.Active(override) {
		return false
	}
	if len(history) == 0 || history[len(history)-1].Role != chat.RoleUser {
		return false
	}

	logger := tracing.LoggerFromContext(ctx, c.logger)
	latest := history[len(history)-1].Content

	resp, err := c.provider.Complete(ctx, provider.Request{
		Model: c.model,
		Messages: []chat.Message{
			{Role: chat.RoleInstruction, Content: ackInstruction},
			{Role: chat.RoleUser, Content: latest},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Preamble call failed, continuing without it")
		observability.RecordPreamble("error")
		return false
	}
	if resp.Content == "" {
		observability.RecordPreamble("empty")
		return false
	}

	if err := emit(resp.Content); err != nil {
		logger.Debug().Err(err).Msg("Preamble emit failed")
		observability.RecordPreamble("emit_failed")
		return false
	}

	observability.RecordPreamble("emitted")
	return true
}
