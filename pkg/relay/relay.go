// Package relay drives one streamed conversational request end to end:
// session resolution, instruction augmentation, preamble, the primary
// provider stream, tool invocation cycles, and terminal framing on the
// client channel.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nadira/kirin/internal/observability"
	"github.com/nadira/kirin/internal/tracing"
	"github.com/nadira/kirin/pkg/chat"
	"github.com/nadira/kirin/pkg/preamble"
	"github.com/nadira/kirin/pkg/provider"
	"github.com/nadira/kirin/pkg/retrieval"
	"github.com/nadira/kirin/pkg/session"
	"github.com/nadira/kirin/pkg/toolcall"
)

// DefaultMaxToolCycles bounds tool invocation rounds within one turn.
const DefaultMaxToolCycles = 8

// Request is one inbound turn.
type Request struct {
	SessionID   string
	Messages    []chat.Message
	Model       string
	Progressive *bool
}

// Relay coordinates the per-request lifecycle. Augmenter, Coordinator
// and Registry are optional collaborators; a nil value disables the
// corresponding step.
type Relay struct {
	store         *session.Store
	provider      provider.CompletionProvider
	augmenter     *retrieval.Augmenter
	coordinator   *preamble.Coordinator
	registry      *toolcall.Registry
	model         string
	maxToolCycles int
	logger        zerolog.Logger
}

// Config holds relay configuration.
type Config struct {
	Store         *session.Store
	Provider      provider.CompletionProvider
	Augmenter     *retrieval.Augmenter
	Coordinator   *preamble.Coordinator
	Registry      *toolcall.Registry
	Model         string
	MaxToolCycles int
	Logger        zerolog.Logger
}

// NewRelay creates a relay.
func NewRelay(cfg Config) (*Relay, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("default model is required")
	}
	if cfg.MaxToolCycles <= 0 {
		cfg.MaxToolCycles = DefaultMaxToolCycles
	}

	return &Relay{
		store:         cfg.Store,
		provider:      cfg.Provider,
		augmenter:     cfg.Augmenter,
		coordinator:   cfg.Coordinator,
		registry:      cfg.Registry,
		model:         cfg.Model,
		maxToolCycles: cfg.MaxToolCycles,
		logger:        cfg.Logger,
	}, nil
}

// terminator guarantees exactly one terminal action on the sink:
// sentinel, error frame, or silent close after a client disconnect.
type terminator struct {
	sink Sink
	done bool
}

func (t *terminator) sendDone() {
	if t.done {
		return
	}
	t.done = true
	_ = t.sink.SendDone()
}

func (t *terminator) sendError(message string) {
	if t.done {
		return
	}
	t.done = true
	_ = t.sink.SendError(message)
}

func (t *terminator) closeSilently() {
	t.done = true
}

// Handle drives one request to completion. Its only effect is writing
// to sink; all failure modes are resolved internally.
func (r *Relay) Handle(ctx context.Context, req Request, sink Sink) {
	ctx, span := tracing.StartSpan(
		ctx,
		"kirin.relay",
		"relay.handle",
		attribute.String("session_id", req.SessionID),
	)
	defer span.End()
	if req.SessionID != "" {
		ctx = tracing.WithSessionID(ctx, req.SessionID)
	}
	logger := tracing.LoggerFromContext(ctx, r.logger)

	start := time.Now()
	outcome := "ok"
	defer func() {
		observability.RecordRequest(outcome, time.Since(start))
	}()

	term := &terminator{sink: sink}

	sess := r.store.Resolve(req.SessionID)
	foldMessages(sess, req.Messages)

	history := sess.History()

	// Augmentation is scoped to this turn's provider calls. The session
	// keeps the base instruction, which every turn recomputes from.
	var augmented *chat.Message
	if r.augmenter != nil {
		if query := latestUserContent(history); query != "" {
			msg := r.augmenter.Augment(ctx, query, history[0])
			augmented = &msg
		}
	}

	if r.coordinator != nil {
		r.coordinator.MaybeEmitPreamble(ctx, history, req.Progressive, func(text string) error {
			if err := sink.SendContent(text); err != nil {
				return err
			}
			observability.RecordDeltaForwarded()
			return nil
		})
	}

	model := req.Model
	if model == "" {
		model = r.model
	}
	var tools []provider.ToolDeclaration
	if r.registry != nil {
		tools = r.registry.Declarations()
	}

	var assistant strings.Builder
	machine := toolcall.NewMachine()
	working := withInstruction(history, augmented)

	for cycle := 0; ; cycle++ {
		if cycle > r.maxToolCycles {
			logger.Error().Int("cycles", cycle).Msg("Tool invocation cycle budget exceeded")
			term.sendError("tool invocation limit exceeded")
			outcome = "tool_limit"
			return
		}

		callStart := time.Now()
		stream, err := r.provider.Stream(ctx, provider.Request{
			Model:    model,
			Messages: working,
			Tools:    tools,
		})
		observability.RecordProviderCall(r.provider.Name(), time.Since(callStart), err == nil)
		if err != nil {
			logger.Error().Err(err).Msg("Provider stream failed")
			term.sendError(fmt.Sprintf("provider error: %v", err))
			outcome = "provider_error"
			return
		}

		toolPending, err := r.pump(stream, sink, machine, &assistant)
		stream.Close()
		switch {
		case errors.Is(err, ErrSinkClosed):
			logger.Debug().Msg("Client disconnected, abandoning stream")
			term.closeSilently()
			outcome = "disconnected"
			return
		case err != nil:
			logger.Error().Err(err).Msg("Stream processing failed")
			term.sendError(fmt.Sprintf("provider error: %v", err))
			outcome = "provider_error"
			return
		}

		if !toolPending {
			break
		}

		payload, inv, err := r.runTool(ctx, machine)
		if err != nil {
			logger.Error().Err(err).Msg("Tool invocation failed")
			term.sendError(fmt.Sprintf("tool invocation error: %v", err))
			outcome = "tool_error"
			return
		}
		sess.Append(chat.Message{Role: chat.RoleAssistant, ToolInvocations: []chat.ToolInvocation{inv}})
		sess.Append(chat.Message{Role: chat.RoleToolResult, Content: payload, ToolInvocationRef: inv.ID})
		working = withInstruction(sess.History(), augmented)
	}

	if req.SessionID != "" && assistant.Len() > 0 {
		r.store.Append(req.SessionID, chat.Message{Role: chat.RoleAssistant, Content: assistant.String()})
	}

	term.sendDone()
	logger.Debug().Int("assistant_bytes", assistant.Len()).Msg("Request completed")
}

// pump forwards deltas from one provider stream until it ends or a tool
// invocation is requested. It reports whether a sealed invocation is
// waiting in the machine.
func (r *Relay) pump(stream provider.DeltaStream, sink Sink, machine *toolcall.Machine, assistant *strings.Builder) (bool, error) {
	for stream.Next() {
		delta := stream.Current()

		if delta.Content != "" {
			if err := sink.SendContent(delta.Content); err != nil {
				return false, err
			}
			observability.RecordDeltaForwarded()
			assistant.WriteString(delta.Content)
		}

		if delta.Tool != nil {
			if err := machine.Observe(*delta.Tool); err != nil {
				return false, err
			}
		}

		if delta.IsFinish() {
			if delta.Finish == chat.FinishToolInvocation {
				if err := machine.Seal(); err != nil {
					return false, fmt.Errorf("tool finish without invocation fragments: %w", err)
				}
				return true, nil
			}
			return false, nil
		}
	}
	if err := stream.Err(); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Relay) runTool(ctx context.Context, machine *toolcall.Machine) (string, chat.ToolInvocation, error) {
	if r.registry == nil {
		return "", chat.ToolInvocation{}, fmt.Errorf("tool invocation requested but no tools registered")
	}
	inv := machine.Invocation()
	payload, err := machine.Execute(ctx, r.registry)
	if err != nil {
		return "", chat.ToolInvocation{}, err
	}
	machine.Reset()
	return payload, inv, nil
}

func foldMessages(sess *session.Session, msgs []chat.Message) {
	if len(msgs) == 0 {
		return
	}
	rest := msgs
	if msgs[0].Role == chat.RoleInstruction {
		sess.ReplaceInstruction(msgs[0])
		rest = msgs[1:]
	}
	for _, m := range rest {
		sess.Append(m)
	}
}

func withInstruction(history []chat.Message, instruction *chat.Message) []chat.Message {
	if instruction == nil || len(history) == 0 {
		return history
	}
	out := make([]chat.Message, len(history))
	copy(out, history)
	out[0] = *instruction
	return out
}

func latestUserContent(history []chat.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == chat.RoleUser {
			return history[i].Content
		}
	}
	return ""
}
