package toolcall

import (
	"context"
	"fmt"
	"strings"

	"github.com/nadira/kirin/pkg/chat"
)

// State is the accumulator's position in one invocation cycle.
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateReady
	StateExecuted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateReady:
		return "ready"
	case StateExecuted:
		return "executed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Machine accumulates one streamed tool invocation at a time. Fragments
// arrive in order and concatenate into the argument buffer; the finish
// signal seals it; execution produces the result payload; Reset returns
// to idle for the next cycle.
type Machine struct {
	state State
	id    string
	name  string
	args  strings.Builder
}

// NewMachine creates a machine in the idle state.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Observe feeds one tool fragment. The first fragment captures the
// invocation identity; later fragments append argument text. A
// fragment carrying a different identifier mid-accumulation is a
// protocol violation.
func (m *Machine) Observe(frag chat.ToolFragment) error {
	switch m.state {
	case StateIdle:
		m.state = StateAccumulating
		m.id = frag.ID
		m.name = frag.Name
		m.args.WriteString(frag.Arguments)
		return nil
	case StateAccumulating:
		if frag.ID != "" && frag.ID != m.id {
			return fmt.Errorf("interleaved tool invocation: have %q, got fragment for %q", m.id, frag.ID)
		}
		if frag.Name != "" && m.name == "" {
			m.name = frag.Name
		}
		m.args.WriteString(frag.Arguments)
		return nil
	default:
		return fmt.Errorf("tool fragment in state %s", m.state)
	}
}

// Seal marks the argument buffer complete. Valid only while
// accumulating.
func (m *Machine) Seal() error {
	if m.state != StateAccumulating {
		return fmt.Errorf("seal in state %s", m.state)
	}
	m.state = StateReady
	return nil
}

// Invocation returns the accumulated invocation record.
func (m *Machine) Invocation() chat.ToolInvocation {
	return chat.ToolInvocation{ID: m.id, Name: m.name, Arguments: m.args.String()}
}

// Execute runs the accumulated invocation through the registry and
// returns the serialized result payload. Valid only when ready; the
// machine always reaches executed, whatever the tool outcome.
func (m *Machine) Execute(ctx context.Context, registry *Registry) (string, error) {
	if m.state != StateReady {
		return "", fmt.Errorf("execute in state %s", m.state)
	}
	payload := registry.Execute(ctx, m.name, m.args.String())
	m.state = StateExecuted
	return payload, nil
}

// Reset returns the machine to idle for the next invocation cycle.
func (m *Machine) Reset() {
	m.state = StateIdle
	m.id = ""
	m.name = ""
	m.args.Reset()
}
