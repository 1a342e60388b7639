package chat

import "strings"

// Role identifies who produced a message.
type Role string

const (
	// RoleInstruction is the pinned directive at index 0 of a session.
	RoleInstruction Role = "instruction"
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleToolResult  Role = "tool_result"
)

// ParseRole normalizes wire-format role names. Clients speaking the
// OpenAI dialect send "system" and "tool"; both map onto our roles.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "instruction", "system", "developer":
		return RoleInstruction, true
	case "user":
		return RoleUser, true
	case "assistant":
		return RoleAssistant, true
	case "tool_result", "tool-result", "tool":
		return RoleToolResult, true
	default:
		return "", false
	}
}

// Message is a single conversation turn. Content may be empty when the
// message carries tool invocations instead of text.
type Message struct {
	Role              Role             `json:"role"`
	Content           string           `json:"content,omitempty"`
	ToolInvocations   []ToolInvocation `json:"tool_invocations,omitempty"`
	ToolInvocationRef string           `json:"tool_invocation_ref,omitempty"`
	Citations         []string         `json:"citations,omitempty"`
}

// ToolInvocation is a completed tool call request as recorded in history.
// Arguments is the raw JSON payload exactly as the provider emitted it.
type ToolInvocation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FinishReason is the provider's stated reason for ending a stream.
type FinishReason string

const (
	FinishNone           FinishReason = ""
	FinishStop           FinishReason = "stop"
	FinishToolInvocation FinishReason = "tool_invocation"
	FinishLength         FinishReason = "length"
	FinishContentFilter  FinishReason = "content_filter"
)

// ToolFragment is one piece of a fragmented tool invocation. ID and Name
// are set on the first fragment of a call; Arguments fragments must be
// concatenated in arrival order, which is the only valid reconstruction
// order.
type ToolFragment struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Delta is one incremental unit of assistant output: a content fragment,
// a tool invocation fragment, or a finish marker. Exactly one of the
// three is meaningful per delta; deltas are never mutated after emission.
type Delta struct {
	Content string        `json:"content,omitempty"`
	Tool    *ToolFragment `json:"tool,omitempty"`
	Finish  FinishReason  `json:"finish,omitempty"`
}

// IsFinish reports whether the delta terminates the stream.
func (d Delta) IsFinish() bool {
	return d.Finish != FinishNone
}
