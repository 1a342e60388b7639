package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadira/kirin/pkg/chat"
)

func TestNewProvider(t *testing.T) {
	p, err := New(Config{Kind: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = New(Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = New(Config{Kind: "anthropic", APIKey: "sk-ant-test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	_, err = New(Config{Kind: "openai"})
	assert.ErrorContains(t, err, "api key")

	_, err = New(Config{Kind: "mistral", APIKey: "key"})
	assert.ErrorContains(t, err, "unsupported provider kind")
}

func TestSliceStream(t *testing.T) {
	deltas := []chat.Delta{
		{Content: "one"},
		{Content: "two"},
		{Finish: chat.FinishStop},
	}

	stream := NewSliceStream(deltas)
	var got []chat.Delta
	for stream.Next() {
		got = append(got, stream.Current())
	}

	require.NoError(t, stream.Err())
	require.NoError(t, stream.Close())
	assert.Equal(t, deltas, got)
	assert.False(t, stream.Next())
}

func TestSliceStreamEmpty(t *testing.T) {
	stream := NewSliceStream(nil)
	assert.False(t, stream.Next())
	assert.NoError(t, stream.Err())
}

func TestConvertFinishReason(t *testing.T) {
	assert.Equal(t, chat.FinishStop, convertFinishReason("stop"))
	assert.Equal(t, chat.FinishToolInvocation, convertFinishReason("tool_calls"))
	assert.Equal(t, chat.FinishToolInvocation, convertFinishReason("function_call"))
	assert.Equal(t, chat.FinishLength, convertFinishReason("length"))
	assert.Equal(t, chat.FinishContentFilter, convertFinishReason("content_filter"))
	assert.Equal(t, chat.FinishNone, convertFinishReason(""))
	assert.Equal(t, chat.FinishNone, convertFinishReason("unknown"))
}

func TestOpenAIBuildParams(t *testing.T) {
	p := NewOpenAIProvider("sk-test", "")

	params, err := p.buildParams(Request{
		Model: "gpt-4o",
		Messages: []chat.Message{
			{Role: chat.RoleInstruction, Content: "You are helpful."},
			{Role: chat.RoleUser, Content: "What time is it?"},
			{Role: chat.RoleAssistant, ToolInvocations: []chat.ToolInvocation{
				{ID: "call_1", Name: "current_time", Arguments: "{}"},
			}},
			{Role: chat.RoleToolResult, Content: "12:00", ToolInvocationRef: "call_1"},
		},
		Tools: []ToolDeclaration{
			{Name: "current_time", Description: "Returns the time", InputSchema: map[string]any{"type": "object"}},
		},
		MaxTokens:   128,
		Temperature: 0.5,
	})
	require.NoError(t, err)

	assert.EqualValues(t, "gpt-4o", params.Model)
	require.Len(t, params.Messages, 4)
	require.NotNil(t, params.Messages[0].OfSystem)
	require.NotNil(t, params.Messages[1].OfUser)
	require.NotNil(t, params.Messages[2].OfAssistant)
	require.Len(t, params.Messages[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "call_1", params.Messages[2].OfAssistant.ToolCalls[0].ID)
	require.NotNil(t, params.Messages[3].OfTool)
	assert.Equal(t, "call_1", params.Messages[3].OfTool.ToolCallID)

	require.Len(t, params.Tools, 1)
	assert.Equal(t, "current_time", params.Tools[0].Function.Name)
	assert.EqualValues(t, 128, params.MaxTokens.Value)
	assert.InDelta(t, 0.5, params.Temperature.Value, 1e-9)
}

func TestOpenAIBuildParamsRejectsUnknownRole(t *testing.T) {
	p := NewOpenAIProvider("sk-test", "")

	_, err := p.buildParams(Request{
		Model:    "gpt-4o",
		Messages: []chat.Message{{Role: chat.Role("critic"), Content: "hm"}},
	})
	assert.ErrorContains(t, err, "unsupported message role")
}

func TestAnthropicBuildParams(t *testing.T) {
	p := NewAnthropicProvider("sk-ant-test", "")

	params, err := p.buildParams(Request{
		Model: "claude-sonnet-4-20250514",
		Messages: []chat.Message{
			{Role: chat.RoleInstruction, Content: "You are helpful."},
			{Role: chat.RoleUser, Content: "Hi"},
			{Role: chat.RoleAssistant, Content: "Hello"},
		},
	})
	require.NoError(t, err)

	// The instruction goes into the system field, not the message list.
	require.Len(t, params.System, 1)
	assert.Equal(t, "You are helpful.", params.System[0].Text)
	assert.Len(t, params.Messages, 2)
	assert.EqualValues(t, anthropicDefaultMaxTokens, params.MaxTokens)
}

func TestAnthropicBuildParamsRejectsBadToolArguments(t *testing.T) {
	p := NewAnthropicProvider("sk-ant-test", "")

	_, err := p.buildParams(Request{
		Model: "claude-sonnet-4-20250514",
		Messages: []chat.Message{
			{Role: chat.RoleAssistant, ToolInvocations: []chat.ToolInvocation{
				{ID: "call_1", Name: "current_time", Arguments: "{not json"},
			}},
		},
	})
	assert.ErrorContains(t, err, "invalid tool invocation arguments")
}
