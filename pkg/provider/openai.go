package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/nadira/kirin/pkg/chat"
)

const (
	oaiFinishStop          = "stop"
	oaiFinishToolCalls     = "tool_calls"
	oaiFinishFunctionCall  = "function_call"
	oaiFinishLength        = "length"
	oaiFinishContentFilter = "content_filter"
)

// OpenAIProvider implements CompletionProvider on the OpenAI chat
// completions API.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates an OpenAI-backed provider. baseURL is
// optional and overrides the default endpoint for compatible gateways.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete makes a single non-streaming call.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}
	choice := resp.Choices[0]

	invocations := make([]chat.ToolInvocation, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		invocations = append(invocations, chat.ToolInvocation{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &Response{
		Content:         choice.Message.Content,
		ToolInvocations: invocations,
		Finish:          convertFinishReason(string(choice.FinishReason)),
	}, nil
}

// Stream opens a streaming call and adapts SDK chunks into deltas.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (DeltaStream, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	return &openAIStream{
		stream: p.client.Chat.Completions.NewStreaming(ctx, params),
	}, nil
}

func (p *OpenAIProvider) buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleInstruction:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case chat.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case chat.RoleAssistant:
			if len(msg.ToolInvocations) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolInvocations))
				for _, inv := range msg.ToolInvocations {
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
						ID: inv.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      inv.Name,
							Arguments: inv.Arguments,
						},
					})
				}
				messages = append(messages, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						ToolCalls: toolCalls,
					},
				})
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}
		case chat.RoleToolResult:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolInvocationRef))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.InputSchema),
			},
		})
	}
	return params, nil
}

func convertFinishReason(reason string) chat.FinishReason {
	switch reason {
	case oaiFinishStop:
		return chat.FinishStop
	case oaiFinishToolCalls, oaiFinishFunctionCall:
		return chat.FinishToolInvocation
	case oaiFinishLength:
		return chat.FinishLength
	case oaiFinishContentFilter:
		return chat.FinishContentFilter
	default:
		return chat.FinishNone
	}
}

// openAIStream adapts the SDK chunk stream to deltas. One chunk may
// carry content, tool fragments, and a finish reason at once; they are
// queued and handed out one delta at a time, preserving arrival order.
type openAIStream struct {
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	pending []chat.Delta
	current chat.Delta
	done    bool
}

func (s *openAIStream) Next() bool {
	for len(s.pending) == 0 {
		if s.done || !s.stream.Next() {
			s.done = true
			return false
		}
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			s.pending = append(s.pending, chat.Delta{Content: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			s.pending = append(s.pending, chat.Delta{Tool: &chat.ToolFragment{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}})
		}
		if finish := convertFinishReason(string(choice.FinishReason)); finish != chat.FinishNone {
			s.pending = append(s.pending, chat.Delta{Finish: finish})
			s.done = true
		}
	}
	s.current = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

func (s *openAIStream) Current() chat.Delta { return s.current }
func (s *openAIStream) Err() error          { return s.stream.Err() }
func (s *openAIStream) Close() error        { return s.stream.Close() }
