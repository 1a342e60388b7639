package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nadira/kirin/pkg/chat"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicProvider implements CompletionProvider on the Anthropic
// messages API. Streaming is synthesized from the complete response:
// the text is replayed as delta fragments followed by tool fragments
// and a finish marker, so the relay pipeline sees one uniform shape.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates an Anthropic-backed provider.
func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete makes a single call to the messages API.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	content := ""
	var invocations []chat.ToolInvocation
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			invocations = append(invocations, chat.ToolInvocation{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: b.JSON.Input.Raw(),
			})
		}
	}

	finish := chat.FinishStop
	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		finish = chat.FinishToolInvocation
	case anthropic.StopReasonMaxTokens:
		finish = chat.FinishLength
	}

	return &Response{
		Content:         content,
		ToolInvocations: invocations,
		Finish:          finish,
	}, nil
}

// Stream completes the call and replays the result as deltas.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (DeltaStream, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	const fragmentSize = 64
	var deltas []chat.Delta
	for text := resp.Content; text != ""; {
		piece := text
		if len(piece) > fragmentSize {
			piece, text = text[:fragmentSize], text[fragmentSize:]
		} else {
			text = ""
		}
		deltas = append(deltas, chat.Delta{Content: piece})
	}
	for _, inv := range resp.ToolInvocations {
		deltas = append(deltas, chat.Delta{Tool: &chat.ToolFragment{
			ID:        inv.ID,
			Name:      inv.Name,
			Arguments: inv.Arguments,
		}})
	}
	deltas = append(deltas, chat.Delta{Finish: resp.Finish})
	return NewSliceStream(deltas), nil
}

func (p *AnthropicProvider) buildParams(req Request) (anthropic.MessageNewParams, error) {
	var system string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleInstruction:
			system = msg.Content
		case chat.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case chat.RoleAssistant:
			if len(msg.ToolInvocations) > 0 {
				blocks := []anthropic.ContentBlockParamUnion{}
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, inv := range msg.ToolInvocations {
					var input map[string]any
					if err := json.Unmarshal([]byte(inv.Arguments), &input); err != nil {
						return anthropic.MessageNewParams{}, fmt.Errorf("invalid tool invocation arguments: %w", err)
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(inv.ID, input, inv.Name))
				}
				messages = append(messages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			} else {
				messages = append(messages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{
						anthropic.NewTextBlock(msg.Content),
					},
				})
			}
		case chat.RoleToolResult:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolInvocationRef, msg.Content, false),
			))
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	for _, tool := range req.Tools {
		toolParam := anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: tool.InputSchema["properties"],
			},
		}
		if required, ok := tool.InputSchema["required"].([]string); ok {
			toolParam.InputSchema.Required = required
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return params, nil
}
