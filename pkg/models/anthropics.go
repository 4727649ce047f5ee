package models

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicChat implements the chat boundary on Anthropic's Messages API,
// including native tool use.
type AnthropicChat struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

// NewAnthropicChat constructs a client. It reads ANTHROPIC_API_KEY from the env.
func NewAnthropicChat(model string) *AnthropicChat {
	key := os.Getenv("ANTHROPIC_API_KEY")
	cl := anthropic.NewClient(
		anthropicopt.WithAPIKey(key),
	)
	return &AnthropicChat{
		Client:    &cl,
		Model:     model,
		MaxTokens: 1024,
	}
}

func (a *AnthropicChat) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = a.Model
	}

	msg, err := a.Client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(a.MaxTokens),
		Messages:  toAnthropicMessages(req.Messages),
		Tools:     toAnthropicTools(req.Tools),
	})
	if err != nil {
		return ChatResponse{}, err
	}
	if msg == nil {
		return ChatResponse{}, errors.New("anthropic: empty response")
	}

	return ChatResponse{Message: fromAnthropicMessage(msg)}, nil
}

// toAnthropicMessages converts the generic history into the Messages API
// shape. Tool results must travel inside a user message, so consecutive tool
// messages are folded into a single user turn of tool_result blocks.
func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	var pendingResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) == 0 {
			return
		}
		out = append(out, anthropic.NewUserMessage(pendingResults...))
		pendingResults = nil
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		case RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Arguments, call.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	flush()
	return out
}

func toAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := spec.InputSchema["properties"]; ok {
			schema.Properties = props
		}
		if rawRequired, ok := spec.InputSchema["required"].([]any); ok {
			for _, entry := range rawRequired {
				if name, ok := entry.(string); ok {
					schema.Required = append(schema.Required, name)
				}
			}
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: schema,
		}})
	}
	return out
}

func fromAnthropicMessage(msg *anthropic.Message) Message {
	out := Message{Role: RoleAssistant}
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += v.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			raw := json.RawMessage(v.JSON.Input.Raw())
			if err := json.Unmarshal(raw, &args); err != nil {
				args = map[string]any{"_raw": string(raw)}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        v.ID,
				Name:      v.Name,
				Arguments: args,
			})
		}
	}
	return out
}
