package models

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
)

func TestDummyChatEchoesLastLine(t *testing.T) {
	d := NewDummyChat("")
	resp, err := d.Chat(context.Background(), ChatRequest{Messages: []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleUser, Content: "hello there"},
	}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "Dummy response: hello there" {
		t.Fatalf("unexpected content: %q", resp.Message.Content)
	}
	if resp.Message.Role != RoleAssistant {
		t.Fatalf("expected assistant role, got %q", resp.Message.Role)
	}
}

func TestScriptedChatPlaysBackInOrder(t *testing.T) {
	d := NewScriptedChat(
		Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1", Name: "concat"}}},
		Message{Role: RoleAssistant, Content: "done"},
	)

	first, err := d.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if len(first.Message.ToolCalls) != 1 || first.Message.ToolCalls[0].Name != "concat" {
		t.Fatalf("unexpected first turn: %+v", first.Message)
	}

	second, err := d.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if second.Message.Content != "done" {
		t.Fatalf("unexpected second turn: %+v", second.Message)
	}

	if _, err := d.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error once the script is exhausted")
	}
	if len(d.Requests) != 3 {
		t.Fatalf("expected 3 recorded requests, got %d", len(d.Requests))
	}
}

func TestScriptedChatRepeatLast(t *testing.T) {
	d := NewScriptedChat(Message{Role: RoleAssistant, Content: "again"})
	d.RepeatLast = true

	for i := 0; i < 3; i++ {
		resp, err := d.Chat(context.Background(), ChatRequest{})
		if err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
		if resp.Message.Content != "again" {
			t.Fatalf("turn %d: unexpected content %q", i, resp.Message.Content)
		}
	}
}

type countingChat struct {
	inner ChatModel
	calls int
}

func (c *countingChat) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	c.calls++
	return c.inner.Chat(ctx, req)
}

func TestCachedChatServesRepeatsFromCache(t *testing.T) {
	counting := &countingChat{inner: NewDummyChat("")}
	cached := NewCachedChat(counting, 16, time.Minute)

	req := ChatRequest{Messages: []Message{{Role: RoleUser, Content: "ping"}}}

	first, err := cached.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := cached.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first.Message.Content != second.Message.Content {
		t.Fatal("cached response should match the original")
	}
	if counting.calls != 1 {
		t.Fatalf("expected 1 inner call, got %d", counting.calls)
	}

	other := ChatRequest{Messages: []Message{{Role: RoleUser, Content: "pong"}}}
	if _, err := cached.Chat(context.Background(), other); err != nil {
		t.Fatalf("third call: %v", err)
	}
	if counting.calls != 2 {
		t.Fatalf("different request should miss the cache, got %d inner calls", counting.calls)
	}
}

func TestNewChatProviderCachedPrefix(t *testing.T) {
	model, err := NewChatProvider(context.Background(), "cached:dummy", "", "")
	if err != nil {
		t.Fatalf("NewChatProvider: %v", err)
	}
	cached, ok := model.(*CachedChat)
	if !ok {
		t.Fatalf("expected a CachedChat, got %T", model)
	}
	if _, ok := cached.Inner.(*DummyChat); !ok {
		t.Fatalf("expected a wrapped DummyChat, got %T", cached.Inner)
	}

	if _, err := NewChatProvider(context.Background(), "cached:nope", "", ""); err == nil {
		t.Fatal("unknown inner provider must still fail")
	}
}

func TestToOpenAIMessagesMapsRolesAndToolCalls(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "add these"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{
			ID:        "call-1",
			Name:      "concat",
			Arguments: map[string]any{"parts": []any{"a", "b"}},
		}}},
		{Role: RoleTool, Content: `["ab"]`, ToolCallID: "call-1"},
	}

	out := toOpenAIMessages(history)
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleUser {
		t.Fatalf("expected user role, got %q", out[0].Role)
	}
	if len(out[1].ToolCalls) != 1 || out[1].ToolCalls[0].Function.Name != "concat" {
		t.Fatalf("tool call not mapped: %+v", out[1])
	}
	if !strings.Contains(out[1].ToolCalls[0].Function.Arguments, "parts") {
		t.Fatalf("arguments not marshaled: %q", out[1].ToolCalls[0].Function.Arguments)
	}
	if out[2].Role != openai.ChatMessageRoleTool || out[2].ToolCallID != "call-1" {
		t.Fatalf("tool result not mapped: %+v", out[2])
	}
}

func TestFromOpenAIMessageDecodesArguments(t *testing.T) {
	msg := fromOpenAIMessage(openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:   "call-9",
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      "read_file",
				Arguments: `{"path": "/tmp/x"}`,
			},
		}},
	})
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(msg.ToolCalls))
	}
	if got := msg.ToolCalls[0].Arguments["path"]; got != "/tmp/x" {
		t.Fatalf("unexpected path argument: %v", got)
	}
}

func TestDecodeArgumentsPreservesBadJSON(t *testing.T) {
	args := decodeArguments("{not json")
	if args["_raw"] != "{not json" {
		t.Fatalf("malformed payload should be preserved raw, got %v", args)
	}
	if len(decodeArguments("  ")) != 0 {
		t.Fatal("blank payload should decode to an empty map")
	}
}

func TestToAnthropicToolsExtractsSchema(t *testing.T) {
	out := toAnthropicTools([]ToolSpec{{
		Name:        "concat",
		Description: "join strings",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"parts": map[string]any{"type": "array"},
			},
			"required": []any{"parts"},
		},
	}})
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
	tool := out[0].OfTool
	if tool == nil || tool.Name != "concat" {
		t.Fatalf("tool not mapped: %+v", out[0])
	}
	if len(tool.InputSchema.Required) != 1 || tool.InputSchema.Required[0] != "parts" {
		t.Fatalf("required fields not extracted: %+v", tool.InputSchema.Required)
	}
}

func TestFlattenTranscriptLabelsRoles(t *testing.T) {
	got := flattenTranscript([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleTool, Content: `{"ok": true}`},
		{Role: RoleUser, Content: "   "},
	})
	want := "User: hi\nAssistant: hello\nTool result: {\"ok\": true}\n"
	if got != want {
		t.Fatalf("unexpected transcript:\n%q\nwant:\n%q", got, want)
	}
}
