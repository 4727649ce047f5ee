package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Protocol-Lattice/go-toolbridge/pkg/mcp"
	"github.com/Protocol-Lattice/go-toolbridge/pkg/models"
)

type fakeInvoker struct {
	mu    sync.Mutex
	calls []string
	fn    func(name string, args map[string]any) (mcp.CallResult, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, name string, args map[string]any) (mcp.CallResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(name, args)
	}
	return mcp.TextResult("ok"), nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func toolTurn(calls ...models.ToolCall) models.Message {
	return models.Message{Role: models.RoleAssistant, ToolCalls: calls}
}

func TestRunStopsAtRoundLimit(t *testing.T) {
	model := models.NewScriptedChat(toolTurn(models.ToolCall{ID: "c", Name: "ping"}))
	model.RepeatLast = true
	invoker := &fakeInvoker{}

	outcome, err := New(model, invoker, nil, Options{}).Run(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Reason != ReasonRoundLimit {
		t.Fatalf("expected round limit, got %q", outcome.Reason)
	}
	if outcome.Rounds != maxToolRounds {
		t.Fatalf("expected %d rounds, got %d", maxToolRounds, outcome.Rounds)
	}
	if invoker.callCount() != maxToolRounds {
		t.Fatalf("expected %d dispatches, got %d", maxToolRounds, invoker.callCount())
	}
	// The budget caps submissions: no sixth request goes to the model.
	if len(model.Requests) != maxToolRounds {
		t.Fatalf("expected %d model turns, got %d", maxToolRounds, len(model.Requests))
	}
}

func TestRoundLimitNeverSubmitsASixthTurn(t *testing.T) {
	// Five tool-calling turns followed by a plain answer the loop must never
	// reach: the budget ends the run before a sixth submission.
	script := make([]models.Message, 0, maxToolRounds+1)
	for i := 0; i < maxToolRounds; i++ {
		script = append(script, toolTurn(models.ToolCall{ID: "c", Name: "ping"}))
	}
	script = append(script, models.Message{Role: models.RoleAssistant, Content: "late answer"})

	model := models.NewScriptedChat(script...)
	invoker := &fakeInvoker{}

	outcome, err := New(model, invoker, nil, Options{}).Run(context.Background(), "keep going")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Reason != ReasonRoundLimit {
		t.Fatalf("expected round limit, got %q", outcome.Reason)
	}
	if outcome.Answer != "" {
		t.Fatalf("cut-off run must not carry an answer, got %q", outcome.Answer)
	}
	if len(model.Requests) != maxToolRounds {
		t.Fatalf("expected %d model turns, got %d", maxToolRounds, len(model.Requests))
	}
	// The last history entry is the fifth assistant turn with its tool
	// results; no dangling undispatched assistant message follows.
	last := outcome.History[len(outcome.History)-1]
	if last.Role != models.RoleTool {
		t.Fatalf("history must end with dispatched tool results, got role %q", last.Role)
	}
}

func TestRunReturnsPlainAnswer(t *testing.T) {
	model := models.NewScriptedChat(models.Message{Role: models.RoleAssistant, Content: "42"})
	invoker := &fakeInvoker{}

	outcome, err := New(model, invoker, nil, Options{}).Run(context.Background(), "meaning of life")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Reason != ReasonAnswer || outcome.Answer != "42" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Rounds != 0 {
		t.Fatalf("expected 0 rounds, got %d", outcome.Rounds)
	}
	if invoker.callCount() != 0 {
		t.Fatal("no tools should have been invoked")
	}
}

func TestToolResultsKeepRequestOrder(t *testing.T) {
	model := models.NewScriptedChat(
		toolTurn(
			models.ToolCall{ID: "a", Name: "first"},
			models.ToolCall{ID: "b", Name: "second"},
			models.ToolCall{ID: "c", Name: "third"},
		),
		models.Message{Role: models.RoleAssistant, Content: "done"},
	)
	invoker := &fakeInvoker{fn: func(name string, args map[string]any) (mcp.CallResult, error) {
		if name == "second" {
			time.Sleep(50 * time.Millisecond)
		}
		return mcp.TextResult(name), nil
	}}

	outcome, err := New(model, invoker, nil, Options{}).Run(context.Background(), "ordered")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var ids []string
	for _, msg := range outcome.History {
		if msg.Role == models.RoleTool {
			ids = append(ids, msg.ToolCallID)
		}
	}
	if strings.Join(ids, ",") != "a,b,c" {
		t.Fatalf("tool results out of request order: %v", ids)
	}
}

func TestFailuresBecomeErrorMessages(t *testing.T) {
	model := models.NewScriptedChat(
		toolTurn(
			models.ToolCall{ID: "a", Name: "read_file", Arguments: map[string]any{"path": "/does/not/exist"}},
			models.ToolCall{ID: "b", Name: ""},
			models.ToolCall{ID: "c", Name: "flagged"},
		),
		models.Message{Role: models.RoleAssistant, Content: "recovered"},
	)
	invoker := &fakeInvoker{fn: func(name string, args map[string]any) (mcp.CallResult, error) {
		switch name {
		case "read_file":
			return mcp.CallResult{}, errors.New("open /does/not/exist: no such file")
		case "flagged":
			return mcp.ErrorResult("tool said no"), nil
		}
		return mcp.TextResult("ok"), nil
	}}

	outcome, err := New(model, invoker, nil, Options{}).Run(context.Background(), "break things")
	if err != nil {
		t.Fatalf("failures must stay inside the history, got error: %v", err)
	}
	if outcome.Answer != "recovered" {
		t.Fatalf("loop should continue past failures, got %+v", outcome)
	}

	errorsSeen := 0
	for _, msg := range outcome.History {
		if msg.Role != models.RoleTool {
			continue
		}
		var payload map[string]string
		if json.Unmarshal([]byte(msg.Content), &payload) == nil && payload["error"] != "" {
			errorsSeen++
		}
	}
	if errorsSeen != 3 {
		t.Fatalf("expected 3 error tool messages, got %d", errorsSeen)
	}
}

func TestConcatScenario(t *testing.T) {
	model := models.NewScriptedChat(
		toolTurn(models.ToolCall{
			ID:        "call-1",
			Name:      "concat",
			Arguments: map[string]any{"parts": []any{"a", "b"}},
		}),
		models.Message{Role: models.RoleAssistant, Content: "ab"},
	)
	invoker := &fakeInvoker{fn: func(name string, args map[string]any) (mcp.CallResult, error) {
		if name != "concat" {
			return mcp.ErrorResult("unknown tool: " + name), nil
		}
		parts, _ := args["parts"].([]any)
		var b strings.Builder
		for _, p := range parts {
			fmt.Fprint(&b, p)
		}
		return mcp.TextResult(b.String()), nil
	}}

	defs := []mcp.ToolDefinition{{
		Name:        "concat",
		Description: "concatenate strings",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"parts":{"type":"array"}},"required":["parts"]}`),
	}}

	outcome, err := New(model, invoker, defs, Options{}).Run(context.Background(), "join a and b")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Answer != "ab" || outcome.Rounds != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(model.Requests) != 2 {
		t.Fatalf("expected exactly 2 model turns, got %d", len(model.Requests))
	}
	// The declared tool must reach the model with its schema intact.
	spec := model.Requests[0].Tools
	if len(spec) != 1 || spec[0].Name != "concat" {
		t.Fatalf("tool declaration missing: %+v", spec)
	}
	if _, ok := spec[0].InputSchema["properties"]; !ok {
		t.Fatalf("schema not passed through: %+v", spec[0].InputSchema)
	}
}

func TestHistoryGrowsByAppendOnly(t *testing.T) {
	model := models.NewScriptedChat(
		toolTurn(models.ToolCall{ID: "a", Name: "step"}),
		toolTurn(models.ToolCall{ID: "b", Name: "step"}),
		models.Message{Role: models.RoleAssistant, Content: "done"},
	)
	invoker := &fakeInvoker{}

	if _, err := New(model, invoker, nil, Options{}).Run(context.Background(), "grow"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	encode := func(msgs []models.Message) []string {
		out := make([]string, len(msgs))
		for i, m := range msgs {
			raw, _ := json.Marshal(m)
			out[i] = string(raw)
		}
		return out
	}

	// Every model turn must see the previous turn's history as an untouched
	// prefix of its own.
	var prev []string
	for turn, req := range model.Requests {
		cur := encode(req.Messages)
		if len(cur) < len(prev) {
			t.Fatalf("turn %d history shrank: %d < %d", turn, len(cur), len(prev))
		}
		for i := range prev {
			if cur[i] != prev[i] {
				t.Fatalf("turn %d rewrote history at index %d:\n%s\nwas:\n%s", turn, i, cur[i], prev[i])
			}
		}
		prev = cur
	}
}

func TestDeclareToolsFallsBackOnBadSchema(t *testing.T) {
	specs := declareTools([]mcp.ToolDefinition{
		{Name: "good", InputSchema: json.RawMessage(`{"type":"object"}`)},
		{Name: "bad", InputSchema: json.RawMessage(`{broken`)},
		{Name: "empty"},
	})
	if len(specs) != 3 {
		t.Fatalf("no definition may be dropped, got %d", len(specs))
	}
	for _, spec := range specs[1:] {
		if spec.InputSchema["type"] != "object" {
			t.Fatalf("expected empty object fallback for %s, got %+v", spec.Name, spec.InputSchema)
		}
	}
}
