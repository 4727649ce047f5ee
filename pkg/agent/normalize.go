package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Protocol-Lattice/go-toolbridge/pkg/mcp"
	"github.com/Protocol-Lattice/go-toolbridge/pkg/models"
)

// executeCall runs one tool call and normalizes every possible outcome into a
// tool message. Nothing that happens inside a tool call may escape the loop:
// a missing name, an unknown tool, a severed transport, and a handler fault
// all come back as an error payload the model can read and react to.
func (o *Orchestrator) executeCall(ctx context.Context, call models.ToolCall) models.Message {
	if strings.TrimSpace(call.Name) == "" {
		return errorMessage(call.ID, "tool call is missing a name")
	}

	result, err := o.invoker.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		return errorMessage(call.ID, err.Error())
	}
	if result.IsError {
		return errorMessage(call.ID, result.Text())
	}

	return models.Message{
		Role:       models.RoleTool,
		Content:    encodeResult(result),
		ToolCallID: call.ID,
	}
}

// errorMessage wraps a failure description as a tool message carrying a JSON
// error object.
func errorMessage(callID, text string) models.Message {
	payload, err := json.Marshal(map[string]string{"error": text})
	if err != nil {
		payload = []byte(`{"error": "tool call failed"}`)
	}
	return models.Message{
		Role:       models.RoleTool,
		Content:    string(payload),
		ToolCallID: callID,
	}
}

// encodeResult serializes a successful result's content blocks for the model.
func encodeResult(result mcp.CallResult) string {
	if len(result.Content) == 0 {
		return "{}"
	}
	payload, err := json.Marshal(result.Content)
	if err != nil {
		return result.Text()
	}
	return string(payload)
}
