// Package tools ships the built-in tool set served by the tool server binary:
// string concatenation plus a small filesystem surface confined to explicitly
// allowed root directories.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/go-toolbridge/pkg/mcp"
)

// Register adds the built-in tools to the registry. The filesystem tools only
// touch paths under the given roots; with no roots they refuse every path.
func Register(reg *mcp.Registry, roots []string) error {
	if err := reg.Register(concatDefinition, concatHandler); err != nil {
		return err
	}

	fs := &fsTools{roots: normalizeRoots(roots)}
	for _, entry := range []struct {
		def     mcp.ToolDefinition
		handler mcp.ToolHandler
	}{
		{readFileDefinition, fs.readFile},
		{writeFileDefinition, fs.writeFile},
		{listDirectoryDefinition, fs.listDirectory},
	} {
		if err := reg.Register(entry.def, entry.handler); err != nil {
			return err
		}
	}
	return nil
}

var concatDefinition = mcp.ToolDefinition{
	Name:        "concat",
	Description: "Concatenates a list of strings into one.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"parts": {
				"type": "array",
				"items": {"type": "string"},
				"description": "Strings to join, in order."
			},
			"separator": {
				"type": "string",
				"description": "Optional separator placed between parts."
			}
		},
		"required": ["parts"]
	}`),
}

func concatHandler(_ context.Context, args map[string]any) (mcp.CallResult, error) {
	raw, ok := args["parts"]
	if !ok {
		return mcp.CallResult{}, fmt.Errorf("missing 'parts' argument")
	}
	list, ok := raw.([]any)
	if !ok {
		return mcp.CallResult{}, fmt.Errorf("'parts' must be an array of strings")
	}

	separator, _ := args["separator"].(string)

	parts := make([]string, 0, len(list))
	for i, entry := range list {
		s, ok := entry.(string)
		if !ok {
			return mcp.CallResult{}, fmt.Errorf("parts[%d] is not a string", i)
		}
		parts = append(parts, s)
	}

	return mcp.TextResult(strings.Join(parts, separator)), nil
}
