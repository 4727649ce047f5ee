package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Protocol-Lattice/go-toolbridge/pkg/mcp"
)

var readFileDefinition = mcp.ToolDefinition{
	Name:        "read_file",
	Description: "Reads a UTF-8 text file under one of the allowed roots.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path of the file to read."}
		},
		"required": ["path"]
	}`),
}

var writeFileDefinition = mcp.ToolDefinition{
	Name:        "write_file",
	Description: "Writes text to a file under one of the allowed roots, replacing any existing content.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"path":    {"type": "string", "description": "Destination file path."},
			"content": {"type": "string", "description": "Text to write."}
		},
		"required": ["path", "content"]
	}`),
}

var listDirectoryDefinition = mcp.ToolDefinition{
	Name:        "list_directory",
	Description: "Lists the entries of a directory under one of the allowed roots.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Directory to list."}
		},
		"required": ["path"]
	}`),
}

// fsTools confines every operation to the configured root directories.
type fsTools struct {
	roots []string
}

func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		if abs, err := filepath.Abs(root); err == nil {
			out = append(out, filepath.Clean(abs))
		}
	}
	return out
}

// resolve turns a requested path into an absolute one and rejects anything
// outside the allowed roots, including traversal via "..".
func (f *fsTools) resolve(requested string) (string, error) {
	if strings.TrimSpace(requested) == "" {
		return "", fmt.Errorf("path is required")
	}
	absolute, err := filepath.Abs(requested)
	if err != nil {
		return "", err
	}
	absolute = filepath.Clean(absolute)

	for _, root := range f.roots {
		if isSubpath(absolute, root) {
			return absolute, nil
		}
	}
	return "", fmt.Errorf("access denied - path %s outside allowed roots", requested)
}

func isSubpath(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func pathArg(args map[string]any) (string, error) {
	raw, ok := args["path"]
	if !ok {
		return "", fmt.Errorf("missing 'path' argument")
	}
	path, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("'path' must be a string")
	}
	return path, nil
}

func (f *fsTools) readFile(_ context.Context, args map[string]any) (mcp.CallResult, error) {
	path, err := pathArg(args)
	if err != nil {
		return mcp.CallResult{}, err
	}
	resolved, err := f.resolve(path)
	if err != nil {
		return mcp.CallResult{}, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return mcp.CallResult{}, err
	}
	return mcp.TextResult(string(data)), nil
}

func (f *fsTools) writeFile(_ context.Context, args map[string]any) (mcp.CallResult, error) {
	path, err := pathArg(args)
	if err != nil {
		return mcp.CallResult{}, err
	}
	content, ok := args["content"].(string)
	if !ok {
		return mcp.CallResult{}, fmt.Errorf("'content' must be a string")
	}
	resolved, err := f.resolve(path)
	if err != nil {
		return mcp.CallResult{}, err
	}

	if err := os.WriteFile(resolved, []byte(content), 0600); err != nil {
		return mcp.CallResult{}, err
	}
	return mcp.TextResult(fmt.Sprintf("wrote %d bytes to %s", len(content), resolved)), nil
}

func (f *fsTools) listDirectory(_ context.Context, args map[string]any) (mcp.CallResult, error) {
	path, err := pathArg(args)
	if err != nil {
		return mcp.CallResult{}, err
	}
	resolved, err := f.resolve(path)
	if err != nil {
		return mcp.CallResult{}, err
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return mcp.CallResult{}, err
	}

	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			b.WriteString("[DIR] ")
		} else {
			b.WriteString("[FILE] ")
		}
		b.WriteString(entry.Name())
		b.WriteString("\n")
	}
	return mcp.TextResult(strings.TrimRight(b.String(), "\n")), nil
}
