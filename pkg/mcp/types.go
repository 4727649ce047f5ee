// Package mcp implements the tool protocol spoken between the bridge and a
// subprocess-hosted tool server: JSON-RPC 2.0 messages framed with
// Content-Length headers over a bidirectional byte stream. The package covers
// both ends of the channel: a client that performs the versioned capability
// handshake and invokes tools, and a server that dispatches registered tool
// handlers.
package mcp

import (
	"encoding/json"
	"strings"
)

const (
	// protocolVersion loosely follows the Model Context Protocol releases.
	// Servers may accept a range of versions; a sensible default keeps the
	// client working out of the box while still allowing callers to override
	// it through Options.
	protocolVersion = "2024-11-05"

	methodInitialize  = "initialize"
	methodInitialized = "notifications/initialized"
	methodListTools   = "tools/list"
	methodCallTool    = "tools/call"
	methodShutdown    = "shutdown"
)

// ClientInfo describes the calling application when establishing a session.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerInfo represents the metadata returned by the server during the
// initialise handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolDefinition describes a single tool: a unique name, a human-readable
// description, and an advisory JSON schema for its arguments. Definitions are
// immutable once registered.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Content represents a single content part returned from a tool invocation.
type Content struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
}

// CallResult captures the structured output of a tool invocation. An absent
// IsError flag always means success.
type CallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text concatenates the text parts within the result. Multiple segments are
// joined with a newline to preserve ordering while offering a consumable
// string.
func (r CallResult) Text() string {
	var segments []string
	for _, part := range r.Content {
		if part.Type != "text" {
			continue
		}
		if trimmed := strings.TrimSpace(part.Text); trimmed != "" {
			segments = append(segments, trimmed)
		}
	}
	return strings.Join(segments, "\n")
}

// TextResult wraps a plain string into a successful call result.
func TextResult(text string) CallResult {
	return CallResult{Content: []Content{{Type: "text", Text: text}}}
}

// ErrorResult wraps a failure description into an error-flagged call result.
func ErrorResult(text string) CallResult {
	return CallResult{
		Content: []Content{{Type: "text", Text: text}},
		IsError: true,
	}
}

// ----------------------------------------------------------------------------
// JSON-RPC envelope

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// notification is a request without an id; no response is expected.
type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type responseEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *string         `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)
