package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Options control how the client initialises the remote server.
type Options struct {
	ClientInfo      ClientInfo
	Capabilities    map[string]any
	ProtocolVersion string
}

// Client speaks the tool protocol over a Transport: it performs the
// initialise/initialized handshake on construction and afterwards exposes the
// tooling surface (listing and invoking tools).
type Client struct {
	transport    Transport
	info         ClientInfo
	capabilities map[string]any
	protoVersion string

	mu     sync.Mutex
	closed atomic.Bool

	serverInfo ServerInfo
	serverCaps map[string]any
}

// NewClient creates a client over the provided transport. The function
// immediately performs the handshake: an initialize request carrying protocol
// version, client identity and capabilities, followed by an initialized
// notification once the server has answered. The transport is closed if any
// handshake step fails.
func NewClient(ctx context.Context, transport Transport, opts Options) (*Client, error) {
	if transport == nil {
		return nil, errors.New("mcp: transport is nil")
	}

	info := opts.ClientInfo
	if strings.TrimSpace(info.Name) == "" {
		info.Name = "go-toolbridge"
	}
	if strings.TrimSpace(info.Version) == "" {
		info.Version = "dev"
	}

	caps := opts.Capabilities
	if caps == nil {
		caps = map[string]any{
			"tools": map[string]bool{
				"list": true,
				"call": true,
			},
		}
	}

	proto := opts.ProtocolVersion
	if strings.TrimSpace(proto) == "" {
		proto = protocolVersion
	}

	client := &Client{
		transport:    transport,
		info:         info,
		capabilities: caps,
		protoVersion: proto,
	}

	if err := client.initialize(ctx); err != nil {
		transport.Close()
		return nil, err
	}

	return client, nil
}

// Close releases the underlying transport. Close is idempotent and unblocks
// any pending receive.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if c.closed.Swap(true) {
		return nil
	}
	return c.transport.Close()
}

// Server returns the metadata captured during the initialise handshake.
func (c *Client) Server() ServerInfo {
	if c == nil {
		return ServerInfo{}
	}
	return c.serverInfo
}

// ServerCapabilities returns the capability set the server announced during
// the handshake.
func (c *Client) ServerCapabilities() map[string]any {
	if c == nil {
		return nil
	}
	return c.serverCaps
}

// ListTools retrieves the complete list of tools exposed by the server,
// transparently following pagination cursors if the server elects to paginate.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}

	var (
		cursor string
		tools  []ToolDefinition
	)

	for {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}

		var resp struct {
			Tools      []ToolDefinition `json:"tools"`
			NextCursor string           `json:"nextCursor,omitempty"`
		}

		if err := c.call(ctx, methodListTools, params, &resp); err != nil {
			return nil, err
		}

		tools = append(tools, resp.Tools...)
		if strings.TrimSpace(resp.NextCursor) == "" {
			break
		}
		cursor = resp.NextCursor
	}

	return tools, nil
}

// CallTool invokes a named tool on the server and returns its result. Results
// flagged with isError are returned as data, not as a Go error; the caller
// decides how a failed invocation folds into its own flow. Only transport and
// protocol failures surface as errors.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (CallResult, error) {
	if err := c.ensureOpen(); err != nil {
		return CallResult{}, err
	}
	if strings.TrimSpace(name) == "" {
		return CallResult{}, errors.New("mcp: tool name is required")
	}

	params := map[string]any{
		"name": name,
	}
	if len(arguments) > 0 {
		params["arguments"] = arguments
	}

	var result CallResult
	if err := c.call(ctx, methodCallTool, params, &result); err != nil {
		return CallResult{}, err
	}
	return result, nil
}

// Shutdown notifies the server that the client intends to terminate the
// session. Best effort; errors are returned so callers can log them.
func (c *Client) Shutdown(ctx context.Context) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	// An empty result is perfectly valid for shutdown.
	return c.call(ctx, methodShutdown, map[string]any{}, &struct{}{})
}

func (c *Client) ensureOpen() error {
	if c == nil {
		return errors.New("mcp: client is nil")
	}
	if c.closed.Load() {
		return fmt.Errorf("%w: client has been closed", ErrTransportClosed)
	}
	return nil
}

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": c.protoVersion,
		"clientInfo":      c.info,
		"capabilities":    c.capabilities,
	}

	var resp struct {
		ProtocolVersion string         `json:"protocolVersion"`
		ServerInfo      ServerInfo     `json:"serverInfo"`
		Capabilities    map[string]any `json:"capabilities,omitempty"`
	}

	if err := c.call(ctx, methodInitialize, params, &resp); err != nil {
		return err
	}

	c.serverInfo = resp.ServerInfo
	c.serverCaps = resp.Capabilities

	// The handshake completes with a fire-and-forget notification; no
	// response follows.
	return c.notify(ctx, methodInitialized, map[string]any{})
}

// call performs one request/response round trip. Round trips are serialized
// on the transport; responses for other ids and server notifications are
// skipped until the matching id arrives.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	id := uuid.NewString()
	payload, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("mcp: marshal request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed.Load() {
		return fmt.Errorf("%w: client has been closed", ErrTransportClosed)
	}

	if err := c.transport.Send(ctx, payload); err != nil {
		return err
	}

	for {
		msg, err := c.transport.Receive(ctx)
		if err != nil {
			return err
		}

		var env responseEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			return fmt.Errorf("mcp: decode response: %w", err)
		}

		if env.Method != "" {
			// Server notification; keep looping until the response that
			// matches our request id shows up.
			continue
		}

		if env.ID == nil || *env.ID != id {
			continue
		}

		if env.Error != nil {
			return fmt.Errorf("mcp: %s", env.Error.Message)
		}

		if out != nil && len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, out); err != nil {
				return fmt.Errorf("mcp: decode result: %w", err)
			}
		}
		return nil
	}
}

func (c *Client) notify(ctx context.Context, method string, params any) error {
	payload, err := json.Marshal(notification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("mcp: marshal notification: %w", err)
	}
	return c.transport.Send(ctx, payload)
}
