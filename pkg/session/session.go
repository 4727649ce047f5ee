// Package session manages the lifecycle of a connection to a spawned tool
// server: launching the child process, running the protocol handshake, caching
// the advertised tool list, and tearing everything down again. A manager moves
// between three states (disconnected, connecting, connected) and never lets a
// failed attempt leave a half-open connection behind.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Protocol-Lattice/go-toolbridge/pkg/mcp"
)

// State is the connection state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event records one state transition.
type Event struct {
	From   State
	To     State
	Reason string
}

// Options configure a Manager.
type Options struct {
	// ClientInfo identifies this client during the handshake.
	ClientInfo mcp.ClientInfo
	// InvokeTimeout bounds each tool invocation. Zero means no per-call bound
	// beyond the caller's context.
	InvokeTimeout time.Duration
	// ShutdownTimeout bounds the polite shutdown request during disconnect
	// before the transport is severed. Defaults to 2 seconds.
	ShutdownTimeout time.Duration
	// EventBuffer sizes the transition event channel. Defaults to 16.
	EventBuffer int
}

// processHandle abstracts the spawned server process so tests can substitute
// a fake.
type processHandle interface {
	Kill() error
	Wait() error
}

// launcher spawns the server command and returns a transport bound to its
// stdio plus a handle on the process itself.
type launcher func(ctx context.Context, command string) (mcp.Transport, processHandle, error)

// Manager owns at most one live server connection at a time.
type Manager struct {
	opts   Options
	launch launcher
	events chan Event

	mu         sync.Mutex
	state      State
	client     *mcp.Client
	proc       processHandle
	tools      []mcp.ToolDefinition
	generation uint64
}

// NewManager creates a disconnected manager.
func NewManager(opts Options) *Manager {
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = 16
	}
	return &Manager{
		opts:   opts,
		launch: launchCommand,
		events: make(chan Event, buffer),
	}
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Events exposes the state transition stream. Events are dropped rather than
// blocking the manager when the buffer is full.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Tools returns the most recently cached tool list.
func (m *Manager) Tools() []mcp.ToolDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mcp.ToolDefinition, len(m.tools))
	copy(out, m.tools)
	return out
}

// Connect launches the command and performs the handshake. Connecting while
// already connected tears the old session down first, so the call is
// effectively a reconnect. On any failure the manager rolls back to
// disconnected with the child process reaped.
//
// The lock is held only around state flips, never across the launch or the
// handshake, so State, Tools and Disconnect stay responsive while a slow
// server comes up. A Disconnect issued mid-handshake wins: the epoch check
// below discards the freshly connected client.
func (m *Manager) Connect(ctx context.Context, command string) error {
	if strings.TrimSpace(command) == "" {
		return errors.New("session: command is required")
	}

	m.mu.Lock()
	if m.state == StateConnecting {
		m.mu.Unlock()
		return errors.New("session: connect already in progress")
	}
	if m.state == StateConnected {
		m.teardownLocked(ctx)
	}
	m.setStateLocked(StateConnecting, "launching "+command)
	epoch := m.generation
	m.mu.Unlock()

	transport, proc, err := m.launch(ctx, command)
	if err != nil {
		m.abortConnect(epoch, "launch failed")
		return fmt.Errorf("session: launch %q: %w", command, err)
	}

	client, err := mcp.NewClient(ctx, transport, mcp.Options{ClientInfo: m.opts.ClientInfo})
	if err != nil {
		_ = proc.Kill()
		_ = proc.Wait()
		m.abortConnect(epoch, "handshake failed")
		return fmt.Errorf("session: handshake: %w", err)
	}

	m.mu.Lock()
	if m.generation != epoch || m.state != StateConnecting {
		// Somebody disconnected (or otherwise moved the session on) while the
		// handshake ran; this connection no longer has a home.
		m.mu.Unlock()
		_ = client.Close()
		_ = proc.Kill()
		_ = proc.Wait()
		return errors.New("session: connection superseded during handshake")
	}

	m.client = client
	m.proc = proc
	m.generation++
	gen := m.generation
	m.setStateLocked(StateConnected, "handshake complete")
	m.mu.Unlock()

	go m.watch(client, proc, gen)
	return nil
}

// abortConnect rolls a failed connect attempt back to disconnected, unless a
// concurrent Disconnect already moved the session on.
func (m *Manager) abortConnect(epoch uint64, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == epoch && m.state == StateConnecting {
		m.setStateLocked(StateDisconnected, reason)
	}
}

// Disconnect tears the current session down. Calling it while disconnected is
// a no-op.
func (m *Manager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDisconnected {
		return
	}
	m.teardownLocked(ctx)
	m.setStateLocked(StateDisconnected, "disconnect requested")
}

// ListTools fetches the server's tool list and refreshes the cache. The cache
// is only replaced on success, so a transient failure never wipes out the
// last known good list.
func (m *Manager) ListTools(ctx context.Context) ([]mcp.ToolDefinition, error) {
	client, err := m.currentClient()
	if err != nil {
		return nil, err
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.tools = tools
	m.mu.Unlock()

	out := make([]mcp.ToolDefinition, len(tools))
	copy(out, tools)
	return out, nil
}

// Invoke calls a named tool on the connected server. Error-flagged results
// come back as data; only protocol and transport failures are Go errors.
func (m *Manager) Invoke(ctx context.Context, name string, args map[string]any) (mcp.CallResult, error) {
	client, err := m.currentClient()
	if err != nil {
		return mcp.CallResult{}, err
	}

	if m.opts.InvokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.InvokeTimeout)
		defer cancel()
	}

	return client.CallTool(ctx, name, args)
}

// Server returns the server identity captured during the handshake.
func (m *Manager) Server() mcp.ServerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return mcp.ServerInfo{}
	}
	return m.client.Server()
}

func (m *Manager) currentClient() (*mcp.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.client == nil {
		return nil, fmt.Errorf("session: not connected (state %s)", m.state)
	}
	return m.client, nil
}

// watch reaps the child process and flips the manager to disconnected when
// the server dies underneath us. The generation check keeps a stale watcher
// from tearing down a newer session.
func (m *Manager) watch(client *mcp.Client, proc processHandle, generation uint64) {
	_ = proc.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != generation || m.state != StateConnected {
		return
	}
	_ = client.Close()
	m.client = nil
	m.proc = nil
	m.setStateLocked(StateDisconnected, "server process exited")
}

// teardownLocked closes the current session best effort. Callers hold m.mu.
func (m *Manager) teardownLocked(ctx context.Context) {
	if m.client != nil {
		client := m.client
		m.client = nil

		// Polite shutdown with a deadline. A call already in flight holds the
		// client's round-trip lock until the transport closes, so the shutdown
		// request runs off to the side and the close below unblocks everyone.
		timeout := m.opts.ShutdownTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = client.Shutdown(shutdownCtx)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
		cancel()
		_ = client.Close()
	}
	if m.proc != nil {
		_ = m.proc.Kill()
		_ = m.proc.Wait()
		m.proc = nil
	}
	m.generation++
}

func (m *Manager) setStateLocked(to State, reason string) {
	from := m.state
	m.state = to
	select {
	case m.events <- Event{From: from, To: to, Reason: reason}:
	default:
	}
}

// ----------------------------------------------------------------------------
// Process launching

type cmdHandle struct {
	cmd  *exec.Cmd
	once sync.Once
	err  error
}

func (h *cmdHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// Wait is memoized; exec.Cmd.Wait must only run once.
func (h *cmdHandle) Wait() error {
	h.once.Do(func() {
		h.err = h.cmd.Wait()
	})
	return h.err
}

// launchCommand starts the server command with its stdin/stdout bound to a
// framed transport. The child's stderr passes through for diagnostics.
func launchCommand(ctx context.Context, command string) (mcp.Transport, processHandle, error) {
	argv, err := tokenize(command)
	if err != nil {
		return nil, nil, err
	}
	if len(argv) == 0 {
		return nil, nil, errors.New("session: empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	return mcp.NewStdioTransport(stdin, stdout), &cmdHandle{cmd: cmd}, nil
}

// tokenize splits a command line on whitespace with single and double quote
// grouping.
func tokenize(command string) ([]string, error) {
	var (
		argv    []string
		current strings.Builder
		quote   rune
		started bool
	)

	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			started = true
		case r == ' ' || r == '\t':
			if started {
				argv = append(argv, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("session: unterminated %c quote in command", quote)
	}
	if started {
		argv = append(argv, current.String())
	}
	return argv, nil
}
