package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// Server answers the tool protocol over a byte stream, typically its own
// stdin/stdout when hosted as a subprocess. It owns no tools of its own; all
// lookups go through the attached Registry.
type Server struct {
	info     ServerInfo
	registry *Registry

	writeMu sync.Mutex
	writer  io.Writer
}

// NewServer creates a server that dispatches into the provided registry.
func NewServer(info ServerInfo, registry *Registry) *Server {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Server{info: info, registry: registry}
}

// Serve reads framed requests from r and writes responses to w until the
// stream ends, a shutdown request arrives, or the context is cancelled.
// Handler faults never terminate the loop; they are reported as error-flagged
// call results.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.writer = w
	reader := bufio.NewReader(r)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := readFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}

		var env responseEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			s.respondError(nil, codeParseError, err.Error())
			continue
		}

		// Notifications carry no id and expect no response.
		if env.ID == nil {
			continue
		}

		done, err := s.handle(ctx, env)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (s *Server) handle(ctx context.Context, env responseEnvelope) (done bool, err error) {
	switch env.Method {
	case methodInitialize:
		s.respond(env.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      s.info,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
		})
	case methodListTools:
		s.respond(env.ID, map[string]any{
			"tools": s.registry.List(),
		})
	case methodCallTool:
		var params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(env.Params, &params); err != nil {
			s.respondError(env.ID, codeInvalidParams, err.Error())
			return false, nil
		}
		s.respond(env.ID, s.registry.Dispatch(ctx, params.Name, params.Arguments))
	case methodShutdown:
		s.respond(env.ID, map[string]any{})
		return true, nil
	default:
		s.respondError(env.ID, codeMethodNotFound, "method not found: "+env.Method)
	}
	return false, nil
}

func (s *Server) respond(id *string, result any) {
	encoded, err := json.Marshal(result)
	if err != nil {
		s.respondError(id, codeInternalError, err.Error())
		return
	}
	s.write(responseEnvelope{JSONRPC: "2.0", ID: id, Result: encoded})
}

func (s *Server) respondError(id *string, code int, message string) {
	s.write(responseEnvelope{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (s *Server) write(env responseEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = writeFrame(s.writer, payload)
}
