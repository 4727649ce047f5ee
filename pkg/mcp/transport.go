package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// ErrTransportClosed marks failures caused by a severed channel (broken pipe,
// process exit). Callers distinguish it from protocol-level errors with
// errors.Is.
var ErrTransportClosed = errors.New("mcp: transport closed")

// Transport is the underlying message transport used by the client. It must
// not reorder messages; the payload boundaries it delivers are exactly the
// frames that were sent. Receive honors context cancellation even while a
// read is in flight.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// stdioTransport frames messages with Content-Length headers over a pipe pair,
// typically the stdin/stdout of a spawned server process. It owns both handles
// exclusively. A background reader decodes frames into a channel so Receive
// can select against the caller's context; a frame that arrives after its
// caller gave up stays queued for the next Receive.
type stdioTransport struct {
	writer       io.Writer
	stdinCloser  io.Closer
	stdoutCloser io.Closer
	writeMu      sync.Mutex

	frames    chan []byte
	readErr   error // set before frames is closed
	done      chan struct{}
	closeOnce sync.Once
}

// NewStdioTransport binds a write/read pipe pair into a framed Transport.
func NewStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser) Transport {
	t := &stdioTransport{
		writer:       stdin,
		stdinCloser:  stdin,
		stdoutCloser: stdout,
		frames:       make(chan []byte),
		done:         make(chan struct{}),
	}
	go t.readLoop(bufio.NewReader(stdout))
	return t
}

func (t *stdioTransport) readLoop(reader *bufio.Reader) {
	for {
		payload, err := readFrame(reader)
		if err != nil {
			t.readErr = err
			close(t.frames)
			return
		}
		select {
		case t.frames <- payload:
		case <-t.done:
			return
		}
	}
}

func (t *stdioTransport) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := writeFrame(t.writer, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

func (t *stdioTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrTransportClosed
	case payload, ok := <-t.frames:
		if !ok {
			err := t.readErr
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
			}
			return nil, err
		}
		return payload, nil
	}
}

func (t *stdioTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	var err error
	if t.stdinCloser != nil {
		if e := t.stdinCloser.Close(); e != nil {
			err = e
		}
	}
	if t.stdoutCloser != nil {
		if e := t.stdoutCloser.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// ----------------------------------------------------------------------------
// Framing

// writeFrame emits a Content-Length header followed by the payload bytes. The
// same framing is used by the client transport and the server loop.
func writeFrame(w io.Writer, payload []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(payload))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame consumes one header block and the exact number of payload bytes it
// announces.
func readFrame(r *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "content-length:") {
			value := strings.TrimSpace(line[len("content-length:"):])
			parsed, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("mcp: invalid content length: %w", err)
			}
			length = parsed
		}
	}
	if length < 0 {
		return nil, errors.New("mcp: missing Content-Length header")
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
