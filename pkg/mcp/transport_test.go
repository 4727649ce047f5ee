package mcp

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestReceiveHonorsContextWhileBlocked(t *testing.T) {
	stdout, _ := io.Pipe() // nothing is ever written
	_, stdin := io.Pipe()
	transport := NewStdioTransport(stdin, stdout)
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := transport.Receive(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Receive ignored the context for %v", elapsed)
	}
}

func TestReceiveAfterCancelDeliversQueuedFrame(t *testing.T) {
	stdout, serverOut := io.Pipe()
	_, stdin := io.Pipe()
	transport := NewStdioTransport(stdin, stdout)
	defer transport.Close()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := transport.Receive(cancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	// A frame that lands after a caller gave up must reach the next Receive.
	go func() {
		_ = writeFrame(serverOut, []byte(`{"late":true}`))
	}()

	ctx, cancelWait := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelWait()
	payload, err := transport.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(payload) != `{"late":true}` {
		t.Fatalf("unexpected payload: %s", payload)
	}
}

func TestReceiveAfterCloseReportsTransportClosed(t *testing.T) {
	stdout, _ := io.Pipe()
	_, stdin := io.Pipe()
	transport := NewStdioTransport(stdin, stdout)
	transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := transport.Receive(ctx); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
}
