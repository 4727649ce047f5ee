// Bridge connects a chat model to a spawned tool server: it launches the
// server command, performs the handshake, hands the advertised tools to the
// model, and drives the tool-calling loop until the model answers.
//
// Examples:
//
//	export OPENAI_API_KEY=...
//	go run ./cmd/bridge -provider openai -model gpt-4o-mini \
//	    -server "toolserver -root /tmp/work" -message "List /tmp/work"
//
//	export ANTHROPIC_API_KEY=...
//	go run ./cmd/bridge -provider anthropic -model claude-sonnet-4-20250514 \
//	    -server "toolserver" -stdin < prompt.txt
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Protocol-Lattice/go-toolbridge/pkg/agent"
	"github.com/Protocol-Lattice/go-toolbridge/pkg/models"
	"github.com/Protocol-Lattice/go-toolbridge/pkg/session"
)

var (
	flagProvider = flag.String("provider", "openai", "LLM provider: openai|anthropic|gemini|ollama|dummy, prefix with cached: to memoise responses")
	flagModel    = flag.String("model", "gpt-4o-mini", "Model ID for the selected provider")
	flagBaseURL  = flag.String("base-url", "", "Override the provider base URL (OpenAI-compatible servers)")
	flagServer   = flag.String("server", "", "Tool server command, e.g. \"toolserver -root /tmp\"")
	flagMessage  = flag.String("message", "", "User message (ignored if -stdin is set)")
	flagStdin    = flag.Bool("stdin", false, "Read user message from STDIN")
	flagJSON     = flag.Bool("json", false, "Print JSON {answer, rounds, reason}")
	flagNoReason = flag.Bool("no-reasoning", false, "Ask the provider to skip extended reasoning")
	flagTimeout  = flag.Duration("timeout", 90*time.Second, "Overall request timeout")
	flagInvokeTO = flag.Duration("invoke-timeout", 30*time.Second, "Per-tool-call timeout (0 disables)")
	flagVerbose  = flag.Bool("v", false, "Debug logging")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	level := slog.LevelInfo
	if *flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("bridge failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	prompt, err := readPrompt()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*flagServer) == "" {
		return fmt.Errorf("-server is required")
	}

	model, err := models.NewChatProvider(ctx, *flagProvider, *flagModel, *flagBaseURL)
	if err != nil {
		return err
	}

	mgr := session.NewManager(session.Options{
		InvokeTimeout: *flagInvokeTO,
	})
	if err := mgr.Connect(ctx, *flagServer); err != nil {
		return err
	}
	defer mgr.Disconnect(context.Background())

	logger.Info("connected", "server", mgr.Server().Name, "version", mgr.Server().Version)

	tools, err := mgr.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	for _, tool := range tools {
		logger.Debug("tool available", "name", tool.Name)
	}

	loop := agent.New(model, mgr, tools, agent.Options{
		DisableReasoning: *flagNoReason,
		Hooks: agent.Hooks{
			OnModelTurn: func(round int, msg models.Message) {
				logger.Debug("model turn", "round", round, "tool_calls", len(msg.ToolCalls))
			},
			OnToolResult: func(round int, call models.ToolCall, result models.Message) {
				logger.Debug("tool result", "round", round, "tool", call.Name)
			},
		},
	})

	outcome, err := loop.Run(ctx, prompt)
	if err != nil {
		return err
	}

	logger.Info("run finished", "rounds", outcome.Rounds, "reason", outcome.Reason)

	if *flagJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"answer": outcome.Answer,
			"rounds": outcome.Rounds,
			"reason": outcome.Reason,
		})
	}

	if outcome.Reason == agent.ReasonRoundLimit {
		fmt.Fprintln(os.Stderr, "stopped: tool round limit reached without a final answer")
		return nil
	}
	fmt.Println(outcome.Answer)
	return nil
}

func readPrompt() (string, error) {
	if *flagStdin {
		var b strings.Builder
		reader := bufio.NewReader(os.Stdin)
		if _, err := io.Copy(&b, reader); err != nil {
			return "", err
		}
		prompt := strings.TrimSpace(b.String())
		if prompt == "" {
			return "", fmt.Errorf("empty message on stdin")
		}
		return prompt, nil
	}
	if strings.TrimSpace(*flagMessage) == "" {
		return "", fmt.Errorf("-message is required (or use -stdin)")
	}
	return *flagMessage, nil
}
