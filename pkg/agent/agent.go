// Package agent drives the model/tool conversation loop: it hands the model
// the full history plus the advertised tools, dispatches whatever tool calls
// come back, folds the results into the history, and repeats until the model
// answers in plain text or the round budget runs out.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Protocol-Lattice/go-toolbridge/pkg/concurrent"
	"github.com/Protocol-Lattice/go-toolbridge/pkg/mcp"
	"github.com/Protocol-Lattice/go-toolbridge/pkg/models"
)

// maxToolRounds bounds how many tool-calling turns a single Run may take. A
// model that still wants tools after the final round is cut off with
// ReasonRoundLimit instead of looping forever.
const maxToolRounds = 5

// defaultToolConcurrency caps how many tool calls from one model turn run at
// once.
const defaultToolConcurrency = 4

// Invoker executes one named tool call. Failed invocations may surface either
// as a Go error or as an error-flagged result; the loop folds both into the
// history the same way.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (mcp.CallResult, error)
}

// TerminalReason says why a run ended.
type TerminalReason string

const (
	// ReasonAnswer means the model produced a plain answer with no tool calls.
	ReasonAnswer TerminalReason = "answer"
	// ReasonRoundLimit means the round budget ran out while the model still
	// wanted tools. It is a normal outcome, not an error.
	ReasonRoundLimit TerminalReason = "round_limit"
)

// Outcome is the result of one orchestrated run.
type Outcome struct {
	Answer  string
	Rounds  int
	Reason  TerminalReason
	History []models.Message
}

// Hooks observe the loop. Nil fields are skipped.
type Hooks struct {
	OnModelTurn  func(round int, msg models.Message)
	OnToolResult func(round int, call models.ToolCall, result models.Message)
}

// Options configure an Orchestrator.
type Options struct {
	// MaxRounds overrides the tool-round budget. Zero means maxToolRounds.
	MaxRounds int
	// MaxConcurrency caps parallel tool dispatch within one round. Zero means
	// defaultToolConcurrency.
	MaxConcurrency int
	// DisableReasoning is forwarded to the model on every turn.
	DisableReasoning bool
	Hooks            Hooks
}

// Orchestrator runs the bounded tool-calling loop against one model and one
// tool invoker.
type Orchestrator struct {
	model   models.ChatModel
	invoker Invoker
	tools   []models.ToolSpec
	pool    *concurrent.WorkerPool
	opts    Options
}

// New builds an orchestrator. The tool definitions are translated once into
// the model-facing declaration format.
func New(model models.ChatModel, invoker Invoker, tools []mcp.ToolDefinition, opts Options) *Orchestrator {
	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = defaultToolConcurrency
	}
	return &Orchestrator{
		model:   model,
		invoker: invoker,
		tools:   declareTools(tools),
		pool:    concurrent.NewWorkerPool(limit),
		opts:    opts,
	}
}

// Run drives the loop for a single user prompt. The history grows strictly by
// appending: the model's message lands first each turn, then one tool message
// per requested call, in the order the model requested them regardless of
// completion order. The model is asked at most maxRounds times; a model that
// still wants tools on its final turn ends the run with ReasonRoundLimit and
// gets no further submissions.
func (o *Orchestrator) Run(ctx context.Context, prompt string) (Outcome, error) {
	history := []models.Message{{Role: models.RoleUser, Content: prompt}}

	maxRounds := o.opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = maxToolRounds
	}

	rounds := 0
	for turn := 1; turn <= maxRounds; turn++ {
		resp, err := o.model.Chat(ctx, models.ChatRequest{
			Messages:         history,
			Tools:            o.tools,
			DisableReasoning: o.opts.DisableReasoning,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("agent: model turn %d: %w", turn, err)
		}

		msg := resp.Message
		history = append(history, msg)
		if o.opts.Hooks.OnModelTurn != nil {
			o.opts.Hooks.OnModelTurn(rounds, msg)
		}

		if len(msg.ToolCalls) == 0 {
			return Outcome{
				Answer:  msg.Content,
				Rounds:  rounds,
				Reason:  ReasonAnswer,
				History: history,
			}, nil
		}
		rounds++

		results := o.dispatch(ctx, msg.ToolCalls)
		for i, result := range results {
			history = append(history, result)
			if o.opts.Hooks.OnToolResult != nil {
				o.opts.Hooks.OnToolResult(rounds, msg.ToolCalls[i], result)
			}
		}
	}

	return Outcome{
		Rounds:  rounds,
		Reason:  ReasonRoundLimit,
		History: history,
	}, nil
}

// dispatch runs every call from one model turn, concurrently up to the
// pool's cap, and returns one tool message per call in request order.
func (o *Orchestrator) dispatch(ctx context.Context, calls []models.ToolCall) []models.Message {
	results, errs := concurrent.ParallelMap(ctx, calls, func(call models.ToolCall) (models.Message, error) {
		return o.executeCall(ctx, call), nil
	}, o.pool)
	for i, err := range errs {
		if err != nil {
			results[i] = errorMessage(calls[i].ID, err.Error())
		}
	}
	return results
}

// declareTools converts the wire tool definitions into model-facing specs.
// The schema passes through losslessly; a definition whose schema does not
// parse is declared with an empty object schema rather than dropped.
func declareTools(defs []mcp.ToolDefinition) []models.ToolSpec {
	specs := make([]models.ToolSpec, 0, len(defs))
	for _, def := range defs {
		schema := map[string]any{"type": "object"}
		if len(def.InputSchema) > 0 {
			var parsed map[string]any
			if err := json.Unmarshal(def.InputSchema, &parsed); err == nil {
				schema = parsed
			}
		}
		specs = append(specs, models.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		})
	}
	return specs
}
