package models

import (
	"context"
	"fmt"
	"strings"
)

// DummyChat is a lightweight model implementation useful for local testing
// without API calls. When Script is non-empty it plays back the scripted
// assistant messages in order, recording every request it receives; otherwise
// it echoes the last non-empty line of the conversation.
type DummyChat struct {
	Prefix string

	Script     []Message
	RepeatLast bool

	Requests []ChatRequest

	next int
}

func NewDummyChat(prefix string) *DummyChat {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyChat{Prefix: prefix}
}

// NewScriptedChat plays back the given assistant messages, one per call.
func NewScriptedChat(script ...Message) *DummyChat {
	return &DummyChat{Prefix: "Dummy response:", Script: script}
}

func (d *DummyChat) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	d.Requests = append(d.Requests, req)

	if len(d.Script) > 0 {
		idx := d.next
		if idx >= len(d.Script) {
			if !d.RepeatLast {
				return ChatResponse{}, fmt.Errorf("dummy: script exhausted after %d turns", len(d.Script))
			}
			idx = len(d.Script) - 1
		}
		d.next++
		return ChatResponse{Message: d.Script[idx]}, nil
	}

	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(req.Messages[i].Content)
		if candidate != "" {
			last = candidate
			break
		}
	}
	if last == "" {
		last = "<empty prompt>"
	}
	return ChatResponse{Message: Message{
		Role:    RoleAssistant,
		Content: fmt.Sprintf("%s %s", d.Prefix, last),
	}}, nil
}

var _ ChatModel = (*DummyChat)(nil)
