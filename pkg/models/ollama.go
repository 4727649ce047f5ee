package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// ---------------------------- Ollama -----------------------------------------

// OllamaChat runs completions against a local Ollama daemon. Tool
// declarations are not forwarded; the provider serves plain question/answer
// conversations.
type OllamaChat struct {
	Client *ollama.Client
	Model  string
}

func NewOllamaChat(model string) (*OllamaChat, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
	}

	c := ollama.NewClient(u, httpClient)
	return &OllamaChat{Client: c, Model: model}, nil
}

func (o *OllamaChat) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = o.Model
	}

	var text strings.Builder

	genReq := &ollama.GenerateRequest{
		Model:  model,
		Prompt: flattenTranscript(req.Messages),
	}

	if err := o.Client.Generate(ctx, genReq, func(gr ollama.GenerateResponse) error {
		if gr.Response != "" {
			text.WriteString(gr.Response)
		}
		return nil
	}); err != nil {
		return ChatResponse{}, err
	}

	return ChatResponse{Message: Message{
		Role:    RoleAssistant,
		Content: text.String(),
	}}, nil
}
