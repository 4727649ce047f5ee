package models

import (
	"context"
	"errors"
	"fmt"
	"os"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ---------------------------- Google Gemini ----------------------------------

// GeminiChat runs completions against Google's Gemini API. Tool declarations
// are not forwarded; the full history is flattened into a single prompt.
type GeminiChat struct {
	Client *genai.Client
	Model  string
}

func NewGeminiChat(ctx context.Context, model string) (*GeminiChat, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &GeminiChat{Client: client, Model: model}, nil
}

func (g *GeminiChat) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = g.Model
	}

	gm := g.Client.GenerativeModel(model)
	resp, err := gm.GenerateContent(ctx, genai.Text(flattenTranscript(req.Messages)))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ChatResponse{}, errors.New("gemini: empty response")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	return ChatResponse{Message: Message{
		Role:    RoleAssistant,
		Content: text,
	}}, nil
}
