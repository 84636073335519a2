package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini completes prompts with the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGemini creates a Gemini completer.
func NewGemini(ctx context.Context, apiKey, model string, temperature float64) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w. Make sure GEMINI_API_KEY is set", err)
	}
	return &Gemini{client: client, model: model, temperature: float32(temperature)}, nil
}

// Complete sends the history and input as chat contents with the system
// prompt as system instruction.
func (g *Gemini) Complete(ctx context.Context, p Prompt) (string, error) {
	contents := make([]*genai.Content, 0, 2*len(p.History)+1)
	for _, turn := range p.History {
		contents = append(contents,
			genai.NewContentFromText(turn.Question, genai.RoleUser),
			genai.NewContentFromText(turn.Answer, genai.RoleModel),
		)
	}
	contents = append(contents, genai.NewContentFromText(p.Input, genai.RoleUser))

	config := &genai.GenerateContentConfig{Temperature: genai.Ptr(g.temperature)}
	if p.System != "" {
		config.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var responseText strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			responseText.WriteString(part.Text)
		}
	}
	return responseText.String(), nil
}
