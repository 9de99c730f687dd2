package chat

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini answers through the Gemini chat API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGemini creates a Gemini backend from cfg.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	cfg = cfg.withDefaults()
	return newGemini(ctx, cfg, genai.HTTPOptions{})
}

func newGemini(ctx context.Context, cfg Config, opts genai.HTTPOptions) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.GeminiAPIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

// Name implements Backend.
func (g *Gemini) Name() string { return "gemini" }

// Reply opens a chat seeded with the prior turns and sends the latest message.
func (g *Gemini) Reply(ctx context.Context, req Request) (string, error) {
	prior, last := req.split()

	history := make([]*genai.Content, 0, len(prior))
	for _, m := range prior {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt(req.Level, req.Platform), genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}

	session, err := g.client.Chats.Create(ctx, g.model, config, history)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}
	resp, err := session.SendMessage(ctx, genai.Part{Text: last})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.Text(), nil
}
