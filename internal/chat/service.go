// Package chat produces Nero's replies through a pluggable model backend.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/nero-labs/internal/domain"
)

const (
	// FallbackReply is returned whenever the backend fails.
	FallbackReply = "Meow! Movement Network is so fast my neurons are still catching up! Give me a second."
	// EmptyReply is returned when the backend answers with no text.
	EmptyReply = "I'm sorry, I couldn't understand that. Could you try again?"

	defaultOpener = "Hello"
)

const systemInstruction = `You are Nero, an AI-powered Web3 Companion specifically optimized for the Movement Network.
Your goal is to help users understand Web3, Move language, and the Movement ecosystem (M1, M2, MoveVM).
Personality: Friendly, encouraging, and highly knowledgeable about Movement's performance advantages.
Context Awareness: You are an expert in explaining Move contracts, why Movement is fast (decentralized sequencers), and how M2 brings Move to Ethereum.
Provide clear, actionable advice for dApps like Uniswap, but emphasize when a user is on Movement.
If a user is confused about "MoveVM", "Aptos-compatibility", or "EVM on M2", explain them simply.
Encourage the user to level up their Nero NFT to unlock "Advanced Move Analytics".`

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request carries everything a backend needs for one round trip.
type Request struct {
	History  []Message
	Level    domain.Level
	Platform domain.PlatformConfig
}

// split separates the prior turns from the message being answered.
func (r Request) split() ([]Message, string) {
	if len(r.History) == 0 {
		return nil, defaultOpener
	}
	last := r.History[len(r.History)-1]
	prior := r.History[:len(r.History)-1]
	if strings.TrimSpace(last.Content) == "" {
		return prior, defaultOpener
	}
	return prior, last.Content
}

// SystemPrompt builds the instruction sent along with every request.
func SystemPrompt(level domain.Level, platform domain.PlatformConfig) string {
	var b strings.Builder
	b.WriteString(systemInstruction)
	if platform.SystemPrompt != "" {
		b.WriteString("\n")
		b.WriteString(platform.SystemPrompt)
	}
	fmt.Fprintf(&b, "\nUser Context - Level: %d, Network: %s.", int(level), domain.DefaultNetwork)
	return b.String()
}

// Backend answers a single chat request.
type Backend interface {
	Reply(ctx context.Context, req Request) (string, error)
	Name() string
}

// Service wraps a backend with fallback replies and per-device throttling.
type Service struct {
	backend Backend
	limiter *Limiter
	cfg     Config
}

// NewService creates a chat service over backend.
func NewService(backend Backend, cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		backend: backend,
		limiter: NewLimiter(cfg.RatePerMinute, cfg.Burst),
		cfg:     cfg,
	}
}

// Allow reports whether key may send another chat message now.
func (s *Service) Allow(key string) bool {
	return s.limiter.Allow(key)
}

// Backend returns the name of the active backend.
func (s *Service) Backend() string {
	return s.backend.Name()
}

// Chat returns the backend reply, or FallbackReply if the backend fails.
func (s *Service) Chat(ctx context.Context, req Request) string {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	reply, err := s.backend.Reply(ctx, req)
	if err != nil {
		slog.Error("Chat backend failed", "backend", s.backend.Name(), "error", err)
		return FallbackReply
	}
	if strings.TrimSpace(reply) == "" {
		return EmptyReply
	}
	return reply
}

// NewBackend picks the backend named by cfg.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	cfg = cfg.withDefaults()
	switch {
	case cfg.GeminiAPIKey != "":
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	case cfg.AgentAddr != "":
		a, err := NewAgentClient(cfg, slog.Default())
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return Offline{}, nil
	}
}
