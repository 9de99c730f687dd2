package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/nero-labs/internal/shared"
)

// CodeSender delivers a verification code to an email address.
type CodeSender interface {
	Send(ctx context.Context, email, code string) error
}

// LogCodeSender logs codes instead of mailing them. With Echo set it also
// remembers the last code per address so development clients can show it.
type LogCodeSender struct {
	Echo bool

	mu   sync.Mutex
	last map[string]string
}

func (s *LogCodeSender) Send(_ context.Context, email, code string) error {
	slog.Info("Verification code issued", "email", email)
	slog.Debug("Verification code", "email", email, "code", code)
	if !s.Echo {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		s.last = make(map[string]string)
	}
	s.last[strings.ToLower(email)] = code
	return nil
}

// Peek returns the last code sent to email when echoing is enabled.
func (s *LogCodeSender) Peek(email string) (string, bool) {
	if !s.Echo {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.last[strings.ToLower(email)]
	return code, ok
}

func generateCode() (string, error) {
	return shared.RandomDigits(CodeLength)
}
