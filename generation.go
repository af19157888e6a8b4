package companion

import (
	"context"
	"errors"
	"fmt"
)

// ──────────────────────────────────────────────
// Generation — pluggable model backend
// ──────────────────────────────────────────────

// Generator produces the raw model reply for a rendered prompt.
// Implementations wrap whatever chat-completion backend the deployment uses.
type Generator interface {
	Generate(ctx context.Context, prompt RenderedPrompt) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt RenderedPrompt) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt RenderedPrompt) (string, error) {
	return f(ctx, prompt)
}

// TransientError marks a generation failure worth retrying (timeouts, 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable generation failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
