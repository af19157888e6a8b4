package companion

import (
	"context"
	"sync"
	"time"
)

// ──────────────────────────────────────────────
// Typing state — "user is typing" signal bookkeeping
// ──────────────────────────────────────────────

// TypingState tracks the per-user typing flag fed by transport notices.
// It implements TypingMonitor.
type TypingState struct {
	mu     sync.RWMutex
	typing map[string]bool
}

// NewTypingState creates an empty typing tracker.
func NewTypingState() *TypingState {
	return &TypingState{typing: make(map[string]bool)}
}

// SetTyping updates the user's typing flag.
func (t *TypingState) SetTyping(userID string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing[userID] = isTyping
}

// IsTyping reports whether the user is currently typing.
func (t *TypingState) IsTyping(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.typing[userID]
}

// waitWhileTyping polls the monitor and returns once the user stops typing,
// the ceiling elapses (send anyway — never risk indefinite silence), or the
// context is cancelled. The poll sleep is a suspension point, not a busy loop.
func waitWhileTyping(ctx context.Context, monitor TypingMonitor, userID string, ceiling, poll time.Duration) error {
	if monitor == nil || !monitor.IsTyping(userID) {
		return nil
	}
	deadline := time.Now().Add(ceiling)
	for monitor.IsTyping(userID) && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
	return nil
}
