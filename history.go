package companion

import (
	"encoding/json"
	"time"
)

// ──────────────────────────────────────────────
// ShortTermHistory — recent conversation window
// ──────────────────────────────────────────────

const historyKey = "chat_history"

// DefaultHistoryCap is the maximum number of turns kept per user.
const DefaultHistoryCap = 20

// ShortTermHistory manages the per-user recent-turn window with automatic
// FIFO trimming: inserting past the cap evicts the oldest turn.
type ShortTermHistory struct {
	store MemoryStore
	cap   int
}

// NewShortTermHistory creates a history manager. cap <= 0 uses DefaultHistoryCap.
func NewShortTermHistory(store MemoryStore, cap int) *ShortTermHistory {
	if cap <= 0 {
		cap = DefaultHistoryCap
	}
	return &ShortTermHistory{store: store, cap: cap}
}

// Cap returns the configured window size.
func (h *ShortTermHistory) Cap() int { return h.cap }

// Append writes one turn and trims the window.
func (h *ShortTermHistory) Append(userID, role, text string, at time.Time) error {
	turn := Turn{UserID: userID, Role: role, Text: text, Timestamp: at}
	data, _ := json.Marshal(turn)
	if err := h.store.Append(userID, historyKey, string(data)); err != nil {
		return err
	}
	return h.store.TrimList(userID, historyKey, h.cap)
}

// Recent returns up to cap turns, oldest first (most-recent-last).
func (h *ShortTermHistory) Recent(userID string) ([]Turn, error) {
	raw, err := h.store.GetList(userID, historyKey, h.cap)
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(raw))
	for _, r := range raw {
		var t Turn
		if json.Unmarshal([]byte(r), &t) == nil {
			turns = append(turns, t)
		}
	}
	return turns, nil
}

// Len returns the number of stored turns.
func (h *ShortTermHistory) Len(userID string) (int, error) {
	return h.store.ListLength(userID, historyKey)
}
