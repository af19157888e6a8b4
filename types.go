package companion

import "time"

// ──────────────────────────────────────────────
// Core dialogue types
// ──────────────────────────────────────────────

// Role identifies the author of a Turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one exchange unit in the short-term history.
// Immutable once written; appended per user and trimmed FIFO.
type Turn struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// EventKind classifies an inbound transport event.
type EventKind string

const (
	EventText  EventKind = "text"
	EventVoice EventKind = "voice"
	EventImage EventKind = "image"
)

// InboundEvent is the normalized event delivered by a transport adapter.
// Proactive marks a synthetic turn originated by the scheduler; such events
// carry an empty Text.
type InboundEvent struct {
	UserID    string
	Kind      EventKind
	Text      string
	Payload   []byte
	Proactive bool
}

// OutboundSender delivers messages to a user. Implemented by transport
// adapters; the core is agnostic to the wire format.
type OutboundSender interface {
	SendText(userID, text string) error
}

// TypingMonitor exposes the "user is typing" signal from the transport.
// Implementations that cannot observe typing should return false.
type TypingMonitor interface {
	IsTyping(userID string) bool
}
