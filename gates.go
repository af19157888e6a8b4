package companion

import "time"

// ──────────────────────────────────────────────
// Behavior gates — pure predicates over (time, draw, config)
// ──────────────────────────────────────────────

// GateDecision is the outcome of a pre-generation gate.
type GateDecision int

const (
	// GateProceed lets the turn continue to generation.
	GateProceed GateDecision = iota
	// GateSuppress drops the turn silently.
	GateSuppress
	// GateSuppressWithReply drops the turn but sends one short canned line
	// (the quiet-hours "too sleepy" minority).
	GateSuppressWithReply
	// GateDeferWithAck sends an immediate acknowledgement and schedules the
	// real reply as a timer-fired continuation.
	GateDeferWithAck
)

// GateConfig parameterizes the probabilistic gates. All gate functions are
// pure: the caller supplies the clock reading and the random draw, so the
// transition table tests deterministically.
type GateConfig struct {
	QuietStartHour    int     // inclusive, default 23
	QuietEndHour      int     // exclusive, default 7
	QuietSuppressProb float64 // share of quiet-hour turns suppressed silently, default 0.8

	BusyProb       float64       // unavailability simulation probability, default 0.03
	BusyDeferMin   time.Duration // default 3m
	BusyDeferMax   time.Duration // default 8m
	CoalesceWindow time.Duration // duplicate-event window, default 1.2s
}

// DefaultGateConfig returns production defaults.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		QuietStartHour:    23,
		QuietEndHour:      7,
		QuietSuppressProb: 0.8,
		BusyProb:          0.03,
		BusyDeferMin:      3 * time.Minute,
		BusyDeferMax:      8 * time.Minute,
		CoalesceWindow:    1200 * time.Millisecond,
	}
}

// InQuietHours reports whether now falls inside the nightly window.
// A window that wraps midnight (23→7) is handled.
func (c GateConfig) InQuietHours(now time.Time) bool {
	h := now.Hour()
	if c.QuietStartHour == c.QuietEndHour {
		return false
	}
	if c.QuietStartHour > c.QuietEndHour {
		return h >= c.QuietStartHour || h < c.QuietEndHour
	}
	return h >= c.QuietStartHour && h < c.QuietEndHour
}

// QuietHoursGate decides the quiet-hours outcome for one turn.
// Outside the window it always proceeds. Inside, the majority of draws
// suppress silently and the rest emit the short sleepy reply.
func (c GateConfig) QuietHoursGate(now time.Time, draw float64) GateDecision {
	if !c.InQuietHours(now) {
		return GateProceed
	}
	if draw < c.QuietSuppressProb {
		return GateSuppress
	}
	return GateSuppressWithReply
}

// BusyGate decides the unavailability simulation for one turn. Commands are
// never deferred; they should answer promptly.
func (c GateConfig) BusyGate(isCommand bool, draw float64) GateDecision {
	if isCommand {
		return GateProceed
	}
	if draw < c.BusyProb {
		return GateDeferWithAck
	}
	return GateProceed
}

// BusyDeferDelay maps a draw in [0,1) onto the deferral window.
func (c GateConfig) BusyDeferDelay(draw float64) time.Duration {
	span := c.BusyDeferMax - c.BusyDeferMin
	if span <= 0 {
		return c.BusyDeferMin
	}
	return c.BusyDeferMin + time.Duration(draw*float64(span))
}
