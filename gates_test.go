package companion

import (
	"testing"
	"time"
)

// ══════════════════════════════════════════════
// Behavior gates
// ══════════════════════════════════════════════

func at(hour int) time.Time {
	return time.Date(2026, 3, 1, hour, 30, 0, 0, time.UTC)
}

func TestQuietWindowWrapsMidnight(t *testing.T) {
	c := DefaultGateConfig() // 23 → 7

	cases := []struct {
		hour int
		in   bool
	}{
		{22, false}, {23, true}, {0, true}, {3, true}, {6, true}, {7, false}, {12, false},
	}
	for _, tc := range cases {
		if got := c.InQuietHours(at(tc.hour)); got != tc.in {
			t.Errorf("InQuietHours(%02d:30) = %v; want %v", tc.hour, got, tc.in)
		}
	}
}

func TestQuietWindowNonWrapping(t *testing.T) {
	c := DefaultGateConfig()
	c.QuietStartHour, c.QuietEndHour = 2, 6

	if !c.InQuietHours(at(3)) {
		t.Error("03:30 should be quiet")
	}
	if c.InQuietHours(at(23)) {
		t.Error("23:30 should not be quiet")
	}
}

func TestQuietHoursGateOutcomes(t *testing.T) {
	c := DefaultGateConfig() // suppress prob 0.8

	if got := c.QuietHoursGate(at(12), 0.0); got != GateProceed {
		t.Fatalf("daytime = %v; want proceed", got)
	}
	if got := c.QuietHoursGate(at(2), 0.5); got != GateSuppress {
		t.Fatalf("night low draw = %v; want silent suppress", got)
	}
	if got := c.QuietHoursGate(at(2), 0.9); got != GateSuppressWithReply {
		t.Fatalf("night high draw = %v; want sleepy reply", got)
	}
}

func TestBusyGate(t *testing.T) {
	c := DefaultGateConfig() // busy prob 0.03

	if got := c.BusyGate(false, 0.01); got != GateDeferWithAck {
		t.Fatalf("low draw = %v; want defer", got)
	}
	if got := c.BusyGate(false, 0.5); got != GateProceed {
		t.Fatalf("high draw = %v; want proceed", got)
	}
	// Commands are never deferred.
	if got := c.BusyGate(true, 0.0); got != GateProceed {
		t.Fatalf("command = %v; want proceed", got)
	}
}

func TestBusyDeferDelayWithinWindow(t *testing.T) {
	c := DefaultGateConfig()

	for _, draw := range []float64{0, 0.5, 0.999} {
		d := c.BusyDeferDelay(draw)
		if d < c.BusyDeferMin || d > c.BusyDeferMax {
			t.Fatalf("BusyDeferDelay(%v) = %s outside [%s, %s]", draw, d, c.BusyDeferMin, c.BusyDeferMax)
		}
	}
}
