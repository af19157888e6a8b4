package companion

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// ──────────────────────────────────────────────
// Interaction log — per-user activity and proactive accounting
// ──────────────────────────────────────────────

const interactionNamespace = "interaction"

// InteractionRecord is the persisted per-user activity state.
type InteractionRecord struct {
	UserID              string    `json:"user_id"`
	LastUserMessageAt   time.Time `json:"last_user_message_at"`
	LastBotMessageAt    time.Time `json:"last_bot_message_at"`
	DailyProactiveCount int       `json:"daily_proactive_count"`
	ProactiveCountDate  string    `json:"proactive_count_date"` // YYYY-MM-DD
	LastProactiveAt     time.Time `json:"last_proactive_at"`
}

// InteractionLog tracks who talked when and meters proactive sends.
// Claim operations are serialized so concurrent sweeps cannot double-spend
// a user's daily quota.
type InteractionLog struct {
	store MemoryStore
	now   func() time.Time

	mu sync.Mutex
}

// NewInteractionLog creates a log backed by store.
func NewInteractionLog(store MemoryStore) *InteractionLog {
	return &InteractionLog{store: store, now: time.Now}
}

// SetClock overrides the clock. Used by tests.
func (l *InteractionLog) SetClock(now func() time.Time) { l.now = now }

func (l *InteractionLog) load(userID string) InteractionRecord {
	rec := InteractionRecord{UserID: userID}
	raw, err := l.store.Get(interactionNamespace, userID)
	if err != nil || raw == "" {
		return rec
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Printf("[InteractionLog] corrupt record dropped | user=%s err=%v", userID, err)
		return InteractionRecord{UserID: userID}
	}
	return rec
}

func (l *InteractionLog) save(rec InteractionRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := l.store.Set(interactionNamespace, rec.UserID, string(data)); err != nil {
		log.Printf("[InteractionLog] persist failed | user=%s err=%v", rec.UserID, err)
	}
}

// TouchUser records an inbound user message.
func (l *InteractionLog) TouchUser(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.load(userID)
	rec.LastUserMessageAt = l.now()
	l.save(rec)
}

// TouchBot records an outbound bot message.
func (l *InteractionLog) TouchBot(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.load(userID)
	rec.LastBotMessageAt = l.now()
	l.save(rec)
}

// Record returns the stored state for one user.
func (l *InteractionLog) Record(userID string) InteractionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(userID)
}

// Candidates returns user IDs whose last user message predates idleBefore,
// sorted by longest idle first.
func (l *InteractionLog) Candidates(idleBefore time.Time) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys, err := l.store.ScanPrefix(interactionNamespace, "")
	if err != nil {
		log.Printf("[InteractionLog] scan failed | err=%v", err)
		return nil
	}

	type candidate struct {
		userID string
		lastAt time.Time
	}
	var cands []candidate
	for _, userID := range keys {
		rec := l.load(userID)
		if rec.LastUserMessageAt.IsZero() {
			continue
		}
		if rec.LastUserMessageAt.Before(idleBefore) {
			cands = append(cands, candidate{userID, rec.LastUserMessageAt})
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].lastAt.Before(cands[j].lastAt) })

	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.userID
	}
	return out
}

// ClaimProactiveSlot atomically checks the daily cap and the per-user
// cooldown, and on success records the claim. The claim happens before the
// send, so a crash mid-send costs quota rather than risking a double send.
func (l *InteractionLog) ClaimProactiveSlot(userID string, dailyCap int, cooldown time.Duration) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec := l.load(userID)

	today := now.Format("2006-01-02")
	if rec.ProactiveCountDate != today {
		rec.ProactiveCountDate = today
		rec.DailyProactiveCount = 0
	}
	if rec.DailyProactiveCount >= dailyCap {
		return false, fmt.Sprintf("daily cap reached (%d)", dailyCap)
	}
	if !rec.LastProactiveAt.IsZero() && now.Sub(rec.LastProactiveAt) < cooldown {
		return false, "cooldown active"
	}

	rec.DailyProactiveCount++
	rec.LastProactiveAt = now
	l.save(rec)
	return true, ""
}

// MarkProactiveFailed shortens the cooldown after a failed send: the daily
// count is rolled back and the last-proactive timestamp is pulled back so
// the user becomes eligible again after failureCooldown instead of the full
// cooldown.
func (l *InteractionLog) MarkProactiveFailed(userID string, fullCooldown, failureCooldown time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec := l.load(userID)
	if rec.DailyProactiveCount > 0 {
		rec.DailyProactiveCount--
	}
	rec.LastProactiveAt = now.Add(failureCooldown - fullCooldown)
	l.save(rec)
}

// ResetDailyCounts clears every user's daily proactive count. Called by the
// midnight cron job as a belt alongside the lazy per-claim date check.
func (l *InteractionLog) ResetDailyCounts() {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys, err := l.store.ScanPrefix(interactionNamespace, "")
	if err != nil {
		return
	}
	today := l.now().Format("2006-01-02")
	for _, userID := range keys {
		rec := l.load(userID)
		if rec.ProactiveCountDate != today {
			rec.ProactiveCountDate = today
			rec.DailyProactiveCount = 0
			l.save(rec)
		}
	}
}
