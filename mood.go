package companion

import (
	"strconv"
	"sync"
	"time"
)

// ──────────────────────────────────────────────
// MoodLedger — per-user emotional scalar with lazy decay
// ──────────────────────────────────────────────

const (
	// MoodMin/MoodMax bound the mood scalar.
	MoodMin = -100
	MoodMax = 100
	// MoodMaxStep bounds a single directive-driven change.
	MoodMaxStep = 5

	moodValueKey     = "mood"
	moodUpdatedAtKey = "mood_updated_ts"
)

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// MoodLedger tracks one bounded mood value per user. Decay is applied lazily
// at read time — one point toward zero per elapsed minute — so the mechanism
// is stateless between reads and needs no background timer. Decay never
// crosses zero. An unknown user starts at 0.
type MoodLedger struct {
	store MemoryStore
	now   func() time.Time

	mu         sync.Mutex
	moods      map[string]int
	timestamps map[string]time.Time
}

// NewMoodLedger creates a ledger on the given backend.
func NewMoodLedger(store MemoryStore) *MoodLedger {
	return &MoodLedger{
		store:      store,
		now:        time.Now,
		moods:      make(map[string]int),
		timestamps: make(map[string]time.Time),
	}
}

// SetClock overrides the time source. Used by tests.
func (m *MoodLedger) SetClock(now func() time.Time) { m.now = now }

// Current returns the user's mood after applying decay since the last update.
func (m *MoodLedger) Current(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked(userID)
}

// ApplyDelta applies a signed change (clamped to ±MoodMaxStep) on top of the
// decayed value and persists the result, clamped to [MoodMin, MoodMax].
func (m *MoodLedger) ApplyDelta(userID string, delta int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.currentLocked(userID)
	delta = clampInt(delta, -MoodMaxStep, MoodMaxStep)
	next := clampInt(current+delta, MoodMin, MoodMax)
	m.persistLocked(userID, next, m.now())
	return next
}

func (m *MoodLedger) currentLocked(userID string) int {
	now := m.now()

	if _, ok := m.moods[userID]; !ok {
		value, ts := m.loadLocked(userID)
		m.moods[userID] = value
		m.timestamps[userID] = ts
	}

	current := m.moods[userID]
	last := m.timestamps[userID]

	if last.IsZero() {
		// First sighting: treat now as the baseline, no decay.
		m.timestamps[userID] = now
		return current
	}

	decay := int(now.Sub(last).Minutes())
	if decay <= 0 || current == 0 {
		return current
	}

	// Pull toward zero without crossing it.
	var next int
	if current > 0 {
		next = current - decay
		if next < 0 {
			next = 0
		}
	} else {
		next = current + decay
		if next > 0 {
			next = 0
		}
	}

	if next != current {
		m.persistLocked(userID, next, now)
	}
	return next
}

func (m *MoodLedger) loadLocked(userID string) (int, time.Time) {
	raw, err := m.store.Get(userID, moodValueKey)
	if err != nil || raw == "" {
		return 0, time.Time{}
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, time.Time{}
	}

	tsRaw, _ := m.store.Get(userID, moodUpdatedAtKey)
	ts, err := time.Parse(time.RFC3339, tsRaw)
	if err != nil {
		return clampInt(value, MoodMin, MoodMax), time.Time{}
	}
	return clampInt(value, MoodMin, MoodMax), ts
}

func (m *MoodLedger) persistLocked(userID string, value int, at time.Time) {
	m.moods[userID] = value
	m.timestamps[userID] = at
	m.store.Set(userID, moodValueKey, strconv.Itoa(value))
	m.store.Set(userID, moodUpdatedAtKey, at.Format(time.RFC3339))
}

// ─── Prompt-side descriptions ───

// MoodSnapshot is the mood view handed to the prompt assembler.
type MoodSnapshot struct {
	Value       int
	Description string
	Instruction string // forced style lock when mood is low; empty otherwise
}

// Snapshot reads the current mood and renders its prompt-side description.
func (m *MoodLedger) Snapshot(userID string) MoodSnapshot {
	v := m.Current(userID)
	return MoodSnapshot{
		Value:       v,
		Description: describeMood(v),
		Instruction: moodInstruction(v),
	}
}

func describeMood(v int) string {
	switch {
	case v >= 80:
		return "心理状态：超级兴奋，恨不得马上抱住他，满眼星星。"
	case v >= 30:
		return "心理状态：心情不错，比较甜，看什么都顺眼。"
	case v >= -10:
		return "心理状态：内心平静，比较随性，懒洋洋的。"
	case v >= -50:
		return "心理状态：有点烦躁/郁闷，不想多说话，对他有点不耐烦。"
	default:
		return "心理状态：非常生气/崩溃，甚至想冷暴力或者发脾气。"
	}
}

func moodInstruction(v int) string {
	if v < -20 {
		return "【强制】：你现在还在生气，说话要短，不要带语气词，禁止发可爱的表情/颜文字。"
	}
	return ""
}
