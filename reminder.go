package companion

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────
// Reminders — natural-language scheduling
// ──────────────────────────────────────────────

const reminderNamespace = "reminders"

// Reminder statuses.
const (
	ReminderPending = "pending"
	ReminderDone    = "done"
)

// Reminder is one scheduled nudge.
type Reminder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TriggerAt time.Time `json:"trigger_at"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
}

// Keys are time-prefixed so a prefix scan returns reminders in trigger
// order and the due check can stop at the first future one.
func reminderKey(triggerAt time.Time, id string) string {
	return fmt.Sprintf("%013d:%s", triggerAt.Unix(), id)
}

var (
	relMinuteRE  = regexp.MustCompile(`(\d+)\s*分钟后`)
	relHourRE    = regexp.MustCompile(`(\d+)\s*(?:个)?小时后`)
	halfHourRE   = regexp.MustCompile(`半(?:个)?小时后`)
	tomorrowAtRE = regexp.MustCompile(`明天\s*(\d{1,2})\s*[点:：]\s*(\d{1,2})?`)
	todayAtRE    = regexp.MustCompile(`(?:今天|晚上)\s*(\d{1,2})\s*[点:：]\s*(\d{1,2})?`)

	reminderTriggerRE = regexp.MustCompile(`提醒我|remind me`)
)

// ReminderBook stores and fires reminders.
type ReminderBook struct {
	store MemoryStore
	now   func() time.Time
}

// NewReminderBook creates a book backed by store.
func NewReminderBook(store MemoryStore) *ReminderBook {
	return &ReminderBook{store: store, now: time.Now}
}

// SetClock overrides the clock. Used by tests.
func (b *ReminderBook) SetClock(now func() time.Time) { b.now = now }

// Add persists a pending reminder.
func (b *ReminderBook) Add(userID string, triggerAt time.Time, content string) (Reminder, error) {
	r := Reminder{
		ID:        uuid.NewString(),
		UserID:    userID,
		TriggerAt: triggerAt,
		Content:   content,
		Status:    ReminderPending,
	}
	data, err := json.Marshal(r)
	if err != nil {
		return Reminder{}, err
	}
	if err := b.store.Set(reminderNamespace, reminderKey(triggerAt, r.ID), string(data)); err != nil {
		return Reminder{}, fmt.Errorf("persist reminder: %w", err)
	}
	return r, nil
}

// Due returns pending reminders whose trigger time has arrived, oldest first.
func (b *ReminderBook) Due() []Reminder {
	keys, err := b.store.ScanPrefix(reminderNamespace, "")
	if err != nil {
		log.Printf("[ReminderBook] scan failed | err=%v", err)
		return nil
	}

	now := b.now()
	cutoff := fmt.Sprintf("%013d", now.Unix()+1)
	var due []Reminder
	for _, key := range keys {
		if key >= cutoff {
			break
		}
		raw, err := b.store.Get(reminderNamespace, key)
		if err != nil || raw == "" {
			continue
		}
		var r Reminder
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			log.Printf("[ReminderBook] corrupt reminder dropped | key=%s err=%v", key, err)
			b.store.Delete(reminderNamespace, key)
			continue
		}
		if r.Status != ReminderPending {
			b.store.Delete(reminderNamespace, key)
			continue
		}
		due = append(due, r)
	}
	return due
}

// MarkDone removes a fired reminder so the minutely scan never re-reads it.
// Idempotent.
func (b *ReminderBook) MarkDone(r Reminder) {
	if err := b.store.Delete(reminderNamespace, reminderKey(r.TriggerAt, r.ID)); err != nil {
		log.Printf("[ReminderBook] mark done failed | id=%s err=%v", r.ID, err)
	}
}

// TryHandle parses a reminder request out of free text. Returns the canned
// confirmation and true when the message was a reminder command.
func (b *ReminderBook) TryHandle(userID, input string) (string, bool) {
	if !reminderTriggerRE.MatchString(input) {
		return "", false
	}

	now := b.now()
	triggerAt, matched, consumed := parseReminderTime(input, now)
	if !matched {
		return "唔…我没听懂时间，你可以说「提醒我10分钟后喝水」这样哦。", true
	}

	content := strings.TrimSpace(reminderTriggerRE.ReplaceAllString(input, ""))
	content = strings.TrimSpace(strings.Replace(content, consumed, "", 1))
	if content == "" {
		content = "你让我提醒你的事"
	}

	if _, err := b.Add(userID, triggerAt, content); err != nil {
		log.Printf("[ReminderBook] add failed | user=%s err=%v", userID, err)
		return "呜，我刚才没记上，再说一次好不好？", true
	}

	return fmt.Sprintf("好哒！我会在 %s 提醒你：%s", triggerAt.Format("01-02 15:04"), content), true
}

// parseReminderTime resolves the first recognized time expression in text.
// It returns the trigger time, whether anything matched, and the matched
// substring so the caller can strip it from the reminder content.
func parseReminderTime(text string, now time.Time) (time.Time, bool, string) {
	if m := relMinuteRE.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(time.Duration(n) * time.Minute), true, m[0]
	}
	if m := halfHourRE.FindString(text); m != "" {
		return now.Add(30 * time.Minute), true, m
	}
	if m := relHourRE.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(time.Duration(n) * time.Hour), true, m[0]
	}
	if m := tomorrowAtRE.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()).AddDate(0, 0, 1)
		return t, true, m[0]
	}
	if strings.Contains(text, "明天") {
		t := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
		return t, true, "明天"
	}
	if m := todayAtRE.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		// "晚上8点" means 20:00.
		if strings.Contains(m[0], "晚上") && hour < 12 {
			hour += 12
		}
		t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, true, m[0]
	}
	return time.Time{}, false, ""
}
