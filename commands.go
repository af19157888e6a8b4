package companion

import (
	"fmt"
	"strings"
	"time"
)

// ──────────────────────────────────────────────
// Command Router — deterministic replies that skip generation
// ──────────────────────────────────────────────

var timeQuestionTriggers = []string{"几点", "现在时间", "what time"}

// CommandRouter short-circuits recognized utility messages before the model
// ever sees them. Commands are cheap, deterministic, and exempt from the
// busy simulation.
type CommandRouter struct {
	reminders *ReminderBook
	memos     *MemoStore
	now       func() time.Time
}

// NewCommandRouter wires the router to its backing features.
func NewCommandRouter(reminders *ReminderBook, memos *MemoStore) *CommandRouter {
	return &CommandRouter{reminders: reminders, memos: memos, now: time.Now}
}

// SetClock overrides the clock. Used by tests.
func (r *CommandRouter) SetClock(now func() time.Time) { r.now = now }

// IsCommand reports whether input would be short-circuited, without running
// any side effects. The busy gate uses this to exempt commands.
func (r *CommandRouter) IsCommand(input string) bool {
	if reminderTriggerRE.MatchString(input) {
		return true
	}
	if isMemoCommand(input) {
		return true
	}
	for _, trigger := range timeQuestionTriggers {
		if strings.Contains(strings.ToLower(input), trigger) {
			return true
		}
	}
	return false
}

// Route tries every command handler in priority order. Returns the reply
// and true when input was a command.
func (r *CommandRouter) Route(userID, input string) (string, bool) {
	if reply, ok := r.reminders.TryHandle(userID, input); ok {
		return reply, true
	}
	if reply, ok := r.memos.TryHandleMemo(userID, input); ok {
		return reply, true
	}
	lower := strings.ToLower(input)
	for _, trigger := range timeQuestionTriggers {
		if strings.Contains(lower, trigger) {
			return fmt.Sprintf("现在是%s哦。", TimeDescription(r.now())), true
		}
	}
	return "", false
}
