package companion

import (
	"strings"
	"testing"
	"time"
)

// ══════════════════════════════════════════════
// Reminders
// ══════════════════════════════════════════════

func newTestReminders(t *testing.T, start time.Time) (*ReminderBook, *time.Time) {
	t.Helper()
	book := NewReminderBook(NewInMemoryMemoryStore())
	now := start
	book.SetClock(func() time.Time { return now })
	return book, &now
}

func TestReminderParseRelativeMinutes(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	book, _ := newTestReminders(t, base)

	reply, handled := book.TryHandle("u1", "提醒我10分钟后喝水")
	if !handled {
		t.Fatal("not handled")
	}
	if !strings.Contains(reply, "12:10") || !strings.Contains(reply, "喝水") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestReminderParseVariants(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		input string
		want  time.Time
	}{
		{"提醒我半小时后关火", base.Add(30 * time.Minute)},
		{"提醒我2小时后开会", base.Add(2 * time.Hour)},
		{"提醒我明天9点吃药", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		{"提醒我明天交报告", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		{"提醒我晚上8点追剧", time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)},
		{"提醒我今天18:30下楼", time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, matched, _ := parseReminderTime(tc.input, base)
		if !matched {
			t.Errorf("%q: no time parsed", tc.input)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("%q: got %s; want %s", tc.input, got, tc.want)
		}
	}
}

func TestReminderUnparseableTime(t *testing.T) {
	book, _ := newTestReminders(t, time.Now())
	reply, handled := book.TryHandle("u1", "提醒我下辈子记得")
	if !handled {
		t.Fatal("reminder trigger word must handle the message")
	}
	if !strings.Contains(reply, "没听懂") {
		t.Fatalf("reply = %q", reply)
	}
	if due := book.Due(); len(due) != 0 {
		t.Fatalf("nothing should be scheduled, got %+v", due)
	}
}

func TestReminderDueAndMarkDone(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	book, now := newTestReminders(t, base)

	book.TryHandle("u1", "提醒我10分钟后喝水")
	book.TryHandle("u1", "提醒我2小时后开会")

	if due := book.Due(); len(due) != 0 {
		t.Fatalf("nothing due yet, got %+v", due)
	}

	*now = base.Add(11 * time.Minute)
	due := book.Due()
	if len(due) != 1 || !strings.Contains(due[0].Content, "喝水") {
		t.Fatalf("due = %+v", due)
	}

	// Firing is one-shot.
	book.MarkDone(due[0])
	if due := book.Due(); len(due) != 0 {
		t.Fatalf("done reminder still due: %+v", due)
	}

	*now = base.Add(3 * time.Hour)
	due = book.Due()
	if len(due) != 1 || !strings.Contains(due[0].Content, "开会") {
		t.Fatalf("due = %+v", due)
	}
}

func TestReminderMarkDoneRemovesRecord(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	book, now := newTestReminders(t, base)

	book.TryHandle("u1", "提醒我10分钟后喝水")
	*now = base.Add(11 * time.Minute)
	due := book.Due()
	if len(due) != 1 {
		t.Fatalf("due = %+v", due)
	}

	// Fired reminders leave no trace for later scans to re-read.
	book.MarkDone(due[0])
	keys, _ := book.store.ScanPrefix(reminderNamespace, "")
	if len(keys) != 0 {
		t.Fatalf("fired reminder still stored: %v", keys)
	}
}

func TestReminderDueOrderedByTriggerTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	book, now := newTestReminders(t, base)

	book.Add("u1", base.Add(20*time.Minute), "later")
	book.Add("u1", base.Add(5*time.Minute), "sooner")

	*now = base.Add(time.Hour)
	due := book.Due()
	if len(due) != 2 || due[0].Content != "sooner" || due[1].Content != "later" {
		t.Fatalf("due = %+v", due)
	}
}

func TestReminderNonCommand(t *testing.T) {
	book, _ := newTestReminders(t, time.Now())
	if _, handled := book.TryHandle("u1", "今天天气不错"); handled {
		t.Fatal("chit-chat treated as reminder")
	}
}
