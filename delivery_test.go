package companion

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// ══════════════════════════════════════════════
// Bubble splitter
// ══════════════════════════════════════════════

func TestSplitShortTextSingleBubble(t *testing.T) {
	got := SplitBubbles("早安呀！", 0, 0, 0)
	if len(got) != 1 || got[0] != "早安呀！" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitEmptyText(t *testing.T) {
	if got := SplitBubbles("   \n ", 0, 0, 0); got != nil {
		t.Fatalf("got %v; want nil", got)
	}
}

func TestSplitPrefersParagraphs(t *testing.T) {
	a := strings.Repeat("第一段的内容。", 10)
	b := strings.Repeat("第二段的内容。", 10)
	got := SplitBubbles(a+"\n\n"+b, 0, 0, 0)

	if len(got) < 2 {
		t.Fatalf("got %d bubbles; want at least 2", len(got))
	}
	for _, bubble := range got {
		if strings.Contains(bubble, "第一段") && strings.Contains(bubble, "第二段") {
			t.Fatalf("paragraphs merged into one bubble: %q", bubble)
		}
	}
}

func TestSplitRespectsMaxAndCap(t *testing.T) {
	long := strings.Repeat("这是一句很长的话，没有任何句号分隔", 100)
	got := SplitBubbles(long, 90, 15, 12)

	if len(got) != 12 {
		t.Fatalf("got %d bubbles; want cap 12", len(got))
	}
	for i, bubble := range got {
		if n := runeLen(bubble); n > 90 {
			t.Fatalf("bubble %d has %d runes; want <= 90", i, n)
		}
	}
}

func TestSplitMergesShortFragments(t *testing.T) {
	got := SplitBubbles(strings.Repeat("好。嗯。哦。是。对。走。行。来。去。停。", 8), 90, 15, 12)
	for i, bubble := range got[:len(got)-1] {
		if runeLen(bubble) < 15 {
			t.Fatalf("bubble %d = %q shorter than min merge", i, bubble)
		}
	}
}

func TestSplitKeepsCodeFenceIntact(t *testing.T) {
	code := "```go\nfunc main() {\n\tprintln(\"你好。这里有句号。但是不应该被切。\")\n}\n```"
	text := "你看这段代码：\n\n" + code + "\n\n怎么样？"
	got := SplitBubbles(text, 90, 15, 12)

	found := false
	for _, bubble := range got {
		if strings.Contains(bubble, "```go") {
			if !strings.HasSuffix(strings.TrimSpace(bubble), "```") {
				t.Fatalf("code fence split across bubbles: %q", bubble)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("code block lost: %v", got)
	}
}

func TestSplitSentenceBoundaries(t *testing.T) {
	text := strings.Repeat("今天天气真不错！", 8) + strings.Repeat("我们出去玩吧？", 8)
	for _, bubble := range SplitBubbles(text, 90, 15, 12) {
		if runeLen(bubble) > 90 {
			t.Fatalf("bubble over budget: %q", bubble)
		}
	}
}

// ══════════════════════════════════════════════
// Rhythm model
// ══════════════════════════════════════════════

func TestBaseDelayMonotonicInLength(t *testing.T) {
	cps := 2.5
	prev := time.Duration(0)
	text := ""
	for i := 0; i < 60; i++ {
		text += "字"
		d := baseBubbleDelay(text, cps, DefaultMinBubbleDelay, DefaultMaxBubbleDelay)
		if d < prev {
			t.Fatalf("delay decreased at %d runes: %s < %s", i+1, d, prev)
		}
		prev = d
	}
}

func TestBaseDelayClamped(t *testing.T) {
	if d := baseBubbleDelay("嗯", 2.5, DefaultMinBubbleDelay, DefaultMaxBubbleDelay); d != DefaultMinBubbleDelay {
		t.Fatalf("tiny text delay = %s; want min %s", d, DefaultMinBubbleDelay)
	}
	huge := strings.Repeat("很长很长的内容", 200)
	if d := baseBubbleDelay(huge, 2.5, DefaultMinBubbleDelay, DefaultMaxBubbleDelay); d != DefaultMaxBubbleDelay {
		t.Fatalf("huge text delay = %s; want max %s", d, DefaultMaxBubbleDelay)
	}
}

func TestTypingUnitsWeighting(t *testing.T) {
	if cjk, ascii := typingUnits("你好你好"), typingUnits("abcd"); cjk <= ascii {
		t.Fatalf("CJK %v should cost more than ascii %v", cjk, ascii)
	}
}

// ══════════════════════════════════════════════
// Delivery pipeline
// ══════════════════════════════════════════════

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]string
	fail bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[string][]string)}
}

func (s *recordingSender) SendText(userID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return context.DeadlineExceeded
	}
	s.sent[userID] = append(s.sent[userID], text)
	return nil
}

func (s *recordingSender) all(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent[userID]))
	copy(out, s.sent[userID])
	return out
}

func instantPipeline(sender OutboundSender, typing TypingMonitor) *DeliveryPipeline {
	cfg := DefaultDeliveryConfig()
	p := NewDeliveryPipeline(sender, typing, cfg)
	p.SetSleep(func(ctx context.Context, d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	})
	return p
}

func TestDeliverInOrder(t *testing.T) {
	sender := newRecordingSender()
	p := instantPipeline(sender, nil)

	text := strings.Repeat("第一句话的内容。", 12) + "\n\n" + strings.Repeat("第二句话的内容。", 12)
	if err := p.Deliver(context.Background(), "u1", text); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	got := sender.all("u1")
	if len(got) < 2 {
		t.Fatalf("got %d bubbles", len(got))
	}
	if !strings.Contains(got[0], "第一句") {
		t.Fatalf("first bubble out of order: %q", got[0])
	}
	if !strings.Contains(got[len(got)-1], "第二句") {
		t.Fatalf("last bubble out of order: %q", got[len(got)-1])
	}
	if p.Sent.Load() != int64(len(got)) {
		t.Fatalf("Sent = %d; want %d", p.Sent.Load(), len(got))
	}
}

func TestDeliverCancelDropsRemainder(t *testing.T) {
	sender := newRecordingSender()
	p := NewDeliveryPipeline(sender, nil, DefaultDeliveryConfig())

	sends := 0
	p.SetSleep(func(ctx context.Context, d time.Duration) error {
		sends++
		if sends > 1 {
			return context.Canceled
		}
		return nil
	})

	text := strings.Repeat("第一段。", 20) + "\n\n" + strings.Repeat("第二段。", 20) + "\n\n" + strings.Repeat("第三段。", 20)
	err := p.Deliver(context.Background(), "u1", text)
	if err == nil {
		t.Fatal("want cancellation error")
	}
	if got := sender.all("u1"); len(got) != 1 {
		t.Fatalf("sent %d bubbles after cancel; want 1", len(got))
	}
	if p.Dropped.Load() == 0 {
		t.Fatal("dropped counter not incremented")
	}
}

func TestDeliverStopsOnSendFailure(t *testing.T) {
	sender := newRecordingSender()
	sender.fail = true
	p := instantPipeline(sender, nil)

	if err := p.Deliver(context.Background(), "u1", "你好呀"); err == nil {
		t.Fatal("want send error")
	}
	if p.Dropped.Load() != 1 {
		t.Fatalf("Dropped = %d; want 1", p.Dropped.Load())
	}
}

func TestDeliverWaitsForTypingToStop(t *testing.T) {
	sender := newRecordingSender()
	typing := NewTypingState()
	cfg := DefaultDeliveryConfig()
	cfg.TypingWaitCeiling = 500 * time.Millisecond
	cfg.TypingPollInterval = 10 * time.Millisecond
	p := NewDeliveryPipeline(sender, typing, cfg)
	p.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })

	typing.SetTyping("u1", true)
	go func() {
		time.Sleep(50 * time.Millisecond)
		typing.SetTyping("u1", false)
	}()

	start := time.Now()
	if err := p.Deliver(context.Background(), "u1", "在呢"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("did not wait for typing: %s", elapsed)
	}
	if len(sender.all("u1")) != 1 {
		t.Fatal("bubble not sent after typing stopped")
	}
}

func TestTypingWaitCeiling(t *testing.T) {
	typing := NewTypingState()
	typing.SetTyping("u1", true)

	start := time.Now()
	err := waitWhileTyping(context.Background(), typing, "u1", 60*time.Millisecond, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("waitWhileTyping: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("ceiling not honored: %s", elapsed)
	}
}

func TestUserCPSStable(t *testing.T) {
	p := instantPipeline(newRecordingSender(), nil)
	first := p.cpsFor("u1")
	for i := 0; i < 5; i++ {
		if got := p.cpsFor("u1"); got != first {
			t.Fatalf("cps changed between turns: %v != %v", got, first)
		}
	}
	if first < 2.0 || first >= 3.0 {
		t.Fatalf("cps = %v outside [2,3)", first)
	}
}

func TestPlanDelaysWithinBounds(t *testing.T) {
	p := NewDeliveryPipeline(newRecordingSender(), nil, DefaultDeliveryConfig())
	text := strings.Repeat("每一句都要有足够的长度。", 30)
	plan := p.Plan("u1", text)
	if plan == nil {
		t.Fatal("nil plan")
	}
	for i, d := range plan.Delays {
		if d < DefaultMinBubbleDelay || d > DefaultMaxBubbleDelay {
			t.Fatalf("delay[%d] = %s outside bounds", i, d)
		}
	}
}
