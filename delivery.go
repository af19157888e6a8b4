package companion

import (
	"context"
	"log"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ──────────────────────────────────────────────
// Bubble splitting — recursive separator priority
// ──────────────────────────────────────────────

// Splitter defaults, tuned for CJK-dense chat.
const (
	DefaultMaxBubbleRunes = 90 // target length of one bubble
	DefaultMinMergeRunes  = 15 // fragments shorter than this get merged
	DefaultMaxBubbles     = 12
)

// Separator priority, strongest first: paragraph → line → sentence-final
// punctuation → weak punctuation. Anything still too long gets hard-cut.
var bubbleSeparators = []struct {
	chars    string
	isString bool
}{
	{"\n\n", true},
	{"\n", true},
	{"。！？!?；;", false},
	{"，,、：:", false},
}

var codeFenceRE = regexp.MustCompile("(?s)```.*?```")

// SplitBubbles splits display text into message bubbles the way a person
// would send them: strong boundaries first, weaker punctuation only when a
// segment is still over length, and fenced code blocks kept intact.
func SplitBubbles(text string, maxRunes, minMerge, maxBubbles int) []string {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxBubbleRunes
	}
	if minMerge <= 0 {
		minMerge = DefaultMinMergeRunes
	}
	if maxBubbles <= 0 {
		maxBubbles = DefaultMaxBubbles
	}

	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}

	// Protect code blocks from being shredded.
	var candidates []string
	last := 0
	for _, loc := range codeFenceRE.FindAllStringIndex(s, -1) {
		candidates = append(candidates, recursiveSplit(s[last:loc[0]], 0, maxRunes)...)
		if block := strings.TrimSpace(s[loc[0]:loc[1]]); block != "" {
			candidates = append(candidates, block)
		}
		last = loc[1]
	}
	candidates = append(candidates, recursiveSplit(s[last:], 0, maxRunes)...)

	merged := mergeShortFragments(candidates, minMerge, maxRunes)
	bubbles := packBubbles(merged, maxRunes)

	if len(bubbles) > maxBubbles {
		bubbles = bubbles[:maxBubbles]
	}
	return bubbles
}

func recursiveSplit(t string, sepIdx, maxRunes int) []string {
	t = strings.TrimSpace(t)
	if t == "" {
		return nil
	}
	if runeLen(t) <= maxRunes {
		return []string{t}
	}

	if sepIdx < len(bubbleSeparators) {
		sep := bubbleSeparators[sepIdx]
		var parts []string
		if sep.isString {
			for _, p := range strings.Split(t, sep.chars) {
				if p = strings.TrimSpace(p); p != "" {
					parts = append(parts, p)
				}
			}
		} else {
			parts = splitByCharset(t, sep.chars)
		}
		if len(parts) > 1 {
			var result []string
			for _, p := range parts {
				result = append(result, recursiveSplit(p, sepIdx, maxRunes)...)
			}
			return result
		}
		return recursiveSplit(t, sepIdx+1, maxRunes)
	}

	return hardChunk(t, maxRunes)
}

// splitByCharset splits on any rune from the set, keeping the punctuation at
// the end of the preceding segment.
func splitByCharset(t, chars string) []string {
	var out []string
	var buf strings.Builder
	for _, ch := range t {
		buf.WriteRune(ch)
		if strings.ContainsRune(chars, ch) {
			if piece := strings.TrimSpace(buf.String()); piece != "" {
				out = append(out, piece)
			}
			buf.Reset()
		}
	}
	if piece := strings.TrimSpace(buf.String()); piece != "" {
		out = append(out, piece)
	}
	return out
}

func hardChunk(t string, n int) []string {
	runes := []rune(strings.TrimSpace(t))
	var out []string
	for i := 0; i < len(runes); i += n {
		end := i + n
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[i:end])); piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

func mergeShortFragments(pieces []string, minMerge, maxRunes int) []string {
	var merged []string
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if len(merged) == 0 {
			merged = append(merged, piece)
			continue
		}
		prev := merged[len(merged)-1]
		tooShort := runeLen(piece) < minMerge || runeLen(prev) < minMerge
		if tooShort && runeLen(prev)+runeLen(piece)+1 <= maxRunes {
			merged[len(merged)-1] = prev + "\n" + piece
		} else {
			merged = append(merged, piece)
		}
	}
	return merged
}

func packBubbles(pieces []string, maxRunes int) []string {
	var bubbles []string
	current := ""
	for _, piece := range pieces {
		if current == "" {
			current = piece
			continue
		}
		if runeLen(current)+1+runeLen(piece) <= maxRunes {
			current = current + "\n" + piece
		} else {
			bubbles = append(bubbles, current)
			current = piece
		}
	}
	if strings.TrimSpace(current) != "" {
		bubbles = append(bubbles, current)
	}
	return bubbles
}

func runeLen(s string) int { return len([]rune(s)) }

// ──────────────────────────────────────────────
// Send rhythm — typing-speed delay model
// ──────────────────────────────────────────────

// Delay bounds for one bubble.
const (
	DefaultMinBubbleDelay = 350 * time.Millisecond
	DefaultMaxBubbleDelay = 15 * time.Second
)

// typingUnits estimates "keystrokes" for a text: CJK 1.0, ASCII letters and
// digits 0.6, spaces 0.05, other ASCII 0.2, everything else 0.8.
func typingUnits(text string) float64 {
	units := 0.0
	for _, ch := range text {
		switch {
		case ch >= 0x4E00 && ch <= 0x9FFF:
			units += 1.0
		case ch < 128:
			switch {
			case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
				units += 0.6
			case ch == ' ' || ch == '\n' || ch == '\t':
				units += 0.05
			default:
				units += 0.2
			}
		default:
			units += 0.8
		}
	}
	if units < 1.0 {
		units = 1.0
	}
	return units
}

// baseBubbleDelay is the deterministic part of the rhythm: monotonically
// non-decreasing in text length for a fixed typing speed, clamped to
// [min, max]. Jitter and long-sequence pauses are layered on separately.
func baseBubbleDelay(text string, cps float64, min, max time.Duration) time.Duration {
	if cps <= 0 {
		cps = 2.5
	}
	d := time.Duration(typingUnits(text) / cps * float64(time.Second))
	if d < min {
		d = min
	}
	if d > max {
		d = max
	}
	return d
}

// ──────────────────────────────────────────────
// Delivery Pipeline
// ──────────────────────────────────────────────

// DeliveryConfig tunes the pipeline.
type DeliveryConfig struct {
	MaxBubbleRunes int
	MinMergeRunes  int
	MaxBubbles     int

	MinDelay time.Duration // default 350ms
	MaxDelay time.Duration // default 15s

	JitterMin time.Duration // per-bubble extra, default 250ms
	JitterMax time.Duration // default 900ms

	// Long sequences pause a beat every third bubble.
	LongSequenceThreshold int           // default 4 bubbles
	LongSequencePauseMin  time.Duration // default 1.5s
	LongSequencePauseMax  time.Duration // default 2.5s

	TypingWaitCeiling  time.Duration // give up waiting after this, default 60s
	TypingPollInterval time.Duration // default 250ms
}

// DefaultDeliveryConfig returns production defaults.
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		MaxBubbleRunes:        DefaultMaxBubbleRunes,
		MinMergeRunes:         DefaultMinMergeRunes,
		MaxBubbles:            DefaultMaxBubbles,
		MinDelay:              DefaultMinBubbleDelay,
		MaxDelay:              DefaultMaxBubbleDelay,
		JitterMin:             250 * time.Millisecond,
		JitterMax:             900 * time.Millisecond,
		LongSequenceThreshold: 4,
		LongSequencePauseMin:  1500 * time.Millisecond,
		LongSequencePauseMax:  2500 * time.Millisecond,
		TypingWaitCeiling:     60 * time.Second,
		TypingPollInterval:    250 * time.Millisecond,
	}
}

// DeliveryPlan is the ephemeral per-turn send sequence. It exists only for
// the duration of one reply's transmission.
type DeliveryPlan struct {
	UserID  string
	Bubbles []string
	Delays  []time.Duration
}

// DeliveryPipeline turns a reply into an ordered, paced stream of bubbles.
// Inter-bubble waits and the typing poll are suspension points: they block
// only this turn's goroutine, never other users.
type DeliveryPipeline struct {
	sender OutboundSender
	typing TypingMonitor
	config DeliveryConfig

	rand  *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	userCPS map[string]float64

	Sent    atomic.Int64
	Dropped atomic.Int64
}

// NewDeliveryPipeline creates a pipeline. typing may be nil when the
// transport cannot observe the typing signal.
func NewDeliveryPipeline(sender OutboundSender, typing TypingMonitor, config DeliveryConfig) *DeliveryPipeline {
	if config.MaxDelay <= 0 {
		config = DefaultDeliveryConfig()
	}
	return &DeliveryPipeline{
		sender:  sender,
		typing:  typing,
		config:  config,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   sleepCtx,
		userCPS: make(map[string]float64),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// SetSleep overrides the suspension primitive. Used by tests.
func (d *DeliveryPipeline) SetSleep(fn func(ctx context.Context, dur time.Duration) error) {
	d.sleep = fn
}

// cpsFor keeps one typing speed per user so their rhythm stays consistent.
func (d *DeliveryPipeline) cpsFor(userID string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cps, ok := d.userCPS[userID]; ok {
		return cps
	}
	cps := 2.0 + d.rand.Float64()
	d.userCPS[userID] = cps
	return cps
}

// Plan splits the text and computes every delay up front.
func (d *DeliveryPipeline) Plan(userID, text string) *DeliveryPlan {
	bubbles := SplitBubbles(text, d.config.MaxBubbleRunes, d.config.MinMergeRunes, d.config.MaxBubbles)
	if len(bubbles) == 0 {
		return nil
	}

	cps := d.cpsFor(userID)
	delays := make([]time.Duration, len(bubbles))
	for i, bubble := range bubbles {
		delay := baseBubbleDelay(bubble, cps, d.config.MinDelay, d.config.MaxDelay)
		delay += d.jitter(d.config.JitterMin, d.config.JitterMax)
		if len(bubbles) > d.config.LongSequenceThreshold && i > 0 && i%3 == 2 {
			delay += d.jitter(d.config.LongSequencePauseMin, d.config.LongSequencePauseMax)
		}
		if delay > d.config.MaxDelay {
			delay = d.config.MaxDelay
		}
		delays[i] = delay
	}
	return &DeliveryPlan{UserID: userID, Bubbles: bubbles, Delays: delays}
}

func (d *DeliveryPipeline) jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	d.mu.Lock()
	f := d.rand.Float64()
	d.mu.Unlock()
	return min + time.Duration(f*float64(max-min))
}

// Deliver sends the reply as paced bubbles, strictly in order. Before each
// send it waits while the user is typing (up to the ceiling). If the context
// is cancelled mid-plan the unsent bubbles are dropped, not requeued —
// at-most-once per bubble.
func (d *DeliveryPipeline) Deliver(ctx context.Context, userID, text string) error {
	plan := d.Plan(userID, text)
	if plan == nil {
		return nil
	}
	return d.Execute(ctx, plan)
}

// Execute runs a prepared plan.
func (d *DeliveryPipeline) Execute(ctx context.Context, plan *DeliveryPlan) error {
	for i, bubble := range plan.Bubbles {
		if err := waitWhileTyping(ctx, d.typing, plan.UserID, d.config.TypingWaitCeiling, d.config.TypingPollInterval); err != nil {
			d.dropRest(plan, i)
			return err
		}
		if err := d.sleep(ctx, plan.Delays[i]); err != nil {
			d.dropRest(plan, i)
			return err
		}
		if err := d.sender.SendText(plan.UserID, bubble); err != nil {
			log.Printf("[Delivery] send failed | user=%s bubble=%d err=%v", plan.UserID, i, err)
			d.dropRest(plan, i)
			return err
		}
		d.Sent.Inc()
	}
	return nil
}

func (d *DeliveryPipeline) dropRest(plan *DeliveryPlan, from int) {
	remaining := int64(len(plan.Bubbles) - from)
	if remaining > 0 {
		d.Dropped.Add(remaining)
		log.Printf("[Delivery] plan aborted | user=%s dropped=%d", plan.UserID, remaining)
	}
}
