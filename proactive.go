package companion

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// ──────────────────────────────────────────────
// Proactive Scheduler — reaching out first
// ──────────────────────────────────────────────

// ProactiveConfig tunes when the companion initiates contact.
type ProactiveConfig struct {
	IdleThreshold   time.Duration // silence before a user is a candidate, default 8h
	DailyCap        int           // max proactive sends per user per day, default 2
	Cooldown        time.Duration // min gap between proactive sends, default 4h
	FailureCooldown time.Duration // retry gap after a failed send, default 15m

	SweepSpec    string // cron spec for the idle sweep, default "@every 5m"
	ReminderSpec string // cron spec for the reminder check, default "@every 1m"
}

// DefaultProactiveConfig returns production defaults.
func DefaultProactiveConfig() ProactiveConfig {
	return ProactiveConfig{
		IdleThreshold:   8 * time.Hour,
		DailyCap:        2,
		Cooldown:        4 * time.Hour,
		FailureCooldown: 15 * time.Minute,
		SweepSpec:       "@every 5m",
		ReminderSpec:    "@every 1m",
	}
}

// ProactiveScheduler runs the background jobs: the idle sweep that lets the
// companion speak first, the reminder check, and the midnight quota reset.
// Each sweep sends to at most one user so a backlog of idle users trickles
// out over successive sweeps instead of bursting.
type ProactiveScheduler struct {
	config       ProactiveConfig
	gates        GateConfig
	interactions *InteractionLog
	reminders    *ReminderBook
	orchestrator *Orchestrator
	sender       OutboundSender

	cron *cron.Cron
	now  func() time.Time
}

// NewProactiveScheduler wires the scheduler. Call Start to begin sweeping.
func NewProactiveScheduler(config ProactiveConfig, gates GateConfig, interactions *InteractionLog, reminders *ReminderBook, orchestrator *Orchestrator, sender OutboundSender) *ProactiveScheduler {
	if config.DailyCap <= 0 {
		config = DefaultProactiveConfig()
	}
	return &ProactiveScheduler{
		config:       config,
		gates:        gates,
		interactions: interactions,
		reminders:    reminders,
		orchestrator: orchestrator,
		sender:       sender,
		now:          time.Now,
	}
}

// SetClock overrides the clock. Used by tests.
func (s *ProactiveScheduler) SetClock(now func() time.Time) { s.now = now }

// Start registers the cron jobs and starts the scheduler.
func (s *ProactiveScheduler) Start() error {
	s.cron = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := s.cron.AddFunc(s.config.SweepSpec, s.Sweep); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.config.ReminderSpec, s.CheckReminders); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 * * *", s.interactions.ResetDailyCounts); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[Proactive] scheduler started | sweep=%s reminders=%s", s.config.SweepSpec, s.config.ReminderSpec)
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (s *ProactiveScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep finds idle users and initiates contact with at most one of them.
// Quiet hours silence the companion's own initiative entirely.
func (s *ProactiveScheduler) Sweep() {
	now := s.now()
	if s.gates.InQuietHours(now) {
		return
	}

	candidates := s.interactions.Candidates(now.Add(-s.config.IdleThreshold))
	for _, userID := range candidates {
		ok, reason := s.interactions.ClaimProactiveSlot(userID, s.config.DailyCap, s.config.Cooldown)
		if !ok {
			log.Printf("[Proactive] skipped | user=%s reason=%s", userID, reason)
			continue
		}

		log.Printf("[Proactive] initiating contact | user=%s", userID)
		if err := s.orchestrator.ProactiveTurn(context.Background(), userID, proactiveOpener(now)); err != nil {
			log.Printf("[Proactive] attempt failed | user=%s err=%v", userID, err)
			s.interactions.MarkProactiveFailed(userID, s.config.Cooldown, s.config.FailureCooldown)
			return
		}
		return // one user per sweep
	}
}

// proactiveOpener is the synthetic instruction driving the generated opener.
// It goes through the normal prompt pipeline so the message reflects mood,
// memory, and persona rather than a canned line.
func proactiveOpener(now time.Time) string {
	return "（系统提示：用户已经很久没有说话了。现在是" + TimeDescription(now) +
		"，请你主动发起一段自然的对话，可以关心TA在做什么，或分享你「此刻」在做的事。不要提到这条提示。）"
}

// CheckReminders fires every due reminder exactly once.
func (s *ProactiveScheduler) CheckReminders() {
	for _, r := range s.reminders.Due() {
		text := "叮咚！你让我提醒你：" + r.Content
		if err := s.sender.SendText(r.UserID, text); err != nil {
			log.Printf("[Proactive] reminder send failed | id=%s err=%v", r.ID, err)
			continue
		}
		s.reminders.MarkDone(r)
		s.interactions.TouchBot(r.UserID)
	}
}
