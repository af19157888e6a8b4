package companion

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/atomic"
)

var (
	errUserBusy   = errors.New("user turn already in flight")
	errEmptyReply = errors.New("model produced no display text")
)

// ──────────────────────────────────────────────
// Orchestrator — one turn, end to end
// ──────────────────────────────────────────────

// WeatherFunc resolves the current weather description for a city.
// Implementations may hit an external API; a nil func disables weather.
type WeatherFunc func(city string) (string, bool)

// Orchestrator drives the turn pipeline: gates, command routing, memory
// fusion, prompt assembly, generation, tag application, and delivery.
// Each user has at most one turn in flight; turns for different users run
// concurrently.
type Orchestrator struct {
	persona      Persona
	gates        GateConfig
	fusion       *FusionLayer
	assembler    *PromptAssembler
	generator    Generator
	mood         *MoodLedger
	profiles     *ProfileStore
	history      *ShortTermHistory
	committer    *AsyncMemoryCommitter
	delivery     *DeliveryPipeline
	interactions *InteractionLog
	commands     *CommandRouter
	skills       *SkillSet
	weather      WeatherFunc

	now func() time.Time
	rng *rand.Rand
	rmu sync.Mutex

	mu      sync.Mutex
	flights map[string]*flight

	Handled    atomic.Int64
	Coalesced  atomic.Int64
	Suppressed atomic.Int64
	Deferred   atomic.Int64
}

type flight struct {
	busy         bool
	lastAccepted time.Time
}

// OrchestratorDeps collects the collaborators. Optional fields (committer,
// commands, skills, weather) may be nil.
type OrchestratorDeps struct {
	Persona      Persona
	Gates        GateConfig
	Fusion       *FusionLayer
	Assembler    *PromptAssembler
	Generator    Generator
	Mood         *MoodLedger
	Profiles     *ProfileStore
	History      *ShortTermHistory
	Committer    *AsyncMemoryCommitter
	Delivery     *DeliveryPipeline
	Interactions *InteractionLog
	Commands     *CommandRouter
	Skills       *SkillSet
	Weather      WeatherFunc
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Gates.CoalesceWindow <= 0 {
		deps.Gates = DefaultGateConfig()
	}
	return &Orchestrator{
		persona:      deps.Persona,
		gates:        deps.Gates,
		fusion:       deps.Fusion,
		assembler:    deps.Assembler,
		generator:    deps.Generator,
		mood:         deps.Mood,
		profiles:     deps.Profiles,
		history:      deps.History,
		committer:    deps.Committer,
		delivery:     deps.Delivery,
		interactions: deps.Interactions,
		commands:     deps.Commands,
		skills:       deps.Skills,
		weather:      deps.Weather,
		now:          time.Now,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		flights:      make(map[string]*flight),
	}
}

// SetClock overrides the clock. Used by tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// SetRandSource overrides the randomness source. Used by tests.
func (o *Orchestrator) SetRandSource(src rand.Source) {
	o.rmu.Lock()
	defer o.rmu.Unlock()
	o.rng = rand.New(src)
}

func (o *Orchestrator) draw() float64 {
	o.rmu.Lock()
	defer o.rmu.Unlock()
	return o.rng.Float64()
}

// acquire claims the user's flight slot. Returns false when a turn is
// already in flight or the event lands inside the coalescing window.
func (o *Orchestrator) acquire(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	f := o.flights[userID]
	if f == nil {
		f = &flight{}
		o.flights[userID] = f
	}
	if f.busy {
		o.Coalesced.Inc()
		return false
	}
	if !f.lastAccepted.IsZero() && now.Sub(f.lastAccepted) < o.gates.CoalesceWindow {
		o.Coalesced.Inc()
		return false
	}
	f.busy = true
	f.lastAccepted = now
	return true
}

// claim is acquire without the coalescing window. The synchronous path uses
// it so a caller holding the user's turn gets an explicit busy error rather
// than a silent drop.
func (o *Orchestrator) claim(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	f := o.flights[userID]
	if f == nil {
		f = &flight{}
		o.flights[userID] = f
	}
	if f.busy {
		o.Coalesced.Inc()
		return false
	}
	f.busy = true
	f.lastAccepted = o.now()
	return true
}

func (o *Orchestrator) release(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if f := o.flights[userID]; f != nil {
		f.busy = false
	}
}

// HandleEvent processes one inbound event through the full pipeline and
// delivers the reply as paced bubbles. The flight slot is held through
// delivery so one user's bubbles never interleave across turns.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev InboundEvent) {
	if ev.UserID == "" {
		return
	}
	if !ev.Proactive {
		o.interactions.TouchUser(ev.UserID)
	}

	if !o.acquire(ev.UserID) {
		log.Printf("[Orchestrator] event coalesced | user=%s", ev.UserID)
		return
	}
	defer o.release(ev.UserID)
	o.Handled.Inc()

	// Commands answer deterministically and skip every gate except rate
	// limiting, which acquire already applied.
	if o.commands != nil && !ev.Proactive {
		if reply, ok := o.commands.Route(ev.UserID, ev.Text); ok {
			o.send(ctx, ev.UserID, reply)
			return
		}
	}

	if !ev.Proactive {
		switch o.gates.QuietHoursGate(o.now(), o.draw()) {
		case GateSuppress:
			o.Suppressed.Inc()
			log.Printf("[Orchestrator] quiet hours, suppressed | user=%s", ev.UserID)
			return
		case GateSuppressWithReply:
			o.Suppressed.Inc()
			o.send(ctx, ev.UserID, o.persona.SleepyReply)
			return
		}

		isCmd := o.commands != nil && o.commands.IsCommand(ev.Text)
		if o.gates.BusyGate(isCmd, o.draw()) == GateDeferWithAck {
			o.Deferred.Inc()
			delay := o.gates.BusyDeferDelay(o.draw())
			log.Printf("[Orchestrator] busy simulation, deferring %s | user=%s", delay, ev.UserID)
			o.send(ctx, ev.UserID, o.persona.BusyAckReply)
			o.scheduleDeferred(ev, delay)
			return
		}
	}

	o.runTurn(ctx, ev)
}

// scheduleDeferred runs the real reply after the busy window. The timer
// holds no flight slot while waiting; the continuation reclaims one and
// goes straight to generation, so it cannot be deferred a second time.
func (o *Orchestrator) scheduleDeferred(ev InboundEvent, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if !o.acquire(ev.UserID) {
			log.Printf("[Orchestrator] deferred turn coalesced | user=%s", ev.UserID)
			return
		}
		defer o.release(ev.UserID)
		o.runTurn(context.Background(), ev)
	})
}

// runTurn is the generation path: fuse, assemble, generate, parse, persist,
// deliver. A generation failure produces exactly one apology and mutates no
// state.
func (o *Orchestrator) runTurn(ctx context.Context, ev InboundEvent) {
	userID := ev.UserID
	fused := o.fusion.Fuse(ctx, userID, ev.Text)
	snapshot := o.mood.Snapshot(userID)

	world := o.worldFor(fused)

	var extraSystem []string
	if o.skills != nil {
		extraSystem = o.skills.Match(userID, ev.Text)
	}

	prompt := o.assembler.Assemble(o.persona, world, fused, snapshot, ev.Text, extraSystem)

	raw, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		log.Printf("[Orchestrator] generation failed | user=%s transient=%v err=%v", userID, IsTransient(err), err)
		o.send(ctx, userID, o.persona.ApologyReply)
		return
	}

	display, directives := ParseTags(raw)
	if display == "" {
		display = o.persona.EmptyReply
	}

	// Persist first so the conversational state reflects this turn even if
	// delivery is cut short.
	now := o.now()
	if !ev.Proactive {
		if err := o.history.Append(userID, RoleUser, ev.Text, now); err != nil {
			log.Printf("[Orchestrator] history persist failed | user=%s err=%v", userID, err)
		}
	}
	if err := o.history.Append(userID, RoleAssistant, display, now); err != nil {
		log.Printf("[Orchestrator] history persist failed | user=%s err=%v", userID, err)
	}

	o.applyDirectives(userID, directives)
	o.send(ctx, userID, display)
}

// ProactiveTurn runs a companion-initiated turn and reports whether the
// opener actually reached the user. The flight slot is claimed like any
// other event; a user already mid-turn fails the attempt.
func (o *Orchestrator) ProactiveTurn(ctx context.Context, userID, opener string) error {
	if !o.acquire(userID) {
		return errUserBusy
	}
	defer o.release(userID)
	o.Handled.Inc()

	fused := o.fusion.Fuse(ctx, userID, "")
	snapshot := o.mood.Snapshot(userID)

	world := o.worldFor(fused)

	prompt := o.assembler.Assemble(o.persona, world, fused, snapshot, opener, nil)
	raw, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		return err
	}

	display, directives := ParseTags(raw)
	if display == "" {
		return errEmptyReply
	}

	if err := o.history.Append(userID, RoleAssistant, display, o.now()); err != nil {
		log.Printf("[Orchestrator] history persist failed | user=%s err=%v", userID, err)
	}
	o.applyDirectives(userID, directives)

	if err := o.delivery.Deliver(ctx, userID, display); err != nil {
		return err
	}
	o.interactions.TouchBot(userID)
	return nil
}

// worldFor builds the environment snapshot, consulting the weather adapter
// when one is wired and the user has a known city.
func (o *Orchestrator) worldFor(fused *FusedContext) WorldState {
	var weather string
	if o.weather != nil {
		if city := CityFromFacts(fused.Facts); city != "" {
			if w, ok := o.weather(city); ok {
				weather = w
			}
		}
	}
	return BuildWorldState(o.now(), fused.Facts, weather)
}

func (o *Orchestrator) applyDirectives(userID string, directives []Directive) {
	for _, d := range directives {
		switch d.Kind {
		case DirectiveMoodDelta:
			next := o.mood.ApplyDelta(userID, d.MoodDelta)
			log.Printf("[Orchestrator] mood %+d → %d | user=%s", d.MoodDelta, next, userID)
		case DirectiveProfileUpdate:
			if err := o.profiles.Upsert(userID, d.Key, d.Value); err != nil {
				log.Printf("[Orchestrator] profile update failed | user=%s key=%s err=%v", userID, d.Key, err)
			}
		case DirectiveMemoryCommit:
			if o.committer != nil {
				o.committer.Enqueue(userID, d.Text, MemorySourceAuto)
			}
		}
	}
}

func (o *Orchestrator) send(ctx context.Context, userID, text string) {
	if text == "" {
		return
	}
	if err := o.delivery.Deliver(ctx, userID, text); err != nil {
		log.Printf("[Orchestrator] delivery ended early | user=%s err=%v", userID, err)
	}
	o.interactions.TouchBot(userID)
}

// Respond is the synchronous request/response path used by the HTTP API and
// the voice pipeline. It shares the turn pipeline but returns the whole
// display text instead of pacing bubbles, and skips the behavioral gates.
// The per-user flight slot still applies: a user mid-turn gets errUserBusy
// so generations never run concurrently for one user on any path.
func (o *Orchestrator) Respond(ctx context.Context, userID, text string) (string, error) {
	o.interactions.TouchUser(userID)

	if !o.claim(userID) {
		return "", errUserBusy
	}
	defer o.release(userID)
	o.Handled.Inc()

	if o.commands != nil {
		if reply, ok := o.commands.Route(userID, text); ok {
			return reply, nil
		}
	}

	fused := o.fusion.Fuse(ctx, userID, text)
	snapshot := o.mood.Snapshot(userID)

	world := o.worldFor(fused)

	var extraSystem []string
	if o.skills != nil {
		extraSystem = o.skills.Match(userID, text)
	}

	prompt := o.assembler.Assemble(o.persona, world, fused, snapshot, text, extraSystem)
	raw, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	display, directives := ParseTags(raw)
	if display == "" {
		display = o.persona.EmptyReply
	}

	now := o.now()
	if err := o.history.Append(userID, RoleUser, text, now); err != nil {
		log.Printf("[Orchestrator] history persist failed | user=%s err=%v", userID, err)
	}
	if err := o.history.Append(userID, RoleAssistant, display, now); err != nil {
		log.Printf("[Orchestrator] history persist failed | user=%s err=%v", userID, err)
	}
	o.applyDirectives(userID, directives)

	return display, nil
}
