// Package scheduler is the sliding-window pool that drives one execution
// run: pick items, run attempts in isolated workspaces, integrate
// successes back into the target branch, and emit events for every
// transition (§4.H Scheduler). It is the only component that calls into
// every other leaf package (A-G).
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/foreman-run/foreman/internal/config"
	"github.com/foreman-run/foreman/internal/domain"
	"github.com/foreman-run/foreman/internal/engine"
	"github.com/foreman-run/foreman/internal/events"
	"github.com/foreman-run/foreman/internal/ferr"
	"github.com/foreman-run/foreman/internal/integrate"
	"github.com/foreman-run/foreman/internal/lessons"
	"github.com/foreman-run/foreman/internal/tracker"
	"github.com/foreman-run/foreman/internal/workspace"
)

// rateLimitBackoffFloor bounds how long a rate-limited attempt sleeps
// before retrying when config leaves RateLimitBackoff unset.
const rateLimitBackoffFloor = 30 * time.Second

// ItemClaim is the subset of coordinator.ItemClaim the scheduler needs,
// so tests can substitute an in-memory claim table.
type ItemClaim interface {
	Claim(issue string) (bool, error)
	Release(issue string) error
}

// ChainFactory builds a fresh fallback chain for one attempt. A fresh
// chain per attempt means a killed (permanently retired) engine from a
// prior attempt never leaks into a retry.
type ChainFactory func(observer engine.SwitchObserver) *engine.Chain

// Deps wires every collaborator the scheduler dispatches to.
type Deps struct {
	Tracker    tracker.Tracker
	Workspaces *workspace.Manager
	RepoRoot   string
	Integrator *integrate.Manager
	Lessons    *lessons.Store
	Claims     ItemClaim
	Chains     ChainFactory
	Bus        *events.Bus
	Config     *config.Config
}

// Scheduler owns the run's window of slots and the queue feeding them.
type Scheduler struct {
	deps Deps
	cfg  *config.Config

	queue *Queue

	mu             sync.Mutex
	slots          []*Slot
	nextIndex      int
	running        bool
	wg             sync.WaitGroup
	fillSignal     chan struct{}
	supervisorDone chan struct{}

	completed int
	failed    int
	blocked   int
	total     int
	startedAt time.Time
}

// New creates a Scheduler over deps. Call Run to start draining the queue.
func New(deps Deps, items []PendingItem) *Scheduler {
	q := NewQueue()
	for _, item := range items {
		q.Push(item)
	}
	return &Scheduler{
		deps:       deps,
		cfg:        deps.Config,
		queue:      q,
		fillSignal: make(chan struct{}, 1),
		total:      len(items),
	}
}

// activeDomains returns the domain of every currently active (running or
// merging) slot, for pick_next's compatibility check.
func (s *Scheduler) activeDomains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, slot := range s.slots {
		if slot.snapshotStatus().IsActive() {
			out = append(out, slot.Item.Domain)
		}
	}
	return out
}

func (s *Scheduler) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, slot := range s.slots {
		if slot.snapshotStatus().IsActive() {
			n++
		}
	}
	return n
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run acquires the window, drains the queue until it's empty and every
// slot has gone terminal, then returns. It starts the 1s supervisor tick
// and blocks until the run completes or Kill is called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.deps.Bus.Emit(events.NewEvent(events.RunStarted, "").
		WithPayload(map[string]any{"window_size": s.cfg.WindowSize, "total_items": s.queue.Len() + s.activeCount()}))

	s.supervisorDone = make(chan struct{})
	go s.superviseLoop(ctx)

	s.fillSlots(ctx)
	s.wg.Wait()

	close(s.supervisorDone)

	s.mu.Lock()
	s.running = false
	failed := s.failed
	s.mu.Unlock()

	if failed > 0 {
		s.deps.Bus.Emit(events.NewEvent(events.RunFailed, ""))
	} else {
		s.deps.Bus.Emit(events.NewEvent(events.RunCompleted, ""))
	}
	s.deps.Bus.Emit(events.NewEvent(events.BatchComplete, ""))
	return nil
}

// Kill marks the scheduler as shutting down and kills every registered
// engine across every slot; in-flight attempt loops observe the shutdown
// flag between steps and clean up (§4.H Shutdown).
func (s *Scheduler) Kill() {
	s.mu.Lock()
	s.running = false
	slots := append([]*Slot(nil), s.slots...)
	s.mu.Unlock()

	for _, slot := range slots {
		if slot.hasActiveChain() {
			s.deps.Bus.Emit(events.NewEvent(events.EngineKill, slot.Item.ID).WithSlot(slot.Index).
				WithPayload(map[string]any{"reason": "shutdown"}))
		}
		slot.killActiveChain()
	}
}

// superviseLoop runs the periodic supervisor tick: hard-timeout kills,
// warn-threshold events, then a fill_slots attempt, every SupervisorTick
// (§4.H Supervisor tick).
func (s *Scheduler) superviseLoop(ctx context.Context) {
	tick := s.cfg.SupervisorTick
	if tick <= 0 {
		tick = config.DefaultSupervisorTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.supervisorDone:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.superviseOnce(now)
			s.fillSlots(ctx)
		}
	}
}

func (s *Scheduler) superviseOnce(now time.Time) {
	s.mu.Lock()
	slots := append([]*Slot(nil), s.slots...)
	s.mu.Unlock()

	hardTimeout := s.cfg.HardSlotTimeout
	warnThreshold := s.cfg.WarnThreshold

	for _, slot := range slots {
		if slot.snapshotStatus() != SlotRunning {
			continue
		}
		age := slot.age(now)
		if hardTimeout > 0 && age > hardTimeout {
			s.deps.Bus.Emit(events.NewEvent(events.EngineKill, slot.Item.ID).WithSlot(slot.Index).
				WithPayload(map[string]any{"reason": "hard_timeout", "age_seconds": age.Seconds()}))
			slot.killActiveChain()
		}
		if warnThreshold > 0 && age > warnThreshold {
			slot.mu.Lock()
			shouldWarn := slot.lastWarnAt.IsZero() || now.Sub(slot.lastWarnAt) >= time.Minute
			if shouldWarn {
				slot.lastWarnAt = now
			}
			slot.mu.Unlock()
			if shouldWarn {
				s.deps.Bus.Emit(events.NewEvent(events.EventType("slot.warn"), slot.Item.ID).
					WithSlot(slot.Index).WithPayload(map[string]any{"age_seconds": age.Seconds()}))
			}
		}
	}
}

// fillSlots pulls from the queue until the window is full or no queued
// item is currently compatible (§4.H pick_next / fill_slots). It is safe
// to call concurrently from the supervisor tick and from a completing
// slot: each call only ever starts slots for items it itself popped, so
// concurrent callers never race on the same item, and a completing
// slot's call is never dropped by an "already filling" guard — there is
// deliberately no such guard here.
func (s *Scheduler) fillSlots(ctx context.Context) {
	if !s.isRunning() {
		return
	}
	windowSize := s.cfg.WindowSize
	if windowSize <= 0 {
		windowSize = 1
	}

	for {
		if !s.isRunning() {
			return
		}
		if s.activeCount() >= windowSize {
			return
		}

		active := s.activeDomains()
		item, ok := s.queue.PickNext(len(active), func(d string) bool {
			for _, a := range active {
				if !domain.CanRunParallel(a, d) {
					return false
				}
			}
			return true
		})
		if !ok {
			return
		}

		slot, started := s.startSlot(ctx, item)
		if !started {
			continue
		}

		s.mu.Lock()
		s.slots = append(s.slots, slot)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSlot(ctx, slot)
		}()
	}
}

// startSlot runs the slot-start sequence (§4.H Slot start): WIP/assignee
// skip, loop-detector, claim, and construction of a pending Slot.
// Returns started=false when the item should simply be dropped (not
// requeued) because another owner has it, it's already assigned, or the
// loop detector blocked it.
func (s *Scheduler) startSlot(ctx context.Context, item PendingItem) (*Slot, bool) {
	trackerItem, err := s.deps.Tracker.Get(ctx, item.Number)
	if err == nil {
		if trackerItem.Assignee != "" || hasLabel(trackerItem.Labels, "work-in-progress") {
			return nil, false
		}
	}

	looping, err := s.deps.Tracker.DetectLoop(ctx, item.Number, s.cfg.MaxReopens)
	if err == nil && looping {
		_ = s.deps.Tracker.Comment(ctx, item.Number, "blocked: closed/reopened too many times")
		return nil, false
	}

	claimed, err := s.deps.Claims.Claim(item.ID)
	if err != nil || !claimed {
		return nil, false
	}

	s.mu.Lock()
	idx := s.nextIndex
	s.nextIndex++
	s.mu.Unlock()

	return newSlot(idx, item), true
}

func hasLabel(labels []string, name string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, name) {
			return true
		}
	}
	return false
}

// runSlot drives the bounded attempt loop for one slot, then releases
// its claim and signals a fill regardless of outcome (§4.H: "After the
// loop, in an outer guaranteed-execute block: release(issue), emit
// slot_done, call fill_slots").
func (s *Scheduler) runSlot(ctx context.Context, slot *Slot) {
	defer func() {
		_ = s.deps.Claims.Release(slot.Item.ID)
		s.deps.Bus.Emit(events.NewEvent(events.SlotDone, slot.Item.ID).WithSlot(slot.Index).
			WithPayload(map[string]any{"status": string(slot.snapshotStatus())}))
		s.fillSlots(ctx)
	}()

	s.deps.Bus.Emit(events.NewEvent(events.SlotFill, slot.Item.ID).WithSlot(slot.Index).
		WithPayload(map[string]any{"number": slot.Item.Number, "title": slot.Item.Title, "domain": slot.Item.Domain}))

	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !s.isRunning() {
			slot.setStatus(SlotFailed)
			return
		}

		outcome := s.runAttempt(ctx, slot, attempt, attempt == maxAttempts)
		if outcome.terminal {
			return
		}
		// outcome.retry: loop continues with the next attempt.
	}
}

// attemptOutcome tells runSlot whether the slot reached a terminal state
// this attempt or should loop again.
type attemptOutcome struct {
	terminal bool
}

// runAttempt executes one iteration of the attempt loop (§4.H Attempt
// loop, steps 1-12).
func (s *Scheduler) runAttempt(ctx context.Context, slot *Slot, attempt int, lastAttempt bool) (outcome attemptOutcome) {
	// Step 1: shutdown check.
	if !s.isRunning() {
		slot.setStatus(SlotFailed)
		return attemptOutcome{terminal: true}
	}

	slot.setStatus(SlotRunning)
	slot.mu.Lock()
	slot.Attempt = attempt
	slot.StartedAt = time.Now()
	slot.mu.Unlock()

	var ws *workspace.Workspace
	defer func() {
		// Step 12: guaranteed-execute cleanup. outcome is the named
		// return value, already set by whichever return statement ran,
		// so it reflects this attempt's actual terminal/retry verdict
		// rather than just the lastAttempt flag.
		slot.registerChain(nil)
		if ws == nil {
			return
		}

		var cleanupErr error
		if outcome.terminal {
			cleanupErr = s.deps.Workspaces.Teardown(context.Background(), ws)
		} else {
			cleanupErr = s.deps.Workspaces.CleanupForRetry(context.Background(), ws)
		}
		if cleanupErr != nil {
			s.deps.Bus.Emit(events.NewEvent(events.EventType("workspace.cleanup.failed"), slot.Item.ID).WithSlot(slot.Index).WithError(cleanupErr))
			return
		}

		// Only null the path once cleanup actually confirmed removal;
		// otherwise a later sweep needs WorktreePath to find the orphan.
		slot.mu.Lock()
		slot.WorktreePath = ""
		slot.Branch = ""
		slot.mu.Unlock()
	}()

	// Step 2: create workspace.
	var err error
	ws, err = s.deps.Workspaces.Create(ctx, slot.Item.ID, attempt)
	if err != nil {
		s.deps.Bus.Emit(events.NewEvent(events.EventType("workspace.create.failed"), slot.Item.ID).WithSlot(slot.Index).WithError(err))
		return s.retryOrTerminal(ctx, slot, attempt, lastAttempt, func() {
			_ = s.deps.Tracker.Comment(ctx, slot.Item.Number, fmt.Sprintf("workspace creation failed after %d attempts: %v", attempt, err))
		})
	}
	slot.mu.Lock()
	slot.WorktreePath = ws.Path
	slot.Branch = ws.Branch
	slot.mu.Unlock()

	// Step 3: propagate lessons.
	lessonsText, _ := s.deps.Lessons.Read(ctx)

	// Step 4: build prompt.
	prompt := buildPrompt(slot.Item, lessonsText)

	// Step 5: run fallback chain, registering for external kill.
	chain := s.deps.Chains(func(from, to string, reason engine.ErrorType) {
		s.deps.Bus.Emit(events.NewEvent(events.EngineSwitch, slot.Item.ID).WithSlot(slot.Index).
			WithPayload(map[string]any{"from": from, "to": to, "reason": string(reason)}))
	})
	slot.registerChain(chain)

	s.deps.Bus.Emit(events.NewEvent(events.EngineInvokeStarted, slot.Item.ID).WithSlot(slot.Index))
	result, invokeErr := chain.Invoke(ctx, engine.Request{
		Prompt:  prompt,
		Workdir: ws.Path,
		Timeout: s.cfg.EngineTimeout,
		ItemID:  slot.Item.ID,
	})
	s.deps.Bus.Emit(events.NewEvent(events.EngineInvokeDone, slot.Item.ID).WithSlot(slot.Index).WithError(invokeErr))

	// Step 6: unregister engine.
	slot.registerChain(nil)

	// Step 7: determine has_real_changes.
	hasRealChanges := result.Success && !result.Stuck
	if !hasRealChanges && result.Success {
		if dirty, diffErr := workspaceHasDiff(ctx, ws); diffErr == nil && dirty {
			hasRealChanges = true
		}
	}

	if hasRealChanges {
		return s.integrateAttempt(ctx, slot, ws, attempt, lastAttempt, result)
	}

	if result.ErrorType == engine.ErrorRateLimit {
		return s.retryAfterDelay(ctx, slot, lastAttempt, rateLimitBackoff(s.cfg))
	}

	if result.Stuck {
		return s.retryOrTerminal(ctx, slot, attempt, lastAttempt, func() {
			_ = s.deps.Tracker.Comment(ctx, slot.Item.Number, fmt.Sprintf("engine made no changes after %d attempts", attempt))
		})
	}

	return s.retryOrTerminal(ctx, slot, attempt, lastAttempt, func() {
		_ = s.deps.Tracker.Comment(ctx, slot.Item.Number, fmt.Sprintf("attempt %d failed: %v", attempt, invokeErr))
	})
}

// integrateAttempt runs step 8 of the attempt loop: merge mutex, integrate,
// and the success/failure branches.
func (s *Scheduler) integrateAttempt(ctx context.Context, slot *Slot, ws *workspace.Workspace, attempt int, lastAttempt bool, result engine.Result) attemptOutcome {
	slot.setStatus(SlotMerging)
	s.deps.Bus.Emit(events.NewEvent(events.EventType("dashboard.snapshot"), slot.Item.ID).WithSlot(slot.Index))

	integrateResult, err := s.deps.Integrator.Integrate(ctx, integrate.Request{
		RepoRoot:       s.deps.RepoRoot,
		FeatureBranch:  ws.Branch,
		BaseBranch:     s.cfg.TargetBranch,
		ItemID:         slot.Item.ID,
		FeatureWorkdir: ws.Path,
	})

	if err == nil && integrateResult != nil && integrateResult.Success {
		_ = s.deps.Tracker.Close(ctx, slot.Item.Number)
		_ = s.deps.Lessons.Append(ctx, slot.Item.ID, result.Lessons)
		slot.setStatus(SlotDone)
		s.mu.Lock()
		s.completed++
		s.mu.Unlock()
		s.deps.Bus.Emit(events.NewEvent(events.MergeResult, slot.Item.ID).WithSlot(slot.Index).
			WithPayload(map[string]any{"success": true}))
		return attemptOutcome{terminal: true}
	}

	s.deps.Bus.Emit(events.NewEvent(events.MergeResult, slot.Item.ID).WithSlot(slot.Index).WithError(err))

	if lastAttempt {
		_ = s.deps.Tracker.Comment(ctx, slot.Item.Number, fmt.Sprintf("blocked: integration failed after %d attempts: %v", attempt, err))
		slot.setStatus(SlotBlocked)
		s.mu.Lock()
		s.blocked++
		s.mu.Unlock()
		return attemptOutcome{terminal: true}
	}

	slot.setStatus(SlotRunning)
	return attemptOutcome{terminal: false}
}

// retryOrTerminal implements the common "retry if attempts remain, else
// comment and fail" branch shared by steps 9-11.
func (s *Scheduler) retryOrTerminal(ctx context.Context, slot *Slot, attempt int, lastAttempt bool, onTerminal func()) attemptOutcome {
	if lastAttempt {
		onTerminal()
		slot.setStatus(SlotFailed)
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()
		return attemptOutcome{terminal: true}
	}
	slot.setStatus(SlotRunning)
	return attemptOutcome{terminal: false}
}

// retryAfterDelay sleeps backoff (cancellable on shutdown) before
// retrying, per step 9's rate-limit handling.
func (s *Scheduler) retryAfterDelay(ctx context.Context, slot *Slot, lastAttempt bool, backoff time.Duration) attemptOutcome {
	if lastAttempt {
		_ = s.deps.Tracker.Comment(ctx, slot.Item.Number, "blocked: rate-limit exhausted")
		slot.setStatus(SlotFailed)
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()
		return attemptOutcome{terminal: true}
	}

	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		slot.setStatus(SlotFailed)
		return attemptOutcome{terminal: true}
	}

	if !s.isRunning() {
		slot.setStatus(SlotFailed)
		return attemptOutcome{terminal: true}
	}
	slot.setStatus(SlotRunning)
	return attemptOutcome{terminal: false}
}

func rateLimitBackoff(cfg *config.Config) time.Duration {
	if cfg.RateLimitBackoff > 0 {
		return cfg.RateLimitBackoff
	}
	return rateLimitBackoffFloor
}

// workspaceHasDiff cross-checks an engine's self-reported outcome
// against the filesystem: §4.C requires that "tool-reported 'no
// changes' is only authoritative when the filesystem also shows none."
func workspaceHasDiff(ctx context.Context, ws *workspace.Workspace) (bool, error) {
	status, err := ws.Ops.Status(ctx)
	if err != nil {
		return false, ferr.New(ferr.KindInternal, "scheduler.diff_check", err)
	}
	return !status.Clean, nil
}

// buildPrompt assembles the engine prompt from the item's body, its
// classified domain, and the repo's accumulated lessons (§4.H step 4, §6).
func buildPrompt(item PendingItem, lessonsText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", item.Title, item.Body)
	if item.Domain != "" && item.Domain != domain.Unknown {
		fmt.Fprintf(&b, "\nDomain: %s\n", item.Domain)
	}
	if strings.TrimSpace(lessonsText) != "" {
		b.WriteString("\n## Lessons from previous attempts in this repository\n\n")
		b.WriteString(lessonsText)
	}
	return b.String()
}

// Snapshot is a point-in-time, read-only view of the run's progress
// (§3 Run State), safe to serialize directly to the dashboard/event bus.
type Snapshot struct {
	WindowSize     int       `json:"window_size"`
	ActiveCount    int       `json:"active_count"`
	CompletedCount int       `json:"completed_count"`
	FailedCount    int       `json:"failed_count"`
	BlockedCount   int       `json:"blocked_count"`
	TotalItems     int       `json:"total_items"`
	StartedAt      time.Time `json:"started_at"`
}

// Snapshot returns the run's current state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := 0
	for _, slot := range s.slots {
		if slot.snapshotStatus().IsActive() {
			active++
		}
	}
	return Snapshot{
		WindowSize:     s.cfg.WindowSize,
		ActiveCount:    active,
		CompletedCount: s.completed,
		FailedCount:    s.failed,
		BlockedCount:   s.blocked,
		TotalItems:     s.total,
		StartedAt:      s.startedAt,
	}
}
