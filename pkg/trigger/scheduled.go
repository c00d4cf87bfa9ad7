package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FireFunc launches one trigger execution with merged task parameters.
type FireFunc func(ctx context.Context, tr *Trigger, params map[string]any) (any, error)

// scheduleEntry is one registered scheduled trigger's loop state. The loop
// goroutine owns next; readers go through NextRun so the shared Trigger is
// never written after registration.
type scheduleEntry struct {
	trigger  *Trigger
	schedule *CronSchedule
	cancel   context.CancelFunc
	running  int
	next     time.Time
	mu       sync.Mutex
}

func (e *scheduleEntry) setNext(t time.Time) {
	e.mu.Lock()
	e.next = t
	e.mu.Unlock()
}

// ScheduledExecutor runs cron-scheduled triggers. Each registered trigger
// gets one goroutine sleeping cooperatively until the next slot.
type ScheduledExecutor struct {
	mu      sync.Mutex
	entries map[string]*scheduleEntry
	fire    FireFunc
	logger  *slog.Logger
	// now is the clock source, swappable in tests.
	now func() time.Time
	wg  sync.WaitGroup
}

// NewScheduledExecutor creates the executor; fire is invoked per slot.
func NewScheduledExecutor(fire FireFunc) *ScheduledExecutor {
	return &ScheduledExecutor{
		entries: make(map[string]*scheduleEntry),
		fire:    fire,
		logger:  slog.Default().With("component", "trigger.scheduled"),
		now:     time.Now,
	}
}

// Register starts the trigger's schedule loop. With catch_up set and a
// persisted next_run_time already in the past, one make-up fire happens
// immediately; otherwise missed slots are skipped and the loop resumes at
// the next future slot.
func (e *ScheduledExecutor) Register(ctx context.Context, tr *Trigger) error {
	schedule, err := ParseCron(tr.Schedule.CronExpr, tr.Schedule.Timezone)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	entry := &scheduleEntry{trigger: tr, schedule: schedule, cancel: cancel}

	e.mu.Lock()
	if old, ok := e.entries[tr.ID]; ok {
		old.cancel()
	}
	e.entries[tr.ID] = entry
	e.mu.Unlock()

	catchUp := tr.Schedule.CatchUp &&
		tr.Schedule.NextRunTime != nil &&
		tr.Schedule.NextRunTime.Before(e.now())

	entry.setNext(schedule.Next(e.now()))

	e.wg.Add(1)
	go e.loop(loopCtx, entry, tr.Schedule.RunImmediately || catchUp)
	return nil
}

// Unregister stops the trigger's loop.
func (e *ScheduledExecutor) Unregister(triggerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.entries[triggerID]; ok {
		entry.cancel()
		delete(e.entries, triggerID)
	}
}

// Stop cancels all loops and waits for them to drain.
func (e *ScheduledExecutor) Stop() {
	e.mu.Lock()
	for id, entry := range e.entries {
		entry.cancel()
		delete(e.entries, id)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// NextRun reports the upcoming slot of a registered trigger.
func (e *ScheduledExecutor) NextRun(triggerID string) (time.Time, bool) {
	e.mu.Lock()
	entry, ok := e.entries[triggerID]
	e.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.next, !entry.next.IsZero()
}

func (e *ScheduledExecutor) loop(ctx context.Context, entry *scheduleEntry, fireNow bool) {
	defer e.wg.Done()

	if fireNow {
		e.tryFire(ctx, entry)
	}

	for {
		next := entry.schedule.Next(e.now())
		entry.setNext(next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		e.tryFire(ctx, entry)
	}
}

// tryFire honors max_instances: a slot arriving while the cap is reached is
// skipped, not queued.
func (e *ScheduledExecutor) tryFire(ctx context.Context, entry *scheduleEntry) {
	tr := entry.trigger
	maxInstances := tr.Schedule.MaxInstances
	if maxInstances <= 0 {
		maxInstances = 1
	}

	entry.mu.Lock()
	if entry.running >= maxInstances {
		entry.mu.Unlock()
		e.logger.Warn("slot skipped, max instances reached",
			"trigger_id", tr.ID, "max_instances", maxInstances)
		return
	}
	entry.running++
	entry.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			entry.mu.Lock()
			entry.running--
			entry.mu.Unlock()
		}()
		if _, err := e.fire(ctx, tr, tr.TaskParams); err != nil {
			e.logger.Error("scheduled fire failed", "trigger_id", tr.ID, "error", err)
		}
	}()
}
