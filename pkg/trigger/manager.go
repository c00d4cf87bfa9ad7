package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryLimit caps per-manager retained executions.
const DefaultHistoryLimit = 100

// ErrTriggerNotFound is returned for operations on unknown trigger IDs.
var ErrTriggerNotFound = errors.New("trigger not found")

// Store persists triggers and their executions. A nil store keeps the
// manager purely in-memory.
type Store interface {
	SaveTrigger(ctx context.Context, tr *Trigger) error
	UpdateTrigger(ctx context.Context, tr *Trigger) error
	DeleteTrigger(ctx context.Context, id string) error
	ListTriggers(ctx context.Context) ([]*Trigger, error)
	SaveExecution(ctx context.Context, ex *Execution) error
}

// Launcher starts whatever a trigger fires; the research orchestrator's run
// service satisfies it.
type Launcher func(ctx context.Context, tr *Trigger, params map[string]any) (any, error)

// Manager owns the trigger lifecycle across all three executors and records
// execution history.
type Manager struct {
	mu       sync.RWMutex
	triggers map[string]*Trigger
	history  []*Execution
	limit    int

	scheduled *ScheduledExecutor
	webhook   *WebhookExecutor
	event     *EventExecutor

	store    Store
	launch   Launcher
	masker   ParamMasker
	logger   *slog.Logger
	baseCtx  context.Context
	baseStop context.CancelFunc
}

// NewManager wires the three executors around the launcher. ctx bounds all
// background firing.
func NewManager(ctx context.Context, launch Launcher, store Store) *Manager {
	base, stop := context.WithCancel(ctx)
	m := &Manager{
		triggers: make(map[string]*Trigger),
		limit:    DefaultHistoryLimit,
		store:    store,
		launch:   launch,
		logger:   slog.Default().With("component", "trigger.manager"),
		baseCtx:  base,
		baseStop: stop,
	}
	m.scheduled = NewScheduledExecutor(m.execute)
	m.webhook = NewWebhookExecutor(m.execute)
	m.event = NewEventExecutor(base, m.execute)
	return m
}

// ParamMasker redacts credentials in recorded parameter values. Satisfied
// by masking.Service.
type ParamMasker interface {
	Mask(data string) string
}

// SetMasker installs a masker applied to execution task params before they
// reach history and storage.
func (m *Manager) SetMasker(masker ParamMasker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masker = masker
}

// SetHistoryLimit overrides the retained execution count. Values below one
// keep the default.
func (m *Manager) SetHistoryLimit(n int) {
	if n < 1 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = n
	if len(m.history) > m.limit {
		m.history = m.history[len(m.history)-m.limit:]
	}
}

// Restore loads persisted triggers and re-registers the active ones, fresh
// cron slots computed from now (missed slots are not replayed unless the
// trigger opted into catch_up).
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	stored, err := m.store.ListTriggers(ctx)
	if err != nil {
		return fmt.Errorf("trigger: restore: %w", err)
	}
	for _, tr := range stored {
		m.mu.Lock()
		m.triggers[tr.ID] = tr
		m.mu.Unlock()
		if tr.Status != StatusActive {
			continue
		}
		if err := m.register(tr); err != nil {
			m.logger.Error("restore failed, marking trigger error",
				"trigger_id", tr.ID, "error", err)
			tr.Status = StatusError
			_ = m.persistUpdate(ctx, tr)
		}
	}
	m.logger.Info("triggers restored", "count", len(stored))
	return nil
}

// Create validates, registers, and persists a new trigger.
func (m *Manager) Create(ctx context.Context, tr *Trigger) error {
	if err := tr.Validate(); err != nil {
		return err
	}
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tr.CreatedAt, tr.UpdatedAt = now, now
	tr.Status = StatusActive

	if err := m.register(tr); err != nil {
		return err
	}
	m.mu.Lock()
	m.triggers[tr.ID] = tr
	m.mu.Unlock()

	if m.store != nil {
		m.mu.RLock()
		cp := m.snapshotLocked(tr)
		m.mu.RUnlock()
		if err := m.store.SaveTrigger(ctx, cp); err != nil {
			m.unregister(tr)
			m.mu.Lock()
			delete(m.triggers, tr.ID)
			m.mu.Unlock()
			return fmt.Errorf("trigger: persist %s: %w", tr.Name, err)
		}
	}
	m.logger.Info("trigger created", "trigger_id", tr.ID, "kind", tr.Kind, "name", tr.Name)
	return nil
}

// Pause keeps the trigger registered but inert: webhook requests get 503,
// events are skipped, schedules stop firing.
func (m *Manager) Pause(ctx context.Context, id string) error {
	return m.transition(ctx, id, StatusPaused)
}

// Resume reactivates a paused trigger.
func (m *Manager) Resume(ctx context.Context, id string) error {
	return m.transition(ctx, id, StatusActive)
}

// Disable permanently deactivates the trigger without deleting its record.
func (m *Manager) Disable(ctx context.Context, id string) error {
	return m.transition(ctx, id, StatusDisabled)
}

func (m *Manager) transition(ctx context.Context, id string, to Status) error {
	m.mu.Lock()
	tr, ok := m.triggers[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}
	from := tr.Status
	tr.Status = to
	tr.UpdatedAt = time.Now().UTC()
	m.mu.Unlock()

	// Scheduled loops stop on pause/disable and restart on resume; webhook
	// and event entries stay registered and gate on status.
	if tr.Kind == KindScheduled {
		switch {
		case to == StatusActive && from != StatusActive:
			if err := m.scheduled.Register(m.baseCtx, tr); err != nil {
				return err
			}
		case to != StatusActive:
			m.scheduled.Unregister(tr.ID)
		}
	}
	m.logger.Info("trigger transitioned", "trigger_id", id, "from", from, "to", to)
	return m.persistUpdate(ctx, tr)
}

// Delete unregisters and removes the trigger.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	tr, ok := m.triggers[id]
	if ok {
		delete(m.triggers, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}
	m.unregister(tr)
	if m.store != nil {
		if err := m.store.DeleteTrigger(ctx, id); err != nil {
			return fmt.Errorf("trigger: delete %s: %w", id, err)
		}
	}
	m.logger.Info("trigger deleted", "trigger_id", id)
	return nil
}

// Get returns a deep copy of one trigger.
func (m *Manager) Get(id string) (*Trigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tr, ok := m.triggers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}
	return m.snapshotLocked(tr), nil
}

// List returns deep copies of all triggers.
func (m *Manager) List() []*Trigger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Trigger, 0, len(m.triggers))
	for _, tr := range m.triggers {
		out = append(out, m.snapshotLocked(tr))
	}
	return out
}

// snapshotLocked deep-copies a trigger and fills in the live next-run time
// from the schedule loop. Caller holds m.mu.
func (m *Manager) snapshotLocked(tr *Trigger) *Trigger {
	cp := tr.Clone()
	if cp.Kind == KindScheduled && cp.Schedule != nil {
		if next, ok := m.scheduled.NextRun(tr.ID); ok {
			cp.Schedule.NextRunTime = &next
		}
	}
	return cp
}

// History returns recorded executions, newest first, optionally filtered by
// trigger.
func (m *Manager) History(triggerID string) []*Execution {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Execution, 0, len(m.history))
	for i := len(m.history) - 1; i >= 0; i-- {
		if triggerID == "" || m.history[i].TriggerID == triggerID {
			out = append(out, m.history[i])
		}
	}
	return out
}

// HandleWebhook dispatches one inbound webhook request.
func (m *Manager) HandleWebhook(ctx context.Context, req Request) *WebhookResponse {
	return m.webhook.Handle(ctx, req)
}

// Emit delivers an application event to event triggers.
func (m *Manager) Emit(eventType string, data map[string]any, source string) {
	m.event.Emit(eventType, data, source)
}

// Stop shuts down all executors and waits for in-flight fires.
func (m *Manager) Stop() {
	m.baseStop()
	m.scheduled.Stop()
	m.event.Wait()
	m.logger.Info("trigger manager stopped")
}

func (m *Manager) register(tr *Trigger) error {
	switch tr.Kind {
	case KindScheduled:
		return m.scheduled.Register(m.baseCtx, tr)
	case KindWebhook:
		m.webhook.Register(tr)
	case KindEvent:
		m.event.Register(tr)
	}
	return nil
}

func (m *Manager) unregister(tr *Trigger) {
	switch tr.Kind {
	case KindScheduled:
		m.scheduled.Unregister(tr.ID)
	case KindWebhook:
		m.webhook.Unregister(tr)
	case KindEvent:
		m.event.Unregister(tr)
	}
}

// execute is the FireFunc behind every executor: per-trigger timeout, retry
// attempts, history recording, stat updates.
func (m *Manager) execute(ctx context.Context, tr *Trigger, params map[string]any) (any, error) {
	timeout := time.Duration(tr.TimeoutSeconds) * time.Second
	attempts := tr.MaxRetries + 1

	var result any
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		ex := &Execution{
			ID:           uuid.NewString(),
			TriggerID:    tr.ID,
			StartedAt:    time.Now().UTC(),
			Status:       ExecutionRunning,
			RetryAttempt: attempt,
			TaskParams:   m.maskParams(params),
		}

		runCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		result, err = m.launch(runCtx, tr, params)
		if cancel != nil {
			cancel()
		}

		done := time.Now().UTC()
		ex.CompletedAt = &done
		if err != nil {
			ex.Status = ExecutionFailed
			ex.Error = err.Error()
		} else {
			ex.Status = ExecutionSucceeded
			ex.Result = result
		}
		m.record(ctx, tr, ex)

		if err == nil || ctx.Err() != nil {
			break
		}
		m.logger.Warn("trigger execution failed",
			"trigger_id", tr.ID, "attempt", attempt+1, "error", err)
	}
	return result, err
}

// maskParams redacts string values before they are recorded. The launched
// run still receives the originals.
func (m *Manager) maskParams(params map[string]any) map[string]any {
	m.mu.RLock()
	masker := m.masker
	m.mu.RUnlock()
	if masker == nil || len(params) == 0 {
		return params
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok {
			out[k] = masker.Mask(s)
		} else {
			out[k] = v
		}
	}
	return out
}

// record appends to the capped history ring and folds the outcome into the
// trigger's stats.
func (m *Manager) record(ctx context.Context, tr *Trigger, ex *Execution) {
	m.mu.Lock()
	m.history = append(m.history, ex)
	if len(m.history) > m.limit {
		m.history = m.history[len(m.history)-m.limit:]
	}
	tr.Stats.TotalExecutions++
	switch ex.Status {
	case ExecutionSucceeded:
		tr.Stats.Succeeded++
		tr.Stats.LastError = ""
	case ExecutionFailed:
		tr.Stats.Failed++
		tr.Stats.LastError = ex.Error
	}
	tr.Stats.LastExecutedAt = &ex.StartedAt
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveExecution(ctx, ex); err != nil {
			m.logger.Error("persist execution failed", "trigger_id", tr.ID, "error", err)
		}
		_ = m.persistUpdate(ctx, tr)
	}
}

// persistUpdate writes a snapshot so the store never marshals a trigger
// that a concurrent record or schedule loop is updating.
func (m *Manager) persistUpdate(ctx context.Context, tr *Trigger) error {
	if m.store == nil {
		return nil
	}
	m.mu.RLock()
	cp := m.snapshotLocked(tr)
	m.mu.RUnlock()
	if err := m.store.UpdateTrigger(ctx, cp); err != nil {
		return fmt.Errorf("trigger: update %s: %w", tr.ID, err)
	}
	return nil
}
