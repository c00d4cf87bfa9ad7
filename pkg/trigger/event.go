package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// eventEntry is one registered event trigger plus its debounce/batch state.
type eventEntry struct {
	trigger *Trigger

	mu    sync.Mutex
	timer *time.Timer
	// pending holds payloads collected while a debounce or batch window is
	// open. Debounce fires with the last payload, batching with all of them.
	pending []map[string]any
}

// EventExecutor fans in-process application events out to matching event
// triggers.
type EventExecutor struct {
	mu      sync.RWMutex
	byType  map[string][]*eventEntry
	fire    FireFunc
	logger  *slog.Logger
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewEventExecutor creates the executor; deferred fires (debounce, batch)
// run under ctx.
func NewEventExecutor(ctx context.Context, fire FireFunc) *EventExecutor {
	return &EventExecutor{
		byType:  make(map[string][]*eventEntry),
		fire:    fire,
		logger:  slog.Default().With("component", "trigger.event"),
		baseCtx: ctx,
	}
}

// Register subscribes the trigger to its event type.
func (e *EventExecutor) Register(tr *Trigger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byType[tr.Event.EventType] = append(e.byType[tr.Event.EventType], &eventEntry{trigger: tr})
}

// Unregister drops the trigger's subscription.
func (e *EventExecutor) Unregister(tr *Trigger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.byType[tr.Event.EventType]
	for i, entry := range entries {
		if entry.trigger.ID == tr.ID {
			entry.mu.Lock()
			if entry.timer != nil {
				entry.timer.Stop()
			}
			entry.mu.Unlock()
			e.byType[tr.Event.EventType] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
}

// Emit delivers one application event. Matching is by event type, then
// source filter, then dotted-path data filters. Matching triggers fire
// immediately, after a trailing-edge debounce, or once per batch window,
// depending on their spec.
func (e *EventExecutor) Emit(eventType string, data map[string]any, source string) {
	e.mu.RLock()
	entries := append([]*eventEntry(nil), e.byType[eventType]...)
	e.mu.RUnlock()

	for _, entry := range entries {
		tr := entry.trigger
		if tr.Status != StatusActive {
			continue
		}
		spec := tr.Event
		if spec.SourceFilter != "" && spec.SourceFilter != source {
			continue
		}
		if !matchDataFilters(data, spec.DataFilters) {
			continue
		}

		payload := map[string]any{"event_type": eventType, "source": source}
		for k, v := range data {
			payload[k] = v
		}

		switch {
		case spec.BatchWindow > 0:
			e.batch(entry, payload, spec.BatchWindow)
		case spec.Debounce > 0:
			e.debounce(entry, payload, spec.Debounce)
		default:
			e.dispatch(tr, payload)
		}
	}
}

// debounce restarts the quiet-period timer on every event and fires with
// the latest payload once the stream goes quiet.
func (e *EventExecutor) debounce(entry *eventEntry, payload map[string]any, quiet time.Duration) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.pending = []map[string]any{payload}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.timer = time.AfterFunc(quiet, func() {
		entry.mu.Lock()
		var last map[string]any
		if len(entry.pending) > 0 {
			last = entry.pending[len(entry.pending)-1]
		}
		entry.pending = nil
		entry.timer = nil
		entry.mu.Unlock()
		if last != nil {
			e.dispatch(entry.trigger, last)
		}
	})
}

// batch opens a window on the first event and fires once with everything
// collected when it closes.
func (e *EventExecutor) batch(entry *eventEntry, payload map[string]any, window time.Duration) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.pending = append(entry.pending, payload)
	if entry.timer != nil {
		return
	}
	entry.timer = time.AfterFunc(window, func() {
		entry.mu.Lock()
		batch := entry.pending
		entry.pending = nil
		entry.timer = nil
		entry.mu.Unlock()
		if len(batch) > 0 {
			e.dispatch(entry.trigger, map[string]any{
				"events":      batch,
				"event_count": len(batch),
			})
		}
	})
}

func (e *EventExecutor) dispatch(tr *Trigger, payload map[string]any) {
	params := make(map[string]any, len(tr.TaskParams)+len(payload))
	for k, v := range tr.TaskParams {
		params[k] = v
	}
	for k, v := range payload {
		params[k] = v
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.fire(e.baseCtx, tr, params); err != nil {
			e.logger.Error("event fire failed", "trigger_id", tr.ID, "error", err)
		}
	}()
}

// Wait blocks until in-flight dispatches finish. Test hook and shutdown aid.
func (e *EventExecutor) Wait() { e.wg.Wait() }

// matchDataFilters checks dotted-path equality constraints against nested
// map payloads. Values compare by string rendering so JSON numbers and
// config literals line up.
func matchDataFilters(data map[string]any, filters map[string]any) bool {
	for path, want := range filters {
		got, ok := lookupPath(data, path)
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func lookupPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = data
	for _, p := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
