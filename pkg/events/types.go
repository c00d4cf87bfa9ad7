// Package events provides the in-process event bus behind run and trigger
// progress streaming, plus the WebSocket fan-out layer on top of it.
package events

import "time"

// Channel names. Run-scoped channels carry the full node-by-node progress of
// one run; the global channels carry status transitions for list pages.
const (
	GlobalRunsChannel = "runs"
	TriggersChannel   = "triggers"
)

// RunChannel returns the channel for one run's events.
func RunChannel(runID string) string { return "run:" + runID }

// Event types.
const (
	TypeRunStatus    = "run.status"
	TypeNodeProgress = "run.node"
	TypeRunReport    = "run.report"
	TypeTriggerFired = "trigger.fired"
)

// Event is one bus message. IDs are process-wide and monotonic so clients can
// catch up after a reconnect.
type Event struct {
	ID        int64          `json:"id"`
	Channel   string         `json:"channel"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ClientMessage is a message sent by a WebSocket client.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // e.g. "run:abc-123"
	LastEventID *int64 `json:"last_event_id,omitempty"` // for catchup
}
