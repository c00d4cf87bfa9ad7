// Package trigger launches research runs autonomously: on a cron schedule,
// on an inbound webhook, or on an in-process application event.
package trigger

import (
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the trigger variants.
type Kind string

const (
	KindScheduled Kind = "scheduled"
	KindWebhook   Kind = "webhook"
	KindEvent     Kind = "event"
)

// Status is the trigger lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
)

// ScheduleSpec configures a scheduled trigger.
type ScheduleSpec struct {
	CronExpr string `json:"cron_expr" yaml:"cron_expr"`
	Timezone string `json:"timezone,omitempty" yaml:"timezone"`
	// RunImmediately fires once at registration, before the first cron slot.
	RunImmediately bool `json:"run_immediately,omitempty" yaml:"run_immediately"`
	// CatchUp fires once for a slot missed during downtime; false skips it.
	CatchUp bool `json:"catch_up,omitempty" yaml:"catch_up"`
	// MaxInstances caps concurrent executions; 0 means 1.
	MaxInstances int        `json:"max_instances,omitempty" yaml:"max_instances"`
	NextRunTime  *time.Time `json:"next_run_time,omitempty" yaml:"-"`
}

// WebhookSpec configures a webhook trigger.
type WebhookSpec struct {
	EndpointPath   string   `json:"endpoint_path" yaml:"endpoint_path"`
	AllowedMethods []string `json:"allowed_methods,omitempty" yaml:"allowed_methods"`
	RequireAuth    bool     `json:"require_auth,omitempty" yaml:"require_auth"`
	AuthToken      string   `json:"auth_token,omitempty" yaml:"auth_token"`
	ExtractBody    bool     `json:"extract_body,omitempty" yaml:"extract_body"`
	ExtractQuery   bool     `json:"extract_query,omitempty" yaml:"extract_query"`
	ExtractHeaders []string `json:"extract_headers,omitempty" yaml:"extract_headers"`
	// RateLimit allows at most this many requests per RateWindow; 0 disables.
	RateLimit  int           `json:"rate_limit,omitempty" yaml:"rate_limit"`
	RateWindow time.Duration `json:"rate_window,omitempty" yaml:"rate_window"`
}

// EventSpec configures an event trigger.
type EventSpec struct {
	EventType    string         `json:"event_type" yaml:"event_type"`
	SourceFilter string         `json:"source_filter,omitempty" yaml:"source_filter"`
	// DataFilters are dotted-path equality constraints on the event payload.
	DataFilters map[string]any `json:"data_filters,omitempty" yaml:"data_filters"`
	// Debounce suppresses rapid repeats, firing on the trailing edge.
	Debounce time.Duration `json:"debounce,omitempty" yaml:"debounce"`
	// BatchWindow collects events and fires once per window with the batch.
	BatchWindow time.Duration `json:"batch_window,omitempty" yaml:"batch_window"`
}

// Stats accumulates execution counters on a trigger.
type Stats struct {
	TotalExecutions int        `json:"total_executions"`
	Succeeded       int        `json:"succeeded"`
	Failed          int        `json:"failed"`
	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// Trigger is one registered trigger of any kind.
type Trigger struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
	Status Status `json:"status"`

	// AgentID and Task describe what to launch; TaskParams are merged with
	// per-fire parameters (webhook extraction, event payloads).
	AgentID    string         `json:"agent_id,omitempty"`
	Task       string         `json:"task"`
	TaskParams map[string]any `json:"task_params,omitempty"`

	Schedule *ScheduleSpec `json:"schedule,omitempty"`
	Webhook  *WebhookSpec  `json:"webhook,omitempty"`
	Event    *EventSpec    `json:"event,omitempty"`

	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	MaxRetries     int `json:"max_retries,omitempty"`

	Stats     Stats     `json:"stats"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to hand across goroutine boundaries or
// mutate for presentation.
func (t *Trigger) Clone() *Trigger {
	cp := *t
	if t.TaskParams != nil {
		cp.TaskParams = make(map[string]any, len(t.TaskParams))
		for k, v := range t.TaskParams {
			cp.TaskParams[k] = v
		}
	}
	if t.Schedule != nil {
		s := *t.Schedule
		if t.Schedule.NextRunTime != nil {
			next := *t.Schedule.NextRunTime
			s.NextRunTime = &next
		}
		cp.Schedule = &s
	}
	if t.Webhook != nil {
		w := *t.Webhook
		w.AllowedMethods = append([]string(nil), t.Webhook.AllowedMethods...)
		w.ExtractHeaders = append([]string(nil), t.Webhook.ExtractHeaders...)
		cp.Webhook = &w
	}
	if t.Event != nil {
		e := *t.Event
		if t.Event.DataFilters != nil {
			e.DataFilters = make(map[string]any, len(t.Event.DataFilters))
			for k, v := range t.Event.DataFilters {
				e.DataFilters[k] = v
			}
		}
		cp.Event = &e
	}
	if t.Stats.LastExecutedAt != nil {
		at := *t.Stats.LastExecutedAt
		cp.Stats.LastExecutedAt = &at
	}
	return &cp
}

// Validate checks kind-specific required fields.
func (t *Trigger) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("trigger: name is required")
	}
	if strings.TrimSpace(t.Task) == "" {
		return fmt.Errorf("trigger: task is required")
	}
	switch t.Kind {
	case KindScheduled:
		if t.Schedule == nil || t.Schedule.CronExpr == "" {
			return fmt.Errorf("trigger %s: scheduled trigger needs a cron expression", t.Name)
		}
		if _, err := ParseCron(t.Schedule.CronExpr, t.Schedule.Timezone); err != nil {
			return err
		}
	case KindWebhook:
		if t.Webhook == nil || t.Webhook.EndpointPath == "" {
			return fmt.Errorf("trigger %s: webhook trigger needs an endpoint path", t.Name)
		}
		if t.Webhook.RequireAuth && t.Webhook.AuthToken == "" {
			return fmt.Errorf("trigger %s: require_auth set without an auth token", t.Name)
		}
	case KindEvent:
		if t.Event == nil || t.Event.EventType == "" {
			return fmt.Errorf("trigger %s: event trigger needs an event type", t.Name)
		}
	default:
		return fmt.Errorf("trigger %s: unknown kind %q", t.Name, t.Kind)
	}
	return nil
}

// ExecutionStatus classifies one trigger execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionSkipped   ExecutionStatus = "skipped"
)

// Execution is one recorded trigger firing.
type Execution struct {
	ID           string          `json:"id"`
	TriggerID    string          `json:"trigger_id"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Status       ExecutionStatus `json:"status"`
	Error        string          `json:"error,omitempty"`
	RetryAttempt int             `json:"retry_attempt"`
	Result       any             `json:"result,omitempty"`
	TaskParams   map[string]any  `json:"task_params,omitempty"`
}
