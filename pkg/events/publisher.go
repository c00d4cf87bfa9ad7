package events

import "github.com/codeready-toolchain/scout/pkg/models"

// Publisher is the typed facade over the bus used by services and the queue.
// Run status changes go to both the run's channel and the global runs channel
// so list pages update without per-run subscriptions.
type Publisher struct {
	bus *Bus
}

// NewPublisher wraps a bus.
func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{bus: bus}
}

// Bus exposes the underlying bus for subscribers.
func (p *Publisher) Bus() *Bus { return p.bus }

// PublishRunStatus announces a run lifecycle transition.
func (p *Publisher) PublishRunStatus(run *models.Run) {
	payload := map[string]any{
		"run_id": run.ID,
		"status": string(run.Status),
	}
	if run.Route != "" {
		payload["route"] = run.Route
	}
	if run.Error != "" {
		payload["error"] = run.Error
	}
	p.bus.Publish(RunChannel(run.ID), TypeRunStatus, payload)
	p.bus.Publish(GlobalRunsChannel, TypeRunStatus, payload)
}

// PublishNodeProgress announces a node-level orchestrator event for one run.
func (p *Publisher) PublishNodeProgress(runID, event string, detail map[string]any) {
	payload := map[string]any{
		"run_id": runID,
		"event":  event,
	}
	for k, v := range detail {
		payload[k] = v
	}
	p.bus.Publish(RunChannel(runID), TypeNodeProgress, payload)
}

// PublishRunReport announces the availability of a run's final report.
func (p *Publisher) PublishRunReport(runID, report string) {
	p.bus.Publish(RunChannel(runID), TypeRunReport, map[string]any{
		"run_id":       runID,
		"final_report": report,
	})
}

// PublishTriggerFired announces a trigger execution outcome.
func (p *Publisher) PublishTriggerFired(triggerID, name string, success bool, errMsg string) {
	payload := map[string]any{
		"trigger_id": triggerID,
		"name":       name,
		"success":    success,
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	p.bus.Publish(TriggersChannel, TypeTriggerFired, payload)
}
