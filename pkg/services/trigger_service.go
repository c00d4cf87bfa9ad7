package services

import (
	"context"
	"errors"

	"github.com/codeready-toolchain/scout/pkg/trigger"
)

// TriggerService fronts the trigger manager for the HTTP API, translating
// its errors into the service error vocabulary.
type TriggerService struct {
	manager *trigger.Manager
}

// NewTriggerService wraps a trigger manager.
func NewTriggerService(manager *trigger.Manager) *TriggerService {
	return &TriggerService{manager: manager}
}

// Create registers and persists a trigger.
func (s *TriggerService) Create(ctx context.Context, tr *trigger.Trigger) error {
	if err := tr.Validate(); err != nil {
		return NewValidationError("trigger", err.Error())
	}
	return s.manager.Create(ctx, tr)
}

// Get fetches one trigger.
func (s *TriggerService) Get(id string) (*trigger.Trigger, error) {
	tr, err := s.manager.Get(id)
	if err != nil {
		return nil, mapTriggerErr(err)
	}
	return tr, nil
}

// List returns all triggers.
func (s *TriggerService) List() []*trigger.Trigger {
	return s.manager.List()
}

// Pause deactivates firing while keeping registrations.
func (s *TriggerService) Pause(ctx context.Context, id string) error {
	return mapTriggerErr(s.manager.Pause(ctx, id))
}

// Resume reactivates a paused trigger.
func (s *TriggerService) Resume(ctx context.Context, id string) error {
	return mapTriggerErr(s.manager.Resume(ctx, id))
}

// Disable turns a trigger off until explicitly resumed.
func (s *TriggerService) Disable(ctx context.Context, id string) error {
	return mapTriggerErr(s.manager.Disable(ctx, id))
}

// Delete unregisters and removes a trigger.
func (s *TriggerService) Delete(ctx context.Context, id string) error {
	return mapTriggerErr(s.manager.Delete(ctx, id))
}

// History returns recent executions, newest first.
func (s *TriggerService) History(id string) ([]*trigger.Execution, error) {
	if _, err := s.manager.Get(id); err != nil {
		return nil, mapTriggerErr(err)
	}
	return s.manager.History(id), nil
}

// HandleWebhook routes an incoming webhook request.
func (s *TriggerService) HandleWebhook(ctx context.Context, req trigger.Request) *trigger.WebhookResponse {
	return s.manager.HandleWebhook(ctx, req)
}

// Emit delivers an application event to event triggers.
func (s *TriggerService) Emit(eventType string, data map[string]any, source string) {
	s.manager.Emit(eventType, data, source)
}

func mapTriggerErr(err error) error {
	if errors.Is(err, trigger.ErrTriggerNotFound) {
		return ErrNotFound
	}
	return err
}
