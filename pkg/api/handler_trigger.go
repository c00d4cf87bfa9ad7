package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/scout/pkg/trigger"
)

// createTriggerHandler handles POST /api/v1/triggers.
func (s *Server) createTriggerHandler(c *echo.Context) error {
	var tr trigger.Trigger
	if err := c.Bind(&tr); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	if err := s.triggerService.Create(c.Request().Context(), &tr); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, sanitizeTrigger(&tr))
}

// listTriggersHandler handles GET /api/v1/triggers.
func (s *Server) listTriggersHandler(c *echo.Context) error {
	triggers := s.triggerService.List()
	out := make([]*trigger.Trigger, 0, len(triggers))
	for _, tr := range triggers {
		out = append(out, sanitizeTrigger(tr))
	}
	return c.JSON(http.StatusOK, out)
}

// getTriggerHandler handles GET /api/v1/triggers/:id.
func (s *Server) getTriggerHandler(c *echo.Context) error {
	tr, err := s.triggerService.Get(c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, sanitizeTrigger(tr))
}

// deleteTriggerHandler handles DELETE /api/v1/triggers/:id.
func (s *Server) deleteTriggerHandler(c *echo.Context) error {
	if err := s.triggerService.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// pauseTriggerHandler handles POST /api/v1/triggers/:id/pause.
func (s *Server) pauseTriggerHandler(c *echo.Context) error {
	return s.transitionTrigger(c, s.triggerService.Pause)
}

// resumeTriggerHandler handles POST /api/v1/triggers/:id/resume.
func (s *Server) resumeTriggerHandler(c *echo.Context) error {
	return s.transitionTrigger(c, s.triggerService.Resume)
}

// disableTriggerHandler handles POST /api/v1/triggers/:id/disable.
func (s *Server) disableTriggerHandler(c *echo.Context) error {
	return s.transitionTrigger(c, s.triggerService.Disable)
}

func (s *Server) transitionTrigger(c *echo.Context, fn func(ctx context.Context, id string) error) error {
	id := c.Param("id")
	if err := fn(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	tr, err := s.triggerService.Get(id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, sanitizeTrigger(tr))
}

// triggerHistoryHandler handles GET /api/v1/triggers/:id/history.
func (s *Server) triggerHistoryHandler(c *echo.Context) error {
	execs, err := s.triggerService.History(c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, execs)
}

// sanitizeTrigger returns a copy safe for API responses: webhook auth
// tokens never leave the server.
func sanitizeTrigger(tr *trigger.Trigger) *trigger.Trigger {
	if tr.Webhook == nil || tr.Webhook.AuthToken == "" {
		return tr
	}
	clone := *tr
	webhook := *tr.Webhook
	webhook.AuthToken = "***"
	clone.Webhook = &webhook
	return &clone
}
