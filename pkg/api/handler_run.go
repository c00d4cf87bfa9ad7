package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/scout/pkg/models"
)

// createRunHandler handles POST /api/v1/runs.
func (s *Server) createRunHandler(c *echo.Context) error {
	var req models.CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.UserID == "" {
		req.UserID = extractUser(c)
	}

	run, err := s.runService.Create(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, run)
}

// listRunsHandler handles GET /api/v1/runs.
func (s *Server) listRunsHandler(c *echo.Context) error {
	filters := models.RunFilters{Limit: 50}

	if v := c.QueryParam("status"); v != "" {
		switch status := models.RunStatus(v); status {
		case models.RunStatusPending, models.RunStatusRunning, models.RunStatusPaused,
			models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled:
			filters.Status = status
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status filter: "+v)
		}
	}
	filters.UserID = c.QueryParam("user_id")
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			filters.Limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	resp, err := s.runService.List(c.Request().Context(), filters)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// getRunHandler handles GET /api/v1/runs/:id.
func (s *Server) getRunHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	run, err := s.runService.Get(c.Request().Context(), runID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, run)
}

// cancelRunHandler handles POST /api/v1/runs/:id/cancel.
func (s *Server) cancelRunHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	run, err := s.runService.Cancel(c.Request().Context(), runID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, run)
}

// resumeRunRequest is the body for resuming a paused run: the report as
// reviewed by the human, possibly edited.
type resumeRunRequest struct {
	Reviewed string `json:"reviewed"`
}

// resumeRunHandler handles POST /api/v1/runs/:id/resume.
func (s *Server) resumeRunHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	var req resumeRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	run, err := s.runService.Resume(c.Request().Context(), runID, req.Reviewed)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, run)
}
