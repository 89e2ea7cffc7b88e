// Package api contains the HTTP handlers for the onboarding service
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"

	"socialpulse/backend/internal/orchestrator"
	"socialpulse/backend/internal/repository"
	"socialpulse/backend/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Controller *orchestrator.Controller
	Store      repository.Store
}

// NewServer creates a new Server.
func NewServer(controller *orchestrator.Controller, store repository.Store) *Server {
	return &Server{Controller: controller, Store: store}
}

// RegisterRoutes mounts the onboarding API under the given group.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.GET("/status", s.GetStatus)
	g.POST("/steps/advance", s.AdvanceStep)
	g.POST("/steps/previous", s.PreviousStep)
	g.POST("/steps/restart", s.RestartWorkflow)
	g.GET("/connections", s.ListConnections)
	g.PUT("/connections/:platform", s.PutConnection)
	g.POST("/connections/refresh", s.RefreshConnections)
	g.POST("/handshake", s.StartHandshake)
	g.DELETE("/handshake", s.StopHandshake)
	g.GET("/insights", s.ListInsights)
	g.GET("/actionables", s.ListActionables)
}

// GetStatus returns the workflow state snapshot for the UI
// (GET /api/v1/status)
func (s *Server) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Controller.Status())
}

// AdvanceStep runs the current step's action and moves forward
// (POST /api/v1/steps/advance)
func (s *Server) AdvanceStep(c echo.Context) error {
	ctx := c.Request().Context()

	if err := s.Controller.Advance(ctx); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrWorkflowComplete):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, orchestrator.ErrStepNotReady):
			return echo.NewHTTPError(http.StatusPreconditionFailed, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
	}
	return c.JSON(http.StatusOK, s.Controller.Status())
}

// PreviousStep moves back one step without side effects
// (POST /api/v1/steps/previous)
func (s *Server) PreviousStep(c echo.Context) error {
	s.Controller.Previous()
	return c.JSON(http.StatusOK, s.Controller.Status())
}

// RestartWorkflow resets the workflow to the first step
// (POST /api/v1/steps/restart)
func (s *Server) RestartWorkflow(c echo.Context) error {
	s.Controller.Restart()
	return c.JSON(http.StatusOK, s.Controller.Status())
}

// ListConnections returns the session's platform connections
// (GET /api/v1/connections)
func (s *Server) ListConnections(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Controller.Connections())
}

// ConnectionUpdate is the request body for PutConnection.
type ConnectionUpdate struct {
	ProfileURL string            `json:"profile_url"`
	HasAccount models.HasAccount `json:"has_account"`
}

// PutConnection records the user's answer for one platform
// (PUT /api/v1/connections/:platform)
func (s *Server) PutConnection(c echo.Context) error {
	var update ConnectionUpdate
	if err := c.Bind(&update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	switch update.HasAccount {
	case models.HasAccountYes, models.HasAccountNo, models.HasAccountUnknown:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "has_account must be yes, no or unknown")
	}

	platform := models.Platform(c.Param("platform"))
	if err := s.Controller.UpdateConnection(platform, update.ProfileURL, update.HasAccount); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, s.Controller.Connections())
}

// RefreshConnections re-queries connection state from the provider
// (POST /api/v1/connections/refresh)
func (s *Server) RefreshConnections(c echo.Context) error {
	s.Controller.RefreshConnections(c.Request().Context())
	return c.JSON(http.StatusOK, s.Controller.Connections())
}

// StartHandshake opens the external authorization flow
// (POST /api/v1/handshake)
func (s *Server) StartHandshake(c echo.Context) error {
	if err := s.Controller.StartHandshake(c.Request().Context()); err != nil {
		if errors.Is(err, orchestrator.ErrLimitReached) {
			return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusAccepted, s.Controller.Status())
}

// StopHandshake abandons the in-flight authorization attempt
// (DELETE /api/v1/handshake)
func (s *Server) StopHandshake(c echo.Context) error {
	s.Controller.StopHandshake()
	return c.JSON(http.StatusOK, s.Controller.Status())
}

// ListInsights returns generated insights, newest first
// (GET /api/v1/insights)
func (s *Server) ListInsights(c echo.Context) error {
	ctx := c.Request().Context()

	limit, offset, err := bindPagination(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	insights, err := s.Store.ListInsights(ctx, s.Controller.Username(), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if insights == nil {
		insights = []*models.Insight{}
	}
	return c.JSON(http.StatusOK, insights)
}

// ListActionables returns suggested follow-up actions, newest first
// (GET /api/v1/actionables)
func (s *Server) ListActionables(c echo.Context) error {
	ctx := c.Request().Context()

	limit, offset, err := bindPagination(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actionables, err := s.Store.ListActionables(ctx, s.Controller.Username(), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if actionables == nil {
		actionables = []*models.Actionable{}
	}
	return c.JSON(http.StatusOK, actionables)
}

// bindPagination extracts limit and offset query parameters with defaults.
func bindPagination(c echo.Context) (limit, offset int, err error) {
	limit, offset = 50, 0
	params := c.QueryParams()
	if err := runtime.BindQueryParameter("form", true, false, "limit", params, &limit); err != nil {
		return 0, 0, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", params, &offset); err != nil {
		return 0, 0, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset, nil
}
