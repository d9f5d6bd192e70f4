package http

import (
	"errors"
	"net/http"

	"insidertrack/internal/ingestor/dto"
	"insidertrack/internal/ingestor/repository"
	"insidertrack/internal/ingestor/service"
	"insidertrack/pkg/logger"

	"github.com/labstack/echo/v4"
)

// TriggerAPI marks runs started through the admin API.
const TriggerAPI = "api"

// RunHandler handles HTTP requests for ingestion runs.
type RunHandler struct {
	ingestionService service.IngestionService
	queryService     service.QueryService
	logger           *logger.Logger
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(ingestionService service.IngestionService, queryService service.QueryService, logger *logger.Logger) *RunHandler {
	return &RunHandler{ingestionService: ingestionService, queryService: queryService, logger: logger}
}

// RegisterRoutes registers the run routes to the Echo group.
func (h *RunHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/sources/:source/runs", h.TriggerRun)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
}

// TriggerRun godoc
// @Summary Run one source
// @Description Runs one source synchronously and returns its summary. A run that failed upstream still answers 200 with status FAILED.
// @Tags runs
// @Accept  json
// @Produce  json
// @Param   source  path    string                  true    "Source name"
// @Param   options body    dto.TriggerRunRequest   false   "Run options"
// @Success 200 {object} dto.RunSummary
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /sources/{source}/runs [post]
func (h *RunHandler) TriggerRun(c echo.Context) error {
	var req dto.TriggerRunRequest
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request payload"})
	}

	source := c.Param("source")
	summary, err := h.ingestionService.RunIngestion(c.Request().Context(), source, dto.RunOptions{
		Trigger:      TriggerAPI,
		Upsert:       req.Upsert,
		MaxDocuments: req.MaxDocuments,
		RecentWindow: req.RecentWindow,
	})
	if err != nil {
		if errors.Is(err, service.ErrUnknownSource) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		}
		h.logger.Error("Failed to run ingestion", logger.ErrorField(err), logger.StringField("source", source))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to run ingestion"})
	}
	return c.JSON(http.StatusOK, summary)
}

// ListRuns godoc
// @Summary List ingestion runs
// @Description Get recorded runs, newest first
// @Tags runs
// @Produce  json
// @Param   source  query   string  false   "Source name"
// @Param   limit   query   int     false   "Page size"
// @Param   offset  query   int     false   "Page offset"
// @Success 200 {object} dto.ListResponse[dto.RunResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /runs [get]
func (h *RunHandler) ListRuns(c echo.Context) error {
	var req dto.ListRunsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid query parameters"})
	}

	runs, err := h.queryService.ListRuns(c.Request().Context(), req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to list runs"})
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRun godoc
// @Summary Get a run by ID
// @Tags runs
// @Produce  json
// @Param   id  path    string  true    "Run ID"
// @Success 200 {object} dto.RunResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /runs/{id} [get]
func (h *RunHandler) GetRun(c echo.Context) error {
	run, err := h.queryService.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Run not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, run)
}
