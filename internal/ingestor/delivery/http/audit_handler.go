package http

import (
	"net/http"

	"insidertrack/internal/ingestor/service"
	"insidertrack/pkg/logger"

	"github.com/labstack/echo/v4"
)

const defaultAuditSample = 1000

type auditRequest struct {
	Sample int  `query:"sample" validate:"gte=0,lte=100000"`
	Apply  bool `query:"apply"`
}

// AuditHandler exposes the store audit.
type AuditHandler struct {
	auditService service.AuditService
	logger       *logger.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(auditService service.AuditService, logger *logger.Logger) *AuditHandler {
	return &AuditHandler{auditService: auditService, logger: logger}
}

// RegisterRoutes registers the audit routes. GET is always a dry run;
// POST honours apply.
func (h *AuditHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.PreviewAudit)
	g.POST("", h.RunAudit)
}

// PreviewAudit godoc
// @Summary Audit stored trades
// @Description Re-scores the newest trades and reports the findings without changing anything
// @Tags audit
// @Produce  json
// @Param   sample  query   int false   "Number of trades to audit"
// @Success 200 {object} dto.AuditReport
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /audit [get]
func (h *AuditHandler) PreviewAudit(c echo.Context) error {
	return h.audit(c, false)
}

// RunAudit godoc
// @Summary Audit and correct stored trades
// @Description Re-scores the newest trades. With apply=true changed statuses are written back.
// @Tags audit
// @Produce  json
// @Param   sample  query   int     false   "Number of trades to audit"
// @Param   apply   query   bool    false   "Write corrected statuses"
// @Success 200 {object} dto.AuditReport
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /audit [post]
func (h *AuditHandler) RunAudit(c echo.Context) error {
	return h.audit(c, true)
}

func (h *AuditHandler) audit(c echo.Context, allowApply bool) error {
	var req auditRequest
	// echo's default Bind skips the query string on POST.
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid query parameters"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid query parameters"})
	}
	if req.Sample == 0 {
		req.Sample = defaultAuditSample
	}

	report, err := h.auditService.AuditStore(c.Request().Context(), req.Sample, allowApply && req.Apply)
	if err != nil {
		h.logger.Error("Failed to audit store", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to audit store"})
	}
	return c.JSON(http.StatusOK, report)
}
