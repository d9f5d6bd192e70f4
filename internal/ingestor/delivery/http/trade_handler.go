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

// TradeHandler handles HTTP requests for stored trades.
type TradeHandler struct {
	queryService service.QueryService
	auditService service.AuditService
	logger       *logger.Logger
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(queryService service.QueryService, auditService service.AuditService, logger *logger.Logger) *TradeHandler {
	return &TradeHandler{queryService: queryService, auditService: auditService, logger: logger}
}

// RegisterRoutes registers the trade routes to the Echo group.
func (h *TradeHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.ListTrades)
	g.POST("/validate", h.ValidateTrade)
	g.GET("/:filing_id", h.GetTrade)
}

// ListTrades godoc
// @Summary List trades
// @Description Get stored trades, most recent trade date first. BLOCKED trades are left out unless include_blocked=true.
// @Tags trades
// @Produce  json
// @Param   ticker          query   string  false   "Ticker"
// @Param   trader          query   string  false   "Trader name"
// @Param   trade_type      query   string  false   "Trade type"
// @Param   signal          query   string  false   "Signal"
// @Param   source          query   string  false   "Source name"
// @Param   status          query   string  false   "Verification status"
// @Param   include_blocked query   bool    false   "Include BLOCKED trades"
// @Param   limit           query   int     false   "Page size"
// @Param   offset          query   int     false   "Page offset"
// @Success 200 {object} dto.ListResponse[entity.InsiderTrade]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /trades [get]
func (h *TradeHandler) ListTrades(c echo.Context) error {
	var req dto.ListTradesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid query parameters"})
	}

	trades, err := h.queryService.ListTrades(c.Request().Context(), req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to list trades"})
	}
	return c.JSON(http.StatusOK, trades)
}

// GetTrade godoc
// @Summary Get a trade by filing ID
// @Tags trades
// @Produce  json
// @Param   filing_id   path    string  true    "Filing ID"
// @Success 200 {object} entity.InsiderTrade
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /trades/{filing_id} [get]
func (h *TradeHandler) GetTrade(c echo.Context) error {
	trade, err := h.queryService.GetTrade(c.Request().Context(), c.Param("filing_id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Trade not found"})
		}
		h.logger.Error("Failed to get trade", logger.ErrorField(err), logger.StringField("filing_id", c.Param("filing_id")))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to get trade"})
	}
	return c.JSON(http.StatusOK, trade)
}

// ValidateTrade godoc
// @Summary Validate a raw trade
// @Description Normalizes and scores a raw trade without storing it
// @Tags trades
// @Accept  json
// @Produce  json
// @Param   trade   body    dto.ValidateTradeRequest    true    "Raw trade"
// @Success 200 {object} dto.ValidateTradeResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /trades/validate [post]
func (h *TradeHandler) ValidateTrade(c echo.Context) error {
	var req dto.ValidateTradeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request payload"})
	}

	resp, err := h.auditService.ValidateRaw(req.Trade, req.Source)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}
