package http

import (
	"net/http"

	"insidertrack/internal/ingestor/service"
	"insidertrack/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services groups what the admin API serves.
type Services struct {
	Ingestion service.IngestionService
	Query     service.QueryService
	Audit     service.AuditService
}

// NewServer builds the echo instance with every admin route registered
// under /api/v1, plus /metrics and /healthz at the root.
func NewServer(svcs Services, log *logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewRequestValidator()

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiV1 := e.Group("/api/v1")
	NewRunHandler(svcs.Ingestion, svcs.Query, log).RegisterRoutes(apiV1)
	NewTradeHandler(svcs.Query, svcs.Audit, log).RegisterRoutes(apiV1.Group("/trades"))
	NewAuditHandler(svcs.Audit, log).RegisterRoutes(apiV1.Group("/audit"))

	return e
}
