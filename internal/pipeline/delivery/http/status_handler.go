package http

import (
	"net/http"

	"sentiment-price-tracker/internal/pipeline/service"
	"sentiment-price-tracker/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StatusHandler serves the operational endpoints next to the pipeline loop.
type StatusHandler struct {
	pipeline *service.PipelineService
	logger   *logger.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(pipeline *service.PipelineService, log *logger.Logger) *StatusHandler {
	return &StatusHandler{pipeline: pipeline, logger: log}
}

// RegisterRoutes registers the handler's routes with the echo instance.
func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/status", h.Status)
}

// Health reports process liveness.
func (h *StatusHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports the current watermark and the last cycle's summary.
func (h *StatusHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.pipeline.Status())
}
