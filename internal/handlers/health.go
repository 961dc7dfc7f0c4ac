package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/mimic/internal/healthcheck"
)

// HealthHandler serves the combined runtime checks.
type HealthHandler struct {
	logger   *slog.Logger
	checkers []healthcheck.Checker
}

func NewHealthHandler(log *slog.Logger, checkers ...healthcheck.Checker) *HealthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HealthHandler{
		logger:   log.With(slog.String("handler", "health")),
		checkers: checkers,
	}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
}

// Health responds 503 when any check reports an error.
func (h *HealthHandler) Health(c echo.Context) error {
	report := healthcheck.Evaluate(c.Request().Context(), h.checkers...)
	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
		h.logger.Warn("health check failed", slog.Int("checks", len(report.Checks)))
	}
	return c.JSON(code, report)
}
