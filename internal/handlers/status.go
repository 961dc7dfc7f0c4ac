package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/mimic/internal/aggregator"
	"github.com/memohai/mimic/internal/chat"
)

// QueueStats reports pending and running batches.
type QueueStats interface {
	Stats() aggregator.Stats
}

// ModelLister reports tracked model residency.
type ModelLister interface {
	Models() []chat.ModelStatus
}

// StatusInfo is static process information shown on /status.
type StatusInfo struct {
	Instance string
	Version  string
	Started  time.Time
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Instance string             `json:"instance"`
	Version  string             `json:"version"`
	Uptime   string             `json:"uptime"`
	Queue    aggregator.Stats   `json:"queue"`
	Models   []chat.ModelStatus `json:"models"`
}

type StatusHandler struct {
	logger *slog.Logger
	info   StatusInfo
	queue  QueueStats
	models ModelLister
}

func NewStatusHandler(log *slog.Logger, info StatusInfo, queue QueueStats, models ModelLister) *StatusHandler {
	if log == nil {
		log = slog.Default()
	}
	if info.Started.IsZero() {
		info.Started = time.Now()
	}
	return &StatusHandler{
		logger: log.With(slog.String("handler", "status")),
		info:   info,
		queue:  queue,
		models: models,
	}
}

func (h *StatusHandler) Register(e *echo.Echo) {
	e.GET("/status", h.Status)
}

func (h *StatusHandler) Status(c echo.Context) error {
	resp := StatusResponse{
		Instance: h.info.Instance,
		Version:  h.info.Version,
		Uptime:   time.Since(h.info.Started).Truncate(time.Second).String(),
		Models:   []chat.ModelStatus{},
	}
	if h.queue != nil {
		resp.Queue = h.queue.Stats()
	}
	if h.models != nil {
		resp.Models = h.models.Models()
	}
	return c.JSON(http.StatusOK, resp)
}
