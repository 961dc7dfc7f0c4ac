package transportchecker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/mimic/internal/channel"
	"github.com/memohai/mimic/internal/healthcheck"
)

const checkTypeTransportConnection = "transport.connection"

// Checker evaluates chat transport connection health.
type Checker struct {
	logger    *slog.Logger
	observers []channel.ConnectionObserver
}

// NewChecker creates a transport health checker.
func NewChecker(log *slog.Logger, observers ...channel.ConnectionObserver) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:    log.With(slog.String("checker", "healthcheck_transport")),
		observers: observers,
	}
}

// ListChecks reports one item per observed transport.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if ctx == nil {
		ctx = context.Background()
	}
	// Observers are context-free; best effort early cancellation guard.
	if err := ctx.Err(); err != nil {
		return []healthcheck.CheckResult{}
	}
	if len(c.observers) == 0 {
		c.logger.Warn("transport healthcheck has no observers")
		return []healthcheck.CheckResult{
			{
				ID:      checkTypeTransportConnection + ".service",
				Type:    checkTypeTransportConnection,
				Status:  healthcheck.StatusWarn,
				Summary: "Transport checker has nothing to observe.",
			},
		}
	}

	checks := make([]healthcheck.CheckResult, 0, len(c.observers))
	for idx, observer := range c.observers {
		if observer == nil {
			continue
		}
		status := observer.ConnectionStatus()
		name := strings.TrimSpace(status.Transport)
		if name == "" {
			name = fmt.Sprintf("unknown_%d", idx+1)
		}
		item := healthcheck.CheckResult{
			ID:       checkTypeTransportConnection + "." + name,
			Type:     checkTypeTransportConnection,
			Subtitle: buildSubtitle(name, status.Account),
			Status:   healthcheck.StatusError,
			Summary:  fmt.Sprintf("Transport %s is not connected.", name),
			Metadata: map[string]any{
				"transport": name,
				"running":   status.Running,
			},
		}
		if !status.UpdatedAt.IsZero() {
			item.Metadata["updated_at"] = status.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		switch {
		case status.Running:
			item.Status = healthcheck.StatusOK
			item.Summary = fmt.Sprintf("Transport %s is connected.", name)
		case strings.TrimSpace(status.LastError) != "":
			item.Summary = fmt.Sprintf("Transport %s connection failed.", name)
			item.Detail = strings.TrimSpace(status.LastError)
		case status.UpdatedAt.IsZero():
			item.Status = healthcheck.StatusUnknown
			item.Summary = fmt.Sprintf("Transport %s has not started.", name)
		}
		checks = append(checks, item)
	}
	return checks
}

func buildSubtitle(name, account string) string {
	account = strings.TrimSpace(account)
	if account == "" {
		return name
	}
	return name + " (@" + account + ")"
}
