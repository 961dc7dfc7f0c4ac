package modelchecker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/mimic/internal/chat"
	"github.com/memohai/mimic/internal/healthcheck"
)

const checkTypeModel = "model.backend"

// ModelLister reports tracked model residency.
type ModelLister interface {
	Models() []chat.ModelStatus
}

// Checker evaluates completion and transcription backend health.
type Checker struct {
	logger *slog.Logger
	models ModelLister
}

// NewChecker creates a model health checker.
func NewChecker(log *slog.Logger, models ModelLister) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger: log.With(slog.String("checker", "healthcheck_models")),
		models: models,
	}
}

// ListChecks reports one item per tracked model. The last call outcome
// decides the status: a failure warns, since the next call may succeed.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if ctx != nil && ctx.Err() != nil {
		return []healthcheck.CheckResult{}
	}
	if c.models == nil {
		c.logger.Warn("model healthcheck dependency is unavailable")
		return []healthcheck.CheckResult{
			{
				ID:      checkTypeModel + ".service",
				Type:    checkTypeModel,
				Status:  healthcheck.StatusWarn,
				Summary: "Model checker service is not available.",
			},
		}
	}
	statuses := c.models.Models()
	hasCompletion := false
	checks := make([]healthcheck.CheckResult, 0, len(statuses)+1)
	for _, status := range statuses {
		if status.Role == "completion" {
			hasCompletion = true
		}
		item := healthcheck.CheckResult{
			ID:       checkTypeModel + "." + status.Role,
			Type:     checkTypeModel,
			Subtitle: status.Backend + " " + status.Model,
			Status:   healthcheck.StatusOK,
			Summary:  fmt.Sprintf("Model %s is %s.", status.Model, status.State),
			Metadata: map[string]any{
				"role":    status.Role,
				"backend": status.Backend,
				"state":   string(status.State),
				"unloads": status.Unloads,
			},
		}
		if !status.LastUsed.IsZero() {
			item.Metadata["last_used"] = status.LastUsed.UTC().Format("2006-01-02T15:04:05Z")
		}
		if lastErr := strings.TrimSpace(status.LastError); lastErr != "" {
			item.Status = healthcheck.StatusWarn
			item.Summary = fmt.Sprintf("Last %s call to %s failed.", status.Role, status.Model)
			item.Detail = lastErr
		}
		checks = append(checks, item)
	}
	if !hasCompletion {
		checks = append(checks, healthcheck.CheckResult{
			ID:      checkTypeModel + ".completion",
			Type:    checkTypeModel,
			Status:  healthcheck.StatusError,
			Summary: "No completion backend is configured.",
		})
	}
	return checks
}
