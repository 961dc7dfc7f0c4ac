package healthcheck

import (
	"context"
	"time"
)

// Report is the combined result of several checkers.
type Report struct {
	Status    string        `json:"status"`
	CheckedAt time.Time     `json:"checked_at"`
	Checks    []CheckResult `json:"checks"`
}

// Healthy reports whether no check failed.
func (r Report) Healthy() bool {
	return r.Status != StatusError
}

// Evaluate runs every checker in order and folds the results. The overall
// status is the worst individual status; an empty report is ok.
func Evaluate(ctx context.Context, checkers ...Checker) Report {
	if ctx == nil {
		ctx = context.Background()
	}
	report := Report{
		Status:    StatusOK,
		CheckedAt: time.Now().UTC(),
		Checks:    []CheckResult{},
	}
	for _, checker := range checkers {
		if checker == nil {
			continue
		}
		for _, item := range checker.ListChecks(ctx) {
			report.Checks = append(report.Checks, item)
			if severity(item.Status) > severity(report.Status) {
				report.Status = item.Status
			}
		}
	}
	return report
}

func severity(status string) int {
	switch status {
	case StatusOK:
		return 0
	case StatusUnknown:
		return 1
	case StatusWarn:
		return 2
	case StatusError:
		return 3
	default:
		return 1
	}
}
