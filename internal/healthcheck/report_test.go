package healthcheck

import (
	"context"
	"testing"
)

type testChecker struct {
	items []CheckResult
}

func (c *testChecker) ListChecks(context.Context) []CheckResult {
	return c.items
}

func TestEvaluateTakesWorstStatus(t *testing.T) {
	t.Parallel()

	report := Evaluate(context.Background(),
		&testChecker{items: []CheckResult{{ID: "transport.telegram", Status: StatusOK}}},
		nil,
		&testChecker{items: []CheckResult{
			{ID: "model.completion", Status: StatusWarn},
			{ID: "model.transcription", Status: StatusOK},
		}},
	)
	if len(report.Checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(report.Checks))
	}
	if report.Status != StatusWarn {
		t.Fatalf("unexpected status: %s", report.Status)
	}
	if !report.Healthy() {
		t.Fatal("warnings must not fail the report")
	}
	if report.Checks[0].ID != "transport.telegram" {
		t.Fatalf("checks must keep checker order, got %s", report.Checks[0].ID)
	}
}

func TestEvaluateErrorIsUnhealthy(t *testing.T) {
	t.Parallel()

	report := Evaluate(context.Background(), &testChecker{items: []CheckResult{
		{ID: "a", Status: StatusError},
		{ID: "b", Status: StatusWarn},
	}})
	if report.Status != StatusError || report.Healthy() {
		t.Fatalf("expected error report, got %+v", report)
	}
}

func TestEvaluateEmpty(t *testing.T) {
	t.Parallel()

	report := Evaluate(context.Background())
	if report.Status != StatusOK {
		t.Fatalf("unexpected status: %s", report.Status)
	}
	if report.Checks == nil {
		t.Fatal("checks must encode as an empty list")
	}
}
