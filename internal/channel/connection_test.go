package channel

import (
	"errors"
	"testing"
	"time"
)

func TestConnectionTracker(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	tracker := NewConnectionTracker("telegram")
	tracker.now = func() time.Time { return now }

	if status := tracker.ConnectionStatus(); status.Running || !status.UpdatedAt.IsZero() {
		t.Fatalf("unexpected initial status: %+v", status)
	}

	tracker.SetAccount(" mimic_bot ")
	tracker.Mark(false, errors.New("unauthorized"))
	status := tracker.ConnectionStatus()
	if status.Running || status.LastError != "unauthorized" || !status.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected failed status: %+v", status)
	}

	tracker.Mark(true, nil)
	status = tracker.ConnectionStatus()
	if !status.Running || status.LastError != "" || status.Account != "mimic_bot" || status.Transport != "telegram" {
		t.Fatalf("unexpected running status: %+v", status)
	}
}
