package modelchecker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/memohai/mimic/internal/chat"
	"github.com/memohai/mimic/internal/healthcheck"
)

type fakeLister struct {
	items []chat.ModelStatus
}

func (f *fakeLister) Models() []chat.ModelStatus {
	return f.items
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckerListChecks(t *testing.T) {
	t.Parallel()

	checker := NewChecker(newTestLogger(), &fakeLister{items: []chat.ModelStatus{
		{Role: "completion", Backend: "ollama", Model: "gemma3:27b", State: chat.Loaded, LastUsed: time.Now()},
		{Role: "transcription", Backend: "command", Model: "whisper", State: chat.Unloaded, LastError: "exit status 1"},
	}})

	items := checker.ListChecks(context.Background())
	if len(items) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(items))
	}
	if items[0].Status != healthcheck.StatusOK || items[0].Summary != "Model gemma3:27b is loaded." {
		t.Fatalf("unexpected completion check: %+v", items[0])
	}
	if items[1].Status != healthcheck.StatusWarn || items[1].Detail != "exit status 1" {
		t.Fatalf("unexpected transcription check: %+v", items[1])
	}
}

func TestCheckerMissingCompletion(t *testing.T) {
	t.Parallel()

	items := NewChecker(newTestLogger(), &fakeLister{}).ListChecks(context.Background())
	if len(items) != 1 || items[0].Status != healthcheck.StatusError {
		t.Fatalf("expected a single error check, got %+v", items)
	}
}

func TestCheckerNilLister(t *testing.T) {
	t.Parallel()

	items := NewChecker(newTestLogger(), nil).ListChecks(context.Background())
	if len(items) != 1 || items[0].Status != healthcheck.StatusWarn {
		t.Fatalf("expected warn fallback, got %+v", items)
	}
}
