package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDocumentCache(t *testing.T) {
	before := testutil.ToFloat64(DocumentCacheTotal.WithLabelValues("pdf", "hit"))
	RecordDocumentCache("pdf", true)
	RecordDocumentCache("pdf", false)
	if got := testutil.ToFloat64(DocumentCacheTotal.WithLabelValues("pdf", "hit")); got != before+1 {
		t.Fatalf("hit counter = %v, want %v", got, before+1)
	}
}

func TestRecordCompletionSkipsZeroTokens(t *testing.T) {
	before := testutil.ToFloat64(TokensTotal.WithLabelValues("test-model", "out"))
	RecordCompletion("test-model", "ok", 1.5, 10, 0)
	if got := testutil.ToFloat64(TokensTotal.WithLabelValues("test-model", "out")); got != before {
		t.Fatalf("out tokens changed for zero usage: %v", got)
	}
	if got := testutil.ToFloat64(TokensTotal.WithLabelValues("test-model", "in")); got < 10 {
		t.Fatalf("in tokens not recorded: %v", got)
	}
}
