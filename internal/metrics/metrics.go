// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InboundMessagesTotal counts inbound messages by chat type and decision.
	InboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_inbound_messages_total",
			Help: "Inbound messages by chat type and access decision",
		},
		[]string{"chat_type", "decision"},
	)

	// BatchesFlushedTotal counts flushed batches by trigger.
	BatchesFlushedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_batches_flushed_total",
			Help: "Debounced batches handed to processing",
		},
		[]string{"trigger"},
	)

	// BatchSize tracks the number of messages per flushed batch.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mimic_batch_size_messages",
			Help:    "Messages per flushed batch",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)

	// PendingBatches tracks batches waiting for their quiescence timer.
	PendingBatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mimic_pending_batches",
			Help: "Batches waiting for their flush timer",
		},
	)

	// ActiveLanes tracks per-conversation processing lanes with queued work.
	ActiveLanes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mimic_active_lanes",
			Help: "Conversation lanes currently processing batches",
		},
	)

	// CompletionDuration tracks completion backend latency.
	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mimic_completion_duration_seconds",
			Help:    "Completion backend call duration",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"model", "status"},
	)

	// TokensTotal tracks tokens reported by the completion backend.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// TranscriptionsTotal counts transcription attempts by outcome.
	TranscriptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_transcriptions_total",
			Help: "Audio transcriptions by backend and outcome",
		},
		[]string{"backend", "status"},
	)

	// ModelUnloadsTotal counts idle unloads of demand-loaded models.
	ModelUnloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_model_unloads_total",
			Help: "Idle unloads of demand-loaded models",
		},
		[]string{"model"},
	)

	// ExtractedPartsTotal counts content parts produced by media kind.
	ExtractedPartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_extracted_parts_total",
			Help: "Content parts extracted from messages",
		},
		[]string{"kind"},
	)

	// DocumentCacheTotal counts document cache lookups.
	DocumentCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_document_cache_total",
			Help: "Document render/extraction cache lookups",
		},
		[]string{"kind", "result"},
	)

	// RepliesTotal counts reply attempts by outcome.
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_replies_total",
			Help: "Replies by outcome",
		},
		[]string{"status"},
	)
)

// RecordCompletion records one completion call.
func RecordCompletion(model, status string, duration float64, tokensIn, tokensOut int) {
	CompletionDuration.WithLabelValues(model, status).Observe(duration)
	if tokensIn > 0 {
		TokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		TokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
	}
}

// RecordFlush records a flushed batch.
func RecordFlush(trigger string, size int) {
	BatchesFlushedTotal.WithLabelValues(trigger).Inc()
	BatchSize.Observe(float64(size))
}

// RecordInbound records an inbound message decision.
func RecordInbound(chatType, decision string) {
	InboundMessagesTotal.WithLabelValues(chatType, decision).Inc()
}

// RecordTranscription records a transcription attempt.
func RecordTranscription(backend, status string) {
	TranscriptionsTotal.WithLabelValues(backend, status).Inc()
}

// RecordDocumentCache records a cache hit or miss.
func RecordDocumentCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DocumentCacheTotal.WithLabelValues(kind, result).Inc()
}

// RecordReply records a reply outcome.
func RecordReply(status string) {
	RepliesTotal.WithLabelValues(status).Inc()
}
