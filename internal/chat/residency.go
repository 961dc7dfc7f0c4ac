package chat

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/memohai/mimic/internal/metrics"
)

const (
	roleCompletion    = "completion"
	roleTranscription = "transcription"
)

type residentModel struct {
	role     string
	backend  string
	model    string
	state    Residency
	unloads  int
	lastErr  string
	unloader Unloader
}

// residency tracks demand-loaded models against one shared idle clock.
// Expiry is evaluated before each use; nothing runs in the background.
type residency struct {
	logger  *slog.Logger
	idle    time.Duration
	now     func() time.Time
	mu      sync.Mutex
	lastUse time.Time
	models  map[string]*residentModel
}

func newResidency(log *slog.Logger, idle time.Duration, now func() time.Time) *residency {
	if now == nil {
		now = time.Now
	}
	return &residency{
		logger: log,
		idle:   idle,
		now:    now,
		models: make(map[string]*residentModel),
	}
}

func (r *residency) track(role, backend, model string, unloader Unloader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[role] = &residentModel{
		role:     role,
		backend:  backend,
		model:    model,
		state:    Unloaded,
		unloader: unloader,
	}
}

// acquire marks role loaded and refreshes the idle clock. When the clock had
// expired, every loaded model counts as unloaded first; the others are
// released, the acquired one is reloaded right away.
func (r *residency) acquire(ctx context.Context, role string) {
	r.mu.Lock()
	now := r.now()
	var expired []*residentModel
	if r.idle > 0 && !r.lastUse.IsZero() && now.Sub(r.lastUse) >= r.idle {
		for _, m := range r.models {
			if m.state != Loaded {
				continue
			}
			m.state = Unloaded
			m.unloads++
			metrics.ModelUnloadsTotal.WithLabelValues(m.model).Inc()
			if m.role != role {
				expired = append(expired, m)
			}
		}
	}
	if m, ok := r.models[role]; ok && m.state != Loaded {
		m.state = Loaded
		r.logger.Info("model loaded", slog.String("role", m.role), slog.String("model", m.model))
	}
	r.lastUse = now
	r.mu.Unlock()

	for _, m := range expired {
		r.release(ctx, m)
	}
}

// touch refreshes the idle clock after a call for role returns and records
// its outcome.
func (r *residency) touch(role string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUse = r.now()
	if m, ok := r.models[role]; ok {
		m.lastErr = ""
		if err != nil {
			m.lastErr = err.Error()
		}
	}
}

func (r *residency) release(ctx context.Context, m *residentModel) {
	log := r.logger.With(slog.String("role", m.role), slog.String("model", m.model))
	if m.unloader == nil {
		log.Info("model marked idle")
		return
	}
	if err := m.unloader.Unload(ctx); err != nil {
		log.Warn("model unload failed", slog.Any("error", err))
		return
	}
	log.Info("model unloaded after idle timeout")
}

func (r *residency) snapshot() []ModelStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ModelStatus, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, ModelStatus{
			Role:      m.role,
			Backend:   m.backend,
			Model:     m.model,
			State:     m.state,
			Unloads:   m.unloads,
			LastUsed:  r.lastUse,
			LastError: m.lastErr,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}
