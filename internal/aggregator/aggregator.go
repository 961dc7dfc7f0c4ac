// Package aggregator coalesces bursts of inbound messages per conversation
// into batches and hands each flushed batch to a per-conversation lane.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/mimic/internal/channel"
	"github.com/memohai/mimic/internal/metrics"
)

// ErrStopped is returned by operations on a stopped aggregator.
var ErrStopped = errors.New("aggregator stopped")

// Flush triggers recorded in metrics.
const (
	TriggerTimer    = "timer"
	TriggerEscalate = "escalate"
	TriggerManual   = "manual"
)

// Batch is a drained set of messages for one conversation.
type Batch struct {
	ID       string
	Key      channel.Conversation
	Messages []channel.Message
	// Target is the message the reply should quote. Escalation replaces the
	// default (last message) with the mention.
	Target    channel.Message
	Escalated bool
	CreatedAt time.Time
}

// ReplyTarget returns the explicit target or the last message of the batch.
func (b Batch) ReplyTarget() channel.Message {
	if b.Escalated || b.Target.ID != 0 {
		return b.Target
	}
	if len(b.Messages) == 0 {
		return channel.Message{}
	}
	return b.Messages[len(b.Messages)-1]
}

// MessageIDs returns the ids of the batched messages in arrival order.
func (b Batch) MessageIDs() []int {
	ids := make([]int, 0, len(b.Messages))
	for _, msg := range b.Messages {
		ids = append(ids, msg.ID)
	}
	return ids
}

// Handler processes one flushed batch. Errors are logged by the aggregator.
type Handler func(ctx context.Context, batch Batch) error

type pendingBatch struct {
	batch   Batch
	timer   *time.Timer
	trigger string
}

type lane struct {
	queue []Batch
}

// Stats is a point-in-time snapshot of aggregator state.
type Stats struct {
	PendingBatches  int `json:"pending_batches"`
	PendingMessages int `json:"pending_messages"`
	ActiveLanes     int `json:"active_lanes"`
	QueuedBatches   int `json:"queued_batches"`
}

// Aggregator owns per-conversation pending batches and processing lanes.
// The mutex guards map mutation only; handlers run outside it.
type Aggregator struct {
	logger  *slog.Logger
	handler Handler

	mu      sync.Mutex
	pending map[channel.Conversation]*pendingBatch
	lanes   map[channel.Conversation]*lane
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Aggregator dispatching flushed batches to handler.
func New(log *slog.Logger, handler Handler) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Aggregator{
		logger:  log.With(slog.String("component", "aggregator")),
		handler: handler,
		pending: make(map[channel.Conversation]*pendingBatch),
		lanes:   make(map[channel.Conversation]*lane),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit appends msg to the pending batch for key. The first message of a
// batch schedules its flush after delay; later messages ride on that timer.
// It returns the batch id and whether a new batch was created.
func (a *Aggregator) Submit(key channel.Conversation, msg channel.Message, delay time.Duration) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return "", false, ErrStopped
	}
	p, created := a.appendLocked(key, msg, delay)
	return p.batch.ID, created, nil
}

// SubmitEscalated appends msg and escalates the same batch under one lock,
// so the mention is always a message of the batch it targets.
func (a *Aggregator) SubmitEscalated(key channel.Conversation, msg channel.Message) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return "", false, ErrStopped
	}
	p, created := a.appendLocked(key, msg, time.Hour)
	a.escalateLocked(key, p, msg)
	return p.batch.ID, created, nil
}

// Escalate marks target as the reply target of the pending batch for key and
// reschedules its flush immediately. The last escalation wins; the batch's
// original timer becomes a no-op once the batch is flushed. It reports false
// when no batch is pending.
func (a *Aggregator) Escalate(key channel.Conversation, target channel.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[key]
	if !ok || a.stopped {
		return false
	}
	a.escalateLocked(key, p, target)
	return true
}

func (a *Aggregator) appendLocked(key channel.Conversation, msg channel.Message, delay time.Duration) (*pendingBatch, bool) {
	if delay < 0 {
		delay = 0
	}
	if p, ok := a.pending[key]; ok {
		p.batch.Messages = append(p.batch.Messages, msg)
		return p, false
	}
	id := uuid.NewString()
	p := &pendingBatch{
		batch: Batch{
			ID:        id,
			Key:       key,
			Messages:  []channel.Message{msg},
			CreatedAt: time.Now(),
		},
		trigger: TriggerTimer,
	}
	p.timer = time.AfterFunc(delay, func() { a.flush(key, id) })
	a.pending[key] = p
	metrics.PendingBatches.Inc()
	a.logger.Debug("batch opened",
		slog.String("conversation", key.String()),
		slog.String("batch_id", id),
		slog.Duration("delay", delay),
	)
	return p, true
}

func (a *Aggregator) escalateLocked(key channel.Conversation, p *pendingBatch, target channel.Message) {
	p.batch.Target = target
	p.batch.Escalated = true
	p.trigger = TriggerEscalate
	p.timer.Stop()
	id := p.batch.ID
	p.timer = time.AfterFunc(0, func() { a.flush(key, id) })
	a.logger.Info("batch escalated",
		slog.String("conversation", key.String()),
		slog.String("batch_id", id),
		slog.Int("target_id", target.ID),
	)
}

// Flush drains the pending batch for key when its id matches batchID (any
// batch when batchID is empty) and queues it on the key's lane. It reports
// false when the batch was already flushed or superseded.
func (a *Aggregator) Flush(key channel.Conversation, batchID string) (Batch, bool) {
	return a.drain(key, batchID, TriggerManual)
}

func (a *Aggregator) flush(key channel.Conversation, batchID string) {
	a.drain(key, batchID, "")
}

func (a *Aggregator) drain(key channel.Conversation, batchID, trigger string) (Batch, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return Batch{}, false
	}
	p, ok := a.pending[key]
	if !ok || (batchID != "" && p.batch.ID != batchID) {
		return Batch{}, false
	}
	p.timer.Stop()
	delete(a.pending, key)
	metrics.PendingBatches.Dec()
	if trigger == "" {
		trigger = p.trigger
	}
	metrics.RecordFlush(trigger, len(p.batch.Messages))
	a.logger.Debug("batch flushed",
		slog.String("conversation", key.String()),
		slog.String("batch_id", p.batch.ID),
		slog.Int("messages", len(p.batch.Messages)),
		slog.String("trigger", trigger),
	)
	a.enqueueLocked(p.batch)
	return p.batch, true
}

// enqueueLocked appends batch to its lane, starting the lane goroutine when
// the lane is idle. Callers hold a.mu.
func (a *Aggregator) enqueueLocked(batch Batch) {
	l, ok := a.lanes[batch.Key]
	if ok {
		l.queue = append(l.queue, batch)
		return
	}
	l = &lane{queue: []Batch{batch}}
	a.lanes[batch.Key] = l
	metrics.ActiveLanes.Inc()
	a.wg.Add(1)
	go a.runLane(batch.Key, l)
}

func (a *Aggregator) runLane(key channel.Conversation, l *lane) {
	defer a.wg.Done()
	for {
		a.mu.Lock()
		if len(l.queue) == 0 {
			delete(a.lanes, key)
			metrics.ActiveLanes.Dec()
			a.mu.Unlock()
			return
		}
		batch := l.queue[0]
		l.queue = l.queue[1:]
		a.mu.Unlock()

		a.process(batch)
	}
}

func (a *Aggregator) process(batch Batch) {
	log := a.logger.With(
		slog.String("conversation", batch.Key.String()),
		slog.String("batch_id", batch.ID),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("batch handler panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	if a.handler == nil {
		log.Warn("no batch handler configured, batch dropped")
		return
	}
	if err := a.handler(a.ctx, batch); err != nil {
		log.Error("batch processing failed", slog.Any("error", err))
	}
}

// Stats returns current queue sizes.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := Stats{
		PendingBatches: len(a.pending),
		ActiveLanes:    len(a.lanes),
	}
	for _, p := range a.pending {
		stats.PendingMessages += len(p.batch.Messages)
	}
	for _, l := range a.lanes {
		stats.QueuedBatches += len(l.queue)
	}
	return stats
}

// Backlog counts messages for key that are pending or queued on its lane but
// not yet handed to the handler.
func (a *Aggregator) Backlog(key channel.Conversation) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	if p, ok := a.pending[key]; ok {
		n += len(p.batch.Messages)
	}
	if l, ok := a.lanes[key]; ok {
		for _, b := range l.queue {
			n += len(b.Messages)
		}
	}
	return n
}

// Stop cancels pending timers, drops unflushed batches and waits for running
// lanes until ctx expires. In-flight handlers are cancelled only when ctx
// expires first.
func (a *Aggregator) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	dropped := 0
	for key, p := range a.pending {
		p.timer.Stop()
		dropped += len(p.batch.Messages)
		delete(a.pending, key)
		metrics.PendingBatches.Dec()
	}
	a.mu.Unlock()
	if dropped > 0 {
		a.logger.Warn("pending messages dropped on shutdown", slog.Int("messages", dropped))
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		return fmt.Errorf("wait for lanes: %w", ctx.Err())
	}
}
