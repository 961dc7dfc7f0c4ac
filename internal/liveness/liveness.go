// Package liveness keeps a chat activity indicator alive while a reply is
// being generated.
package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/memohai/mimic/internal/channel"
)

// DefaultInterval refreshes the indicator before Telegram's ~5s expiry.
const DefaultInterval = 4 * time.Second

// Signaler starts activity loops on a transport.
type Signaler struct {
	logger   *slog.Logger
	target   channel.ActivitySignaler
	interval time.Duration
}

// New creates a Signaler. A non-positive interval uses DefaultInterval.
func New(log *slog.Logger, target channel.ActivitySignaler, interval time.Duration) *Signaler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Signaler{
		logger:   log.With(slog.String("component", "liveness")),
		target:   target,
		interval: interval,
	}
}

// Handle controls one running activity loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop ends the loop and waits for it to exit. It is safe to call more than
// once and on a nil Handle.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
	<-h.done
}

// Start sends activity once immediately and then on every interval until the
// handle is stopped or ctx is done. Signal failures are logged at debug level
// and never end the loop.
func (s *Signaler) Start(ctx context.Context, conv channel.Conversation, activity channel.Activity) *Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	if activity == "" {
		activity = channel.ActivityTyping
	}
	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	if s == nil || s.target == nil {
		close(h.done)
		return h
	}

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.signal(loopCtx, conv, activity)
		for {
			select {
			case <-ticker.C:
				s.signal(loopCtx, conv, activity)
			case <-loopCtx.Done():
				return
			}
		}
	}()
	return h
}

func (s *Signaler) signal(ctx context.Context, conv channel.Conversation, activity channel.Activity) {
	if ctx.Err() != nil {
		return
	}
	if err := s.target.SignalActivity(ctx, conv, activity); err != nil {
		s.logger.Debug("activity signal failed",
			slog.String("conversation", conv.String()),
			slog.Any("error", err),
		)
	}
}
