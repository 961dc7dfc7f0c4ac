// Package persona answers inbound messages in the persona's voice: it
// filters, debounces, assembles the transcript and sends the model's reply.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/memohai/mimic/internal/access"
	"github.com/memohai/mimic/internal/aggregator"
	"github.com/memohai/mimic/internal/channel"
	"github.com/memohai/mimic/internal/chat"
	"github.com/memohai/mimic/internal/conversation"
	"github.com/memohai/mimic/internal/liveness"
	"github.com/memohai/mimic/internal/metrics"
)

// PromptSource resolves the system prompt for a conversation partner.
type PromptSource interface {
	ForConversation(id int64, name string) string
}

// PromptAugmenter decorates a system prompt with ambient context.
type PromptAugmenter interface {
	Augment(prompt string) string
}

// TranscriptBuilder assembles the model input.
type TranscriptBuilder interface {
	Build(ctx context.Context, systemPrompt string, history, batch []channel.Message) conversation.Transcript
}

// Completer produces the reply text.
type Completer interface {
	Complete(ctx context.Context, req chat.Request) (string, error)
}

// Options tunes batching and sampling.
type Options struct {
	// Delay is the quiescence window for private chats.
	Delay time.Duration
	// GroupDelay is the window for group chatter that does not address us.
	GroupDelay   time.Duration
	HistoryLimit int
	MaxTokens    int
	Temperature  float32
	TopP         float32
	// BatchTimeout bounds processing of one batch. Zero means no limit.
	BatchTimeout time.Duration
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Transport channel.Transport
	Policy    *access.Policy
	Prompts   PromptSource
	Augmenter PromptAugmenter
	Builder   TranscriptBuilder
	Completer Completer
	Signaler  *liveness.Signaler
}

// Processor is the inbound pipeline.
type Processor struct {
	logger     *slog.Logger
	deps       Deps
	opts       Options
	aggregator *aggregator.Aggregator
}

// New creates a Processor with its own aggregator.
func New(log *slog.Logger, deps Deps, opts Options) *Processor {
	if log == nil {
		log = slog.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 1
	}
	p := &Processor{
		logger: log.With(slog.String("component", "persona")),
		deps:   deps,
		opts:   opts,
	}
	p.aggregator = aggregator.New(log, p.handleBatch)
	return p
}

// HandleInbound is the channel.InboundHandler for the transport. It never
// blocks on network calls.
func (p *Processor) HandleInbound(_ context.Context, msg channel.Message) {
	decision := access.Allow
	if p.deps.Policy != nil {
		decision = p.deps.Policy.Evaluate(msg)
	} else if msg.Outgoing {
		decision = access.SkipOutgoing
	}
	metrics.RecordInbound(string(msg.ChatType), string(decision))
	log := p.logger.With(
		slog.Int64("chat_id", msg.Conversation.ChatID),
		slog.Int("topic_id", msg.Conversation.TopicID),
		slog.Int("message_id", msg.ID),
	)
	if !decision.Allowed() {
		log.Debug("message skipped", slog.String("reason", string(decision)))
		return
	}

	key := msg.Conversation
	delay := p.opts.Delay
	addressed := msg.ChatType.IsGroup() && msg.Addressed()
	if msg.ChatType.IsGroup() {
		delay = p.opts.GroupDelay
	}
	var (
		batchID string
		created bool
		err     error
	)
	if addressed {
		batchID, created, err = p.aggregator.SubmitEscalated(key, msg)
	} else {
		batchID, created, err = p.aggregator.Submit(key, msg, delay)
	}
	if err != nil {
		log.Warn("message not queued", slog.Any("error", err))
		return
	}
	log.Info("message queued",
		slog.String("batch_id", batchID),
		slog.Bool("new_batch", created),
		slog.Bool("addressed", addressed),
	)
}

func (p *Processor) handleBatch(ctx context.Context, batch aggregator.Batch) error {
	if p.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.BatchTimeout)
		defer cancel()
	}
	key := batch.Key
	target := batch.ReplyTarget()
	log := p.logger.With(
		slog.Int64("chat_id", key.ChatID),
		slog.Int("topic_id", key.TopicID),
		slog.String("batch_id", batch.ID),
	)
	log.Info("processing batch", slog.Int("messages", len(batch.Messages)))

	typing := p.deps.Signaler.Start(ctx, key, channel.ActivityTyping)
	defer typing.Stop()

	promptID := target.Sender.ID
	if target.ChatType.IsGroup() {
		promptID = key.ChatID
	}
	system := p.deps.Prompts.ForConversation(promptID, target.Sender.DisplayName())
	if p.deps.Augmenter != nil {
		system = p.deps.Augmenter.Augment(system)
	}

	history, err := p.history(ctx, batch)
	if err != nil {
		metrics.RecordReply("history_error")
		return fmt.Errorf("fetch history: %w", err)
	}
	transcript := p.deps.Builder.Build(ctx, system, history, batch.Messages)

	reply, err := p.deps.Completer.Complete(ctx, chat.Request{
		Transcript:  transcript,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: p.opts.Temperature,
		TopP:        p.opts.TopP,
	})
	if err != nil {
		metrics.RecordReply("completion_error")
		return err
	}
	typing.Stop()

	sent, err := p.deps.Transport.SendText(ctx, key, reply, target.ID)
	if err != nil {
		metrics.RecordReply("send_error")
		return fmt.Errorf("send reply: %w", err)
	}
	metrics.RecordReply("sent")
	log.Info("reply sent",
		slog.Int("reply_to", target.ID),
		slog.Int("message_id", sent.ID),
		slog.Int("chars", len(reply)),
	)
	return nil
}

// history returns up to HistoryLimit-1 messages that precede the batch,
// oldest first. The batch itself and anything that arrived after its first
// message (a later burst still waiting for its own flush) are left out.
func (p *Processor) history(ctx context.Context, batch aggregator.Batch) ([]channel.Message, error) {
	keep := p.opts.HistoryLimit - 1
	if keep <= 0 || len(batch.Messages) == 0 {
		return nil, nil
	}
	firstID := slices.Min(batch.MessageIDs())
	// Later bursts may already be recorded; fetch deep enough to skip them.
	recent, err := p.deps.Transport.FetchHistory(ctx, batch.Key, p.opts.HistoryLimit+len(batch.Messages)+p.aggregator.Backlog(batch.Key))
	if err != nil {
		return nil, err
	}
	prior := make([]channel.Message, 0, keep)
	for _, msg := range recent {
		if msg.ID >= firstID {
			continue
		}
		prior = append(prior, msg)
		if len(prior) == keep {
			break
		}
	}
	for i, j := 0, len(prior)-1; i < j; i, j = i+1, j-1 {
		prior[i], prior[j] = prior[j], prior[i]
	}
	return prior, nil
}

// Stats reports aggregator queue sizes.
func (p *Processor) Stats() aggregator.Stats {
	return p.aggregator.Stats()
}

// Stop drops pending batches and waits for running ones.
func (p *Processor) Stop(ctx context.Context) error {
	return p.aggregator.Stop(ctx)
}
