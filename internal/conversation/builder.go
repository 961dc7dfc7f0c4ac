package conversation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/memohai/mimic/internal/channel"
)

// Extractor converts one platform message into content parts. The boolean
// is false when the message has nothing to contribute and must be skipped.
type Extractor interface {
	Extract(ctx context.Context, msg channel.Message) ([]Part, bool)
}

// BuilderOptions tunes transcript construction.
type BuilderOptions struct {
	// SpeakerLabels prefixes incoming group messages with the sender name.
	SpeakerLabels bool
}

// Builder assembles normalized transcripts.
type Builder struct {
	logger    *slog.Logger
	extractor Extractor
	opts      BuilderOptions
}

// NewBuilder creates a Builder around extractor.
func NewBuilder(log *slog.Logger, extractor Extractor, opts BuilderOptions) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{
		logger:    log.With(slog.String("component", "transcript")),
		extractor: extractor,
		opts:      opts,
	}
}

// Build returns the system block, then history (oldest first) as user or
// assistant blocks by message direction, then the new batch as user
// content. Same-role neighbours merge as they are appended; the result is
// normalized.
func (b *Builder) Build(ctx context.Context, systemPrompt string, history, batch []channel.Message) Transcript {
	transcript := Transcript{{Role: RoleSystem, Parts: []Part{TextPart(systemPrompt)}}}
	skipped := 0
	for _, msg := range history {
		role := RoleUser
		if msg.Outgoing {
			role = RoleAssistant
		}
		if !b.appendMessage(ctx, &transcript, role, msg) {
			skipped++
		}
	}
	for _, msg := range batch {
		if !b.appendMessage(ctx, &transcript, RoleUser, msg) {
			skipped++
		}
	}
	if skipped > 0 {
		b.logger.Debug("skipped messages without content", slog.Int("count", skipped))
	}
	return Normalize(transcript)
}

func (b *Builder) appendMessage(ctx context.Context, transcript *Transcript, role Role, msg channel.Message) bool {
	parts, ok := b.extractor.Extract(ctx, msg)
	if !ok {
		return false
	}
	if b.opts.SpeakerLabels && role == RoleUser && msg.ChatType.IsGroup() {
		parts = labelParts(msg.Sender.DisplayName(), parts)
	}
	appendParts(transcript, role, parts)
	return true
}

func appendParts(transcript *Transcript, role Role, parts []Part) {
	t := *transcript
	if n := len(t); n > 0 && t[n-1].Role == role {
		t[n-1].Parts = append(t[n-1].Parts, parts...)
		*transcript = t
		return
	}
	*transcript = append(t, Block{Role: role, Parts: append([]Part(nil), parts...)})
}

func labelParts(name string, parts []Part) []Part {
	name = strings.TrimSpace(name)
	if name == "" {
		return parts
	}
	out := make([]Part, 0, len(parts)+1)
	if len(parts) > 0 && parts[0].IsPlainText() {
		first := parts[0]
		first.Text = name + ": " + first.Text
		out = append(out, first)
		return append(out, parts[1:]...)
	}
	out = append(out, TextPart(name+":"))
	return append(out, parts...)
}
