package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/memohai/mimic/internal/metrics"
)

// Options configures a Gateway.
type Options struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
	// IdleTimeout unloads demand-loaded models that were not used for this
	// long. Zero keeps them loaded.
	IdleTimeout time.Duration
	// TempDir holds audio files while they are transcribed.
	TempDir string
	// Now overrides the clock.
	Now func() time.Time
}

// Gateway fronts the completion and transcription backends.
type Gateway struct {
	logger      *slog.Logger
	completer   Completer
	transcriber AudioTranscriber
	opts        Options
	residency   *residency
}

// NewGateway creates a Gateway. transcriber may be nil.
func NewGateway(log *slog.Logger, completer Completer, transcriber AudioTranscriber, opts Options) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "gateway"))
	g := &Gateway{
		logger:      log,
		completer:   completer,
		transcriber: transcriber,
		opts:        opts,
		residency:   newResidency(log, opts.IdleTimeout, opts.Now),
	}
	if completer != nil {
		u, _ := completer.(Unloader)
		g.residency.track(roleCompletion, completer.Name(), completer.Model(), u)
	}
	if transcriber != nil {
		u, _ := transcriber.(Unloader)
		g.residency.track(roleTranscription, transcriber.Name(), transcriber.Model(), u)
	}
	return g
}

// Complete runs one completion. Zero sampling values in req fall back to the
// gateway defaults. Any failure is returned as a *CompletionError.
func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	if g.completer == nil {
		return "", &CompletionError{Err: errors.New("no completion backend configured")}
	}
	model := g.completer.Model()
	if req.MaxTokens <= 0 {
		req.MaxTokens = g.opts.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = g.opts.Temperature
	}
	if req.TopP == 0 {
		req.TopP = g.opts.TopP
	}

	g.residency.acquire(ctx, roleCompletion)
	start := time.Now()
	result, err := g.completer.Complete(ctx, req)
	g.residency.touch(roleCompletion, err)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordCompletion(model, "error", elapsed.Seconds(), 0, 0)
		return "", &CompletionError{Model: model, Err: err}
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		metrics.RecordCompletion(model, "empty", elapsed.Seconds(), result.Usage.PromptTokens, result.Usage.CompletionTokens)
		return "", &CompletionError{Model: model, Err: ErrEmptyReply}
	}
	metrics.RecordCompletion(model, "ok", elapsed.Seconds(), result.Usage.PromptTokens, result.Usage.CompletionTokens)
	g.logger.Debug("completion finished",
		slog.String("model", model),
		slog.Duration("elapsed", elapsed),
		slog.Int("prompt_tokens", result.Usage.PromptTokens),
		slog.Int("completion_tokens", result.Usage.CompletionTokens),
		slog.String("finish_reason", result.FinishReason),
	)
	return text, nil
}

// Transcribe writes audio to a temporary file, runs the transcription
// backend on it and removes the file on every path.
func (g *Gateway) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if g.transcriber == nil {
		return "", ErrTranscriptionUnavailable
	}
	backend := g.transcriber.Name()
	ext := filepath.Ext(filepath.Base(strings.TrimSpace(filename)))
	if ext == "" {
		ext = ".ogg"
	}
	f, err := os.CreateTemp(g.opts.TempDir, "mimic-audio-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(audio); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close audio file: %w", err)
	}

	g.residency.acquire(ctx, roleTranscription)
	text, err := g.transcriber.TranscribeFile(ctx, path)
	g.residency.touch(roleTranscription, err)
	if err != nil {
		metrics.RecordTranscription(backend, "error")
		return "", fmt.Errorf("transcribe %s: %w", filename, err)
	}
	metrics.RecordTranscription(backend, "ok")
	return strings.TrimSpace(text), nil
}

// Models reports residency of tracked models.
func (g *Gateway) Models() []ModelStatus {
	return g.residency.snapshot()
}

// CompletionModel returns the configured completion model name.
func (g *Gateway) CompletionModel() string {
	if g.completer == nil {
		return ""
	}
	return g.completer.Model()
}

// Close unloads every resident model.
func (g *Gateway) Close(ctx context.Context) error {
	var errs []error
	g.residency.mu.Lock()
	var loaded []*residentModel
	for _, m := range g.residency.models {
		if m.state == Loaded && m.unloader != nil {
			m.state = Unloaded
			loaded = append(loaded, m)
		}
	}
	g.residency.mu.Unlock()
	for _, m := range loaded {
		if err := m.unloader.Unload(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unload %s: %w", m.model, err))
		}
	}
	return errors.Join(errs...)
}
