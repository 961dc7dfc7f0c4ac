package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/mimic/internal/chat"
	"github.com/memohai/mimic/internal/config"
)

func newCompleter(cfg config.Config) (chat.Completer, error) {
	active := cfg.Model.Active()
	opts := chat.ProviderOptions{
		APIKey:  active.APIKey,
		BaseURL: active.BaseURL,
		Model:   active.Model,
		Timeout: cfg.Model.RequestTimeout.Duration,
	}
	switch cfg.Model.Provider {
	case config.ProviderOllama:
		return chat.NewOllamaCompleter(opts)
	case config.ProviderOpenAI, "":
		return chat.NewOpenAICompleter(opts)
	default:
		return nil, fmt.Errorf("%w: unknown model provider %q", config.ErrInvalid, cfg.Model.Provider)
	}
}

// newTranscriber returns nil when transcription is disabled.
func newTranscriber(cfg config.Config) (chat.AudioTranscriber, error) {
	tc := cfg.Transcription
	switch strings.TrimSpace(tc.Provider) {
	case "":
		return nil, nil
	case config.ProviderCommand:
		return chat.NewCommandTranscriber(tc.Command)
	case config.ProviderOpenAI:
		key := tc.APIKey
		if strings.TrimSpace(key) == "" {
			key = cfg.Model.OpenAI.APIKey
		}
		return chat.NewOpenAITranscriber(chat.ProviderOptions{
			APIKey:  key,
			BaseURL: tc.BaseURL,
			Model:   tc.Model,
			Timeout: cfg.Model.RequestTimeout.Duration,
		}, tc.Language)
	default:
		return nil, fmt.Errorf("%w: unknown transcription provider %q", config.ErrInvalid, tc.Provider)
	}
}

func newGateway(log *slog.Logger, cfg config.Config, completer chat.Completer, transcriber chat.AudioTranscriber) *chat.Gateway {
	return chat.NewGateway(log, completer, transcriber, chat.Options{
		MaxTokens:   cfg.Model.MaxTokens,
		Temperature: cfg.Model.Temperature,
		TopP:        cfg.Model.TopP,
		IdleTimeout: cfg.Model.IdleTimeout.Duration,
	})
}
