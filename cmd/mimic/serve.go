package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/mimic/internal/access"
	"github.com/memohai/mimic/internal/channel/adapters/telegram"
	"github.com/memohai/mimic/internal/chat"
	"github.com/memohai/mimic/internal/config"
	"github.com/memohai/mimic/internal/conversation"
	"github.com/memohai/mimic/internal/handlers"
	modelchecker "github.com/memohai/mimic/internal/healthcheck/checkers/models"
	transportchecker "github.com/memohai/mimic/internal/healthcheck/checkers/transport"
	"github.com/memohai/mimic/internal/liveness"
	"github.com/memohai/mimic/internal/logger"
	"github.com/memohai/mimic/internal/media"
	"github.com/memohai/mimic/internal/media/providers/localfs"
	"github.com/memohai/mimic/internal/persona"
	"github.com/memohai/mimic/internal/prompts"
	"github.com/memohai/mimic/internal/server"
	"github.com/memohai/mimic/internal/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the persona bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := fx.New(
				fx.Supply(opts),
				fx.Provide(
					provideConfig,
					provideLogger,
					provideTelegramAdapter,
					provideGateway,
					provideExtractor,
					provideBuilder,
					provideAccessPolicy,
					providePromptStore,
					provideWeather,
					provideAugmenter,
					provideProcessor,
					provideServerHandler(handlers.NewPingHandler),
					provideServerHandler(provideHealthHandler),
					provideServerHandler(provideStatusHandler),
					provideServer,
				),
				fx.Invoke(
					startTelegram,
					startServer,
				),
				fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
					return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath, opts.instance)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L.With(slog.String("instance", cfg.Instance))
}

func provideTelegramAdapter(log *slog.Logger, cfg config.Config) *telegram.TelegramAdapter {
	return telegram.NewTelegramAdapter(log, telegram.Options{
		BotToken:        cfg.Telegram.BotToken,
		PollTimeout:     cfg.Telegram.PollTimeout,
		HistoryCapacity: cfg.Telegram.HistoryCapacity,
	})
}

func provideGateway(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*chat.Gateway, error) {
	completer, err := newCompleter(cfg)
	if err != nil {
		return nil, fmt.Errorf("completion backend: %w", err)
	}
	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return nil, fmt.Errorf("transcription backend: %w", err)
	}
	gateway := newGateway(log, cfg, completer, transcriber)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return gateway.Close(ctx) },
	})
	log.Info("model backends ready",
		slog.String("provider", cfg.Model.Provider),
		slog.String("model", gateway.CompletionModel()),
		slog.Bool("transcription", transcriber != nil),
	)
	return gateway, nil
}

func provideExtractor(log *slog.Logger, cfg config.Config, adapter *telegram.TelegramAdapter, gateway *chat.Gateway) (*media.Extractor, error) {
	store, err := localfs.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("media store: %w", err)
	}
	return media.NewExtractor(log, adapter, media.ExtractorOptions{
		Transcriber: gateway,
		Renderer:    media.NewFitzRenderer(),
		Cache:       media.NewDocumentCache(log, store),
	}), nil
}

func provideBuilder(log *slog.Logger, cfg config.Config, extractor *media.Extractor) *conversation.Builder {
	return conversation.NewBuilder(log, extractor, conversation.BuilderOptions{
		SpeakerLabels: cfg.Access.SpeakerLabels,
	})
}

func provideAccessPolicy(log *slog.Logger, cfg config.Config) (*access.Policy, error) {
	return access.Load(log, cfg.Access.ExcludedUsersPath, cfg.Access.IncludedGroupsPath)
}

func providePromptStore(log *slog.Logger, cfg config.Config) (*prompts.Store, error) {
	return prompts.NewStore(log, prompts.StoreOptions{
		SystemDir:  cfg.Prompts.SystemDir,
		PromptsDir: cfg.Prompts.PromptsDir,
		Instance:   cfg.Instance,
	})
}

// provideWeather returns nil when no coordinates are configured.
func provideWeather(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) *prompts.Weather {
	if !cfg.Weather.Enabled() {
		return nil
	}
	weather := prompts.NewWeather(log, prompts.WeatherOptions{
		BaseURL:   cfg.Weather.BaseURL,
		Latitude:  cfg.Weather.Latitude,
		Longitude: cfg.Weather.Longitude,
		Location:  cfg.Weather.Location,
		Timezone:  cfg.Weather.Timezone,
		Refresh:   cfg.Weather.Refresh.Duration,
		CachePath: filepath.Join(cfg.DataDir, "weather.json"),
	})
	lc.Append(fx.Hook{
		OnStart: weather.Start,
		OnStop:  weather.Stop,
	})
	return weather
}

func provideAugmenter(cfg config.Config, weather *prompts.Weather) (*prompts.Augmenter, error) {
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Weather.Timezone); tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("%w: timezone %q: %v", config.ErrInvalid, tz, err)
		}
	}
	var source prompts.WeatherSource
	if weather != nil {
		source = weather
	}
	return prompts.NewAugmenter(loc, source, nil), nil
}

type processorParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *slog.Logger
	Config    config.Config
	Adapter   *telegram.TelegramAdapter
	Policy    *access.Policy
	Prompts   *prompts.Store
	Augmenter *prompts.Augmenter
	Builder   *conversation.Builder
	Gateway   *chat.Gateway
}

func provideProcessor(params processorParams) *persona.Processor {
	cfg := params.Config
	processor := persona.New(params.Logger, persona.Deps{
		Transport: params.Adapter,
		Policy:    params.Policy,
		Prompts:   params.Prompts,
		Augmenter: params.Augmenter,
		Builder:   params.Builder,
		Completer: params.Gateway,
		Signaler:  liveness.New(params.Logger, params.Adapter, cfg.Telegram.TypingInterval.Duration),
	}, persona.Options{
		Delay:        cfg.Debounce.Delay.Duration,
		GroupDelay:   cfg.Debounce.GroupDelay.Duration,
		HistoryLimit: cfg.History.Limit,
		MaxTokens:    cfg.Model.MaxTokens,
		Temperature:  cfg.Model.Temperature,
		TopP:         cfg.Model.TopP,
	})
	params.Lifecycle.Append(fx.Hook{
		OnStop: processor.Stop,
	})
	return processor
}

func provideHealthHandler(log *slog.Logger, adapter *telegram.TelegramAdapter, gateway *chat.Gateway) *handlers.HealthHandler {
	return handlers.NewHealthHandler(log,
		transportchecker.NewChecker(log, adapter),
		modelchecker.NewChecker(log, gateway),
	)
}

func provideStatusHandler(log *slog.Logger, cfg config.Config, processor *persona.Processor, gateway *chat.Gateway) *handlers.StatusHandler {
	return handlers.NewStatusHandler(log, handlers.StatusInfo{
		Instance: cfg.Instance,
		Version:  version.Version,
		Started:  time.Now(),
	}, processor, gateway)
}

type serverParams struct {
	fx.In

	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Handlers...)
}

func startTelegram(lc fx.Lifecycle, adapter *telegram.TelegramAdapter, processor *persona.Processor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return adapter.Start(ctx, processor.HandleInbound) },
		OnStop:  adapter.Stop,
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	logger.Info("starting mimic", slog.String("version", version.GetInfo()))
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
