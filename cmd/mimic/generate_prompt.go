package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/mimic/internal/chat"
	"github.com/memohai/mimic/internal/config"
	"github.com/memohai/mimic/internal/conversation"
	"github.com/memohai/mimic/internal/logger"
	"github.com/memohai/mimic/internal/prompts"
)

type generatePromptOptions struct {
	exportPath string
	userID     int64
	limit      int
	maxTokens  int
	dryRun     bool
}

func newGeneratePromptCmd(root *rootOptions) *cobra.Command {
	opts := &generatePromptOptions{}
	cmd := &cobra.Command{
		Use:   "generate-prompt --export result.json",
		Short: "Write a per-user system prompt from a Telegram Desktop chat export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath, root.instance)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			return runGeneratePrompt(cmd.Context(), cmd, cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.exportPath, "export", "", "Path to the exported result.json of a personal chat.")
	cmd.Flags().Int64Var(&opts.userID, "user-id", 0, "Prompt owner id (defaults to the chat id of the export).")
	cmd.Flags().IntVar(&opts.limit, "limit", prompts.DefaultExportLimit, "Number of recent text messages to analyze.")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 2048, "Completion budget for the generated prompt.")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the prompt instead of saving it.")
	_ = cmd.MarkFlagRequired("export")
	return cmd
}

func runGeneratePrompt(ctx context.Context, cmd *cobra.Command, cfg config.Config, opts *generatePromptOptions) error {
	log := logger.L.With(slog.String("command", "generate-prompt"))
	if ctx == nil {
		ctx = context.Background()
	}

	f, err := os.Open(opts.exportPath)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	export, err := prompts.ReadTelegramExport(f, opts.limit)
	_ = f.Close()
	if err != nil {
		return err
	}
	userID := opts.userID
	if userID == 0 {
		userID = export.PeerID
	}

	store, err := prompts.NewStore(log, prompts.StoreOptions{
		SystemDir:  cfg.Prompts.SystemDir,
		PromptsDir: cfg.Prompts.PromptsDir,
		Instance:   cfg.Instance,
	})
	if err != nil {
		return err
	}
	completer, err := newCompleter(cfg)
	if err != nil {
		return fmt.Errorf("completion backend: %w", err)
	}
	gateway := newGateway(log, cfg, completer, nil)
	defer func() { _ = gateway.Close(context.WithoutCancel(ctx)) }()

	request := prompts.GenerationRequest(cfg.Prompts.Persona, cfg.Prompts.Language, export)
	log.Info("requesting prompt",
		slog.Int64("user_id", userID),
		slog.Int("messages", len(export.Lines)),
		slog.String("model", gateway.CompletionModel()),
	)
	text, err := gateway.Complete(ctx, chat.Request{
		Transcript: conversation.Transcript{
			{Role: conversation.RoleUser, Parts: []conversation.Part{conversation.TextPart(request)}},
		},
		MaxTokens: opts.maxTokens,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.dryRun {
		fmt.Fprintln(out, text)
		return nil
	}
	path, err := store.SaveUserPrompt(userID, text)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Prompt saved to %s\n", path)
	return nil
}
