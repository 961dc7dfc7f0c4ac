package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/mimic/internal/version"
)

type rootOptions struct {
	configPath string
	instance   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "mimic",
		Short:         "Telegram persona bot backed by an LLM",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CONFIG_PATH"), "Config file path (TOML).")
	cmd.PersistentFlags().StringVar(&opts.instance, "instance", "", "Persona instance name (defaults to MIMIC_INSTANCE).")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newGeneratePromptCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "mimic "+version.GetInfo())
		},
	}
}
