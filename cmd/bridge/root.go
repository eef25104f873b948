package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chat-task-bridge/internal/config"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

type globalFlags struct {
	configPath string
	dev        bool
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "bridge",
		Short:         "Bridge a chat channel to an asynchronous task provider",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "config.yaml", "path to YAML config file")
	root.PersistentFlags().BoolVar(&flags.dev, "dev", false, "developer mode: console logs, in-memory store when no database url is set")

	root.AddCommand(serveCmd(flags))
	root.AddCommand(cleanupCmd(flags))
	root.AddCommand(migrateCmd(flags))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bridge %s\n", Version)
		},
	})
	return root
}

func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath, f.dev)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
