package main

import (
	"github.com/spf13/cobra"

	"chat-task-bridge/internal/infra/adapters/channel"
	"chat-task-bridge/internal/infra/logging"
	"chat-task-bridge/internal/infra/outbound"
	"chat-task-bridge/internal/infra/sched"
	"chat-task-bridge/internal/usecase"
)

func cleanupCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run one cleanup pass and exit",
		Long: "Sweeps expired rows child-first and reconciles stale tasks against the provider. " +
			"Runs once regardless of the configured cron, for use from an external scheduler.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			log := logging.New(cfg.Log, cfg.Runtime.Dev)

			backends, err := openInfra(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer backends.Close()

			provider, err := newProvider(cfg, log)
			if err != nil {
				return err
			}
			gw, err := channel.New(cfg.Channel, logging.Component(log, "channel"))
			if err != nil {
				return err
			}
			ob := outbound.New(gw, log)

			uc := usecase.NewCleanupUseCase(backends.repos, provider, backends.locker, ob, cleanupOptions(cfg), log)
			w, err := sched.NewCleanupWorker(cfg.Cleanup.Cron, uc, 0, log)
			if err != nil {
				return err
			}
			w.RunOnce(ctx)
			// The receive loop never runs here, so notices for a gateway that
			// only connects inside Run stay queued.
			if n := ob.Pending(); n > 0 {
				log.Warn().Int("pending", n).Msg("timeout notices not delivered by one-shot cleanup")
			}
			return nil
		},
	}
}
