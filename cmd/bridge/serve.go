package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chat-task-bridge/internal/config"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/infra/adapters/ai"
	"chat-task-bridge/internal/infra/adapters/channel"
	"chat-task-bridge/internal/infra/adapters/fetch"
	"chat-task-bridge/internal/infra/adapters/responder"
	"chat-task-bridge/internal/infra/api"
	pg "chat-task-bridge/internal/infra/db/postgres"
	"chat-task-bridge/internal/infra/i18n"
	"chat-task-bridge/internal/infra/logging"
	"chat-task-bridge/internal/infra/metrics"
	"chat-task-bridge/internal/infra/registry"
	"chat-task-bridge/internal/infra/sched"
	"chat-task-bridge/internal/usecase"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the channel gateway, webhook server and cleanup schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	log.Info().Str("version", Version).Str("channel", cfg.Channel.Kind).Msg("starting bridge")

	backends, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()
	repos := backends.repos

	gw, err := channel.New(cfg.Channel, logging.Component(log, "channel"))
	if err != nil {
		return err
	}
	reg := registry.New(log).Init(ctx, registry.Options{
		Gateway:       gw,
		Limiter:       backends.limiter,
		Workers:       cfg.Webhook.Workers,
		QueueSize:     cfg.Webhook.QueueSize,
		FlushInterval: cfg.Channel.FlushInterval,
	})
	defer reg.Shutdown()
	gw.OnConnect(func() { reg.OnReconnect(ctx) })

	provider, err := newProvider(cfg, log)
	if err != nil {
		return err
	}
	memory, llm, err := newMemory(ctx, cfg, repos, log)
	if err != nil {
		return err
	}
	classifier, err := ai.NewClassifier(cfg.Router.Classifier, llm, ai.NewTokenCounter("", log), log)
	if err != nil {
		return err
	}
	renderer := ai.NewRenderer(cfg.Personality, llm, log)
	catalog, err := newConnectorCatalog(cfg, log)
	if err != nil {
		return err
	}
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	outbound := reg.Outbound()
	inboundUC := usecase.NewInboundUseCase(gw, reg.Limiter(), repos.Sessions, repos.Messages, cfg.TTL.Session, cfg.TTL.Message, log)
	routerUC := usecase.NewRouterUseCase(classifier, repos.Messages, cfg.Router.Timeout, cfg.Router.MaxActiveTasks, log)
	connectorUC := usecase.NewConnectorUseCase(cfg.Connectors.Aliases, catalog, repos.Sessions, log)
	taskUC := usecase.NewTaskUseCase(provider, repos.Tasks, repos.Messages, outbound, connectorUC, memory, renderer, usecase.TaskOptions{
		Interactive: cfg.Provider.Interactive,
		Mode:        cfg.Provider.TaskMode,
		TaskTTL:     cfg.TTL.Task,
		MessageTTL:  cfg.TTL.Message,
	}, log)
	dispatchUC := usecase.NewDispatchUseCase(inboundUC, routerUC, taskUC, memory, responder.New(tr), repos, outbound, cfg.TTL.Message, log)

	processor := usecase.NewEventProcessor(repos, outbound, fetch.NewHTTPFetcher(0, 0), renderer, memory, usecase.ProcessorOptions{
		ForwardProgress: cfg.Webhook.ForwardProgress,
		MessageTTL:      cfg.TTL.Message,
		AttachmentTTL:   cfg.TTL.Attachment,
	}, log)
	webhookUC := usecase.NewWebhookUseCase(cfg.Server.WebhookSecret, repos.Events, processor, cfg.TTL.WebhookEvent, log)

	cleanupUC := usecase.NewCleanupUseCase(repos, provider, backends.locker, outbound, cleanupOptions(cfg), log)
	cleanupWorker, err := sched.NewCleanupWorker(cfg.Cleanup.Cron, cleanupUC, 0, log)
	if err != nil {
		return err
	}

	srv := api.NewServer(webhookUC, reg.Pool(), api.Options{
		WebhookPath: cfg.Server.WebhookPath,
		Secret:      cfg.Server.WebhookSecret,
		Sync:        cfg.Server.SyncWebhooks,
		Health: func() map[string]any {
			return map[string]any{
				"channel":           gw.Name(),
				"channel_connected": gw.IsConnected(),
				"outbound_pending":  outbound.Pending(),
			}
		},
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.Server.Port), srv.Router(), log)
	})
	g.Go(func() error {
		return gw.Run(gctx, dispatchHandler(dispatchUC, cfg.Runtime.Dev, log))
	})
	g.Go(func() error {
		return ignoreCanceled(cleanupWorker.Run(gctx))
	})
	if backends.pool != nil {
		g.Go(func() error {
			pg.ReportPoolStats(gctx, backends.pool, 30*time.Second)
			return nil
		})
	}

	err = g.Wait()
	if n := outbound.Pending(); n > 0 {
		log.Warn().Int("pending", n).Msg("shutting down with undelivered outbound messages")
	}
	log.Info().Msg("bridge stopped")
	return ignoreCanceled(err)
}

// dispatchHandler adapts the dispatch use case to the gateway callback. A
// failing message is logged and never stops the receive loop.
func dispatchHandler(uc usecase.DispatchUseCase, dev bool, log *zerolog.Logger) func(context.Context, model.RawChannelMessage) {
	return func(ctx context.Context, raw model.RawChannelMessage) {
		res, err := uc.Dispatch(ctx, raw)
		chat := logging.Redact(raw.ChatID, dev)
		if err != nil {
			log.Error().Err(err).Str("chat_id", chat).Str("status", string(res.Status)).Msg("dispatch failed")
			return
		}
		log.Debug().Str("chat_id", chat).Str("status", string(res.Status)).Msg("message dispatched")
	}
}

func ignoreCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
