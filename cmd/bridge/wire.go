package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"chat-task-bridge/internal/config"
	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/repository"
	"chat-task-bridge/internal/infra/adapters/ai"
	"chat-task-bridge/internal/infra/adapters/connectors"
	"chat-task-bridge/internal/infra/adapters/provider"
	"chat-task-bridge/internal/infra/db/memstore"
	pg "chat-task-bridge/internal/infra/db/postgres"
	"chat-task-bridge/internal/infra/lock"
	"chat-task-bridge/internal/infra/ratelimit"
	red "chat-task-bridge/internal/infra/redis"
	"chat-task-bridge/internal/usecase"
)

// infra holds the long-lived backends shared by every command.
type infra struct {
	repos   repository.Repositories
	pool    *pgxpool.Pool
	redis   *red.Client
	limiter adapter.RateLimiter
	locker  adapter.Locker
}

func (i *infra) Close() {
	if i.pool != nil {
		i.pool.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
}

func openInfra(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (*infra, error) {
	out := &infra{}
	if cfg.Database.URL == "" {
		log.Warn().Msg("no database url, using the in-memory store")
		out.repos = memstore.New().Repositories()
	} else {
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		out.pool = pool
		out.repos = pg.NewRepositories(pool)
	}

	if cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		out.redis = c
		out.locker = red.NewLocker(c)
	} else {
		out.locker = lock.NewLocal()
	}

	if cfg.RateLimit.Backend == "redis" && out.redis != nil {
		out.limiter = red.NewRateLimiter(out.redis, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	} else {
		out.limiter = ratelimit.NewSlidingWindow(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}
	return out, nil
}

func newProvider(cfg *config.Config, log *zerolog.Logger) (adapter.TaskProvider, error) {
	p, err := provider.NewClient(cfg.Provider, log)
	if err != nil {
		return nil, fmt.Errorf("task provider: %w", err)
	}
	return p, nil
}

func newMemory(ctx context.Context, cfg *config.Config, repos repository.Repositories, log *zerolog.Logger) (usecase.MemoryUseCase, adapter.Completer, error) {
	llm, err := ai.NewCompleter(ctx, cfg.LLM, log)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Memory.Enabled {
		return nil, llm, nil
	}
	tokens := ai.NewTokenCounter("", log)
	mem := usecase.NewMemoryUseCase(repos.Memories, ai.NewExtractor(cfg.Memory, llm, log), tokens, usecase.MemoryOptions{
		RetrieveLimit: cfg.Memory.RetrieveLimit,
		MinConfidence: cfg.Memory.MinConfidence,
		WindowTokens:  cfg.Memory.WindowTokens,
	}, log)
	return mem, llm, nil
}

func newConnectorCatalog(cfg *config.Config, log *zerolog.Logger) (adapter.ConnectorCatalog, error) {
	if cfg.Connectors.CatalogURL == "" {
		return nil, nil
	}
	httpCat, err := connectors.NewHTTPCatalog(cfg.Connectors.CatalogURL, cfg.Connectors.CatalogKey, 0)
	if err != nil {
		return nil, err
	}
	return connectors.NewCachedCatalog(httpCat, cfg.Connectors.CacheTTL, log), nil
}

func cleanupOptions(cfg *config.Config) usecase.CleanupOptions {
	return usecase.CleanupOptions{
		BatchSize:           cfg.Cleanup.BatchSize,
		MaxBatches:          cfg.Cleanup.MaxBatches,
		StaleAfter:          cfg.Cleanup.StaleAfter,
		WebhookQuiet:        cfg.Cleanup.WebhookQuiet,
		HardCeiling:         cfg.Cleanup.HardCeiling,
		ReconcileLimit:      cfg.Cleanup.ReconcileLimit,
		SupersededRetention: cfg.Memory.SupersededRetention,
		MessageTTL:          cfg.TTL.Message,
	}
}
