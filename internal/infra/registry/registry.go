// Package registry holds the process-wide collaborators that must outlive a
// single request: the sender rate limiter, the outbound queue and the webhook
// worker pool. Init is idempotent so a re-entered process reuses them.
package registry

import (
	"context"
	"sync"
	"time"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/infra/outbound"
	"chat-task-bridge/internal/infra/worker"

	"github.com/rs/zerolog"
)

type Options struct {
	Gateway       adapter.ChannelGateway
	Limiter       adapter.RateLimiter
	Workers       int
	QueueSize     int
	FlushInterval time.Duration
}

type Registry struct {
	mu       sync.Mutex
	inited   bool
	log      *zerolog.Logger
	gateway  adapter.ChannelGateway
	limiter  adapter.RateLimiter
	outbound *outbound.Adapter
	pool     *worker.Pool
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(log *zerolog.Logger) *Registry {
	return &Registry{log: log}
}

// Init builds the shared components and starts the flush loop and worker
// pool. Calls after the first return the existing instance unchanged.
func (r *Registry) Init(ctx context.Context, opts Options) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inited {
		r.log.Debug().Msg("registry already initialized")
		return r
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.gateway = opts.Gateway
	r.limiter = opts.Limiter
	r.outbound = outbound.New(opts.Gateway, r.log)
	r.pool = worker.NewPool(opts.Workers, opts.QueueSize, r.log)
	r.pool.Start(runCtx)

	interval := opts.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	go func() {
		defer close(r.done)
		r.outbound.Run(runCtx, interval)
	}()
	r.inited = true
	r.log.Info().Str("gateway", opts.Gateway.Name()).Msg("registry initialized")
	return r
}

func (r *Registry) Gateway() adapter.ChannelGateway { return r.gateway }
func (r *Registry) Limiter() adapter.RateLimiter    { return r.limiter }
func (r *Registry) Outbound() *outbound.Adapter     { return r.outbound }
func (r *Registry) Pool() *worker.Pool              { return r.pool }

// OnReconnect is handed to gateways so a restored connection drains the queue.
func (r *Registry) OnReconnect(ctx context.Context) {
	if ob := r.Outbound(); ob != nil {
		ob.Flush(ctx)
	}
}

// Shutdown stops the flush loop and drains the worker pool. Safe to call twice.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if !r.inited {
		r.mu.Unlock()
		return
	}
	r.inited = false
	cancel, done, pool := r.cancel, r.done, r.pool
	r.mu.Unlock()

	pool.Stop()
	cancel()
	<-done
}
