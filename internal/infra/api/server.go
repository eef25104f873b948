// Package api serves the provider webhook, health and metrics endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chat-task-bridge/internal/infra/logging"
	"chat-task-bridge/internal/infra/worker"
	"chat-task-bridge/internal/usecase"
)

// Submitter runs detached work; *worker.Pool satisfies it.
type Submitter interface {
	Submit(task worker.Task) error
}

type Options struct {
	WebhookPath string
	Secret      string
	// Sync processes events inline instead of on the pool.
	Sync bool
	// Health reports extra fields for /healthz.
	Health func() map[string]any
}

type Server struct {
	webhook usecase.WebhookUseCase
	pool    Submitter
	opts    Options
	secret  []byte
	log     *zerolog.Logger
}

func NewServer(webhook usecase.WebhookUseCase, pool Submitter, opts Options, logger *zerolog.Logger) *Server {
	if opts.WebhookPath == "" {
		opts.WebhookPath = "/webhooks/provider"
	}
	if pool == nil {
		opts.Sync = true
	}
	return &Server{
		webhook: webhook,
		pool:    pool,
		opts:    opts,
		secret:  []byte(opts.Secret),
		log:     logging.Component(logger, "http"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(TraceID())
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))

	r.With(Timeout(30*time.Second)).Post(s.opts.WebhookPath, s.handleWebhook)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

type webhookResponse struct {
	Status  string `json:"status"`
	EventID string `json:"event_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.With(ctx, s.log)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, usecase.MaxWebhookPayload))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			log.Warn().Int64("limit", tooBig.Limit).Msg("webhook payload too large")
		}
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: string(usecase.WebhookInvalidPayload)})
		return
	}
	req := usecase.WebhookRequest{Secret: presentedSecret(r, s.secret), Payload: body}

	if s.opts.Sync {
		res := s.webhook.HandleWebhook(ctx, req)
		writeJSON(w, statusCode(res.Status), toResponse(res))
		return
	}

	res, ev := s.webhook.Accept(ctx, req)
	if res.Status != usecase.WebhookAccepted {
		writeJSON(w, statusCode(res.Status), toResponse(res))
		return
	}
	traceID := logging.TraceID(ctx)
	err = s.pool.Submit(func(poolCtx context.Context) error {
		pctx := logging.WithTraceID(poolCtx, traceID)
		out := s.webhook.ProcessAccepted(pctx, ev)
		if out.Status == usecase.WebhookFailed {
			return errors.New(out.Error)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID()).Msg("worker pool saturated, event left for redelivery")
		s.webhook.Abandon(context.WithoutCancel(ctx), ev, err.Error())
		writeJSON(w, http.StatusServiceUnavailable, webhookResponse{Status: string(usecase.WebhookFailed), EventID: ev.ID(), Error: err.Error()})
		return
	}
	writeJSON(w, statusCode(res.Status), toResponse(res))
}

func statusCode(st usecase.WebhookStatus) int {
	switch st {
	case usecase.WebhookUnauthorized:
		return http.StatusUnauthorized
	case usecase.WebhookInvalidPayload:
		return http.StatusBadRequest
	case usecase.WebhookAccepted:
		return http.StatusAccepted
	case usecase.WebhookFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func toResponse(res usecase.WebhookResult) webhookResponse {
	return webhookResponse{Status: string(res.Status), EventID: res.EventID, Error: res.Error}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{"status": "ok"}
	if s.opts.Health != nil {
		for k, v := range s.opts.Health() {
			out[k] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe runs the HTTP server until ctx is done, then shuts it down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger *zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
