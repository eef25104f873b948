// File: internal/infra/adapters/provider/client.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chat-task-bridge/internal/config"
	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/infra/logging"
	"chat-task-bridge/internal/infra/metrics"
)

var _ adapter.TaskProvider = (*Client)(nil)

const (
	apiKeyHeader = "API_KEY"
	maxErrorBody = 2048
	maxBackoff   = 30 * time.Second
)

// Client implements adapter.TaskProvider over the provider's REST API.
// Requests are paced client side and 5xx/429 answers are retried with
// exponential backoff up to MaxAttempts.
type Client struct {
	baseURL     string
	apiKey      string
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
	log         *zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg config.ProviderConfig, logger *zerolog.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid provider base url: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("provider api key empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.BaseBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, 1),
		maxAttempts: attempts,
		backoff:     backoff,
		log:         logging.Component(logger, "provider"),
		sleep:       sleepCtx,
	}, nil
}

type createTaskRequest struct {
	Prompt      string   `json:"prompt"`
	TaskID      string   `json:"taskId,omitempty"`
	TaskMode    string   `json:"taskMode,omitempty"`
	Interactive bool     `json:"interactiveMode"`
	Connectors  []string `json:"connectors,omitempty"`
}

type createTaskResponse struct {
	TaskID    string `json:"task_id"`
	TaskTitle string `json:"task_title"`
	TaskURL   string `json:"task_url"`
}

type getTaskResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (c *Client) CreateTask(ctx context.Context, prompt string, opts adapter.TaskOptions) (adapter.ProviderTaskRef, error) {
	defer logging.TraceDuration(c.log, "provider.CreateTask")()
	var out createTaskResponse
	err := c.do(ctx, "create", http.MethodPost, "/v1/tasks", createTaskRequest{
		Prompt:      prompt,
		TaskMode:    opts.Mode,
		Interactive: opts.Interactive,
		Connectors:  opts.Connectors,
	}, &out)
	if err != nil {
		return adapter.ProviderTaskRef{}, err
	}
	if out.TaskID == "" {
		return adapter.ProviderTaskRef{}, errors.New("provider create: response without task_id")
	}
	return adapter.ProviderTaskRef{TaskID: out.TaskID, Title: out.TaskTitle, URL: out.TaskURL}, nil
}

// ContinueTask posts a follow-up prompt into an existing provider task.
func (c *Client) ContinueTask(ctx context.Context, providerTaskID, prompt string, opts adapter.TaskOptions) error {
	defer logging.TraceDuration(c.log, "provider.ContinueTask")()
	return c.do(ctx, "continue", http.MethodPost, "/v1/tasks", createTaskRequest{
		Prompt:      prompt,
		TaskID:      providerTaskID,
		TaskMode:    opts.Mode,
		Interactive: opts.Interactive,
		Connectors:  opts.Connectors,
	}, nil)
}

func (c *Client) GetTask(ctx context.Context, providerTaskID string) (adapter.ProviderTaskStatus, error) {
	defer logging.TraceDuration(c.log, "provider.GetTask")()
	var out getTaskResponse
	if err := c.do(ctx, "get", http.MethodGet, "/v1/tasks/"+url.PathEscape(providerTaskID), nil, &out); err != nil {
		return adapter.ProviderTaskStatus{}, err
	}
	return adapter.ProviderTaskStatus{Status: strings.ToLower(out.Status), Error: out.Error}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveProviderCall(op, time.Since(start).Milliseconds(), err == nil) }()

	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("provider %s: encode: %w", op, err)
		}
	}

	for attempt := 1; ; attempt++ {
		if err = c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("provider %s: %w", op, err)
		}
		status, respBody, reqErr := c.attempt(ctx, method, path, payload)
		metrics.IncProviderRequest(op, status)

		switch {
		case reqErr == nil && status >= 200 && status < 300:
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err = json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("provider %s: decode: %w", op, err)
			}
			return nil
		case reqErr != nil:
			err = fmt.Errorf("provider %s: %w", op, reqErr)
			// A POST that timed out may still have been accepted; resending would open a second task.
			if ctx.Err() != nil || method != http.MethodGet {
				return err
			}
		default:
			err = &HTTPError{Op: op, Status: status, Body: string(respBody)}
			if !retryable(status) {
				return err
			}
		}

		if attempt >= c.maxAttempts {
			c.log.Warn().Err(err).Str("op", op).Int("attempts", attempt).Msg("provider call failed")
			return err
		}
		wait := c.backoffFor(attempt)
		c.log.Debug().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", wait).Msg("retrying provider call")
		if serr := c.sleep(ctx, wait); serr != nil {
			return err
		}
	}
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	limit := int64(1 << 20)
	if resp.StatusCode >= 300 {
		limit = maxErrorBody
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// backoffFor doubles the base delay per attempt, capped at maxBackoff.
func (c *Client) backoffFor(attempt int) time.Duration {
	if attempt > 16 {
		return maxBackoff
	}
	d := c.backoff << (attempt - 1)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
