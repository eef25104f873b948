// Package connectors fetches the provider's connector catalog.
package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/infra/metrics"
)

var (
	_ adapter.ConnectorCatalog = (*HTTPCatalog)(nil)
	_ adapter.ConnectorCatalog = (*CachedCatalog)(nil)
)

// HTTPCatalog lists connectors from a JSON endpoint. Both a bare array and
// {"connectors":[...]} are accepted.
type HTTPCatalog struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPCatalog(url, apiKey string, timeout time.Duration) (*HTTPCatalog, error) {
	if url == "" {
		return nil, errors.New("catalog url empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCatalog{url: url, apiKey: apiKey, client: &http.Client{Timeout: timeout}}, nil
}

type catalogEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *HTTPCatalog) List(ctx context.Context) ([]model.Connector, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("API_KEY", h.apiKey)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("catalog read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: http %d", resp.StatusCode)
	}

	var entries []catalogEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		var wrapped struct {
			Connectors []catalogEntry `json:"connectors"`
		}
		if werr := json.Unmarshal(body, &wrapped); werr != nil {
			return nil, fmt.Errorf("catalog decode: %w", err)
		}
		entries = wrapped.Connectors
	}
	out := make([]model.Connector, 0, len(entries))
	for _, e := range entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = id
		}
		out = append(out, model.Connector{ID: id, Name: name})
	}
	return out, nil
}

// CachedCatalog keeps the last good listing for ttl. Concurrent refreshes are
// collapsed, and a failed refresh serves the stale listing when one exists.
type CachedCatalog struct {
	inner adapter.ConnectorCatalog
	ttl   time.Duration
	log   *zerolog.Logger
	group singleflight.Group
	now   func() time.Time

	mu        sync.RWMutex
	items     []model.Connector
	fetchedAt time.Time
}

func NewCachedCatalog(inner adapter.ConnectorCatalog, ttl time.Duration, logger *zerolog.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	l := logger.With().Str("component", "connector_catalog").Logger()
	return &CachedCatalog{inner: inner, ttl: ttl, log: &l, now: time.Now}
}

func (c *CachedCatalog) List(ctx context.Context) ([]model.Connector, error) {
	c.mu.RLock()
	items, at := c.items, c.fetchedAt
	c.mu.RUnlock()
	if !at.IsZero() && c.now().Sub(at) < c.ttl {
		metrics.IncCacheRequest("connector_catalog", "hit")
		return items, nil
	}
	metrics.IncCacheRequest("connector_catalog", "miss")

	v, err, _ := c.group.Do("catalog", func() (any, error) {
		c.mu.RLock()
		fresh := !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl
		cached := c.items
		c.mu.RUnlock()
		if fresh {
			return cached, nil
		}
		list, err := c.inner.List(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items, c.fetchedAt = list, c.now()
		c.mu.Unlock()
		return list, nil
	})
	if err != nil {
		if !at.IsZero() {
			metrics.IncCacheRequest("connector_catalog", "stale")
			c.log.Warn().Err(err).Msg("catalog refresh failed, serving stale listing")
			return items, nil
		}
		return nil, err
	}
	return v.([]model.Connector), nil
}
