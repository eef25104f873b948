// Package fetch downloads provider attachments.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/adapter"
)

var _ adapter.FileFetcher = (*HTTPFetcher)(nil)

const DefaultMaxBytes = 64 << 20

type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}, maxBytes: maxBytes}
}

// Fetch fails with domain.ErrAttachmentFetchFailed on non-200 answers and on
// bodies larger than the configured limit.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrAttachmentFetchFailed, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrAttachmentFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: http %d", domain.ErrAttachmentFetchFailed, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrAttachmentFetchFailed, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", fmt.Errorf("%w: larger than %d bytes", domain.ErrAttachmentFetchFailed, f.maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
