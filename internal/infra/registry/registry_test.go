//go:build !integration

package registry

import (
	"context"
	"io"
	"testing"
	"time"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/infra/ratelimit"

	"github.com/rs/zerolog"
)

type stubGateway struct{}

func (stubGateway) Name() string                                          { return "stub" }
func (stubGateway) SendText(context.Context, string, string) error        { return nil }
func (stubGateway) SendMedia(context.Context, string, adapter.Media) error { return nil }
func (stubGateway) SetTyping(context.Context, string, bool) error         { return nil }
func (stubGateway) IsConnected() bool                                     { return true }
func (stubGateway) DownloadMedia(context.Context, string) ([]byte, error) { return nil, nil }

func TestInit_IsIdempotent(t *testing.T) {
	logger := zerolog.New(io.Discard)
	r := New(&logger)
	opts := Options{
		Gateway:       stubGateway{},
		Limiter:       ratelimit.NewSlidingWindow(5, time.Minute),
		Workers:       1,
		QueueSize:     4,
		FlushInterval: time.Hour,
	}
	r.Init(context.Background(), opts)
	first := r.Outbound()
	firstPool := r.Pool()

	opts.Limiter = ratelimit.NewSlidingWindow(1, time.Second)
	r.Init(context.Background(), opts)
	if r.Outbound() != first || r.Pool() != firstPool {
		t.Fatal("second Init replaced shared components")
	}
	r.Shutdown()
	r.Shutdown()
}
