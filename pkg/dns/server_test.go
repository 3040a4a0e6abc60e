package dns

import (
	"context"
	"testing"
	"time"

	"advoid/pkg/blocklist"
	"advoid/pkg/cache"
	"advoid/pkg/event"
	"advoid/pkg/logging"
)

func TestServerStartAndShutdown(t *testing.T) {
	decisions := cache.New(blocklist.NewSet(), 16)
	handler := NewHandler(context.Background(), decisions, &fakeExchanger{}, event.NullSink{}, newTestMetrics(), logging.NewDefault(), true)
	server := NewServer("127.0.0.1:0", handler, logging.NewDefault())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	// Give the listeners a moment to come up, then cancel.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v, want nil on graceful shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}

func TestServerStartFailsOnBadAddress(t *testing.T) {
	decisions := cache.New(blocklist.NewSet(), 16)
	handler := NewHandler(context.Background(), decisions, &fakeExchanger{}, event.NullSink{}, newTestMetrics(), logging.NewDefault(), true)
	server := NewServer("256.256.256.256:0", handler, logging.NewDefault())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Start(ctx); err == nil {
		t.Error("Start() = nil error for unbindable address")
	}
}
