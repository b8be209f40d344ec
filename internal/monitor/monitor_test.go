package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/torrents3/torrents3/internal/logging"
)

func TestRunStopsOnContextCancel(t *testing.T) {
	m := New(t.TempDir(), 0, logging.New(false))
	m.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestOnLowSpaceFiresBelowBudget(t *testing.T) {
	m := New(t.TempDir(), 1<<62, logging.New(false))
	var gotFree, gotBudget int64
	m.OnLowSpace(func(free, budget int64) {
		gotFree, gotBudget = free, budget
	})
	m.sample()
	if gotBudget != 1<<62 {
		t.Fatalf("expected OnLowSpace to fire with an unreachable budget, got free=%d budget=%d", gotFree, gotBudget)
	}
}
