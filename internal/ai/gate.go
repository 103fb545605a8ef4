package ai

import (
	"context"
	"sync"
	"time"
)

// Gate spaces out call starts so that consecutive starts are at least
// interval apart across every goroutine sharing it. A start is claimed only
// when it is due; a waiter whose ctx ends never holds a slot.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func NewGate(interval time.Duration) *Gate {
	return &Gate{interval: interval}
}

// Wait blocks until a start is due and claims it, or until ctx ends.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		g.mu.Lock()
		now := time.Now()
		due := g.last.Add(g.interval)
		if g.last.IsZero() || !now.Before(due) {
			g.last = now
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		t := time.NewTimer(due.Sub(now))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}
