package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/voicepipe/internal/metrics"
	"github.com/kiranshivaraju/voicepipe/pkg/models"
)

// Connector opens a fresh RecordStore connection.
type Connector func(ctx context.Context) (RecordStore, error)

// Guarded wraps a RecordStore with a health check before operations and a
// reconnect when the check fails. The check runs at most once per interval
// unless the previous operation failed with a connection-level error.
type Guarded struct {
	mu        sync.Mutex
	current   RecordStore
	connect   Connector
	interval  time.Duration
	lastCheck time.Time
	suspect   bool
	checking  *healthCheck
	metrics   *metrics.Metrics
}

// healthCheck is one in-flight ping or reconnect. Callers that need its
// outcome wait on done instead of starting their own.
type healthCheck struct {
	done  chan struct{}
	store RecordStore
	err   error
}

// NewGuarded creates a Guarded store. initial may be nil, in which case the
// first operation connects.
func NewGuarded(initial RecordStore, connect Connector, interval time.Duration, m *metrics.Metrics) *Guarded {
	g := &Guarded{
		current:  initial,
		connect:  connect,
		interval: interval,
		metrics:  m,
	}
	if initial != nil {
		g.lastCheck = time.Now()
	}
	return g
}

// Ping forces a health check and reports ErrStoreUnavailable if neither the
// current connection nor a reconnect works.
func (g *Guarded) Ping(ctx context.Context) error {
	g.mu.Lock()
	g.suspect = true
	g.mu.Unlock()

	_, err := g.ensure(ctx)
	return err
}

func (g *Guarded) CreateRecording(ctx context.Context, rec *models.Recording) error {
	s, err := g.ensure(ctx)
	if err != nil {
		return err
	}
	return g.observe(s.CreateRecording(ctx, rec))
}

func (g *Guarded) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	s, err := g.ensure(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.GetRecording(ctx, id)
	return rec, g.observe(err)
}

func (g *Guarded) ApplyUpdate(ctx context.Context, id string, u models.Update) error {
	s, err := g.ensure(ctx)
	if err != nil {
		return err
	}
	return g.observe(s.ApplyUpdate(ctx, id, u))
}

func (g *Guarded) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == nil {
		return nil
	}
	err := g.current.Close(ctx)
	g.current = nil
	return err
}

// ensure returns a connection that passed a recent health check, reconnecting
// if needed. The ping and reconnect run outside g.mu; while a routine recheck
// of a healthy connection is in flight other callers keep using it, and
// callers that need a fresh connection wait for the single check in progress.
func (g *Guarded) ensure(ctx context.Context) (RecordStore, error) {
	g.mu.Lock()
	if g.current != nil && !g.suspect && time.Since(g.lastCheck) < g.interval {
		s := g.current
		g.mu.Unlock()
		return s, nil
	}
	if hc := g.checking; hc != nil {
		if g.current != nil && !g.suspect {
			s := g.current
			g.mu.Unlock()
			return s, nil
		}
		g.mu.Unlock()
		select {
		case <-hc.done:
			return hc.store, hc.err
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
		}
	}
	hc := &healthCheck{done: make(chan struct{})}
	g.checking = hc
	cur := g.current
	g.mu.Unlock()

	hc.store, hc.err = g.check(ctx, cur)

	g.mu.Lock()
	g.checking = nil
	g.mu.Unlock()
	close(hc.done)
	return hc.store, hc.err
}

// check pings cur and reconnects when the ping fails. It records the
// outcome on g under g.mu but performs all network calls without it.
func (g *Guarded) check(ctx context.Context, cur RecordStore) (RecordStore, error) {
	if cur != nil {
		err := cur.Ping(ctx)
		if err == nil {
			g.mu.Lock()
			if g.current == cur {
				g.lastCheck = time.Now()
				g.suspect = false
			}
			g.mu.Unlock()
			return cur, nil
		}
		slog.Warn("document store health check failed, reconnecting", "error", err)
	}

	if g.connect == nil {
		g.markSuspect()
		return nil, fmt.Errorf("%w: no connector configured", ErrStoreUnavailable)
	}
	next, err := g.connect(ctx)
	if err != nil {
		g.markSuspect()
		g.metrics.RecordReconnect("failure")
		slog.Error("document store reconnect failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	g.metrics.RecordReconnect("success")
	slog.Info("document store reconnected")

	g.mu.Lock()
	old := g.current
	g.current = next
	g.lastCheck = time.Now()
	g.suspect = false
	g.mu.Unlock()

	if old != nil {
		if err := old.Close(ctx); err != nil {
			slog.Warn("closing stale document store connection", "error", err)
		}
	}
	return next, nil
}

func (g *Guarded) markSuspect() {
	g.mu.Lock()
	g.suspect = true
	g.mu.Unlock()
}

// observe marks the connection suspect when an operation fails for a reason
// other than an expected domain outcome.
func (g *Guarded) observe(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	g.mu.Lock()
	g.suspect = true
	g.mu.Unlock()
	return err
}

var _ RecordStore = (*Guarded)(nil)
