package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kiranshivaraju/voicepipe/internal/config"
	"github.com/kiranshivaraju/voicepipe/internal/metrics"
	"github.com/kiranshivaraju/voicepipe/pkg/models"
	"golang.org/x/sync/singleflight"
)

const (
	healthCheckPrompt = "Health check - respond with 'OK'"
	healthFlightKey   = "health"
)

// Caller issues a single logical AI request. Stage executors depend on this
// rather than on *Client so tests can script responses.
type Caller interface {
	Call(ctx context.Context, req models.GenerateRequest) (string, error)
}

// Client wraps an AIProvider with a shared min-interval gate, a per-attempt
// timeout and exponential-backoff retries.
type Client struct {
	provider models.AIProvider
	gate     *Gate
	cfg      config.AIConfig
	metrics  *metrics.Metrics

	healthFlight singleflight.Group
	healthMu     sync.Mutex
	healthAt     time.Time
	healthOK     bool
}

// NewClient creates a Client. One Client should be shared by every job in the
// process so the gate spaces out all calls to the backend.
func NewClient(provider models.AIProvider, cfg config.AIConfig, m *metrics.Metrics) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Client{
		provider: provider,
		gate:     NewGate(cfg.MinInterval),
		cfg:      cfg,
		metrics:  m,
	}
}

// Provider returns the name of the wrapped provider.
func (c *Client) Provider() string { return c.provider.Name() }

// Call sends req, retrying timeouts, transport errors, 429 and 5xx responses.
// A 4xx response fails immediately with ErrRequestRejected; exhausting every
// attempt returns ErrBackendUnavailable. Empty model text is ErrMalformedResponse.
// ctx is checked between attempts; an attempt already started runs to its
// own timeout.
func (c *Client) Call(ctx context.Context, req models.GenerateRequest) (string, error) {
	var (
		text    string
		attempt int
	)

	op := func() error {
		attempt++
		if err := c.gate.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		start := time.Now()
		out, err := c.attempt(ctx, req)
		elapsed := time.Since(start)

		outcome := "success"
		if err != nil {
			outcome = outcomeOf(err)
		}
		c.metrics.ObserveAIAttempt(c.provider.Name(), outcome, elapsed)

		if err != nil {
			slog.Warn("ai call attempt failed",
				"provider", c.provider.Name(),
				"modality", req.Modality,
				"attempt", attempt,
				"max_attempts", c.cfg.MaxAttempts,
				"duration_ms", elapsed.Milliseconds(),
				"error", err,
			)
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		slog.Debug("ai call succeeded",
			"provider", c.provider.Name(),
			"modality", req.Modality,
			"attempt", attempt,
			"duration_ms", elapsed.Milliseconds(),
		)
		text = out
		return nil
	}

	notify := func(err error, wait time.Duration) {
		slog.Info("retrying ai call", "provider", c.provider.Name(), "attempt", attempt, "wait_ms", wait.Milliseconds())
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return "", c.finalError(err, attempt)
	}
	return text, nil
}

// HealthCheck reports whether the backend answered a tiny request with any
// text. A result is reused for the configured health interval and concurrent
// callers share one in-flight probe. It never retries and never panics.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if ok, fresh := c.cachedHealth(); fresh {
		return ok
	}

	// The probe outlives callers that give up so its result can be cached.
	probeCtx := context.WithoutCancel(ctx)
	ch := c.healthFlight.DoChan(healthFlightKey, func() (any, error) {
		if ok, fresh := c.cachedHealth(); fresh {
			return ok, nil
		}

		ok := c.probe(probeCtx)
		c.healthMu.Lock()
		c.healthAt = time.Now()
		c.healthOK = ok
		c.healthMu.Unlock()
		return ok, nil
	})

	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

func (c *Client) cachedHealth() (ok, fresh bool) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	if c.healthAt.IsZero() || time.Since(c.healthAt) >= c.cfg.HealthInterval {
		return false, false
	}
	return c.healthOK, true
}

func (c *Client) probe(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in ai health check", "error", r)
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	if err := c.gate.Wait(ctx); err != nil {
		slog.Warn("ai health check gave up waiting for gate", "provider", c.provider.Name(), "error", err)
		return false
	}
	text, err := c.attempt(ctx, models.GenerateRequest{
		Modality:    models.ModalityText,
		Instruction: healthCheckPrompt,
		Params:      models.GenerationParams{MaxOutputTokens: 10},
	})
	if err != nil {
		slog.Warn("ai health check failed", "provider", c.provider.Name(), "error", err)
		return false
	}
	return text != ""
}

// attempt performs one provider call bounded by the configured timeout. The
// attempt context is detached from ctx's cancellation.
func (c *Client) attempt(ctx context.Context, req models.GenerateRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CallTimeout)
	defer cancel()

	text, err := c.provider.Generate(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrCallTimeout) {
			return "", fmt.Errorf("%w: %v", ErrCallTimeout, err)
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response text", ErrMalformedResponse)
	}
	return text, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryBaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (c *Client) finalError(err error, attempts int) error {
	if errors.Is(err, context.Canceled) || (errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrCallTimeout)) {
		return err
	}
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrRequestRejected) {
		return err
	}
	if code, ok := statusOf(err); ok && !retryableStatus(code) {
		return fmt.Errorf("%w: %v", ErrRequestRejected, err)
	}
	slog.Error("ai call failed after retries",
		"provider", c.provider.Name(),
		"attempts", attempts,
		"error", err,
	)
	return fmt.Errorf("%w after %d attempts: %v", ErrBackendUnavailable, attempts, err)
}

func outcomeOf(err error) string {
	if errors.Is(err, ErrCallTimeout) {
		return "timeout"
	}
	if code, ok := statusOf(err); ok {
		return fmt.Sprintf("status_%d", code)
	}
	if errors.Is(err, ErrMalformedResponse) {
		return "malformed"
	}
	return "error"
}
