package ai_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/voicepipe/internal/ai"
	"github.com/kiranshivaraju/voicepipe/internal/ai/mock"
	"github.com/kiranshivaraju/voicepipe/internal/config"
	"github.com/kiranshivaraju/voicepipe/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) StatusCode() int { return e.code }

func testConfig() config.AIConfig {
	return config.AIConfig{
		CallTimeout:    time.Second,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		MinInterval:    0,
	}
}

func textRequest() models.GenerateRequest {
	return models.GenerateRequest{Modality: models.ModalityText, Instruction: "summarize"}
}

func TestCall_SuccessFirstAttempt(t *testing.T) {
	p := mock.NewScriptedProvider(mock.Response{Text: "hello"})
	c := ai.NewClient(p, testConfig(), nil)

	text, err := c.Call(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, 1, p.CallCount())
}

func TestCall_RetriesServerErrorsThenSucceeds(t *testing.T) {
	p := mock.NewScriptedProvider(
		mock.Response{Err: statusErr{503}},
		mock.Response{Err: statusErr{500}},
		mock.Response{Text: "recovered"},
	)
	c := ai.NewClient(p, testConfig(), nil)

	text, err := c.Call(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 3, p.CallCount())
}

func TestCall_RetriesRateLimited(t *testing.T) {
	p := mock.NewScriptedProvider(
		mock.Response{Err: statusErr{429}},
		mock.Response{Text: "ok"},
	)
	c := ai.NewClient(p, testConfig(), nil)

	text, err := c.Call(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, p.CallCount())
}

func TestCall_RetriesTransportErrors(t *testing.T) {
	p := mock.NewScriptedProvider(
		mock.Response{Err: errors.New("connection reset by peer")},
		mock.Response{Text: "ok"},
	)
	c := ai.NewClient(p, testConfig(), nil)

	_, err := c.Call(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, p.CallCount())
}

func TestCall_ClientErrorFailsFast(t *testing.T) {
	for _, code := range []int{400, 401, 403, 404} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			p := mock.NewScriptedProvider(mock.Response{Err: statusErr{code}})
			c := ai.NewClient(p, testConfig(), nil)

			_, err := c.Call(context.Background(), textRequest())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ai.ErrRequestRejected), "got %v", err)
			assert.Equal(t, 1, p.CallCount())
		})
	}
}

func TestCall_ExhaustedRetries(t *testing.T) {
	p := mock.NewFailingProvider(statusErr{502})
	c := ai.NewClient(p, testConfig(), nil)

	_, err := c.Call(context.Background(), textRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrBackendUnavailable), "got %v", err)
	assert.Equal(t, 3, p.CallCount())
}

func TestCall_SingleAttemptConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	p := mock.NewFailingProvider(statusErr{503})
	c := ai.NewClient(p, cfg, nil)

	_, err := c.Call(context.Background(), textRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrBackendUnavailable))
	assert.Equal(t, 1, p.CallCount())
}

func TestCall_EmptyTextIsMalformed(t *testing.T) {
	p := mock.NewScriptedProvider(mock.Response{Text: "   \n"})
	c := ai.NewClient(p, testConfig(), nil)

	_, err := c.Call(context.Background(), textRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrMalformedResponse), "got %v", err)
	assert.Equal(t, 1, p.CallCount())
}

func TestCall_PerAttemptTimeoutIsRetried(t *testing.T) {
	cfg := testConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	cfg.MaxAttempts = 2
	p := mock.NewTimeoutProvider()
	c := ai.NewClient(p, cfg, nil)

	start := time.Now()
	_, err := c.Call(context.Background(), textRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrBackendUnavailable), "got %v", err)
	assert.Equal(t, 2, p.CallCount())
	assert.Less(t, time.Since(start), time.Second)
}

func TestCall_StartedAttemptSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &mock.MockProvider{
		Name_: "mock-slow",
		GenerateFunc: func(callCtx context.Context, _ models.GenerateRequest) (string, error) {
			cancel()
			select {
			case <-callCtx.Done():
				return "", callCtx.Err()
			case <-time.After(30 * time.Millisecond):
				return "finished", nil
			}
		},
	}
	c := ai.NewClient(p, testConfig(), nil)

	text, err := c.Call(ctx, textRequest())
	require.NoError(t, err)
	assert.Equal(t, "finished", text)
}

func TestCall_CancelledBetweenAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBaseDelay = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	p := &mock.MockProvider{
		Name_: "mock-cancel",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			cancel()
			return "", statusErr{503}
		},
	}
	c := ai.NewClient(p, cfg, nil)

	_, err := c.Call(ctx, textRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Equal(t, 1, p.CallCount())
}

func TestCall_MinIntervalBetweenAttemptStarts(t *testing.T) {
	const (
		interval = 40 * time.Millisecond
		calls    = 4
	)
	cfg := testConfig()
	cfg.MinInterval = interval

	var (
		mu     sync.Mutex
		starts []time.Time
	)
	p := &mock.MockProvider{
		Name_: "mock-timed",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			return "ok", nil
		},
	}
	c := ai.NewClient(p, cfg, nil)

	begin := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Call(context.Background(), textRequest())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, starts, calls)
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i, s := range starts {
		assert.GreaterOrEqual(t, s.Sub(begin), time.Duration(i)*interval, "start %d", i)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		c := ai.NewClient(mock.NewMockProvider(), testConfig(), nil)
		assert.True(t, c.HealthCheck(context.Background()))
	})

	t.Run("backend error", func(t *testing.T) {
		p := mock.NewFailingProvider(statusErr{503})
		c := ai.NewClient(p, testConfig(), nil)
		assert.False(t, c.HealthCheck(context.Background()))
		assert.Equal(t, 1, p.CallCount(), "health check must not retry")
	})

	t.Run("empty answer", func(t *testing.T) {
		c := ai.NewClient(mock.NewScriptedProvider(mock.Response{Text: ""}), testConfig(), nil)
		assert.False(t, c.HealthCheck(context.Background()))
	})

	t.Run("provider panics", func(t *testing.T) {
		p := &mock.MockProvider{
			Name_: "mock-panic",
			GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
				panic("boom")
			},
		}
		c := ai.NewClient(p, testConfig(), nil)
		assert.False(t, c.HealthCheck(context.Background()))
	})
}

func TestHealthCheck_ReusesResultWithinInterval(t *testing.T) {
	cfg := testConfig()
	cfg.HealthInterval = time.Hour
	p := mock.NewMockProvider()
	c := ai.NewClient(p, cfg, nil)

	for i := 0; i < 5; i++ {
		assert.True(t, c.HealthCheck(context.Background()))
	}
	assert.Equal(t, 1, p.CallCount())
}

func TestHealthCheck_ConcurrentCallersShareOneProbe(t *testing.T) {
	cfg := testConfig()
	cfg.HealthInterval = time.Hour
	release := make(chan struct{})
	p := mock.NewBlockingProvider(release)
	c := ai.NewClient(p, cfg, nil)

	const callers = 10
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		go func() { results <- c.HealthCheck(context.Background()) }()
	}

	require.Eventually(t, func() bool { return p.CallCount() == 1 }, time.Second, 5*time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		assert.True(t, <-results)
	}
	assert.Equal(t, 1, p.CallCount())
}

func TestHealthCheck_AbandonedChecksDoNotDelayCalls(t *testing.T) {
	const interval = 100 * time.Millisecond
	cfg := testConfig()
	cfg.MinInterval = interval
	cfg.HealthInterval = time.Hour
	p := mock.NewMockProvider()
	c := ai.NewClient(p, cfg, nil)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
			defer cancel()
			c.HealthCheck(ctx)
		}()
	}
	wg.Wait()

	start := time.Now()
	_, err := c.Call(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*interval)
	assert.Equal(t, 2, p.CallCount(), "one health probe and one call")
}
