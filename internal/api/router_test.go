package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/voicepipe/internal/api"
	mw "github.com/kiranshivaraju/voicepipe/internal/api/middleware"
	"github.com/kiranshivaraju/voicepipe/internal/cache"
	"github.com/kiranshivaraju/voicepipe/internal/metrics"
	"github.com/kiranshivaraju/voicepipe/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stub cache ---

type stubCache struct {
	count int64
}

func (c *stubCache) Ping(_ context.Context) error { return nil }
func (c *stubCache) SetRecordingStatus(_ context.Context, _ string, _ models.JobStatus, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetRecordingStatus(_ context.Context, _ string) (models.JobStatus, bool, error) {
	return "", false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	c.count++
	return c.count, nil
}

// --- router tests ---

func okHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

func newTestRouter(limit int) http.Handler {
	reg := prometheus.NewRegistry()
	return api.NewRouter(api.Dependencies{
		RateLimit:      mw.NewRateLimit(&stubCache{}, limit),
		Metrics:        metrics.NewMiddleware(reg),
		HealthHandler:  okHandler(`{"status":"ok"}`),
		MetricsHandler: metrics.Handler(reg),
		UploadHandler: func(w http.ResponseWriter, r *http.Request) {
			owner, _ := mw.GetUserID(r)
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(owner))
		},
		GetRecording:    okHandler("recording"),
		RecordingStatus: okHandler("status"),
	})
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router := newTestRouter(10)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RecordingRoutes(t *testing.T) {
	router := newTestRouter(10)

	tests := []struct {
		path string
		body string
	}{
		{"/api/v1/recordings/rec-1", "recording"},
		{"/api/v1/recordings/rec-1/status", "status"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.body, w.Body.String())
		})
	}
}

func TestRouter_UploadRecordsOwner(t *testing.T) {
	router := newTestRouter(10)

	req := httptest.NewRequest("POST", "/api/v1/recordings", nil)
	req.Header.Set(mw.UserIDHeader, "user-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "user-42", w.Body.String())
}

func TestRouter_UploadIsRateLimited(t *testing.T) {
	router := newTestRouter(1)

	for i, want := range []int{http.StatusAccepted, http.StatusTooManyRequests} {
		req := httptest.NewRequest("POST", "/api/v1/recordings", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, "request %d", i)
	}

	// Polling is not limited.
	req := httptest.NewRequest("GET", "/api/v1/recordings/rec-1/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(10)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/recordings/rec-1", nil))

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `voicepipe_http_requests_total{code="200",method="GET",path="/api/v1/recordings/{recordingID}"} 1`)
}

func TestRouter_MissingHandlerIsNotImplemented(t *testing.T) {
	router := api.NewRouter(api.Dependencies{})

	req := httptest.NewRequest("GET", "/api/v1/recordings/rec-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(10)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Verify stubs satisfy interfaces
var _ cache.Cache = (*stubCache)(nil)
