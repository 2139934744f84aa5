package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rc-quote-api/internal/service"
)

func newMetricsRouter(h *MetricsHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)
	r.GET("/metrics/summary", h.Summary)
	return r
}

func TestMetricsHandlerReadiness(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"redis": func(context.Context) error { return nil },
	})
	w := httptest.NewRecorder()
	newMetricsRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"redis":"ok"`)

	h = NewMetricsHandler(nil, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})
	w = httptest.NewRecorder()
	newMetricsRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "NOT_READY")
	require.Contains(t, w.Body.String(), "postgres")
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodPost, "/quotes", http.StatusOK, 20*time.Millisecond)
	metrics.ObserveSubmission("sent")
	r := newMetricsRouter(NewMetricsHandler(metrics, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "rc_submissions_total")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics/summary", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"submissionsSent":1`)
	require.Contains(t, w.Body.String(), `"requestsTotal":1`)

	w = httptest.NewRecorder()
	newMetricsRouter(NewMetricsHandler(nil, nil)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
