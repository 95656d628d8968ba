package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(m *Monitor) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(m.Middleware())
	router.POST("/api/tasks", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{})
	})
	router.DELETE("/api/tasks/:id", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Task ID is required"})
	})
	router.GET("/metrics", m.MetricsHandler())
	router.GET("/health", m.HealthHandler())
	router.GET("/health/ready", m.ReadinessHandler())
	router.GET("/health/live", m.LivenessHandler())
	return router
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestMonitor_Middleware(t *testing.T) {
	m := NewMonitor()
	router := setupRouter(m)

	serve(router, http.MethodPost, "/api/tasks")
	serve(router, http.MethodPost, "/api/tasks")
	serve(router, http.MethodDelete, "/api/tasks/%20")
	serve(router, http.MethodGet, "/nowhere")

	snapshot := m.Snapshot()
	assert.Equal(t, int64(4), snapshot.RequestCount)
	assert.Equal(t, int64(0), snapshot.ActiveRequests)
	assert.Equal(t, int64(2), snapshot.ErrorCount)
	assert.Equal(t, int64(2), snapshot.StatusCodes["201"])
	assert.Equal(t, int64(1), snapshot.StatusCodes["404"])
	assert.Equal(t, int64(2), snapshot.Endpoints["POST /api/tasks"])
	assert.Equal(t, int64(1), snapshot.Endpoints["DELETE /api/tasks/:id"])
	assert.Equal(t, int64(1), snapshot.Endpoints["GET unmatched"])
	assert.False(t, snapshot.LastRequest.IsZero())
}

func TestMonitor_SnapshotIsACopy(t *testing.T) {
	m := NewMonitor()
	serve(setupRouter(m), http.MethodPost, "/api/tasks")

	snapshot := m.Snapshot()
	snapshot.StatusCodes["201"] = 99

	assert.Equal(t, int64(1), m.Snapshot().StatusCodes["201"])
}

func TestMonitor_MetricsHandler(t *testing.T) {
	m := NewMonitor()
	w := serve(setupRouter(m), http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "application")
	assert.Contains(t, body, "system")
}

func TestMonitor_HealthChecks(t *testing.T) {
	m := NewMonitor()
	router := setupRouter(m)

	w := serve(router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code, "no checks means healthy")

	m.RegisterHealthCheck("redis", func(ctx context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/ready").Code)

	m.RegisterHealthCheck("events", func(ctx context.Context) error { return errors.New("connection refused") })

	w = serve(router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string        `json:"status"`
		Checks []HealthCheck `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	require.Len(t, body.Checks, 2)
	assert.Equal(t, "events", body.Checks[0].Name)
	assert.Equal(t, "connection refused", body.Checks[0].Message)
	assert.Equal(t, "healthy", body.Checks[1].Status)

	assert.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/health/ready").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live").Code)
}

func TestMonitor_HealthCheckTimeout(t *testing.T) {
	m := NewMonitor()
	m.checkTimeout = 0

	m.RegisterHealthCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	results := m.RunHealthChecks(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "unhealthy", results[0].Status)
}
