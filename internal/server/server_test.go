package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"todo-app/backend/internal/config"
	"todo-app/backend/internal/events"
	"todo-app/backend/internal/middleware"
	"todo-app/backend/internal/models"
	"todo-app/backend/internal/monitoring"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "8080", Environment: "test"},
		Events: config.EventsConfig{Queue: "todo:task_events", DeadQueue: "todo:task_events:dead", MaxAttempts: 3},
		RateLimit: config.RateLimitConfig{
			Enabled:         true,
			RequestsPerMin:  120,
			BurstSize:       20,
			CleanupInterval: time.Minute,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}, MaxAge: time.Hour},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupServer(t *testing.T, cfg *config.Config, deps Dependencies) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if deps.Logger == nil {
		deps.Logger = quietLogger()
	}
	router, err := New(cfg, deps)
	require.NoError(t, err)
	return router
}

func serve(router http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestServer_TaskLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := testConfig()
	publisher := events.NewRedisPublisher(client, cfg.Events.Queue, nil)
	router := setupServer(t, cfg, Dependencies{Publisher: publisher})

	w := serve(router, http.MethodPost, "/api/tasks", "application/json", `{"description":"  Buy milk  "}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Buy milk", created["description"])
	assert.Equal(t, false, created["completed"])
	id, _ := created["id"].(string)
	require.Len(t, id, 36)

	w = serve(router, http.MethodPut, "/api/tasks/"+id, "application/json", `{"completed":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"`+id+`","completed":true,"message":"Task updated successfully"}`, w.Body.String())

	w = serve(router, http.MethodDelete, "/api/tasks/"+id, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"`+id+`","message":"Task deleted successfully"}`, w.Body.String())

	queued, err := mr.List(cfg.Events.Queue)
	require.NoError(t, err)
	require.Len(t, queued, 3)

	var types []events.Type
	for _, raw := range queued {
		var event events.Event
		require.NoError(t, json.Unmarshal([]byte(raw), &event))
		assert.Equal(t, id, event.TaskID)
		types = append(types, event.Type)
	}
	assert.Equal(t, []events.Type{events.TaskCreated, events.TaskUpdated, events.TaskDeleted}, types)
}

func TestServer_WithoutPublisher(t *testing.T) {
	router := setupServer(t, testConfig(), Dependencies{})

	w := serve(router, http.MethodPost, "/api/tasks", "application/json", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Description field is required"}`, w.Body.String())

	w = serve(router, http.MethodPost, "/api/tasks", "application/json", `{"description":"Call mom"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestServer_Pages(t *testing.T) {
	router := setupServer(t, testConfig(), Dependencies{})

	for _, path := range []string{"/", "/help", "/contact"} {
		w := serve(router, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html", path)
	}

	w := serve(router, http.MethodGet, "/does-not-exist", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Page not found")

	w = serve(router, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, w.Body.String())
}

func TestServer_HealthUsesRegisteredChecks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	publisher := events.NewRedisPublisher(client, "todo:task_events", nil)
	monitor := monitoring.NewMonitor()
	monitor.RegisterHealthCheck("redis", publisher.Health)

	router := setupServer(t, testConfig(), Dependencies{Publisher: publisher, Monitor: monitor})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/ready", "", "").Code)

	mr.Close()

	assert.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/health/ready", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live", "", "").Code)
}

func TestServer_Metrics(t *testing.T) {
	monitor := monitoring.NewMonitor()
	router := setupServer(t, testConfig(), Dependencies{Monitor: monitor})

	serve(router, http.MethodGet, "/help", "", "")
	serve(router, http.MethodPost, "/api/tasks", "application/json", "null")

	w := serve(router, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	snapshot := monitor.Snapshot()
	assert.Equal(t, int64(1), snapshot.Endpoints["GET /help"])
	assert.Equal(t, int64(1), snapshot.Endpoints["POST /api/tasks"])
	assert.Equal(t, int64(1), snapshot.StatusCodes["400"])
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RequestsPerMin = 1
	cfg.RateLimit.BurstSize = 2
	router := setupServer(t, cfg, Dependencies{})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live", "", "").Code)

	w := serve(router, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Too many requests"}`, w.Body.String())

	cfg.RateLimit.Enabled = false
	router = setupServer(t, cfg, Dependencies{})
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live", "", "").Code)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"https://todo.example.com"}
	router := setupServer(t, cfg, Dependencies{})

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks/abc123", nil)
	req.Header.Set("Origin", "https://todo.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://todo.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_PublisherOutageDoesNotFailRequests(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	publisher := events.NewRedisPublisher(client, "todo:task_events", nil)
	router := setupServer(t, testConfig(), Dependencies{Publisher: publisher})

	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Error(t, publisher.Health(ctx))

	w := serve(router, http.MethodDelete, "/api/tasks/abc123", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

type panickingTaskService struct{}

func (panickingTaskService) CreateTask(string) (*models.Task, error) {
	panic("task factory exploded")
}

func TestServer_PanicIsLoggedAndCounted(t *testing.T) {
	var logs bytes.Buffer
	monitor := monitoring.NewMonitor()
	router := setupServer(t, testConfig(), Dependencies{
		Logger:  slog.New(slog.NewJSONHandler(&logs, nil)),
		Tasks:   panickingTaskService{},
		Monitor: monitor,
	})

	for i := 0; i < 3; i++ {
		w := serve(router, http.MethodPost, "/api/tasks", "application/json", `{"description":"Buy milk"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
	}

	snapshot := monitor.Snapshot()
	assert.Equal(t, int64(0), snapshot.ActiveRequests)
	assert.Equal(t, int64(3), snapshot.RequestCount)
	assert.Equal(t, int64(3), snapshot.ErrorCount)
	assert.Equal(t, int64(3), snapshot.StatusCodes["500"])

	assert.Equal(t, 3, strings.Count(logs.String(), `"msg":"request completed"`))
	assert.Contains(t, logs.String(), `"status":500`)
	assert.Contains(t, logs.String(), `"msg":"panic recovered"`)
}
