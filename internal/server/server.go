// Package server assembles the HTTP engine from the application's handlers
// and middleware.
package server

import (
	"fmt"
	"log/slog"

	"todo-app/backend/internal/config"
	"todo-app/backend/internal/events"
	"todo-app/backend/internal/handlers"
	"todo-app/backend/internal/middleware"
	"todo-app/backend/internal/monitoring"
	"todo-app/backend/internal/services"
	"todo-app/backend/internal/web"

	"github.com/gin-gonic/gin"
)

type Dependencies struct {
	Logger    *slog.Logger
	Tasks     services.TaskService
	Publisher events.Publisher
	Monitor   *monitoring.Monitor
	// RateLimiter is required when rate limiting is enabled. The caller owns
	// its cleanup loop.
	RateLimiter *middleware.RateLimiter
}

func New(cfg *config.Config, deps Dependencies) (*gin.Engine, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tasks == nil {
		deps.Tasks = services.NewTaskManager()
	}
	if deps.Monitor == nil {
		deps.Monitor = monitoring.NewMonitor()
	}
	if cfg.RateLimit.Enabled && deps.RateLimiter == nil {
		deps.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit)
	}

	templates, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	router := gin.New()
	router.SetHTMLTemplate(templates)

	// Recovery sits inside the logger and metrics so a recovered panic is
	// still logged and counted as a 500.
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(deps.Monitor.Middleware())
	router.Use(middleware.RecoveryWithLog(deps.Logger))
	router.Use(middleware.CORS(cfg.CORS))
	if cfg.RateLimit.Enabled {
		router.Use(deps.RateLimiter.Middleware())
	}

	router.GET("/health", deps.Monitor.HealthHandler())
	router.GET("/health/ready", deps.Monitor.ReadinessHandler())
	router.GET("/health/live", deps.Monitor.LivenessHandler())
	router.GET("/metrics", deps.Monitor.MetricsHandler())

	pages := handlers.NewPageHandler(deps.Logger)
	router.GET("/", pages.Index)
	router.GET("/help", pages.Help)
	router.GET("/contact", pages.Contact)

	tasks := handlers.NewTaskHandler(deps.Tasks, deps.Publisher, deps.Logger)
	api := router.Group("/api")
	{
		api.POST("/tasks", tasks.CreateTask)
		api.PUT("/tasks/:id", tasks.UpdateTask)
		api.DELETE("/tasks/:id", tasks.DeleteTask)
	}

	router.NoRoute(pages.NotFound)

	return router, nil
}
