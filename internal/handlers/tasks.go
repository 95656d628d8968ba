package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"todo-app/backend/internal/events"
	"todo-app/backend/internal/models"
	"todo-app/backend/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	errContentType      = "Content-Type must be application/json"
	errBodyRequired     = "Request body is required"
	errInvalidJSON      = "Invalid JSON body"
	errBodyNotObject    = "Request body must be a JSON object"
	errTaskIDRequired   = "Task ID is required"
	errInternal         = "Internal server error"
	errFormDescription  = "Please enter a task description"
	errFormInternal     = "An error occurred while adding the task"
	eventPublishTimeout = 2 * time.Second
)

type TaskHandler struct {
	tasks  services.TaskService
	events events.Publisher
	logger *slog.Logger
}

func NewTaskHandler(tasks services.TaskService, publisher events.Publisher, logger *slog.Logger) *TaskHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{tasks: tasks, events: publisher, logger: logger}
}

// CreateTask accepts either a JSON body (API clients) or an HTML form post
// (no-JS browsers). JSON requests get JSON responses; form posts get the
// index page re-rendered with an error or success message.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	if strings.Contains(c.GetHeader("Content-Type"), "application/json") {
		h.createFromJSON(c)
		return
	}
	h.createFromForm(c)
}

func (h *TaskHandler) createFromJSON(c *gin.Context) {
	body, msg := readJSONObject(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	raw, ok := body["description"]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Description field is required"})
		return
	}
	description, ok := raw.(string)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Description must be a string"})
		return
	}
	description = models.TrimWhitespace(description)
	if description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Description cannot be empty or whitespace only"})
		return
	}

	task, err := h.tasks.CreateTask(description)
	if err != nil {
		if models.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Validation error: " + err.Error()})
			return
		}
		h.logger.Error("failed to create task", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternal})
		return
	}

	h.publish(c, events.New(events.TaskCreated, task.ID(), task.ToMap()))
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) createFromForm(c *gin.Context) {
	description := models.TrimWhitespace(c.DefaultPostForm("description", ""))
	if description == "" {
		c.HTML(http.StatusBadRequest, "index.html", gin.H{"error": errFormDescription})
		return
	}

	task, err := h.tasks.CreateTask(description)
	if err != nil {
		if models.IsValidationError(err) {
			c.HTML(http.StatusBadRequest, "index.html", gin.H{"error": "Validation error: " + err.Error()})
			return
		}
		h.logger.Error("failed to create task", "error", err.Error())
		c.HTML(http.StatusInternalServerError, "index.html", gin.H{"error": errFormInternal})
		return
	}

	h.publish(c, events.New(events.TaskCreated, task.ID(), task.ToMap()))
	c.HTML(http.StatusCreated, "index.html", gin.H{
		"success": fmt.Sprintf(`Task "%s" added successfully`, task.Description()),
	})
}

// UpdateTask validates a completion toggle and echoes it back. Task state
// lives in the client, so nothing is looked up or stored.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id := c.Param("id")
	if models.TrimWhitespace(id) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errTaskIDRequired})
		return
	}
	if !isJSONContentType(c.GetHeader("Content-Type")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errContentType})
		return
	}

	body, msg := readJSONObject(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	raw, ok := body["completed"]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Completed field is required"})
		return
	}
	completed, ok := raw.(bool)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Completed must be a boolean value"})
		return
	}

	h.publish(c, events.New(events.TaskUpdated, id, map[string]interface{}{"completed": completed}))
	c.JSON(http.StatusOK, gin.H{
		"id":        id,
		"completed": completed,
		"message":   "Task updated successfully",
	})
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id := c.Param("id")
	if models.TrimWhitespace(id) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errTaskIDRequired})
		return
	}

	h.publish(c, events.New(events.TaskDeleted, id, nil))
	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"message": "Task deleted successfully",
	})
}

// publish never fails the request; activity events are best effort.
func (h *TaskHandler) publish(c *gin.Context, event events.Event) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), eventPublishTimeout)
	defer cancel()

	if err := h.events.Publish(ctx, event); err != nil {
		h.logger.Warn("failed to publish task event",
			"event_type", string(event.Type),
			"task_id", event.TaskID,
			"error", err.Error())
	}
}

func isJSONContentType(header string) bool {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// readJSONObject returns the decoded body, or the client-facing message
// describing why it was rejected.
func readJSONObject(c *gin.Context) (map[string]interface{}, string) {
	if !isJSONContentType(c.GetHeader("Content-Type")) {
		return nil, errContentType
	}

	data, err := c.GetRawData()
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return nil, errBodyRequired
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, errInvalidJSON
	}
	if value == nil {
		return nil, errBodyRequired
	}

	object, ok := value.(map[string]interface{})
	if !ok {
		return nil, errBodyNotObject
	}
	return object, ""
}
