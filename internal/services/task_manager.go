package services

import (
	"fmt"

	"todo-app/backend/internal/models"

	"github.com/gofrs/uuid"
)

// TaskService is the task factory the HTTP layer depends on.
type TaskService interface {
	CreateTask(description string) (*models.Task, error)
}

// TaskManager validates input and builds Tasks. It holds no state and is
// safe for concurrent use.
type TaskManager struct {
	newID func() (uuid.UUID, error)
}

func NewTaskManager() *TaskManager {
	return &TaskManager{newID: uuid.NewV4}
}

func (m *TaskManager) CreateTask(description string) (*models.Task, error) {
	id, err := m.GenerateTaskID()
	if err != nil {
		return nil, err
	}
	return models.NewTask(id, description)
}

// GenerateTaskID returns a random (version 4) UUID in canonical text form.
func (m *TaskManager) GenerateTaskID() (string, error) {
	newID := m.newID
	if newID == nil {
		newID = uuid.NewV4
	}

	id, err := newID()
	if err != nil {
		return "", fmt.Errorf("failed to generate task ID: %w", err)
	}
	return id.String(), nil
}

func (m *TaskManager) ValidateTaskDescription(description string) bool {
	return models.TrimWhitespace(description) != ""
}
