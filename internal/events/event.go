// Package events carries task activity from the HTTP layer to background
// consumers through a Redis list. The server keeps no task state; events
// describe what a client asked for, not a stored change.
package events

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

type Type string

const (
	TaskCreated Type = "task.created"
	TaskUpdated Type = "task.updated"
	TaskDeleted Type = "task.deleted"
)

type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	TaskID     string                 `json:"task_id"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Attempts   int                    `json:"attempts"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func New(eventType Type, taskID string, payload map[string]interface{}) Event {
	id := fmt.Sprintf("%d", time.Now().UnixNano())
	if u, err := uuid.NewV4(); err == nil {
		id = u.String()
	}

	return Event{
		ID:         id,
		Type:       eventType,
		TaskID:     taskID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}
