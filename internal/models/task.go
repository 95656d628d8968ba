package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	ErrMsgEmptyID          = "Task id is required"
	ErrMsgEmptyDescription = "Task description cannot be empty or whitespace-only"
)

// Layouts accepted for created_at. Timestamps without a zone are read as local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// TrimWhitespace strips leading and trailing whitespace, counting the ASCII
// file, group, record and unit separators (U+001C..U+001F) as whitespace.
func TrimWhitespace(s string) string {
	return strings.TrimFunc(s, isWhitespace)
}

func isWhitespace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// Task is a single to-do item. Fields are only reachable through NewTask,
// which guarantees a non-empty id and a trimmed, non-empty description.
type Task struct {
	id          string
	description string
	completed   bool
	createdAt   time.Time
}

type TaskOption func(*Task)

func WithCompleted(completed bool) TaskOption {
	return func(t *Task) {
		t.completed = completed
	}
}

func WithCreatedAt(createdAt time.Time) TaskOption {
	return func(t *Task) {
		t.createdAt = createdAt
	}
}

// NewTask validates its input and builds a Task. The description is stored trimmed.
func NewTask(id, description string, opts ...TaskOption) (*Task, error) {
	if TrimWhitespace(id) == "" {
		return nil, newValidationError("id", ErrMsgEmptyID)
	}

	trimmed := TrimWhitespace(description)
	if trimmed == "" {
		return nil, newValidationError("description", ErrMsgEmptyDescription)
	}

	task := &Task{
		id:          id,
		description: trimmed,
		createdAt:   time.Now(),
	}
	for _, opt := range opts {
		opt(task)
	}

	return task, nil
}

func (t *Task) ID() string           { return t.id }
func (t *Task) Description() string  { return t.description }
func (t *Task) Completed() bool      { return t.completed }
func (t *Task) CreatedAt() time.Time { return t.createdAt }

// ToMap returns the wire representation consumed by TaskFromMap.
func (t *Task) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"id":          t.id,
		"description": t.description,
		"completed":   t.completed,
		"created_at":  t.createdAt.Format(time.RFC3339Nano),
	}
}

// TaskFromMap rebuilds a Task from the output of ToMap. created_at may be a
// string or a time.Time and defaults to now when absent.
func TaskFromMap(data map[string]interface{}) (*Task, error) {
	id, ok := data["id"].(string)
	if !ok {
		return nil, newValidationError("id", "Task id must be a string")
	}

	description, ok := data["description"].(string)
	if !ok {
		return nil, newValidationError("description", "Task description must be a string")
	}

	var opts []TaskOption

	if raw, present := data["completed"]; present && raw != nil {
		completed, ok := raw.(bool)
		if !ok {
			return nil, newValidationError("completed", "Task completed must be a boolean")
		}
		opts = append(opts, WithCompleted(completed))
	}

	switch v := data["created_at"].(type) {
	case nil:
	case time.Time:
		opts = append(opts, WithCreatedAt(v))
	case string:
		createdAt, err := parseTimestamp(v)
		if err != nil {
			return nil, newValidationError("created_at", err.Error())
		}
		opts = append(opts, WithCreatedAt(createdAt))
	default:
		return nil, newValidationError("created_at", "Task created_at must be a timestamp string")
	}

	return NewTask(id, description, opts...)
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid created_at timestamp %q", value)
}

type taskJSON struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at"`
}

func (t *Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(taskJSON{
		ID:          t.id,
		Description: t.description,
		Completed:   t.completed,
		CreatedAt:   t.createdAt.Format(time.RFC3339Nano),
	})
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	decoded, err := TaskFromMap(raw)
	if err != nil {
		return err
	}

	*t = *decoded
	return nil
}
