// Package download defines the task and progress types persisted by the download store.
package download

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTaskID is returned when a string does not parse as a task identifier.
var ErrInvalidTaskID = errors.New("invalid task id")

// TaskID uniquely identifies a download task.
type TaskID uuid.UUID

// NewTaskID returns a new random task identifier.
func NewTaskID() TaskID {
	return TaskID(uuid.New())
}

// ParseTaskID parses the canonical string form of a task identifier.
func ParseTaskID(s string) (TaskID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return TaskID{}, fmt.Errorf("%w %q: %w", ErrInvalidTaskID, s, err)
	}
	return TaskID(id), nil
}

// String returns the canonical UUID form.
func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether the identifier was never assigned.
func (id TaskID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

// MarshalText implements encoding.TextMarshaler.
func (id TaskID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *TaskID) UnmarshalText(text []byte) error {
	parsed, err := ParseTaskID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Task describes one download: where it comes from, where it goes and its lifecycle status.
type Task struct {
	ID         TaskID    `json:"id"`
	URL        string    `json:"url"`
	TargetPath string    `json:"targetPath"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewTask creates a waiting task with a fresh identifier.
func NewTask(url, targetPath string) *Task {
	now := time.Now().UTC().Truncate(time.Second)
	return &Task{
		ID:         NewTaskID(),
		URL:        url,
		TargetPath: targetPath,
		Status:     Waiting(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
