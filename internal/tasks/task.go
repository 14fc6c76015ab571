package tasks

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task states recorded in the result backend.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

const resultKeyPrefix = "celery-task-meta-"

var (
	// ErrResultNotFound is returned when no result is stored for a task id.
	ErrResultNotFound = errors.New("task result not found")
	// ErrUnknownTask is recorded for envelopes naming an unregistered task.
	ErrUnknownTask = errors.New("unknown task")
)

// Envelope is the message pushed onto the broker queue.
type Envelope struct {
	ID     string          `json:"id"`
	Task   string          `json:"task"`
	Args   json.RawMessage `json:"args,omitempty"`
	SentAt time.Time       `json:"sent_at"`
}

// Result is the outcome of a task as stored in the result backend.
type Result struct {
	TaskID    string          `json:"task_id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Traceback string          `json:"traceback,omitempty"`
	DateDone  time.Time       `json:"date_done"`
}

func resultKey(id string) string {
	return resultKeyPrefix + id
}

func newTaskID() string {
	return uuid.NewString()
}
