// Package tasks defines the core data structures for task representation in Sentinel.
// Tasks are units of work that can be enqueued, claimed by workers, and retried on failure.
package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task represents a unit of work dispatched through the priority queue.
// Each task carries the metadata the queue needs for ordering, retry
// accounting, and status tracking.
//
// The Payload is an opaque JSON blob: the queue and the dispatcher never
// interpret its contents, only the executor does. Retries is incremented
// exclusively by the dispatcher loop when an execution attempt fails.
type Task struct {
	// ID is a unique identifier for the task (UUID), assigned at creation.
	ID string `json:"id"`

	// Payload contains the job-specific data as raw JSON.
	// Executors are responsible for decoding it.
	Payload json.RawMessage `json:"payload"`

	// Priority determines dispatch order. Higher values are claimed first.
	Priority int `json:"priority"`

	// Retries counts failed execution attempts so far. Starts at 0.
	Retries int `json:"retries"`

	// Status is the task's position in the lifecycle state machine.
	Status Status `json:"status"`

	// CreatedAt is the timestamp of first submission. It never changes on
	// requeue: it is the FIFO tiebreaker between tasks of equal priority.
	CreatedAt time.Time `json:"created_at"`
}

// New builds a freshly submitted task: new UUID, status pending, zero
// retries, CreatedAt now.
func New(payload json.RawMessage, priority int) Task {
	return Task{
		ID:        uuid.New().String(),
		Payload:   payload,
		Priority:  priority,
		Retries:   0,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// Marshal serializes the task to its JSON wire form.
func (t Task) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// Unmarshal decodes a task from its JSON wire form.
func Unmarshal(data []byte) (Task, error) {
	var t Task
	err := json.Unmarshal(data, &t)
	return t, err
}
