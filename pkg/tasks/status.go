package tasks

import (
	"errors"
	"fmt"
)

// Status is a task's position in the lifecycle state machine.
type Status string

const (
	// StatusPending means the task is claimable in the queue.
	StatusPending Status = "pending"
	// StatusInProgress means a worker has claimed the task and is executing it.
	StatusInProgress Status = "in_progress"
	// StatusCompleted is terminal: the executor reported success.
	StatusCompleted Status = "completed"
	// StatusRequeued marks a failed attempt that is being reinserted for retry.
	StatusRequeued Status = "requeued"
	// StatusFailed is terminal: the task exhausted its retry budget.
	StatusFailed Status = "failed"
)

// Statuses lists every lifecycle state, in rough lifecycle order.
// Stats reporting uses this to zero-fill counts.
var Statuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusCompleted,
	StatusRequeued,
	StatusFailed,
}

// ErrInvalidTransition reports an attempt to move a task along an edge the
// state machine does not have, such as out of a terminal state. It indicates
// a programming error in the caller, not a runtime condition.
var ErrInvalidTransition = errors.New("invalid task status transition")

// transitions is the edge set of the lifecycle state machine.
// completed and failed have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusRequeued, StatusFailed},
	StatusRequeued:   {StatusPending},
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the state machine has an edge from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition moves the task to the next status, or returns
// ErrInvalidTransition if the state machine has no such edge. On error the
// task is left unchanged; callers must abort processing of that task rather
// than write it back to the store.
func (t *Task) Transition(next Status) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s (task %s)", ErrInvalidTransition, t.Status, next, t.ID)
	}
	t.Status = next
	return nil
}
