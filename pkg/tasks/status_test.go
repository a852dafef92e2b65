package tasks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusRequeued, true},
		{StatusInProgress, StatusFailed, true},
		{StatusRequeued, StatusPending, true},

		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusPending, StatusRequeued, false},
		{StatusInProgress, StatusPending, false},
		{StatusRequeued, StatusInProgress, false},

		// Terminal states have no outgoing edges.
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusPending, false},
		{StatusFailed, StatusRequeued, false},
		{StatusFailed, StatusCompleted, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to))

			task := Task{ID: "t", Status: tc.from}
			err := task.Transition(tc.to)
			if tc.allowed {
				assert.NoError(t, err)
				assert.Equal(t, tc.to, task.Status)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				assert.Equal(t, tc.from, task.Status, "task must be unchanged on a rejected transition")
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.False(t, StatusRequeued.Terminal())
}
