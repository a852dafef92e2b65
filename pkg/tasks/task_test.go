package tasks

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	payload := json.RawMessage(`{"kind":"report"}`)
	task := New(payload, 7)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, 7, task.Priority)
	assert.Equal(t, 0, task.Retries)
	assert.Equal(t, StatusPending, task.Status)
	assert.WithinDuration(t, time.Now(), task.CreatedAt, time.Second)
	assert.JSONEq(t, `{"kind":"report"}`, string(task.Payload))
}

func TestNewUniqueIDs(t *testing.T) {
	a := New(nil, 0)
	b := New(nil, 0)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestWireRoundTrip(t *testing.T) {
	original := Task{
		ID:        "task-42",
		Payload:   json.RawMessage(`{"to":"user@example.com","attempt":3}`),
		Priority:  5,
		Retries:   2,
		Status:    StatusRequeued,
		CreatedAt: time.Unix(1700000000, 123456789).UTC(),
	}

	data, err := original.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, original.ID, decoded.ID)
	assert.JSONEq(t, string(original.Payload), string(decoded.Payload))
	assert.Equal(t, original.Priority, decoded.Priority)
	assert.Equal(t, original.Retries, decoded.Retries)
	assert.Equal(t, original.Status, decoded.Status)
	assert.True(t, original.CreatedAt.Equal(decoded.CreatedAt), "CreatedAt changed across the wire")
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestPayloadStaysOpaque(t *testing.T) {
	// A payload the queue cannot possibly have a schema for must survive
	// untouched.
	raw := `{"nested":{"list":[1,2,3]},"unicode":"héllo"}`
	task := New(json.RawMessage(raw), 0)

	data, err := task.Marshal()
	require.NoError(t, err)
	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	assert.JSONEq(t, raw, string(decoded.Payload))
}
