package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelq/sentinel/pkg/queue"
	"github.com/sentinelq/sentinel/pkg/tasks"
)

func setupDispatcherTest(t *testing.T) *queue.Client {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := queue.NewClient(s.Addr())
	t.Cleanup(func() { client.Close() })
	return client
}

// stubExecutor fails its first failFirst attempts, then succeeds. When
// panicAlways is set every attempt panics instead of returning an error.
type stubExecutor struct {
	mu          sync.Mutex
	attempts    int
	failFirst   int
	panicAlways bool
}

func (e *stubExecutor) run(_ context.Context, _ json.RawMessage) error {
	e.mu.Lock()
	e.attempts++
	n := e.attempts
	e.mu.Unlock()

	if e.panicAlways {
		panic("executor blew up")
	}
	if n <= e.failFirst {
		return errors.New("transient downstream error")
	}
	return nil
}

func (e *stubExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

// fastOpts keeps dispatcher tests quick: tight polling, millisecond backoff,
// delayed reinsertion so no worker ever sleeps out a real delay.
func fastOpts() Options {
	return Options{
		MaxRetries:   3,
		Backoff:      FixedBackoff{Delay: 10 * time.Millisecond},
		PollInterval: 10 * time.Millisecond,
		Mode:         BackoffDelay,
	}
}

func submitTestTask(t *testing.T, client *queue.Client, id string) tasks.Task {
	t.Helper()
	task := tasks.Task{
		ID:        id,
		Payload:   json.RawMessage(`{}`),
		Priority:  1,
		Status:    tasks.StatusPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, client.Submit(context.Background(), task))
	return task
}

func TestDispatcherCompletesTask(t *testing.T) {
	client := setupDispatcherTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := &stubExecutor{}
	d := New(client, exec.run, fastOpts())
	go d.Run(ctx)

	task := submitTestTask(t, client, "ok-task")

	require.Eventually(t, func() bool {
		status, err := client.TaskStatus(context.Background(), task.ID)
		return err == nil && status == tasks.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, exec.count())

	stats, err := client.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Completed)
	assert.EqualValues(t, 0, stats.Failed)

	// A completion record is stored for the result endpoint.
	_, err = client.GetResult(context.Background(), task.ID)
	assert.NoError(t, err)
}

func TestDispatcherRetriesThenSucceeds(t *testing.T) {
	client := setupDispatcherTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.StartPromoter(ctx, 10*time.Millisecond)

	exec := &stubExecutor{failFirst: 1}
	d := New(client, exec.run, fastOpts())
	go d.Run(ctx)

	task := submitTestTask(t, client, "flaky-task")

	require.Eventually(t, func() bool {
		status, err := client.TaskStatus(context.Background(), task.ID)
		return err == nil && status == tasks.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, exec.count(), "one failed attempt plus one successful retry")
}

func TestDispatcherExhaustsRetries(t *testing.T) {
	client := setupDispatcherTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.StartPromoter(ctx, 10*time.Millisecond)

	exec := &stubExecutor{failFirst: 1 << 30}
	opts := fastOpts()
	opts.MaxRetries = 2
	d := New(client, exec.run, opts)
	go d.Run(ctx)

	task := submitTestTask(t, client, "doomed-task")

	require.Eventually(t, func() bool {
		status, err := client.TaskStatus(context.Background(), task.ID)
		return err == nil && status == tasks.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	// Initial attempt plus MaxRetries retries.
	assert.Equal(t, 3, exec.count())

	// The terminally failed task lands on the dead-letter list with its
	// retry accounting and the original creation time intact.
	archived, err := client.InspectQueue(context.Background(), queue.QueueDeadLetter, 10)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, task.ID, archived[0].ID)
	assert.Equal(t, 3, archived[0].Retries)
	assert.True(t, archived[0].CreatedAt.Equal(task.CreatedAt), "CreatedAt must never change on requeue")

	stats, err := client.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Failed)
	assert.EqualValues(t, 0, stats.Completed)
}

func TestDispatcherBlockingBackoff(t *testing.T) {
	client := setupDispatcherTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Blocking mode needs no promoter: the worker itself sleeps out the
	// delay and reinserts.
	exec := &stubExecutor{failFirst: 1}
	opts := fastOpts()
	opts.Mode = BackoffBlock
	d := New(client, exec.run, opts)
	go d.Run(ctx)

	task := submitTestTask(t, client, "blocking-task")

	require.Eventually(t, func() bool {
		status, err := client.TaskStatus(context.Background(), task.ID)
		return err == nil && status == tasks.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, exec.count())
}

func TestDispatcherPanicCountsAsFailure(t *testing.T) {
	client := setupDispatcherTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.StartPromoter(ctx, 10*time.Millisecond)

	exec := &stubExecutor{panicAlways: true}
	opts := fastOpts()
	opts.MaxRetries = 1
	d := New(client, exec.run, opts)
	go d.Run(ctx)

	task := submitTestTask(t, client, "panicky-task")

	require.Eventually(t, func() bool {
		status, err := client.TaskStatus(context.Background(), task.ID)
		return err == nil && status == tasks.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, exec.count())
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	client := setupDispatcherTest(t)
	ctx, cancel := context.WithCancel(context.Background())

	d := New(client, (&stubExecutor{}).run, fastOpts())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	// Let the loop reach its idle sleep, then cancel mid-sleep.
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after cancellation")
	}
}

func TestDispatcherRateLimitDefersWithoutRetry(t *testing.T) {
	client := setupDispatcherTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.StartPromoter(ctx, 10*time.Millisecond)

	exec := &stubExecutor{}
	opts := fastOpts()
	opts.RateLimit = 1
	opts.RateBurst = 1
	d := New(client, exec.run, opts)
	go d.Run(ctx)

	a := submitTestTask(t, client, "limited-a")
	b := submitTestTask(t, client, "limited-b")

	require.Eventually(t, func() bool {
		sa, errA := client.TaskStatus(context.Background(), a.ID)
		sb, errB := client.TaskStatus(context.Background(), b.ID)
		return errA == nil && errB == nil &&
			sa == tasks.StatusCompleted && sb == tasks.StatusCompleted
	}, 10*time.Second, 20*time.Millisecond)

	// Deferral is not a retry: each task executed exactly once.
	assert.Equal(t, 2, exec.count())
}
