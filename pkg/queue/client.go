// Package queue provides the Redis-backed priority dispatch queue for Sentinel.
// It supports reliable task processing with features including:
//   - A single sorted-set queue ordered by a priority/creation-time score
//   - Atomic claiming via ZPOPMIN (no peek-then-remove window)
//   - A shared status table for observability
//   - Delayed reinsertion with a background promoter for retry backoff
//   - A dead-letter list for permanently failed tasks
//
// The Client type is the main entry point for interacting with the queue system.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/sentinelq/sentinel/pkg/logger"
	"github.com/sentinelq/sentinel/pkg/tasks"
)

// Redis key space. All API and worker processes share these keys; the store
// is the single source of truth for "which task is next".
const (
	queueKey      = "sentinel:task_queue"  // ZSET: serialized task -> score
	statusKey     = "sentinel:task_status" // HASH: task id -> status
	delayedKey    = "sentinel:delayed"     // ZSET: serialized task -> ready-at (unix nanos)
	deadLetterKey = "sentinel:dead_letter" // LIST: serialized terminally failed tasks
	submittedKey  = "sentinel:stats:submitted"
	completedKey  = "sentinel:stats:completed"
	failedKey     = "sentinel:stats:failed"
	resultKey     = "sentinel:result:" // + task id, JSON result with TTL
)

// priorityWeight is the K constant in the ordering score. It must exceed the
// maximum expected timestamp span in seconds so that no realistic creation
// delta can invert a priority difference.
const priorityWeight = 1_000_000

// Score collapses priority and creation time into the single sorted-set key.
// Lower score dequeues first: higher priority pushes the score down by whole
// multiples of priorityWeight, and the creation timestamp (in seconds, with
// sub-second precision) breaks ties FIFO within a priority band.
func Score(priority int, createdAt time.Time) float64 {
	return float64(createdAt.UnixNano())/1e9 - float64(priority)*priorityWeight
}

// Client manages the connection to Redis and provides the queue operations.
// All operations are context-aware and support graceful cancellation.
//
// Client holds no task state of its own; every mutation goes through the
// store's atomic commands. Construct one per process and pass it explicitly
// to the components that need it.
type Client struct {
	rdb  *redis.Client
	cron *cron.Cron
}

// NewClient creates a new queue client connected to the specified Redis
// address ("host:port").
func NewClient(addr string) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &Client{
		rdb:  rdb,
		cron: cron.New(cron.WithSeconds()),
	}
}

// Ping verifies the backing store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Submit enqueues a newly created task and counts it toward the
// total-submitted statistic. Use Enqueue for reinsertions.
func (c *Client) Submit(ctx context.Context, task tasks.Task) error {
	data, err := task.Marshal()
	if err != nil {
		return err
	}

	pipe := c.rdb.TxPipeline()
	pipe.ZAdd(ctx, queueKey, redis.Z{
		Score:  Score(task.Priority, task.CreatedAt),
		Member: data,
	})
	pipe.HSet(ctx, statusKey, task.ID, string(task.Status))
	pipe.Incr(ctx, submittedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("submit", err)
	}
	return nil
}

// Enqueue inserts a task into the priority queue, keyed by its computed
// score, and publishes its status to the status table. Safe under concurrent
// callers; exact score ties land in the store's deterministic member order,
// which is acceptable since the contract does not order exact ties.
func (c *Client) Enqueue(ctx context.Context, task tasks.Task) error {
	data, err := task.Marshal()
	if err != nil {
		return err
	}

	pipe := c.rdb.TxPipeline()
	pipe.ZAdd(ctx, queueKey, redis.Z{
		Score:  Score(task.Priority, task.CreatedAt),
		Member: data,
	})
	pipe.HSet(ctx, statusKey, task.ID, string(task.Status))
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("enqueue", err)
	}
	return nil
}

// ClaimNext atomically removes and returns the lowest-scoring task.
// ZPOPMIN is a single server-side test-and-pop, so two concurrent callers
// always receive distinct tasks (or ErrEmpty). The claimed task is returned
// with status in_progress, which is also published to the status table.
func (c *Client) ClaimNext(ctx context.Context) (tasks.Task, error) {
	popped, err := c.rdb.ZPopMin(ctx, queueKey, 1).Result()
	if err != nil {
		return tasks.Task{}, storeErr("claim", err)
	}
	if len(popped) == 0 {
		return tasks.Task{}, ErrEmpty
	}

	raw, ok := popped[0].Member.(string)
	if !ok {
		return tasks.Task{}, errors.New("queue: unexpected member type in task queue")
	}
	task, err := tasks.Unmarshal([]byte(raw))
	if err != nil {
		return tasks.Task{}, err
	}
	if err := task.Transition(tasks.StatusInProgress); err != nil {
		return tasks.Task{}, err
	}

	// Advisory write: the claim already succeeded, so a failed status
	// update must not fail the claim or the task would be lost.
	if err := c.rdb.HSet(ctx, statusKey, task.ID, string(task.Status)).Err(); err != nil {
		logger.Log.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to publish in_progress status")
	}
	return task, nil
}

// Size returns the number of claimable tasks. Advisory only: a concurrent
// claim may empty the queue between Size and ClaimNext.
func (c *Client) Size(ctx context.Context) (int64, error) {
	n, err := c.rdb.ZCard(ctx, queueKey).Result()
	if err != nil {
		return 0, storeErr("size", err)
	}
	return n, nil
}

// SetStatus publishes a task's status to the shared status table.
func (c *Client) SetStatus(ctx context.Context, taskID string, status tasks.Status) error {
	if err := c.rdb.HSet(ctx, statusKey, taskID, string(status)).Err(); err != nil {
		return storeErr("set status", err)
	}
	return nil
}

// TaskStatus returns the recorded status for a task id, or ErrEmpty if the
// id has never been submitted.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (tasks.Status, error) {
	val, err := c.rdb.HGet(ctx, statusKey, taskID).Result()
	if err == redis.Nil {
		return "", ErrEmpty
	}
	if err != nil {
		return "", storeErr("task status", err)
	}
	return tasks.Status(val), nil
}

// MarkCompleted records a task's terminal success: status table update plus
// the completed counter.
func (c *Client) MarkCompleted(ctx context.Context, taskID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, statusKey, taskID, string(tasks.StatusCompleted))
	pipe.Incr(ctx, completedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("mark completed", err)
	}
	return nil
}

// MarkFailed records a task's terminal failure and archives it on the
// dead-letter list for inspection or manual replay.
func (c *Client) MarkFailed(ctx context.Context, task tasks.Task) error {
	data, err := task.Marshal()
	if err != nil {
		return err
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, statusKey, task.ID, string(tasks.StatusFailed))
	pipe.Incr(ctx, failedKey)
	pipe.RPush(ctx, deadLetterKey, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("mark failed", err)
	}
	return nil
}
