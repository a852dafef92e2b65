// Package worker implements the dispatcher loop: claim a task from the
// shared queue, execute it, and apply the retry/backoff policy on failure.
// Multiple dispatchers (in one process or many) coordinate only through the
// store's atomic operations; there is no worker-to-worker communication.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinelq/sentinel/pkg/logger"
	"github.com/sentinelq/sentinel/pkg/metrics"
	"github.com/sentinelq/sentinel/pkg/queue"
	"github.com/sentinelq/sentinel/pkg/tasks"
)

// Executor runs a claimed task's payload. The payload is opaque to the
// dispatcher; any returned error (or panic) counts as a failed attempt, with
// no assumption about why it failed. Executors should honor ctx.
type Executor func(ctx context.Context, payload json.RawMessage) error

// BackoffMode selects how the dispatcher waits out a retry delay.
type BackoffMode string

const (
	// BackoffBlock holds the current worker for the full delay before
	// reinserting. Simple, and deliberate backpressure: a misbehaving
	// downstream slows its own worker. Suited to low worker counts.
	BackoffBlock BackoffMode = "block"

	// BackoffDelay parks the task in the delayed queue and frees the worker
	// immediately; the promoter reinserts it once the delay elapses.
	// Preferred when many workers share the queue.
	BackoffDelay BackoffMode = "delay"
)

// rateLimitKey is the shared token bucket consulted before each execution
// when rate limiting is enabled.
const rateLimitKey = "sentinel:ratelimit:execute"

// rateLimitDeferral is how long a rate-limited claim is parked before
// becoming claimable again. Deferral does not consume a retry.
const rateLimitDeferral = time.Second

// Options configures a dispatcher. Zero values select the defaults noted on
// each field.
type Options struct {
	// ID distinguishes this dispatcher in logs.
	ID int

	// MaxRetries is the retry budget per task; a task whose incremented
	// retry count exceeds it is terminally failed. Default 3.
	MaxRetries int

	// Backoff computes the delay before the Nth retry.
	// Default: 2^N seconds.
	Backoff BackoffStrategy

	// PollInterval is the idle sleep when the queue is empty. This is pure
	// poll latency, distinct from retry backoff, and never grows.
	// Default 500ms.
	PollInterval time.Duration

	// Mode selects blocking or delayed backoff. Default BackoffBlock.
	Mode BackoffMode

	// RateLimit caps executions per second across all workers via a shared
	// token bucket. 0 disables limiting.
	RateLimit int

	// RateBurst is the bucket capacity when RateLimit is set.
	// Default: 2×RateLimit.
	RateBurst int
}

// Dispatcher drives one worker's continuous claim -> execute -> resolve
// cycle against the shared queue.
type Dispatcher struct {
	client *queue.Client
	exec   Executor
	opts   Options
	log    zerolog.Logger
}

// New builds a dispatcher around an explicit queue client and executor.
func New(client *queue.Client, exec Executor, opts Options) *Dispatcher {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Backoff == nil {
		opts.Backoff = NewExponentialBackoff(2)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.Mode == "" {
		opts.Mode = BackoffBlock
	}
	if opts.RateLimit > 0 && opts.RateBurst <= 0 {
		opts.RateBurst = 2 * opts.RateLimit
	}
	return &Dispatcher{
		client: client,
		exec:   exec,
		opts:   opts,
		log:    logger.Log.With().Int("worker", opts.ID).Logger(),
	}
}

// Run executes the dispatcher loop until ctx is cancelled. A task failure
// never terminates the loop; only cancellation does. The idle and backoff
// sleeps are interruptible, so shutdown latency is bounded by one claim
// round-trip, not by an in-progress backoff.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info().Msg("Dispatcher started")
	for {
		if ctx.Err() != nil {
			d.log.Info().Msg("Dispatcher stopped")
			return
		}

		task, err := d.client.ClaimNext(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			// Normal: empty queue or a lost claim race. Idle, don't log.
			sleep(ctx, d.opts.PollInterval)
			continue
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				d.log.Error().Err(err).Msg("Claim failed")
			}
			sleep(ctx, d.opts.PollInterval)
			continue
		}

		if d.opts.RateLimit > 0 && !d.allow(ctx) {
			d.deferTask(ctx, task)
			continue
		}

		d.process(ctx, task)
	}
}

// process runs one claimed task to its resolution for this attempt.
func (d *Dispatcher) process(ctx context.Context, task tasks.Task) {
	d.log.Info().
		Str("task_id", task.ID).
		Int("priority", task.Priority).
		Int("retries", task.Retries).
		Msg("Executing task")

	start := time.Now()
	metrics.QueueLatency.Observe(start.Sub(task.CreatedAt).Seconds())

	err := d.execute(ctx, task.Payload)
	metrics.TaskDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		d.resolveFailure(ctx, task, err)
	} else {
		d.resolveSuccess(ctx, task)
	}
}

// execute invokes the executor, converting a panic into an ordinary failed
// attempt so one bad payload cannot take the worker down.
func (d *Dispatcher) execute(ctx context.Context, payload json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return d.exec(ctx, payload)
}

// resolveSuccess records a task's terminal success.
func (d *Dispatcher) resolveSuccess(ctx context.Context, task tasks.Task) {
	if err := task.Transition(tasks.StatusCompleted); err != nil {
		// Contract violation: abort this task, write nothing back.
		d.log.Error().Err(err).Str("task_id", task.ID).Msg("Aborting task in illegal state")
		return
	}
	if err := d.client.SetResult(ctx, task.ID, map[string]string{
		"status":      string(tasks.StatusCompleted),
		"finished_at": time.Now().Format(time.RFC3339),
	}); err != nil {
		d.log.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to store result")
	}
	if err := d.client.MarkCompleted(ctx, task.ID); err != nil {
		d.log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to record completion")
		return
	}
	metrics.TasksProcessed.WithLabelValues("success").Inc()
	d.log.Info().Str("task_id", task.ID).Msg("Task completed")
}

// resolveFailure applies the retry/backoff policy after a failed attempt:
// increment the retry count, then either requeue with backoff or, once the
// budget is exhausted, record terminal failure.
func (d *Dispatcher) resolveFailure(ctx context.Context, task tasks.Task, execErr error) {
	task.Retries++

	if task.Retries > d.opts.MaxRetries {
		if err := task.Transition(tasks.StatusFailed); err != nil {
			d.log.Error().Err(err).Str("task_id", task.ID).Msg("Aborting task in illegal state")
			return
		}
		if err := d.client.MarkFailed(ctx, task); err != nil {
			d.log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to record terminal failure")
			return
		}
		metrics.TasksProcessed.WithLabelValues("failed").Inc()
		d.log.Warn().
			Str("task_id", task.ID).
			Int("max_retries", d.opts.MaxRetries).
			Msg("Task exhausted retries, moved to dead letter")
		return
	}

	if err := task.Transition(tasks.StatusRequeued); err != nil {
		d.log.Error().Err(err).Str("task_id", task.ID).Msg("Aborting task in illegal state")
		return
	}

	delay := d.opts.Backoff.Next(task.Retries)
	metrics.TasksProcessed.WithLabelValues("retry").Inc()
	d.log.Info().
		Err(execErr).
		Str("task_id", task.ID).
		Int("attempt", task.Retries).
		Int("max_retries", d.opts.MaxRetries).
		Dur("backoff", delay).
		Msg("Task failed, scheduling retry")

	if d.opts.Mode == BackoffDelay {
		if err := d.client.EnqueueDelayed(ctx, task, time.Now().Add(delay)); err != nil {
			d.log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to schedule delayed retry")
		}
		return
	}

	// Blocking mode: publish the transient requeued status, hold this worker
	// for the delay, then reinsert with the original CreatedAt. A shutdown
	// during the sleep cuts the delay short but still reinserts, so the
	// claimed task is not lost.
	if err := d.client.SetStatus(ctx, task.ID, task.Status); err != nil {
		d.log.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to publish requeued status")
	}
	sleep(ctx, delay)

	if err := task.Transition(tasks.StatusPending); err != nil {
		d.log.Error().Err(err).Str("task_id", task.ID).Msg("Aborting task in illegal state")
		return
	}
	if err := d.client.Enqueue(context.WithoutCancel(ctx), task); err != nil {
		d.log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to requeue task")
	}
}

// allow consults the shared token bucket. Store errors fail open: processing
// an extra task beats wedging the queue on a limiter hiccup.
func (d *Dispatcher) allow(ctx context.Context) bool {
	allowed, err := d.client.Allow(ctx, rateLimitKey, d.opts.RateLimit, d.opts.RateBurst)
	if err != nil {
		d.log.Warn().Err(err).Msg("Rate limit check failed")
		return true
	}
	return allowed
}

// deferTask parks a rate-limited claim in the delayed queue without touching
// its retry count: deferral is load shedding, not an execution failure.
func (d *Dispatcher) deferTask(ctx context.Context, task tasks.Task) {
	if err := task.Transition(tasks.StatusRequeued); err != nil {
		d.log.Error().Err(err).Str("task_id", task.ID).Msg("Aborting task in illegal state")
		return
	}
	if err := d.client.EnqueueDelayed(ctx, task, time.Now().Add(rateLimitDeferral)); err != nil {
		d.log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to defer rate-limited task")
		return
	}
	d.log.Debug().Str("task_id", task.ID).Msg("Rate limit exceeded, task deferred")
}

// sleep waits for the duration or until ctx is cancelled, whichever is
// sooner.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
