package queue

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sentinelq/sentinel/pkg/logger"
	"github.com/sentinelq/sentinel/pkg/tasks"
)

// Schedule registers a cron job that submits a fresh task on every firing.
// The template supplies payload and priority; each firing mints a new task
// id and CreatedAt so runs are independently trackable.
// The spec is a standard cron expression with seconds (e.g. "@every 1m").
func (c *Client) Schedule(spec string, template tasks.Task) (cron.EntryID, error) {
	return c.cron.AddFunc(spec, func() {
		task := tasks.New(template.Payload, template.Priority)
		if err := c.Submit(context.Background(), task); err != nil {
			logger.Log.Error().Err(err).Str("spec", spec).Msg("Failed to submit scheduled task")
			return
		}
		logger.Log.Info().Str("task_id", task.ID).Str("spec", spec).Msg("Scheduled task submitted")
	})
}

// StartCronScheduler starts the cron scheduler in a background goroutine.
// Call once at process startup.
func (c *Client) StartCronScheduler() {
	c.cron.Start()
}

// StopCronScheduler stops the cron scheduler and waits for running
// submissions to finish.
func (c *Client) StopCronScheduler() {
	ctx := c.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}
