package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelq/sentinel/pkg/logger"
	"github.com/sentinelq/sentinel/pkg/tasks"
)

// EnqueueDelayed parks a task in the delayed sorted set until readyAt.
// The promoter moves it back into the main queue once the delay elapses,
// recomputing the priority score from the task's own fields (so the original
// CreatedAt keeps governing FIFO order). The task's current status, normally
// requeued, is published to the status table.
func (c *Client) EnqueueDelayed(ctx context.Context, task tasks.Task, readyAt time.Time) error {
	data, err := task.Marshal()
	if err != nil {
		return err
	}

	pipe := c.rdb.TxPipeline()
	pipe.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(readyAt.UnixNano()),
		Member: data,
	})
	pipe.HSet(ctx, statusKey, task.ID, string(task.Status))
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("enqueue delayed", err)
	}
	return nil
}

// StartPromoter runs a background loop that moves due tasks from the delayed
// set back into the main queue. It blocks until ctx is cancelled; run it in
// its own goroutine.
//
// Promotion cannot happen inside a Lua script here: the main queue's score
// derives from fields inside the serialized task, so each due member is
// claimed by ZREM (exactly one promoter instance wins the removal race) and
// re-enqueued from Go with its recomputed score.
func (c *Client) StartPromoter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.promoteDue(ctx); err != nil {
				logger.Log.Error().Err(err).Msg("Promoter pass failed")
			}
		}
	}
}

// promoteDue performs one promotion pass: every delayed member whose
// ready-time has passed is removed and reinserted as claimable.
func (c *Client) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	due, err := c.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return storeErr("promote scan", err)
	}

	for _, raw := range due {
		removed, err := c.rdb.ZRem(ctx, delayedKey, raw).Result()
		if err != nil {
			return storeErr("promote claim", err)
		}
		if removed == 0 {
			// Another promoter instance won this member.
			continue
		}

		task, err := tasks.Unmarshal([]byte(raw))
		if err != nil {
			logger.Log.Error().Err(err).Msg("Dropping malformed delayed task")
			continue
		}
		if err := task.Transition(tasks.StatusPending); err != nil {
			logger.Log.Error().Err(err).Str("task_id", task.ID).Msg("Dropping delayed task in unexpected state")
			continue
		}
		if err := c.Enqueue(ctx, task); err != nil {
			return err
		}
		logger.Log.Debug().Str("task_id", task.ID).Int("retries", task.Retries).Msg("Promoted delayed task")
	}
	return nil
}
