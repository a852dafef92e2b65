package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// resultTTL bounds how long execution results are retained.
const resultTTL = 24 * time.Hour

// SetResult stores the outcome of a task execution under
// "sentinel:result:{taskID}" with a 24-hour TTL.
func (c *Client) SetResult(ctx context.Context, taskID string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, resultKey+taskID, data, resultTTL).Err(); err != nil {
		return storeErr("set result", err)
	}
	return nil
}

// GetResult retrieves a task's stored result as raw JSON, or ErrEmpty if no
// result exists (never stored, or expired).
func (c *Client) GetResult(ctx context.Context, taskID string) (string, error) {
	val, err := c.rdb.Get(ctx, resultKey+taskID).Result()
	if err == redis.Nil {
		return "", ErrEmpty
	}
	if err != nil {
		return "", storeErr("get result", err)
	}
	return val, nil
}
