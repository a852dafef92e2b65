package queue

import (
	"context"
	"fmt"

	"github.com/sentinelq/sentinel/pkg/tasks"
)

// Inspectable queue names accepted by InspectQueue and reported by
// QueueDepths.
const (
	QueueMain       = "queue"
	QueueDelayed    = "delayed"
	QueueDeadLetter = "dead_letter"
)

// QueueDepths returns the current number of entries in the main, delayed,
// and dead-letter structures, keyed by their inspectable names.
func (c *Client) QueueDepths(ctx context.Context) (map[string]int64, error) {
	pipe := c.rdb.TxPipeline()
	mainCmd := pipe.ZCard(ctx, queueKey)
	delayedCmd := pipe.ZCard(ctx, delayedKey)
	deadCmd := pipe.LLen(ctx, deadLetterKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storeErr("queue depths", err)
	}

	return map[string]int64{
		QueueMain:       mainCmd.Val(),
		QueueDelayed:    delayedCmd.Val(),
		QueueDeadLetter: deadCmd.Val(),
	}, nil
}

// InspectQueue retrieves up to limit tasks from the named structure without
// removing them. Malformed entries are skipped; inspection is best-effort.
func (c *Client) InspectQueue(ctx context.Context, name string, limit int64) ([]tasks.Task, error) {
	var rawTasks []string
	var err error

	switch name {
	case QueueMain:
		rawTasks, err = c.rdb.ZRange(ctx, queueKey, 0, limit-1).Result()
	case QueueDelayed:
		rawTasks, err = c.rdb.ZRange(ctx, delayedKey, 0, limit-1).Result()
	case QueueDeadLetter:
		rawTasks, err = c.rdb.LRange(ctx, deadLetterKey, 0, limit-1).Result()
	default:
		return nil, fmt.Errorf("queue: unknown queue %q", name)
	}
	if err != nil {
		return nil, storeErr("inspect", err)
	}

	list := make([]tasks.Task, 0, len(rawTasks))
	for _, raw := range rawTasks {
		t, err := tasks.Unmarshal([]byte(raw))
		if err != nil {
			continue
		}
		list = append(list, t)
	}
	return list, nil
}
