package queue

import (
	"context"
	"strconv"

	"github.com/sentinelq/sentinel/pkg/tasks"
)

// Stats is the system-wide snapshot served by the statistics endpoint.
// QueueSize and StatusCounts may be mutually inconsistent for a moment:
// status writes are advisory and may race queue mutations, which is
// acceptable for observability data.
type Stats struct {
	QueueSize      int64                  `json:"queue_size"`
	StatusCounts   map[tasks.Status]int64 `json:"status_counts"`
	TotalSubmitted int64                  `json:"total_submitted"`
	Completed      int64                  `json:"completed"`
	Failed         int64                  `json:"failed"`
}

// Stats returns queue size, per-status task counts (zero-filled for every
// lifecycle state), and the lifetime submitted/completed/failed counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	pipe := c.rdb.TxPipeline()
	sizeCmd := pipe.ZCard(ctx, queueKey)
	statusCmd := pipe.HVals(ctx, statusKey)
	countersCmd := pipe.MGet(ctx, submittedKey, completedKey, failedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, storeErr("stats", err)
	}

	counts := make(map[tasks.Status]int64, len(tasks.Statuses))
	for _, s := range tasks.Statuses {
		counts[s] = 0
	}
	for _, val := range statusCmd.Val() {
		s := tasks.Status(val)
		if _, known := counts[s]; known {
			counts[s]++
		}
	}

	counters := countersCmd.Val()
	return Stats{
		QueueSize:      sizeCmd.Val(),
		StatusCounts:   counts,
		TotalSubmitted: counterValue(counters, 0),
		Completed:      counterValue(counters, 1),
		Failed:         counterValue(counters, 2),
	}, nil
}

// counterValue reads an MGET slot as int64. Missing keys (nil) count as 0.
func counterValue(vals []interface{}, i int) int64 {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	s, ok := vals[i].(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
