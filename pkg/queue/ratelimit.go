package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript implements a token bucket shared by all workers.
// KEYS[1]: bucket key
// ARGV[1]: refill rate (tokens/sec)
// ARGV[2]: burst (bucket capacity)
// ARGV[3]: current timestamp (seconds)
// ARGV[4]: tokens to consume
var allowScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local requested = tonumber(ARGV[4])

	local tokens = tonumber(redis.call('HGET', key, 'tokens'))
	local last_refill = tonumber(redis.call('HGET', key, 'last_refill'))

	if not tokens then
		tokens = burst
		last_refill = now
	end

	local delta = math.max(0, now - last_refill)
	local new_tokens = math.min(burst, tokens + (delta * rate))

	if new_tokens >= requested then
		new_tokens = new_tokens - requested
		redis.call('HSET', key, 'tokens', new_tokens, 'last_refill', now)
		return 1
	else
		redis.call('HSET', key, 'tokens', new_tokens, 'last_refill', now)
		return 0
	end
`)

// Allow consumes one token from the named token bucket, refilled at rate
// tokens per second up to burst capacity. The bucket lives in the store, so
// the limit is shared across every worker process. Returns false when the
// bucket is empty.
func (c *Client) Allow(ctx context.Context, key string, rate int, burst int) (bool, error) {
	result, err := allowScript.Run(ctx, c.rdb,
		[]string{key},
		rate,
		burst,
		time.Now().Unix(),
		1,
	).Result()
	if err != nil {
		return false, storeErr("rate limit", err)
	}
	return result.(int64) == 1, nil
}
