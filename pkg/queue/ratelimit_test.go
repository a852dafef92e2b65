package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowTokenBucket(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	key := "sentinel:ratelimit:test"

	// Burst of 1: first call consumes the bucket.
	allowed, err := client.Allow(ctx, key, 1, 1)
	require.NoError(t, err)
	require.True(t, allowed, "first call should be allowed")

	allowed, err = client.Allow(ctx, key, 1, 1)
	require.NoError(t, err)
	require.False(t, allowed, "second immediate call should be denied")

	// After a refill interval the bucket has a token again.
	time.Sleep(1100 * time.Millisecond)

	allowed, err = client.Allow(ctx, key, 1, 1)
	require.NoError(t, err)
	require.True(t, allowed, "call after refill should be allowed")
}
