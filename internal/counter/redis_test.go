package counter

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCounter(t *testing.T) {
	addr := os.Getenv("FORMSINK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FORMSINK_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	c := NewRedis(client, "test:"+uuid.NewString()+":")
	ctx := context.Background()

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.EqualValues(t, 0, got)

	n, err := c.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = c.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.NoError(t, c.Delete(ctx, "k"))
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.EqualValues(t, 0, got)
}
