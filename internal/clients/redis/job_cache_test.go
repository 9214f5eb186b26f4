package redis

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/topicgen-backend/internal/domain/jobs"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
)

func setupTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	return client
}

func TestJobCacheRoundTripTerminalOnly(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	prefix := "test:" + uuid.NewString() + ":"
	cache := NewJobCacheWithClient(logger.Nop(), client, time.Minute, prefix)

	processing := &jobs.Job{ID: uuid.New(), OwnerID: "u1", Topic: "t", State: jobs.StateProcessing}
	require.NoError(t, cache.Put(ctx, processing))
	_, ok, err := cache.Get(ctx, processing.ID)
	require.NoError(t, err)
	require.False(t, ok, "processing jobs must not be cached")

	done := &jobs.Job{
		ID:        uuid.New(),
		OwnerID:   "u1",
		Topic:     "Rust ownership",
		State:     jobs.StateCompleted,
		Content:   []byte(`{"topic":"Rust ownership","levels":{}}`),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, cache.Put(ctx, done))

	got, ok, err := cache.Get(ctx, done.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, done.OwnerID, got.OwnerID)
	require.Equal(t, jobs.StateCompleted, got.State)
	require.JSONEq(t, string(done.Content), string(got.Content))

	ttl := client.TTL(ctx, prefix+done.ID.String()).Val()
	require.True(t, ttl > 0 && ttl <= time.Minute, "ttl=%s", ttl)

	require.NoError(t, cache.Evict(ctx, done.ID))
	_, ok, err = cache.Get(ctx, done.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJobCacheDropsCorruptEntries(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	prefix := "test:" + uuid.NewString() + ":"
	cache := NewJobCacheWithClient(logger.Nop(), client, time.Minute, prefix)

	id := uuid.New()
	require.NoError(t, client.Set(ctx, prefix+id.String(), "not json", time.Minute).Err())

	_, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
	require.EqualValues(t, 0, client.Exists(ctx, prefix+id.String()).Val())
}

func TestNopJobCache(t *testing.T) {
	var c JobCache = NopJobCache{}
	require.NoError(t, c.Put(context.Background(), &jobs.Job{State: jobs.StateCompleted}))
	_, ok, err := c.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	require.False(t, ok)
}
