package journal

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/model"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestPublishQueuesJSON(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	p := NewPublisher(rdb)
	p.queue = "test:" + t.Name()
	t.Cleanup(func() { rdb.Del(ctx, p.queue) })

	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(ctx, model.SessionEvent{AttemptID: 42, Kind: model.SessionEventSubmitted, RecordedAt: at}))
	require.NoError(t, p.Publish(ctx, model.SessionEvent{AttemptID: 42, Kind: model.SessionEventSuspended, Detail: "fraud", RecordedAt: at}))

	raw, err := rdb.LRange(ctx, p.queue, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, raw, 2)

	var last model.SessionEvent
	require.NoError(t, json.Unmarshal([]byte(raw[1]), &last))
	assert.Equal(t, model.SessionEventSuspended, last.Kind)
	assert.Equal(t, "fraud", last.Detail)
	assert.True(t, at.Equal(last.RecordedAt))
}
