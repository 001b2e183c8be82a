package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ErrSnapshotNotFound is returned when no snapshot is cached for an attempt.
var ErrSnapshotNotFound = errors.New("attempt snapshot not found")

// AttemptCacheRepository keeps attempt snapshots in Redis so the attempt view
// can be served without a live session.
type AttemptCacheRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewAttemptCacheRepository creates a new AttemptCacheRepository.
func NewAttemptCacheRepository(rdb redis.Cmdable, ttl time.Duration) *AttemptCacheRepository {
	return &AttemptCacheRepository{rdb: rdb, ttl: ttl}
}

// Save stores the snapshot, replacing any previous one.
func (r *AttemptCacheRepository) Save(ctx context.Context, snapshot *model.AttemptSnapshot) error {
	if snapshot == nil || snapshot.Attempt == nil {
		return errors.New("snapshot without attempt")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	key := config.CacheKey.AttemptSnapshotKey(snapshot.Attempt.ID)
	return r.rdb.Set(ctx, key, data, r.ttl).Err()
}

// Get loads the cached snapshot of attemptID.
func (r *AttemptCacheRepository) Get(ctx context.Context, attemptID int64) (*model.AttemptSnapshot, error) {
	data, err := r.rdb.Get(ctx, config.CacheKey.AttemptSnapshotKey(attemptID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}

	var snapshot model.AttemptSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// Invalidate drops the cached snapshot of attemptID.
func (r *AttemptCacheRepository) Invalidate(ctx context.Context, attemptID int64) error {
	return r.rdb.Del(ctx, config.CacheKey.AttemptSnapshotKey(attemptID)).Err()
}
