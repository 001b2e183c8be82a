package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-attempt/internal/config"
)

// Owner-checked scripts: a lock is only extended or released by the
// connection that holds it.
var (
	refreshLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// SessionLockRepository makes sure only one connection across instances
// drives an attempt at a time.
type SessionLockRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewSessionLockRepository creates a new SessionLockRepository.
func NewSessionLockRepository(rdb redis.Cmdable, ttl time.Duration) *SessionLockRepository {
	return &SessionLockRepository{rdb: rdb, ttl: ttl}
}

// TTL is how long a lock lives without a refresh.
func (r *SessionLockRepository) TTL() time.Duration {
	return r.ttl
}

// Acquire claims the attempt for owner. It reports false when someone else
// holds it.
func (r *SessionLockRepository) Acquire(ctx context.Context, attemptID int64, owner string) (bool, error) {
	key := config.CacheKey.AttemptSessionLockKey(attemptID)
	return r.rdb.SetNX(ctx, key, owner, r.ttl).Result()
}

// Refresh extends the lock. It reports false when owner lost it.
func (r *SessionLockRepository) Refresh(ctx context.Context, attemptID int64, owner string) (bool, error) {
	key := config.CacheKey.AttemptSessionLockKey(attemptID)
	n, err := refreshLockScript.Run(ctx, r.rdb, []string{key}, owner, r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release frees the lock if owner still holds it.
func (r *SessionLockRepository) Release(ctx context.Context, attemptID int64, owner string) error {
	key := config.CacheKey.AttemptSessionLockKey(attemptID)
	return releaseLockScript.Run(ctx, r.rdb, []string{key}, owner).Err()
}
