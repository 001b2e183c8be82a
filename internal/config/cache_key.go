package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptSnapshotKey returns the cache key for an attempt's evaluation/attempt metadata
func (r *CacheKeyStruct) AttemptSnapshotKey(attemptID int64) string {
	return fmt.Sprintf("attempt:%d:snapshot", attemptID)
}

// AttemptSessionLockKey returns the key guarding a single live session per attempt
func (r *CacheKeyStruct) AttemptSessionLockKey(attemptID int64) string {
	return fmt.Sprintf("attempt:%d:session_lock", attemptID)
}

var CacheKey = NewCacheKeyStruct()
