package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statePending = "pending"
	stateDone    = "done"

	keyPrefix = "line-backup:event:"

	defaultTTL        = 72 * time.Hour
	defaultPendingTTL = 15 * time.Minute
)

// releaseScript deletes the key only while it is still a reservation
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store keeps event ids in Redis so several processes share one history
type Store struct {
	rdb        *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewStore creates a Redis-backed dedup store. ttl bounds committed ids and
// pendingTTL frees a reservation whose holder died mid-processing.
// Zero values default to 72 hours and 15 minutes.
func NewStore(rdb *redis.Client, ttl, pendingTTL time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if pendingTTL <= 0 {
		pendingTTL = defaultPendingTTL
	}
	return &Store{rdb: rdb, ttl: ttl, pendingTTL: pendingTTL}
}

func key(id string) string {
	return keyPrefix + id
}

// Has reports whether id was committed
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	val, err := s.rdb.Get(ctx, key(id)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	return val == stateDone, nil
}

// TryBegin reserves id with SETNX. It returns false when the key already exists.
func (s *Store) TryBegin(ctx context.Context, id string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key(id), statePending, s.pendingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Commit marks id processed for the configured ttl
func (s *Store) Commit(ctx context.Context, id string) error {
	if err := s.rdb.Set(ctx, key(id), stateDone, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Release removes a reservation that was not committed
func (s *Store) Release(ctx context.Context, id string) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{key(id)}, statePending).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the underlying redis connection
func (s *Store) Close() error {
	return s.rdb.Close()
}
