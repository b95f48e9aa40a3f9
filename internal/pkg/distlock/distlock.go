// Package distlock guards the scheduler loop: whichever process holds the
// lock runs the loop, everyone else serves the API only.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a non-blocking distributed lock. Instances are not safe for
// concurrent use; give each goroutine its own.
type DistLock interface {
	// Acquire attempts the lock once and reports whether it was taken.
	Acquire(ctx context.Context) (bool, error)
	// Release drops the lock if this instance still owns it.
	Release(ctx context.Context) error
}

// NewLock picks the backend: Redis when a client is available (TTL-based,
// survives across hosts), otherwise a Postgres advisory lock whose session
// scoping gives equivalent crash-release behavior.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// PGAdvisoryLock holds a pg_advisory lock for the lifetime of the session.
// If the connection drops, Postgres releases the lock on its own.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock derives a stable 64-bit lock ID from the key, so every
// process computing the same key contends on the same lock.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire uses pg_try_advisory_lock, which returns without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

// Release unlocks the advisory lock for this session.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
