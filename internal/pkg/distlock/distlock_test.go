package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client := newTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	lock := NewRedisLock(client, "scheduler", time.Minute)

	acquired, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected to acquire lock on empty redis")
	}

	// A second holder with the same key must be refused.
	other := NewRedisLock(client, "scheduler", time.Minute)
	acquired, err = other.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if acquired {
		t.Fatal("second holder acquired a held lock")
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	acquired, err = other.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if !acquired {
		t.Fatal("expected to acquire lock after release")
	}
}

func TestRedisLock_ReleaseOnlyIfOwned(t *testing.T) {
	client := newTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	first := NewRedisLock(client, "scheduler", time.Minute)
	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire = %v, %v", ok, err)
	}

	// Releasing with a different ownership value must not drop the lock.
	imposter := NewRedisLock(client, "scheduler", time.Minute)
	if err := imposter.Release(ctx); err != nil {
		t.Fatalf("imposter release: %v", err)
	}

	third := NewRedisLock(client, "scheduler", time.Minute)
	acquired, err := third.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if acquired {
		t.Fatal("lock was released by a non-owner")
	}
}

func TestRedisLock_Extend(t *testing.T) {
	client := newTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	lock := NewRedisLock(client, "scheduler", time.Minute)
	if ok, err := lock.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire = %v, %v", ok, err)
	}
	if err := lock.Extend(ctx, 5*time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}

	ttl, err := client.TTL(ctx, "lock:scheduler").Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= time.Minute {
		t.Errorf("ttl = %s, want > 1m after extend", ttl)
	}
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	lock := NewPGAdvisoryLock(db, "scheduler")

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(lock.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected advisory lock to be acquired")
	}

	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(lock.lockID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNewLock_BackendSelection(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	if _, ok := NewLock(nil, db, "k", time.Minute).(*PGAdvisoryLock); !ok {
		t.Error("nil redis client should select the advisory lock backend")
	}

	client := newTestRedis(t)
	defer client.Close()
	if _, ok := NewLock(client, db, "k", time.Minute).(*RedisLock); !ok {
		t.Error("redis client should select the redis backend")
	}
}

func TestPGAdvisoryLock_DeterministicID(t *testing.T) {
	a := NewPGAdvisoryLock(nil, "scheduler")
	b := NewPGAdvisoryLock(nil, "scheduler")
	c := NewPGAdvisoryLock(nil, "other")

	if a.lockID != b.lockID {
		t.Error("same key must map to the same lock ID")
	}
	if a.lockID == c.lockID {
		t.Error("different keys mapped to the same lock ID")
	}
}
