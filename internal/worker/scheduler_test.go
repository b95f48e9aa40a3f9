package worker

import (
	"context"
	"database/sql"
	"math/rand"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/linkedin-outreach/internal/config"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:             true,
		TickIntervalSeconds: 3600, // never fires during a test
		ClassicBatchSize:    5,
		PipelineBatchSize:   3,
	}
}

func noopClients(accountID string) MessagingClient { return nil }

func TestRandBetween(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := randBetween(rng, 55, 65)
		if v < 55 || v > 65 {
			t.Fatalf("randBetween(55, 65) = %d, out of range", v)
		}
	}
	if v := randBetween(rng, 10, 10); v != 10 {
		t.Errorf("randBetween(10, 10) = %d, want 10", v)
	}
	if v := randBetween(rng, 10, 5); v != 10 {
		t.Errorf("randBetween(10, 5) = %d, want min", v)
	}
}

func TestNewOutreachScheduler_InitialOffsets(t *testing.T) {
	db, _, cleanup := newMockDB(t)
	defer cleanup()

	for i := 0; i < 50; i++ {
		s := NewOutreachScheduler(db, testSchedulerConfig(), noopClients, nil, nil)
		if s.connectionsIn < connectionsOffsetMin || s.connectionsIn > connectionsOffsetMax {
			t.Fatalf("connectionsIn = %d, want [%d, %d]", s.connectionsIn, connectionsOffsetMin, connectionsOffsetMax)
		}
		if s.repliesIn < repliesOffsetMin || s.repliesIn > repliesOffsetMax {
			t.Fatalf("repliesIn = %d, want [%d, %d]", s.repliesIn, repliesOffsetMin, repliesOffsetMax)
		}
		if s.pipelineIn < pipelineOffsetMin || s.pipelineIn > pipelineOffsetMax {
			t.Fatalf("pipelineIn = %d, want [%d, %d]", s.pipelineIn, pipelineOffsetMin, pipelineOffsetMax)
		}
	}
}

func TestAdvanceCountdowns(t *testing.T) {
	db, _, cleanup := newMockDB(t)
	defer cleanup()

	s := NewOutreachScheduler(db, testSchedulerConfig(), noopClients, nil, nil)
	s.connectionsIn = 1
	s.repliesIn = 2
	s.pipelineIn = 3

	conns, replies, pipeline := s.advanceCountdowns()
	if !conns || replies || pipeline {
		t.Errorf("tick 1: got (%v, %v, %v), want only connections", conns, replies, pipeline)
	}
	if s.connectionsIn < detectTicksMin || s.connectionsIn > detectTicksMax {
		t.Errorf("redrawn connectionsIn = %d, want [%d, %d]", s.connectionsIn, detectTicksMin, detectTicksMax)
	}

	conns, replies, pipeline = s.advanceCountdowns()
	if conns || !replies || pipeline {
		t.Errorf("tick 2: got (%v, %v, %v), want only replies", conns, replies, pipeline)
	}

	conns, replies, pipeline = s.advanceCountdowns()
	if conns || replies || !pipeline {
		t.Errorf("tick 3: got (%v, %v, %v), want only pipeline", conns, replies, pipeline)
	}
}

func TestAdvanceCountdowns_RedrawsEveryFire(t *testing.T) {
	db, _, cleanup := newMockDB(t)
	defer cleanup()

	s := NewOutreachScheduler(db, testSchedulerConfig(), noopClients, nil, nil)
	fires := 0
	for i := 0; i < 1000; i++ {
		if conns, _, _ := s.advanceCountdowns(); conns {
			fires++
			if s.connectionsIn < detectTicksMin || s.connectionsIn > detectTicksMax {
				t.Fatalf("redraw %d out of band: %d", fires, s.connectionsIn)
			}
		}
	}
	// 1000 ticks with a 55-65 tick period lands around 16 fires.
	if fires < 14 || fires > 19 {
		t.Errorf("fires = %d over 1000 ticks, want roughly 1000/60", fires)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	db, _, cleanup := newMockDB(t)
	defer cleanup()

	s := NewOutreachScheduler(db, testSchedulerConfig(), noopClients, nil, nil)
	if s.IsRunning() {
		t.Error("scheduler should not run before Start()")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !s.IsRunning() {
		t.Error("scheduler should run after Start()")
	}
	// Second Start is a no-op.
	if err := s.Start(); err != nil {
		t.Errorf("second Start() error: %v", err)
	}
	s.Stop()
	if s.IsRunning() {
		t.Error("scheduler should not run after Stop()")
	}
}

type fakeLock struct {
	acquired bool
	err      error
	released bool
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) { return f.acquired, f.err }
func (f *fakeLock) Release(ctx context.Context) error         { f.released = true; return nil }

func TestScheduler_LockHeldElsewhere(t *testing.T) {
	db, _, cleanup := newMockDB(t)
	defer cleanup()

	s := NewOutreachScheduler(db, testSchedulerConfig(), noopClients, nil, &fakeLock{acquired: false})
	err := s.Start()
	if err != ErrLockNotAcquired {
		t.Fatalf("Start() error = %v, want ErrLockNotAcquired", err)
	}
	if s.IsRunning() {
		t.Error("scheduler should not run without the lock")
	}
}

func TestScheduler_ReleasesLockOnStop(t *testing.T) {
	db, _, cleanup := newMockDB(t)
	defer cleanup()

	lock := &fakeLock{acquired: true}
	s := NewOutreachScheduler(db, testSchedulerConfig(), noopClients, nil, lock)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	s.Stop()
	if !lock.released {
		t.Error("Stop() should release the scheduler lock")
	}
}

func TestScheduler_GetStats(t *testing.T) {
	db, _, cleanup := newMockDB(t)
	defer cleanup()

	s := NewOutreachScheduler(db, testSchedulerConfig(), noopClients, nil, nil)
	stats := s.GetStats()
	if stats.Running {
		t.Error("stats should report not running")
	}
	if stats.TotalTicks != 0 || stats.InvitationsSent != 0 {
		t.Errorf("fresh scheduler stats = %+v, want zeros", stats)
	}
}

func TestScheduler_StopTimeoutGuard(t *testing.T) {
	db, _, cleanup := newMockDB(t)
	defer cleanup()

	s := NewOutreachScheduler(db, testSchedulerConfig(), noopClients, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}
}
