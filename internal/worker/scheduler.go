package worker

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/linkedin-outreach/internal/config"
	"github.com/ignite/linkedin-outreach/internal/pkg/distlock"
)

// ErrLockNotAcquired is returned by Start when another instance already
// holds the scheduler lock.
var ErrLockNotAcquired = errors.New("scheduler lock held by another instance")

// Tick cadence bounds, measured in ticks of the 30-second loop. Detection
// phases re-jitter after every fire so the polling pattern never settles
// into a fixed period.
const (
	detectTicksMin = 55
	detectTicksMax = 65

	connectionsOffsetMin = 55
	connectionsOffsetMax = 65
	repliesOffsetMin     = 25
	repliesOffsetMax     = 35
	pipelineOffsetMin    = 40
	pipelineOffsetMax    = 50
)

// OutreachScheduler is the single cooperative loop driving all outreach
// work. Per tick it always runs the send phase (invitations, classic due
// steps, pipeline due sends) and counts down three independently jittered
// detection phases: connection acceptance, classic replies, pipeline replies
// plus time-based pipeline transitions.
type OutreachScheduler struct {
	db   *sql.DB
	cfg  config.SchedulerConfig
	lock distlock.DistLock

	invitations *InvitationSender
	classic     *ClassicEngine
	pipeline    *PipelineEngine
	connections *ConnectionDetector
	replies     *ReplyDetector

	rng *rand.Rand

	// Ticks remaining until each detection phase fires.
	connectionsIn int
	repliesIn     int
	pipelineIn    int

	totalTicks      int64
	connectionScans int64
	replyScans      int64
	pipelineScans   int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewOutreachScheduler wires the scheduler and its engines. lock may be nil
// when single-instance deployment is guaranteed.
func NewOutreachScheduler(db *sql.DB, cfg config.SchedulerConfig, clients ClientFactory, analyzer Analyzer, lock distlock.DistLock) *OutreachScheduler {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	pipeline := NewPipelineEngine(db, clients, analyzer, cfg.PipelineBatchSize)
	s := &OutreachScheduler{
		db:          db,
		cfg:         cfg,
		lock:        lock,
		rng:         rng,
		invitations: NewInvitationSender(db, clients, analyzer),
		classic:     NewClassicEngine(db, clients, analyzer, cfg.ClassicBatchSize),
		pipeline:    pipeline,
		connections: NewConnectionDetector(db, clients, pipeline),
		replies:     NewReplyDetector(db, clients),
	}
	s.connectionsIn = randBetween(rng, connectionsOffsetMin, connectionsOffsetMax)
	s.repliesIn = randBetween(rng, repliesOffsetMin, repliesOffsetMax)
	s.pipelineIn = randBetween(rng, pipelineOffsetMin, pipelineOffsetMax)
	return s
}

func randBetween(rng *rand.Rand, min, max int) int {
	if max <= min {
		return min
	}
	return min + rng.Intn(max-min+1)
}

// Start begins the scheduler loop. When a distributed lock is configured it
// is acquired first and held for the life of the process; a second instance
// refuses to start.
func (s *OutreachScheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	if s.lock != nil {
		acquired, err := s.lock.Acquire(s.ctx)
		if err != nil {
			s.markStopped()
			return err
		}
		if !acquired {
			s.markStopped()
			log.Printf("[Scheduler] Another instance holds the scheduler lock, not starting")
			return ErrLockNotAcquired
		}
	}

	log.Printf("[Scheduler] Starting: tick=%s connections_in=%d replies_in=%d pipeline_in=%d",
		s.cfg.TickInterval(), s.connectionsIn, s.repliesIn, s.pipelineIn)

	s.wg.Add(1)
	go s.loop()
	return nil
}

func (s *OutreachScheduler) markStopped() {
	s.mu.Lock()
	s.running = false
	s.cancel()
	s.mu.Unlock()
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (s *OutreachScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(60 * time.Second):
		log.Printf("[Scheduler] Shutdown timeout, abandoning in-flight tick")
	}

	if s.lock != nil {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.lock.Release(releaseCtx); err != nil {
			log.Printf("[Scheduler] Lock release failed: %v", err)
		}
	}
	log.Printf("[Scheduler] Stopped after %d ticks (connections=%d replies=%d pipeline=%d)",
		atomic.LoadInt64(&s.totalTicks), atomic.LoadInt64(&s.connectionScans),
		atomic.LoadInt64(&s.replyScans), atomic.LoadInt64(&s.pipelineScans))
}

// IsRunning reports whether the loop is active.
func (s *OutreachScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Stats is a point-in-time snapshot for the status endpoint.
type Stats struct {
	Running         bool  `json:"running"`
	TotalTicks      int64 `json:"total_ticks"`
	ConnectionScans int64 `json:"connection_scans"`
	ReplyScans      int64 `json:"reply_scans"`
	PipelineScans   int64 `json:"pipeline_scans"`
	InvitationsSent int64 `json:"invitations_sent"`
}

// GetStats returns the scheduler's counters.
func (s *OutreachScheduler) GetStats() Stats {
	return Stats{
		Running:         s.IsRunning(),
		TotalTicks:      atomic.LoadInt64(&s.totalTicks),
		ConnectionScans: atomic.LoadInt64(&s.connectionScans),
		ReplyScans:      atomic.LoadInt64(&s.replyScans),
		PipelineScans:   atomic.LoadInt64(&s.pipelineScans),
		InvitationsSent: s.invitations.TotalSent(),
	}
}

func (s *OutreachScheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one scheduler iteration: the send phase always, the detection
// phases when their countdowns elapse, in fixed order and never concurrently.
func (s *OutreachScheduler) tick() {
	atomic.AddInt64(&s.totalTicks, 1)

	s.invitations.SendNextInvitations(s.ctx)
	s.classic.ProcessDueActions(s.ctx)
	s.pipeline.ProcessDueActions(s.ctx)

	runConnections, runReplies, runPipeline := s.advanceCountdowns()

	if runConnections {
		atomic.AddInt64(&s.connectionScans, 1)
		s.connections.DetectConnectionChanges(s.ctx)
	}
	if runReplies {
		atomic.AddInt64(&s.replyScans, 1)
		s.replies.DetectClassicReplies(s.ctx)
	}
	if runPipeline {
		atomic.AddInt64(&s.pipelineScans, 1)
		s.pipeline.DetectReplies(s.ctx)
		s.pipeline.ProcessTimeBasedTransitions(s.ctx)
	}
}

// advanceCountdowns decrements the three detection countdowns and reports
// which phases are due this tick. A fired phase redraws its next delay
// uniformly from the detection band.
func (s *OutreachScheduler) advanceCountdowns() (connections, replies, pipeline bool) {
	s.connectionsIn--
	if s.connectionsIn <= 0 {
		connections = true
		s.connectionsIn = randBetween(s.rng, detectTicksMin, detectTicksMax)
	}
	s.repliesIn--
	if s.repliesIn <= 0 {
		replies = true
		s.repliesIn = randBetween(s.rng, detectTicksMin, detectTicksMax)
	}
	s.pipelineIn--
	if s.pipelineIn <= 0 {
		pipeline = true
		s.pipelineIn = randBetween(s.rng, detectTicksMin, detectTicksMax)
	}
	return connections, replies, pipeline
}
