package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/ignite/linkedin-outreach/internal/ai"
	"github.com/ignite/linkedin-outreach/internal/pkg/httputil"
	"github.com/ignite/linkedin-outreach/internal/repository/postgres"
	"github.com/ignite/linkedin-outreach/internal/service/sequence"
	"github.com/ignite/linkedin-outreach/internal/worker"
)

// SchedulerStatus is the slice of the scheduler the status endpoint reads.
// Satisfied by *worker.OutreachScheduler.
type SchedulerStatus interface {
	IsRunning() bool
	GetStats() worker.Stats
}

// Handlers bundles the HTTP endpoint implementations and their dependencies.
type Handlers struct {
	db         *sql.DB
	sequences  *sequence.Service
	leads      *postgres.LeadRepo
	automation *postgres.AutomationRepo
	logs       *postgres.InvitationLogRepo
	accounts   *postgres.AccountRepo
	profiles   *postgres.BusinessProfileRepo
	seqRepo    *postgres.SequenceRepo
	enrolls    *postgres.EnrollmentRepo

	// analyzer is nil when the AI integration is disabled.
	analyzer  *ai.Analyzer
	scheduler SchedulerStatus

	startedAt time.Time
}

// NewHandlers wires the endpoint implementations. analyzer and scheduler may
// be nil; the endpoints that need them degrade gracefully.
func NewHandlers(db *sql.DB, analyzer *ai.Analyzer, scheduler SchedulerStatus) *Handlers {
	seqRepo := postgres.NewSequenceRepo(db)
	enrolls := postgres.NewEnrollmentRepo(db)
	leads := postgres.NewLeadRepo(db)
	return &Handlers{
		db:         db,
		sequences:  sequence.NewService(seqRepo, enrolls, leads),
		leads:      leads,
		automation: postgres.NewAutomationRepo(db),
		logs:       postgres.NewInvitationLogRepo(db),
		accounts:   postgres.NewAccountRepo(db),
		profiles:   postgres.NewBusinessProfileRepo(db),
		seqRepo:    seqRepo,
		enrolls:    enrolls,
		analyzer:   analyzer,
		scheduler:  scheduler,
		startedAt:  time.Now(),
	}
}

// HealthCheck reports process liveness and database reachability.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "ok"
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}
	httputil.OK(w, map[string]any{
		"status":   status,
		"database": dbStatus,
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// SchedulerStatusHandler exposes the scheduler's counters.
func (h *Handlers) SchedulerStatusHandler(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		httputil.OK(w, map[string]any{"running": false, "enabled": false})
		return
	}
	httputil.OK(w, h.scheduler.GetStats())
}

type contextKey string

const userIDKey contextKey = "user_id"

// requireUser extracts the caller's user id from the X-User-ID header.
// Upstream auth (reverse proxy) is expected to have validated it.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get("X-User-ID")
		if uid == "" {
			httputil.Error(w, http.StatusUnauthorized, "missing user identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, uid)))
	})
}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(userIDKey).(string)
	return uid
}
