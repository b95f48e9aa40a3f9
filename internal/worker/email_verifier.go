package worker

import (
	"context"
	"database/sql"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/pkg/logger"
)

// EmailVerificationProvider abstracts third-party email verification.
type EmailVerificationProvider interface {
	Verify(ctx context.Context, email string) (VerificationResult, error)
}

// VerificationResult holds the outcome from a verification provider.
type VerificationResult struct {
	Status domain.EmailStatus
}

// EmailVerifier runs background email validation on imported leads. It uses
// a local MX lookup as a free pre-filter, then delegates to the third-party
// provider for the definitive verdict. Leads without an email are left alone.
type EmailVerifier struct {
	db         *sql.DB
	provider   EmailVerificationProvider
	batchSize  int
	interval   time.Duration
	ratePerMin int

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	lastRunAt time.Time
	healthy   bool
}

// NewEmailVerifier creates the verifier. provider may be nil, in which case
// only the MX pre-filter runs.
func NewEmailVerifier(db *sql.DB, provider EmailVerificationProvider, ratePerMin int) *EmailVerifier {
	if ratePerMin <= 0 {
		ratePerMin = 100
	}
	return &EmailVerifier{
		db:         db,
		provider:   provider,
		batchSize:  50,
		interval:   time.Minute,
		ratePerMin: ratePerMin,
		healthy:    true,
	}
}

// Start begins the background loop. The first pass is delayed so startup
// traffic settles first.
func (v *EmailVerifier) Start() {
	v.ctx, v.cancel = context.WithCancel(context.Background())
	go func() {
		log.Println("[EmailVerifier] Starting email verification worker")
		select {
		case <-v.ctx.Done():
			return
		case <-time.After(30 * time.Second):
		}
		v.runOnce()

		ticker := time.NewTicker(v.interval)
		defer ticker.Stop()
		for {
			select {
			case <-v.ctx.Done():
				log.Println("[EmailVerifier] Stopped")
				return
			case <-ticker.C:
				v.runOnce()
			}
		}
	}()
}

// Stop halts the loop.
func (v *EmailVerifier) Stop() {
	if v.cancel != nil {
		v.cancel()
	}
}

// IsHealthy reports whether the last pass completed without query errors.
func (v *EmailVerifier) IsHealthy() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.healthy
}

// LastRunAt returns when the last pass started.
func (v *EmailVerifier) LastRunAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastRunAt
}

func (v *EmailVerifier) runOnce() {
	v.mu.Lock()
	v.lastRunAt = time.Now()
	v.healthy = true
	v.mu.Unlock()

	v.verifyMXBatch(v.ctx)
	if v.provider != nil {
		v.verifyAPIBatch(v.ctx)
	}
}

// verifyMXBatch runs the free pre-filter: leads whose email domain has no MX
// records are marked invalid without spending a provider call.
func (v *EmailVerifier) verifyMXBatch(ctx context.Context) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT id, email FROM leads
		WHERE email IS NOT NULL AND email <> '' AND email_status IS NULL
		ORDER BY created_at ASC LIMIT $1
	`, v.batchSize)
	if err != nil {
		log.Printf("[EmailVerifier] MX batch query error: %v", err)
		v.mu.Lock()
		v.healthy = false
		v.mu.Unlock()
		return
	}
	defer rows.Close()

	for rows.Next() {
		if ctx.Err() != nil {
			return
		}
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			continue
		}

		if v.checkMX(email) {
			v.db.ExecContext(ctx, `
				UPDATE leads SET email_status = 'mx_valid', updated_at = NOW()
				WHERE id = $1 AND email_status IS NULL
			`, id)
		} else {
			v.db.ExecContext(ctx, `
				UPDATE leads SET email_status = 'invalid', email_verified = FALSE, updated_at = NOW()
				WHERE id = $1
			`, id)
		}
	}
}

// verifyAPIBatch sends MX-valid addresses to the provider, capped per pass
// by the configured rate.
func (v *EmailVerifier) verifyAPIBatch(ctx context.Context) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT id, email FROM leads
		WHERE email_status = 'mx_valid'
		ORDER BY created_at ASC LIMIT $1
	`, v.batchSize)
	if err != nil {
		log.Printf("[EmailVerifier] API batch query error: %v", err)
		return
	}
	defer rows.Close()

	processed := 0
	for rows.Next() {
		if ctx.Err() != nil || processed >= v.ratePerMin {
			return
		}
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			continue
		}

		result, err := v.provider.Verify(ctx, email)
		if err != nil {
			log.Printf("[EmailVerifier] API error for %s: %v", logger.RedactEmail(email), err)
			continue
		}

		status := result.Status
		switch status {
		case domain.EmailValid, domain.EmailInvalid, domain.EmailRisky:
		default:
			status = domain.EmailUnknown
		}
		verified := status == domain.EmailValid
		v.db.ExecContext(ctx, `
			UPDATE leads SET email_status = $1, email_verified = $2, updated_at = NOW()
			WHERE id = $3
		`, status, verified, id)
		processed++
	}
}

func (v *EmailVerifier) checkMX(email string) bool {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 || parts[1] == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resolver := &net.Resolver{}
	records, err := resolver.LookupMX(ctx, parts[1])
	return err == nil && len(records) > 0
}
