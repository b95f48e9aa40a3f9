package worker

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"
)

// AccountMonitor periodically probes each messaging account's health on the
// provider and records disconnects so the scheduler stops acting on broken
// accounts. Checkpoints (2FA, captcha) are surfaced for the UI to resolve.
type AccountMonitor struct {
	db       *sql.DB
	clients  ClientFactory
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewAccountMonitor creates the monitor. interval defaults to 15 minutes.
func NewAccountMonitor(db *sql.DB, clients ClientFactory, interval time.Duration) *AccountMonitor {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &AccountMonitor{db: db, clients: clients, interval: interval}
}

// Start begins the probe loop.
func (am *AccountMonitor) Start() {
	am.mu.Lock()
	if am.running {
		am.mu.Unlock()
		return
	}
	am.running = true
	am.ctx, am.cancel = context.WithCancel(context.Background())
	am.mu.Unlock()

	am.wg.Add(1)
	go func() {
		defer am.wg.Done()
		log.Printf("[AccountMonitor] Starting, probing every %s", am.interval)
		ticker := time.NewTicker(am.interval)
		defer ticker.Stop()
		for {
			select {
			case <-am.ctx.Done():
				return
			case <-ticker.C:
				am.probeAll(am.ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight probe.
func (am *AccountMonitor) Stop() {
	am.mu.Lock()
	if !am.running {
		am.mu.Unlock()
		return
	}
	am.running = false
	am.cancel()
	am.mu.Unlock()
	am.wg.Wait()
	log.Printf("[AccountMonitor] Stopped")
}

func (am *AccountMonitor) probeAll(ctx context.Context) {
	rows, err := am.db.QueryContext(ctx, `
		SELECT user_id, external_account_id FROM messaging_accounts
	`)
	if err != nil {
		log.Printf("[AccountMonitor] Fetching accounts: %v", err)
		return
	}
	defer rows.Close()

	type account struct{ userID, accountID string }
	var accounts []account
	for rows.Next() {
		var a account
		if err := rows.Scan(&a.userID, &a.accountID); err != nil {
			continue
		}
		accounts = append(accounts, a)
	}
	rows.Close()

	for _, a := range accounts {
		if ctx.Err() != nil {
			return
		}
		am.probe(ctx, a.userID, a.accountID)
	}
}

func (am *AccountMonitor) probe(ctx context.Context, userID, accountID string) {
	status := am.clients(accountID).CheckConnectionStatus(ctx)
	if !status.Success {
		// A failed probe is not proof of a dead account; leave state alone.
		log.Printf("[AccountMonitor] Probe for account %s failed: %s", accountID, status.Error)
		return
	}

	var checkpoint *string
	if status.CheckpointType != "" {
		checkpoint = &status.CheckpointType
	}
	_, err := am.db.ExecContext(ctx, `
		UPDATE messaging_accounts SET
			connected = ($1 = 'OK'), connection_state = $1,
			pending_checkpoint_type = $2, updated_at = NOW()
		WHERE user_id = $3 AND external_account_id = $4
	`, status.SourceStatus, checkpoint, userID, accountID)
	if err != nil {
		log.Printf("[AccountMonitor] Updating account %s: %v", accountID, err)
		return
	}
	if status.SourceStatus != "OK" {
		log.Printf("[AccountMonitor] Account %s unhealthy: %s checkpoint=%s",
			accountID, status.SourceStatus, status.CheckpointType)
	}
}
