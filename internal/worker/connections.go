package worker

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/ignite/linkedin-outreach/internal/domain"
)

// ConnectionDetector polls the provider's chat list for each connected
// account and matches new chats against leads awaiting acceptance. A new
// chat with a pending lead means the invitation was accepted: the lead is
// marked connected and any waiting enrollment moves forward.
type ConnectionDetector struct {
	db       *sql.DB
	clients  ClientFactory
	pipeline *PipelineEngine
}

// NewConnectionDetector creates the acceptance detector. The pipeline engine
// handles phase entry for smart pipeline enrollments.
func NewConnectionDetector(db *sql.DB, clients ClientFactory, pipeline *PipelineEngine) *ConnectionDetector {
	return &ConnectionDetector{db: db, clients: clients, pipeline: pipeline}
}

// DetectConnectionChanges runs one acceptance scan across all connected
// accounts.
func (cd *ConnectionDetector) DetectConnectionChanges(ctx context.Context) {
	rows, err := cd.db.QueryContext(ctx, `
		SELECT user_id, external_account_id FROM messaging_accounts WHERE connected = TRUE
	`)
	if err != nil {
		log.Printf("[ConnectionDetector] Fetching accounts: %v", err)
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
		cd.scanAccount(ctx, a.userID, a.accountID)
	}
}

func (cd *ConnectionDetector) scanAccount(ctx context.Context, userID, accountID string) {
	client := cd.clients(accountID)
	list := client.ListChats(ctx, 100, false)
	if !list.Success {
		log.Printf("[ConnectionDetector] Listing chats for account %s: %s", accountID, list.Error)
		return
	}
	chatByAttendee := make(map[string]string, len(list.Chats))
	for _, chat := range list.Chats {
		if chat.AttendeeProviderID != "" {
			chatByAttendee[chat.AttendeeProviderID] = chat.ID
		}
	}
	if len(chatByAttendee) == 0 {
		return
	}

	pending, err := cd.pendingLeads(ctx, userID)
	if err != nil {
		log.Printf("[ConnectionDetector] Fetching pending leads: %v", err)
		return
	}

	for _, lead := range pending {
		chatID, ok := chatByAttendee[*lead.ProviderID]
		if !ok {
			continue
		}
		cd.markAccepted(ctx, lead, chatID)
	}
}

// pendingLeads returns a user's leads whose invitation went out but whose
// acceptance has not been seen yet.
func (cd *ConnectionDetector) pendingLeads(ctx context.Context, userID string) ([]*domain.Lead, error) {
	rows, err := cd.db.QueryContext(ctx, `
		SELECT id, user_id, full_name, provider_id, active_sequence_id
		FROM leads
		WHERE user_id = $1 AND status = 'invitation_sent' AND provider_id IS NOT NULL
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []*domain.Lead
	for rows.Next() {
		l := &domain.Lead{}
		if err := rows.Scan(&l.ID, &l.UserID, &l.FullName, &l.ProviderID, &l.ActiveSequenceID); err != nil {
			continue
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// markAccepted stamps the lead connected and advances its enrollment if one
// is waiting on acceptance.
func (cd *ConnectionDetector) markAccepted(ctx context.Context, lead *domain.Lead, chatID string) {
	now := time.Now().UTC()
	_, err := cd.db.ExecContext(ctx, `
		UPDATE leads SET status = 'connected', chat_id = $1, connected_at = $2, updated_at = NOW()
		WHERE id = $3
	`, chatID, now, lead.ID)
	if err != nil {
		log.Printf("[ConnectionDetector] Marking lead %s connected: %v", lead.ID, err)
		return
	}
	s := chatID
	lead.ChatID = &s
	log.Printf("[ConnectionDetector] Lead %s accepted the invitation", lead.DisplayName())

	if lead.ActiveSequenceID == nil {
		return
	}
	e, err := cd.waitingEnrollment(ctx, lead.ID, *lead.ActiveSequenceID)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("[ConnectionDetector] Fetching enrollment for lead %s: %v", lead.ID, err)
		}
		return
	}

	switch e.SequenceMode {
	case domain.ModeSmartPipeline:
		cd.pipeline.EnterApertura(ctx, e, lead, now)
	default:
		cd.advanceClassic(ctx, e, now)
	}
}

func (cd *ConnectionDetector) waitingEnrollment(ctx context.Context, leadID, sequenceID string) (*enrollmentRow, error) {
	rows, err := cd.db.QueryContext(ctx, `
		SELECT `+engineEnrollmentCols+`
		FROM sequence_enrollments e
		JOIN sequences s ON s.id = e.sequence_id
		WHERE e.lead_id = $1 AND e.sequence_id = $2 AND e.status = 'active'
		LIMIT 1
	`, leadID, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	return scanEnrollmentRow(rows)
}

// advanceClassic schedules the first follow-up once the connection exists.
// A sequence with no follow-up steps completes here.
func (cd *ConnectionDetector) advanceClassic(ctx context.Context, e *enrollmentRow, now time.Time) {
	// Only step 1 waits on acceptance with no due time set.
	if e.CurrentStepOrder != 1 || e.NextStepDueAt != nil {
		return
	}
	steps, err := loadSteps(ctx, cd.db, e.SequenceID)
	if err != nil {
		log.Printf("[ConnectionDetector] Loading steps for %s: %v", e.SequenceID, err)
		return
	}
	if len(steps) < 2 {
		completeEnrollment(ctx, cd.db, e, now)
		return
	}
	due := now.AddDate(0, 0, steps[1].DelayDays)
	_, err = cd.db.ExecContext(ctx, `
		UPDATE sequence_enrollments SET
			current_step_order = 2, next_step_due_at = $1, updated_at = NOW()
		WHERE id = $2
	`, due, e.ID)
	if err != nil {
		log.Printf("[ConnectionDetector] Advancing enrollment %s: %v", e.ID, err)
		return
	}
	log.Printf("[ConnectionDetector] Enrollment %s accepted, step 2 due %s", e.ID, due.Format(time.RFC3339))
}
