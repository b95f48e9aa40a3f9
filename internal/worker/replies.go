package worker

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// ReplyDetector scans connected classic enrollments for inbound messages.
// Any reply halts the sequence: the enrollment moves to replied and the
// conversation is handed back to the human.
type ReplyDetector struct {
	db      *sql.DB
	clients ClientFactory
}

// NewReplyDetector creates the classic reply detector.
func NewReplyDetector(db *sql.DB, clients ClientFactory) *ReplyDetector {
	return &ReplyDetector{db: db, clients: clients}
}

// DetectClassicReplies runs one reply scan over active classic enrollments
// whose lead has an open chat.
func (rd *ReplyDetector) DetectClassicReplies(ctx context.Context) {
	rows, err := rd.db.QueryContext(ctx, `
		SELECT `+engineEnrollmentCols+`
		FROM sequence_enrollments e
		JOIN sequences s ON s.id = e.sequence_id
		JOIN leads l ON l.id = e.lead_id
		WHERE e.status = 'active'
		  AND s.sequence_mode = 'classic'
		  AND l.chat_id IS NOT NULL
		ORDER BY e.id
	`)
	if err != nil {
		log.Printf("[ReplyDetector] Fetching enrollments: %v", err)
		return
	}
	defer rows.Close()

	var active []*enrollmentRow
	for rows.Next() {
		e, err := scanEnrollmentRow(rows)
		if err != nil {
			log.Printf("[ReplyDetector] Scan: %v", err)
			continue
		}
		active = append(active, e)
	}
	rows.Close()

	for _, e := range active {
		rd.checkEnrollment(ctx, e)
	}
}

func (rd *ReplyDetector) checkEnrollment(ctx context.Context, e *enrollmentRow) {
	lead, err := loadLead(ctx, rd.db, e.LeadID)
	if err != nil || lead.ChatID == nil || *lead.ChatID == "" {
		return
	}
	accountID, connected, err := loadAccount(ctx, rd.db, e.UserID)
	if err != nil || !connected {
		return
	}
	client := rd.clients(accountID)

	list := client.ListChatMessages(ctx, *lead.ChatID, 20, false)
	if !list.Success {
		return
	}
	inbound := latestInbound(list.Messages)
	if inbound == nil {
		return
	}
	sentAt := inbound.SentAt()
	// Ignore history from before the sequence started.
	if sentAt.IsZero() || !sentAt.After(e.EnrolledAt) {
		return
	}

	rd.markReplied(ctx, e, sentAt)
}

// markReplied stops the sequence for this lead and hands the thread over.
// Enrollment, lead, and counters move in one transaction.
func (rd *ReplyDetector) markReplied(ctx context.Context, e *enrollmentRow, at time.Time) {
	err := withTx(ctx, rd.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE sequence_enrollments SET
				status = 'replied', replied_at = $1, next_step_due_at = NULL, updated_at = NOW()
			WHERE id = $2 AND status = 'active'
		`, at, e.ID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE leads SET
				status = 'in_conversation', last_message_at = $1,
				active_sequence_id = NULL, updated_at = NOW()
			WHERE id = $2
		`, at, e.LeadID)
		if err != nil {
			return err
		}
		return adjustSequenceCounters(ctx, tx, e.SequenceID, 0, -1, 0, 1)
	})
	if err != nil {
		log.Printf("[ReplyDetector] Marking enrollment %s replied: %v", e.ID, err)
		return
	}
	log.Printf("[ReplyDetector] Enrollment %s got a reply, sequence halted", e.ID)
}
