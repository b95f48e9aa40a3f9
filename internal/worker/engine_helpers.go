package worker

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/ignite/linkedin-outreach/internal/domain"
)

// execer is satisfied by both *sql.DB and *sql.Tx so the write helpers can
// run inside a transaction or against the bare pool.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// withTx runs fn inside one transaction. State that must move together
// (enrollment, its lead, the sequence counters) goes through here so a
// partial failure cannot leave them disagreeing.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// enrollmentRow is the engines' working view of one due enrollment joined
// with its sequence.
type enrollmentRow struct {
	domain.Enrollment
	SequenceMode      domain.SequenceMode
	MessageStrategy   domain.MessageStrategy
	BusinessProfileID *string
}

const engineEnrollmentCols = `e.id, e.sequence_id, e.lead_id, e.user_id, e.status,
	       e.current_step_order, e.last_step_completed_at, e.next_step_due_at,
	       e.messages_sent, e.current_phase, e.phase_entered_at,
	       e.last_response_at, e.last_response_text, e.phase_analysis,
	       e.messages_in_phase, e.nurture_count, e.reactivation_count,
	       e.total_messages_sent, e.enrolled_at,
	       s.sequence_mode, s.message_strategy, s.business_profile_id`

func scanEnrollmentRow(rows *sql.Rows) (*enrollmentRow, error) {
	var e enrollmentRow
	err := rows.Scan(&e.ID, &e.SequenceID, &e.LeadID, &e.UserID, &e.Status,
		&e.CurrentStepOrder, &e.LastStepCompletedAt, &e.NextStepDueAt,
		&e.MessagesSent, &e.CurrentPhase, &e.PhaseEnteredAt,
		&e.LastResponseAt, &e.LastResponseText, &e.PhaseAnalysisJSON,
		&e.MessagesInPhase, &e.NurtureCount, &e.ReactivationCount,
		&e.TotalMessagesSent, &e.EnrolledAt,
		&e.SequenceMode, &e.MessageStrategy, &e.BusinessProfileID)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func loadLead(ctx context.Context, db *sql.DB, id string) (*domain.Lead, error) {
	l := &domain.Lead{}
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, full_name, email, job_title, headline,
		       company_name, company_industry, city, country,
		       linkedin_url, provider_id, chat_id, status,
		       connection_message, score_label, active_sequence_id
		FROM leads WHERE id = $1
	`, id).Scan(&l.ID, &l.UserID, &l.FullName, &l.Email, &l.JobTitle, &l.Headline,
		&l.CompanyName, &l.CompanyIndustry, &l.City, &l.Country,
		&l.ProfileURL, &l.ProviderID, &l.ChatID, &l.Status,
		&l.ConnectionMessage, &l.ScoreLabel, &l.ActiveSequenceID)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// failEnrollment is the fatal path for one enrollment: status failed with a
// reason, lead unlinked, sequence active count decremented, all in one
// transaction.
func failEnrollment(ctx context.Context, db *sql.DB, e *domain.Enrollment, reason string) {
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE sequence_enrollments SET status = $1, failed_reason = $2,
			       next_step_due_at = NULL, updated_at = NOW()
			WHERE id = $3
		`, domain.EnrollmentFailed, reason, e.ID)
		if err != nil {
			return err
		}
		if err := clearLeadSequenceLink(ctx, tx, e.LeadID); err != nil {
			return err
		}
		return adjustSequenceCounters(ctx, tx, e.SequenceID, 0, -1, 0, 0)
	})
	if err != nil {
		log.Printf("[Engine] Failing enrollment %s: %v", e.ID, err)
		return
	}
	log.Printf("[Engine] Enrollment %s failed: %s", e.ID, reason)
}

func clearLeadSequenceLink(ctx context.Context, ex execer, leadID string) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE leads SET active_sequence_id = NULL, updated_at = NOW() WHERE id = $1
	`, leadID)
	return err
}

func setLeadStatus(ctx context.Context, ex execer, leadID string, status domain.LeadStatus) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE leads SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, leadID)
	return err
}

// completeEnrollment closes an enrollment successfully, unlinking the lead
// and crediting the sequence's completed counter in one transaction.
func completeEnrollment(ctx context.Context, db *sql.DB, e *enrollmentRow, at time.Time) {
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE sequence_enrollments SET
				status = 'completed', completed_at = $1, next_step_due_at = NULL, updated_at = NOW()
			WHERE id = $2
		`, at, e.ID)
		if err != nil {
			return err
		}
		if err := clearLeadSequenceLink(ctx, tx, e.LeadID); err != nil {
			return err
		}
		return adjustSequenceCounters(ctx, tx, e.SequenceID, 0, -1, 1, 0)
	})
	if err != nil {
		log.Printf("[Engine] Completing enrollment %s: %v", e.ID, err)
	}
}

func loadSteps(ctx context.Context, db *sql.DB, sequenceID string) ([]domain.SequenceStep, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, sequence_id, step_order, step_type, delay_days, prompt_context
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY step_order
	`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SequenceStep
	for rows.Next() {
		var st domain.SequenceStep
		if err := rows.Scan(&st.ID, &st.SequenceID, &st.StepOrder, &st.StepType,
			&st.DelayDays, &st.PromptContext); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func adjustSequenceCounters(ctx context.Context, ex execer, sequenceID string, totalDelta, activeDelta, completedDelta, repliedDelta int) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE sequences SET
			total_enrolled  = GREATEST(0, total_enrolled + $1),
			active_enrolled = GREATEST(0, active_enrolled + $2),
			completed_count = GREATEST(0, completed_count + $3),
			replied_count   = GREATEST(0, replied_count + $4),
			updated_at = NOW()
		WHERE id = $5
	`, totalDelta, activeDelta, completedDelta, repliedDelta, sequenceID)
	return err
}
