package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/service/sequence"
)

// EnrollmentRepo implements sequence.EnrollmentRepository against PostgreSQL.
type EnrollmentRepo struct{ db *sql.DB }

// NewEnrollmentRepo creates a Postgres-backed enrollment repository.
func NewEnrollmentRepo(db *sql.DB) *EnrollmentRepo { return &EnrollmentRepo{db: db} }

const enrollmentCols = `id, sequence_id, lead_id, user_id, status, current_step_order,
	       last_step_completed_at, next_step_due_at, messages_sent,
	       replied_at, completed_at, failed_reason,
	       current_phase, phase_entered_at, last_response_at, last_response_text,
	       phase_analysis, messages_in_phase, nurture_count, reactivation_count,
	       total_messages_sent, enrolled_at, updated_at`

func scanEnrollment(row interface{ Scan(...interface{}) error }, e *domain.Enrollment) error {
	return row.Scan(
		&e.ID, &e.SequenceID, &e.LeadID, &e.UserID, &e.Status, &e.CurrentStepOrder,
		&e.LastStepCompletedAt, &e.NextStepDueAt, &e.MessagesSent,
		&e.RepliedAt, &e.CompletedAt, &e.FailedReason,
		&e.CurrentPhase, &e.PhaseEnteredAt, &e.LastResponseAt, &e.LastResponseText,
		&e.PhaseAnalysisJSON, &e.MessagesInPhase, &e.NurtureCount, &e.ReactivationCount,
		&e.TotalMessagesSent, &e.EnrolledAt, &e.UpdatedAt,
	)
}

func (r *EnrollmentRepo) Create(ctx context.Context, e *domain.Enrollment) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sequence_enrollments
			(id, sequence_id, lead_id, user_id, status, current_step_order,
			 next_step_due_at, enrolled_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, e.ID, e.SequenceID, e.LeadID, e.UserID, e.Status, e.CurrentStepOrder, e.NextStepDueAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return sequence.ErrDuplicateEnrollment
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (r *EnrollmentRepo) GetByLeadAndSequence(ctx context.Context, leadID, sequenceID string) (*domain.Enrollment, error) {
	e := &domain.Enrollment{}
	err := scanEnrollment(r.db.QueryRowContext(ctx, `
		SELECT `+enrollmentCols+`
		FROM sequence_enrollments
		WHERE lead_id = $1 AND sequence_id = $2
	`, leadID, sequenceID), e)
	if err == sql.ErrNoRows {
		return nil, sequence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

func (r *EnrollmentRepo) ListBySequence(ctx context.Context, sequenceID string, status domain.EnrollmentStatus, limit, offset int) ([]domain.Enrollment, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT ` + enrollmentCols + `
		FROM sequence_enrollments
		WHERE sequence_id = $1`
	args := []interface{}{sequenceID}
	idx := 2
	if status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, status)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY enrolled_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		var e domain.Enrollment
		if err := scanEnrollment(rows, &e); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EnrollmentRepo) SetStatus(ctx context.Context, id string, status domain.EnrollmentStatus) error {
	q := `UPDATE sequence_enrollments SET status = $1, updated_at = NOW()`
	switch status {
	case domain.EnrollmentReplied:
		q += `, replied_at = NOW()`
	case domain.EnrollmentCompleted:
		q += `, completed_at = NOW()`
	}
	q += ` WHERE id = $2`

	res, err := r.db.ExecContext(ctx, q, status, id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sequence.ErrNotFound
	}
	return nil
}

func (r *EnrollmentRepo) BulkSetStatus(ctx context.Context, sequenceID string, from, to domain.EnrollmentStatus) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sequence_enrollments SET status = $1, updated_at = NOW()
		WHERE sequence_id = $2 AND status = $3
	`, to, sequenceID, from)
	if err != nil {
		return 0, fmt.Errorf("bulk set status: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *EnrollmentRepo) StatusCounts(ctx context.Context, sequenceID string) (map[domain.EnrollmentStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM sequence_enrollments
		WHERE sequence_id = $1
		GROUP BY status
	`, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	out := map[domain.EnrollmentStatus]int{}
	for rows.Next() {
		var status domain.EnrollmentStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *EnrollmentRepo) PhaseCounts(ctx context.Context, sequenceID string) (map[domain.PipelinePhase]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT current_phase, COUNT(*)
		FROM sequence_enrollments
		WHERE sequence_id = $1 AND current_phase IS NOT NULL
		GROUP BY current_phase
	`, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("phase counts: %w", err)
	}
	defer rows.Close()

	out := map[domain.PipelinePhase]int{}
	for rows.Next() {
		var phase domain.PipelinePhase
		var n int
		if err := rows.Scan(&phase, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[phase] = n
	}
	return out, rows.Err()
}

// RecentActivity returns enrollments whose state changed since the cutoff,
// newest first. Used by the activity feed endpoint.
func (r *EnrollmentRepo) RecentActivity(ctx context.Context, userID string, since time.Time, limit int) ([]domain.Enrollment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+enrollmentCols+`
		FROM sequence_enrollments
		WHERE user_id = $1 AND updated_at >= $2
		ORDER BY updated_at DESC
		LIMIT $3
	`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		var e domain.Enrollment
		if err := scanEnrollment(rows, &e); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
