package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/service/sequence"
)

// SequenceRepo implements sequence.SequenceRepository against PostgreSQL.
type SequenceRepo struct{ db *sql.DB }

// NewSequenceRepo creates a Postgres-backed sequence repository.
func NewSequenceRepo(db *sql.DB) *SequenceRepo { return &SequenceRepo{db: db} }

const sequenceCols = `id, user_id, name, description, status, sequence_mode,
	       business_profile_id, message_strategy,
	       total_enrolled, active_enrolled, completed_count, replied_count,
	       created_at, updated_at`

func scanSequence(row interface{ Scan(...interface{}) error }, s *domain.Sequence) error {
	return row.Scan(
		&s.ID, &s.UserID, &s.Name, &s.Description, &s.Status, &s.Mode,
		&s.BusinessProfileID, &s.MessageStrategy,
		&s.TotalEnrolled, &s.ActiveEnrolled, &s.CompletedCount, &s.RepliedCount,
		&s.CreatedAt, &s.UpdatedAt,
	)
}

func (r *SequenceRepo) Get(ctx context.Context, userID, id string) (*domain.Sequence, error) {
	s := &domain.Sequence{}
	err := scanSequence(r.db.QueryRowContext(ctx, `
		SELECT `+sequenceCols+`
		FROM sequences
		WHERE id = $1 AND user_id = $2
	`, id, userID), s)
	if err == sql.ErrNoRows {
		return nil, sequence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sequence: %w", err)
	}
	return s, nil
}

func (r *SequenceRepo) List(ctx context.Context, userID string) ([]domain.Sequence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sequenceCols+`
		FROM sequences
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	defer rows.Close()

	var out []domain.Sequence
	for rows.Next() {
		var s domain.Sequence
		if err := scanSequence(rows, &s); err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SequenceRepo) Create(ctx context.Context, s *domain.Sequence, steps []domain.SequenceStep) (string, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sequences
			(id, user_id, name, description, status, sequence_mode,
			 business_profile_id, message_strategy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`, s.ID, s.UserID, s.Name, s.Description, s.Status, s.Mode,
		s.BusinessProfileID, s.MessageStrategy)
	if err != nil {
		return "", fmt.Errorf("create sequence: %w", err)
	}

	for _, st := range steps {
		id := st.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sequence_steps
				(id, sequence_id, step_order, step_type, delay_days, prompt_context, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
		`, id, s.ID, st.StepOrder, st.StepType, st.DelayDays, st.PromptContext)
		if err != nil {
			return "", fmt.Errorf("create step %d: %w", st.StepOrder, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return s.ID, nil
}

func (r *SequenceRepo) UpdateStatus(ctx context.Context, userID, id string, status domain.SequenceStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sequences SET status = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
	`, status, id, userID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sequence.ErrNotFound
	}
	return nil
}

func (r *SequenceRepo) AdjustCounters(ctx context.Context, id string, totalDelta, activeDelta, completedDelta, repliedDelta int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sequences SET
			total_enrolled  = GREATEST(0, total_enrolled + $1),
			active_enrolled = GREATEST(0, active_enrolled + $2),
			completed_count = GREATEST(0, completed_count + $3),
			replied_count   = GREATEST(0, replied_count + $4),
			updated_at = NOW()
		WHERE id = $5
	`, totalDelta, activeDelta, completedDelta, repliedDelta, id)
	if err != nil {
		return fmt.Errorf("adjust counters: %w", err)
	}
	return nil
}

func (r *SequenceRepo) Steps(ctx context.Context, sequenceID string) ([]domain.SequenceStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sequence_id, step_order, step_type, delay_days, prompt_context, created_at
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY step_order
	`, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []domain.SequenceStep
	for rows.Next() {
		var st domain.SequenceStep
		if err := rows.Scan(&st.ID, &st.SequenceID, &st.StepOrder, &st.StepType,
			&st.DelayDays, &st.PromptContext, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
