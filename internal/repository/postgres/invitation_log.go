package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/linkedin-outreach/internal/domain"
)

// InvitationLogRepo records every invitation attempt for audit and reporting.
type InvitationLogRepo struct{ db *sql.DB }

// NewInvitationLogRepo creates a Postgres-backed invitation log repository.
func NewInvitationLogRepo(db *sql.DB) *InvitationLogRepo { return &InvitationLogRepo{db: db} }

func (r *InvitationLogRepo) Insert(ctx context.Context, l *domain.InvitationLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invitation_logs
			(id, user_id, lead_id, lead_name, company_name, campaign_id, campaign_name,
			 success, status_code, error_message, message_preview, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, l.ID, l.UserID, l.LeadID, l.LeadName, l.CompanyName, l.CampaignID, l.CampaignName,
		l.Success, l.StatusCode, l.ErrorMessage, l.MessagePreview, l.SentAt)
	if err != nil {
		return fmt.Errorf("insert invitation log: %w", err)
	}
	return nil
}

func (r *InvitationLogRepo) List(ctx context.Context, userID string, limit, offset int) ([]domain.InvitationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, lead_id, lead_name, company_name, campaign_id, campaign_name,
		       success, status_code, error_message, message_preview, sent_at
		FROM invitation_logs
		WHERE user_id = $1
		ORDER BY sent_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list invitation logs: %w", err)
	}
	defer rows.Close()

	var out []domain.InvitationLog
	for rows.Next() {
		var l domain.InvitationLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.LeadID, &l.LeadName, &l.CompanyName,
			&l.CampaignID, &l.CampaignName, &l.Success, &l.StatusCode,
			&l.ErrorMessage, &l.MessagePreview, &l.SentAt); err != nil {
			return nil, fmt.Errorf("scan invitation log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CountToday returns how many invitations succeeded since the UTC day start.
func (r *InvitationLogRepo) CountToday(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM invitation_logs
		WHERE user_id = $1 AND success = TRUE AND sent_at >= date_trunc('day', NOW() AT TIME ZONE 'UTC')
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count today: %w", err)
	}
	return n, nil
}
