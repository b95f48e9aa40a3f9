package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/service/sequence"
)

// AutomationRepo manages per-user automation settings.
type AutomationRepo struct{ db *sql.DB }

// NewAutomationRepo creates a Postgres-backed automation settings repository.
func NewAutomationRepo(db *sql.DB) *AutomationRepo { return &AutomationRepo{db: db} }

const automationCols = `id, user_id, enabled, start_hour, start_minute, end_hour, end_minute,
	       working_days, timezone, daily_limit, min_delay_seconds, max_delay_seconds,
	       min_lead_score, target_statuses, target_campaign_id, require_verified_email,
	       invitations_sent_today, last_invitation_at, last_reset_date,
	       created_at, updated_at`

func scanSettings(row interface{ Scan(...interface{}) error }, s *domain.AutomationSettings) error {
	return row.Scan(
		&s.ID, &s.UserID, &s.Enabled, &s.StartHour, &s.StartMinute, &s.EndHour, &s.EndMinute,
		&s.WorkingDays, &s.Timezone, &s.DailyLimit, &s.MinDelaySeconds, &s.MaxDelaySeconds,
		&s.MinLeadScore, &s.TargetStatuses, &s.TargetCampaignID, &s.RequireVerifiedEmail,
		&s.InvitationsSentToday, &s.LastInvitationAt, &s.LastResetDate,
		&s.CreatedAt, &s.UpdatedAt,
	)
}

// Get returns the user's settings, creating a disabled default row on first use.
func (r *AutomationRepo) Get(ctx context.Context, userID string) (*domain.AutomationSettings, error) {
	s := &domain.AutomationSettings{}
	err := scanSettings(r.db.QueryRowContext(ctx, `
		SELECT `+automationCols+`
		FROM automation_settings
		WHERE user_id = $1
	`, userID), s)
	if err == sql.ErrNoRows {
		def := domain.DefaultAutomationSettings(userID)
		def.ID = uuid.New().String()
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO automation_settings
				(id, user_id, enabled, start_hour, start_minute, end_hour, end_minute,
				 working_days, timezone, daily_limit, min_delay_seconds, max_delay_seconds,
				 created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
			ON CONFLICT (user_id) DO NOTHING
		`, def.ID, def.UserID, def.Enabled, def.StartHour, def.StartMinute, def.EndHour, def.EndMinute,
			def.WorkingDays, def.Timezone, def.DailyLimit, def.MinDelaySeconds, def.MaxDelaySeconds)
		if err != nil {
			return nil, fmt.Errorf("create default settings: %w", err)
		}
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// ListEnabled returns settings for every user with automation switched on.
func (r *AutomationRepo) ListEnabled(ctx context.Context) ([]domain.AutomationSettings, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+automationCols+`
		FROM automation_settings
		WHERE enabled = TRUE
	`)
	if err != nil {
		return nil, fmt.Errorf("list enabled settings: %w", err)
	}
	defer rows.Close()

	var out []domain.AutomationSettings
	for rows.Next() {
		var s domain.AutomationSettings
		if err := scanSettings(rows, &s); err != nil {
			return nil, fmt.Errorf("scan settings: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update replaces the user's configurable fields. Counters are untouched.
func (r *AutomationRepo) Update(ctx context.Context, s *domain.AutomationSettings) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_settings SET
			enabled = $1, start_hour = $2, start_minute = $3,
			end_hour = $4, end_minute = $5, working_days = $6, timezone = $7,
			daily_limit = $8, min_delay_seconds = $9, max_delay_seconds = $10,
			min_lead_score = $11, target_statuses = $12, target_campaign_id = $13,
			require_verified_email = $14, updated_at = NOW()
		WHERE user_id = $15
	`, s.Enabled, s.StartHour, s.StartMinute, s.EndHour, s.EndMinute,
		s.WorkingDays, s.Timezone, s.DailyLimit, s.MinDelaySeconds, s.MaxDelaySeconds,
		s.MinLeadScore, s.TargetStatuses, s.TargetCampaignID, s.RequireVerifiedEmail, s.UserID)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sequence.ErrNotFound
	}
	return nil
}

// RecordInvitationSent bumps today's counter and the last-send timestamp.
func (r *AutomationRepo) RecordInvitationSent(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE automation_settings SET
			invitations_sent_today = invitations_sent_today + 1,
			last_invitation_at = $1, updated_at = NOW()
		WHERE user_id = $2
	`, at, userID)
	if err != nil {
		return fmt.Errorf("record invitation: %w", err)
	}
	return nil
}

// ResetDailyCounter zeroes the counter and stamps the reset date.
func (r *AutomationRepo) ResetDailyCounter(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE automation_settings SET
			invitations_sent_today = 0, last_reset_date = $1, updated_at = NOW()
		WHERE user_id = $2
	`, at, userID)
	if err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	return nil
}
