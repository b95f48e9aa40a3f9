package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/service/sequence"
)

// LeadRepo implements lead data access against PostgreSQL. It satisfies
// sequence.LeadRepository and carries the wider surface the HTTP handlers use.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

const leadCols = `id, user_id, full_name, email, email_verified, email_status,
	       job_title, headline, company_name, company_industry, company_size,
	       city, country, linkedin_url, provider_id, chat_id,
	       score, score_label, score_reason, status, connection_message, notes,
	       connection_sent_at, connected_at, last_message_at,
	       campaign_id, active_sequence_id, created_at, updated_at`

func scanLead(row interface{ Scan(...interface{}) error }, l *domain.Lead) error {
	return row.Scan(
		&l.ID, &l.UserID, &l.FullName, &l.Email, &l.EmailVerified, &l.EmailStatus,
		&l.JobTitle, &l.Headline, &l.CompanyName, &l.CompanyIndustry, &l.CompanySize,
		&l.City, &l.Country, &l.ProfileURL, &l.ProviderID, &l.ChatID,
		&l.Score, &l.ScoreLabel, &l.ScoreReason, &l.Status, &l.ConnectionMessage, &l.Notes,
		&l.ConnectionSentAt, &l.ConnectedAt, &l.LastMessageAt,
		&l.CampaignID, &l.ActiveSequenceID, &l.CreatedAt, &l.UpdatedAt,
	)
}

func (r *LeadRepo) Get(ctx context.Context, userID, id string) (*domain.Lead, error) {
	l := &domain.Lead{}
	err := scanLead(r.db.QueryRowContext(ctx, `
		SELECT `+leadCols+`
		FROM leads
		WHERE id = $1 AND user_id = $2
	`, id, userID), l)
	if err == sql.ErrNoRows {
		return nil, sequence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// ListFilter narrows a lead listing.
type ListFilter struct {
	Status     domain.LeadStatus
	CampaignID string
	Limit      int
	Offset     int
}

func (r *LeadRepo) List(ctx context.Context, userID string, f ListFilter) ([]domain.Lead, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	countQ := `SELECT COUNT(*) FROM leads WHERE user_id = $1`
	args := []interface{}{userID}
	idx := 2
	if f.Status != "" {
		countQ += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.CampaignID != "" {
		countQ += fmt.Sprintf(" AND campaign_id = $%d", idx)
		args = append(args, f.CampaignID)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	q := `SELECT ` + leadCols + ` FROM leads WHERE user_id = $1`
	qArgs := []interface{}{userID}
	qIdx := 2
	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", qIdx)
		qArgs = append(qArgs, f.Status)
		qIdx++
	}
	if f.CampaignID != "" {
		q += fmt.Sprintf(" AND campaign_id = $%d", qIdx)
		qArgs = append(qArgs, f.CampaignID)
		qIdx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", qIdx, qIdx+1)
	qArgs = append(qArgs, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, qArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		var l domain.Lead
		if err := scanLead(rows, &l); err != nil {
			return nil, 0, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func (r *LeadRepo) Create(ctx context.Context, l *domain.Lead) (string, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Status == "" {
		l.Status = domain.LeadNew
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO leads
			(id, user_id, full_name, email, job_title, headline,
			 company_name, company_industry, company_size, city, country,
			 linkedin_url, provider_id, status, campaign_id, notes,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
	`, l.ID, l.UserID, l.FullName, l.Email, l.JobTitle, l.Headline,
		l.CompanyName, l.CompanyIndustry, l.CompanySize, l.City, l.Country,
		l.ProfileURL, l.ProviderID, l.Status, l.CampaignID, l.Notes)
	if err != nil {
		return "", fmt.Errorf("create lead: %w", err)
	}
	return l.ID, nil
}

// UpdateFields carries the patchable lead columns; nil means leave unchanged.
type UpdateFields struct {
	FullName          *string
	Email             *string
	JobTitle          *string
	CompanyName       *string
	Status            *domain.LeadStatus
	ConnectionMessage *string
	Notes             *string
}

func (r *LeadRepo) Update(ctx context.Context, userID, id string, u UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.FullName != nil {
		add("full_name", *u.FullName)
	}
	if u.Email != nil {
		add("email", *u.Email)
	}
	if u.JobTitle != nil {
		add("job_title", *u.JobTitle)
	}
	if u.CompanyName != nil {
		add("company_name", *u.CompanyName)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.ConnectionMessage != nil {
		add("connection_message", *u.ConnectionMessage)
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = NOW()")
	q := fmt.Sprintf("UPDATE leads SET %s WHERE id = $%d AND user_id = $%d",
		joinComma(sets), idx, idx+1)
	args = append(args, id, userID)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sequence.ErrNotFound
	}
	return nil
}

func (r *LeadRepo) SetActiveSequence(ctx context.Context, leadID, sequenceID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET active_sequence_id = $1, updated_at = NOW() WHERE id = $2
	`, sequenceID, leadID)
	if err != nil {
		return fmt.Errorf("set active sequence: %w", err)
	}
	return nil
}

func (r *LeadRepo) ClearActiveSequence(ctx context.Context, leadID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET active_sequence_id = NULL, updated_at = NOW() WHERE id = $1
	`, leadID)
	if err != nil {
		return fmt.Errorf("clear active sequence: %w", err)
	}
	return nil
}

func (r *LeadRepo) ClearSequenceLinks(ctx context.Context, sequenceID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET active_sequence_id = NULL, updated_at = NOW()
		WHERE active_sequence_id = $1
	`, sequenceID)
	if err != nil {
		return 0, fmt.Errorf("clear sequence links: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SetScore stores an AI scoring verdict on the lead.
func (r *LeadRepo) SetScore(ctx context.Context, userID, id string, score int, label, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET score = $1, score_label = $2, score_reason = $3, updated_at = NOW()
		WHERE id = $4 AND user_id = $5
	`, score, label, reason, id, userID)
	if err != nil {
		return fmt.Errorf("set score: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sequence.ErrNotFound
	}
	return nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
