package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/service/sequence"
)

// AccountRepo manages messaging provider accounts, one per user.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo creates a Postgres-backed messaging account repository.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

const accountCols = `id, user_id, external_account_id, connected, connection_state,
	       pending_checkpoint_type, created_at, updated_at`

func scanAccount(row interface{ Scan(...interface{}) error }, a *domain.MessagingAccount) error {
	return row.Scan(&a.ID, &a.UserID, &a.ExternalAccountID, &a.Connected,
		&a.ConnectionState, &a.PendingCheckpointType, &a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByUser(ctx context.Context, userID string) (*domain.MessagingAccount, error) {
	a := &domain.MessagingAccount{}
	err := scanAccount(r.db.QueryRowContext(ctx, `
		SELECT `+accountCols+`
		FROM messaging_accounts
		WHERE user_id = $1
	`, userID), a)
	if err == sql.ErrNoRows {
		return nil, sequence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// ListConnected returns every account currently marked connected.
func (r *AccountRepo) ListConnected(ctx context.Context) ([]domain.MessagingAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+accountCols+`
		FROM messaging_accounts
		WHERE connected = TRUE
	`)
	if err != nil {
		return nil, fmt.Errorf("list connected accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.MessagingAccount
	for rows.Next() {
		var a domain.MessagingAccount
		if err := scanAccount(rows, &a); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Upsert stores the user's provider account, replacing any existing one.
func (r *AccountRepo) Upsert(ctx context.Context, a *domain.MessagingAccount) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messaging_accounts
			(id, user_id, external_account_id, connected, connection_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			external_account_id = EXCLUDED.external_account_id,
			connected = EXCLUDED.connected,
			connection_state = EXCLUDED.connection_state,
			pending_checkpoint_type = NULL,
			updated_at = NOW()
	`, a.ID, a.UserID, a.ExternalAccountID, a.Connected, a.ConnectionState)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// SetConnectionState records the provider-reported health of the account.
func (r *AccountRepo) SetConnectionState(ctx context.Context, userID string, state domain.ConnectionState, checkpointType *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messaging_accounts SET
			connection_state = $1,
			pending_checkpoint_type = $2,
			connected = ($1 = 'OK'),
			updated_at = NOW()
		WHERE user_id = $3
	`, state, checkpointType, userID)
	if err != nil {
		return fmt.Errorf("set connection state: %w", err)
	}
	return nil
}

// BusinessProfileRepo manages message authoring profiles.
type BusinessProfileRepo struct{ db *sql.DB }

// NewBusinessProfileRepo creates a Postgres-backed business profile repository.
func NewBusinessProfileRepo(db *sql.DB) *BusinessProfileRepo { return &BusinessProfileRepo{db: db} }

const profileCols = `id, user_id, name, ideal_customer, target_industries, target_titles,
	       target_locations, value_proposition, sender_name, sender_role, company_name,
	       is_default, created_at, updated_at`

func scanProfile(row interface{ Scan(...interface{}) error }, p *domain.BusinessProfile) error {
	return row.Scan(&p.ID, &p.UserID, &p.Name, &p.IdealCustomer, &p.TargetIndustries,
		&p.TargetTitles, &p.TargetLocations, &p.ValueProposition, &p.SenderName,
		&p.SenderRole, &p.CompanyName, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt)
}

func (r *BusinessProfileRepo) Get(ctx context.Context, userID, id string) (*domain.BusinessProfile, error) {
	p := &domain.BusinessProfile{}
	err := scanProfile(r.db.QueryRowContext(ctx, `
		SELECT `+profileCols+`
		FROM business_profiles
		WHERE id = $1 AND user_id = $2
	`, id, userID), p)
	if err == sql.ErrNoRows {
		return nil, sequence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// GetDefault returns the user's default profile, or the newest one when none
// is flagged default.
func (r *BusinessProfileRepo) GetDefault(ctx context.Context, userID string) (*domain.BusinessProfile, error) {
	p := &domain.BusinessProfile{}
	err := scanProfile(r.db.QueryRowContext(ctx, `
		SELECT `+profileCols+`
		FROM business_profiles
		WHERE user_id = $1
		ORDER BY is_default DESC, created_at DESC
		LIMIT 1
	`, userID), p)
	if err == sql.ErrNoRows {
		return nil, sequence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default profile: %w", err)
	}
	return p, nil
}
