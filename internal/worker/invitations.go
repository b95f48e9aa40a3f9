package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/linkedin-outreach/internal/automation"
	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/linkedin"
)

// InvitationSender drives the standalone invitation automation: each tick it
// sends at most one connection request per enabled user, picked FIFO from
// the leads matching the user's target filters. Leads bound to a sequence
// are excluded here; their connection requests go through the classic and
// pipeline engines.
type InvitationSender struct {
	db       *sql.DB
	clients  ClientFactory
	analyzer Analyzer

	totalSent   int64
	totalFailed int64
}

// NewInvitationSender creates the invitation automation.
func NewInvitationSender(db *sql.DB, clients ClientFactory, analyzer Analyzer) *InvitationSender {
	return &InvitationSender{db: db, clients: clients, analyzer: analyzer}
}

// TotalSent returns the number of invitations sent since start.
func (is *InvitationSender) TotalSent() int64 { return atomic.LoadInt64(&is.totalSent) }

// SendNextInvitations runs one invitation pass over every enabled user.
func (is *InvitationSender) SendNextInvitations(ctx context.Context) {
	settingsList, err := loadEnabledSettings(ctx, is.db)
	if err != nil {
		log.Printf("[Invitations] Loading settings: %v", err)
		return
	}
	for i := range settingsList {
		is.processUser(ctx, &settingsList[i])
	}
}

func (is *InvitationSender) processUser(ctx context.Context, settings *domain.AutomationSettings) {
	now := time.Now().UTC()

	if automation.NeedsCounterReset(settings, now) {
		if err := resetDailyCounter(ctx, is.db, settings.UserID, now); err != nil {
			log.Printf("[Invitations] Counter reset for %s: %v", settings.UserID, err)
			return
		}
		settings.InvitationsSentToday = 0
		settings.LastResetDate = &now
	}

	if ok, reason := automation.CanSendInvitation(settings, now); !ok {
		if reason == "daily limit reached" {
			log.Printf("[Invitations] User %s: %s", settings.UserID, reason)
		}
		return
	}
	if !automation.DelayElapsed(settings, now, automation.NextSendDelay(settings)) {
		return
	}

	accountID, connected, err := loadAccount(ctx, is.db, settings.UserID)
	if err != nil || !connected {
		return
	}

	lead, err := is.nextCandidate(ctx, settings)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("[Invitations] Candidate query for %s: %v", settings.UserID, err)
		}
		return
	}

	client := is.clients(accountID)
	res := is.sendToLead(ctx, client, settings, lead, now)
	if res.Success {
		atomic.AddInt64(&is.totalSent, 1)
	} else {
		atomic.AddInt64(&is.totalFailed, 1)
	}
}

// nextCandidate picks the oldest eligible lead for the user, honoring the
// status, score, and campaign filters.
func (is *InvitationSender) nextCandidate(ctx context.Context, settings *domain.AutomationSettings) (*domain.Lead, error) {
	statuses := automation.TargetStatuses(settings)
	strs := make([]string, len(statuses))
	for i, st := range statuses {
		strs[i] = string(st)
	}

	q := `
		SELECT id, user_id, full_name, linkedin_url, provider_id, company_name,
		       campaign_id, connection_message, job_title, headline
		FROM leads
		WHERE user_id = $1
		  AND status = ANY($2)
		  AND connection_sent_at IS NULL
		  AND active_sequence_id IS NULL
		  AND (linkedin_url IS NOT NULL OR provider_id IS NOT NULL)`
	args := []interface{}{settings.UserID, pq.Array(strs)}
	idx := 3
	if settings.MinLeadScore != nil {
		q += fmt.Sprintf(" AND score IS NOT NULL AND score >= $%d", idx)
		args = append(args, *settings.MinLeadScore)
		idx++
	}
	if settings.TargetCampaignID != nil && *settings.TargetCampaignID != "" {
		q += fmt.Sprintf(" AND campaign_id = $%d", idx)
		args = append(args, *settings.TargetCampaignID)
		idx++
	}
	if settings.RequireVerifiedEmail {
		q += " AND email_verified = TRUE"
	}
	q += " ORDER BY created_at ASC LIMIT 1"

	l := &domain.Lead{}
	err := is.db.QueryRowContext(ctx, q, args...).Scan(
		&l.ID, &l.UserID, &l.FullName, &l.ProfileURL, &l.ProviderID, &l.CompanyName,
		&l.CampaignID, &l.ConnectionMessage, &l.JobTitle, &l.Headline)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// sendToLead resolves the provider handle, picks or authors the note, sends,
// and records the attempt. Lead state advances only on provider success; the
// invitation log is written either way.
func (is *InvitationSender) sendToLead(ctx context.Context, client MessagingClient, settings *domain.AutomationSettings, lead *domain.Lead, now time.Time) linkedin.Result {
	providerID, err := resolveProviderID(lead)
	if err != nil {
		markLeadFailed(ctx, is.db, lead.ID, err.Error())
		insertInvitationLog(ctx, is.db, lead, settings.UserID, invitationFailure(err.Error()), "", now)
		return invitationFailure(err.Error())
	}

	message := ""
	if lead.ConnectionMessage != nil && strings.TrimSpace(*lead.ConnectionMessage) != "" {
		message = *lead.ConnectionMessage
	} else if is.analyzer != nil {
		profile, perr := loadDefaultProfile(ctx, is.db, settings.UserID)
		if perr == nil {
			if authored, aerr := is.analyzer.GenerateConnectionMessage(ctx, lead, profile, domain.StrategyHybrid); aerr == nil {
				message = authored
			} else {
				log.Printf("[Invitations] Authoring for lead %s failed, sending without note: %v", lead.ID, aerr)
			}
		}
	}

	res := client.SendInvitation(ctx, providerID, message)
	insertInvitationLog(ctx, is.db, lead, settings.UserID, res, message, now)

	if res.Success {
		_, err := is.db.ExecContext(ctx, `
			UPDATE leads SET status = $1, provider_id = $2, connection_sent_at = $3,
			       connection_message = NULLIF($4, ''), updated_at = NOW()
			WHERE id = $5
		`, domain.LeadInvitationSent, providerID, now, message, lead.ID)
		if err != nil {
			log.Printf("[Invitations] Lead update after send %s: %v", lead.ID, err)
		}
		if err := recordInvitationSent(ctx, is.db, settings.UserID, now); err != nil {
			log.Printf("[Invitations] Counter update for %s: %v", settings.UserID, err)
		}
		settings.InvitationsSentToday++
		settings.LastInvitationAt = &now
		log.Printf("[Invitations] Sent invitation to %s (user %s, %d/%d today)",
			lead.DisplayName(), settings.UserID, settings.InvitationsSentToday, settings.EffectiveDailyLimit())
	} else {
		log.Printf("[Invitations] Send to %s failed: status=%d %s", lead.DisplayName(), res.StatusCode, res.Error)
		if res.StatusCode >= 400 && res.StatusCode < 500 {
			markLeadFailed(ctx, is.db, lead.ID, fmt.Sprintf("provider rejected invitation: %d", res.StatusCode))
		}
	}
	return res
}

// invitationFailure builds a client-side failure result for logging.
func invitationFailure(msg string) linkedin.Result {
	return linkedin.Result{Error: msg}
}

// resolveProviderID prefers the stored handle and falls back to extracting
// it from the profile URL.
func resolveProviderID(lead *domain.Lead) (string, error) {
	if lead.ProviderID != nil && *lead.ProviderID != "" {
		return *lead.ProviderID, nil
	}
	if lead.ProfileURL == nil || *lead.ProfileURL == "" {
		return "", fmt.Errorf("lead has no profile URL")
	}
	return linkedin.ExtractProviderID(*lead.ProfileURL)
}

// Shared SQL helpers used by the invitation sender and the engines.

func loadEnabledSettings(ctx context.Context, db *sql.DB) ([]domain.AutomationSettings, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, enabled, start_hour, start_minute, end_hour, end_minute,
		       working_days, timezone, daily_limit, min_delay_seconds, max_delay_seconds,
		       min_lead_score, target_statuses, target_campaign_id, require_verified_email,
		       invitations_sent_today, last_invitation_at, last_reset_date
		FROM automation_settings
		WHERE enabled = TRUE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AutomationSettings
	for rows.Next() {
		var s domain.AutomationSettings
		if err := rows.Scan(&s.ID, &s.UserID, &s.Enabled,
			&s.StartHour, &s.StartMinute, &s.EndHour, &s.EndMinute,
			&s.WorkingDays, &s.Timezone, &s.DailyLimit, &s.MinDelaySeconds, &s.MaxDelaySeconds,
			&s.MinLeadScore, &s.TargetStatuses, &s.TargetCampaignID, &s.RequireVerifiedEmail,
			&s.InvitationsSentToday, &s.LastInvitationAt, &s.LastResetDate); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func loadUserSettings(ctx context.Context, db *sql.DB, userID string) (*domain.AutomationSettings, error) {
	s := &domain.AutomationSettings{}
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, enabled, start_hour, start_minute, end_hour, end_minute,
		       working_days, timezone, daily_limit, min_delay_seconds, max_delay_seconds,
		       min_lead_score, target_statuses, target_campaign_id, require_verified_email,
		       invitations_sent_today, last_invitation_at, last_reset_date
		FROM automation_settings
		WHERE user_id = $1
	`, userID).Scan(&s.ID, &s.UserID, &s.Enabled,
		&s.StartHour, &s.StartMinute, &s.EndHour, &s.EndMinute,
		&s.WorkingDays, &s.Timezone, &s.DailyLimit, &s.MinDelaySeconds, &s.MaxDelaySeconds,
		&s.MinLeadScore, &s.TargetStatuses, &s.TargetCampaignID, &s.RequireVerifiedEmail,
		&s.InvitationsSentToday, &s.LastInvitationAt, &s.LastResetDate)
	if err == sql.ErrNoRows {
		def := domain.DefaultAutomationSettings(userID)
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func loadAccount(ctx context.Context, db *sql.DB, userID string) (accountID string, connected bool, err error) {
	err = db.QueryRowContext(ctx, `
		SELECT external_account_id, connected FROM messaging_accounts WHERE user_id = $1
	`, userID).Scan(&accountID, &connected)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	return accountID, connected, err
}

func loadDefaultProfile(ctx context.Context, db *sql.DB, userID string) (*domain.BusinessProfile, error) {
	p := &domain.BusinessProfile{}
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, name, ideal_customer, value_proposition,
		       sender_name, sender_role, company_name
		FROM business_profiles
		WHERE user_id = $1
		ORDER BY is_default DESC, created_at DESC
		LIMIT 1
	`, userID).Scan(&p.ID, &p.UserID, &p.Name, &p.IdealCustomer, &p.ValueProposition,
		&p.SenderName, &p.SenderRole, &p.CompanyName)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func loadProfileByID(ctx context.Context, db *sql.DB, userID string, profileID *string) (*domain.BusinessProfile, error) {
	if profileID == nil || *profileID == "" {
		return loadDefaultProfile(ctx, db, userID)
	}
	p := &domain.BusinessProfile{}
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, name, ideal_customer, value_proposition,
		       sender_name, sender_role, company_name
		FROM business_profiles
		WHERE id = $1 AND user_id = $2
	`, *profileID, userID).Scan(&p.ID, &p.UserID, &p.Name, &p.IdealCustomer, &p.ValueProposition,
		&p.SenderName, &p.SenderRole, &p.CompanyName)
	if err == sql.ErrNoRows {
		return loadDefaultProfile(ctx, db, userID)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func resetDailyCounter(ctx context.Context, db *sql.DB, userID string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE automation_settings SET invitations_sent_today = 0, last_reset_date = $1, updated_at = NOW()
		WHERE user_id = $2
	`, at, userID)
	return err
}

func recordInvitationSent(ctx context.Context, db *sql.DB, userID string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE automation_settings SET
			invitations_sent_today = invitations_sent_today + 1,
			last_invitation_at = $1, updated_at = NOW()
		WHERE user_id = $2
	`, at, userID)
	return err
}

func markLeadFailed(ctx context.Context, db *sql.DB, leadID, reason string) {
	_, err := db.ExecContext(ctx, `
		UPDATE leads SET notes = COALESCE(notes || E'\n', '') || $1, updated_at = NOW()
		WHERE id = $2
	`, "automation: "+reason, leadID)
	if err != nil {
		log.Printf("[Invitations] Recording lead failure %s: %v", leadID, err)
	}
}

func insertInvitationLog(ctx context.Context, db *sql.DB, lead *domain.Lead, userID string, res linkedin.Result, message string, at time.Time) {
	var preview *string
	if message != "" {
		p := message
		if utf8.RuneCountInString(p) > 100 {
			p = string([]rune(p)[:100])
		}
		preview = &p
	}
	var statusCode *int
	if res.StatusCode != 0 {
		statusCode = &res.StatusCode
	}
	var errMsg *string
	if res.Error != "" {
		errMsg = &res.Error
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO invitation_logs
			(id, user_id, lead_id, lead_name, company_name, campaign_id,
			 campaign_name, success, status_code, error_message, message_preview, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6,
		        (SELECT name FROM campaigns WHERE id = $6), $7, $8, $9, $10, $11)
	`, uuid.New().String(), userID, lead.ID, lead.DisplayName(), lead.CompanyName,
		lead.CampaignID, res.Success, statusCode, errMsg, preview, at)
	if err != nil {
		log.Printf("[Invitations] Log insert for lead %s: %v", lead.ID, err)
	}
}
