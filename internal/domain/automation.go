package domain

import (
	"fmt"
	"time"
)

// MaxDailyLimit is the hard ceiling on invitations per user per day,
// regardless of what the user configures.
const MaxDailyLimit = 40

// Default automation settings applied when a user has never saved any.
const (
	DefaultTimezone        = "Europe/Madrid"
	DefaultWorkingDays     = 31 // Mon-Fri: bits 1+2+4+8+16
	DefaultStartHour       = 9
	DefaultEndHour         = 18
	DefaultDailyLimit      = 40
	DefaultMinDelaySeconds = 60
	DefaultMaxDelaySeconds = 300
)

// AutomationSettings holds the per-user invitation automation config.
// WorkingDays is a bitmask with Monday = bit 0 (1) through Sunday = bit 6 (64).
type AutomationSettings struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	Enabled bool `json:"enabled" db:"enabled"`

	StartHour   int    `json:"start_hour" db:"start_hour"`
	StartMinute int    `json:"start_minute" db:"start_minute"`
	EndHour     int    `json:"end_hour" db:"end_hour"`
	EndMinute   int    `json:"end_minute" db:"end_minute"`
	WorkingDays int    `json:"working_days" db:"working_days"`
	Timezone    string `json:"timezone" db:"timezone"`

	DailyLimit      int `json:"daily_limit" db:"daily_limit"`
	MinDelaySeconds int `json:"min_delay_seconds" db:"min_delay_seconds"`
	MaxDelaySeconds int `json:"max_delay_seconds" db:"max_delay_seconds"`

	// Lead selection filters for the invitation FIFO.
	MinLeadScore         *int    `json:"min_lead_score" db:"min_lead_score"`
	TargetStatuses       *string `json:"target_statuses" db:"target_statuses"` // comma-separated LeadStatus values
	TargetCampaignID     *string `json:"target_campaign_id" db:"target_campaign_id"`
	RequireVerifiedEmail bool    `json:"require_verified_email" db:"require_verified_email"`

	InvitationsSentToday int        `json:"invitations_sent_today" db:"invitations_sent_today"`
	LastInvitationAt     *time.Time `json:"last_invitation_at" db:"last_invitation_at"`
	LastResetDate        *time.Time `json:"last_reset_date" db:"last_reset_date"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultAutomationSettings returns settings with house defaults for a user.
func DefaultAutomationSettings(userID string) AutomationSettings {
	return AutomationSettings{
		UserID:          userID,
		StartHour:       DefaultStartHour,
		EndHour:         DefaultEndHour,
		WorkingDays:     DefaultWorkingDays,
		Timezone:        DefaultTimezone,
		DailyLimit:      DefaultDailyLimit,
		MinDelaySeconds: DefaultMinDelaySeconds,
		MaxDelaySeconds: DefaultMaxDelaySeconds,
	}
}

// EffectiveDailyLimit clamps the configured limit to the hard ceiling.
func (s *AutomationSettings) EffectiveDailyLimit() int {
	if s.DailyLimit <= 0 || s.DailyLimit > MaxDailyLimit {
		return MaxDailyLimit
	}
	return s.DailyLimit
}

// Validate checks the settings for saveability.
func (s *AutomationSettings) Validate() error {
	if s.StartHour < 0 || s.StartHour > 23 || s.EndHour < 0 || s.EndHour > 23 {
		return fmt.Errorf("working hours out of range: %02d:%02d-%02d:%02d",
			s.StartHour, s.StartMinute, s.EndHour, s.EndMinute)
	}
	if s.WorkingDays < 1 || s.WorkingDays > 127 {
		return fmt.Errorf("working_days bitmask out of range: %d", s.WorkingDays)
	}
	if s.MinDelaySeconds < 0 || s.MaxDelaySeconds < s.MinDelaySeconds {
		return fmt.Errorf("invalid delay window: [%d, %d]", s.MinDelaySeconds, s.MaxDelaySeconds)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	return nil
}

// InvitationLog is an append-only record of each invitation attempt.
// Lead and campaign fields are denormalized so the log survives deletions.
type InvitationLog struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	LeadID       *string   `json:"lead_id" db:"lead_id"`
	LeadName     string    `json:"lead_name" db:"lead_name"`
	CompanyName  *string   `json:"company_name" db:"company_name"`
	CampaignID   *string   `json:"campaign_id" db:"campaign_id"`
	CampaignName *string   `json:"campaign_name" db:"campaign_name"`
	Success      bool      `json:"success" db:"success"`
	StatusCode   *int      `json:"status_code" db:"status_code"`
	ErrorMessage *string   `json:"error_message" db:"error_message"`
	// First 100 chars of the sent invitation text.
	MessagePreview *string   `json:"message_preview" db:"message_preview"`
	SentAt         time.Time `json:"sent_at" db:"sent_at"`
}

// ConnectionState enumerates the health of a messaging account connection.
type ConnectionState string

const (
	ConnectionOK          ConnectionState = "OK"
	ConnectionCredentials ConnectionState = "CREDENTIALS"
	ConnectionCheckpoint  ConnectionState = "CHECKPOINT"
)

// MessagingAccount holds a user's credentials for the messaging provider.
// One per user.
type MessagingAccount struct {
	ID                    string          `json:"id" db:"id"`
	UserID                string          `json:"user_id" db:"user_id"`
	ExternalAccountID     string          `json:"external_account_id" db:"external_account_id"`
	Connected             bool            `json:"connected" db:"connected"`
	ConnectionState       ConnectionState `json:"connection_state" db:"connection_state"`
	PendingCheckpointType *string         `json:"pending_checkpoint_type" db:"pending_checkpoint_type"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}
