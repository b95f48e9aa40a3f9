package domain

import (
	"strings"
	"time"
)

// LeadStatus enumerates the CRM pipeline stages of a lead.
type LeadStatus string

const (
	LeadNew              LeadStatus = "new"
	LeadPending          LeadStatus = "pending"
	LeadInvitationSent   LeadStatus = "invitation_sent"
	LeadConnected        LeadStatus = "connected"
	LeadInConversation   LeadStatus = "in_conversation"
	LeadMeetingScheduled LeadStatus = "meeting_scheduled"
	LeadQualified        LeadStatus = "qualified"
	LeadDisqualified     LeadStatus = "disqualified"
	LeadClosedWon        LeadStatus = "closed_won"
	LeadClosedLost       LeadStatus = "closed_lost"
)

// ScoreLabel buckets an AI lead score into a temperature band.
type ScoreLabel string

const (
	ScoreHot  ScoreLabel = "hot"
	ScoreWarm ScoreLabel = "warm"
	ScoreCold ScoreLabel = "cold"
)

// LabelForScore maps a 0-100 score to its band: >=80 hot, 50-79 warm, else cold.
func LabelForScore(score int) ScoreLabel {
	switch {
	case score >= 80:
		return ScoreHot
	case score >= 50:
		return ScoreWarm
	default:
		return ScoreCold
	}
}

// EmailStatus is the verdict of the email verification provider.
type EmailStatus string

const (
	EmailValid   EmailStatus = "valid"
	EmailInvalid EmailStatus = "invalid"
	EmailRisky   EmailStatus = "risky"
	EmailUnknown EmailStatus = "unknown"
)

// Lead represents a target contact tracked in the system.
type Lead struct {
	ID       string `json:"id" db:"id"`
	UserID   string `json:"user_id" db:"user_id"`
	FullName string `json:"full_name" db:"full_name"`

	Email         *string `json:"email" db:"email"`
	EmailVerified bool    `json:"email_verified" db:"email_verified"`
	EmailStatus   *string `json:"email_status" db:"email_status"`

	JobTitle        *string `json:"job_title" db:"job_title"`
	Headline        *string `json:"headline" db:"headline"`
	CompanyName     *string `json:"company_name" db:"company_name"`
	CompanyIndustry *string `json:"company_industry" db:"company_industry"`
	CompanySize     *int    `json:"company_size" db:"company_size"`
	City            *string `json:"city" db:"city"`
	Country         *string `json:"country" db:"country"`

	// LinkedIn identifiers. ProviderID is extracted from the profile URL;
	// ChatID is populated once a conversation exists with this lead.
	ProfileURL *string `json:"linkedin_url" db:"linkedin_url"`
	ProviderID *string `json:"provider_id" db:"provider_id"`
	ChatID     *string `json:"chat_id" db:"chat_id"`

	Score       *int    `json:"score" db:"score"`
	ScoreLabel  *string `json:"score_label" db:"score_label"`
	ScoreReason *string `json:"score_reason" db:"score_reason"`

	Status            LeadStatus `json:"status" db:"status"`
	ConnectionMessage *string    `json:"connection_message" db:"connection_message"`
	Notes             *string    `json:"notes" db:"notes"`

	ConnectionSentAt *time.Time `json:"connection_sent_at" db:"connection_sent_at"`
	ConnectedAt      *time.Time `json:"connected_at" db:"connected_at"`
	LastMessageAt    *time.Time `json:"last_message_at" db:"last_message_at"`

	CampaignID       *string `json:"campaign_id" db:"campaign_id"`
	ActiveSequenceID *string `json:"active_sequence_id" db:"active_sequence_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName returns a human-readable name, falling back to "Unknown".
func (l *Lead) DisplayName() string {
	if name := strings.TrimSpace(l.FullName); name != "" {
		return name
	}
	return "Unknown"
}

// Campaign groups leads acquired together.
type Campaign struct {
	ID                string    `json:"id" db:"id"`
	UserID            string    `json:"user_id" db:"user_id"`
	Name              string    `json:"name" db:"name"`
	Description       *string   `json:"description" db:"description"`
	BusinessProfileID *string   `json:"business_profile_id" db:"business_profile_id"`
	TotalLeads        int       `json:"total_leads" db:"total_leads"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// BusinessProfile is the authoring context the analyzer uses to personalize
// generated messages.
type BusinessProfile struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	Name             string    `json:"name" db:"name"`
	IdealCustomer    string    `json:"ideal_customer" db:"ideal_customer"`
	TargetIndustries *string   `json:"target_industries" db:"target_industries"`
	TargetTitles     *string   `json:"target_titles" db:"target_titles"`
	TargetLocations  *string   `json:"target_locations" db:"target_locations"`
	ValueProposition string    `json:"value_proposition" db:"value_proposition"`
	SenderName       string    `json:"sender_name" db:"sender_name"`
	SenderRole       *string   `json:"sender_role" db:"sender_role"`
	CompanyName      string    `json:"company_name" db:"company_name"`
	IsDefault        bool      `json:"is_default" db:"is_default"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
