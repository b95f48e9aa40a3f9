package domain

import (
	"encoding/json"
	"time"
)

// SequenceStatus enumerates the lifecycle states of a sequence template.
type SequenceStatus string

const (
	SequenceDraft    SequenceStatus = "draft"
	SequenceActive   SequenceStatus = "active"
	SequencePaused   SequenceStatus = "paused"
	SequenceArchived SequenceStatus = "archived"
)

// SequenceMode selects timer-based classic steps or the response-driven
// five-phase smart pipeline.
type SequenceMode string

const (
	ModeClassic       SequenceMode = "classic"
	ModeSmartPipeline SequenceMode = "smart_pipeline"
)

// MessageStrategy selects how direct the authored connection message is.
type MessageStrategy string

const (
	StrategyHybrid  MessageStrategy = "hybrid"
	StrategyDirect  MessageStrategy = "direct"
	StrategyGradual MessageStrategy = "gradual"
)

// StepType enumerates classic sequence step kinds.
type StepType string

const (
	StepConnectionRequest StepType = "connection_request"
	StepFollowUpMessage   StepType = "follow_up_message"
)

// PipelinePhase enumerates the five smart-pipeline phases.
type PipelinePhase string

const (
	PhaseApertura     PipelinePhase = "apertura"
	PhaseCalificacion PipelinePhase = "calificacion"
	PhaseValor        PipelinePhase = "valor"
	PhaseNurture      PipelinePhase = "nurture"
	PhaseReactivacion PipelinePhase = "reactivacion"
)

// ProgressionPhases are the phases a lead moves through on positive replies.
// NURTURE and REACTIVACION sit outside this order.
var ProgressionPhases = []PipelinePhase{PhaseApertura, PhaseCalificacion, PhaseValor}

// NextProgressionPhase returns the phase after p in the apertura ->
// calificacion -> valor order, or "" when p is last or not a progression phase.
func NextProgressionPhase(p PipelinePhase) PipelinePhase {
	for i, phase := range ProgressionPhases {
		if phase == p && i+1 < len(ProgressionPhases) {
			return ProgressionPhases[i+1]
		}
	}
	return ""
}

// EnrollmentStatus enumerates a lead's state within one sequence.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentPaused    EnrollmentStatus = "paused"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentReplied   EnrollmentStatus = "replied"
	EnrollmentFailed    EnrollmentStatus = "failed"
	EnrollmentWithdrawn EnrollmentStatus = "withdrawn"
	EnrollmentParked    EnrollmentStatus = "parked"
)

// AnalysisOutcome is the analyzer's verdict on an inbound reply.
type AnalysisOutcome string

const (
	OutcomeAdvance AnalysisOutcome = "advance"
	OutcomeStay    AnalysisOutcome = "stay"
	OutcomeNurture AnalysisOutcome = "nurture"
	OutcomePark    AnalysisOutcome = "park"
	OutcomeMeeting AnalysisOutcome = "meeting"
	OutcomeExit    AnalysisOutcome = "exit"
)

// Sequence is a workflow template for automated outreach.
type Sequence struct {
	ID                string          `json:"id" db:"id"`
	UserID            string          `json:"user_id" db:"user_id"`
	Name              string          `json:"name" db:"name"`
	Description       *string         `json:"description" db:"description"`
	Status            SequenceStatus  `json:"status" db:"status"`
	Mode              SequenceMode    `json:"sequence_mode" db:"sequence_mode"`
	BusinessProfileID *string         `json:"business_profile_id" db:"business_profile_id"`
	MessageStrategy   MessageStrategy `json:"message_strategy" db:"message_strategy"`

	// Denormalized counters maintained by the sequence service and engines.
	TotalEnrolled  int `json:"total_enrolled" db:"total_enrolled"`
	ActiveEnrolled int `json:"active_enrolled" db:"active_enrolled"`
	CompletedCount int `json:"completed_count" db:"completed_count"`
	RepliedCount   int `json:"replied_count" db:"replied_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SequenceStep is an ordered child of a classic sequence.
type SequenceStep struct {
	ID            string    `json:"id" db:"id"`
	SequenceID    string    `json:"sequence_id" db:"sequence_id"`
	StepOrder     int       `json:"step_order" db:"step_order"`
	StepType      StepType  `json:"step_type" db:"step_type"`
	DelayDays     int       `json:"delay_days" db:"delay_days"`
	PromptContext *string   `json:"prompt_context" db:"prompt_context"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// PhaseAnalysis is the structured verdict the analyzer returns for an
// inbound reply. Stored as JSON on the enrollment.
type PhaseAnalysis struct {
	Outcome        AnalysisOutcome `json:"outcome"`
	NextPhase      PipelinePhase   `json:"next_phase,omitempty"`
	Sentiment      ScoreLabel      `json:"sentiment"`
	BuyingSignals  []string        `json:"buying_signals,omitempty"`
	SignalStrength string          `json:"signal_strength,omitempty"`
	SuggestedAngle string          `json:"suggested_angle,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// Enrollment tracks one lead's progress through one sequence.
// (lead_id, sequence_id) is unique; a lead has at most one active enrollment.
type Enrollment struct {
	ID         string `json:"id" db:"id"`
	SequenceID string `json:"sequence_id" db:"sequence_id"`
	LeadID     string `json:"lead_id" db:"lead_id"`
	UserID     string `json:"user_id" db:"user_id"`

	Status           EnrollmentStatus `json:"status" db:"status"`
	CurrentStepOrder int              `json:"current_step_order" db:"current_step_order"`

	LastStepCompletedAt *time.Time `json:"last_step_completed_at" db:"last_step_completed_at"`
	NextStepDueAt       *time.Time `json:"next_step_due_at" db:"next_step_due_at"`

	// MessagesSent is a JSON object keyed by step order (classic) or
	// phase-and-index (pipeline) holding the authored outbound text.
	MessagesSent *string `json:"messages_sent" db:"messages_sent"`

	RepliedAt    *time.Time `json:"replied_at" db:"replied_at"`
	CompletedAt  *time.Time `json:"completed_at" db:"completed_at"`
	FailedReason *string    `json:"failed_reason" db:"failed_reason"`

	// Pipeline-only fields; null/zero in classic mode. CurrentPhase is null
	// while the enrollment is still awaiting connection acceptance.
	CurrentPhase      *PipelinePhase `json:"current_phase" db:"current_phase"`
	PhaseEnteredAt    *time.Time     `json:"phase_entered_at" db:"phase_entered_at"`
	LastResponseAt    *time.Time     `json:"last_response_at" db:"last_response_at"`
	LastResponseText  *string        `json:"last_response_text" db:"last_response_text"`
	PhaseAnalysisJSON *string        `json:"phase_analysis" db:"phase_analysis"`
	MessagesInPhase   int            `json:"messages_in_phase" db:"messages_in_phase"`
	NurtureCount      int            `json:"nurture_count" db:"nurture_count"`
	ReactivationCount int            `json:"reactivation_count" db:"reactivation_count"`
	TotalMessagesSent int            `json:"total_messages_sent" db:"total_messages_sent"`

	EnrolledAt time.Time `json:"enrolled_at" db:"enrolled_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Messages decodes the per-step message log. Malformed JSON yields an
// empty map rather than an error.
func (e *Enrollment) Messages() map[string]string {
	out := map[string]string{}
	if e.MessagesSent == nil || *e.MessagesSent == "" {
		return out
	}
	if err := json.Unmarshal([]byte(*e.MessagesSent), &out); err != nil {
		return map[string]string{}
	}
	return out
}

// StoreMessage records an authored outbound message under the given key.
func (e *Enrollment) StoreMessage(key, text string) {
	msgs := e.Messages()
	msgs[key] = text
	if data, err := json.Marshal(msgs); err == nil {
		s := string(data)
		e.MessagesSent = &s
	}
}

// Analysis decodes the stored phase analysis, or nil when absent/malformed.
func (e *Enrollment) Analysis() *PhaseAnalysis {
	if e.PhaseAnalysisJSON == nil || *e.PhaseAnalysisJSON == "" {
		return nil
	}
	var a PhaseAnalysis
	if err := json.Unmarshal([]byte(*e.PhaseAnalysisJSON), &a); err != nil {
		return nil
	}
	return &a
}

// StoreAnalysis records the analyzer verdict as JSON.
func (e *Enrollment) StoreAnalysis(a PhaseAnalysis) {
	if data, err := json.Marshal(a); err == nil {
		s := string(data)
		e.PhaseAnalysisJSON = &s
	}
}

// IsTerminal reports whether the enrollment is in a final state.
func (e *Enrollment) IsTerminal() bool {
	switch e.Status {
	case EnrollmentCompleted, EnrollmentReplied, EnrollmentFailed, EnrollmentWithdrawn, EnrollmentParked:
		return true
	}
	return false
}
