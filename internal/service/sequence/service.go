package sequence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/linkedin-outreach/internal/domain"
)

// Service implements sequence lifecycle business logic on top of the
// repository contracts. All public methods are safe for concurrent use if
// the underlying repositories are concurrency-safe.
type Service struct {
	sequences   SequenceRepository
	enrollments EnrollmentRepository
	leads       LeadRepository
}

// NewService creates a sequence service backed by the given repositories.
func NewService(sequences SequenceRepository, enrollments EnrollmentRepository, leads LeadRepository) *Service {
	return &Service{sequences: sequences, enrollments: enrollments, leads: leads}
}

// Get returns a single sequence.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Sequence, error) {
	return s.sequences.Get(ctx, userID, id)
}

// List returns the user's sequences.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Sequence, error) {
	return s.sequences.List(ctx, userID)
}

// CreateInput holds the fields for creating a sequence.
type CreateInput struct {
	Name              string                 `json:"name"`
	Description       string                 `json:"description"`
	Mode              domain.SequenceMode    `json:"sequence_mode"`
	MessageStrategy   domain.MessageStrategy `json:"message_strategy"`
	BusinessProfileID string                 `json:"business_profile_id"`
	Steps             []StepInput            `json:"steps"`
}

// StepInput is one classic step in a create request.
type StepInput struct {
	StepType      domain.StepType `json:"step_type"`
	DelayDays     int             `json:"delay_days"`
	PromptContext string          `json:"prompt_context"`
}

// Create validates and persists a new sequence in draft status. Classic
// sequences must start with a connection request; pipeline sequences get an
// implicit single connection-request step.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*domain.Sequence, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	mode := input.Mode
	if mode == "" {
		mode = domain.ModeClassic
	}
	strategy := input.MessageStrategy
	if strategy == "" {
		strategy = domain.StrategyHybrid
	}

	steps := input.Steps
	if mode == domain.ModeSmartPipeline && len(steps) == 0 {
		steps = []StepInput{{StepType: domain.StepConnectionRequest}}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("at least one step is required")
	}
	if steps[0].StepType != domain.StepConnectionRequest {
		return nil, fmt.Errorf("step 1 must be a connection request")
	}
	for i, st := range steps[1:] {
		if st.StepType != domain.StepFollowUpMessage {
			return nil, fmt.Errorf("step %d: only step 1 may be a connection request", i+2)
		}
	}

	seq := &domain.Sequence{
		ID:              uuid.New().String(),
		UserID:          userID,
		Name:            input.Name,
		Status:          domain.SequenceDraft,
		Mode:            mode,
		MessageStrategy: strategy,
	}
	if input.Description != "" {
		seq.Description = &input.Description
	}
	if input.BusinessProfileID != "" {
		seq.BusinessProfileID = &input.BusinessProfileID
	}

	ordered := make([]domain.SequenceStep, 0, len(steps))
	for i, st := range steps {
		step := domain.SequenceStep{
			ID:         uuid.New().String(),
			SequenceID: seq.ID,
			StepOrder:  i + 1,
			StepType:   st.StepType,
			DelayDays:  st.DelayDays,
		}
		if st.PromptContext != "" {
			step.PromptContext = &st.PromptContext
		}
		ordered = append(ordered, step)
	}

	id, err := s.sequences.Create(ctx, seq, ordered)
	if err != nil {
		return nil, err
	}
	seq.ID = id
	return seq, nil
}

// Enroll adds leads to a sequence. Leads already in another active sequence
// are skipped, as are duplicates of this sequence. A draft sequence is
// auto-activated once at least one lead is enrolled.
func (s *Service) Enroll(ctx context.Context, userID, sequenceID string, leadIDs []string) (*EnrollResult, error) {
	seq, err := s.sequences.Get(ctx, userID, sequenceID)
	if err != nil {
		return nil, err
	}
	if seq.Status == domain.SequenceArchived {
		return nil, ErrArchived
	}

	res := &EnrollResult{}
	now := time.Now().UTC()

	for _, leadID := range leadIDs {
		lead, err := s.leads.Get(ctx, userID, leadID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				res.Skipped++
				res.Errors = append(res.Errors, fmt.Sprintf("lead %s: not found", leadID))
				continue
			}
			return nil, err
		}
		if lead.ActiveSequenceID != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("lead %s: already in an active sequence", leadID))
			continue
		}

		due := now
		e := &domain.Enrollment{
			ID:               uuid.New().String(),
			SequenceID:       sequenceID,
			LeadID:           leadID,
			UserID:           userID,
			Status:           domain.EnrollmentActive,
			CurrentStepOrder: 1,
			NextStepDueAt:    &due,
			EnrolledAt:       now,
		}
		if err := s.enrollments.Create(ctx, e); err != nil {
			if errors.Is(err, ErrDuplicateEnrollment) {
				res.Skipped++
				continue
			}
			return nil, fmt.Errorf("enroll lead %s: %w", leadID, err)
		}
		if err := s.leads.SetActiveSequence(ctx, leadID, sequenceID); err != nil {
			return nil, fmt.Errorf("link lead %s: %w", leadID, err)
		}
		res.Enrolled++
	}

	if res.Enrolled > 0 {
		if err := s.sequences.AdjustCounters(ctx, sequenceID, res.Enrolled, res.Enrolled, 0, 0); err != nil {
			log.Printf("[sequence.Service] counter update failed for %s: %v", sequenceID, err)
		}
		if seq.Status == domain.SequenceDraft {
			if err := s.sequences.UpdateStatus(ctx, userID, sequenceID, domain.SequenceActive); err != nil {
				return nil, fmt.Errorf("auto-activate: %w", err)
			}
			res.AutoActivated = true
		}
	}
	return res, nil
}

// Unenroll withdraws leads from a sequence, clearing their active link.
func (s *Service) Unenroll(ctx context.Context, userID, sequenceID string, leadIDs []string) (int, error) {
	if _, err := s.sequences.Get(ctx, userID, sequenceID); err != nil {
		return 0, err
	}

	withdrawn := 0
	for _, leadID := range leadIDs {
		e, err := s.enrollments.GetByLeadAndSequence(ctx, leadID, sequenceID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return withdrawn, err
		}
		if e.IsTerminal() {
			continue
		}
		if err := s.enrollments.SetStatus(ctx, e.ID, domain.EnrollmentWithdrawn); err != nil {
			return withdrawn, fmt.Errorf("withdraw enrollment %s: %w", e.ID, err)
		}
		if err := s.leads.ClearActiveSequence(ctx, leadID); err != nil {
			return withdrawn, fmt.Errorf("unlink lead %s: %w", leadID, err)
		}
		withdrawn++
	}
	if withdrawn > 0 {
		if err := s.sequences.AdjustCounters(ctx, sequenceID, 0, -withdrawn, 0, 0); err != nil {
			log.Printf("[sequence.Service] counter update failed for %s: %v", sequenceID, err)
		}
	}
	return withdrawn, nil
}

// Pause stops a sequence and suspends its active enrollments.
func (s *Service) Pause(ctx context.Context, userID, sequenceID string) (int, error) {
	seq, err := s.sequences.Get(ctx, userID, sequenceID)
	if err != nil {
		return 0, err
	}
	if seq.Status == domain.SequenceArchived {
		return 0, ErrArchived
	}
	if err := s.sequences.UpdateStatus(ctx, userID, sequenceID, domain.SequencePaused); err != nil {
		return 0, err
	}
	n, err := s.enrollments.BulkSetStatus(ctx, sequenceID, domain.EnrollmentActive, domain.EnrollmentPaused)
	if err != nil {
		return 0, fmt.Errorf("pause enrollments: %w", err)
	}
	log.Printf("[sequence.Service] Paused sequence %s (%d enrollments)", sequenceID, n)
	return n, nil
}

// Resume reactivates a paused sequence and its paused enrollments.
func (s *Service) Resume(ctx context.Context, userID, sequenceID string) (int, error) {
	seq, err := s.sequences.Get(ctx, userID, sequenceID)
	if err != nil {
		return 0, err
	}
	if seq.Status == domain.SequenceArchived {
		return 0, ErrArchived
	}
	if err := s.sequences.UpdateStatus(ctx, userID, sequenceID, domain.SequenceActive); err != nil {
		return 0, err
	}
	n, err := s.enrollments.BulkSetStatus(ctx, sequenceID, domain.EnrollmentPaused, domain.EnrollmentActive)
	if err != nil {
		return 0, fmt.Errorf("resume enrollments: %w", err)
	}
	log.Printf("[sequence.Service] Resumed sequence %s (%d enrollments)", sequenceID, n)
	return n, nil
}

// Archive retires a sequence. Running enrollments are withdrawn first so no
// further sends can happen for it, their leads are unlinked so they can be
// enrolled elsewhere, and the active counter is settled.
func (s *Service) Archive(ctx context.Context, userID, sequenceID string) error {
	if _, err := s.sequences.Get(ctx, userID, sequenceID); err != nil {
		return err
	}
	withdrawn := 0
	for _, from := range []domain.EnrollmentStatus{domain.EnrollmentActive, domain.EnrollmentPaused} {
		n, err := s.enrollments.BulkSetStatus(ctx, sequenceID, from, domain.EnrollmentWithdrawn)
		if err != nil {
			return fmt.Errorf("withdraw %s enrollments: %w", from, err)
		}
		withdrawn += n
	}
	if _, err := s.leads.ClearSequenceLinks(ctx, sequenceID); err != nil {
		return fmt.Errorf("unlink leads: %w", err)
	}
	if withdrawn > 0 {
		if err := s.sequences.AdjustCounters(ctx, sequenceID, 0, -withdrawn, 0, 0); err != nil {
			log.Printf("[sequence.Service] counter update failed for %s: %v", sequenceID, err)
		}
	}
	return s.sequences.UpdateStatus(ctx, userID, sequenceID, domain.SequenceArchived)
}

// GetStats returns per-status and, for pipeline sequences, per-phase counts.
func (s *Service) GetStats(ctx context.Context, userID, sequenceID string) (*Stats, error) {
	seq, err := s.sequences.Get(ctx, userID, sequenceID)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.enrollments.StatusCounts(ctx, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	stats := &Stats{SequenceID: sequenceID, ByStatus: byStatus}
	if seq.Mode == domain.ModeSmartPipeline {
		byPhase, err := s.enrollments.PhaseCounts(ctx, sequenceID)
		if err != nil {
			return nil, fmt.Errorf("phase counts: %w", err)
		}
		stats.ByPhase = byPhase
	}
	return stats, nil
}
