package sequence

import (
	"context"

	"github.com/ignite/linkedin-outreach/internal/domain"
)

// SequenceRepository defines data access for sequence templates.
// Implementations must be safe for concurrent use.
type SequenceRepository interface {
	// Get returns a single sequence. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, userID, id string) (*domain.Sequence, error)

	// List returns the user's sequences, newest first.
	List(ctx context.Context, userID string) ([]domain.Sequence, error)

	// Create inserts a sequence with its ordered steps and returns its ID.
	Create(ctx context.Context, s *domain.Sequence, steps []domain.SequenceStep) (string, error)

	// UpdateStatus transitions a sequence's lifecycle status.
	UpdateStatus(ctx context.Context, userID, id string, status domain.SequenceStatus) error

	// AdjustCounters applies deltas to the denormalized counters.
	AdjustCounters(ctx context.Context, id string, totalDelta, activeDelta, completedDelta, repliedDelta int) error

	// Steps returns the sequence's steps ordered by step_order.
	Steps(ctx context.Context, sequenceID string) ([]domain.SequenceStep, error)
}

// EnrollmentRepository defines data access for enrollments.
type EnrollmentRepository interface {
	// Create inserts a new enrollment. Returns ErrDuplicateEnrollment when
	// the lead is already enrolled in this sequence.
	Create(ctx context.Context, e *domain.Enrollment) error

	// GetByLeadAndSequence returns one enrollment or ErrNotFound.
	GetByLeadAndSequence(ctx context.Context, leadID, sequenceID string) (*domain.Enrollment, error)

	// ListBySequence returns the sequence's enrollments, optionally filtered
	// by status ("" = all), newest first.
	ListBySequence(ctx context.Context, sequenceID string, status domain.EnrollmentStatus, limit, offset int) ([]domain.Enrollment, error)

	// SetStatus updates one enrollment's status with outcome bookkeeping.
	SetStatus(ctx context.Context, id string, status domain.EnrollmentStatus) error

	// BulkSetStatus flips every enrollment of a sequence currently in from
	// to to, returning the number updated.
	BulkSetStatus(ctx context.Context, sequenceID string, from, to domain.EnrollmentStatus) (int, error)

	// StatusCounts returns enrollment counts per status for a sequence.
	StatusCounts(ctx context.Context, sequenceID string) (map[domain.EnrollmentStatus]int, error)

	// PhaseCounts returns active-enrollment counts per pipeline phase.
	PhaseCounts(ctx context.Context, sequenceID string) (map[domain.PipelinePhase]int, error)
}

// LeadRepository is the narrow view of lead data the service needs.
type LeadRepository interface {
	// Get returns one lead or ErrNotFound.
	Get(ctx context.Context, userID, id string) (*domain.Lead, error)

	// SetActiveSequence links the lead to its single active enrollment.
	SetActiveSequence(ctx context.Context, leadID, sequenceID string) error

	// ClearActiveSequence removes the link.
	ClearActiveSequence(ctx context.Context, leadID string) error

	// ClearSequenceLinks removes the link from every lead bound to the
	// sequence, returning the number of leads unlinked.
	ClearSequenceLinks(ctx context.Context, sequenceID string) (int, error)
}

// EnrollResult reports the outcome of a bulk enrollment.
type EnrollResult struct {
	Enrolled      int      `json:"enrolled"`
	Skipped       int      `json:"skipped"`
	Errors        []string `json:"errors,omitempty"`
	AutoActivated bool     `json:"auto_activated"`
}

// Stats is the read-side summary for one sequence.
type Stats struct {
	SequenceID string                          `json:"sequence_id"`
	ByStatus   map[domain.EnrollmentStatus]int `json:"by_status"`
	ByPhase    map[domain.PipelinePhase]int    `json:"by_phase,omitempty"`
}
