package sequence

import "errors"

var (
	// ErrNotFound is returned when a sequence, lead, or enrollment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEnrollment is returned by repositories when the
	// (lead_id, sequence_id) uniqueness constraint is violated.
	ErrDuplicateEnrollment = errors.New("lead already enrolled in this sequence")

	// ErrArchived is returned when mutating an archived sequence.
	ErrArchived = errors.New("sequence is archived")
)
