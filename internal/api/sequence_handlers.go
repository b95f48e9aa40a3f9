package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/pkg/httputil"
	"github.com/ignite/linkedin-outreach/internal/service/sequence"
)

// ListSequences returns the caller's sequences, newest first.
func (h *Handlers) ListSequences(w http.ResponseWriter, r *http.Request) {
	seqs, err := h.sequences.List(r.Context(), userID(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"sequences": seqs, "total": len(seqs)})
}

// CreateSequence creates a sequence template with its steps.
func (h *Handlers) CreateSequence(w http.ResponseWriter, r *http.Request) {
	var input sequence.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	seq, err := h.sequences.Create(r.Context(), userID(r), input)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.Created(w, seq)
}

// GetSequence returns one sequence with its steps.
func (h *Handlers) GetSequence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	seq, err := h.sequences.Get(r.Context(), userID(r), id)
	if err != nil {
		writeSequenceError(w, err)
		return
	}
	steps, err := h.seqRepo.Steps(r.Context(), seq.ID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"sequence": seq, "steps": steps})
}

// GetSequenceStats returns enrollment counts by status and, for pipeline
// sequences, by phase.
func (h *Handlers) GetSequenceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sequences.GetStats(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeSequenceError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// ListEnrollments pages through a sequence's enrollments.
func (h *Handlers) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.sequences.Get(r.Context(), userID(r), id); err != nil {
		writeSequenceError(w, err)
		return
	}
	status := domain.EnrollmentStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	enrollments, err := h.enrolls.ListBySequence(r.Context(), id, status, limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"enrollments": enrollments, "count": len(enrollments)})
}

type enrollRequest struct {
	LeadIDs []string `json:"lead_ids"`
}

// EnrollLeads adds leads to a sequence.
func (h *Handlers) EnrollLeads(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.LeadIDs) == 0 {
		httputil.BadRequest(w, "lead_ids is required")
		return
	}
	res, err := h.sequences.Enroll(r.Context(), userID(r), chi.URLParam(r, "id"), req.LeadIDs)
	if err != nil {
		writeSequenceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// UnenrollLeads withdraws leads from a sequence.
func (h *Handlers) UnenrollLeads(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.LeadIDs) == 0 {
		httputil.BadRequest(w, "lead_ids is required")
		return
	}
	n, err := h.sequences.Unenroll(r.Context(), userID(r), chi.URLParam(r, "id"), req.LeadIDs)
	if err != nil {
		writeSequenceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"withdrawn": n})
}

// PauseSequence pauses a sequence and its active enrollments.
func (h *Handlers) PauseSequence(w http.ResponseWriter, r *http.Request) {
	n, err := h.sequences.Pause(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeSequenceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"paused_enrollments": n})
}

// ResumeSequence reactivates a paused sequence.
func (h *Handlers) ResumeSequence(w http.ResponseWriter, r *http.Request) {
	n, err := h.sequences.Resume(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeSequenceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"resumed_enrollments": n})
}

// ArchiveSequence retires a sequence, withdrawing its running enrollments.
func (h *Handlers) ArchiveSequence(w http.ResponseWriter, r *http.Request) {
	if err := h.sequences.Archive(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeSequenceError(w, err)
		return
	}
	httputil.NoContent(w)
}

func writeSequenceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sequence.ErrNotFound):
		httputil.NotFound(w, "sequence not found")
	case errors.Is(err, sequence.ErrArchived):
		httputil.Error(w, http.StatusConflict, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
