package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/pkg/httputil"
	"github.com/ignite/linkedin-outreach/internal/repository/postgres"
	"github.com/ignite/linkedin-outreach/internal/service/sequence"
)

// ListLeads pages through the caller's leads with optional status and
// campaign filters.
func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	f := postgres.ListFilter{
		Status:     domain.LeadStatus(q.Get("status")),
		CampaignID: q.Get("campaign_id"),
		Limit:      limit,
		Offset:     offset,
	}
	leads, total, err := h.leads.List(r.Context(), userID(r), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"leads": leads, "total": total})
}

// GetLead returns one lead.
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.leads.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeLeadError(w, err)
		return
	}
	httputil.OK(w, lead)
}

// CreateLead inserts a lead. A profile URL or provider handle is required
// for the lead to ever receive an invitation, but neither is mandatory at
// creation time.
func (h *Handlers) CreateLead(w http.ResponseWriter, r *http.Request) {
	var lead domain.Lead
	if !httputil.Decode(w, r, &lead) {
		return
	}
	if strings.TrimSpace(lead.FullName) == "" {
		httputil.BadRequest(w, "full_name is required")
		return
	}
	lead.UserID = userID(r)
	id, err := h.leads.Create(r.Context(), &lead)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, map[string]any{"id": id})
}

type leadUpdateRequest struct {
	FullName          *string `json:"full_name"`
	Email             *string `json:"email"`
	JobTitle          *string `json:"job_title"`
	CompanyName       *string `json:"company_name"`
	Status            *string `json:"status"`
	ConnectionMessage *string `json:"connection_message"`
	Notes             *string `json:"notes"`
}

// UpdateLead patches the editable lead fields.
func (h *Handlers) UpdateLead(w http.ResponseWriter, r *http.Request) {
	var req leadUpdateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	u := postgres.UpdateFields{
		FullName:          req.FullName,
		Email:             req.Email,
		JobTitle:          req.JobTitle,
		CompanyName:       req.CompanyName,
		ConnectionMessage: req.ConnectionMessage,
		Notes:             req.Notes,
	}
	if req.Status != nil {
		s := domain.LeadStatus(*req.Status)
		u.Status = &s
	}
	if err := h.leads.Update(r.Context(), userID(r), chi.URLParam(r, "id"), u); err != nil {
		writeLeadError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ScoreLead rates a lead against the caller's business profile and stores
// the verdict.
func (h *Handlers) ScoreLead(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "ai analysis is disabled")
		return
	}
	uid := userID(r)
	lead, err := h.leads.Get(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeLeadError(w, err)
		return
	}
	profile, err := h.profiles.GetDefault(r.Context(), uid)
	if err != nil {
		httputil.Error(w, http.StatusPreconditionFailed, "no business profile configured")
		return
	}
	score, err := h.analyzer.ScoreLead(r.Context(), lead, profile)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if err := h.leads.SetScore(r.Context(), uid, lead.ID, score.Score, score.Label, score.Reason); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, score)
}

func writeLeadError(w http.ResponseWriter, err error) {
	if errors.Is(err, sequence.ErrNotFound) {
		httputil.NotFound(w, "lead not found")
		return
	}
	httputil.InternalError(w, err)
}
