package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/linkedin-outreach/internal/pkg/httputil"
	"github.com/ignite/linkedin-outreach/internal/service/sequence"
)

// GetAutomationSettings returns the caller's invitation automation config,
// seeding defaults on first read.
func (h *Handlers) GetAutomationSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.automation.Get(r.Context(), userID(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, settings)
}

// UpdateAutomationSettings saves the configurable automation fields after
// validation. Counters and timestamps are engine-owned and ignored here.
func (h *Handlers) UpdateAutomationSettings(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	settings, err := h.automation.Get(r.Context(), uid)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if !httputil.Decode(w, r, settings) {
		return
	}
	settings.UserID = uid
	if err := settings.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := h.automation.Update(r.Context(), settings); err != nil {
		if errors.Is(err, sequence.ErrNotFound) {
			httputil.NotFound(w, "automation settings not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, settings)
}

// ListInvitationLogs pages through the caller's invitation attempts,
// newest first.
func (h *Handlers) ListInvitationLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	logs, err := h.logs.List(r.Context(), userID(r), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"logs": logs, "count": len(logs)})
}

// GetAutomationStatus summarizes today's automation activity.
func (h *Handlers) GetAutomationStatus(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	settings, err := h.automation.Get(r.Context(), uid)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	sentToday, err := h.logs.CountToday(r.Context(), uid)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"enabled":      settings.Enabled,
		"sent_today":   sentToday,
		"daily_limit":  settings.EffectiveDailyLimit(),
		"last_sent_at": settings.LastInvitationAt,
		"window":       windowString(settings.StartHour, settings.StartMinute, settings.EndHour, settings.EndMinute),
		"timezone":     settings.Timezone,
		"working_days": settings.WorkingDays,
	})
}

// GetRecentActivity returns enrollments with activity in the last 7 days.
func (h *Handlers) GetRecentActivity(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	since := time.Now().UTC().AddDate(0, 0, -7)
	items, err := h.enrolls.RecentActivity(r.Context(), userID(r), since, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"activity": items, "count": len(items)})
}

func windowString(sh, sm, eh, em int) string {
	return twoDigits(sh) + ":" + twoDigits(sm) + "-" + twoDigits(eh) + ":" + twoDigits(em)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
