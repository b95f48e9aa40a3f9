// Package automation implements the quota and working-hours gating that
// wraps every outbound send. All functions are pure over the settings and
// the given instant so they can be tested against fixed clocks.
package automation

import (
	"math/rand"
	"strings"
	"time"

	"github.com/ignite/linkedin-outreach/internal/domain"
)

// InWorkingHours reports whether now falls inside the user's configured
// weekly window. The instant is translated into the settings' IANA zone,
// the day-of-week bit (Mon=1 .. Sun=64) must be set, and the local time
// must sit within [start, end] inclusive.
func InWorkingHours(s *domain.AutomationSettings, now time.Time) bool {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	// time.Weekday has Sunday=0; the bitmask is Monday-based.
	dayBit := 1 << ((int(local.Weekday()) + 6) % 7)
	if s.WorkingDays&dayBit == 0 {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	start := s.StartHour*60 + s.StartMinute
	end := s.EndHour*60 + s.EndMinute
	return minutes >= start && minutes <= end
}

// CanSendInvitation reports whether an invitation may go out right now,
// with a human-readable reason when it may not.
func CanSendInvitation(s *domain.AutomationSettings, now time.Time) (bool, string) {
	if !s.Enabled {
		return false, "automation disabled"
	}
	if !InWorkingHours(s, now) {
		return false, "outside working hours"
	}
	if s.InvitationsSentToday >= s.EffectiveDailyLimit() {
		return false, "daily limit reached"
	}
	return true, ""
}

// DelayElapsed reports whether the jittered inter-send delay since the last
// invitation has passed. requiredDelay is drawn once per pending send and
// passed in so retries within a tick don't redraw it.
func DelayElapsed(s *domain.AutomationSettings, now time.Time, requiredDelay time.Duration) bool {
	if s.LastInvitationAt == nil {
		return true
	}
	return now.Sub(*s.LastInvitationAt) >= requiredDelay
}

// NextSendDelay draws a uniform random delay in
// [MinDelaySeconds, MaxDelaySeconds].
func NextSendDelay(s *domain.AutomationSettings) time.Duration {
	min := s.MinDelaySeconds
	max := s.MaxDelaySeconds
	if max <= min {
		return time.Duration(min) * time.Second
	}
	return time.Duration(min+rand.Intn(max-min+1)) * time.Second
}

// NeedsCounterReset reports whether the daily counter should reset: true
// when the last reset happened before today's UTC date. The reset follows
// the server's UTC day, not the user's local day.
func NeedsCounterReset(s *domain.AutomationSettings, now time.Time) bool {
	if s.LastResetDate == nil {
		return true
	}
	last := s.LastResetDate.UTC()
	today := now.UTC()
	ly, lm, ld := last.Date()
	ty, tm, td := today.Date()
	if ly != ty {
		return ly < ty
	}
	if lm != tm {
		return lm < tm
	}
	return ld < td
}

// TargetStatuses parses the comma-separated status filter. An empty filter
// yields the default invitation-eligible statuses.
func TargetStatuses(s *domain.AutomationSettings) []domain.LeadStatus {
	if s.TargetStatuses == nil || strings.TrimSpace(*s.TargetStatuses) == "" {
		return []domain.LeadStatus{domain.LeadNew, domain.LeadPending}
	}
	parts := strings.Split(*s.TargetStatuses, ",")
	out := make([]domain.LeadStatus, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, domain.LeadStatus(v))
		}
	}
	return out
}
