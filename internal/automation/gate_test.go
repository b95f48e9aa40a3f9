package automation

import (
	"testing"
	"time"

	"github.com/ignite/linkedin-outreach/internal/domain"
)

func baseSettings() *domain.AutomationSettings {
	s := domain.DefaultAutomationSettings("user-1")
	s.Enabled = true
	return &s
}

// mustTime parses an instant in the given zone.
func mustTime(t *testing.T, zone, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(zone)
	if err != nil {
		t.Fatalf("load location %s: %v", zone, err)
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	if err != nil {
		t.Fatalf("parse time %s: %v", value, err)
	}
	return ts
}

func TestInWorkingHours(t *testing.T) {
	tests := []struct {
		name string
		when string // Europe/Madrid local
		days int
		want bool
	}{
		{"monday mid-morning", "2026-08-24 10:00", domain.DefaultWorkingDays, true},
		{"monday before window", "2026-08-24 08:55", domain.DefaultWorkingDays, false},
		{"monday window start", "2026-08-24 09:00", domain.DefaultWorkingDays, true},
		{"monday window end inclusive", "2026-08-24 18:00", domain.DefaultWorkingDays, true},
		{"monday after window", "2026-08-24 18:01", domain.DefaultWorkingDays, false},
		{"saturday excluded by default", "2026-08-29 10:00", domain.DefaultWorkingDays, false},
		{"saturday included with bit set", "2026-08-29 10:00", domain.DefaultWorkingDays | 32, true},
		{"sunday included with bit set", "2026-08-30 10:00", 64, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseSettings()
			s.WorkingDays = tt.days
			now := mustTime(t, "Europe/Madrid", tt.when)
			if got := InWorkingHours(s, now); got != tt.want {
				t.Errorf("InWorkingHours(%s) = %v, want %v", tt.when, got, tt.want)
			}
		})
	}
}

func TestInWorkingHoursTranslatesZone(t *testing.T) {
	s := baseSettings()
	s.Timezone = "America/New_York"

	// 20:00 UTC on a Monday is 16:00 in New York: inside the window.
	now := mustTime(t, "UTC", "2026-08-24 20:00")
	if !InWorkingHours(s, now) {
		t.Error("expected 16:00 New York to be in working hours")
	}

	// The same wall-clock instant is 22:00 in Madrid: outside.
	s.Timezone = "Europe/Madrid"
	if InWorkingHours(s, now) {
		t.Error("expected 22:00 Madrid to be outside working hours")
	}
}

func TestCanSendInvitation(t *testing.T) {
	inHours := mustTime(t, "Europe/Madrid", "2026-08-24 10:00")

	t.Run("allowed", func(t *testing.T) {
		s := baseSettings()
		ok, reason := CanSendInvitation(s, inHours)
		if !ok {
			t.Fatalf("expected allowed, got reason %q", reason)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		s := baseSettings()
		s.Enabled = false
		ok, reason := CanSendInvitation(s, inHours)
		if ok || reason != "automation disabled" {
			t.Fatalf("got %v %q", ok, reason)
		}
	})

	t.Run("outside hours", func(t *testing.T) {
		s := baseSettings()
		ok, reason := CanSendInvitation(s, mustTime(t, "Europe/Madrid", "2026-08-24 08:55"))
		if ok || reason != "outside working hours" {
			t.Fatalf("got %v %q", ok, reason)
		}
	})

	t.Run("limit reached", func(t *testing.T) {
		s := baseSettings()
		s.InvitationsSentToday = s.DailyLimit
		ok, reason := CanSendInvitation(s, inHours)
		if ok || reason != "daily limit reached" {
			t.Fatalf("got %v %q", ok, reason)
		}
	})

	t.Run("limit clamped to hard ceiling", func(t *testing.T) {
		s := baseSettings()
		s.DailyLimit = 500
		s.InvitationsSentToday = domain.MaxDailyLimit
		ok, _ := CanSendInvitation(s, inHours)
		if ok {
			t.Fatal("configured limit above 40 must not raise the ceiling")
		}
	})
}

func TestNextSendDelayBounds(t *testing.T) {
	s := baseSettings()
	for i := 0; i < 500; i++ {
		d := NextSendDelay(s)
		if d < 60*time.Second || d > 300*time.Second {
			t.Fatalf("delay out of [60s, 300s]: %s", d)
		}
	}

	s.MinDelaySeconds = 30
	s.MaxDelaySeconds = 30
	if d := NextSendDelay(s); d != 30*time.Second {
		t.Fatalf("degenerate window should return min, got %s", d)
	}
}

func TestDelayElapsed(t *testing.T) {
	s := baseSettings()
	now := mustTime(t, "UTC", "2026-08-24 10:00")

	if !DelayElapsed(s, now, time.Minute) {
		t.Fatal("no prior invitation means no delay to wait out")
	}

	last := now.Add(-30 * time.Second)
	s.LastInvitationAt = &last
	if DelayElapsed(s, now, time.Minute) {
		t.Fatal("30s since last send should not satisfy a 60s delay")
	}
	if !DelayElapsed(s, now, 20*time.Second) {
		t.Fatal("30s since last send satisfies a 20s delay")
	}
}

func TestNeedsCounterReset(t *testing.T) {
	now := mustTime(t, "UTC", "2026-08-24 00:00")

	t.Run("never reset", func(t *testing.T) {
		s := baseSettings()
		if !NeedsCounterReset(s, now) {
			t.Fatal("nil last reset must trigger a reset")
		}
	})

	t.Run("reset yesterday", func(t *testing.T) {
		s := baseSettings()
		y := mustTime(t, "UTC", "2026-08-23 23:59")
		s.LastResetDate = &y
		if !NeedsCounterReset(s, now) {
			t.Fatal("previous UTC date must trigger a reset")
		}
	})

	t.Run("reset today", func(t *testing.T) {
		s := baseSettings()
		earlier := mustTime(t, "UTC", "2026-08-24 00:00")
		s.LastResetDate = &earlier
		if NeedsCounterReset(s, now.Add(10*time.Hour)) {
			t.Fatal("same UTC date must not reset again")
		}
	})
}

func TestTargetStatuses(t *testing.T) {
	s := baseSettings()
	got := TargetStatuses(s)
	if len(got) != 2 || got[0] != domain.LeadNew || got[1] != domain.LeadPending {
		t.Fatalf("default statuses = %v", got)
	}

	filter := "new, pending ,invitation_sent"
	s.TargetStatuses = &filter
	got = TargetStatuses(s)
	if len(got) != 3 || got[2] != domain.LeadInvitationSent {
		t.Fatalf("parsed statuses = %v", got)
	}
}
