package worker

import (
	"testing"

	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/linkedin"
)

func TestConversationFromMessages(t *testing.T) {
	// Provider order is newest first.
	msgs := []linkedin.Message{
		{ID: "3", Text: "sounds interesting", IsSender: 0},
		{ID: "2", Text: "quick question for you", IsSender: 1},
		{ID: "1", Text: "thanks for connecting", IsSender: 1},
	}
	turns := conversationFromMessages(msgs)
	if len(turns) != 3 {
		t.Fatalf("len = %d, want 3", len(turns))
	}
	if turns[0].Text != "thanks for connecting" || turns[0].FromLead {
		t.Errorf("turn 0 = %+v, want oldest outbound first", turns[0])
	}
	if turns[2].Text != "sounds interesting" || !turns[2].FromLead {
		t.Errorf("turn 2 = %+v, want newest inbound last", turns[2])
	}
}

func TestConversationFromLog(t *testing.T) {
	e := &domain.Enrollment{}
	e.StoreMessage("step-2", "second touch")
	e.StoreMessage("step-1", "opener")
	turns := conversationFromLog(e)
	if len(turns) != 2 {
		t.Fatalf("len = %d, want 2", len(turns))
	}
	if turns[0].Text != "opener" || turns[1].Text != "second touch" {
		t.Errorf("turns out of key order: %+v", turns)
	}
	for _, turn := range turns {
		if turn.FromLead {
			t.Error("log-derived turns are all our side")
		}
	}
}

func TestConversationFromLog_Empty(t *testing.T) {
	if turns := conversationFromLog(&domain.Enrollment{}); len(turns) != 0 {
		t.Errorf("len = %d, want 0", len(turns))
	}
}

func TestLatestInbound(t *testing.T) {
	msgs := []linkedin.Message{
		{ID: "4", Text: "our follow-up", IsSender: 1},
		{ID: "3", Text: "newest reply", IsSender: 0},
		{ID: "2", Text: "older reply", IsSender: 0},
		{ID: "1", Text: "opener", IsSender: 1},
	}
	got := latestInbound(msgs)
	if got == nil || got.ID != "3" {
		t.Fatalf("latestInbound = %+v, want message 3", got)
	}
}

func TestLatestInbound_NoneInbound(t *testing.T) {
	msgs := []linkedin.Message{
		{ID: "2", IsSender: 1},
		{ID: "1", IsSender: 1},
	}
	if got := latestInbound(msgs); got != nil {
		t.Errorf("latestInbound = %+v, want nil", got)
	}
	if got := latestInbound(nil); got != nil {
		t.Errorf("latestInbound(nil) = %+v, want nil", got)
	}
}

func TestResolveProviderID(t *testing.T) {
	handle := "john-doe-123"
	lead := &domain.Lead{ProviderID: &handle}
	got, err := resolveProviderID(lead)
	if err != nil || got != "john-doe-123" {
		t.Errorf("stored handle: got (%q, %v)", got, err)
	}

	u := "https://www.linkedin.com/in/jane-smith/"
	lead = &domain.Lead{ProfileURL: &u}
	got, err = resolveProviderID(lead)
	if err != nil || got != "jane-smith" {
		t.Errorf("from URL: got (%q, %v)", got, err)
	}

	if _, err := resolveProviderID(&domain.Lead{}); err == nil {
		t.Error("lead with no handle or URL should error")
	}
}
