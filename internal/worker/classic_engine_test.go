package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/linkedin-outreach/internal/ai"
	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/linkedin"
)

type sentInvitation struct{ providerID, message string }
type sentMessage struct{ chatID, text string }

// fakeClient records outbound provider calls and returns canned results.
type fakeClient struct {
	invitations []sentInvitation
	messages    []sentMessage

	inviteResult linkedin.Result
	sendResult   linkedin.Result
	chatMessages []linkedin.Message
	chats        []linkedin.Chat
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		inviteResult: linkedin.Result{Success: true, StatusCode: 201},
		sendResult:   linkedin.Result{Success: true, StatusCode: 200},
	}
}

func (f *fakeClient) SendInvitation(_ context.Context, providerID, message string) linkedin.Result {
	f.invitations = append(f.invitations, sentInvitation{providerID, message})
	return f.inviteResult
}

func (f *fakeClient) SendMessage(_ context.Context, chatID, text string) linkedin.Result {
	f.messages = append(f.messages, sentMessage{chatID, text})
	return f.sendResult
}

func (f *fakeClient) ListChats(_ context.Context, _ int, _ bool) linkedin.ChatList {
	return linkedin.ChatList{Result: linkedin.Result{Success: true, StatusCode: 200}, Chats: f.chats}
}

func (f *fakeClient) ListChatMessages(_ context.Context, _ string, _ int, _ bool) linkedin.MessageList {
	return linkedin.MessageList{Result: linkedin.Result{Success: true, StatusCode: 200}, Messages: f.chatMessages}
}

func (f *fakeClient) CheckConnectionStatus(_ context.Context) linkedin.AccountStatus {
	return linkedin.AccountStatus{Result: linkedin.Result{Success: true, StatusCode: 200}, SourceStatus: "OK"}
}

func (f *fakeClient) factory() ClientFactory {
	return func(string) MessagingClient { return f }
}

// fakeAnalyzer returns canned authored text and analysis verdicts.
type fakeAnalyzer struct {
	connectionMsg string
	followUp      string
	phaseMsg      string
	analysis      domain.PhaseAnalysis
	authorErr     error
	analyzeCalls  int
}

func (f *fakeAnalyzer) GenerateConnectionMessage(_ context.Context, _ *domain.Lead, _ *domain.BusinessProfile, _ domain.MessageStrategy) (string, error) {
	return f.connectionMsg, f.authorErr
}

func (f *fakeAnalyzer) GenerateFollowUp(_ context.Context, _ *domain.Lead, _ *domain.BusinessProfile, _, _ int, _ []ai.ConversationTurn, _ string) (string, error) {
	return f.followUp, f.authorErr
}

func (f *fakeAnalyzer) GeneratePhaseMessage(_ context.Context, _ domain.PipelinePhase, _ *domain.Lead, _ *domain.BusinessProfile, _ []ai.ConversationTurn, _ *domain.PhaseAnalysis, _ int) (string, error) {
	return f.phaseMsg, f.authorErr
}

func (f *fakeAnalyzer) AnalyzePhaseResponse(_ context.Context, _ []ai.ConversationTurn, _ domain.PipelinePhase, _ *domain.Lead, _ *domain.BusinessProfile, _ int) domain.PhaseAnalysis {
	f.analyzeCalls++
	return f.analysis
}

// Row builders matching the engines' SELECT column orders.

func enrollmentTestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "sequence_id", "lead_id", "user_id", "status",
		"current_step_order", "last_step_completed_at", "next_step_due_at",
		"messages_sent", "current_phase", "phase_entered_at",
		"last_response_at", "last_response_text", "phase_analysis",
		"messages_in_phase", "nurture_count", "reactivation_count",
		"total_messages_sent", "enrolled_at",
		"sequence_mode", "message_strategy", "business_profile_id"})
}

func leadTestRows(id, userID string, providerID, chatID *string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "full_name", "email", "job_title",
		"headline", "company_name", "company_industry", "city", "country",
		"linkedin_url", "provider_id", "chat_id", "status",
		"connection_message", "score_label", "active_sequence_id"}).
		AddRow(id, userID, "Jane Doe", nil, nil, nil, nil, nil, nil, nil,
			nil, providerID, chatID, "connected", nil, nil, nil)
}

// alwaysOpenSettingsRows yields a settings row whose window spans every day
// and the whole clock, so the gate never blocks a test send.
func alwaysOpenSettingsRows(userID string, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "enabled", "start_hour", "start_minute",
		"end_hour", "end_minute", "working_days", "timezone", "daily_limit",
		"min_delay_seconds", "max_delay_seconds", "min_lead_score", "target_statuses",
		"target_campaign_id", "require_verified_email", "invitations_sent_today",
		"last_invitation_at", "last_reset_date"}).
		AddRow("as-1", userID, true, 0, 0, 23, 59, 127, "UTC", 40,
			0, 0, nil, nil, nil, false, 0, nil, now)
}

func alwaysOpenSettings(userID string) *domain.AutomationSettings {
	return &domain.AutomationSettings{
		UserID: userID, Enabled: true,
		StartHour: 0, StartMinute: 0, EndHour: 23, EndMinute: 59,
		WorkingDays: 127, Timezone: "UTC", DailyLimit: 40,
	}
}

func stepTestRows(sequenceID string, stepTypes []string, delays []int) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "sequence_id", "step_order", "step_type",
		"delay_days", "prompt_context"})
	for i, st := range stepTypes {
		rows.AddRow(fmt.Sprintf("step-%d", i+1), sequenceID, i+1, st, delays[i], nil)
	}
	return rows
}

func accountTestRows(accountID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"external_account_id", "connected"}).AddRow(accountID, true)
}

func profileTestRows(userID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "name", "ideal_customer",
		"value_proposition", "sender_name", "sender_role", "company_name"}).
		AddRow("bp-1", userID, "Default", "SaaS founders", "we automate outreach",
			"Alex", "Head of Growth", "Ignite")
}

func TestProcessDueActions_IncludesPipelineStepOne(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	now := time.Now().UTC()
	provider := "jane-doe"
	rows := enrollmentTestRows().AddRow("enr-1", "seq-1", "lead-1", "user-1", "active",
		1, nil, now.Add(-time.Minute), nil, nil, nil, nil, nil, nil,
		0, 0, 0, 0, now.Add(-time.Hour), "smart_pipeline", "hybrid", nil)

	// The due scan keys on an empty phase, not the sequence mode, so a
	// pipeline enrollment's step-1 connection request is picked up here.
	mock.ExpectQuery(`(?s)FROM sequence_enrollments e.*e\.current_phase IS NULL.*e\.next_step_due_at <= NOW\(\)`).
		WithArgs(5).WillReturnRows(rows)
	mock.ExpectQuery(`(?s)SELECT (.+) FROM leads WHERE id`).WithArgs("lead-1").
		WillReturnRows(leadTestRows("lead-1", "user-1", &provider, nil))
	mock.ExpectQuery(`FROM automation_settings`).WithArgs("user-1").
		WillReturnRows(alwaysOpenSettingsRows("user-1", now))
	mock.ExpectQuery(`FROM sequence_steps`).WithArgs("seq-1").
		WillReturnRows(stepTestRows("seq-1", []string{"connection_request"}, []int{0}))
	mock.ExpectQuery(`FROM messaging_accounts`).WithArgs("user-1").
		WillReturnRows(accountTestRows("acct-1"))
	mock.ExpectExec(`INSERT INTO invitation_logs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE sequence_enrollments SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE leads SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`UPDATE automation_settings SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	client := newFakeClient()
	ce := NewClassicEngine(db, client.factory(), nil, 5)
	ce.ProcessDueActions(context.Background())

	if len(client.invitations) != 1 {
		t.Fatalf("invitations sent = %d, want 1", len(client.invitations))
	}
	if client.invitations[0].providerID != "jane-doe" {
		t.Errorf("providerID = %q, want jane-doe", client.invitations[0].providerID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessDueActions_FollowUpAdvancesStep(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	now := time.Now().UTC()
	chat := "chat-1"
	rows := enrollmentTestRows().AddRow("enr-1", "seq-1", "lead-1", "user-1", "active",
		2, nil, now.Add(-time.Minute), nil, nil, nil, nil, nil, nil,
		0, 0, 0, 1, now.Add(-72*time.Hour), "classic", "hybrid", nil)

	mock.ExpectQuery(`(?s)FROM sequence_enrollments e.*e\.next_step_due_at <= NOW\(\)`).
		WithArgs(5).WillReturnRows(rows)
	mock.ExpectQuery(`(?s)SELECT (.+) FROM leads WHERE id`).WithArgs("lead-1").
		WillReturnRows(leadTestRows("lead-1", "user-1", nil, &chat))
	mock.ExpectQuery(`FROM automation_settings`).WithArgs("user-1").
		WillReturnRows(alwaysOpenSettingsRows("user-1", now))
	mock.ExpectQuery(`FROM sequence_steps`).WithArgs("seq-1").
		WillReturnRows(stepTestRows("seq-1",
			[]string{"connection_request", "follow_up_message", "follow_up_message"},
			[]int{0, 3, 7}))
	mock.ExpectQuery(`FROM messaging_accounts`).WithArgs("user-1").
		WillReturnRows(accountTestRows("acct-1"))
	mock.ExpectQuery(`FROM business_profiles`).WithArgs("user-1").
		WillReturnRows(profileTestRows("user-1"))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE sequence_enrollments SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE leads SET last_message_at`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	client := newFakeClient()
	client.chatMessages = []linkedin.Message{{ID: "m1", Text: "thanks for connecting", IsSender: 1}}
	analyzer := &fakeAnalyzer{followUp: "quick question for you"}
	ce := NewClassicEngine(db, client.factory(), analyzer, 5)
	ce.ProcessDueActions(context.Background())

	if len(client.messages) != 1 || client.messages[0].text != "quick question for you" {
		t.Fatalf("messages = %+v, want one authored follow-up", client.messages)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessDueActions_LastFollowUpCompletesEnrollment(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	now := time.Now().UTC()
	chat := "chat-1"
	rows := enrollmentTestRows().AddRow("enr-1", "seq-1", "lead-1", "user-1", "active",
		3, nil, now.Add(-time.Minute), nil, nil, nil, nil, nil, nil,
		0, 0, 0, 2, now.Add(-240*time.Hour), "classic", "hybrid", nil)

	mock.ExpectQuery(`(?s)FROM sequence_enrollments e.*e\.next_step_due_at <= NOW\(\)`).
		WithArgs(5).WillReturnRows(rows)
	mock.ExpectQuery(`(?s)SELECT (.+) FROM leads WHERE id`).WithArgs("lead-1").
		WillReturnRows(leadTestRows("lead-1", "user-1", nil, &chat))
	mock.ExpectQuery(`FROM automation_settings`).WithArgs("user-1").
		WillReturnRows(alwaysOpenSettingsRows("user-1", now))
	mock.ExpectQuery(`FROM sequence_steps`).WithArgs("seq-1").
		WillReturnRows(stepTestRows("seq-1",
			[]string{"connection_request", "follow_up_message", "follow_up_message"},
			[]int{0, 3, 7}))
	mock.ExpectQuery(`FROM messaging_accounts`).WithArgs("user-1").
		WillReturnRows(accountTestRows("acct-1"))
	mock.ExpectQuery(`FROM business_profiles`).WithArgs("user-1").
		WillReturnRows(profileTestRows("user-1"))

	// Completion settles enrollment, lead link, counters, and the lead
	// stamp in one transaction.
	mock.ExpectBegin()
	mock.ExpectExec(`(?s)UPDATE sequence_enrollments SET.*status = 'completed'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE leads SET active_sequence_id = NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE sequences SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE leads SET last_message_at`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	client := newFakeClient()
	analyzer := &fakeAnalyzer{followUp: "closing the loop"}
	ce := NewClassicEngine(db, client.factory(), analyzer, 5)
	ce.ProcessDueActions(context.Background())

	if len(client.messages) != 1 {
		t.Fatalf("messages sent = %d, want 1", len(client.messages))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
