package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/linkedin-outreach/internal/domain"
)

// mockMessages returns canned responses and records the last request.
type mockMessages struct {
	responses []string
	err       error
	calls     int
	lastBody  sdk.MessageNewParams
}

func (m *mockMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	m.lastBody = body
	if m.err != nil {
		return nil, m.err
	}
	text := m.responses[m.calls%len(m.responses)]
	m.calls++
	return &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: text}},
	}, nil
}

func newTestAnalyzer(t *testing.T, mock *mockMessages) *Analyzer {
	t.Helper()
	a, err := New(mock, "claude-sonnet-4-20250514", 1024)
	require.NoError(t, err)
	return a
}

func strPtr(s string) *string { return &s }

func sampleLead() *domain.Lead {
	return &domain.Lead{
		ID:          "lead-1",
		FullName:    "Jane Doe",
		JobTitle:    strPtr("VP Marketing"),
		CompanyName: strPtr("Acme Corp"),
	}
}

func sampleProfile() *domain.BusinessProfile {
	return &domain.BusinessProfile{
		SenderName:       "Carlos Ruiz",
		CompanyName:      "DataBoost",
		IdealCustomer:    "Mid-size B2B marketing teams",
		ValueProposition: "Attribution analytics without the data engineering",
	}
}

func TestNewRequiresClientAndModel(t *testing.T) {
	_, err := New(nil, "m", 10)
	assert.Error(t, err)
	_, err = New(&mockMessages{}, "", 10)
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"fenced json", "Here you go:\n```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around object", `Sure! {"a":1} hope that helps`, `{"a":1}`, false},
		{"no object", "I cannot answer that", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestTruncateMessage(t *testing.T) {
	assert.Equal(t, "short", TruncateMessage("short", 300))

	long := strings.Repeat("word ", 80) // 400 chars
	got := TruncateMessage(long, 300)
	assert.LessOrEqual(t, len(got), 300)
	assert.True(t, strings.HasSuffix(got, "..."))
	// Cut lands on a word boundary, not mid-word.
	trimmed := strings.TrimSuffix(got, "...")
	assert.False(t, strings.HasSuffix(trimmed, "wor"))

	// A single unbroken token cannot cut at a space; hard cut applies.
	unbroken := strings.Repeat("x", 400)
	got = TruncateMessage(unbroken, 300)
	assert.Len(t, got, 300)

	// Multi-byte text is capped per character and never split mid-rune.
	accented := strings.Repeat("ñ", 400)
	got = TruncateMessage(accented, 300)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 300, utf8.RuneCountInString(got))
	assert.Equal(t, accented, TruncateMessage(strings.Repeat("ñ", 300), 300))
}

func TestScoreLeadBandsRecomputed(t *testing.T) {
	mock := &mockMessages{responses: []string{`{"score": 85, "label": "warm", "reason": "strong fit"}`}}
	a := newTestAnalyzer(t, mock)

	score, err := a.ScoreLead(context.Background(), sampleLead(), sampleProfile())
	require.NoError(t, err)
	assert.Equal(t, 85, score.Score)
	// Label follows the band, not the model's claim.
	assert.Equal(t, "hot", score.Label)
}

func TestParseSearchQueryDropsOutOfSetValues(t *testing.T) {
	mock := &mockMessages{responses: []string{"```json\n" + `{
		"filters": {"industries": ["Software Development", "Underwater Basket Weaving"],
		            "company_sizes": ["51-200", "17-23"],
		            "job_titles": ["CMO"], "locations": ["Madrid"], "keywords": []},
		"interpretation": "CMOs at mid-size software companies in Madrid",
		"confidence": 1.7}` + "\n```"}}
	a := newTestAnalyzer(t, mock)

	q, err := a.ParseSearchQuery(context.Background(), "CMOs at mid-size software companies in Madrid")
	require.NoError(t, err)
	assert.Equal(t, []string{"Software Development"}, q.Filters.Industries)
	assert.Equal(t, []string{"51-200"}, q.Filters.CompanySizes)
	assert.Equal(t, 1.0, q.Confidence)
}

func TestGenerateConnectionMessageStrategy(t *testing.T) {
	mock := &mockMessages{responses: []string{"Hi Jane, loved your take on attribution."}}
	a := newTestAnalyzer(t, mock)

	// VP title under hybrid resolves to direct.
	_, err := a.GenerateConnectionMessage(context.Background(), sampleLead(), sampleProfile(), domain.StrategyHybrid)
	require.NoError(t, err)
	require.Len(t, mock.lastBody.System, 1)
	assert.Contains(t, mock.lastBody.System[0].Text, "direct approach")

	// Junior title under hybrid resolves to gradual.
	lead := sampleLead()
	lead.JobTitle = strPtr("Marketing Analyst")
	lead.Headline = nil
	_, err = a.GenerateConnectionMessage(context.Background(), lead, sampleProfile(), domain.StrategyHybrid)
	require.NoError(t, err)
	assert.Contains(t, mock.lastBody.System[0].Text, "gradual approach")
}

func TestGenerateConnectionMessageCap(t *testing.T) {
	mock := &mockMessages{responses: []string{strings.Repeat("great stuff ", 40)}}
	a := newTestAnalyzer(t, mock)

	msg, err := a.GenerateConnectionMessage(context.Background(), sampleLead(), sampleProfile(), domain.StrategyDirect)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(msg), 300)
}

func TestAnalyzePhaseResponse(t *testing.T) {
	t.Run("advance verdict", func(t *testing.T) {
		mock := &mockMessages{responses: []string{`{
			"outcome": "advance", "next_phase": "calificacion", "sentiment": "warm",
			"buying_signals": ["asked about product"], "signal_strength": "moderate",
			"suggested_angle": "scale", "reason": "engaged reply"}`}}
		a := newTestAnalyzer(t, mock)

		got := a.AnalyzePhaseResponse(context.Background(), nil, domain.PhaseApertura, sampleLead(), sampleProfile(), 1)
		assert.Equal(t, domain.OutcomeAdvance, got.Outcome)
		assert.Equal(t, domain.PhaseCalificacion, got.NextPhase)
		assert.Equal(t, domain.ScoreWarm, got.Sentiment)
	})

	t.Run("call failure falls back to stay", func(t *testing.T) {
		mock := &mockMessages{err: errors.New("rate limited")}
		a := newTestAnalyzer(t, mock)

		got := a.AnalyzePhaseResponse(context.Background(), nil, domain.PhaseValor, sampleLead(), sampleProfile(), 0)
		assert.Equal(t, domain.OutcomeStay, got.Outcome)
		assert.Equal(t, domain.ScoreWarm, got.Sentiment)
	})

	t.Run("garbage output falls back to stay", func(t *testing.T) {
		mock := &mockMessages{responses: []string{"I think the lead seems interested."}}
		a := newTestAnalyzer(t, mock)

		got := a.AnalyzePhaseResponse(context.Background(), nil, domain.PhaseValor, sampleLead(), sampleProfile(), 1)
		assert.Equal(t, domain.OutcomeStay, got.Outcome)
	})

	t.Run("stay at phase cap is rewritten to nurture", func(t *testing.T) {
		mock := &mockMessages{responses: []string{`{"outcome": "stay", "sentiment": "warm"}`}}
		a := newTestAnalyzer(t, mock)

		got := a.AnalyzePhaseResponse(context.Background(), nil, domain.PhaseCalificacion, sampleLead(), sampleProfile(), 2)
		assert.Equal(t, domain.OutcomeNurture, got.Outcome)
		assert.Equal(t, domain.PhaseNurture, got.NextPhase)
	})

	t.Run("meeting at phase cap is preserved", func(t *testing.T) {
		mock := &mockMessages{responses: []string{`{"outcome": "meeting", "sentiment": "hot"}`}}
		a := newTestAnalyzer(t, mock)

		got := a.AnalyzePhaseResponse(context.Background(), nil, domain.PhaseValor, sampleLead(), sampleProfile(), 2)
		assert.Equal(t, domain.OutcomeMeeting, got.Outcome)
	})
}

func TestAnalyzeSentimentFallback(t *testing.T) {
	mock := &mockMessages{responses: []string{`{"sentiment": "spicy"}`}}
	a := newTestAnalyzer(t, mock)
	got := a.AnalyzeSentiment(context.Background(), nil)
	assert.Equal(t, "warm", got.Sentiment)

	mock = &mockMessages{err: errors.New("boom")}
	a = newTestAnalyzer(t, mock)
	got = a.AnalyzeSentiment(context.Background(), []ConversationTurn{{FromLead: true, Text: "pricing?"}})
	assert.Equal(t, "warm", got.Sentiment)
}

func TestGeneratePhaseMessageCaps(t *testing.T) {
	mock := &mockMessages{responses: []string{strings.Repeat("nurture note ", 60)}}
	a := newTestAnalyzer(t, mock)

	msg, err := a.GeneratePhaseMessage(context.Background(), domain.PhaseApertura, sampleLead(), sampleProfile(), nil, nil, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(msg), 200)

	_, err = a.GeneratePhaseMessage(context.Background(), domain.PipelinePhase("unknown"), sampleLead(), sampleProfile(), nil, nil, 0)
	assert.Error(t, err)
}
