// Package ai implements the language-model analyzer: structured calls to
// Anthropic Claude for search-filter translation, lead scoring, message
// generation, and the phase-transition decisions that drive the smart
// pipeline. Parse failures are recoverable: every decision operation
// substitutes a conservative default and logs instead of failing the tick.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ignite/linkedin-outreach/internal/config"
	"github.com/ignite/linkedin-outreach/internal/domain"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// analyzer. It is satisfied by *sdk.MessageService so tests can pass a mock.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Analyzer issues structured Claude calls on behalf of the engines.
type Analyzer struct {
	msg       MessagesClient
	model     string
	maxTokens int64
}

// New builds an analyzer from an already-constructed messages client.
func New(msg MessagesClient, model string, maxTokens int) (*Analyzer, error) {
	if msg == nil {
		return nil, errors.New("messages client is required")
	}
	if model == "" {
		return nil, errors.New("model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Analyzer{msg: msg, model: model, maxTokens: int64(maxTokens)}, nil
}

// NewFromConfig constructs an analyzer using the default Anthropic HTTP client.
func NewFromConfig(cfg config.AnthropicConfig) (*Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	return New(&ac.Messages, cfg.Model, cfg.MaxTokens)
}

// complete issues one non-streaming messages.create call and returns the
// concatenated text blocks.
func (a *Analyzer) complete(ctx context.Context, system, user string) (string, error) {
	params := sdk.MessageNewParams{
		MaxTokens: a.maxTokens,
		Model:     sdk.Model(a.model),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(user))},
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	msg, err := a.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// ConversationTurn is one exchange in a chat, lead side or ours.
type ConversationTurn struct {
	FromLead bool
	Text     string
}

func renderConversation(turns []ConversationTurn) string {
	if len(turns) == 0 {
		return "(no messages yet)"
	}
	var b strings.Builder
	for _, t := range turns {
		if t.FromLead {
			b.WriteString("Lead: ")
		} else {
			b.WriteString("Me: ")
		}
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func renderLead(lead *domain.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", lead.DisplayName())
	if lead.JobTitle != nil {
		fmt.Fprintf(&b, "Title: %s\n", *lead.JobTitle)
	}
	if lead.Headline != nil {
		fmt.Fprintf(&b, "Headline: %s\n", *lead.Headline)
	}
	if lead.CompanyName != nil {
		fmt.Fprintf(&b, "Company: %s\n", *lead.CompanyName)
	}
	if lead.CompanyIndustry != nil {
		fmt.Fprintf(&b, "Industry: %s\n", *lead.CompanyIndustry)
	}
	if lead.City != nil || lead.Country != nil {
		loc := ""
		if lead.City != nil {
			loc = *lead.City
		}
		if lead.Country != nil {
			if loc != "" {
				loc += ", "
			}
			loc += *lead.Country
		}
		fmt.Fprintf(&b, "Location: %s\n", loc)
	}
	return b.String()
}

func renderProfile(p *domain.BusinessProfile) string {
	if p == nil {
		return "(no business profile)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Sender: %s", p.SenderName)
	if p.SenderRole != nil {
		fmt.Fprintf(&b, " (%s)", *p.SenderRole)
	}
	fmt.Fprintf(&b, " at %s\n", p.CompanyName)
	fmt.Fprintf(&b, "Ideal customer: %s\n", p.IdealCustomer)
	fmt.Fprintf(&b, "Value proposition: %s\n", p.ValueProposition)
	return b.String()
}

// SearchFilters is the structured output of the natural-language parser.
type SearchFilters struct {
	Industries   []string `json:"industries"`
	CompanySizes []string `json:"company_sizes"`
	JobTitles    []string `json:"job_titles"`
	Locations    []string `json:"locations"`
	Keywords     []string `json:"keywords"`
}

// SearchQuery is the full parser result.
type SearchQuery struct {
	Filters        SearchFilters `json:"filters"`
	Interpretation string        `json:"interpretation"`
	Confidence     float64       `json:"confidence"`
}

// ParseSearchQuery translates a natural-language prospecting query into
// structured search filters. Industries are constrained to a closed set and
// company sizes to fixed ranges; out-of-set values are dropped.
func (a *Analyzer) ParseSearchQuery(ctx context.Context, query string) (*SearchQuery, error) {
	text, err := a.complete(ctx, searchParserSystem, fmt.Sprintf("Query: %s\n\nRespond with JSON only.", query))
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	var out SearchQuery
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	out.Filters.Industries = intersect(out.Filters.Industries, allowedIndustries)
	out.Filters.CompanySizes = intersect(out.Filters.CompanySizes, allowedCompanySizes)
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return &out, nil
}

func intersect(values, allowed []string) []string {
	set := make(map[string]bool, len(allowed))
	for _, v := range allowed {
		set[strings.ToLower(v)] = true
	}
	out := values[:0]
	for _, v := range values {
		if set[strings.ToLower(v)] {
			out = append(out, v)
		}
	}
	return out
}

// LeadScore is the scorer output.
type LeadScore struct {
	Score  int    `json:"score"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// ScoreLead rates a lead 0-100 against the business profile.
// Bands: >=80 hot, 50-79 warm, else cold; the label is always recomputed
// from the score so the bands hold even when the model mislabels.
func (a *Analyzer) ScoreLead(ctx context.Context, lead *domain.Lead, profile *domain.BusinessProfile) (*LeadScore, error) {
	user := fmt.Sprintf("LEAD:\n%s\nBUSINESS CONTEXT:\n%s\nRespond with JSON only.", renderLead(lead), renderProfile(profile))
	text, err := a.complete(ctx, scorerSystem, user)
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("parse score response: %w", err)
	}
	var out LeadScore
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode score response: %w", err)
	}
	if out.Score < 0 {
		out.Score = 0
	}
	if out.Score > 100 {
		out.Score = 100
	}
	out.Label = string(domain.LabelForScore(out.Score))
	return &out, nil
}

// seniorKeywords trigger the direct strategy under hybrid selection.
var seniorKeywords = []string{
	"director", "vp", "vice president", "founder", "ceo", "chief",
	"head of", "cto", "cfo", "coo", "president", "owner", "partner",
}

// pickStrategy resolves hybrid into direct or gradual based on the lead's
// title and headline seniority.
func pickStrategy(strategy domain.MessageStrategy, lead *domain.Lead) domain.MessageStrategy {
	if strategy != domain.StrategyHybrid {
		return strategy
	}
	haystack := ""
	if lead.JobTitle != nil {
		haystack += strings.ToLower(*lead.JobTitle) + " "
	}
	if lead.Headline != nil {
		haystack += strings.ToLower(*lead.Headline)
	}
	for _, kw := range seniorKeywords {
		if strings.Contains(haystack, kw) {
			return domain.StrategyDirect
		}
	}
	return domain.StrategyGradual
}

// GenerateConnectionMessage authors a connection-request note for the lead.
// Hard cap 300 characters: overruns are truncated at the last word boundary
// past char 250. Direct mentions the offering by name, gradual does not.
func (a *Analyzer) GenerateConnectionMessage(ctx context.Context, lead *domain.Lead, profile *domain.BusinessProfile, strategy domain.MessageStrategy) (string, error) {
	resolved := pickStrategy(strategy, lead)
	system := connectionGradualSystem
	if resolved == domain.StrategyDirect {
		system = connectionDirectSystem
	}
	user := fmt.Sprintf("LEAD:\n%s\nBUSINESS CONTEXT:\n%s\nWrite the connection note now. Plain text only, no quotes.",
		renderLead(lead), renderProfile(profile))
	text, err := a.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return TruncateMessage(strings.TrimSpace(text), 300), nil
}

// GenerateFollowUp authors a classic follow-up message for the given step.
func (a *Analyzer) GenerateFollowUp(ctx context.Context, lead *domain.Lead, profile *domain.BusinessProfile, stepIndex, totalSteps int, conversation []ConversationTurn, promptContext string) (string, error) {
	user := fmt.Sprintf("LEAD:\n%s\nBUSINESS CONTEXT:\n%s\nCONVERSATION SO FAR:\n%s\nThis is follow-up %d of %d.",
		renderLead(lead), renderProfile(profile), renderConversation(conversation), stepIndex, totalSteps)
	if promptContext != "" {
		user += "\nGUIDANCE FOR THIS STEP: " + promptContext
	}
	user += "\nWrite the follow-up message now. Plain text only."
	text, err := a.complete(ctx, followUpSystem, user)
	if err != nil {
		return "", err
	}
	return TruncateMessage(strings.TrimSpace(text), 500), nil
}

// phaseCharCaps bound the length of generated phase messages.
var phaseCharCaps = map[domain.PipelinePhase]int{
	domain.PhaseApertura:     200,
	domain.PhaseCalificacion: 300,
	domain.PhaseValor:        500,
	domain.PhaseNurture:      300,
	domain.PhaseReactivacion: 250,
}

// GeneratePhaseMessage authors the next outbound message for a pipeline
// phase, considering the prior conversation and the previous analysis.
func (a *Analyzer) GeneratePhaseMessage(ctx context.Context, phase domain.PipelinePhase, lead *domain.Lead, profile *domain.BusinessProfile, conversation []ConversationTurn, prev *domain.PhaseAnalysis, messagesInPhase int) (string, error) {
	system, ok := phaseSystems[phase]
	if !ok {
		return "", fmt.Errorf("unknown phase %q", phase)
	}
	user := fmt.Sprintf("LEAD:\n%s\nBUSINESS CONTEXT:\n%s\nCONVERSATION SO FAR:\n%s\nMessages already sent in this phase: %d.",
		renderLead(lead), renderProfile(profile), renderConversation(conversation), messagesInPhase)
	if prev != nil {
		user += fmt.Sprintf("\nPrevious analysis: sentiment=%s signals=%s angle=%s.",
			prev.Sentiment, strings.Join(prev.BuyingSignals, "; "), prev.SuggestedAngle)
	}
	user += "\nWrite the message now. Plain text only."
	text, err := a.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return TruncateMessage(strings.TrimSpace(text), phaseCharCaps[phase]), nil
}

// AnalyzePhaseResponse is the decision function of the pipeline state
// machine. Parse failures yield the conservative default (stay, warm).
// Before returning, the phase-cap post-filter is applied: with
// messagesInPhase >= 2 a "stay" verdict is rewritten to nurture, regardless
// of what the model said.
func (a *Analyzer) AnalyzePhaseResponse(ctx context.Context, conversation []ConversationTurn, phase domain.PipelinePhase, lead *domain.Lead, profile *domain.BusinessProfile, messagesInPhase int) domain.PhaseAnalysis {
	user := fmt.Sprintf("CURRENT PHASE: %s\nMESSAGES SENT IN THIS PHASE: %d\nLEAD:\n%s\nBUSINESS CONTEXT:\n%s\nCONVERSATION:\n%s\nRespond with JSON only.",
		phase, messagesInPhase, renderLead(lead), renderProfile(profile), renderConversation(conversation))

	analysis := conservativeAnalysis()
	text, err := a.complete(ctx, phaseAnalyzerSystem, user)
	if err != nil {
		log.Printf("[Analyzer] phase analysis call failed, using conservative default: %v", err)
		return applyPhaseCapFilter(analysis, messagesInPhase)
	}
	raw, err := extractJSON(text)
	if err != nil {
		log.Printf("[Analyzer] phase analysis not valid JSON, using conservative default: %v", err)
		return applyPhaseCapFilter(analysis, messagesInPhase)
	}
	if err := json.Unmarshal(raw, &analysis); err != nil {
		log.Printf("[Analyzer] phase analysis decode failed, using conservative default: %v", err)
		return applyPhaseCapFilter(conservativeAnalysis(), messagesInPhase)
	}
	if !validOutcome(analysis.Outcome) {
		log.Printf("[Analyzer] unknown outcome %q, using conservative default", analysis.Outcome)
		analysis.Outcome = domain.OutcomeStay
	}
	if analysis.Sentiment == "" {
		analysis.Sentiment = domain.ScoreWarm
	}
	return applyPhaseCapFilter(analysis, messagesInPhase)
}

func conservativeAnalysis() domain.PhaseAnalysis {
	return domain.PhaseAnalysis{
		Outcome:        domain.OutcomeStay,
		Sentiment:      domain.ScoreWarm,
		SignalStrength: "none",
		Reason:         "analysis unavailable, conservative default",
	}
}

func validOutcome(o domain.AnalysisOutcome) bool {
	switch o {
	case domain.OutcomeAdvance, domain.OutcomeStay, domain.OutcomeNurture,
		domain.OutcomePark, domain.OutcomeMeeting, domain.OutcomeExit:
		return true
	}
	return false
}

// applyPhaseCapFilter enforces the two-messages-per-phase cap even when the
// model disagrees: at the cap, "stay" becomes "nurture".
func applyPhaseCapFilter(a domain.PhaseAnalysis, messagesInPhase int) domain.PhaseAnalysis {
	if messagesInPhase >= 2 && a.Outcome == domain.OutcomeStay {
		a.Outcome = domain.OutcomeNurture
		a.NextPhase = domain.PhaseNurture
	}
	return a
}

// SentimentResult is the output of the auxiliary sentiment detector.
type SentimentResult struct {
	Sentiment     string   `json:"sentiment"`
	BuyingSignals []string `json:"buying_signals"`
	Summary       string   `json:"summary"`
}

// AnalyzeSentiment classifies a conversation as hot/warm/cold and surfaces
// buying signals. Falls back to warm on any failure.
func (a *Analyzer) AnalyzeSentiment(ctx context.Context, conversation []ConversationTurn) SentimentResult {
	fallback := SentimentResult{Sentiment: string(domain.ScoreWarm)}
	text, err := a.complete(ctx, sentimentSystem,
		"CONVERSATION:\n"+renderConversation(conversation)+"\nRespond with JSON only.")
	if err != nil {
		log.Printf("[Analyzer] sentiment call failed, defaulting to warm: %v", err)
		return fallback
	}
	raw, err := extractJSON(text)
	if err != nil {
		log.Printf("[Analyzer] sentiment not valid JSON, defaulting to warm: %v", err)
		return fallback
	}
	var out SentimentResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return fallback
	}
	switch out.Sentiment {
	case string(domain.ScoreHot), string(domain.ScoreWarm), string(domain.ScoreCold):
	default:
		out.Sentiment = string(domain.ScoreWarm)
	}
	return out
}
