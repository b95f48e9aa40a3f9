package worker

import (
	"context"
	"sort"

	"github.com/ignite/linkedin-outreach/internal/ai"
	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/linkedin"
)

// MessagingClient is the subset of the provider client the engines call.
// Satisfied by *linkedin.Client; tests substitute fakes.
type MessagingClient interface {
	SendInvitation(ctx context.Context, providerID, message string) linkedin.Result
	SendMessage(ctx context.Context, chatID, text string) linkedin.Result
	ListChats(ctx context.Context, limit int, forceRefresh bool) linkedin.ChatList
	ListChatMessages(ctx context.Context, chatID string, limit int, forceRefresh bool) linkedin.MessageList
	CheckConnectionStatus(ctx context.Context) linkedin.AccountStatus
}

// ClientFactory returns a provider client bound to one external account.
type ClientFactory func(accountID string) MessagingClient

// Analyzer is the authoring and decision surface the engines need.
// Satisfied by *ai.Analyzer.
type Analyzer interface {
	GenerateConnectionMessage(ctx context.Context, lead *domain.Lead, profile *domain.BusinessProfile, strategy domain.MessageStrategy) (string, error)
	GenerateFollowUp(ctx context.Context, lead *domain.Lead, profile *domain.BusinessProfile, stepIndex, totalSteps int, conversation []ai.ConversationTurn, promptContext string) (string, error)
	GeneratePhaseMessage(ctx context.Context, phase domain.PipelinePhase, lead *domain.Lead, profile *domain.BusinessProfile, conversation []ai.ConversationTurn, prev *domain.PhaseAnalysis, messagesInPhase int) (string, error)
	AnalyzePhaseResponse(ctx context.Context, conversation []ai.ConversationTurn, phase domain.PipelinePhase, lead *domain.Lead, profile *domain.BusinessProfile, messagesInPhase int) domain.PhaseAnalysis
}

// conversationFromMessages converts a provider message list (newest first)
// into chronological conversation turns.
func conversationFromMessages(msgs []linkedin.Message) []ai.ConversationTurn {
	out := make([]ai.ConversationTurn, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, ai.ConversationTurn{
			FromLead: msgs[i].IsSender == 0,
			Text:     msgs[i].Text,
		})
	}
	return out
}

// conversationFromLog rebuilds our side of a conversation from the
// enrollment's stored message log, in key order. Used when no chat history
// is available.
func conversationFromLog(e *domain.Enrollment) []ai.ConversationTurn {
	msgs := e.Messages()
	keys := make([]string, 0, len(msgs))
	for k := range msgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]ai.ConversationTurn, 0, len(keys))
	for _, k := range keys {
		out = append(out, ai.ConversationTurn{Text: msgs[k]})
	}
	return out
}

// latestInbound returns the newest lead-authored message, or nil.
// Provider lists are newest first.
func latestInbound(msgs []linkedin.Message) *linkedin.Message {
	for i := range msgs {
		if msgs[i].IsSender == 0 {
			return &msgs[i]
		}
	}
	return nil
}
