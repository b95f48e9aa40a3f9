package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ignite/linkedin-outreach/internal/automation"
	"github.com/ignite/linkedin-outreach/internal/domain"
)

// ClassicEngine executes the timer-driven step list of classic sequences.
// Step 1 is always a connection request; later steps are authored follow-up
// messages separated by per-step day delays.
type ClassicEngine struct {
	db        *sql.DB
	clients   ClientFactory
	analyzer  Analyzer
	batchSize int
}

// NewClassicEngine creates the classic sequence engine.
func NewClassicEngine(db *sql.DB, clients ClientFactory, analyzer Analyzer, batchSize int) *ClassicEngine {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &ClassicEngine{db: db, clients: clients, analyzer: analyzer, batchSize: batchSize}
}

// ProcessDueActions runs one pass over due step-driven enrollments, oldest
// due first, bounded by the batch size to keep tick latency down. Pipeline
// enrollments are included until they enter a phase: their step 1 is the
// same connection request, and the phase engine only takes over once the
// acceptance lands.
func (ce *ClassicEngine) ProcessDueActions(ctx context.Context) {
	rows, err := ce.db.QueryContext(ctx, `
		SELECT `+engineEnrollmentCols+`
		FROM sequence_enrollments e
		JOIN sequences s ON s.id = e.sequence_id
		WHERE e.status = 'active'
		  AND s.status = 'active'
		  AND e.current_phase IS NULL
		  AND e.next_step_due_at IS NOT NULL
		  AND e.next_step_due_at <= NOW()
		ORDER BY e.next_step_due_at ASC
		LIMIT $1
	`, ce.batchSize)
	if err != nil {
		log.Printf("[ClassicEngine] Fetching due enrollments: %v", err)
		return
	}
	defer rows.Close()

	var due []*enrollmentRow
	for rows.Next() {
		e, err := scanEnrollmentRow(rows)
		if err != nil {
			log.Printf("[ClassicEngine] Scan: %v", err)
			continue
		}
		due = append(due, e)
	}
	rows.Close()

	for _, e := range due {
		ce.processEnrollment(ctx, e)
	}
}

func (ce *ClassicEngine) processEnrollment(ctx context.Context, e *enrollmentRow) {
	lead, err := loadLead(ctx, ce.db, e.LeadID)
	if err != nil {
		failEnrollment(ctx, ce.db, &e.Enrollment, fmt.Sprintf("lead missing: %v", err))
		return
	}
	settings, err := loadUserSettings(ctx, ce.db, e.UserID)
	if err != nil {
		log.Printf("[ClassicEngine] Settings for %s: %v", e.UserID, err)
		return
	}
	steps, err := loadSteps(ctx, ce.db, e.SequenceID)
	if err != nil || len(steps) == 0 {
		failEnrollment(ctx, ce.db, &e.Enrollment, "sequence has no steps")
		return
	}
	if e.CurrentStepOrder > len(steps) {
		completeEnrollment(ctx, ce.db, e, time.Now().UTC())
		return
	}
	step := steps[e.CurrentStepOrder-1]

	switch step.StepType {
	case domain.StepConnectionRequest:
		ce.executeConnectionRequest(ctx, e, lead, settings)
	case domain.StepFollowUpMessage:
		ce.executeFollowUp(ctx, e, lead, settings, steps, step)
	default:
		failEnrollment(ctx, ce.db, &e.Enrollment, fmt.Sprintf("unknown step type %q", step.StepType))
	}
}

// executeConnectionRequest sends step 1. Quota exhaustion and out-of-hours
// leave the due time in place so the next eligible tick retries.
func (ce *ClassicEngine) executeConnectionRequest(ctx context.Context, e *enrollmentRow, lead *domain.Lead, settings *domain.AutomationSettings) {
	now := time.Now().UTC()

	if automation.NeedsCounterReset(settings, now) {
		if err := resetDailyCounter(ctx, ce.db, settings.UserID, now); err == nil {
			settings.InvitationsSentToday = 0
			settings.LastResetDate = &now
		}
	}
	if !automation.InWorkingHours(settings, now) {
		return
	}
	if settings.InvitationsSentToday >= settings.EffectiveDailyLimit() {
		log.Printf("[ClassicEngine] User %s daily limit reached, enrollment %s retries next tick",
			settings.UserID, e.ID)
		return
	}
	if !automation.DelayElapsed(settings, now, automation.NextSendDelay(settings)) {
		return
	}

	accountID, connected, err := loadAccount(ctx, ce.db, e.UserID)
	if err != nil || !connected {
		return
	}

	providerID, err := resolveProviderID(lead)
	if err != nil {
		insertInvitationLog(ctx, ce.db, lead, e.UserID, invitationFailure(err.Error()), "", now)
		failEnrollment(ctx, ce.db, &e.Enrollment, err.Error())
		if serr := setLeadStatus(ctx, ce.db, lead.ID, domain.LeadDisqualified); serr != nil {
			log.Printf("[ClassicEngine] Setting lead %s status: %v", lead.ID, serr)
		}
		return
	}

	message := ""
	if lead.ConnectionMessage != nil && strings.TrimSpace(*lead.ConnectionMessage) != "" {
		message = *lead.ConnectionMessage
	} else if ce.analyzer != nil {
		profile, perr := loadProfileByID(ctx, ce.db, e.UserID, e.BusinessProfileID)
		if perr == nil {
			if authored, aerr := ce.analyzer.GenerateConnectionMessage(ctx, lead, profile, e.MessageStrategy); aerr == nil {
				message = authored
			} else {
				log.Printf("[ClassicEngine] Authoring connection note for %s failed: %v", lead.ID, aerr)
			}
		}
	}

	client := ce.clients(accountID)
	res := client.SendInvitation(ctx, providerID, message)
	insertInvitationLog(ctx, ce.db, lead, e.UserID, res, message, now)

	if !res.Success {
		if res.StatusCode >= 400 && res.StatusCode < 500 {
			failEnrollment(ctx, ce.db, &e.Enrollment,
				fmt.Sprintf("provider rejected invitation: %d %s", res.StatusCode, res.Error))
			return
		}
		// Transient: leave the due time so the next tick retries.
		log.Printf("[ClassicEngine] Invitation for enrollment %s failed transiently: %s", e.ID, res.Error)
		return
	}

	e.StoreMessage("step-1", message)
	err = withTx(ctx, ce.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE sequence_enrollments SET
				next_step_due_at = NULL, last_step_completed_at = $1,
				messages_sent = $2, total_messages_sent = total_messages_sent + 1,
				updated_at = NOW()
			WHERE id = $3
		`, now, e.MessagesSent, e.ID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE leads SET status = $1, provider_id = $2, connection_sent_at = $3, updated_at = NOW()
			WHERE id = $4
		`, domain.LeadInvitationSent, providerID, now, lead.ID)
		return err
	})
	if err != nil {
		log.Printf("[ClassicEngine] Advancing enrollment %s: %v", e.ID, err)
		return
	}
	if err := recordInvitationSent(ctx, ce.db, e.UserID, now); err == nil {
		settings.InvitationsSentToday++
		settings.LastInvitationAt = &now
	}
	log.Printf("[ClassicEngine] Sent connection request for enrollment %s (lead %s)", e.ID, lead.DisplayName())
}

// executeFollowUp authors and sends the due follow-up. Without a chat id the
// tick is skipped until the connection scan populates one.
func (ce *ClassicEngine) executeFollowUp(ctx context.Context, e *enrollmentRow, lead *domain.Lead, settings *domain.AutomationSettings, steps []domain.SequenceStep, step domain.SequenceStep) {
	now := time.Now().UTC()

	if !automation.InWorkingHours(settings, now) {
		return
	}
	if lead.ChatID == nil || *lead.ChatID == "" {
		log.Printf("[ClassicEngine] Enrollment %s step %d has no chat id yet, skipping", e.ID, e.CurrentStepOrder)
		return
	}
	if ce.analyzer == nil {
		log.Printf("[ClassicEngine] Enrollment %s step %d needs the analyzer, skipping", e.ID, e.CurrentStepOrder)
		return
	}

	accountID, connected, err := loadAccount(ctx, ce.db, e.UserID)
	if err != nil || !connected {
		return
	}
	client := ce.clients(accountID)

	conversation := conversationFromLog(&e.Enrollment)
	if msgs := client.ListChatMessages(ctx, *lead.ChatID, 20, false); msgs.Success {
		conversation = conversationFromMessages(msgs.Messages)
	}

	profile, _ := loadProfileByID(ctx, ce.db, e.UserID, e.BusinessProfileID)
	promptContext := ""
	if step.PromptContext != nil {
		promptContext = *step.PromptContext
	}
	text, err := ce.analyzer.GenerateFollowUp(ctx, lead, profile,
		e.CurrentStepOrder-1, len(steps)-1, conversation, promptContext)
	if err != nil {
		log.Printf("[ClassicEngine] Authoring follow-up for enrollment %s: %v", e.ID, err)
		return
	}

	res := client.SendMessage(ctx, *lead.ChatID, text)
	if !res.Success {
		// Transient: state unchanged, retried next tick.
		log.Printf("[ClassicEngine] Follow-up send for enrollment %s failed: status=%d %s",
			e.ID, res.StatusCode, res.Error)
		return
	}

	e.StoreMessage(fmt.Sprintf("step-%d", e.CurrentStepOrder), text)
	last := e.CurrentStepOrder >= len(steps)
	var due time.Time
	err = withTx(ctx, ce.db, func(tx *sql.Tx) error {
		if last {
			_, err := tx.ExecContext(ctx, `
				UPDATE sequence_enrollments SET
					status = 'completed', completed_at = $1, last_step_completed_at = $1,
					next_step_due_at = NULL, messages_sent = $2,
					total_messages_sent = total_messages_sent + 1, updated_at = NOW()
				WHERE id = $3
			`, now, e.MessagesSent, e.ID)
			if err != nil {
				return err
			}
			if err := clearLeadSequenceLink(ctx, tx, lead.ID); err != nil {
				return err
			}
			if err := adjustSequenceCounters(ctx, tx, e.SequenceID, 0, -1, 1, 0); err != nil {
				return err
			}
		} else {
			next := steps[e.CurrentStepOrder] // zero-based index of step k+1
			due = now.AddDate(0, 0, next.DelayDays)
			_, err := tx.ExecContext(ctx, `
				UPDATE sequence_enrollments SET
					current_step_order = $1, next_step_due_at = $2, last_step_completed_at = $3,
					messages_sent = $4, total_messages_sent = total_messages_sent + 1, updated_at = NOW()
				WHERE id = $5
			`, e.CurrentStepOrder+1, due, now, e.MessagesSent, e.ID)
			if err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE leads SET last_message_at = $1, updated_at = NOW() WHERE id = $2
		`, now, lead.ID)
		return err
	})
	if err != nil {
		log.Printf("[ClassicEngine] Advancing enrollment %s: %v", e.ID, err)
		return
	}
	if last {
		log.Printf("[ClassicEngine] Enrollment %s completed", e.ID)
	} else {
		log.Printf("[ClassicEngine] Enrollment %s advanced to step %d (due %s)",
			e.ID, e.CurrentStepOrder+1, due.Format(time.RFC3339))
	}
}

