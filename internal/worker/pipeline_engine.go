package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/ignite/linkedin-outreach/internal/ai"
	"github.com/ignite/linkedin-outreach/internal/automation"
	"github.com/ignite/linkedin-outreach/internal/domain"
)

// Pipeline state machine constants.
const (
	maxMessagesPerPhase     = 2
	maxNurtureTouches       = 4
	maxReactivationAttempts = 1

	nurtureCadenceMinDays = 42
	nurtureCadenceMaxDays = 56

	reactivationSilence = 30 * 24 * time.Hour

	// Backoff before a failed synchronous phase send is retried by the
	// deferred-send path.
	phaseSendRetryBackoff = 30 * time.Minute
)

// PipelineEngine runs the response-driven smart pipeline: it analyzes
// inbound replies with the LM, applies the resulting outcome to the
// enrollment, and fires the time-based transitions (nurture cadence,
// reactivation after silence, deferred sends).
type PipelineEngine struct {
	db        *sql.DB
	clients   ClientFactory
	analyzer  Analyzer
	batchSize int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewPipelineEngine creates the smart pipeline engine.
func NewPipelineEngine(db *sql.DB, clients ClientFactory, analyzer Analyzer, batchSize int) *PipelineEngine {
	if batchSize <= 0 {
		batchSize = 3
	}
	return &PipelineEngine{
		db:        db,
		clients:   clients,
		analyzer:  analyzer,
		batchSize: batchSize,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// nurtureDelay draws the next nurture touch delay, uniform in [42, 56] days.
func (pe *PipelineEngine) nurtureDelay() time.Duration {
	pe.rngMu.Lock()
	days := nurtureCadenceMinDays + pe.rng.Intn(nurtureCadenceMaxDays-nurtureCadenceMinDays+1)
	pe.rngMu.Unlock()
	return time.Duration(days) * 24 * time.Hour
}

// DetectReplies scans connected pipeline enrollments for new inbound
// messages and applies the analyzer's verdict to each.
func (pe *PipelineEngine) DetectReplies(ctx context.Context) {
	if pe.analyzer == nil {
		return
	}
	rows, err := pe.db.QueryContext(ctx, `
		SELECT `+engineEnrollmentCols+`
		FROM sequence_enrollments e
		JOIN sequences s ON s.id = e.sequence_id
		JOIN leads l ON l.id = e.lead_id
		WHERE e.status = 'active'
		  AND s.status = 'active'
		  AND s.sequence_mode = 'smart_pipeline'
		  AND e.current_phase IS NOT NULL
		  AND l.chat_id IS NOT NULL
		ORDER BY e.id
		LIMIT $1
	`, pe.batchSize)
	if err != nil {
		log.Printf("[PipelineEngine] Fetching enrollments: %v", err)
		return
	}
	defer rows.Close()

	var active []*enrollmentRow
	for rows.Next() {
		e, err := scanEnrollmentRow(rows)
		if err != nil {
			log.Printf("[PipelineEngine] Scan: %v", err)
			continue
		}
		active = append(active, e)
	}
	rows.Close()

	for _, e := range active {
		pe.checkEnrollmentForReply(ctx, e)
	}
}

func (pe *PipelineEngine) checkEnrollmentForReply(ctx context.Context, e *enrollmentRow) {
	lead, err := loadLead(ctx, pe.db, e.LeadID)
	if err != nil || lead.ChatID == nil {
		return
	}
	accountID, connected, err := loadAccount(ctx, pe.db, e.UserID)
	if err != nil || !connected {
		return
	}
	client := pe.clients(accountID)

	list := client.ListChatMessages(ctx, *lead.ChatID, 20, false)
	if !list.Success {
		return
	}
	inbound := latestInbound(list.Messages)
	if inbound == nil {
		return
	}
	sentAt := inbound.SentAt()
	// Ignore history from before the sequence started.
	if sentAt.IsZero() || !sentAt.After(e.EnrolledAt) {
		return
	}
	// Only react to inbound content newer than what we already analyzed.
	if e.LastResponseAt != nil && !sentAt.After(*e.LastResponseAt) {
		return
	}

	conversation := conversationFromMessages(list.Messages)
	settings, err := loadUserSettings(ctx, pe.db, e.UserID)
	if err != nil {
		return
	}
	profile, _ := loadProfileByID(ctx, pe.db, e.UserID, e.BusinessProfileID)

	analysis := pe.analyzer.AnalyzePhaseResponse(ctx, conversation, *e.CurrentPhase, lead, profile, e.MessagesInPhase)
	e.StoreAnalysis(analysis)
	e.LastResponseAt = &sentAt
	text := inbound.Text
	e.LastResponseText = &text

	pe.recordResponse(ctx, e, lead, analysis)
	pe.applyOutcome(ctx, client, e, lead, settings, profile, conversation, analysis)
}

// recordResponse persists the analysis and copies the sentiment to the
// lead, both in one transaction.
func (pe *PipelineEngine) recordResponse(ctx context.Context, e *enrollmentRow, lead *domain.Lead, analysis domain.PhaseAnalysis) {
	err := withTx(ctx, pe.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE sequence_enrollments SET
				last_response_at = $1, last_response_text = $2, phase_analysis = $3, updated_at = NOW()
			WHERE id = $4
		`, e.LastResponseAt, e.LastResponseText, e.PhaseAnalysisJSON, e.ID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE leads SET score_label = $1, last_message_at = $2, updated_at = NOW()
			WHERE id = $3
		`, string(analysis.Sentiment), e.LastResponseAt, lead.ID)
		return err
	})
	if err != nil {
		log.Printf("[PipelineEngine] Recording response on %s: %v", e.ID, err)
	}
}

func (pe *PipelineEngine) applyOutcome(ctx context.Context, client MessagingClient, e *enrollmentRow, lead *domain.Lead, settings *domain.AutomationSettings, profile *domain.BusinessProfile, conversation []ai.ConversationTurn, analysis domain.PhaseAnalysis) {
	now := time.Now().UTC()

	switch analysis.Outcome {
	case domain.OutcomeAdvance:
		next := analysis.NextPhase
		if next == "" {
			next = domain.NextProgressionPhase(*e.CurrentPhase)
		}
		if next == "" {
			log.Printf("[PipelineEngine] Advance from %s on %s has no next phase, holding", *e.CurrentPhase, e.ID)
			return
		}
		pe.enterPhase(ctx, e, next, now)
		pe.sendPhaseMessage(ctx, client, e, lead, settings, profile, conversation, &analysis, now)

	case domain.OutcomeStay:
		pe.sendPhaseMessage(ctx, client, e, lead, settings, profile, conversation, &analysis, now)

	case domain.OutcomeNurture:
		pe.moveToNurture(ctx, e, now)

	case domain.OutcomeMeeting:
		pe.finishEnrollment(ctx, e, domain.EnrollmentCompleted, domain.LeadMeetingScheduled, now, 1, 1)
		log.Printf("[PipelineEngine] Enrollment %s: meeting outcome, lead %s", e.ID, lead.DisplayName())

	case domain.OutcomePark:
		pe.finishEnrollment(ctx, e, domain.EnrollmentParked, "", now, 0, 0)

	case domain.OutcomeExit:
		pe.finishEnrollment(ctx, e, domain.EnrollmentCompleted, domain.LeadDisqualified, now, 1, 0)
	}
}

// enterPhase moves the enrollment into a new phase with a fresh message count.
func (pe *PipelineEngine) enterPhase(ctx context.Context, e *enrollmentRow, phase domain.PipelinePhase, now time.Time) {
	_, err := pe.db.ExecContext(ctx, `
		UPDATE sequence_enrollments SET
			current_phase = $1, phase_entered_at = $2, messages_in_phase = 0, updated_at = NOW()
		WHERE id = $3
	`, phase, now, e.ID)
	if err != nil {
		log.Printf("[PipelineEngine] Entering phase %s on %s: %v", phase, e.ID, err)
		return
	}
	p := phase
	e.CurrentPhase = &p
	e.PhaseEnteredAt = &now
	e.MessagesInPhase = 0
}

// sendPhaseMessage authors and sends the next message of the current phase.
// Outside working hours the send is staged for the deferred path; a failed
// send is staged for retry after a short backoff.
func (pe *PipelineEngine) sendPhaseMessage(ctx context.Context, client MessagingClient, e *enrollmentRow, lead *domain.Lead, settings *domain.AutomationSettings, profile *domain.BusinessProfile, conversation []ai.ConversationTurn, prev *domain.PhaseAnalysis, now time.Time) {
	if e.MessagesInPhase >= maxMessagesPerPhase {
		// A staged send that no longer fits the phase cap is dropped, not
		// re-selected forever.
		if e.NextStepDueAt != nil {
			_, err := pe.db.ExecContext(ctx, `
				UPDATE sequence_enrollments SET next_step_due_at = NULL, updated_at = NOW() WHERE id = $1
			`, e.ID)
			if err != nil {
				log.Printf("[PipelineEngine] Clearing stale due time on %s: %v", e.ID, err)
			}
		}
		return
	}
	if lead.ChatID == nil || *lead.ChatID == "" {
		return
	}
	if !automation.InWorkingHours(settings, now) {
		pe.stageDeferredSend(ctx, e, now)
		return
	}

	text, err := pe.analyzer.GeneratePhaseMessage(ctx, *e.CurrentPhase, lead, profile, conversation, prev, e.MessagesInPhase)
	if err != nil {
		log.Printf("[PipelineEngine] Authoring %s message for %s: %v", *e.CurrentPhase, e.ID, err)
		pe.stageDeferredSend(ctx, e, now.Add(phaseSendRetryBackoff))
		return
	}

	res := client.SendMessage(ctx, *lead.ChatID, text)
	if !res.Success {
		log.Printf("[PipelineEngine] %s send for %s failed: status=%d %s",
			*e.CurrentPhase, e.ID, res.StatusCode, res.Error)
		pe.stageDeferredSend(ctx, e, now.Add(phaseSendRetryBackoff))
		return
	}

	key := fmt.Sprintf("%s-%d", *e.CurrentPhase, e.MessagesInPhase+1)
	e.StoreMessage(key, text)
	err = withTx(ctx, pe.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE sequence_enrollments SET
				messages_in_phase = messages_in_phase + 1,
				total_messages_sent = total_messages_sent + 1,
				messages_sent = $1, next_step_due_at = NULL, updated_at = NOW()
			WHERE id = $2
		`, e.MessagesSent, e.ID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE leads SET last_message_at = $1, updated_at = NOW() WHERE id = $2
		`, now, lead.ID)
		return err
	})
	if err != nil {
		log.Printf("[PipelineEngine] Recording %s send on %s: %v", *e.CurrentPhase, e.ID, err)
		return
	}
	e.MessagesInPhase++
	log.Printf("[PipelineEngine] Sent %s message #%d for enrollment %s", *e.CurrentPhase, e.MessagesInPhase, e.ID)
}

// stageDeferredSend marks the enrollment due so ProcessDueActions picks the
// unsent phase message up on a later in-hours tick.
func (pe *PipelineEngine) stageDeferredSend(ctx context.Context, e *enrollmentRow, due time.Time) {
	_, err := pe.db.ExecContext(ctx, `
		UPDATE sequence_enrollments SET next_step_due_at = $1, updated_at = NOW() WHERE id = $2
	`, due, e.ID)
	if err != nil {
		log.Printf("[PipelineEngine] Staging deferred send on %s: %v", e.ID, err)
	}
}

// moveToNurture parks the conversation on the long cadence.
func (pe *PipelineEngine) moveToNurture(ctx context.Context, e *enrollmentRow, now time.Time) {
	due := now.Add(pe.nurtureDelay())
	_, err := pe.db.ExecContext(ctx, `
		UPDATE sequence_enrollments SET
			current_phase = 'nurture', phase_entered_at = $1, messages_in_phase = 0,
			next_step_due_at = $2, updated_at = NOW()
		WHERE id = $3
	`, now, due, e.ID)
	if err != nil {
		log.Printf("[PipelineEngine] Moving %s to nurture: %v", e.ID, err)
		return
	}
	log.Printf("[PipelineEngine] Enrollment %s moved to nurture, next touch %s", e.ID, due.Format(time.RFC3339))
}

// finishEnrollment closes an enrollment, unlinks and optionally restamps
// the lead, and settles the sequence counters, all in one transaction.
func (pe *PipelineEngine) finishEnrollment(ctx context.Context, e *enrollmentRow, status domain.EnrollmentStatus, leadStatus domain.LeadStatus, now time.Time, completedDelta, repliedDelta int) {
	q := `UPDATE sequence_enrollments SET status = $1, next_step_due_at = NULL, updated_at = NOW()`
	if status == domain.EnrollmentCompleted {
		q += `, completed_at = $2 WHERE id = $3`
	} else {
		q += ` WHERE id = $2`
	}
	err := withTx(ctx, pe.db, func(tx *sql.Tx) error {
		var err error
		if status == domain.EnrollmentCompleted {
			_, err = tx.ExecContext(ctx, q, status, now, e.ID)
		} else {
			_, err = tx.ExecContext(ctx, q, status, e.ID)
		}
		if err != nil {
			return err
		}
		if err := clearLeadSequenceLink(ctx, tx, e.LeadID); err != nil {
			return err
		}
		if leadStatus != "" {
			if err := setLeadStatus(ctx, tx, e.LeadID, leadStatus); err != nil {
				return err
			}
		}
		return adjustSequenceCounters(ctx, tx, e.SequenceID, 0, -1, completedDelta, repliedDelta)
	})
	if err != nil {
		log.Printf("[PipelineEngine] Finishing enrollment %s: %v", e.ID, err)
	}
}

// ProcessDueActions is the P1 slice of pipeline work: deferred phase sends
// whose due time has arrived (acceptance detected out-of-hours, or a prior
// synchronous send that failed).
func (pe *PipelineEngine) ProcessDueActions(ctx context.Context) {
	if pe.analyzer == nil {
		return
	}
	rows, err := pe.db.QueryContext(ctx, `
		SELECT `+engineEnrollmentCols+`
		FROM sequence_enrollments e
		JOIN sequences s ON s.id = e.sequence_id
		WHERE e.status = 'active'
		  AND s.status = 'active'
		  AND s.sequence_mode = 'smart_pipeline'
		  AND e.current_phase IS NOT NULL
		  AND e.current_phase <> 'nurture'
		  AND e.next_step_due_at IS NOT NULL
		  AND e.next_step_due_at <= NOW()
		ORDER BY e.next_step_due_at ASC
		LIMIT $1
	`, pe.batchSize)
	if err != nil {
		log.Printf("[PipelineEngine] Fetching deferred sends: %v", err)
		return
	}
	defer rows.Close()

	var due []*enrollmentRow
	for rows.Next() {
		e, err := scanEnrollmentRow(rows)
		if err != nil {
			continue
		}
		due = append(due, e)
	}
	rows.Close()

	for _, e := range due {
		pe.executeDeferredSend(ctx, e)
	}
}

func (pe *PipelineEngine) executeDeferredSend(ctx context.Context, e *enrollmentRow) {
	lead, err := loadLead(ctx, pe.db, e.LeadID)
	if err != nil {
		failEnrollment(ctx, pe.db, &e.Enrollment, fmt.Sprintf("lead missing: %v", err))
		return
	}
	settings, err := loadUserSettings(ctx, pe.db, e.UserID)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	if !automation.InWorkingHours(settings, now) {
		return
	}
	accountID, connected, err := loadAccount(ctx, pe.db, e.UserID)
	if err != nil || !connected {
		return
	}
	client := pe.clients(accountID)
	profile, _ := loadProfileByID(ctx, pe.db, e.UserID, e.BusinessProfileID)

	conversation := conversationFromLog(&e.Enrollment)
	if lead.ChatID != nil && *lead.ChatID != "" {
		if msgs := client.ListChatMessages(ctx, *lead.ChatID, 20, false); msgs.Success {
			conversation = conversationFromMessages(msgs.Messages)
		}
	}
	pe.sendPhaseMessage(ctx, client, e, lead, settings, profile, conversation, e.Analysis(), now)
}

// EnterApertura is called by the connection detector when an acceptance is
// found for a pipeline enrollment: the enrollment enters APERTURA and the
// opening message goes out immediately when the window allows, otherwise it
// is staged for the next in-hours tick.
func (pe *PipelineEngine) EnterApertura(ctx context.Context, e *enrollmentRow, lead *domain.Lead, now time.Time) {
	pe.enterPhase(ctx, e, domain.PhaseApertura, now)

	// Without an analyzer nothing can be authored here; stage the send for
	// a process that has one.
	if pe.analyzer == nil {
		pe.stageDeferredSend(ctx, e, now)
		return
	}

	settings, err := loadUserSettings(ctx, pe.db, e.UserID)
	if err != nil {
		pe.stageDeferredSend(ctx, e, now)
		return
	}
	if !automation.InWorkingHours(settings, now) {
		pe.stageDeferredSend(ctx, e, now)
		return
	}
	accountID, connected, err := loadAccount(ctx, pe.db, e.UserID)
	if err != nil || !connected {
		pe.stageDeferredSend(ctx, e, now)
		return
	}
	client := pe.clients(accountID)
	profile, _ := loadProfileByID(ctx, pe.db, e.UserID, e.BusinessProfileID)
	pe.sendPhaseMessage(ctx, client, e, lead, settings, profile, nil, nil, now)
}

// ProcessTimeBasedTransitions fires the clock-driven pipeline rules:
// nurture touches on cadence, and a single reactivation attempt after 30
// days of silence in a progression phase.
func (pe *PipelineEngine) ProcessTimeBasedTransitions(ctx context.Context) {
	if pe.analyzer == nil {
		return
	}
	pe.processNurtureDue(ctx)
	pe.processSilentProgressions(ctx)
}

func (pe *PipelineEngine) processNurtureDue(ctx context.Context) {
	rows, err := pe.db.QueryContext(ctx, `
		SELECT `+engineEnrollmentCols+`
		FROM sequence_enrollments e
		JOIN sequences s ON s.id = e.sequence_id
		WHERE e.status = 'active'
		  AND s.status = 'active'
		  AND s.sequence_mode = 'smart_pipeline'
		  AND e.current_phase = 'nurture'
		  AND e.next_step_due_at IS NOT NULL
		  AND e.next_step_due_at <= NOW()
		ORDER BY e.next_step_due_at ASC
		LIMIT $1
	`, pe.batchSize)
	if err != nil {
		log.Printf("[PipelineEngine] Fetching nurture-due: %v", err)
		return
	}
	defer rows.Close()

	var due []*enrollmentRow
	for rows.Next() {
		e, err := scanEnrollmentRow(rows)
		if err != nil {
			continue
		}
		due = append(due, e)
	}
	rows.Close()

	for _, e := range due {
		pe.executeNurtureTouch(ctx, e)
	}
}

func (pe *PipelineEngine) executeNurtureTouch(ctx context.Context, e *enrollmentRow) {
	now := time.Now().UTC()

	if e.NurtureCount >= maxNurtureTouches {
		pe.finishEnrollment(ctx, e, domain.EnrollmentParked, "", now, 0, 0)
		log.Printf("[PipelineEngine] Enrollment %s parked after %d nurture touches", e.ID, e.NurtureCount)
		return
	}

	lead, err := loadLead(ctx, pe.db, e.LeadID)
	if err != nil || lead.ChatID == nil || *lead.ChatID == "" {
		return
	}
	settings, err := loadUserSettings(ctx, pe.db, e.UserID)
	if err != nil || !automation.InWorkingHours(settings, now) {
		return
	}
	accountID, connected, err := loadAccount(ctx, pe.db, e.UserID)
	if err != nil || !connected {
		return
	}
	client := pe.clients(accountID)
	profile, _ := loadProfileByID(ctx, pe.db, e.UserID, e.BusinessProfileID)

	conversation := conversationFromLog(&e.Enrollment)
	if msgs := client.ListChatMessages(ctx, *lead.ChatID, 20, false); msgs.Success {
		conversation = conversationFromMessages(msgs.Messages)
	}

	text, err := pe.analyzer.GeneratePhaseMessage(ctx, domain.PhaseNurture, lead, profile, conversation, e.Analysis(), e.MessagesInPhase)
	if err != nil {
		log.Printf("[PipelineEngine] Authoring nurture message for %s: %v", e.ID, err)
		return
	}
	res := client.SendMessage(ctx, *lead.ChatID, text)
	if !res.Success {
		log.Printf("[PipelineEngine] Nurture send for %s failed: %s", e.ID, res.Error)
		return
	}

	due := now.Add(pe.nurtureDelay())
	e.StoreMessage(fmt.Sprintf("nurture-%d", e.NurtureCount+1), text)
	_, err = pe.db.ExecContext(ctx, `
		UPDATE sequence_enrollments SET
			nurture_count = nurture_count + 1,
			messages_in_phase = messages_in_phase + 1,
			total_messages_sent = total_messages_sent + 1,
			messages_sent = $1, next_step_due_at = $2, updated_at = NOW()
		WHERE id = $3
	`, e.MessagesSent, due, e.ID)
	if err != nil {
		log.Printf("[PipelineEngine] Recording nurture touch on %s: %v", e.ID, err)
		return
	}
	log.Printf("[PipelineEngine] Nurture touch %d sent for %s, next %s",
		e.NurtureCount+1, e.ID, due.Format(time.RFC3339))
}

func (pe *PipelineEngine) processSilentProgressions(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-reactivationSilence)
	rows, err := pe.db.QueryContext(ctx, `
		SELECT `+engineEnrollmentCols+`
		FROM sequence_enrollments e
		JOIN sequences s ON s.id = e.sequence_id
		WHERE e.status = 'active'
		  AND s.status = 'active'
		  AND s.sequence_mode = 'smart_pipeline'
		  AND e.current_phase IN ('apertura', 'calificacion', 'valor')
		  AND e.phase_entered_at IS NOT NULL
		  AND e.phase_entered_at <= $1
		  AND (e.last_response_at IS NULL OR e.last_response_at < e.phase_entered_at)
		ORDER BY e.phase_entered_at ASC
		LIMIT $2
	`, cutoff, pe.batchSize)
	if err != nil {
		log.Printf("[PipelineEngine] Fetching silent enrollments: %v", err)
		return
	}
	defer rows.Close()

	var silent []*enrollmentRow
	for rows.Next() {
		e, err := scanEnrollmentRow(rows)
		if err != nil {
			continue
		}
		silent = append(silent, e)
	}
	rows.Close()

	for _, e := range silent {
		pe.executeReactivation(ctx, e)
	}
}

// executeReactivation sends the single allowed re-opener. A second stretch
// of silence moves the enrollment to nurture instead.
func (pe *PipelineEngine) executeReactivation(ctx context.Context, e *enrollmentRow) {
	now := time.Now().UTC()

	if e.ReactivationCount >= maxReactivationAttempts {
		pe.moveToNurture(ctx, e, now)
		return
	}

	lead, err := loadLead(ctx, pe.db, e.LeadID)
	if err != nil || lead.ChatID == nil || *lead.ChatID == "" {
		return
	}
	settings, err := loadUserSettings(ctx, pe.db, e.UserID)
	if err != nil || !automation.InWorkingHours(settings, now) {
		return
	}
	accountID, connected, err := loadAccount(ctx, pe.db, e.UserID)
	if err != nil || !connected {
		return
	}
	client := pe.clients(accountID)
	profile, _ := loadProfileByID(ctx, pe.db, e.UserID, e.BusinessProfileID)

	priorPhase := *e.CurrentPhase
	priorEnteredAt := e.PhaseEnteredAt

	// Claim the attempt before the send so two ticks cannot both fire it.
	res, err2 := pe.db.ExecContext(ctx, `
		UPDATE sequence_enrollments SET
			current_phase = 'reactivacion', phase_entered_at = $1,
			messages_in_phase = 0, reactivation_count = reactivation_count + 1,
			updated_at = NOW()
		WHERE id = $2 AND reactivation_count < $3
	`, now, e.ID, maxReactivationAttempts)
	if err2 != nil {
		log.Printf("[PipelineEngine] Claiming reactivation on %s: %v", e.ID, err2)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return
	}

	conversation := conversationFromLog(&e.Enrollment)
	if msgs := client.ListChatMessages(ctx, *lead.ChatID, 20, false); msgs.Success {
		conversation = conversationFromMessages(msgs.Messages)
	}

	text, aerr := pe.analyzer.GeneratePhaseMessage(ctx, domain.PhaseReactivacion, lead, profile, conversation, e.Analysis(), 0)
	var sendErr string
	if aerr != nil {
		sendErr = aerr.Error()
	} else {
		sres := client.SendMessage(ctx, *lead.ChatID, text)
		if !sres.Success {
			sendErr = sres.Error
		}
	}
	if sendErr != "" {
		// Revert the claim so the attempt is not burned by a failed send.
		_, rerr := pe.db.ExecContext(ctx, `
			UPDATE sequence_enrollments SET
				current_phase = $1, phase_entered_at = $2,
				reactivation_count = reactivation_count - 1, updated_at = NOW()
			WHERE id = $3
		`, priorPhase, priorEnteredAt, e.ID)
		if rerr != nil {
			log.Printf("[PipelineEngine] Reverting reactivation on %s: %v", e.ID, rerr)
		}
		log.Printf("[PipelineEngine] Reactivation for %s failed: %s", e.ID, sendErr)
		return
	}

	e.StoreMessage("reactivacion-1", text)
	_, err2 = pe.db.ExecContext(ctx, `
		UPDATE sequence_enrollments SET
			messages_in_phase = 1, total_messages_sent = total_messages_sent + 1,
			messages_sent = $1, updated_at = NOW()
		WHERE id = $2
	`, e.MessagesSent, e.ID)
	if err2 != nil {
		log.Printf("[PipelineEngine] Recording reactivation on %s: %v", e.ID, err2)
		return
	}
	log.Printf("[PipelineEngine] Reactivation sent for enrollment %s (was %s)", e.ID, priorPhase)
}
