package worker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/linkedin-outreach/internal/linkedin"
)

func TestDetectClassicReplies_HaltsSequenceOnReply(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	now := time.Now().UTC()
	chat := "chat-1"
	rows := enrollmentTestRows().AddRow("enr-1", "seq-1", "lead-1", "user-1", "active",
		2, nil, now.Add(48*time.Hour), nil, nil, nil, nil, nil, nil,
		0, 0, 0, 1, now.Add(-72*time.Hour), "classic", "hybrid", nil)

	mock.ExpectQuery(`(?s)FROM sequence_enrollments e.*sequence_mode = 'classic'.*chat_id IS NOT NULL`).
		WillReturnRows(rows)
	mock.ExpectQuery(`(?s)SELECT (.+) FROM leads WHERE id`).WithArgs("lead-1").
		WillReturnRows(leadTestRows("lead-1", "user-1", nil, &chat))
	mock.ExpectQuery(`FROM messaging_accounts`).WithArgs("user-1").
		WillReturnRows(accountTestRows("acct-1"))

	// Enrollment halt, lead handover, and the replied counter move in one
	// transaction.
	mock.ExpectBegin()
	mock.ExpectExec(`(?s)UPDATE sequence_enrollments SET.*status = 'replied'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE leads SET.*status = 'in_conversation'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE sequences SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	client := newFakeClient()
	replied := now.Add(-time.Hour).Format("2006-01-02T15:04:05.000Z")
	client.chatMessages = []linkedin.Message{
		{ID: "m2", Text: "sure, tell me more", IsSender: 0, Timestamp: replied},
		{ID: "m1", Text: "thanks for connecting", IsSender: 1},
	}

	rd := NewReplyDetector(db, client.factory())
	rd.DetectClassicReplies(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDetectClassicReplies_IgnoresPreEnrollmentHistory(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	now := time.Now().UTC()
	chat := "chat-1"
	rows := enrollmentTestRows().AddRow("enr-1", "seq-1", "lead-1", "user-1", "active",
		2, nil, now.Add(48*time.Hour), nil, nil, nil, nil, nil, nil,
		0, 0, 0, 1, now.Add(-time.Hour), "classic", "hybrid", nil)

	mock.ExpectQuery(`(?s)FROM sequence_enrollments e.*sequence_mode = 'classic'`).
		WillReturnRows(rows)
	mock.ExpectQuery(`(?s)SELECT (.+) FROM leads WHERE id`).WithArgs("lead-1").
		WillReturnRows(leadTestRows("lead-1", "user-1", nil, &chat))
	mock.ExpectQuery(`FROM messaging_accounts`).WithArgs("user-1").
		WillReturnRows(accountTestRows("acct-1"))

	client := newFakeClient()
	old := now.Add(-48 * time.Hour).Format("2006-01-02T15:04:05.000Z")
	client.chatMessages = []linkedin.Message{
		{ID: "m1", Text: "hola", IsSender: 0, Timestamp: old},
	}

	rd := NewReplyDetector(db, client.factory())
	rd.DetectClassicReplies(context.Background())

	// No halt: the only inbound message predates the enrollment.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
