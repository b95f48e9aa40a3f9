package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTestRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	h := NewHandlers(db, nil, nil)
	return SetupRoutes(h), mock, func() { db.Close() }
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	router, mock, cleanup := newTestRouter(t)
	defer cleanup()

	mock.ExpectPing()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestAPIRequiresUserIdentity(t *testing.T) {
	router, _, cleanup := newTestRouter(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/sequences/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateSequence_Invalid(t *testing.T) {
	router, _, cleanup := newTestRouter(t)
	defer cleanup()

	rec := doRequest(t, router, http.MethodPost, "/api/sequences/", `{"name":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateLead_RequiresName(t *testing.T) {
	router, _, cleanup := newTestRouter(t)
	defer cleanup()

	rec := doRequest(t, router, http.MethodPost, "/api/leads/", `{"full_name":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEnrollLeads_RequiresLeadIDs(t *testing.T) {
	router, _, cleanup := newTestRouter(t)
	defer cleanup()

	rec := doRequest(t, router, http.MethodPost, "/api/sequences/seq-1/enroll", `{"lead_ids":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestScoreLead_DisabledAnalyzer(t *testing.T) {
	router, _, cleanup := newTestRouter(t)
	defer cleanup()

	rec := doRequest(t, router, http.MethodPost, "/api/leads/lead-1/score", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestSchedulerStatus_NoScheduler(t *testing.T) {
	router, _, cleanup := newTestRouter(t)
	defer cleanup()

	rec := doRequest(t, router, http.MethodGet, "/api/scheduler/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["running"] != false {
		t.Errorf("running = %v, want false", body["running"])
	}
}

func TestListInvitationLogs(t *testing.T) {
	router, mock, cleanup := newTestRouter(t)
	defer cleanup()

	cols := []string{"id", "user_id", "lead_id", "lead_name", "company_name",
		"campaign_id", "campaign_name", "success", "status_code", "error_message",
		"message_preview", "sent_at"}
	mock.ExpectQuery("SELECT .+ FROM invitation_logs").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("log-1", "user-1", nil, "Jane Smith", nil, nil, nil, true, 201, nil, "Hi Jane", time.Now()))

	rec := doRequest(t, router, http.MethodGet, "/api/automation/logs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestGetMessagingAccount_NotFound(t *testing.T) {
	router, mock, cleanup := newTestRouter(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .+ FROM messaging_accounts").
		WillReturnError(sql.ErrNoRows)

	rec := doRequest(t, router, http.MethodGet, "/api/account/", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}
