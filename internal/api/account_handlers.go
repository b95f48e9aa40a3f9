package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/linkedin-outreach/internal/domain"
	"github.com/ignite/linkedin-outreach/internal/pkg/httputil"
	"github.com/ignite/linkedin-outreach/internal/service/sequence"
)

// GetMessagingAccount returns the caller's provider account link.
func (h *Handlers) GetMessagingAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.GetByUser(r.Context(), userID(r))
	if err != nil {
		if errors.Is(err, sequence.ErrNotFound) {
			httputil.NotFound(w, "no messaging account connected")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, account)
}

type connectAccountRequest struct {
	ExternalAccountID string `json:"external_account_id"`
}

// ConnectMessagingAccount links (or relinks) the caller's provider account.
// The connection is marked healthy; the account monitor verifies it on its
// next probe.
func (h *Handlers) ConnectMessagingAccount(w http.ResponseWriter, r *http.Request) {
	var req connectAccountRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ExternalAccountID) == "" {
		httputil.BadRequest(w, "external_account_id is required")
		return
	}
	account := &domain.MessagingAccount{
		UserID:            userID(r),
		ExternalAccountID: req.ExternalAccountID,
		Connected:         true,
		ConnectionState:   domain.ConnectionOK,
	}
	if err := h.accounts.Upsert(r.Context(), account); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, account)
}
