package handlers

import (
	"net/http"

	"github.com/sitecraft/backend/internal/services"
)

// GetBalance returns the caller's credit balance
// @Summary Credit balance
// @Tags credits
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{account_id=string,balance=int64}
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /credits/balance [get]
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), id.AccountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"account_id": id.AccountID,
		"balance":    balance,
	})
}

// GetHistory lists the caller's ledger entries, newest first
// @Summary Credit history
// @Tags credits
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of entries (default 20)"
// @Success 200 {object} object{entries=[]models.LedgerEntry}
// @Failure 401 {object} services.ErrorResponse
// @Router /credits/history [get]
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	entries, err := h.ledger.GetHistory(r.Context(), id.AccountID, queryInt(r, "limit", 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Signup admits the caller into the free beta or waitlists them
// @Summary Join the beta
// @Description Creates the caller's account with signup credits while free slots remain; otherwise returns a waiting list position
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 201 {object} services.Admission
// @Success 202 {object} services.Admission
// @Failure 401 {object} services.ErrorResponse
// @Router /accounts/signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	adm, err := h.capacity.Admit(r.Context(), id.AccountID, id.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	switch {
	case !adm.Admitted:
		status = http.StatusAccepted
	case adm.Existing:
		status = http.StatusOK
	}
	services.SendJSON(w, status, adm)
}

// Generate spends one credit on a website generation
// @Summary Generate website content
// @Tags generation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.GenerationRequest true "Prompt"
// @Success 200 {object} services.GenerationResult
// @Failure 402 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /generate [post]
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req services.GenerationRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.generation.Generate(r.Context(), id.AccountID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, res)
}
