package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/services"
)

type failPaymentRequest struct {
	Reason string `json:"reason" validate:"required,max=200"`
}

type settlePaymentRequest struct {
	BankReference string `json:"bank_reference" validate:"omitempty,max=64"`
}

type updatePricingRequest struct {
	Credits    int64           `json:"credits" validate:"required,gt=0"`
	PriceUSD   decimal.Decimal `json:"price_usd"`
	PriceLocal decimal.Decimal `json:"price_local"`
	IsActive   bool            `json:"is_active"`
}

type updateCapacityRequest struct {
	MaxFreeUsers int `json:"max_free_users" validate:"gte=0"`
}

// FailPayment marks a pending purchase failed
// @Summary Fail purchase
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Param request body failPaymentRequest true "Reason"
// @Success 200 {object} models.PaymentTransaction
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/payments/{txId}/fail [post]
func (h *Handler) FailPayment(w http.ResponseWriter, r *http.Request) {
	var req failPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.payments.MarkFailed(r.Context(), chi.URLParam(r, "txId"), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, p)
}

// RefundPayment refunds a completed purchase and claws back its credits
// @Summary Refund purchase
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Success 200 {object} services.RefundResult
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/payments/{txId}/refund [post]
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.payments.MarkRefunded(r.Context(), chi.URLParam(r, "txId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, res)
}

// SettlePayment confirms a bank transfer and grants its credits
// @Summary Settle bank transfer
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Param request body settlePaymentRequest true "Bank reference (defaults to the submitted proof)"
// @Success 200 {object} services.SettlementResult
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/payments/{txId}/settle [post]
func (h *Handler) SettlePayment(w http.ResponseWriter, r *http.Request) {
	var req settlePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.settlement.SettleBankTransfer(r.Context(), chi.URLParam(r, "txId"), req.BankReference)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, res)
}

// UpdatePricing creates or replaces a tier
// @Summary Update price tier
// @Description Pending purchases keep the price frozen when they were started
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tier path string true "Tier name"
// @Param request body updatePricingRequest true "Tier"
// @Success 200 {object} models.PriceTier
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/pricing/{tier} [put]
func (h *Handler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	var req updatePricingRequest
	if !h.decode(w, r, &req) {
		return
	}

	pt := models.PriceTier{
		Tier:       strings.ToLower(chi.URLParam(r, "tier")),
		Credits:    req.Credits,
		PriceUSD:   req.PriceUSD,
		PriceLocal: req.PriceLocal,
		IsActive:   req.IsActive,
	}
	if err := h.pricing.Update(r.Context(), pt); err != nil {
		h.fail(w, r, err)
		return
	}

	saved, err := h.pricing.Get(r.Context(), pt.Tier)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, saved)
}

// GetCapacity reports beta slot usage
// @Summary Beta capacity
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.BetaCapacity
// @Router /admin/capacity [get]
func (h *Handler) GetCapacity(w http.ResponseWriter, r *http.Request) {
	c, err := h.capacity.Status(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, c)
}

// UpdateCapacity changes the number of free beta slots
// @Summary Set beta capacity
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body updateCapacityRequest true "Limit"
// @Success 200 {object} models.BetaCapacity
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/capacity [put]
func (h *Handler) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	var req updateCapacityRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.capacity.SetLimit(r.Context(), req.MaxFreeUsers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, c)
}

// AccountAudit replays an account's ledger against its balance
// @Summary Ledger audit
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Success 200 {object} services.ReplayReport
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/accounts/{accountId}/audit [get]
func (h *Handler) AccountAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Replay(r.Context(), chi.URLParam(r, "accountId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, report)
}

// ListAnomalies returns settlement anomalies waiting for manual reconciliation
// @Summary Settlement anomalies
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of records (default 100)"
// @Success 200 {object} object{anomalies=[]object}
// @Router /admin/anomalies [get]
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	items, err := h.settlement.PendingAnomalies(r.Context(), int64(queryInt(r, "limit", 100)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, map[string]any{"anomalies": items})
}
