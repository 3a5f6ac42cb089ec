package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/services"
)

type createPaymentRequest struct {
	Tier     string `json:"tier" validate:"required,max=32"`
	Currency string `json:"currency" validate:"required,len=3,alpha"`
	Provider string `json:"provider" validate:"required,oneof=card-gateway crypto-gateway bank-transfer"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}

// ListPricing returns the purchasable tiers
// @Summary Price tiers
// @Tags pricing
// @Produce json
// @Success 200 {object} object{tiers=[]models.PriceTier}
// @Router /pricing [get]
func (h *Handler) ListPricing(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.pricing.ListActive(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, map[string]any{"tiers": tiers})
}

// CreatePayment starts a credit purchase
// @Summary Start a purchase
// @Description Freezes the tier price onto a pending transaction and returns the provider checkout URL when there is one
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createPaymentRequest true "Purchase"
// @Success 201 {object} models.PaymentTransaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /payments [post]
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req createPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	email := req.Email
	if email == "" {
		email = id.Email
	}

	p, err := h.payments.Initiate(r.Context(), services.InitiateRequest{
		AccountID: id.AccountID,
		Email:     email,
		Tier:      strings.ToLower(req.Tier),
		Currency:  req.Currency,
		Provider:  models.Provider(req.Provider),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusCreated, p)
}

// ListPayments lists the caller's purchases
// @Summary List purchases
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of transactions (max 50)"
// @Success 200 {object} object{transactions=[]models.PaymentTransaction}
// @Router /payments [get]
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	payments, err := h.payments.List(r.Context(), id.AccountID, queryInt(r, "limit", 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, map[string]any{"transactions": payments})
}

// GetPayment returns one of the caller's purchases
// @Summary Get purchase
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Success 200 {object} models.PaymentTransaction
// @Failure 404 {object} services.ErrorResponse
// @Router /payments/{txId} [get]
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	p, err := h.payments.Get(r.Context(), chi.URLParam(r, "txId"), id.AccountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, p)
}

// PaymentQR renders the checkout URL of a pending purchase as a QR code
// @Summary Checkout QR code
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Success 200 {object} services.CheckoutQR
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /payments/{txId}/qr [get]
func (h *Handler) PaymentQR(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	qr, err := h.qr.CheckoutQRCode(r.Context(), chi.URLParam(r, "txId"), id.AccountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, qr)
}

// SubmitProof attaches a bank transfer receipt to a pending purchase
// @Summary Submit bank transfer proof
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Param request body services.BankTransferProof true "Proof of payment"
// @Success 200 {object} models.PaymentTransaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /payments/{txId}/proof [post]
func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var proof services.BankTransferProof
	if !h.decode(w, r, &proof) {
		return
	}

	p, err := h.payments.SubmitBankTransferProof(r.Context(), chi.URLParam(r, "txId"), id.AccountID, proof)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, p)
}
