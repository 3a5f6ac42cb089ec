package handlers

import (
	"io"
	"net/http"

	"github.com/sitecraft/backend/internal/gateway"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/services"
)

// CardWebhook receives card gateway notifications
// @Summary Card gateway webhook
// @Description Verified with the x-paystack-signature header. Answers 2xx for applied, duplicate and ignored events; 5xx asks the provider to retry.
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} services.SettlementResult
// @Failure 401 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /webhooks/card [post]
func (h *Handler) CardWebhook(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, models.ProviderCard, gateway.CardSignatureHeader)
}

// CryptoWebhook receives crypto gateway IPN callbacks
// @Summary Crypto gateway webhook
// @Description Verified with the x-nowpayments-sig header.
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} services.SettlementResult
// @Failure 401 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /webhooks/crypto [post]
func (h *Handler) CryptoWebhook(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, models.ProviderCrypto, gateway.CryptoSignatureHeader)
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request, provider models.Provider, header string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	res, err := h.settlement.ProcessWebhook(r.Context(), provider, body, r.Header.Get(header))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	services.SendJSON(w, http.StatusOK, res)
}
