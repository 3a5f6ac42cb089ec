package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/sitecraft/backend/internal/logging"
	"github.com/sitecraft/backend/internal/middleware"
	"github.com/sitecraft/backend/internal/services"
)

const maxBodyBytes = 1_048_576 // 1 MB

// Handler serves the HTTP API on top of the service layer.
type Handler struct {
	ledger     *services.CreditLedger
	pricing    *services.PricingService
	payments   *services.PaymentService
	settlement *services.SettlementService
	capacity   *services.CapacityService
	generation *services.GenerationService
	qr         *services.QRService
	accounts   *services.AccountService
	validator  *services.ValidationHelper
	log        zerolog.Logger
}

type Services struct {
	Ledger     *services.CreditLedger
	Pricing    *services.PricingService
	Payments   *services.PaymentService
	Settlement *services.SettlementService
	Capacity   *services.CapacityService
	Generation *services.GenerationService
	QR         *services.QRService
	Accounts   *services.AccountService
}

func NewHandler(svc Services, log zerolog.Logger) *Handler {
	return &Handler{
		ledger:     svc.Ledger,
		pricing:    svc.Pricing,
		payments:   svc.Payments,
		settlement: svc.Settlement,
		capacity:   svc.Capacity,
		generation: svc.Generation,
		qr:         svc.QR,
		accounts:   svc.Accounts,
		validator:  services.NewValidationHelper(),
		log:        logging.Component(log, "http"),
	}
}

// decode reads exactly one JSON object into dst and validates it. On failure the
// error response has already been written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// caller returns the authenticated identity or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (*middleware.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
	}
	return id, ok
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// fail writes err using the service error taxonomy and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := services.HTTPStatus(err); status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	services.SendServiceError(w, err)
}
