package services

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sitecraft/backend/internal/store"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrPricingTierInvalid  = errors.New("pricing tier invalid")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrMalformedPayload    = errors.New("malformed payload")
	ErrTimeout             = errors.New("operation timed out")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAmountMismatch      = errors.New("settled amount does not match transaction")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrGenerationFailed    = errors.New("generation failed")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrForbidden           = errors.New("forbidden")
)

// InsufficientCreditsError carries what the caller needs to act on a rejected deduction.
type InsufficientCreditsError struct {
	AccountID string
	Balance   int64
	Required  int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: account %s has %d, needs %d", e.AccountID, e.Balance, e.Required)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }

// IsRetryable reports infrastructure failures a caller may retry (with an
// idempotency key for mutations).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrProviderUnavailable)
}

// IsClientError reports errors caused by the request itself.
func IsClientError(err error) bool {
	status := HTTPStatus(err)
	return status >= 400 && status < 500
}

// HTTPStatus maps the error taxonomy onto response codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrTransactionNotFound), errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPricingTierInvalid), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAmountMismatch):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// SendServiceError writes err using the shared error envelope. Messages are
// deliberately coarse for security and provider failures.
func SendServiceError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)

	var insufficient *InsufficientCreditsError
	switch {
	case errors.As(err, &insufficient):
		sendDetailedError(w, "Not enough credits for this request", status, map[string]string{
			"balance":  strconv.FormatInt(insufficient.Balance, 10),
			"required": strconv.FormatInt(insufficient.Required, 10),
			"purchase": "/api/v1/pricing",
		})
	case errors.Is(err, ErrInvalidSignature):
		SendErrorResponse(w, "Invalid signature", status, nil)
	case errors.Is(err, ErrProviderUnavailable):
		SendErrorResponse(w, "Payment could not be completed", status, nil)
	case status == http.StatusInternalServerError:
		SendErrorResponse(w, "Internal server error", status, nil)
	default:
		SendErrorResponse(w, err.Error(), status, nil)
	}
}

// storeErr lifts store and context failures into the service taxonomy.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case store.IsTimeout(err):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, store.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
