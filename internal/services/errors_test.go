package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sitecraft/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&InsufficientCreditsError{AccountID: "a", Balance: 0, Required: 1}, http.StatusPaymentRequired},
		{ErrInvalidSignature, http.StatusUnauthorized},
		{fmt.Errorf("lookup: %w", ErrTransactionNotFound), http.StatusNotFound},
		{ErrPricingTierInvalid, http.StatusBadRequest},
		{ErrTimeout, http.StatusServiceUnavailable},
		{ErrStoreUnavailable, http.StatusServiceUnavailable},
		{ErrAmountMismatch, http.StatusConflict},
		{ErrGenerationFailed, http.StatusBadGateway},
		{ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("grant: %w", ErrTimeout)))
	assert.True(t, IsRetryable(ErrStoreUnavailable))
	assert.False(t, IsRetryable(ErrInsufficientCredits))

	assert.True(t, IsClientError(ErrInvalidSignature))
	assert.True(t, IsClientError(&InsufficientCreditsError{}))
	assert.False(t, IsClientError(ErrStoreUnavailable))
}

func TestStoreErr(t *testing.T) {
	assert.ErrorIs(t, storeErr(context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, storeErr(fmt.Errorf("%w: conn reset", store.ErrUnavailable)), ErrStoreUnavailable)
	assert.Equal(t, store.ErrNotFound, storeErr(store.ErrNotFound))
	assert.NoError(t, storeErr(nil))
}

func TestSendServiceError(t *testing.T) {
	t.Run("insufficient credits is actionable", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendServiceError(w, &InsufficientCreditsError{AccountID: "acct-1", Balance: 0, Required: 1})

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "0", resp.Details["balance"])
		assert.Equal(t, "1", resp.Details["required"])
		assert.Equal(t, "/api/v1/pricing", resp.Details["purchase"])
	})

	t.Run("internal errors are not leaked", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendServiceError(w, errors.New("pq: relation does not exist"))

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Internal server error", resp.Error)
	})

	t.Run("provider failure is generic", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendServiceError(w, fmt.Errorf("%w: card gateway returned 500", ErrProviderUnavailable))

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "Payment could not be completed", resp.Error)
	})
}
