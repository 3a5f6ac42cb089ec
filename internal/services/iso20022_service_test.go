package services

import (
	"strings"
	"testing"
	"time"

	"github.com/sitecraft/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestISO20022Service_CreatePacs002(t *testing.T) {
	service := NewISO20022Service()
	p := &models.PaymentTransaction{ID: "3f0c8a8e-8b7e-4c51-9f7e-0d7a6c1b2a90", Provider: models.ProviderBankTransfer}

	t.Run("uses bank reference as end-to-end id", func(t *testing.T) {
		doc := service.CreatePacs002(p, "GTB-TRF-2291", StatusSettlementCompleted)

		require.Len(t, doc.TxInfAndSts, 1)
		tx := doc.TxInfAndSts[0]
		assert.Equal(t, "GTB-TRF-2291", string(*tx.OrgnlEndToEndId))
		assert.Equal(t, "ACSC", string(*tx.TxSts))
		assert.LessOrEqual(t, len(string(*tx.OrgnlTxId)), 35)
	})

	t.Run("falls back to transaction id", func(t *testing.T) {
		doc := service.CreatePacs002(p, "", StatusRejected)
		assert.Equal(t, p.ID[:35], string(*doc.TxInfAndSts[0].OrgnlEndToEndId))
		assert.Equal(t, "RJCT", string(*doc.TxInfAndSts[0].TxSts))
	})
}

func TestISO20022Service_SettlementConfirmation(t *testing.T) {
	service := NewISO20022Service()
	service.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	xmlDoc, err := service.SettlementConfirmation(&models.PaymentTransaction{ID: "tx-1"}, "BANK-REF-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(xmlDoc, "<?xml"))
	assert.Contains(t, xmlDoc, "ACSC")
	assert.Contains(t, xmlDoc, "BANK-REF-1")
	assert.Contains(t, xmlDoc, "tx-1")
}
