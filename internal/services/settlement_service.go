package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sitecraft/backend/internal/gateway"
	"github.com/sitecraft/backend/internal/logging"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/store"
)

type SettlementOutcome string

const (
	OutcomeSettled      SettlementOutcome = "settled"
	OutcomeDuplicate    SettlementOutcome = "duplicate"
	OutcomeFailed       SettlementOutcome = "failed_recorded"
	OutcomeAcknowledged SettlementOutcome = "acknowledged"
)

const (
	AnomalyQueueKey = "settlement:anomalies"

	anomalyNotFound      = "transaction_not_found"
	anomalyAmount        = "amount_mismatch"
	anomalyAfterRefund   = "success_after_refund"
	anomalyFailAfterPaid = "failure_after_completion"

	settledMarkerTTL = 7 * 24 * time.Hour
)

type SettlementResult struct {
	Outcome       SettlementOutcome `json:"outcome"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Credits       int64             `json:"credits,omitempty"`
	NewBalance    int64             `json:"new_balance,omitempty"`
}

// SettlementService turns provider confirmations into exactly one grant per
// transaction. The status flip and the grant share one store transaction, and the
// grant is keyed by the transaction id.
type SettlementService struct {
	ledger   *CreditLedger
	payments *PaymentService
	iso      *ISO20022Service
	redis    *redis.Client
	audit    AuditLogger
	log      zerolog.Logger
}

func NewSettlementService(ledger *CreditLedger, payments *PaymentService, iso *ISO20022Service, rdb *redis.Client, audit AuditLogger, log zerolog.Logger) *SettlementService {
	return &SettlementService{
		ledger:   ledger,
		payments: payments,
		iso:      iso,
		redis:    rdb,
		audit:    audit,
		log:      logging.Component(log, "settlement"),
	}
}

// settleRequest is one confirmed payment, from a webhook or an operator.
type settleRequest struct {
	provider          models.Provider
	reference         string
	providerReference string
	amount            *decimal.Decimal
	currency          string
	payload           func(p *models.PaymentTransaction) (string, error)
	source            string
}

// ProcessWebhook authenticates, classifies and applies one provider notification.
// Errors from unauthenticated or malformed input are terminal; store errors are
// retryable and should surface as 5xx so the provider redelivers.
func (s *SettlementService) ProcessWebhook(ctx context.Context, provider models.Provider, body []byte, signature string) (*SettlementResult, error) {
	gw, ok := s.payments.Gateway(provider)
	if !ok {
		return nil, ErrInvalidSignature
	}
	if err := gw.VerifySignature(body, signature); err != nil {
		s.log.Warn().Str("provider", string(provider)).Msg("webhook signature rejected")
		return nil, ErrInvalidSignature
	}

	ev, err := gw.ParseEvent(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	logger := s.log.With().
		Str("provider", string(provider)).
		Str("event", ev.Type).
		Str("reference", ev.Reference).
		Logger()

	switch ev.Kind {
	case gateway.EventIgnored:
		logger.Debug().Msg("webhook acknowledged without effect")
		return &SettlementResult{Outcome: OutcomeAcknowledged}, nil
	case gateway.EventFailed:
		return s.recordFailure(ctx, provider, ev)
	}

	if s.seenSettled(ctx, provider, ev.Reference) {
		logger.Info().Msg("duplicate webhook answered from settled marker")
		return &SettlementResult{Outcome: OutcomeDuplicate}, nil
	}

	amount := ev.Amount
	res, err := s.settle(ctx, settleRequest{
		provider:          provider,
		reference:         ev.Reference,
		providerReference: ev.ProviderReference,
		amount:            &amount,
		currency:          ev.Currency,
		payload:           func(*models.PaymentTransaction) (string, error) { return string(body), nil },
		source:            "webhook",
	})
	if err != nil {
		if IsClientError(err) {
			logger.Warn().Err(err).Msg("webhook not applied")
		} else {
			logger.Error().Err(err).Msg("webhook settlement failed, provider should retry")
		}
		return nil, err
	}
	return res, nil
}

// SettleBankTransfer is the operator's confirmation that a bank transfer arrived.
// The stored confirmation is a pacs.002 ACSC report.
func (s *SettlementService) SettleBankTransfer(ctx context.Context, txID, bankReference string) (*SettlementResult, error) {
	return s.settle(ctx, settleRequest{
		provider:  models.ProviderBankTransfer,
		reference: txID,
		payload: func(p *models.PaymentTransaction) (string, error) {
			ref := bankReference
			if ref == "" {
				if proof, ok := p.Metadata["bank_proof"].(map[string]any); ok {
					ref, _ = proof["bank_reference"].(string)
				}
			}
			return s.iso.SettlementConfirmation(p, ref)
		},
		providerReference: bankReference,
		source:            "manual",
	})
}

func (s *SettlementService) settle(ctx context.Context, req settleRequest) (*SettlementResult, error) {
	result := &SettlementResult{}
	var grant Mutation
	var granted *LedgerResult
	var anomaly string
	var anomalyDetails map[string]any

	err := s.ledger.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.LockPaymentByReference(ctx, req.provider, req.reference)
		if errors.Is(err, store.ErrNotFound) {
			anomaly = anomalyNotFound
			return fmt.Errorf("%w: %s reference %s", ErrTransactionNotFound, req.provider, req.reference)
		}
		if err != nil {
			return err
		}
		result.TransactionID = p.ID

		switch p.Status {
		case models.PaymentCompleted:
			result.Outcome = OutcomeDuplicate
			return nil
		case models.PaymentRefunded:
			anomaly = anomalyAfterRefund
			return fmt.Errorf("%w: %s was refunded", ErrInvalidTransition, p.ID)
		}

		if req.amount != nil && (!req.amount.Equal(p.Amount) || req.currency != p.Currency) {
			anomaly = anomalyAmount
			anomalyDetails = map[string]any{
				"expected_amount":   p.Amount.String(),
				"expected_currency": p.Currency,
				"received_amount":   req.amount.String(),
				"received_currency": req.currency,
			}
			return fmt.Errorf("%w: expected %s %s", ErrAmountMismatch, p.Amount, p.Currency)
		}

		payload, err := req.payload(p)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		p.Metadata = p.Metadata.Clone()
		if req.providerReference != "" {
			if p.ProviderReference != nil && *p.ProviderReference != req.providerReference {
				p.Metadata["checkout_reference"] = *p.ProviderReference
			}
			ref := req.providerReference
			p.ProviderReference = &ref
		}
		p.Metadata["settled_via"] = req.source
		p.Status = models.PaymentCompleted
		p.CompletedAt = &now
		p.ConfirmationPayload = payload
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}

		grant = Mutation{
			AccountID:      p.AccountID,
			Amount:         p.CreditsGranted,
			Reason:         models.ReasonPaymentPrefix + p.Tier,
			Metadata:       models.Metadata{"transaction_id": p.ID, "provider": string(p.Provider), "provider_reference": req.providerReference},
			IdempotencyKey: p.ID,
		}
		granted, err = s.ledger.GrantTx(ctx, tx, grant)
		if err != nil {
			return err
		}

		result.Outcome = OutcomeSettled
		result.Credits = p.CreditsGranted
		result.NewBalance = granted.NewBalance
		return nil
	})

	if anomaly != "" {
		s.reportAnomaly(ctx, req, anomaly, anomalyDetails)
	}
	if err != nil {
		if !IsClientError(err) {
			s.audit.LogError(req.reference, "", err)
		}
		return nil, err
	}

	switch result.Outcome {
	case OutcomeSettled:
		s.ledger.Applied(grant, granted)
		s.audit.LogSettlement(result.TransactionID, grant.AccountID, result.Credits, "COMPLETED")
		s.log.Info().
			Str("transaction_id", result.TransactionID).
			Str("provider", string(req.provider)).
			Int64("credits", result.Credits).
			Bool("replayed_grant", granted.Replayed).
			Msg("payment settled")
	case OutcomeDuplicate:
		s.log.Info().Str("transaction_id", result.TransactionID).Msg("duplicate settlement ignored")
	}
	s.markSettled(ctx, req.provider, req.reference)
	return result, nil
}

func (s *SettlementService) recordFailure(ctx context.Context, provider models.Provider, ev *gateway.Event) (*SettlementResult, error) {
	result := &SettlementResult{Outcome: OutcomeFailed}
	var anomaly string

	err := s.ledger.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.LockPaymentByReference(ctx, provider, ev.Reference)
		if errors.Is(err, store.ErrNotFound) {
			anomaly = anomalyNotFound
			return fmt.Errorf("%w: %s reference %s", ErrTransactionNotFound, provider, ev.Reference)
		}
		if err != nil {
			return err
		}
		result.TransactionID = p.ID

		if p.Status == models.PaymentCompleted || p.Status == models.PaymentRefunded {
			anomaly = anomalyFailAfterPaid
			result.Outcome = OutcomeAcknowledged
			return nil
		}
		return markFailedTx(ctx, tx, p, "provider:"+ev.Status)
	})

	req := settleRequest{provider: provider, reference: ev.Reference}
	if anomaly != "" {
		s.reportAnomaly(ctx, req, anomaly, map[string]any{"event": ev.Type})
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func settledMarkerKey(provider models.Provider, reference string) string {
	return fmt.Sprintf("webhook:settled:%s:%s", provider, reference)
}

// seenSettled is an advisory fast path; a miss or a redis error falls through to
// the store, which stays authoritative.
func (s *SettlementService) seenSettled(ctx context.Context, provider models.Provider, reference string) bool {
	if s.redis == nil || reference == "" {
		return false
	}
	n, err := s.redis.Exists(ctx, settledMarkerKey(provider, reference)).Result()
	if err != nil {
		s.log.Debug().Err(err).Msg("settled marker lookup failed")
		return false
	}
	return n > 0
}

func (s *SettlementService) markSettled(ctx context.Context, provider models.Provider, reference string) {
	if s.redis == nil || reference == "" {
		return
	}
	if err := s.redis.Set(context.WithoutCancel(ctx), settledMarkerKey(provider, reference), "1", settledMarkerTTL).Err(); err != nil {
		s.log.Debug().Err(err).Msg("settled marker write failed")
	}
}

type anomalyRecord struct {
	Kind       string         `json:"kind"`
	Provider   string         `json:"provider"`
	Reference  string         `json:"reference"`
	Details    map[string]any `json:"details,omitempty"`
	DetectedAt time.Time      `json:"detected_at"`
}

// reportAnomaly audits and enqueues a settlement nobody can apply automatically.
func (s *SettlementService) reportAnomaly(ctx context.Context, req settleRequest, kind string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["provider"] = string(req.provider)
	details["reference"] = req.reference
	s.audit.LogAnomaly(req.reference, kind, details)

	if s.redis == nil {
		return
	}
	data, err := json.Marshal(anomalyRecord{
		Kind:       kind,
		Provider:   string(req.provider),
		Reference:  req.reference,
		Details:    details,
		DetectedAt: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.redis.RPush(context.WithoutCancel(ctx), AnomalyQueueKey, data).Err(); err != nil {
		s.log.Error().Err(err).Str("kind", kind).Msg("failed to enqueue settlement anomaly")
	}
}

// PendingAnomalies returns up to limit queued anomalies, oldest first.
func (s *SettlementService) PendingAnomalies(ctx context.Context, limit int64) ([]json.RawMessage, error) {
	if s.redis == nil {
		return []json.RawMessage{}, nil
	}
	if limit <= 0 {
		limit = 100
	}
	items, err := s.redis.LRange(ctx, AnomalyQueueKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item))
	}
	return out, nil
}
