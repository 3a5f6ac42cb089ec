package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sitecraft/backend/internal/gateway"
	"github.com/sitecraft/backend/internal/logging"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/store"
)

const (
	FailureCheckoutInit = "checkout_init_failed"

	defaultPaymentListSize = 50
)

type InitiateRequest struct {
	AccountID string
	Email     string
	Tier      string
	Currency  string
	Provider  models.Provider
}

// BankTransferProof is what a customer submits after paying by bank transfer.
type BankTransferProof struct {
	BankReference string          `json:"bank_reference" validate:"required,max=64"`
	SenderName    string          `json:"sender_name" validate:"required,max=140"`
	AmountSent    decimal.Decimal `json:"amount_sent"`
	PaidAt        time.Time       `json:"paid_at" validate:"required"`
	ProofURL      string          `json:"proof_url,omitempty" validate:"omitempty,url"`
}

type RefundResult struct {
	Transaction *models.PaymentTransaction `json:"transaction"`
	ClawedBack  int64                      `json:"clawed_back"`
	Shortfall   int64                      `json:"shortfall"`
	NewBalance  int64                      `json:"new_balance"`
}

// PaymentService tracks purchase attempts from initiation to a terminal status.
// Status changes always go through a locked row inside a store transaction.
type PaymentService struct {
	store     store.Store
	ledger    *CreditLedger
	pricing   *PricingService
	gateways  map[models.Provider]gateway.Gateway
	audit     AuditLogger
	log       zerolog.Logger
	validator *ValidationHelper
	publicURL string
}

func NewPaymentService(st store.Store, ledger *CreditLedger, pricing *PricingService, audit AuditLogger, log zerolog.Logger, publicURL string, gateways ...gateway.Gateway) *PaymentService {
	s := &PaymentService{
		store:     st,
		ledger:    ledger,
		pricing:   pricing,
		gateways:  make(map[models.Provider]gateway.Gateway),
		audit:     audit,
		log:       logging.Component(log, "payments"),
		validator: NewValidationHelper(),
		publicURL: strings.TrimRight(publicURL, "/"),
	}
	for _, g := range gateways {
		s.gateways[g.Provider()] = g
	}
	return s
}

// Gateway returns the configured gateway for provider.
func (s *PaymentService) Gateway(provider models.Provider) (gateway.Gateway, bool) {
	g, ok := s.gateways[provider]
	return g, ok
}

// Initiate freezes the quote onto a pending transaction, persists it, then asks
// the provider for a checkout. Bank transfers stop after persisting.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*models.PaymentTransaction, error) {
	if !req.Provider.Valid() {
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrMalformedPayload, req.Provider)
	}
	gw, hasGateway := s.gateways[req.Provider]
	if req.Provider != models.ProviderBankTransfer && !hasGateway {
		return nil, fmt.Errorf("%w: %s is not configured", ErrProviderUnavailable, req.Provider)
	}

	quote, err := s.pricing.Quote(ctx, req.Tier, req.Currency)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetAccount(ctx, req.AccountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, req.AccountID)
		}
		return nil, storeErr(err)
	}

	p := &models.PaymentTransaction{
		ID:             uuid.NewString(),
		AccountID:      req.AccountID,
		Tier:           quote.Tier,
		Amount:         quote.Amount,
		Currency:       quote.Currency,
		Status:         models.PaymentPending,
		Provider:       req.Provider,
		CreditsGranted: quote.Credits,
		Metadata:       models.Metadata{"email": req.Email},
	}
	err = s.ledger.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreatePayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("transaction_id", p.ID).
		Str("account_id", p.AccountID).
		Str("tier", p.Tier).
		Str("provider", string(p.Provider)).
		Msg("payment initiated")

	if !hasGateway {
		return p, nil
	}

	checkout, err := gw.InitCheckout(ctx, gateway.CheckoutRequest{
		Reference:   p.ID,
		Email:       req.Email,
		Amount:      p.Amount,
		Currency:    p.Currency,
		CallbackURL: s.callbackURL(p),
		Description: fmt.Sprintf("%d website credits (%s)", p.CreditsGranted, p.Tier),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("transaction_id", p.ID).Msg("checkout init failed")
		if _, markErr := s.MarkFailed(ctx, p.ID, FailureCheckoutInit); markErr != nil {
			s.audit.LogError(p.ID, p.AccountID, markErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return s.AttachCheckout(ctx, p.ID, checkout.ProviderReference, checkout.CheckoutURL)
}

func (s *PaymentService) callbackURL(p *models.PaymentTransaction) string {
	switch p.Provider {
	case models.ProviderCrypto:
		return s.publicURL + "/api/v1/webhooks/crypto"
	default:
		return s.publicURL + "/billing/callback?reference=" + p.ID
	}
}

// AttachCheckout records the provider's reference and hosted checkout URL.
func (s *PaymentService) AttachCheckout(ctx context.Context, txID, providerReference, checkoutURL string) (*models.PaymentTransaction, error) {
	var out *models.PaymentTransaction
	err := s.ledger.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := lockPayment(ctx, tx, txID)
		if err != nil {
			return err
		}
		if providerReference != "" {
			p.ProviderReference = &providerReference
		}
		p.CheckoutURL = checkoutURL
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// MarkFailed moves a pending transaction to failed. Failing an already failed
// transaction is a no-op; completed and refunded ones cannot fail.
func (s *PaymentService) MarkFailed(ctx context.Context, txID, reason string) (*models.PaymentTransaction, error) {
	var out *models.PaymentTransaction
	err := s.ledger.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := lockPayment(ctx, tx, txID)
		if err != nil {
			return err
		}
		if err := markFailedTx(ctx, tx, p, reason); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err == nil {
		s.log.Info().Str("transaction_id", txID).Str("reason", reason).Msg("payment marked failed")
	}
	return out, err
}

func markFailedTx(ctx context.Context, tx store.Tx, p *models.PaymentTransaction, reason string) error {
	switch p.Status {
	case models.PaymentFailed:
		return nil
	case models.PaymentPending:
	default:
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, p.Status)
	}
	if reason == "" {
		reason = "unspecified"
	}
	p.Status = models.PaymentFailed
	p.FailureReason = reason
	return tx.UpdatePayment(ctx, p)
}

// MarkRefunded reverses a completed purchase. Credits are clawed back up to the
// current balance and any shortfall is recorded on the transaction; the balance
// never goes negative.
func (s *PaymentService) MarkRefunded(ctx context.Context, txID string) (*RefundResult, error) {
	result := &RefundResult{}
	var m Mutation
	var res *LedgerResult

	err := s.ledger.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := lockPayment(ctx, tx, txID)
		if err != nil {
			return err
		}
		result.Transaction = p

		switch p.Status {
		case models.PaymentRefunded:
			acct, err := tx.LockAccount(ctx, p.AccountID)
			if err != nil {
				return err
			}
			result.ClawedBack = metaInt(p.Metadata["refund_clawed_back"])
			result.Shortfall = metaInt(p.Metadata["refund_shortfall"])
			result.NewBalance = acct.Balance
			return nil
		case models.PaymentCompleted:
		default:
			return fmt.Errorf("%w: %s -> refunded", ErrInvalidTransition, p.Status)
		}

		m = Mutation{
			AccountID:      p.AccountID,
			Amount:         p.CreditsGranted,
			Reason:         models.ReasonRefundPrefix + p.ID,
			Metadata:       models.Metadata{"transaction_id": p.ID, "provider": string(p.Provider)},
			IdempotencyKey: models.ReasonRefundPrefix + p.ID,
		}
		res, err = s.ledger.DeductUpToTx(ctx, tx, m)
		if err != nil {
			return err
		}

		result.ClawedBack = -res.Delta
		result.Shortfall = p.CreditsGranted - result.ClawedBack
		result.NewBalance = res.NewBalance

		p.Metadata = p.Metadata.Clone()
		p.Metadata["refund_clawed_back"] = result.ClawedBack
		p.Metadata["refund_shortfall"] = result.Shortfall
		p.Status = models.PaymentRefunded
		return tx.UpdatePayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	if res != nil {
		s.ledger.Applied(m, res)
		s.audit.LogRefund(txID, result.Transaction.AccountID, result.ClawedBack, result.Shortfall)
		s.log.Info().
			Str("transaction_id", txID).
			Int64("clawed_back", result.ClawedBack).
			Int64("shortfall", result.Shortfall).
			Msg("payment refunded")
	}
	return result, nil
}

// Get returns the transaction if it belongs to accountID.
func (s *PaymentService) Get(ctx context.Context, txID, accountID string) (*models.PaymentTransaction, error) {
	p, err := s.store.GetPayment(ctx, txID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && p.AccountID != accountID) {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
	}
	return p, storeErr(err)
}

func (s *PaymentService) List(ctx context.Context, accountID string, limit int) ([]models.PaymentTransaction, error) {
	if limit <= 0 || limit > defaultPaymentListSize {
		limit = defaultPaymentListSize
	}
	payments, err := s.store.ListPayments(ctx, accountID, limit)
	return payments, storeErr(err)
}

// SubmitBankTransferProof attaches the customer's proof of payment to a pending
// bank transfer. An operator settles it afterwards.
func (s *PaymentService) SubmitBankTransferProof(ctx context.Context, txID, accountID string, proof BankTransferProof) (*models.PaymentTransaction, error) {
	if err := s.validator.ValidateStruct(&proof); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var out *models.PaymentTransaction
	err := s.ledger.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := lockPayment(ctx, tx, txID)
		if err != nil {
			return err
		}
		if p.AccountID != accountID {
			return fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
		}
		if p.Provider != models.ProviderBankTransfer {
			return fmt.Errorf("%w: proof only applies to bank transfers", ErrInvalidTransition)
		}
		if p.Status != models.PaymentPending {
			return fmt.Errorf("%w: transaction is %s", ErrInvalidTransition, p.Status)
		}

		p.Metadata = p.Metadata.Clone()
		p.Metadata["bank_proof"] = map[string]any{
			"bank_reference": proof.BankReference,
			"sender_name":    proof.SenderName,
			"amount_sent":    proof.AmountSent.String(),
			"paid_at":        proof.PaidAt.UTC().Format(time.RFC3339),
			"proof_url":      proof.ProofURL,
			"submitted_at":   time.Now().UTC().Format(time.RFC3339),
		}
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func lockPayment(ctx context.Context, tx store.Tx, txID string) (*models.PaymentTransaction, error) {
	p, err := tx.LockPayment(ctx, txID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
	}
	return p, err
}

// metaInt reads a number stored in metadata, which comes back as float64 after a
// JSONB round trip.
func metaInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}
