package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sitecraft/backend/internal/gateway"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/store"
	"github.com/sitecraft/backend/internal/store/memory"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) LogLedgerEntry(entryID int64, accountID string, delta, resultingBalance int64, reason string) {
	m.Called(entryID, accountID, delta, resultingBalance, reason)
}

func (m *MockAuditLogger) LogSettlement(txID, accountID string, credits int64, status string) {
	m.Called(txID, accountID, credits, status)
}

func (m *MockAuditLogger) LogRefund(txID, accountID string, clawedBack, shortfall int64) {
	m.Called(txID, accountID, clawedBack, shortfall)
}

func (m *MockAuditLogger) LogAnomaly(txID, kind string, details map[string]any) {
	m.Called(txID, kind, details)
}

func (m *MockAuditLogger) LogError(txID, accountID string, err error) {
	m.Called(txID, accountID, err)
}

// newQuietAudit accepts any audit call; tests that care assert on m.Calls.
func newQuietAudit() *MockAuditLogger {
	m := &MockAuditLogger{}
	m.On("LogLedgerEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogSettlement", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogRefund", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogAnomaly", mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogError", mock.Anything, mock.Anything, mock.Anything).Maybe()
	return m
}

// calledWith counts audit calls for method whose second argument equals arg.
func calledWith(m *MockAuditLogger, method string, arg any) int {
	n := 0
	for _, c := range m.Calls {
		if c.Method == method && len(c.Arguments) > 1 && c.Arguments.Get(1) == arg {
			n++
		}
	}
	return n
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Provider() models.Provider {
	return m.Called().Get(0).(models.Provider)
}

func (m *MockGateway) InitCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Checkout), args.Error(1)
}

func (m *MockGateway) VerifySignature(body []byte, header string) error {
	return m.Called(body, header).Error(0)
}

func (m *MockGateway) ParseEvent(body []byte) (*gateway.Event, error) {
	args := m.Called(body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Event), args.Error(1)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt, language string) (string, error) {
	args := m.Called(ctx, prompt, language)
	return args.String(0), args.Error(1)
}

// testEnv wires the ledger to an in-memory store seeded with the default tiers.
type testEnv struct {
	store  *memory.Store
	audit  *MockAuditLogger
	ledger *CreditLedger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New(100)
	ctx := context.Background()
	for _, pt := range []models.PriceTier{
		{Tier: "starter", Credits: 20, PriceUSD: decimal.RequireFromString("5.00"), PriceLocal: decimal.RequireFromString("7500"), IsActive: true},
		{Tier: "pro", Credits: 100, PriceUSD: decimal.RequireFromString("20.00"), PriceLocal: decimal.RequireFromString("30000"), IsActive: true},
		{Tier: "legacy", Credits: 10, PriceUSD: decimal.RequireFromString("3.00"), PriceLocal: decimal.RequireFromString("4500"), IsActive: false},
	} {
		require.NoError(t, st.SavePriceTier(ctx, pt))
	}

	audit := newQuietAudit()
	return &testEnv{
		store:  st,
		audit:  audit,
		ledger: NewCreditLedger(st, audit, zerolog.Nop(), time.Second, 100),
	}
}

// seedAccount creates an account with the given opening balance recorded as a
// signup entry, so replay stays consistent.
func (e *testEnv) seedAccount(t *testing.T, id string, balance int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateAccount(ctx, &models.Account{ID: id, Email: id + "@example.com"})
	}))
	if balance > 0 {
		_, err := e.ledger.Grant(ctx, Mutation{AccountID: id, Amount: balance, Reason: models.ReasonSignupBonus})
		require.NoError(t, err)
	}
}

func (e *testEnv) balance(t *testing.T, id string) int64 {
	t.Helper()
	b, err := e.ledger.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}
