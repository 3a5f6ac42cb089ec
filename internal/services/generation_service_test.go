package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/rs/zerolog"
	"github.com/sitecraft/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGenerationService_ChargesOnSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "acct-1", 4)
	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, "landing page for a bakery", "en").Return("<html>bakery</html>", nil)
	svc := NewGenerationService(env.ledger, gen, nil, 0, time.Minute, env.audit, zerolog.Nop())

	res, err := svc.Generate(context.Background(), "acct-1", GenerationRequest{Prompt: "landing page for a bakery", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "<html>bakery</html>", res.Content)
	assert.Equal(t, int64(3), res.Balance)
	assert.Equal(t, int64(3), env.balance(t, "acct-1"))
}

func TestGenerationService_RefundsOnFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "acct-1", 4)
	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("upstream timeout"))
	svc := NewGenerationService(env.ledger, gen, nil, 0, time.Minute, env.audit, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Generate(ctx, "acct-1", GenerationRequest{Prompt: "portfolio"})
	require.ErrorIs(t, err, ErrGenerationFailed)
	assert.Equal(t, int64(4), env.balance(t, "acct-1"))

	history, err := env.ledger.GetHistory(ctx, "acct-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.ReasonGenerationRefund, history[0].Reason)
	assert.Equal(t, int64(1), history[0].Delta)
	assert.Equal(t, models.ReasonGeneration, history[1].Reason)
	assert.Equal(t, int64(3), history[1].ResultingBalance)
}

func TestGenerationService_InsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "acct-1", 0)
	gen := &MockGenerator{}
	svc := NewGenerationService(env.ledger, gen, nil, 0, time.Minute, env.audit, zerolog.Nop())

	_, err := svc.Generate(context.Background(), "acct-1", GenerationRequest{Prompt: "shop"})
	require.ErrorIs(t, err, ErrInsufficientCredits)

	var insufficient *InsufficientCreditsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(0), insufficient.Balance)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerationService_Validation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewGenerationService(env.ledger, &MockGenerator{}, nil, 0, time.Minute, env.audit, zerolog.Nop())

	_, err := svc.Generate(context.Background(), "acct-1", GenerationRequest{})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestGenerationService_RateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "acct-1", 10)
	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("ok", nil)

	rdb, rmock := redismock.NewClientMock()
	svc := NewGenerationService(env.ledger, gen, rdb, 2, time.Minute, env.audit, zerolog.Nop())
	svc.now = func() time.Time { return time.Unix(1_800_000_000, 0) }
	key := svc.rateLimitKey("acct-1")
	assert.Equal(t, "generation:ratelimit:acct-1:30000000", key)

	rmock.ExpectIncr(key).SetVal(2)
	rmock.ExpectExpire(key, time.Minute).SetVal(true)
	rmock.ExpectIncr(key).SetVal(3)
	rmock.ExpectExpire(key, time.Minute).SetVal(true)

	_, err := svc.Generate(context.Background(), "acct-1", GenerationRequest{Prompt: "blog"})
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), "acct-1", GenerationRequest{Prompt: "blog"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int64(9), env.balance(t, "acct-1"))
	assert.NoError(t, rmock.ExpectationsWereMet())
}
