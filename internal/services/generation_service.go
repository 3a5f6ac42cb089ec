package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sitecraft/backend/internal/logging"
	"github.com/sitecraft/backend/internal/models"
)

// Generator is the external content-generation service.
type Generator interface {
	Generate(ctx context.Context, prompt, language string) (string, error)
}

type GenerationRequest struct {
	Prompt   string `json:"prompt" validate:"required,max=8000"`
	Language string `json:"language" validate:"omitempty,max=32"`
}

type GenerationResult struct {
	GenerationID string `json:"generation_id"`
	Content      string `json:"content"`
	Balance      int64  `json:"balance"`
}

const generationCost = 1

// GenerationService charges one credit per generation before calling the
// generator and refunds it if the call fails.
type GenerationService struct {
	ledger    *CreditLedger
	generator Generator
	redis     *redis.Client
	limit     int64
	window    time.Duration
	audit     AuditLogger
	log       zerolog.Logger
	validator *ValidationHelper
	now       func() time.Time
}

func NewGenerationService(ledger *CreditLedger, generator Generator, rdb *redis.Client, limit int, window time.Duration, audit AuditLogger, log zerolog.Logger) *GenerationService {
	if window < time.Second {
		window = time.Minute
	}
	return &GenerationService{
		ledger:    ledger,
		generator: generator,
		redis:     rdb,
		limit:     int64(limit),
		window:    window,
		audit:     audit,
		log:       logging.Component(log, "generation"),
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

func (s *GenerationService) Generate(ctx context.Context, accountID string, req GenerationRequest) (*GenerationResult, error) {
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := s.allow(ctx, accountID); err != nil {
		return nil, err
	}

	generationID := uuid.NewString()
	charged, err := s.ledger.Deduct(ctx, Mutation{
		AccountID:      accountID,
		Amount:         generationCost,
		Reason:         models.ReasonGeneration,
		Metadata:       models.Metadata{"generation_id": generationID},
		IdempotencyKey: "generation:" + generationID,
	})
	if err != nil {
		return nil, err
	}

	content, genErr := s.generator.Generate(ctx, req.Prompt, req.Language)
	if genErr == nil {
		return &GenerationResult{GenerationID: generationID, Content: content, Balance: charged.NewBalance}, nil
	}

	s.log.Warn().Err(genErr).Str("account_id", accountID).Str("generation_id", generationID).Msg("generation failed, refunding credit")

	_, err = s.ledger.Grant(context.WithoutCancel(ctx), Mutation{
		AccountID:      accountID,
		Amount:         generationCost,
		Reason:         models.ReasonGenerationRefund,
		Metadata:       models.Metadata{"generation_id": generationID, "error": genErr.Error()},
		IdempotencyKey: "generation-refund:" + generationID,
	})
	if err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Str("generation_id", generationID).Msg("generation refund failed")
		s.audit.LogError(generationID, accountID, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, genErr)
}

func (s *GenerationService) rateLimitKey(accountID string) string {
	bucket := s.now().Unix() / int64(s.window/time.Second)
	return fmt.Sprintf("generation:ratelimit:%s:%d", accountID, bucket)
}

// allow counts requests per account in fixed windows. Redis failures let the
// request through.
func (s *GenerationService) allow(ctx context.Context, accountID string) error {
	if s.redis == nil || s.limit <= 0 {
		return nil
	}

	key := s.rateLimitKey(accountID)
	var count *redis.IntCmd
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, s.window)
		return nil
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("rate limit check failed")
		return nil
	}
	if count.Val() > s.limit {
		return fmt.Errorf("%w: at most %d generations per %s", ErrRateLimited, s.limit, s.window)
	}
	return nil
}
