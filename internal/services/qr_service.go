package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sitecraft/backend/internal/logging"
	"github.com/sitecraft/backend/internal/models"
	"github.com/skip2/go-qrcode"
)

const (
	qrImageSize = 256
	qrCacheTTL  = 30 * time.Minute
)

// CheckoutQR is a scannable rendering of a pending transaction's checkout URL,
// mostly used for crypto invoices opened from a phone wallet.
type CheckoutQR struct {
	TransactionID string `json:"transaction_id"`
	CheckoutURL   string `json:"checkout_url"`
	Image         string `json:"image"` // base64 PNG
}

type QRService struct {
	payments *PaymentService
	redis    *redis.Client
	log      zerolog.Logger
}

func NewQRService(payments *PaymentService, rdb *redis.Client, log zerolog.Logger) *QRService {
	return &QRService{
		payments: payments,
		redis:    rdb,
		log:      logging.Component(log, "qr"),
	}
}

func qrCacheKey(txID string) string {
	return fmt.Sprintf("checkout:qr:%s", txID)
}

// CheckoutQRCode renders the checkout URL of a pending transaction owned by
// accountID. Rendered images are cached in redis when it is available.
func (s *QRService) CheckoutQRCode(ctx context.Context, txID, accountID string) (*CheckoutQR, error) {
	p, err := s.payments.Get(ctx, txID, accountID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentPending {
		return nil, fmt.Errorf("%w: transaction is %s", ErrInvalidTransition, p.Status)
	}
	if p.CheckoutURL == "" {
		return nil, fmt.Errorf("%w: transaction has no checkout url", ErrInvalidTransition)
	}

	out := &CheckoutQR{TransactionID: p.ID, CheckoutURL: p.CheckoutURL}

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, qrCacheKey(p.ID)).Result()
		if err == nil {
			out.Image = cached
			return out, nil
		}
		if err != redis.Nil {
			s.log.Debug().Err(err).Msg("qr cache read failed")
		}
	}

	img, err := renderQR(p.CheckoutURL)
	if err != nil {
		return nil, err
	}
	out.Image = img

	if s.redis != nil {
		if err := s.redis.Set(ctx, qrCacheKey(p.ID), img, qrCacheTTL).Err(); err != nil {
			s.log.Debug().Err(err).Msg("qr cache write failed")
		}
	}
	return out, nil
}

func renderQR(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(qrImageSize)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
