package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/store"
)

// Quote is what a purchase is frozen to at initiation.
type Quote struct {
	Tier     string
	Credits  int64
	Amount   decimal.Decimal
	Currency string
}

type PricingService struct {
	store         store.Store
	validator     *ValidationHelper
	localCurrency string
}

func NewPricingService(st store.Store, localCurrency string) *PricingService {
	return &PricingService{
		store:         st,
		validator:     NewValidationHelper(),
		localCurrency: strings.ToUpper(localCurrency),
	}
}

func (s *PricingService) ListActive(ctx context.Context) ([]models.PriceTier, error) {
	tiers, err := s.store.ListPriceTiers(ctx, true)
	return tiers, storeErr(err)
}

func (s *PricingService) Get(ctx context.Context, tier string) (*models.PriceTier, error) {
	pt, err := s.store.GetPriceTier(ctx, tier)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrPricingTierInvalid, tier)
	}
	return pt, storeErr(err)
}

// Update replaces a tier. Pending purchases keep the values frozen at initiation.
func (s *PricingService) Update(ctx context.Context, pt models.PriceTier) error {
	if err := s.validator.ValidateStruct(&pt); err != nil {
		return fmt.Errorf("%w: %v", ErrPricingTierInvalid, err)
	}
	if pt.PriceUSD.IsNegative() || pt.PriceLocal.IsNegative() {
		return fmt.Errorf("%w: prices must not be negative", ErrPricingTierInvalid)
	}
	return storeErr(s.store.SavePriceTier(ctx, pt))
}

// Quote resolves tier and currency to credits and amount. USD uses PriceUSD, the
// configured local currency uses PriceLocal.
func (s *PricingService) Quote(ctx context.Context, tier, currency string) (*Quote, error) {
	pt, err := s.Get(ctx, tier)
	if err != nil {
		return nil, err
	}
	if !pt.IsActive {
		return nil, fmt.Errorf("%w: tier %q is not on sale", ErrPricingTierInvalid, tier)
	}

	currency = strings.ToUpper(currency)
	q := &Quote{Tier: pt.Tier, Credits: pt.Credits, Currency: currency}
	switch currency {
	case "USD":
		q.Amount = pt.PriceUSD
	case s.localCurrency:
		q.Amount = pt.PriceLocal
	default:
		return nil, fmt.Errorf("%w: currency %q not offered", ErrPricingTierInvalid, currency)
	}
	if !q.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: tier %q has no %s price", ErrPricingTierInvalid, tier, currency)
	}
	return q, nil
}
