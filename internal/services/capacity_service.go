package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sitecraft/backend/internal/logging"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/store"
)

type Admission struct {
	Admitted  bool   `json:"admitted"`
	AccountID string `json:"account_id"`
	Existing  bool   `json:"existing,omitempty"`
	Balance   int64  `json:"balance"`
	Position  int    `json:"waitlist_position,omitempty"`
}

// CapacityService gates free-tier signups. The counter increment, the account row
// and the signup grant commit together or not at all.
type CapacityService struct {
	store          store.Store
	ledger         *CreditLedger
	initialCredits int64
	admins         map[string]bool
	log            zerolog.Logger
}

func NewCapacityService(st store.Store, ledger *CreditLedger, initialCredits int64, adminIDs []string, log zerolog.Logger) *CapacityService {
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &CapacityService{
		store:          st,
		ledger:         ledger,
		initialCredits: initialCredits,
		admins:         admins,
		log:            logging.Component(log, "capacity"),
	}
}

// Admit creates a free account for accountID if a slot is left, otherwise puts
// the requester on the waiting list. Existing accounts are admitted as-is.
func (s *CapacityService) Admit(ctx context.Context, accountID, email string) (*Admission, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id required", ErrMalformedPayload)
	}

	if existing, err := s.existing(ctx, accountID); existing != nil || err != nil {
		return existing, err
	}

	var full bool
	var grant Mutation
	var granted *LedgerResult

	err := s.ledger.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		capacity, err := tx.LockCapacity(ctx)
		if err != nil {
			return err
		}
		if capacity.CurrentFreeUsers >= capacity.MaxFreeUsers {
			full = true
			return nil
		}

		role := models.RoleUser
		if s.admins[accountID] {
			role = models.RoleAdmin
		}
		if err := tx.CreateAccount(ctx, &models.Account{ID: accountID, Email: email, Role: role}); err != nil {
			return err
		}

		if s.initialCredits > 0 {
			grant = Mutation{
				AccountID:      accountID,
				Amount:         s.initialCredits,
				Reason:         models.ReasonSignupBonus,
				IdempotencyKey: "signup:" + accountID,
			}
			granted, err = s.ledger.GrantTx(ctx, tx, grant)
			if err != nil {
				return err
			}
		}

		return tx.UpdateCapacity(ctx, capacity.CurrentFreeUsers+1)
	})

	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		// A concurrent signup for the same id won the slot.
		existing, err := s.existing(ctx, accountID)
		if existing == nil && err == nil {
			err = fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
		}
		return existing, err
	case errors.Is(err, store.ErrCapacityExceeded):
		full = true
	case err != nil:
		return nil, err
	}

	if full {
		position, err := s.store.AppendWaitlist(ctx, email, accountID)
		if err != nil {
			return nil, storeErr(err)
		}
		s.log.Info().Str("account_id", accountID).Int("position", position).Msg("beta full, waitlisted")
		return &Admission{AccountID: accountID, Position: position}, nil
	}

	s.ledger.Applied(grant, granted)
	s.log.Info().Str("account_id", accountID).Msg("free account admitted")

	adm := &Admission{Admitted: true, AccountID: accountID}
	if granted != nil {
		adm.Balance = granted.NewBalance
	}
	return adm, nil
}

func (s *CapacityService) existing(ctx context.Context, accountID string) (*Admission, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &Admission{Admitted: true, Existing: true, AccountID: acct.ID, Balance: acct.Balance}, nil
}

func (s *CapacityService) Status(ctx context.Context) (*models.BetaCapacity, error) {
	c, err := s.store.GetCapacity(ctx)
	return c, storeErr(err)
}

// SetLimit changes the number of free slots. It cannot drop below the number of
// accounts already admitted.
func (s *CapacityService) SetLimit(ctx context.Context, maxFreeUsers int) (*models.BetaCapacity, error) {
	if maxFreeUsers < 0 {
		return nil, fmt.Errorf("%w: max_free_users must not be negative", ErrMalformedPayload)
	}
	if err := s.store.SetCapacityLimit(ctx, maxFreeUsers); err != nil {
		if errors.Is(err, store.ErrCapacityExceeded) {
			return nil, fmt.Errorf("%w: limit is below current free users", ErrInvalidTransition)
		}
		return nil, storeErr(err)
	}
	s.log.Info().Int("max_free_users", maxFreeUsers).Msg("beta capacity changed")
	return s.Status(ctx)
}
