package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/store"
)

// Authorizer answers capability checks for an account.
type Authorizer interface {
	Can(ctx context.Context, accountID string, capability models.Capability) error
}

// AccountService resolves accounts and their roles.
type AccountService struct {
	store store.Store
}

func NewAccountService(st store.Store) *AccountService {
	return &AccountService{store: st}
}

func (s *AccountService) Get(ctx context.Context, accountID string) (*models.Account, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return acct, storeErr(err)
}

// Can returns nil when the account's role grants capability, ErrForbidden
// otherwise. Unknown accounts are forbidden too.
func (s *AccountService) Can(ctx context.Context, accountID string, capability models.Capability) error {
	acct, err := s.Get(ctx, accountID)
	if errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("%w: %s", ErrForbidden, capability)
	}
	if err != nil {
		return err
	}
	if !acct.Role.Can(capability) {
		return fmt.Errorf("%w: %s", ErrForbidden, capability)
	}
	return nil
}
