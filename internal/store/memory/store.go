// Package memory is an in-process store.Store used by tests and local runs without
// PostgreSQL. Transactions are serialized behind a one-slot semaphore that gives up
// when the caller's context ends, and stage their writes, which are applied only
// when fn returns nil.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/store"
)

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)

type waitlistEntry struct {
	email     string
	accountID string
}

type state struct {
	accounts map[string]models.Account
	entries  []models.LedgerEntry
	keys     map[string]int // idempotency key -> index into entries
	payments map[string]models.PaymentTransaction
	tiers    map[string]models.PriceTier
	capacity models.BetaCapacity
}

// Store keeps everything in maps guarded by txSem (writers) and mu (state).
type Store struct {
	txSem    chan struct{}
	mu       sync.RWMutex
	st       state
	nextID   int64
	waitlist []waitlistEntry
}

// New returns an empty store with the given free-tier limit.
func New(maxFreeUsers int) *Store {
	return &Store{
		txSem: make(chan struct{}, 1),
		st: state{
			accounts: map[string]models.Account{},
			keys:     map[string]int{},
			payments: map[string]models.PaymentTransaction{},
			tiers:    map[string]models.PriceTier{},
			capacity: models.BetaCapacity{MaxFreeUsers: maxFreeUsers},
		},
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	t := &tx{
		s:        s,
		accounts: map[string]models.Account{},
		payments: map[string]models.PaymentTransaction{},
		keys:     map[string]int{},
	}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range t.accounts {
		s.st.accounts[id] = a
	}
	for id, p := range t.payments {
		s.st.payments[id] = p
	}
	for _, e := range t.entries {
		if e.IdempotencyKey != "" {
			s.st.keys[e.IdempotencyKey] = len(s.st.entries)
		}
		s.st.entries = append(s.st.entries, e)
	}
	if t.capacity != nil {
		s.st.capacity = *t.capacity
	}
	return nil
}

// acquire waits for the writer slot. A lock wait that outlives ctx fails the way a
// cancelled row lock does in PostgreSQL.
func (s *Store) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.txSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() { <-s.txSem }

// nextEntryID reserves an id the way a sequence does; ids of rolled back entries
// are never reused.
func (s *Store) nextEntryID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func (s *Store) GetAccount(_ context.Context, accountID string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.st.accounts[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Store) ListEntries(_ context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.LedgerEntry{}
	for i := len(s.st.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.st.entries[i].AccountID == accountID {
			out = append(out, copyEntry(s.st.entries[i]))
		}
	}
	return out, nil
}

func (s *Store) ListAllEntries(_ context.Context, accountID string) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.LedgerEntry{}
	for _, e := range s.st.entries {
		if e.AccountID == accountID {
			out = append(out, copyEntry(e))
		}
	}
	return out, nil
}

func (s *Store) GetEntryByIdempotencyKey(_ context.Context, key string) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.st.keys[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	e := copyEntry(s.st.entries[idx])
	return &e, nil
}

func (s *Store) GetPayment(_ context.Context, txID string) (*models.PaymentTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.st.payments[txID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) FindPaymentByReference(_ context.Context, provider models.Provider, reference string) (*models.PaymentTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := findByReference(s.st.payments, provider, reference)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListPayments(_ context.Context, accountID string, limit int) ([]models.PaymentTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.PaymentTransaction{}
	for _, p := range s.st.payments {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetPriceTier(_ context.Context, tier string) (*models.PriceTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pt, ok := s.st.tiers[tier]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &pt, nil
}

func (s *Store) ListPriceTiers(_ context.Context, activeOnly bool) ([]models.PriceTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.PriceTier{}
	for _, pt := range s.st.tiers {
		if activeOnly && !pt.IsActive {
			continue
		}
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Credits < out[j].Credits })
	return out, nil
}

func (s *Store) SavePriceTier(_ context.Context, pt models.PriceTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt.UpdatedAt = time.Now().UTC()
	s.st.tiers[pt.Tier] = pt
	return nil
}

func (s *Store) GetCapacity(_ context.Context) (*models.BetaCapacity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.st.capacity
	return &c, nil
}

func (s *Store) SetCapacityLimit(ctx context.Context, maxFreeUsers int) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.capacity.CurrentFreeUsers > maxFreeUsers {
		return store.ErrCapacityExceeded
	}
	s.st.capacity.MaxFreeUsers = maxFreeUsers
	return nil
}

// SetCapacity overwrites both counters; intended for test setup.
func (s *Store) SetCapacity(c models.BetaCapacity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.capacity = c
}

func (s *Store) AppendWaitlist(_ context.Context, email, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.waitlist {
		if w.email == email {
			return i + 1, nil
		}
	}
	s.waitlist = append(s.waitlist, waitlistEntry{email: email, accountID: accountID})
	return len(s.waitlist), nil
}

// ==================== tx ====================

type tx struct {
	s        *Store
	accounts map[string]models.Account
	payments map[string]models.PaymentTransaction
	entries  []models.LedgerEntry
	keys     map[string]int
	capacity *models.BetaCapacity
}

func (t *tx) account(id string) (models.Account, bool) {
	if a, ok := t.accounts[id]; ok {
		return a, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := t.s.st.accounts[id]
	return a, ok
}

func (t *tx) LockAccount(_ context.Context, accountID string) (*models.Account, error) {
	a, ok := t.account(accountID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (t *tx) CreateAccount(_ context.Context, a *models.Account) error {
	if _, ok := t.account(a.ID); ok {
		return store.ErrAlreadyExists
	}
	now := time.Now().UTC()
	if a.Role == "" {
		a.Role = models.RoleUser
	}
	a.Version = 1
	a.CreatedAt, a.UpdatedAt = now, now
	t.accounts[a.ID] = *a
	return nil
}

func (t *tx) UpdateBalance(_ context.Context, accountID string, balance int64, version int) error {
	a, ok := t.account(accountID)
	if !ok {
		return store.ErrNotFound
	}
	if a.Version != version {
		return store.ErrConcurrentModification
	}
	a.Balance = balance
	a.Version++
	a.UpdatedAt = time.Now().UTC()
	t.accounts[accountID] = a
	return nil
}

func (t *tx) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	if e.IdempotencyKey != "" {
		if _, err := t.GetEntryByIdempotencyKey(ctx, e.IdempotencyKey); err == nil {
			return store.ErrDuplicateIdempotencyKey
		}
		t.keys[e.IdempotencyKey] = len(t.entries)
	}
	e.ID = t.s.nextEntryID()
	e.CreatedAt = time.Now().UTC()
	e.Metadata = e.Metadata.Clone()
	t.entries = append(t.entries, *e)
	return nil
}

func (t *tx) GetEntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	if idx, ok := t.keys[key]; ok {
		e := copyEntry(t.entries[idx])
		return &e, nil
	}
	return t.s.GetEntryByIdempotencyKey(ctx, key)
}

func (t *tx) payment(id string) (models.PaymentTransaction, bool) {
	if p, ok := t.payments[id]; ok {
		return p, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	p, ok := t.s.st.payments[id]
	return p, ok
}

func (t *tx) CreatePayment(_ context.Context, p *models.PaymentTransaction) error {
	if _, ok := t.payment(p.ID); ok {
		return store.ErrAlreadyExists
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	t.payments[p.ID] = *p
	return nil
}

func (t *tx) LockPayment(_ context.Context, txID string) (*models.PaymentTransaction, error) {
	p, ok := t.payment(txID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *tx) LockPaymentByReference(_ context.Context, provider models.Provider, reference string) (*models.PaymentTransaction, error) {
	if p, ok := findByReference(t.payments, provider, reference); ok {
		return &p, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	p, ok := findByReference(t.s.st.payments, provider, reference)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *tx) UpdatePayment(_ context.Context, p *models.PaymentTransaction) error {
	if _, ok := t.payment(p.ID); !ok {
		return store.ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	t.payments[p.ID] = *p
	return nil
}

func (t *tx) LockCapacity(_ context.Context) (*models.BetaCapacity, error) {
	if t.capacity != nil {
		c := *t.capacity
		return &c, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	c := t.s.st.capacity
	return &c, nil
}

func (t *tx) UpdateCapacity(ctx context.Context, currentFreeUsers int) error {
	c, _ := t.LockCapacity(ctx)
	if currentFreeUsers > c.MaxFreeUsers {
		return store.ErrCapacityExceeded
	}
	c.CurrentFreeUsers = currentFreeUsers
	t.capacity = c
	return nil
}

func findByReference(payments map[string]models.PaymentTransaction, provider models.Provider, reference string) (models.PaymentTransaction, bool) {
	for _, p := range payments {
		if p.Provider != provider {
			continue
		}
		if p.ID == reference || (p.ProviderReference != nil && *p.ProviderReference == reference) {
			return p, true
		}
	}
	return models.PaymentTransaction{}, false
}

func copyEntry(e models.LedgerEntry) models.LedgerEntry {
	e.Metadata = e.Metadata.Clone()
	return e
}
