package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flexprice/couponengine/internal/domain/engineer"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/types"
)

// InMemoryEngineerStore implements engineer.Repository
type InMemoryEngineerStore struct {
	mu           sync.Mutex
	profiles     map[string]*engineer.Profile
	transactions *InMemoryStore[*engineer.Transaction]
}

var _ engineer.Repository = (*InMemoryEngineerStore)(nil)

func NewInMemoryEngineerStore() *InMemoryEngineerStore {
	return &InMemoryEngineerStore{
		profiles:     make(map[string]*engineer.Profile),
		transactions: NewInMemoryStore[*engineer.Transaction](),
	}
}

func profileKey(ctx context.Context, engineerID string) string {
	return types.GetTenantID(ctx) + "|" + engineerID
}

func (s *InMemoryEngineerStore) LockProfile(ctx context.Context, engineerID string) (*engineer.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := profileKey(ctx, engineerID)
	p, ok := s.profiles[key]
	if !ok {
		p = &engineer.Profile{
			TenantID:  types.GetTenantID(ctx),
			UserID:    engineerID,
			CreatedAt: now,
		}
		s.profiles[key] = p
	}
	p.Version++
	p.UpdatedAt = now

	copied := *p
	return &copied, nil
}

func (s *InMemoryEngineerStore) GetProfile(ctx context.Context, engineerID string) (*engineer.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[profileKey(ctx, engineerID)]
	if !ok {
		return nil, ierr.NewError("engineer profile not found").
			WithHintf("Engineer %s has no wallet", engineerID).
			Mark(ierr.ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

func (s *InMemoryEngineerStore) UpdateBalance(ctx context.Context, engineerID string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[profileKey(ctx, engineerID)]
	if !ok {
		return ierr.NewError("engineer profile not found").Mark(ierr.ErrNotFound)
	}
	p.WalletBalance = balance
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// SetBalance corrupts the stored projection, used to exercise rebuilds
func (s *InMemoryEngineerStore) SetBalance(ctx context.Context, engineerID string, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.profiles[profileKey(ctx, engineerID)]; ok {
		p.WalletBalance = balance
	}
}

func (s *InMemoryEngineerStore) GetTransaction(ctx context.Context, id string) (*engineer.Transaction, error) {
	t, err := s.transactions.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, t.TenantID) {
		return nil, ierr.NewError("transaction not found").
			WithHintf("Transaction %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	copied := *t
	return &copied, nil
}

func (s *InMemoryEngineerStore) CreateTransaction(ctx context.Context, txn *engineer.Transaction) error {
	copied := *txn
	if err := s.transactions.Create(ctx, txn.ID, &copied); err != nil {
		return ierr.WithError(err).
			WithHintf("Transaction %s already exists", txn.ID).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryEngineerStore) ListTransactions(ctx context.Context, engineerID string) ([]*engineer.Transaction, error) {
	txns, err := s.transactions.List(ctx, nil, func(ctx context.Context, t *engineer.Transaction, _ interface{}) bool {
		return CheckTenantFilter(ctx, t.TenantID) && t.EngineerID == engineerID
	}, func(a, b *engineer.Transaction) bool {
		return a.Sequence < b.Sequence
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].Sequence < txns[j].Sequence })
	return txns, nil
}

func (s *InMemoryEngineerStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = make(map[string]*engineer.Profile)
	s.transactions.Clear()
}
