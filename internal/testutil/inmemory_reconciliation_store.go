package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flexprice/couponengine/internal/domain/reconciliation"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/samber/lo"
)

// InMemoryReconciliationStore implements reconciliation.Repository
type InMemoryReconciliationStore struct {
	runs        *InMemoryStore[*reconciliation.Run]
	adjustments *InMemoryStore[*reconciliation.Adjustment]
}

var _ reconciliation.Repository = (*InMemoryReconciliationStore)(nil)

func NewInMemoryReconciliationStore() *InMemoryReconciliationStore {
	return &InMemoryReconciliationStore{
		runs:        NewInMemoryStore[*reconciliation.Run](),
		adjustments: NewInMemoryStore[*reconciliation.Adjustment](),
	}
}

func (s *InMemoryReconciliationStore) CreateRun(ctx context.Context, run *reconciliation.Run) error {
	copied := *run
	if err := s.runs.Create(ctx, run.ID, &copied); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryReconciliationStore) UpdateRun(ctx context.Context, run *reconciliation.Run) error {
	copied := *run
	if err := s.runs.Update(ctx, run.ID, &copied); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrNotFound)
	}
	return nil
}

func (s *InMemoryReconciliationStore) GetRun(ctx context.Context, id string) (*reconciliation.Run, error) {
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Reconciliation run %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	copied := *run
	return &copied, nil
}

func (s *InMemoryReconciliationStore) ListRuns(ctx context.Context, limit int) ([]*reconciliation.Run, error) {
	runs, err := s.runs.List(ctx, &Page{Limit: limit}, nil, func(a, b *reconciliation.Run) bool {
		if a.StartedAt.Equal(b.StartedAt) {
			return a.ID > b.ID
		}
		return a.StartedAt.After(b.StartedAt)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(runs, func(r *reconciliation.Run, _ int) *reconciliation.Run {
		copied := *r
		return &copied
	}), nil
}

func (s *InMemoryReconciliationStore) CreateAdjustment(ctx context.Context, adj *reconciliation.Adjustment) error {
	copied := *adj
	if err := s.adjustments.Create(ctx, adj.ID, &copied); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryReconciliationStore) ListPendingEngineers(ctx context.Context) ([]reconciliation.EngineerKey, error) {
	pending, err := s.adjustments.List(ctx, nil, func(_ context.Context, a *reconciliation.Adjustment, _ interface{}) bool {
		return a.PostedTransactionID == nil
	}, nil)
	if err != nil {
		return nil, err
	}

	keys := lo.Uniq(lo.Map(pending, func(a *reconciliation.Adjustment, _ int) reconciliation.EngineerKey {
		return reconciliation.EngineerKey{TenantID: a.TenantID, EngineerID: a.EngineerID}
	}))
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TenantID == keys[j].TenantID {
			return keys[i].EngineerID < keys[j].EngineerID
		}
		return keys[i].TenantID < keys[j].TenantID
	})
	return keys, nil
}

func (s *InMemoryReconciliationStore) ListUnposted(ctx context.Context, engineerID string) ([]*reconciliation.Adjustment, error) {
	adjs, err := s.adjustments.List(ctx, nil, func(ctx context.Context, a *reconciliation.Adjustment, _ interface{}) bool {
		return CheckTenantFilter(ctx, a.TenantID) && a.EngineerID == engineerID && a.PostedTransactionID == nil
	}, func(a, b *reconciliation.Adjustment) bool {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(adjs, func(a *reconciliation.Adjustment, _ int) *reconciliation.Adjustment {
		copied := *a
		return &copied
	}), nil
}

func (s *InMemoryReconciliationStore) MarkPosted(ctx context.Context, adjustmentIDs []string, transactionID string) error {
	for _, id := range adjustmentIDs {
		adj, err := s.adjustments.Get(ctx, id)
		if err != nil {
			return ierr.WithError(err).Mark(ierr.ErrNotFound)
		}
		copied := *adj
		copied.PostedTransactionID = lo.ToPtr(transactionID)
		if err := s.adjustments.Update(ctx, id, &copied); err != nil {
			return err
		}
	}
	return nil
}

// Adjustments returns every stored adjustment
func (s *InMemoryReconciliationStore) Adjustments(ctx context.Context) []*reconciliation.Adjustment {
	adjs, _ := s.adjustments.List(ctx, nil, nil, func(a, b *reconciliation.Adjustment) bool { return a.ID < b.ID })
	return adjs
}

func (s *InMemoryReconciliationStore) Clear() {
	s.runs.Clear()
	s.adjustments.Clear()
}

type lockEntry struct {
	holder    string
	expiresAt time.Time
}

// InMemoryLockStore implements reconciliation.LockRepository
type InMemoryLockStore struct {
	mu    sync.Mutex
	locks map[string]lockEntry
}

var _ reconciliation.LockRepository = (*InMemoryLockStore)(nil)

func NewInMemoryLockStore() *InMemoryLockStore {
	return &InMemoryLockStore{locks: make(map[string]lockEntry)}
}

func (s *InMemoryLockStore) TryAcquire(_ context.Context, name, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if current, ok := s.locks[name]; ok && current.holder != holder && current.expiresAt.After(now) {
		return false, nil
	}
	s.locks[name] = lockEntry{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *InMemoryLockStore) Release(_ context.Context, name, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.locks[name]; ok && current.holder == holder {
		delete(s.locks, name)
	}
	return nil
}

func (s *InMemoryLockStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = make(map[string]lockEntry)
}
