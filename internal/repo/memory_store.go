package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tbourn/go-fulfillment-backend/internal/domain"
)

// MemoryOrderStore keeps orders in a process-local map. It is used in tests
// and single-process development runs; every read returns a copy so callers
// never observe a record outside the lock. Now may be replaced before use.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	Now    func() time.Time
}

// NewMemoryOrderStore returns an empty store.
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders: make(map[string]*domain.Order),
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateIfAbsent stores seed as pending unless the ID is already known.
func (s *MemoryOrderStore) CreateIfAbsent(_ context.Context, seed domain.Order) (*domain.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.orders[seed.ID]; ok {
		cp := *o
		return &cp, false, nil
	}
	now := s.Now()
	o := &domain.Order{
		ID:             seed.ID,
		CustomerEmail:  seed.CustomerEmail,
		CustomerName:   seed.CustomerName,
		State:          domain.StatePending,
		CreatedAt:      now,
		TransitionedAt: now,
	}
	s.orders[seed.ID] = o
	cp := *o
	return &cp, true, nil
}

// Transition applies from → to under the store lock.
func (s *MemoryOrderStore) Transition(_ context.Context, id string, from, to domain.State, p domain.Patch) (*domain.Order, error) {
	if err := domain.CheckTransition(from, to, p); err != nil {
		return nil, err
	}
	p.ArtifactRef = strings.TrimSpace(p.ArtifactRef)

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.State != from {
		return nil, ErrConflict
	}
	o.Apply(to, p, s.Now())
	cp := *o
	return &cp, nil
}

// Get returns a copy of the order, or (nil, false, nil) when absent.
func (s *MemoryOrderStore) Get(_ context.Context, id string) (*domain.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, false, nil
	}
	cp := *o
	return &cp, true, nil
}

// ListStale returns copies of orders in state last transitioned before the cutoff.
func (s *MemoryOrderStore) ListStale(_ context.Context, state domain.State, before time.Time) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.State == state && o.TransitionedAt.Before(before) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransitionedAt.Before(out[j].TransitionedAt) })
	return out, nil
}
