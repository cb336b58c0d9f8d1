// Package memory provides the in-memory OrderStore used for tests and for
// running the supervisor without external infrastructure.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/exolab/vrsupervisor/pkg/domain"
)

// Store implements ports.OrderStore in memory.
// Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

// NewStore creates an empty in-memory order store.
func NewStore() *Store {
	return &Store{
		orders: make(map[string]*domain.Order),
	}
}

// List returns all orders sorted by ID.
func (s *Store) List(ctx context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		result = append(result, o.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Get returns a copy of one order.
func (s *Store) Get(ctx context.Context, orderID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// MarkUsed increments the usage counter under the write lock, so concurrent
// calls never lose increments.
func (s *Store) MarkUsed(ctx context.Context, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	o.UsageCount++
	now := time.Now().UTC()
	o.LastUsed = &now
	return o.Clone(), nil
}

// ResetAllUsage zeroes every usage counter.
func (s *Store) ResetAllUsage(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		o.UsageCount = 0
		o.LastUsed = nil
	}
	return nil
}

// ReplaceSet swaps the whole order set under the write lock; readers observe
// either the old set or the new one, never a mix.
func (s *Store) ReplaceSet(ctx context.Context, orders []domain.Order) error {
	next := make(map[string]*domain.Order, len(orders))
	for _, o := range orders {
		cp := o.Clone()
		next[o.ID] = &cp
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = next
	return nil
}
