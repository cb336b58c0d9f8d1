package ports

import (
	"context"

	"github.com/exolab/vrsupervisor/pkg/domain"
)

// OrderStore persists the current order set and per-order usage counters.
//
// The store holds at most one order set at a time; ReplaceSet swaps it
// wholesale and readers must never observe a partially-replaced set.
type OrderStore interface {
	// List returns all orders, stable order by ID.
	List(ctx context.Context) ([]domain.Order, error)

	// Get returns the order with the given ID.
	// Returns domain.ErrOrderNotFound if absent.
	Get(ctx context.Context, orderID string) (domain.Order, error)

	// MarkUsed atomically increments the order's usage count by exactly one
	// and stamps LastUsed. Concurrent calls must not lose increments.
	MarkUsed(ctx context.Context, orderID string) (domain.Order, error)

	// ResetAllUsage sets every order's usage count to zero and clears
	// LastUsed. Irreversible.
	ResetAllUsage(ctx context.Context) error

	// ReplaceSet atomically replaces the entire order set. Usage history of
	// the previous set is discarded; callers are expected to have confirmed
	// that loss with the operator beforehand.
	ReplaceSet(ctx context.Context, orders []domain.Order) error
}
