package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/exolab/vrsupervisor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunOrderStoreContract runs a suite of tests verifying that an OrderStore
// implementation adheres to the interface contract. Adapter tests call this
// against a freshly constructed, empty store.
func RunOrderStoreContract(t *testing.T, store OrderStore) {
	ctx := context.Background()

	seed := func(t *testing.T, n int) []domain.Order {
		t.Helper()
		orders := make([]domain.Order, 0, n)
		for i := 1; i <= n; i++ {
			orders = append(orders, domain.Order{
				ID: fmt.Sprintf("ORD-%04d", i),
				Sequence: []domain.ConditionSlot{
					{Position: 0, ConditionType: "A", ObjectType: "1"},
					{Position: 1, ConditionType: "B", ObjectType: "2"},
				},
				CreatedAt: time.Now().UTC().Truncate(time.Second),
			})
		}
		require.NoError(t, store.ReplaceSet(ctx, orders))
		return orders
	}

	t.Run("List Stable Order", func(t *testing.T) {
		seed(t, 4)

		listed, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 4)
		for i, o := range listed {
			assert.Equal(t, fmt.Sprintf("ORD-%04d", i+1), o.ID)
			assert.Zero(t, o.UsageCount)
			assert.Len(t, o.Sequence, 2)
		}
	})

	t.Run("Get Unknown", func(t *testing.T) {
		seed(t, 1)

		_, err := store.Get(ctx, "ORD-9999")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("MarkUsed Increments", func(t *testing.T) {
		seed(t, 2)

		updated, err := store.MarkUsed(ctx, "ORD-0002")
		require.NoError(t, err)
		assert.Equal(t, 1, updated.UsageCount)
		require.NotNil(t, updated.LastUsed)

		// The sibling order is untouched.
		other, err := store.Get(ctx, "ORD-0001")
		require.NoError(t, err)
		assert.Zero(t, other.UsageCount)
		assert.Nil(t, other.LastUsed)
	})

	t.Run("MarkUsed Unknown", func(t *testing.T) {
		seed(t, 1)

		_, err := store.MarkUsed(ctx, "ORD-0404")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("MarkUsed Concurrent", func(t *testing.T) {
		seed(t, 1)

		const workers = 32
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				_, err := store.MarkUsed(ctx, "ORD-0001")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, "ORD-0001")
		require.NoError(t, err)
		assert.Equal(t, workers, got.UsageCount, "concurrent increments must not be lost")
	})

	t.Run("ResetAllUsage", func(t *testing.T) {
		seed(t, 3)
		_, err := store.MarkUsed(ctx, "ORD-0001")
		require.NoError(t, err)
		_, err = store.MarkUsed(ctx, "ORD-0003")
		require.NoError(t, err)

		require.NoError(t, store.ResetAllUsage(ctx))

		listed, err := store.List(ctx)
		require.NoError(t, err)
		for _, o := range listed {
			assert.Zero(t, o.UsageCount)
			assert.Nil(t, o.LastUsed)
		}
	})

	t.Run("ReplaceSet Swaps Wholesale", func(t *testing.T) {
		seed(t, 3)
		_, err := store.MarkUsed(ctx, "ORD-0002")
		require.NoError(t, err)

		replacement := []domain.Order{{
			ID:        "ORD-0001",
			Sequence:  []domain.ConditionSlot{{Position: 0, ConditionType: "C", ObjectType: "3"}},
			CreatedAt: time.Now().UTC(),
		}}
		require.NoError(t, store.ReplaceSet(ctx, replacement))

		listed, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, "C", listed[0].Sequence[0].ConditionType)
		// Usage history of the previous set is gone, including for reused IDs.
		assert.Zero(t, listed[0].UsageCount)

		_, err = store.Get(ctx, "ORD-0002")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}
