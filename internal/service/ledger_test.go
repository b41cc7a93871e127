package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store/memory"
)

func newLedgerFixture(t *testing.T, quantity int) (*InventoryLedger, *memory.Store) {
	t.Helper()

	mem := memory.NewStore()
	mem.SeedItem(&models.Item{
		ID:       "item-1",
		Name:     "chair",
		Price:    decimal.NewFromFloat(25.00),
		Quantity: quantity,
	})
	return NewInventoryLedger(mem, nil), mem
}

func TestReserveAndRelease(t *testing.T) {
	ledger, mem := newLedgerFixture(t, 10)
	ctx := context.Background()

	require.NoError(t, ledger.Reserve(ctx, "item-1", 4))

	item, err := mem.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, 6, item.Quantity)

	require.NoError(t, ledger.Release(ctx, "item-1", 4))

	item, err = mem.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, 10, item.Quantity)
}

func TestReserveInsufficientStock(t *testing.T) {
	ledger, mem := newLedgerFixture(t, 2)
	ctx := context.Background()

	err := ledger.Reserve(ctx, "item-1", 3)

	var short *models.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "item-1", short.ItemID)
	assert.Equal(t, 3, short.Requested)
	assert.Equal(t, 2, short.Available)

	// A failed reservation must not touch the stock.
	item, err := mem.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)
}

func TestReserveUnknownItem(t *testing.T) {
	ledger, _ := newLedgerFixture(t, 1)

	err := ledger.Reserve(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, models.ErrItemNotFound)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	ledger, mem := newLedgerFixture(t, 5)
	ctx := context.Background()

	// Two buyers race for 3 of 5 units; only one can win.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ledger.Reserve(ctx, "item-1", 3)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			var short *models.InsufficientStockError
			assert.True(t, errors.As(err, &short))
		}
	}
	assert.Equal(t, 1, succeeded)

	item, err := mem.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)
}

func TestConcurrentReservationsDrainExactly(t *testing.T) {
	ledger, mem := newLedgerFixture(t, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ledger.Reserve(ctx, "item-1", 2)
		}()
	}
	wg.Wait()

	item, err := mem.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, 0, item.Quantity)

	err = ledger.Reserve(ctx, "item-1", 1)
	var short *models.InsufficientStockError
	assert.ErrorAs(t, err, &short)
}
