package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketplace-service/internal/models"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/util"
)

// InventoryLedger owns per-item available quantity. Reserve serializes the
// read-check-decrement sequence per item so that concurrent reservations can
// never drive stock negative; Release is unconditionally additive and is
// used only when a reserved order is cancelled.
type InventoryLedger struct {
	items  ItemStore
	redis  *redisclient.Client // optional fast path, may be nil
	logger *zap.Logger

	locks sync.Map // item ID -> *sync.Mutex
}

// NewInventoryLedger creates a ledger over the item store. redis may be nil;
// the store path is authoritative either way.
func NewInventoryLedger(items ItemStore, redis *redisclient.Client) *InventoryLedger {
	return &InventoryLedger{
		items:  items,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

func (l *InventoryLedger) lockFor(itemID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(itemID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Reserve atomically checks and decrements available stock for one item.
// Fails with *models.InsufficientStockError when qty exceeds what is
// available; the caller must roll back any earlier reservations of the same
// order attempt before surfacing the error.
func (l *InventoryLedger) Reserve(ctx context.Context, itemID string, qty int) error {
	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	if l.redis != nil {
		ok, available, err := l.redis.ReserveStock(ctx, itemID, qty)
		switch {
		case err != nil:
			l.logger.Warn("Redis reservation failed, falling back to store",
				zap.String("item_id", itemID),
				zap.Error(err))
		case available < 0:
			// Item not tracked in Redis yet; the store decides.
		case !ok:
			util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			return &models.InsufficientStockError{ItemID: itemID, Requested: qty, Available: available}
		default:
			// Fast path succeeded; apply the same decrement to the store so
			// it stays the source of truth.
			if err := l.reserveStore(ctx, itemID, qty); err != nil {
				if relErr := l.redis.ReleaseStock(ctx, itemID, qty); relErr != nil {
					l.logger.Error("Failed to undo Redis reservation",
						zap.String("item_id", itemID),
						zap.Error(relErr))
				}
				return err
			}
			return nil
		}
	}

	if err := l.reserveStore(ctx, itemID, qty); err != nil {
		if _, short := err.(*models.InsufficientStockError); short {
			util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		} else {
			util.InventoryReservationsFailed.WithLabelValues("error").Inc()
		}
		return err
	}
	return nil
}

func (l *InventoryLedger) reserveStore(ctx context.Context, itemID string, qty int) error {
	mu := l.lockFor(itemID)
	mu.Lock()
	defer mu.Unlock()

	return l.items.DecrementStock(ctx, itemID, qty)
}

// Release restores qty units of an item after a cancelled reservation.
func (l *InventoryLedger) Release(ctx context.Context, itemID string, qty int) error {
	if l.redis != nil {
		if err := l.redis.ReleaseStock(ctx, itemID, qty); err != nil {
			l.logger.Error("Failed to release stock in Redis",
				zap.String("item_id", itemID),
				zap.Error(err))
		}
	}

	mu := l.lockFor(itemID)
	mu.Lock()
	defer mu.Unlock()

	return l.items.IncrementStock(ctx, itemID, qty)
}
