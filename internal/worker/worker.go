package worker

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"marketplace-service/internal/broker"
	"marketplace-service/internal/models"
	"marketplace-service/internal/service"
	"marketplace-service/internal/util"
)

// PaymentCallbackWorker consumes gateway callback events and funnels them
// into reconciliation.
type PaymentCallbackWorker struct {
	consumer       *broker.Consumer
	eventHandler   *broker.EventHandler
	paymentService *service.PaymentService
}

// NewPaymentCallbackWorker creates a new payment callback worker
func NewPaymentCallbackWorker(
	consumer *broker.Consumer,
	paymentService *service.PaymentService,
) *PaymentCallbackWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentCallback(func(ctx context.Context, event *models.PaymentCallbackEvent) error {
		_, err := paymentService.ReconcilePaymentCallback(ctx, event.Reference)
		return err
	})

	return &PaymentCallbackWorker{
		consumer:       consumer,
		eventHandler:   eventHandler,
		paymentService: paymentService,
	}
}

// Start starts the worker
func (w *PaymentCallbackWorker) Start(ctx context.Context) error {
	log.Println("Starting payment callback worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *PaymentCallbackWorker) Stop() error {
	log.Println("Stopping payment callback worker...")
	return w.consumer.Close()
}

// ExpiryWorker periodically cancels orders whose settlement window has
// passed, so reserved stock returns without waiting for a read.
type ExpiryWorker struct {
	orderService *service.OrderService
	interval     time.Duration
	batchSize    int
	logger       *zap.Logger
	stop         chan struct{}
}

// NewExpiryWorker creates a new expiry sweeper
func NewExpiryWorker(orderService *service.OrderService, interval time.Duration, batchSize int) *ExpiryWorker {
	return &ExpiryWorker{
		orderService: orderService,
		interval:     interval,
		batchSize:    batchSize,
		logger:       util.GetLogger(),
		stop:         make(chan struct{}),
	}
}

// Start runs the sweep loop until the context is cancelled or Stop is called
func (w *ExpiryWorker) Start(ctx context.Context) error {
	log.Printf("Starting expiry worker, interval %s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-ticker.C:
			cancelled, err := w.orderService.SweepExpired(ctx, w.batchSize)
			if err != nil {
				w.logger.Error("Expiry sweep failed", zap.Error(err))
				continue
			}
			if cancelled > 0 {
				w.logger.Info("Expiry sweep cancelled orders", zap.Int("count", cancelled))
			}
		}
	}
}

// Stop stops the worker
func (w *ExpiryWorker) Stop() error {
	log.Println("Stopping expiry worker...")
	close(w.stop)
	return nil
}
