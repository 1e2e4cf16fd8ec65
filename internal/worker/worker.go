package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

const printerLockKey = "printer"

// EventLog tracks processed event ids for consumer idempotency
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Locker serializes access to the single physical printer
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// EventCache is a fast dedupe tier in front of the processed_events table
type EventCache interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// PrintWorker consumes SaleCompleted events and prints receipts. Printing is
// fully decoupled from the sale commit: a failed print is recorded and can be
// retried through the API, but the sale stays committed.
type PrintWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	receipts     *service.ReceiptService
	eventLog     EventLog
	eventCache   EventCache
	locker       Locker
	logger       *zap.Logger
}

// NewPrintWorker creates a new print worker
func NewPrintWorker(
	consumer *broker.Consumer,
	receipts *service.ReceiptService,
	eventLog EventLog,
	eventCache EventCache,
	locker Locker,
) *PrintWorker {
	w := &PrintWorker{
		consumer:   consumer,
		receipts:   receipts,
		eventLog:   eventLog,
		eventCache: eventCache,
		locker:     locker,
		logger:     util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnSaleCompleted(w.handleSaleCompleted)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *PrintWorker) Start(ctx context.Context) error {
	log.Println("Starting print worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *PrintWorker) Stop() error {
	log.Println("Stopping print worker...")
	return w.consumer.Close()
}

func (w *PrintWorker) handleSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	if seen, err := w.eventCache.CheckIdempotencyKey(ctx, event.EventID); err != nil {
		w.logger.Warn("Event cache check failed", zap.Error(err))
	} else if seen {
		return nil
	}

	processed, err := w.eventLog.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event log: %w", err)
	}
	if processed {
		return nil
	}

	acquired, err := w.locker.AcquireLock(ctx, printerLockKey, 30*time.Second)
	if err != nil {
		w.logger.Warn("Printer lock unavailable, printing anyway", zap.Error(err))
	} else if !acquired {
		// Another instance holds the printer; the consumer retries this
		// message with backoff before giving up.
		return fmt.Errorf("printer busy")
	} else {
		defer func() {
			if err := w.locker.ReleaseLock(ctx, printerLockKey); err != nil {
				w.logger.Warn("Failed to release printer lock", zap.Error(err))
			}
		}()
	}

	if _, err := w.receipts.PrintReceipt(ctx, event.TransactionID); err != nil {
		// The sale is already durable. Record the attempt and move on; the
		// cashier retries via the print endpoint.
		if !errors.Is(err, service.ErrPrintFailed) {
			return fmt.Errorf("failed to load receipt data: %w", err)
		}
		w.logger.Warn("Receipt print failed, sale remains committed",
			zap.String("transaction_id", event.TransactionID),
			zap.Error(err))
	}

	if err := w.eventLog.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	if err := w.eventCache.SetIdempotencyKey(ctx, event.EventID, event.EventType, 24*time.Hour); err != nil {
		w.logger.Warn("Failed to cache processed event", zap.Error(err))
	}
	return nil
}

// StockAlertWorker watches stock changes and raises low stock alerts
type StockAlertWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStockAlertWorker creates a new stock alert worker
func NewStockAlertWorker(consumer *broker.Consumer) *StockAlertWorker {
	w := &StockAlertWorker{
		consumer: consumer,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnSaleCompleted(w.handleSaleCompleted)
	eventHandler.OnStockAdjusted(w.handleStockAdjusted)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *StockAlertWorker) Start(ctx context.Context) error {
	log.Println("Starting stock alert worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockAlertWorker) Stop() error {
	log.Println("Stopping stock alert worker...")
	return w.consumer.Close()
}

func (w *StockAlertWorker) handleSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	for _, d := range event.Deductions {
		if d.NewStock.LessThanOrEqual(d.MinStock) {
			w.alert(d.InventoryID, d.InventoryName, d.NewStock.String(), d.MinStock.String())
		}
	}
	return nil
}

func (w *StockAlertWorker) handleStockAdjusted(ctx context.Context, event *models.StockAdjustedEvent) error {
	if event.NewStock.LessThanOrEqual(event.MinStock) {
		w.alert(event.InventoryID, event.InventoryName, event.NewStock.String(), event.MinStock.String())
	}
	return nil
}

func (w *StockAlertWorker) alert(inventoryID, name, stock, minStock string) {
	util.LowStockAlertsTotal.Inc()
	w.logger.Warn("Low stock",
		zap.String("inventory_id", inventoryID),
		zap.String("name", name),
		zap.String("stock", stock),
		zap.String("min_stock", minStock))
}
