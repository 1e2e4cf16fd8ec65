package service

import (
	"context"
	"fmt"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InventoryStore is the persistence surface for the inventory ledger
type InventoryStore interface {
	GetInventory(ctx context.Context, id string) (*models.Inventory, error)
	GetAllInventory(ctx context.Context) ([]models.Inventory, error)
	CreateInventory(ctx context.Context, inv *models.Inventory) error
	UpdateInventory(ctx context.Context, inv *models.Inventory) error
	DeleteInventory(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, inventoryID string, delta decimal.Decimal, movementType, notes, userID string, transactionID *string) (*models.StockMovement, error)
	SetStock(ctx context.Context, inventoryID string, newStock decimal.Decimal, movementType, notes, userID string) (*models.StockMovement, error)
	GetStockMovements(ctx context.Context, inventoryID string, limit int) ([]models.StockMovement, error)
}

// InventoryService owns the inventory ledger operations
type InventoryService struct {
	store     InventoryStore
	cache     StockCache
	publisher EventPublisher
	logger    *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store InventoryStore, cache StockCache, publisher EventPublisher) *InventoryService {
	return &InventoryService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// InventoryStatus pairs an inventory item with its low-stock flag
type InventoryStatus struct {
	models.Inventory
	LowStock bool `json:"low_stock"`
}

// ListInventory retrieves all inventory items with low-stock flags
func (s *InventoryService) ListInventory(ctx context.Context) ([]InventoryStatus, error) {
	items, err := s.store.GetAllInventory(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]InventoryStatus, 0, len(items))
	for _, item := range items {
		statuses = append(statuses, InventoryStatus{
			Inventory: item,
			LowStock:  item.Stock.LessThanOrEqual(item.MinStock),
		})
	}
	return statuses, nil
}

// GetStock returns the current stock level, serving from the cache when it
// holds the item and falling back to the database
func (s *InventoryService) GetStock(ctx context.Context, inventoryID string) (decimal.Decimal, error) {
	if stock, ok, err := s.cache.GetStock(ctx, inventoryID); err == nil && ok {
		return stock, nil
	} else if err != nil {
		s.logger.Warn("Stock cache read failed, falling back to DB",
			zap.String("inventory_id", inventoryID),
			zap.Error(err))
	}

	inv, err := s.store.GetInventory(ctx, inventoryID)
	if err != nil {
		return decimal.Zero, err
	}
	return inv.Stock, nil
}

// CreateInventory creates an inventory item and seeds the stock cache
func (s *InventoryService) CreateInventory(ctx context.Context, inv *models.Inventory) error {
	if err := s.store.CreateInventory(ctx, inv); err != nil {
		return err
	}
	if err := s.cache.SetStock(ctx, inv.ID, inv.Stock); err != nil {
		s.logger.Warn("Failed to seed stock cache", zap.String("inventory_id", inv.ID), zap.Error(err))
	}
	return nil
}

// UpdateInventory updates descriptive fields of an inventory item
func (s *InventoryService) UpdateInventory(ctx context.Context, inv *models.Inventory) error {
	return s.store.UpdateInventory(ctx, inv)
}

// DeleteInventory removes an inventory item
func (s *InventoryService) DeleteInventory(ctx context.Context, id string) error {
	return s.store.DeleteInventory(ctx, id)
}

// AdjustStock applies a delta to an item's stock, writing the movement audit
// row in the same database transaction
func (s *InventoryService) AdjustStock(ctx context.Context, inventoryID string, delta decimal.Decimal, movementType, notes, cashierID string) (*models.StockMovement, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.AdjustStock")
	defer span.End()

	if err := validateMovementType(movementType); err != nil {
		return nil, err
	}
	if delta.IsZero() {
		return nil, fmt.Errorf("%w: zero delta", ErrInvalidAmount)
	}

	movement, err := s.store.AdjustStock(ctx, inventoryID, delta, movementType, notes, cashierID, nil)
	if err != nil {
		return nil, err
	}

	s.finishAdjustment(ctx, movement)
	return movement, nil
}

// SetStock rewrites an item's stock to an absolute level; the movement row
// records the computed delta
func (s *InventoryService) SetStock(ctx context.Context, inventoryID string, newStock decimal.Decimal, movementType, notes, cashierID string) (*models.StockMovement, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.SetStock")
	defer span.End()

	if movementType == "" {
		movementType = models.MovementTypeAdjustment
	}
	if err := validateMovementType(movementType); err != nil {
		return nil, err
	}

	movement, err := s.store.SetStock(ctx, inventoryID, newStock, movementType, notes, cashierID)
	if err != nil {
		return nil, err
	}

	s.finishAdjustment(ctx, movement)
	return movement, nil
}

// ListMovements retrieves stock movements newest first
func (s *InventoryService) ListMovements(ctx context.Context, inventoryID string, limit int) ([]models.StockMovement, error) {
	return s.store.GetStockMovements(ctx, inventoryID, limit)
}

// SyncStockToCache mirrors all database stock levels into the cache
func (s *InventoryService) SyncStockToCache(ctx context.Context) error {
	s.logger.Info("Starting stock sync to cache")

	items, err := s.store.GetAllInventory(ctx)
	if err != nil {
		return fmt.Errorf("failed to load inventory: %w", err)
	}

	for _, item := range items {
		if err := s.cache.SetStock(ctx, item.ID, item.Stock); err != nil {
			s.logger.Error("Failed to cache stock level",
				zap.String("inventory_id", item.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("Stock sync completed", zap.Int("count", len(items)))
	return nil
}

// finishAdjustment updates the cache and publishes the adjustment event
// after the movement is durable
func (s *InventoryService) finishAdjustment(ctx context.Context, movement *models.StockMovement) {
	util.StockAdjustmentsTotal.WithLabelValues(movement.Type).Inc()

	if err := s.cache.SetStock(ctx, movement.InventoryID, movement.NewStock); err != nil {
		s.logger.Warn("Failed to refresh stock cache",
			zap.String("inventory_id", movement.InventoryID),
			zap.Error(err))
	}

	inv, err := s.store.GetInventory(ctx, movement.InventoryID)
	if err != nil {
		s.logger.Warn("Failed to load inventory for event",
			zap.String("inventory_id", movement.InventoryID),
			zap.Error(err))
		return
	}

	event := &models.StockAdjustedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeStockAdjusted,
			Timestamp: time.Now(),
		},
		InventoryID:   movement.InventoryID,
		InventoryName: inv.Name,
		MovementType:  movement.Type,
		Delta:         movement.Quantity,
		NewStock:      movement.NewStock,
		MinStock:      inv.MinStock,
	}
	if err := s.publisher.PublishStockAdjusted(ctx, event); err != nil {
		s.logger.Error("Failed to publish StockAdjusted event", zap.Error(err))
	}
}

func validateMovementType(movementType string) error {
	switch movementType {
	case models.MovementTypeIn, models.MovementTypeOut, models.MovementTypeAdjustment:
		return nil
	default:
		return fmt.Errorf("unknown movement type: %s", movementType)
	}
}
