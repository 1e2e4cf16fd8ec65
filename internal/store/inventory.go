package store

import (
	"context"
	"database/sql"
	"fmt"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

// GetInventory retrieves one inventory item
func (s *Store) GetInventory(ctx context.Context, id string) (*models.Inventory, error) {
	var inv models.Inventory
	err := s.db.GetContext(ctx, &inv, "SELECT * FROM inventory WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("inventory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetAllInventory retrieves all inventory items
func (s *Store) GetAllInventory(ctx context.Context) ([]models.Inventory, error) {
	var items []models.Inventory
	err := s.db.SelectContext(ctx, &items, "SELECT * FROM inventory ORDER BY name")
	return items, err
}

// CreateInventory creates a new inventory item
func (s *Store) CreateInventory(ctx context.Context, inv *models.Inventory) error {
	query := `
		INSERT INTO inventory (name, unit, stock, min_stock, cost)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, inv, query,
		inv.Name, inv.Unit, inv.Stock, inv.MinStock, inv.Cost)
}

// UpdateInventory updates an inventory item's descriptive fields. Stock is
// never written here; it only changes through AdjustStock and CreateSale.
func (s *Store) UpdateInventory(ctx context.Context, inv *models.Inventory) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory
		SET name = $1, unit = $2, min_stock = $3, cost = $4, updated_at = NOW()
		WHERE id = $5`,
		inv.Name, inv.Unit, inv.MinStock, inv.Cost, inv.ID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("inventory %s: %w", inv.ID, ErrNotFound)
	}
	return nil
}

// DeleteInventory removes an inventory item
func (s *Store) DeleteInventory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM inventory WHERE id = $1", id)
	return err
}

// AdjustStock applies a stock delta under a row lock and appends the stock
// movement with previous/new snapshots, as one database transaction. The
// resulting stock may go negative; oversell is not blocked here.
func (s *Store) AdjustStock(ctx context.Context, inventoryID string, delta decimal.Decimal, movementType, notes, userID string, transactionID *string) (*models.StockMovement, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current decimal.Decimal
	err = tx.GetContext(ctx, &current,
		"SELECT stock FROM inventory WHERE id = $1 FOR UPDATE", inventoryID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("inventory %s: %w", inventoryID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock inventory: %w", err)
	}

	newStock := current.Add(delta)

	if _, err := tx.ExecContext(ctx,
		"UPDATE inventory SET stock = $1, updated_at = NOW() WHERE id = $2",
		newStock, inventoryID); err != nil {
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}

	var userRef *string
	if userID != "" {
		userRef = &userID
	}
	var noteRef *string
	if notes != "" {
		noteRef = &notes
	}

	var movement models.StockMovement
	if err := tx.GetContext(ctx, &movement, `
		INSERT INTO stock_movements (inventory_id, type, quantity, previous_stock, new_stock, notes, user_id, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *`,
		inventoryID, movementType, delta, current, newStock,
		noteRef, userRef, transactionID); err != nil {
		return nil, fmt.Errorf("failed to insert stock movement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit stock adjustment: %w", err)
	}

	return &movement, nil
}

// SetStock rewrites the stored stock level to an absolute value; the delta is
// computed inside the row lock so concurrent writers cannot interleave.
func (s *Store) SetStock(ctx context.Context, inventoryID string, newStock decimal.Decimal, movementType, notes, userID string) (*models.StockMovement, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current decimal.Decimal
	err = tx.GetContext(ctx, &current,
		"SELECT stock FROM inventory WHERE id = $1 FOR UPDATE", inventoryID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("inventory %s: %w", inventoryID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock inventory: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE inventory SET stock = $1, updated_at = NOW() WHERE id = $2",
		newStock, inventoryID); err != nil {
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}

	var userRef *string
	if userID != "" {
		userRef = &userID
	}
	var noteRef *string
	if notes != "" {
		noteRef = &notes
	}

	var movement models.StockMovement
	if err := tx.GetContext(ctx, &movement, `
		INSERT INTO stock_movements (inventory_id, type, quantity, previous_stock, new_stock, notes, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *`,
		inventoryID, movementType, newStock.Sub(current), current, newStock,
		noteRef, userRef); err != nil {
		return nil, fmt.Errorf("failed to insert stock movement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit stock adjustment: %w", err)
	}

	return &movement, nil
}

// GetStockMovements retrieves movements newest first, optionally for one item
func (s *Store) GetStockMovements(ctx context.Context, inventoryID string, limit int) ([]models.StockMovement, error) {
	if limit <= 0 {
		limit = 100
	}
	var movements []models.StockMovement
	if inventoryID != "" {
		err := s.db.SelectContext(ctx, &movements, `
			SELECT * FROM stock_movements
			WHERE inventory_id = $1
			ORDER BY created_at DESC LIMIT $2`, inventoryID, limit)
		return movements, err
	}
	err := s.db.SelectContext(ctx, &movements,
		"SELECT * FROM stock_movements ORDER BY created_at DESC LIMIT $1", limit)
	return movements, err
}
