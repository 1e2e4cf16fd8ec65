package store

import (
	"context"
	"database/sql"
	"fmt"

	"pos-service/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	pqUniqueViolation        = "23505"
	idempotencyKeyConstraint = "transactions_idempotency_key_key"
)

// CreateSale persists a sale as one database transaction: the header, its
// items, recipe-driven inventory deductions with their stock movements, and
// the cash flow entry. Any failure rolls the whole sale back.
//
// Inventory rows are locked with SELECT ... FOR UPDATE so concurrent sales
// consuming the same ingredient serialize their deductions.
func (s *Store) CreateSale(ctx context.Context, txn *models.Transaction, items []models.TransactionItem) ([]models.StockDeduction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, txn, `
		INSERT INTO transactions (transaction_number, user_id, total_amount, payment_method, payment_amount, change_amount, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		txn.TransactionNumber, txn.UserID, txn.TotalAmount, txn.PaymentMethod,
		txn.PaymentAmount, txn.ChangeAmount, txn.Status, txn.IdempotencyKey)
	if err != nil {
		// The table carries two unique constraints; a violation on the
		// idempotency key means a rival submit already committed this sale.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			if pqErr.Constraint == idempotencyKeyConstraint {
				return nil, fmt.Errorf("idempotency key: %w", ErrDuplicateIdempotencyKey)
			}
			return nil, fmt.Errorf("transaction number %s: %w", txn.TransactionNumber, ErrDuplicateTransactionNumber)
		}
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	saleNote := fmt.Sprintf("Sale: %s", txn.TransactionNumber)
	var deductions []models.StockDeduction

	for i := range items {
		items[i].TransactionID = txn.ID

		if err := tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO transaction_items (transaction_id, product_id, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			items[i].TransactionID, items[i].ProductID, items[i].Quantity,
			items[i].UnitPrice, items[i].TotalPrice); err != nil {
			return nil, fmt.Errorf("failed to insert transaction item: %w", err)
		}

		var entries []models.RecipeEntry
		if err := tx.SelectContext(ctx, &entries,
			"SELECT * FROM product_ingredients WHERE product_id = $1", items[i].ProductID); err != nil {
			return nil, fmt.Errorf("failed to resolve recipe: %w", err)
		}

		for _, entry := range entries {
			used := entry.Quantity.Mul(decimal.NewFromInt(int64(items[i].Quantity)))

			var inv struct {
				Name     string          `db:"name"`
				Stock    decimal.Decimal `db:"stock"`
				MinStock decimal.Decimal `db:"min_stock"`
			}
			err := tx.GetContext(ctx, &inv,
				"SELECT name, stock, min_stock FROM inventory WHERE id = $1 FOR UPDATE", entry.InventoryID)
			if err == sql.ErrNoRows {
				return nil, fmt.Errorf("inventory %s: %w", entry.InventoryID, ErrNotFound)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to lock inventory: %w", err)
			}

			newStock := inv.Stock.Sub(used)

			if _, err := tx.ExecContext(ctx,
				"UPDATE inventory SET stock = $1, updated_at = NOW() WHERE id = $2",
				newStock, entry.InventoryID); err != nil {
				return nil, fmt.Errorf("failed to update stock: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO stock_movements (inventory_id, type, quantity, previous_stock, new_stock, notes, user_id, transaction_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				entry.InventoryID, models.MovementTypeOut, used.Neg(), inv.Stock, newStock,
				saleNote, txn.UserID, txn.ID); err != nil {
				return nil, fmt.Errorf("failed to insert stock movement: %w", err)
			}

			deductions = append(deductions, models.StockDeduction{
				InventoryID:   entry.InventoryID,
				InventoryName: inv.Name,
				Used:          used,
				NewStock:      newStock,
				MinStock:      inv.MinStock,
			})
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cash_flow (type, category, amount, description, reference_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		models.CashFlowTypeIncome, models.CashFlowCategorySales, txn.TotalAmount,
		saleNote, txn.ID, txn.UserID); err != nil {
		return nil, fmt.Errorf("failed to insert cash flow entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit sale: %w", err)
	}

	return deductions, nil
}

// GetTransactionByID retrieves a transaction by ID
func (s *Store) GetTransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.GetContext(ctx, &txn, "SELECT * FROM transactions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// GetTransactionByIdempotencyKey retrieves a transaction by idempotency key
func (s *Store) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.GetContext(ctx, &txn, "SELECT * FROM transactions WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// GetTransactions retrieves recent transactions, newest first
func (s *Store) GetTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txns []models.Transaction
	err := s.db.SelectContext(ctx, &txns,
		"SELECT * FROM transactions ORDER BY created_at DESC LIMIT $1", limit)
	return txns, err
}

// GetTransactionItems retrieves all items for a transaction with product names
func (s *Store) GetTransactionItems(ctx context.Context, transactionID string) ([]models.TransactionItemDetail, error) {
	var items []models.TransactionItemDetail
	err := s.db.SelectContext(ctx, &items, `
		SELECT ti.*, p.name AS product_name
		FROM transaction_items ti
		JOIN products p ON p.id = ti.product_id
		WHERE ti.transaction_id = $1
		ORDER BY ti.id`, transactionID)
	return items, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
