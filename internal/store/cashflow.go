package store

import (
	"context"
	"time"

	"pos-service/internal/models"
)

// CreateCashFlow appends a ledger entry. There is no update or delete; the
// ledger is append-only.
func (s *Store) CreateCashFlow(ctx context.Context, entry *models.CashFlow) error {
	query := `
		INSERT INTO cash_flow (type, category, amount, description, reference_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, entry, query,
		entry.Type, entry.Category, entry.Amount, entry.Description,
		entry.ReferenceID, entry.UserID)
}

// CashFlowFilter narrows cash flow queries; zero values mean no filter
type CashFlowFilter struct {
	Type     string
	Category string
	From     time.Time
	To       time.Time
	Limit    int
}

// GetCashFlow retrieves ledger entries newest first, honoring the filter
func (s *Store) GetCashFlow(ctx context.Context, filter CashFlowFilter) ([]models.CashFlow, error) {
	query := "SELECT * FROM cash_flow WHERE 1=1"
	args := []interface{}{}

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += " AND type = ?"
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += " AND category = ?"
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += " AND created_at >= ?"
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += " AND created_at <= ?"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += " ORDER BY created_at DESC LIMIT ?"

	query = s.db.Rebind(query)

	var entries []models.CashFlow
	err := s.db.SelectContext(ctx, &entries, query, args...)
	return entries, err
}

// GetCashFlowByReference retrieves the ledger entries posted for a reference
// (e.g. a transaction id)
func (s *Store) GetCashFlowByReference(ctx context.Context, referenceID string) ([]models.CashFlow, error) {
	var entries []models.CashFlow
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM cash_flow WHERE reference_id = $1 ORDER BY created_at DESC", referenceID)
	return entries, err
}
