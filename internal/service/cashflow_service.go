package service

import (
	"context"
	"fmt"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CashFlowStore is the persistence surface for the cash ledger
type CashFlowStore interface {
	CreateCashFlow(ctx context.Context, entry *models.CashFlow) error
	GetCashFlow(ctx context.Context, filter store.CashFlowFilter) ([]models.CashFlow, error)
	GetCashFlowByReference(ctx context.Context, referenceID string) ([]models.CashFlow, error)
}

// CashFlowService owns manual cash ledger entries and reporting queries.
// Sale income entries are posted inside the sale commit, not here.
type CashFlowService struct {
	store  CashFlowStore
	logger *zap.Logger
}

// NewCashFlowService creates a new cash flow service
func NewCashFlowService(store CashFlowStore) *CashFlowService {
	return &CashFlowService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// RecordCashFlowRequest represents a manual ledger entry
type RecordCashFlowRequest struct {
	Type        string          `json:"type" binding:"required"`
	Category    string          `json:"category" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description,omitempty"`
	ReferenceID string          `json:"reference_id,omitempty"`
}

// Record appends a ledger entry
func (s *CashFlowService) Record(ctx context.Context, req *RecordCashFlowRequest, userID string) (*models.CashFlow, error) {
	if req.Type != models.CashFlowTypeIncome && req.Type != models.CashFlowTypeExpense {
		return nil, fmt.Errorf("unknown cash flow type: %s", req.Type)
	}
	if req.Category == "" {
		return nil, fmt.Errorf("category is required")
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, req.Amount.String())
	}

	entry := &models.CashFlow{
		Type:        req.Type,
		Category:    req.Category,
		Amount:      req.Amount,
		Description: optional(req.Description),
		ReferenceID: optional(req.ReferenceID),
		UserID:      optional(userID),
	}

	if err := s.store.CreateCashFlow(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record cash flow: %w", err)
	}

	util.CashFlowEntriesTotal.WithLabelValues(entry.Type).Inc()
	s.logger.Info("Cash flow entry recorded",
		zap.String("id", entry.ID),
		zap.String("type", entry.Type),
		zap.String("category", entry.Category),
		zap.String("amount", entry.Amount.String()))

	return entry, nil
}

// List retrieves ledger entries honoring the filter
func (s *CashFlowService) List(ctx context.Context, filter store.CashFlowFilter) ([]models.CashFlow, error) {
	return s.store.GetCashFlow(ctx, filter)
}

// ListByReference retrieves the entries posted for a reference id
func (s *CashFlowService) ListByReference(ctx context.Context, referenceID string) ([]models.CashFlow, error) {
	return s.store.GetCashFlowByReference(ctx, referenceID)
}
