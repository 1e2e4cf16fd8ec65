package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxCommitAttempts = 3

// SaleStore is the persistence surface the sale coordinator needs
type SaleStore interface {
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	CreateSale(ctx context.Context, txn *models.Transaction, items []models.TransactionItem) ([]models.StockDeduction, error)
	GetTransactionByID(ctx context.Context, id string) (*models.Transaction, error)
	GetTransactions(ctx context.Context, limit int) ([]models.Transaction, error)
	GetTransactionItems(ctx context.Context, transactionID string) ([]models.TransactionItemDetail, error)
}

// EventPublisher publishes domain events after durable commits
type EventPublisher interface {
	PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error
	PublishStockAdjusted(ctx context.Context, event *models.StockAdjustedEvent) error
	PublishReceiptPrinted(ctx context.Context, event *models.ReceiptPrintedEvent) error
	PublishPrintFailed(ctx context.Context, event *models.PrintFailedEvent) error
}

// StockCache mirrors committed stock levels for cheap dashboard reads
type StockCache interface {
	SetStock(ctx context.Context, inventoryID string, stock decimal.Decimal) error
	GetStock(ctx context.Context, inventoryID string) (decimal.Decimal, bool, error)
	AdjustStock(ctx context.Context, inventoryID string, delta decimal.Decimal) error
}

// SaleService coordinates the sale commit workflow
type SaleService struct {
	store     SaleStore
	cache     StockCache
	publisher EventPublisher
	logger    *zap.Logger
}

// NewSaleService creates a new sale service
func NewSaleService(store SaleStore, cache StockCache, publisher EventPublisher) *SaleService {
	return &SaleService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// CommitSaleRequest represents a request to commit a sale
type CommitSaleRequest struct {
	Items          []SaleItemRequest `json:"items" binding:"required,min=1"`
	PaymentMethod  string            `json:"payment_method" binding:"required"`
	PaymentAmount  decimal.Decimal   `json:"payment_amount"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// SaleItemRequest represents one cart line. UnitPrice is optional; when zero
// the catalog price is used, and it is copied into the item either way.
type SaleItemRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CommitSale validates the cart, then persists the transaction, its items,
// recipe-driven inventory deductions, stock movements and the cash flow
// entry as one atomic unit. Nothing is written before validation passes.
func (s *SaleService) CommitSale(ctx context.Context, req *CommitSaleRequest, cashierID string) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "SaleService.CommitSale")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SaleCommitLatency.Observe(time.Since(start).Seconds())
	}()

	if req.IdempotencyKey != "" {
		existing, err := s.store.GetTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate sale request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("transaction_id", existing.ID))
			return existing, nil
		}
	}

	products, err := s.validateCart(ctx, req)
	if err != nil {
		util.SalesFailedTotal.WithLabelValues("invalid_cart").Inc()
		return nil, err
	}

	items := make([]models.TransactionItem, 0, len(req.Items))
	total := decimal.Zero
	for _, line := range req.Items {
		unitPrice := line.UnitPrice
		if unitPrice.LessThanOrEqual(decimal.Zero) {
			unitPrice = products[line.ProductID].Price
		}
		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(lineTotal)
		items = append(items, models.TransactionItem{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			UnitPrice:  unitPrice,
			TotalPrice: lineTotal,
		})
	}

	paymentAmount, changeAmount, err := settlePayment(req.PaymentMethod, req.PaymentAmount, total)
	if err != nil {
		util.SalesFailedTotal.WithLabelValues("insufficient_payment").Inc()
		return nil, err
	}

	txn := &models.Transaction{
		UserID:         optional(cashierID),
		TotalAmount:    total,
		PaymentMethod:  req.PaymentMethod,
		PaymentAmount:  paymentAmount,
		ChangeAmount:   changeAmount,
		Status:         models.TransactionStatusCompleted,
		IdempotencyKey: optional(req.IdempotencyKey),
	}

	var deductions []models.StockDeduction
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		txn.TransactionNumber = newTransactionNumber(attempt)

		deductions, err = s.store.CreateSale(ctx, txn, items)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
			// A rival submit with the same key committed between the lookup
			// above and our insert; hand back its transaction.
			existing, lookupErr := s.store.GetTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				s.logger.Info("Duplicate sale request detected",
					zap.String("idempotency_key", req.IdempotencyKey),
					zap.String("transaction_id", existing.ID))
				return existing, nil
			}
			util.SalesFailedTotal.WithLabelValues("db_error").Inc()
			return nil, fmt.Errorf("sale commit failed: %w", err)
		}
		if errors.Is(err, store.ErrDuplicateTransactionNumber) {
			s.logger.Warn("Transaction number collision, retrying",
				zap.String("transaction_number", txn.TransactionNumber),
				zap.Int("attempt", attempt+1))
			continue
		}
		util.SalesFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("sale commit failed: %w", err)
	}
	if err != nil {
		util.SalesFailedTotal.WithLabelValues("number_collision").Inc()
		return nil, fmt.Errorf("sale commit failed: %w", err)
	}

	util.SalesCommittedTotal.Inc()
	util.StockDeductionsTotal.Add(float64(len(deductions)))
	s.logger.Info("Sale committed",
		zap.String("transaction_id", txn.ID),
		zap.String("transaction_number", txn.TransactionNumber),
		zap.String("total_amount", txn.TotalAmount.String()),
		zap.Int("deductions", len(deductions)))

	s.refreshCache(ctx, deductions)

	event := &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCompleted,
			Timestamp: time.Now(),
		},
		TransactionID:     txn.ID,
		TransactionNumber: txn.TransactionNumber,
		CashierID:         cashierID,
		TotalAmount:       txn.TotalAmount,
		PaymentMethod:     txn.PaymentMethod,
		Deductions:        deductions,
	}
	if err := s.publisher.PublishSaleCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish SaleCompleted event", zap.Error(err))
	}

	return txn, nil
}

// GetTransaction retrieves a transaction and its items
func (s *SaleService) GetTransaction(ctx context.Context, id string) (*models.Transaction, []models.TransactionItemDetail, error) {
	txn, err := s.store.GetTransactionByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetTransactionItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return txn, items, nil
}

// ListTransactions retrieves recent transactions
func (s *SaleService) ListTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	return s.store.GetTransactions(ctx, limit)
}

// validateCart rejects malformed carts before any write happens
func (s *SaleService) validateCart(ctx context.Context, req *CommitSaleRequest) (map[string]*models.Product, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	switch req.PaymentMethod {
	case models.PaymentMethodCash, models.PaymentMethodCard, models.PaymentMethodTransfer:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentMethod, req.PaymentMethod)
	}

	ids := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, line.ProductID)
		}
		ids = append(ids, line.ProductID)
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	productMap := make(map[string]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	for _, line := range req.Items {
		product, ok := productMap[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
		}
		if !product.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrProductInactive, product.Name)
		}
	}

	return productMap, nil
}

// refreshCache applies each deduction as a delta so concurrent sales cannot
// clobber each other's cache writes; failures only log since the database
// already holds the truth
func (s *SaleService) refreshCache(ctx context.Context, deductions []models.StockDeduction) {
	for _, d := range deductions {
		if err := s.cache.AdjustStock(ctx, d.InventoryID, d.Used.Neg()); err != nil {
			s.logger.Warn("Failed to refresh stock cache",
				zap.String("inventory_id", d.InventoryID),
				zap.Error(err))
		}
	}
}

// settlePayment computes the tendered and change amounts. Cash below total
// is rejected; non-cash settles exactly at the total with zero change.
func settlePayment(method string, tendered, total decimal.Decimal) (paymentAmount, changeAmount decimal.Decimal, err error) {
	if method == models.PaymentMethodCash {
		if tendered.LessThan(total) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: tendered %s, total %s",
				ErrInsufficientPayment, tendered.String(), total.String())
		}
		return tendered, tendered.Sub(total), nil
	}
	if tendered.LessThanOrEqual(decimal.Zero) {
		tendered = total
	}
	return tendered, decimal.Zero, nil
}

// newTransactionNumber generates a time-based transaction number. Retries
// append a random suffix so a same-millisecond collision cannot repeat.
func newTransactionNumber(attempt int) string {
	number := fmt.Sprintf("TXN-%d", time.Now().UnixMilli())
	if attempt > 0 {
		number = fmt.Sprintf("%s-%s", number, uuid.New().String()[:4])
	}
	return number
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
