package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSaleStore applies the same commit semantics as the SQL store, in
// memory, so the coordinator logic can be tested without a database.
type fakeSaleStore struct {
	products  map[string]models.Product
	recipes   map[string][]models.RecipeEntry
	inventory map[string]*models.Inventory

	transactions []models.Transaction
	itemsByTxn   map[string][]models.TransactionItem
	movements    []models.StockMovement
	cashFlow     []models.CashFlow

	createCalls  int
	failAttempts int  // CreateSale calls to fail with a duplicate number error
	keyRace      bool // next CreateSale loses an idempotency-key race to a rival
}

func newFakeSaleStore() *fakeSaleStore {
	return &fakeSaleStore{
		products:   make(map[string]models.Product),
		recipes:    make(map[string][]models.RecipeEntry),
		inventory:  make(map[string]*models.Inventory),
		itemsByTxn: make(map[string][]models.TransactionItem),
	}
}

func (f *fakeSaleStore) GetProductsByIDs(_ context.Context, ids []string) ([]models.Product, error) {
	var out []models.Product
	seen := make(map[string]bool)
	for _, id := range ids {
		if p, ok := f.products[id]; ok && !seen[id] {
			out = append(out, p)
			seen[id] = true
		}
	}
	return out, nil
}

func (f *fakeSaleStore) GetTransactionByIdempotencyKey(_ context.Context, key string) (*models.Transaction, error) {
	for i := range f.transactions {
		if f.transactions[i].IdempotencyKey != nil && *f.transactions[i].IdempotencyKey == key {
			return &f.transactions[i], nil
		}
	}
	return nil, nil
}

func (f *fakeSaleStore) CreateSale(_ context.Context, txn *models.Transaction, items []models.TransactionItem) ([]models.StockDeduction, error) {
	f.createCalls++
	if f.failAttempts > 0 {
		f.failAttempts--
		return nil, fmt.Errorf("transaction number %s: %w", txn.TransactionNumber, store.ErrDuplicateTransactionNumber)
	}
	if f.keyRace {
		f.keyRace = false
		key := *txn.IdempotencyKey
		f.transactions = append(f.transactions, models.Transaction{
			ID:                uuid.New().String(),
			TransactionNumber: "TXN-RIVAL",
			TotalAmount:       txn.TotalAmount,
			PaymentMethod:     txn.PaymentMethod,
			PaymentAmount:     txn.PaymentAmount,
			ChangeAmount:      txn.ChangeAmount,
			Status:            models.TransactionStatusCompleted,
			IdempotencyKey:    &key,
			CreatedAt:         time.Now(),
		})
		return nil, fmt.Errorf("idempotency key: %w", store.ErrDuplicateIdempotencyKey)
	}
	for _, existing := range f.transactions {
		if existing.TransactionNumber == txn.TransactionNumber {
			return nil, fmt.Errorf("transaction number %s: %w", txn.TransactionNumber, store.ErrDuplicateTransactionNumber)
		}
	}

	txn.ID = uuid.New().String()
	txn.CreatedAt = time.Now()

	var deductions []models.StockDeduction
	for i := range items {
		items[i].ID = uuid.New().String()
		items[i].TransactionID = txn.ID

		for _, entry := range f.recipes[items[i].ProductID] {
			inv := f.inventory[entry.InventoryID]
			used := entry.Quantity.Mul(decimal.NewFromInt(int64(items[i].Quantity)))
			previous := inv.Stock
			inv.Stock = inv.Stock.Sub(used)

			f.movements = append(f.movements, models.StockMovement{
				ID:            uuid.New().String(),
				InventoryID:   entry.InventoryID,
				Type:          models.MovementTypeOut,
				Quantity:      used.Neg(),
				PreviousStock: previous,
				NewStock:      inv.Stock,
				TransactionID: &txn.ID,
			})
			deductions = append(deductions, models.StockDeduction{
				InventoryID:   entry.InventoryID,
				InventoryName: inv.Name,
				Used:          used,
				NewStock:      inv.Stock,
				MinStock:      inv.MinStock,
			})
		}
	}

	f.transactions = append(f.transactions, *txn)
	f.itemsByTxn[txn.ID] = items
	f.cashFlow = append(f.cashFlow, models.CashFlow{
		ID:          uuid.New().String(),
		Type:        models.CashFlowTypeIncome,
		Category:    models.CashFlowCategorySales,
		Amount:      txn.TotalAmount,
		ReferenceID: &txn.ID,
	})
	return deductions, nil
}

func (f *fakeSaleStore) GetTransactionByID(_ context.Context, id string) (*models.Transaction, error) {
	for i := range f.transactions {
		if f.transactions[i].ID == id {
			return &f.transactions[i], nil
		}
	}
	return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
}

func (f *fakeSaleStore) GetTransactions(_ context.Context, limit int) ([]models.Transaction, error) {
	return f.transactions, nil
}

func (f *fakeSaleStore) GetTransactionItems(_ context.Context, transactionID string) ([]models.TransactionItemDetail, error) {
	var out []models.TransactionItemDetail
	for _, item := range f.itemsByTxn[transactionID] {
		out = append(out, models.TransactionItemDetail{
			TransactionItem: item,
			ProductName:     f.products[item.ProductID].Name,
		})
	}
	return out, nil
}

type fakePublisher struct {
	saleEvents    []*models.SaleCompletedEvent
	stockEvents   []*models.StockAdjustedEvent
	printedEvents []*models.ReceiptPrintedEvent
	printFails    []*models.PrintFailedEvent
}

func (f *fakePublisher) PublishSaleCompleted(_ context.Context, event *models.SaleCompletedEvent) error {
	f.saleEvents = append(f.saleEvents, event)
	return nil
}

func (f *fakePublisher) PublishStockAdjusted(_ context.Context, event *models.StockAdjustedEvent) error {
	f.stockEvents = append(f.stockEvents, event)
	return nil
}

func (f *fakePublisher) PublishReceiptPrinted(_ context.Context, event *models.ReceiptPrintedEvent) error {
	f.printedEvents = append(f.printedEvents, event)
	return nil
}

func (f *fakePublisher) PublishPrintFailed(_ context.Context, event *models.PrintFailedEvent) error {
	f.printFails = append(f.printFails, event)
	return nil
}

type fakeStockCache struct {
	levels map[string]decimal.Decimal
}

func newFakeStockCache() *fakeStockCache {
	return &fakeStockCache{levels: make(map[string]decimal.Decimal)}
}

func (f *fakeStockCache) SetStock(_ context.Context, inventoryID string, stock decimal.Decimal) error {
	f.levels[inventoryID] = stock
	return nil
}

func (f *fakeStockCache) GetStock(_ context.Context, inventoryID string) (decimal.Decimal, bool, error) {
	stock, ok := f.levels[inventoryID]
	return stock, ok, nil
}

// AdjustStock mirrors the redis script: a missing key is left untouched.
func (f *fakeStockCache) AdjustStock(_ context.Context, inventoryID string, delta decimal.Decimal) error {
	if stock, ok := f.levels[inventoryID]; ok {
		f.levels[inventoryID] = stock.Add(delta)
	}
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dimsumFixture() *fakeSaleStore {
	fake := newFakeSaleStore()
	fake.products["p1"] = models.Product{
		ID: "p1", Name: "Dimsum Ayam", Price: dec("50000"), IsActive: true,
	}
	fake.inventory["i1"] = &models.Inventory{
		ID: "i1", Name: "Chicken", Unit: "kg", Stock: dec("5"), MinStock: dec("1"),
	}
	fake.recipes["p1"] = []models.RecipeEntry{
		{ID: "r1", ProductID: "p1", InventoryID: "i1", Quantity: dec("0.1")},
	}
	return fake
}

func TestCommitSale(t *testing.T) {
	fake := dimsumFixture()
	cache := newFakeStockCache()
	cache.levels["i1"] = dec("5") // seeded at boot by the stock sync
	publisher := &fakePublisher{}
	svc := NewSaleService(fake, cache, publisher)

	txn, err := svc.CommitSale(context.Background(), &CommitSaleRequest{
		Items: []SaleItemRequest{
			{ProductID: "p1", Quantity: 2, UnitPrice: dec("50000")},
		},
		PaymentMethod: models.PaymentMethodCash,
		PaymentAmount: dec("150000"),
	}, "cashier-1")
	require.NoError(t, err)

	assert.True(t, txn.TotalAmount.Equal(dec("100000")), "total: %s", txn.TotalAmount)
	assert.True(t, txn.ChangeAmount.Equal(dec("50000")), "change: %s", txn.ChangeAmount)
	assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
	assert.True(t, strings.HasPrefix(txn.TransactionNumber, "TXN-"))

	// Balance invariant: total equals the sum of item totals.
	sum := decimal.Zero
	for _, item := range fake.itemsByTxn[txn.ID] {
		sum = sum.Add(item.TotalPrice)
		assert.True(t, item.TotalPrice.Equal(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))))
	}
	assert.True(t, txn.TotalAmount.Equal(sum))

	// Chicken: 5kg - 2*0.1kg = 4.8kg, one movement of -0.2.
	assert.True(t, fake.inventory["i1"].Stock.Equal(dec("4.8")), "stock: %s", fake.inventory["i1"].Stock)
	require.Len(t, fake.movements, 1)
	assert.True(t, fake.movements[0].Quantity.Equal(dec("-0.2")))
	assert.True(t, fake.movements[0].PreviousStock.Equal(dec("5")))
	assert.True(t, fake.movements[0].NewStock.Equal(dec("4.8")))
	assert.Equal(t, models.MovementTypeOut, fake.movements[0].Type)

	// Exactly one income/sales ledger entry for the sale total.
	require.Len(t, fake.cashFlow, 1)
	assert.Equal(t, models.CashFlowTypeIncome, fake.cashFlow[0].Type)
	assert.Equal(t, models.CashFlowCategorySales, fake.cashFlow[0].Category)
	assert.True(t, fake.cashFlow[0].Amount.Equal(dec("100000")))

	// Cache mirrors the committed level and the event carries the deduction.
	cached, ok, _ := cache.GetStock(context.Background(), "i1")
	assert.True(t, ok)
	assert.True(t, cached.Equal(dec("4.8")))
	require.Len(t, publisher.saleEvents, 1)
	require.Len(t, publisher.saleEvents[0].Deductions, 1)
	assert.True(t, publisher.saleEvents[0].Deductions[0].Used.Equal(dec("0.2")))
}

func TestCommitSaleInsufficientPayment(t *testing.T) {
	fake := dimsumFixture()
	svc := NewSaleService(fake, newFakeStockCache(), &fakePublisher{})

	_, err := svc.CommitSale(context.Background(), &CommitSaleRequest{
		Items: []SaleItemRequest{
			{ProductID: "p1", Quantity: 2, UnitPrice: dec("50000")},
		},
		PaymentMethod: models.PaymentMethodCash,
		PaymentAmount: dec("40000"),
	}, "cashier-1")
	require.ErrorIs(t, err, ErrInsufficientPayment)

	// Rejected before any write.
	assert.Zero(t, fake.createCalls)
	assert.Empty(t, fake.transactions)
	assert.Empty(t, fake.movements)
	assert.Empty(t, fake.cashFlow)
	assert.True(t, fake.inventory["i1"].Stock.Equal(dec("5")))
}

func TestCommitSaleValidation(t *testing.T) {
	fake := dimsumFixture()
	fake.products["p2"] = models.Product{ID: "p2", Name: "Retired", Price: dec("10000"), IsActive: false}
	svc := NewSaleService(fake, newFakeStockCache(), &fakePublisher{})
	ctx := context.Background()

	_, err := svc.CommitSale(ctx, &CommitSaleRequest{
		PaymentMethod: models.PaymentMethodCash,
	}, "")
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.CommitSale(ctx, &CommitSaleRequest{
		Items:         []SaleItemRequest{{ProductID: "p1", Quantity: 0}},
		PaymentMethod: models.PaymentMethodCash,
	}, "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.CommitSale(ctx, &CommitSaleRequest{
		Items:         []SaleItemRequest{{ProductID: "p1", Quantity: 1}},
		PaymentMethod: "crypto",
	}, "")
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)

	_, err = svc.CommitSale(ctx, &CommitSaleRequest{
		Items:         []SaleItemRequest{{ProductID: "missing", Quantity: 1}},
		PaymentMethod: models.PaymentMethodCard,
	}, "")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.CommitSale(ctx, &CommitSaleRequest{
		Items:         []SaleItemRequest{{ProductID: "p2", Quantity: 1}},
		PaymentMethod: models.PaymentMethodCard,
	}, "")
	assert.ErrorIs(t, err, ErrProductInactive)

	assert.Zero(t, fake.createCalls)
}

func TestCommitSaleUsesCatalogPrice(t *testing.T) {
	fake := dimsumFixture()
	svc := NewSaleService(fake, newFakeStockCache(), &fakePublisher{})

	txn, err := svc.CommitSale(context.Background(), &CommitSaleRequest{
		Items: []SaleItemRequest{
			{ProductID: "p1", Quantity: 3}, // no unit price in the cart
		},
		PaymentMethod: models.PaymentMethodCard,
	}, "")
	require.NoError(t, err)

	assert.True(t, txn.TotalAmount.Equal(dec("150000")))
	assert.True(t, txn.PaymentAmount.Equal(dec("150000")))
	assert.True(t, txn.ChangeAmount.IsZero())
}

func TestCommitSaleRetriesOnDuplicateNumber(t *testing.T) {
	fake := dimsumFixture()
	fake.failAttempts = 1
	svc := NewSaleService(fake, newFakeStockCache(), &fakePublisher{})

	txn, err := svc.CommitSale(context.Background(), &CommitSaleRequest{
		Items:         []SaleItemRequest{{ProductID: "p1", Quantity: 1, UnitPrice: dec("50000")}},
		PaymentMethod: models.PaymentMethodCash,
		PaymentAmount: dec("50000"),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.createCalls)
	assert.NotEmpty(t, txn.ID)
}

func TestCommitSaleGivesUpAfterRepeatedCollisions(t *testing.T) {
	fake := dimsumFixture()
	fake.failAttempts = maxCommitAttempts
	svc := NewSaleService(fake, newFakeStockCache(), &fakePublisher{})

	_, err := svc.CommitSale(context.Background(), &CommitSaleRequest{
		Items:         []SaleItemRequest{{ProductID: "p1", Quantity: 1, UnitPrice: dec("50000")}},
		PaymentMethod: models.PaymentMethodCash,
		PaymentAmount: dec("50000"),
	}, "")
	require.ErrorIs(t, err, store.ErrDuplicateTransactionNumber)
	assert.Empty(t, fake.transactions)
}

func TestCommitSaleIdempotency(t *testing.T) {
	fake := dimsumFixture()
	svc := NewSaleService(fake, newFakeStockCache(), &fakePublisher{})

	req := &CommitSaleRequest{
		Items:          []SaleItemRequest{{ProductID: "p1", Quantity: 1, UnitPrice: dec("50000")}},
		PaymentMethod:  models.PaymentMethodCash,
		PaymentAmount:  dec("50000"),
		IdempotencyKey: "pos-1-submit-42",
	}

	first, err := svc.CommitSale(context.Background(), req, "cashier-1")
	require.NoError(t, err)

	second, err := svc.CommitSale(context.Background(), req, "cashier-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, fake.createCalls)
	assert.Len(t, fake.cashFlow, 1)
	assert.True(t, fake.inventory["i1"].Stock.Equal(dec("4.9")))
}

func TestCommitSaleIdempotencyRace(t *testing.T) {
	// Two identical submits race past the idempotency lookup; the loser's
	// unique violation is on the key, not the transaction number, so it must
	// return the rival's committed transaction instead of retrying numbers.
	fake := dimsumFixture()
	fake.keyRace = true
	svc := NewSaleService(fake, newFakeStockCache(), &fakePublisher{})

	txn, err := svc.CommitSale(context.Background(), &CommitSaleRequest{
		Items:          []SaleItemRequest{{ProductID: "p1", Quantity: 1, UnitPrice: dec("50000")}},
		PaymentMethod:  models.PaymentMethodCash,
		PaymentAmount:  dec("50000"),
		IdempotencyKey: "pos-1-submit-7",
	}, "cashier-1")
	require.NoError(t, err)

	assert.Equal(t, "TXN-RIVAL", txn.TransactionNumber)
	assert.Equal(t, 1, fake.createCalls, "fresh transaction numbers cannot resolve a key conflict")
	assert.Len(t, fake.transactions, 1)
}

func TestCommitSaleProductWithoutRecipe(t *testing.T) {
	fake := newFakeSaleStore()
	fake.products["p1"] = models.Product{ID: "p1", Name: "Es Teh", Price: dec("5000"), IsActive: true}
	svc := NewSaleService(fake, newFakeStockCache(), &fakePublisher{})

	txn, err := svc.CommitSale(context.Background(), &CommitSaleRequest{
		Items:         []SaleItemRequest{{ProductID: "p1", Quantity: 2, UnitPrice: dec("5000")}},
		PaymentMethod: models.PaymentMethodCash,
		PaymentAmount: dec("10000"),
	}, "")
	require.NoError(t, err)

	assert.True(t, txn.TotalAmount.Equal(dec("10000")))
	assert.Empty(t, fake.movements, "no recipe means no stock effect")
	assert.Len(t, fake.cashFlow, 1)
}

func TestSettlePayment(t *testing.T) {
	paid, change, err := settlePayment(models.PaymentMethodCash, dec("150000"), dec("100000"))
	require.NoError(t, err)
	assert.True(t, paid.Equal(dec("150000")))
	assert.True(t, change.Equal(dec("50000")))

	_, _, err = settlePayment(models.PaymentMethodCash, dec("40000"), dec("100000"))
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	paid, change, err = settlePayment(models.PaymentMethodCard, decimal.Zero, dec("100000"))
	require.NoError(t, err)
	assert.True(t, paid.Equal(dec("100000")))
	assert.True(t, change.IsZero())
}

func TestNewTransactionNumber(t *testing.T) {
	first := newTransactionNumber(0)
	assert.True(t, strings.HasPrefix(first, "TXN-"))

	retry := newTransactionNumber(1)
	assert.True(t, strings.HasPrefix(retry, "TXN-"))
	assert.NotEqual(t, first, retry)
}
