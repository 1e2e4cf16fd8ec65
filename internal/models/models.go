package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products on the POS screen
type Category struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Type      string    `db:"type" json:"type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Product represents a sellable menu item
type Product struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	CategoryID  *string         `db:"category_id" json:"category_id,omitempty"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Description *string         `db:"description" json:"description,omitempty"`
	IsActive    bool            `db:"is_active" json:"is_active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Inventory represents a stocked ingredient
type Inventory struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Unit      string          `db:"unit" json:"unit"`
	Stock     decimal.Decimal `db:"stock" json:"stock"`
	MinStock  decimal.Decimal `db:"min_stock" json:"min_stock"`
	Cost      decimal.Decimal `db:"cost" json:"cost"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// RecipeEntry maps a product to the ingredient quantity consumed per unit sold
type RecipeEntry struct {
	ID          string          `db:"id" json:"id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	InventoryID string          `db:"inventory_id" json:"inventory_id"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
}

// Transaction represents a committed sale
type Transaction struct {
	ID                string          `db:"id" json:"id"`
	TransactionNumber string          `db:"transaction_number" json:"transaction_number"`
	UserID            *string         `db:"user_id" json:"user_id,omitempty"`
	TotalAmount       decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaymentMethod     string          `db:"payment_method" json:"payment_method"`
	PaymentAmount     decimal.Decimal `db:"payment_amount" json:"payment_amount"`
	ChangeAmount      decimal.Decimal `db:"change_amount" json:"change_amount"`
	Status            string          `db:"status" json:"status"`
	IdempotencyKey    *string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// TransactionItem is an immutable line of a transaction, price copied at sale time
type TransactionItem struct {
	ID            string          `db:"id" json:"id"`
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	ProductID     string          `db:"product_id" json:"product_id"`
	Quantity      int             `db:"quantity" json:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice    decimal.Decimal `db:"total_price" json:"total_price"`
}

// TransactionItemDetail joins the product name in for receipts and listings
type TransactionItemDetail struct {
	TransactionItem
	ProductName string `db:"product_name" json:"product_name"`
}

// StockMovement is the append-only audit record of one stock change
type StockMovement struct {
	ID            string          `db:"id" json:"id"`
	InventoryID   string          `db:"inventory_id" json:"inventory_id"`
	Type          string          `db:"type" json:"type"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	PreviousStock decimal.Decimal `db:"previous_stock" json:"previous_stock"`
	NewStock      decimal.Decimal `db:"new_stock" json:"new_stock"`
	Notes         *string         `db:"notes" json:"notes,omitempty"`
	UserID        *string         `db:"user_id" json:"user_id,omitempty"`
	TransactionID *string         `db:"transaction_id" json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// CashFlow is an append-only money in/out ledger entry
type CashFlow struct {
	ID          string          `db:"id" json:"id"`
	Type        string          `db:"type" json:"type"`
	Category    string          `db:"category" json:"category"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Description *string         `db:"description" json:"description,omitempty"`
	ReferenceID *string         `db:"reference_id" json:"reference_id,omitempty"`
	UserID      *string         `db:"user_id" json:"user_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// StockDeduction summarizes one inventory deduction applied by a committed sale
type StockDeduction struct {
	InventoryID   string          `json:"inventory_id"`
	InventoryName string          `json:"inventory_name"`
	Used          decimal.Decimal `json:"used"`
	NewStock      decimal.Decimal `json:"new_stock"`
	MinStock      decimal.Decimal `json:"min_stock"`
}

// Transaction statuses
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusCancelled = "cancelled"
)

// Payment methods
const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
)

// Stock movement types
const (
	MovementTypeIn         = "in"
	MovementTypeOut        = "out"
	MovementTypeAdjustment = "adjustment"
)

// Cash flow types and categories
const (
	CashFlowTypeIncome  = "income"
	CashFlowTypeExpense = "expense"

	CashFlowCategorySales = "sales"
)

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
