package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSaleCompleted  = "SALE_COMPLETED"
	EventTypeStockAdjusted  = "STOCK_ADJUSTED"
	EventTypeReceiptPrinted = "RECEIPT_PRINTED"
	EventTypePrintFailed    = "PRINT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCompletedEvent published after a sale commit is durable
type SaleCompletedEvent struct {
	BaseEvent
	TransactionID     string           `json:"transaction_id"`
	TransactionNumber string           `json:"transaction_number"`
	CashierID         string           `json:"cashier_id,omitempty"`
	TotalAmount       decimal.Decimal  `json:"total_amount"`
	PaymentMethod     string           `json:"payment_method"`
	Deductions        []StockDeduction `json:"deductions,omitempty"`
}

// StockAdjustedEvent published for manual stock adjustments
type StockAdjustedEvent struct {
	BaseEvent
	InventoryID   string          `json:"inventory_id"`
	InventoryName string          `json:"inventory_name"`
	MovementType  string          `json:"movement_type"`
	Delta         decimal.Decimal `json:"delta"`
	NewStock      decimal.Decimal `json:"new_stock"`
	MinStock      decimal.Decimal `json:"min_stock"`
}

// ReceiptPrintedEvent published when the print worker succeeds
type ReceiptPrintedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	Printer       string `json:"printer"`
}

// PrintFailedEvent published when printing fails; the sale stays committed
type PrintFailedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}
