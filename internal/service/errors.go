package service

import "errors"

// Validation and commit errors surfaced to the API layer. Errors from the
// persistence layer (store.ErrNotFound, store.ErrDuplicateTransactionNumber)
// pass through wrapped and stay matchable with errors.Is.
var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidPaymentMethod = errors.New("unknown payment method")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInsufficientPayment  = errors.New("payment amount below total")
	ErrProductNotFound      = errors.New("product not found")
	ErrProductInactive      = errors.New("product is inactive")
	ErrPrintFailed          = errors.New("receipt print failed")
)
