package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/printer"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const receiptWidth = 32

// PrinterGateway is the external print server the receipts go to
type PrinterGateway interface {
	Print(ctx context.Context, text string) (*printer.PrintResponse, error)
	Status(ctx context.Context) (*printer.Status, error)
}

// ReceiptService renders receipts and forwards them to the print gateway.
// A failed print never touches the committed sale.
type ReceiptService struct {
	store     SaleStore
	gateway   PrinterGateway
	publisher EventPublisher
	storeName string
	logger    *zap.Logger
}

// NewReceiptService creates a new receipt service
func NewReceiptService(store SaleStore, gateway PrinterGateway, publisher EventPublisher, storeName string) *ReceiptService {
	return &ReceiptService{
		store:     store,
		gateway:   gateway,
		publisher: publisher,
		storeName: storeName,
		logger:    util.GetLogger(),
	}
}

// PrintReceipt loads a committed transaction, renders the receipt and sends
// it to the print server
func (s *ReceiptService) PrintReceipt(ctx context.Context, transactionID string) (*printer.PrintResponse, error) {
	ctx, span := util.StartSpan(ctx, "ReceiptService.PrintReceipt")
	defer span.End()

	txn, err := s.store.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetTransactionItems(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	text := RenderReceipt(s.storeName, txn, items)

	resp, err := s.gateway.Print(ctx, text)
	if err != nil {
		util.ReceiptPrintFailedTotal.WithLabelValues("gateway_error").Inc()
		s.logger.Warn("Receipt print failed",
			zap.String("transaction_id", transactionID),
			zap.Error(err))
		s.publishPrintFailed(ctx, transactionID, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrPrintFailed, err)
	}
	if !resp.Success {
		util.ReceiptPrintFailedTotal.WithLabelValues("device_error").Inc()
		s.logger.Warn("Printer rejected receipt",
			zap.String("transaction_id", transactionID),
			zap.String("message", resp.Message))
		s.publishPrintFailed(ctx, transactionID, resp.Message)
		return resp, fmt.Errorf("%w: %s", ErrPrintFailed, resp.Message)
	}

	util.ReceiptsPrintedTotal.Inc()
	s.logger.Info("Receipt printed",
		zap.String("transaction_id", transactionID),
		zap.String("printer", resp.Printer))

	event := &models.ReceiptPrintedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReceiptPrinted,
			Timestamp: time.Now(),
		},
		TransactionID: transactionID,
		Printer:       resp.Printer,
	}
	if err := s.publisher.PublishReceiptPrinted(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReceiptPrinted event", zap.Error(err))
	}
	return resp, nil
}

// PrinterStatus proxies the print server's device readiness check
func (s *ReceiptService) PrinterStatus(ctx context.Context) (*printer.Status, error) {
	return s.gateway.Status(ctx)
}

func (s *ReceiptService) publishPrintFailed(ctx context.Context, transactionID, reason string) {
	event := &models.PrintFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePrintFailed,
			Timestamp: time.Now(),
		},
		TransactionID: transactionID,
		Reason:        reason,
	}
	if err := s.publisher.PublishPrintFailed(ctx, event); err != nil {
		s.logger.Error("Failed to publish PrintFailed event", zap.Error(err))
	}
}

// RenderReceipt produces the 32-column thermal printer layout
func RenderReceipt(storeName string, txn *models.Transaction, items []models.TransactionItemDetail) string {
	var b strings.Builder
	divider := strings.Repeat("=", receiptWidth) + "\n"
	rule := strings.Repeat("-", receiptWidth) + "\n"

	cashier := "-"
	if txn.UserID != nil {
		cashier = *txn.UserID
	}

	b.WriteString(divider)
	b.WriteString(centerLine(storeName))
	b.WriteString(divider)
	fmt.Fprintf(&b, "No: %s\n", txn.TransactionNumber)
	fmt.Fprintf(&b, "Tanggal: %s\n", txn.CreatedAt.Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "Kasir: %s\n", cashier)
	b.WriteString(rule)

	for _, item := range items {
		fmt.Fprintf(&b, "%s\n", item.ProductName)
		fmt.Fprintf(&b, "%d x %s = %s\n",
			item.Quantity, FormatRupiah(item.UnitPrice), FormatRupiah(item.TotalPrice))
		b.WriteString(rule)
	}

	fmt.Fprintf(&b, "TOTAL: Rp %s\n", FormatRupiah(txn.TotalAmount))
	fmt.Fprintf(&b, "Bayar: Rp %s\n", FormatRupiah(txn.PaymentAmount))
	fmt.Fprintf(&b, "Kembali: Rp %s\n", FormatRupiah(txn.ChangeAmount))
	b.WriteString(divider)
	b.WriteString(centerLine("Terima Kasih Atas"))
	b.WriteString(centerLine("Kunjungan Anda!"))
	b.WriteString(divider)
	b.WriteString("\n\n\n") // feed for the cutter

	return b.String()
}

func centerLine(text string) string {
	pad := (receiptWidth - len(text)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + text + "\n"
}

// FormatRupiah formats an amount with Indonesian digit grouping: dots every
// three digits, comma before a non-zero fraction (e.g. 50000 -> "50.000",
// 4.8 -> "4,8")
func FormatRupiah(d decimal.Decimal) string {
	negative := d.IsNegative()
	abs := d.Abs()

	intPart := abs.Truncate(0)
	frac := abs.Sub(intPart)

	digits := intPart.String()
	var grouped strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}

	out := grouped.String()
	if !frac.IsZero() {
		fracStr := strings.TrimPrefix(frac.String(), "0.")
		out += "," + fracStr
	}
	if negative {
		out = "-" + out
	}
	return out
}
