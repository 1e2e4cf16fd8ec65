package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/printer"
	"pos-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	printed []string
	resp    *printer.PrintResponse
	err     error
	status  *printer.Status
}

func (f *fakeGateway) Print(_ context.Context, text string) (*printer.PrintResponse, error) {
	f.printed = append(f.printed, text)
	return f.resp, f.err
}

func (f *fakeGateway) Status(_ context.Context) (*printer.Status, error) {
	return f.status, f.err
}

func seedCommittedSale(fake *fakeSaleStore) *models.Transaction {
	cashier := "kasir-1"
	txn := models.Transaction{
		ID:                "txn-1",
		TransactionNumber: "TXN-1700000000000",
		UserID:            &cashier,
		TotalAmount:       dec("100000"),
		PaymentMethod:     models.PaymentMethodCash,
		PaymentAmount:     dec("150000"),
		ChangeAmount:      dec("50000"),
		Status:            models.TransactionStatusCompleted,
		CreatedAt:         time.Date(2026, 1, 15, 10, 30, 0, 0, time.Local),
	}
	fake.transactions = append(fake.transactions, txn)
	fake.products["p1"] = models.Product{ID: "p1", Name: "Dimsum Ayam", Price: dec("50000"), IsActive: true}
	fake.itemsByTxn[txn.ID] = []models.TransactionItem{
		{ID: "ti-1", TransactionID: txn.ID, ProductID: "p1", Quantity: 2, UnitPrice: dec("50000"), TotalPrice: dec("100000")},
	}
	return &txn
}

func TestRenderReceipt(t *testing.T) {
	fake := newFakeSaleStore()
	txn := seedCommittedSale(fake)
	items, err := fake.GetTransactionItems(context.Background(), txn.ID)
	require.NoError(t, err)

	got := RenderReceipt("DIMSUM WARUNG", txn, items)

	expected := strings.Join([]string{
		"================================",
		"         DIMSUM WARUNG",
		"================================",
		"No: TXN-1700000000000",
		"Tanggal: 15/01/2026 10:30",
		"Kasir: kasir-1",
		"--------------------------------",
		"Dimsum Ayam",
		"2 x 50.000 = 100.000",
		"--------------------------------",
		"TOTAL: Rp 100.000",
		"Bayar: Rp 150.000",
		"Kembali: Rp 50.000",
		"================================",
		"       Terima Kasih Atas",
		"        Kunjungan Anda!",
		"================================",
	}, "\n") + "\n\n\n\n"

	assert.Equal(t, expected, got)
}

func TestRenderReceiptWithoutCashier(t *testing.T) {
	txn := &models.Transaction{
		TransactionNumber: "TXN-1",
		TotalAmount:       dec("5000"),
		PaymentAmount:     dec("5000"),
		ChangeAmount:      dec("0"),
		CreatedAt:         time.Now(),
	}

	got := RenderReceipt("WARUNG", txn, nil)
	assert.Contains(t, got, "Kasir: -\n")
	assert.Contains(t, got, "TOTAL: Rp 5.000\n")
}

func TestFormatRupiah(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"100", "100"},
		{"999", "999"},
		{"1000", "1.000"},
		{"50000", "50.000"},
		{"1234567", "1.234.567"},
		{"4.8", "4,8"},
		{"1000000.25", "1.000.000,25"},
		{"0.05", "0,05"},
		{"-1500", "-1.500"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatRupiah(dec(tc.in)), "input %s", tc.in)
	}
}

func TestPrintReceipt(t *testing.T) {
	fake := newFakeSaleStore()
	txn := seedCommittedSale(fake)
	gateway := &fakeGateway{
		resp: &printer.PrintResponse{Success: true, Printer: "RPP02N"},
	}
	publisher := &fakePublisher{}
	svc := NewReceiptService(fake, gateway, publisher, "DIMSUM WARUNG")

	resp, err := svc.PrintReceipt(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	require.Len(t, gateway.printed, 1)
	assert.Contains(t, gateway.printed[0], "TOTAL: Rp 100.000")
	assert.Empty(t, publisher.printFails)
	require.Len(t, publisher.printedEvents, 1)
	assert.Equal(t, txn.ID, publisher.printedEvents[0].TransactionID)
}

func TestPrintReceiptGatewayDown(t *testing.T) {
	fake := newFakeSaleStore()
	txn := seedCommittedSale(fake)
	gateway := &fakeGateway{err: assert.AnError}
	publisher := &fakePublisher{}
	svc := NewReceiptService(fake, gateway, publisher, "DIMSUM WARUNG")

	_, err := svc.PrintReceipt(context.Background(), txn.ID)
	require.ErrorIs(t, err, ErrPrintFailed)
	require.Len(t, publisher.printFails, 1)
	assert.Equal(t, txn.ID, publisher.printFails[0].TransactionID)
}

func TestPrintReceiptDeviceRejection(t *testing.T) {
	fake := newFakeSaleStore()
	txn := seedCommittedSale(fake)
	gateway := &fakeGateway{
		resp: &printer.PrintResponse{Success: false, Message: "out of paper"},
	}
	publisher := &fakePublisher{}
	svc := NewReceiptService(fake, gateway, publisher, "DIMSUM WARUNG")

	_, err := svc.PrintReceipt(context.Background(), txn.ID)
	require.ErrorIs(t, err, ErrPrintFailed)
	require.Len(t, publisher.printFails, 1)
	assert.Equal(t, "out of paper", publisher.printFails[0].Reason)
}

func TestPrintReceiptUnknownTransaction(t *testing.T) {
	svc := NewReceiptService(newFakeSaleStore(), &fakeGateway{}, &fakePublisher{}, "DIMSUM WARUNG")

	_, err := svc.PrintReceipt(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, ErrPrintFailed)
}
