package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/marketsync/internal/canon"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// inTx runs fn in a committed transaction and fails the test on error.
func inTx(t *testing.T, s *Store, tenant string, fn func(*Tx) error) {
	t.Helper()
	if err := s.WithTx(context.Background(), tenant, fn); err != nil {
		t.Fatalf("WithTx() failed: %v", err)
	}
}

func ms(n int64) time.Time {
	return time.UnixMilli(n).UTC()
}

// createTestOrder creates an order with one line, one event and one package.
func createTestOrder(number canon.ID) *canon.Order {
	return &canon.Order{
		OrderNumber:   number,
		Status:        "created",
		OrderDate:     ms(1700000000000),
		LastModified:  ms(1700000360000),
		Currency:      "TRY",
		GrossAmount:   decimal.RequireFromString("240.50"),
		TotalDiscount: decimal.RequireFromString("10.5"),
		TotalPrice:    decimal.RequireFromString("230"),
		Customer:      canon.Customer{ExternalID: "c-1", FirstName: "Ayşe", LastName: "Yılmaz"},
		Items: []canon.OrderItem{
			{ExternalID: "L1", ProductName: "Runner", Quantity: 2, Price: decimal.RequireFromString("120.25"), Currency: "TRY", Status: "created"},
		},
		StatusEvents: []canon.StatusEvent{
			{Status: "created", OccurredAt: ms(1700000000000)},
		},
		Packages: []canon.ShipmentPackage{
			{ExternalID: "pkg-1", Status: "created", CargoTrackingNumber: "7280027504111"},
		},
	}
}

func createTestProduct(id canon.ID) *canon.Product {
	return &canon.Product{
		ExternalID: id,
		Barcode:    "bc-" + string(id),
		Title:      "Product " + string(id),
		Quantity:   5,
		ListPrice:  decimal.RequireFromString("199.90"),
		SalePrice:  decimal.RequireFromString("149.9"),
		VatRate:    20,
		Approved:   true,
		Attributes: canon.Opaque(`[{"attributeName":"Color"}]`),
	}
}
