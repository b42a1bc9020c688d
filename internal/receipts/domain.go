// Package receipts manages goods-in documents for supplier purchases. A
// receipt's ledger effect is always reproducible from the document: edits
// revert the old effect with compensating entries and re-apply the new
// items, never touching history.
package receipts

import (
	"fmt"
	"time"
)

// Receipt is a goods-in document. Deleted receipts are kept with a
// tombstone because their ledger reversal references them.
type Receipt struct {
	ID           int64
	Code         string
	WarehouseID  int64
	SupplierName string
	Notes        string
	Total        float64
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    time.Time
	Items        []ReceiptItem
}

// Deleted reports whether the receipt has been soft-deleted.
func (r Receipt) Deleted() bool {
	return !r.DeletedAt.IsZero()
}

// ReceiptItem is one purchased product line. Quantity is expressed in Unit;
// LineTotal is quantity times unit price in the entry unit.
type ReceiptItem struct {
	ID        int64
	ReceiptID int64
	ProductID int64
	Quantity  float64
	Unit      string
	UnitPrice float64
	LineTotal float64
}

// ListFilters narrows receipt listings.
type ListFilters struct {
	WarehouseID int64
	Search      string
	DateFrom    time.Time
	DateTo      time.Time
}

// ReceiptListItem is a receipt row with the warehouse name for listings.
type ReceiptListItem struct {
	ID            int64
	Code          string
	WarehouseID   int64
	WarehouseName string
	SupplierName  string
	Total         float64
	CreatedAt     time.Time
}

func generateCode(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
