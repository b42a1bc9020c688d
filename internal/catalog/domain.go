package catalog

import (
	"errors"
	"time"
)

// Product is master data referenced by every stock document. Unit fields are
// immutable once the product appears in a posted ledger entry; price and
// naming stay editable.
type Product struct {
	ID             int64
	CategoryID     int64
	Code           string
	Name           string
	BaseUnit       string
	PackingUnit    string
	ConversionRate int
	CostPrice      float64
	MinStockGlobal int
	IsActive       bool
	CreatedAt      time.Time
}

// HasPackingUnit reports whether the product tracks a larger packing unit.
func (p Product) HasPackingUnit() bool {
	return p.PackingUnit != "" && p.ConversionRate > 1
}

// Category groups products.
type Category struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

// WarehouseType distinguishes the central warehouse from branch warehouses.
type WarehouseType string

const (
	WarehouseTypeMain   WarehouseType = "MAIN"
	WarehouseTypeBranch WarehouseType = "BRANCH"
)

// Warehouse is a stock location.
type Warehouse struct {
	ID        int64
	Name      string
	Type      WarehouseType
	IsActive  bool
	SortOrder int
}

// StockPolicy carries the reorder threshold for one (warehouse, product)
// pair. The warning status in summaries compares closing balance against
// MinStock.
type StockPolicy struct {
	WarehouseID int64
	ProductID   int64
	MinStock    int
}

// DefaultMinStock applies when no explicit policy row exists.
const DefaultMinStock = 10

// ErrProductInactive is returned when a document references a deactivated product.
var ErrProductInactive = errors.New("catalog: product inactive")
