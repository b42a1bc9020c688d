package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
)

// Repository serves the read side of the ledger from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Balance derives the stock level for one pair at a point in time.
func (r *Repository) Balance(ctx context.Context, productID, warehouseID int64, asOf time.Time) (float64, error) {
	if r == nil {
		return 0, errors.New("ledger repository not initialised")
	}
	var balance float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_change), 0) FROM stock_movements
WHERE product_id=$1 AND warehouse_id=$2 AND occurred_at <= COALESCE($3, 'infinity')`,
		productID, warehouseID, nullTime(asOf)).Scan(&balance)
	return balance, err
}

// Summary aggregates opening/import/export/closing per product for one
// warehouse over a date range. Only products with at least one movement at
// the warehouse appear.
func (r *Repository) Summary(ctx context.Context, warehouseID int64, from, to time.Time) ([]SummaryRow, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.name, p.base_unit, COALESCE(p.packing_unit, ''), p.conversion_rate, COALESCE(p.category_id, 0),
COALESCE(SUM(m.quantity_change) FILTER (WHERE m.occurred_at < COALESCE($2, '-infinity')), 0) AS opening,
COALESCE(SUM(m.quantity_change) FILTER (WHERE m.quantity_change > 0 AND m.occurred_at >= COALESCE($2, '-infinity') AND m.occurred_at <= COALESCE($3, 'infinity')), 0) AS total_import,
COALESCE(SUM(-m.quantity_change) FILTER (WHERE m.quantity_change < 0 AND m.occurred_at >= COALESCE($2, '-infinity') AND m.occurred_at <= COALESCE($3, 'infinity')), 0) AS total_export,
COALESCE(SUM(m.quantity_change) FILTER (WHERE m.occurred_at <= COALESCE($3, 'infinity')), 0) AS closing,
COALESCE(sp.min_stock, NULLIF(p.min_stock_global, 0), $4)
FROM products p
JOIN stock_movements m ON m.product_id = p.id AND m.warehouse_id = $1
LEFT JOIN stock_policies sp ON sp.warehouse_id = $1 AND sp.product_id = p.id
WHERE p.is_active OR EXISTS (
	SELECT 1 FROM stock_movements x WHERE x.product_id = p.id AND x.warehouse_id = $1 AND x.quantity_change <> 0
)
GROUP BY p.id, p.code, p.name, p.base_unit, p.packing_unit, p.conversion_rate, p.category_id, sp.min_stock, p.min_stock_global
ORDER BY p.code ASC`, warehouseID, nullTime(from), nullTime(endOfDay(to)), catalog.DefaultMinStock)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []SummaryRow
	for rows.Next() {
		var row SummaryRow
		if err := rows.Scan(&row.ProductID, &row.ProductCode, &row.ProductName, &row.BaseUnit, &row.PackingUnit, &row.ConversionRate, &row.CategoryID,
			&row.OpeningBalance, &row.TotalImport, &row.TotalExport, &row.ClosingBalance, &row.MinStock); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Cursor marks a resume position in a history scan. The zero cursor starts
// from the newest entry.
type Cursor struct {
	OccurredAt time.Time
	ID         int64
}

// IsZero reports whether the cursor is the initial position.
func (c Cursor) IsZero() bool {
	return c.ID == 0 && c.OccurredAt.IsZero()
}

// HistoryPage returns up to limit entries newest-first, strictly older than
// the cursor, joined with the originating document code.
func (r *Repository) HistoryPage(ctx context.Context, productID, warehouseID int64, cursor Cursor, limit int) ([]HistoryEntry, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.product_id, m.warehouse_id, m.transaction_type, m.quantity_change,
COALESCE(m.ref_ticket_id, 0), COALESCE(m.ref_ticket_type, ''), COALESCE(m.actor_id, 0), m.occurred_at,
w.name,
COALESCE(t.code, rc.code, '')
FROM stock_movements m
JOIN warehouses w ON w.id = m.warehouse_id
LEFT JOIN inventory_transfers t ON m.ref_ticket_type = $5 AND t.id = m.ref_ticket_id
LEFT JOIN inventory_receipts rc ON m.ref_ticket_type = $6 AND rc.id = m.ref_ticket_id
WHERE m.product_id = $1 AND m.warehouse_id = $2
AND ($3::timestamptz IS NULL OR (m.occurred_at, m.id) < ($3, $4))
ORDER BY m.occurred_at DESC, m.id DESC
LIMIT $7`, productID, warehouseID, nullTime(cursor.OccurredAt), cursor.ID, RefTransfer, RefReceipt, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var entryType string
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.WarehouseID, &entryType, &entry.QuantityChange,
			&entry.RefTicketID, &entry.RefTicketType, &entry.ActorID, &entry.OccurredAt,
			&entry.WarehouseName, &entry.RefCode); err != nil {
			return nil, err
		}
		entry.Type = EntryType(entryType)
		entry.TypeLabel = entry.Type.Label()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Report lists current balances for a warehouse, optionally filtered by
// category.
func (r *Repository) Report(ctx context.Context, warehouseID, categoryID int64) ([]ReportRow, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.name, p.base_unit, COALESCE(p.packing_unit, ''), p.conversion_rate, p.is_active,
m.warehouse_id, w.name,
COALESCE(SUM(m.quantity_change), 0),
COALESCE(sp.min_stock, NULLIF(p.min_stock_global, 0), $3)
FROM stock_movements m
JOIN products p ON p.id = m.product_id
JOIN warehouses w ON w.id = m.warehouse_id
LEFT JOIN stock_policies sp ON sp.warehouse_id = m.warehouse_id AND sp.product_id = p.id
WHERE m.warehouse_id = $1 AND ($2 = 0 OR p.category_id = $2)
GROUP BY p.id, p.code, p.name, p.base_unit, p.packing_unit, p.conversion_rate, p.is_active, m.warehouse_id, w.name, sp.min_stock, p.min_stock_global
ORDER BY p.code ASC`, warehouseID, categoryID, catalog.DefaultMinStock)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []ReportRow
	for rows.Next() {
		var row ReportRow
		var product catalog.Product
		var isActive bool
		if err := rows.Scan(&product.ID, &product.Code, &product.Name, &product.BaseUnit, &product.PackingUnit, &product.ConversionRate, &isActive,
			&row.WarehouseID, &row.WarehouseName, &row.QuantityBase, &row.MinStock); err != nil {
			return nil, err
		}
		if !isActive && row.QuantityBase <= 0 {
			continue
		}
		row.ProductID = product.ID
		row.ProductCode = product.Code
		row.ProductName = product.Name
		row.DisplayQuantity = displayQuantity(row.QuantityBase, product)
		result = append(result, row)
	}
	return result, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).
		Add(24*time.Hour - time.Nanosecond)
}
