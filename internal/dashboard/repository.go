package dashboard

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
)

// Repository reads aggregates straight from the workflow and ledger tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TicketCounts returns ticket counts by status for the range. Compensation
// tickets are excluded so a cut request is not counted twice.
func (r *Repository) TicketCounts(ctx context.Context, q Query) (map[string]int, error) {
	sql := `SELECT status, COUNT(*) FROM inventory_transfers
WHERE related_transfer_id IS NULL`
	args := []any{}
	sql, args = scopeTickets(sql, args, q)
	sql += ` GROUP BY status`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// ImportTotals returns the count and total amount of live receipts in range.
func (r *Repository) ImportTotals(ctx context.Context, q Query) (int, float64, error) {
	sql := `SELECT COUNT(*), COALESCE(SUM(total), 0) FROM inventory_receipts
WHERE deleted_at IS NULL`
	args := []any{}
	argNum := 1
	if q.WarehouseID > 0 {
		sql += ` AND warehouse_id = $` + itoa(argNum)
		args = append(args, q.WarehouseID)
		argNum++
	}
	if !q.DateFrom.IsZero() {
		sql += ` AND created_at >= $` + itoa(argNum)
		args = append(args, q.DateFrom)
		argNum++
	}
	if !q.DateTo.IsZero() {
		sql += ` AND created_at < $` + itoa(argNum)
		args = append(args, q.DateTo.AddDate(0, 0, 1))
	}
	var count int
	var amount float64
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&count, &amount); err != nil {
		return 0, 0, err
	}
	return count, amount, nil
}

// CompletedExports counts completed outbound tickets in range, compensation
// tickets excluded.
func (r *Repository) CompletedExports(ctx context.Context, q Query) (int, error) {
	sql := `SELECT COUNT(*) FROM inventory_transfers
WHERE related_transfer_id IS NULL AND status = 'COMPLETED'`
	args := []any{}
	sql, args = scopeTickets(sql, args, q)
	var count int
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// WarningPercent computes the share of active products whose current
// balance sits at or below their reorder threshold in one warehouse.
func (r *Repository) WarningPercent(ctx context.Context, warehouseID int64) (float64, error) {
	var total, warning int
	err := r.pool.QueryRow(ctx, `WITH balances AS (
	SELECT p.id,
		COALESCE((SELECT SUM(m.quantity_change) FROM stock_movements m
			WHERE m.product_id = p.id AND m.warehouse_id = $1), 0) AS balance,
		COALESCE(sp.min_stock, NULLIF(p.min_stock_global, 0), $2) AS min_stock
	FROM products p
	LEFT JOIN stock_policies sp ON sp.product_id = p.id AND sp.warehouse_id = $1
	WHERE p.is_active
)
SELECT COUNT(*), COUNT(*) FILTER (WHERE balance <= min_stock) FROM balances`,
		warehouseID, catalog.DefaultMinStock).Scan(&total, &warning)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return float64(warning) * 100 / float64(total), nil
}

func scopeTickets(sql string, args []any, q Query) (string, []any) {
	argNum := len(args) + 1
	if q.WarehouseID > 0 {
		sql += ` AND (source_warehouse_id = $` + itoa(argNum) + ` OR dest_warehouse_id = $` + itoa(argNum) + `)`
		args = append(args, q.WarehouseID)
		argNum++
	}
	if !q.DateFrom.IsZero() {
		sql += ` AND created_at >= $` + itoa(argNum)
		args = append(args, q.DateFrom)
		argNum++
	}
	if !q.DateTo.IsZero() {
		sql += ` AND created_at < $` + itoa(argNum)
		args = append(args, q.DateTo.AddDate(0, 0, 1))
	}
	return sql, args
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
