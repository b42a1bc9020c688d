package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
)

// NewLowStockScanHandler returns the handler that walks active warehouses
// and logs every product at or below its reorder threshold. The scan reads
// derived balances only; it never writes to the movement log.
func NewLowStockScanHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LowStockScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		sql := `SELECT w.id, w.name, p.id, p.code, p.name,
	COALESCE(SUM(m.quantity_change), 0) AS balance,
	COALESCE(sp.min_stock, NULLIF(p.min_stock_global, 0), $1) AS min_stock
FROM warehouses w
CROSS JOIN products p
LEFT JOIN stock_movements m ON m.product_id = p.id AND m.warehouse_id = w.id
LEFT JOIN stock_policies sp ON sp.product_id = p.id AND sp.warehouse_id = w.id
WHERE w.is_active AND p.is_active`
		args := []any{catalog.DefaultMinStock}
		if payload.WarehouseID > 0 {
			sql += ` AND w.id = $2`
			args = append(args, payload.WarehouseID)
		}
		sql += `
GROUP BY w.id, w.name, p.id, p.code, p.name, sp.min_stock, p.min_stock_global
HAVING COALESCE(SUM(m.quantity_change), 0) <= COALESCE(sp.min_stock, NULLIF(p.min_stock_global, 0), $1)`

		rows, err := pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		flagged := 0
		for rows.Next() {
			var warehouseID, productID int64
			var warehouseName, productCode, productName string
			var balance float64
			var minStock int
			if err := rows.Scan(&warehouseID, &warehouseName, &productID, &productCode, &productName, &balance, &minStock); err != nil {
				return err
			}
			flagged++
			logger.WarnContext(ctx, "stock below reorder threshold",
				"warehouse", warehouseName,
				"product", productCode,
				"balance", balance,
				"min_stock", minStock,
			)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		logger.InfoContext(ctx, "low stock scan finished", "flagged", flagged)
		return nil
	}
}
