package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Posting helpers run inside a caller-owned transaction so a ledger append
// commits or rolls back together with the workflow transition that caused
// it. Callers must take LockStock before a balance check that precedes an
// Append on the same (product, warehouse).

// LockStock serialises concurrent check-then-append sequences on one
// (product, warehouse) pair for the remainder of the transaction.
func LockStock(ctx context.Context, tx pgx.Tx, productID, warehouseID int64) error {
	k1, k2 := shared.StockLockKeys(productID, warehouseID)
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, k1, k2)
	return err
}

// BalanceInTx sums the movement log for one pair within the transaction.
func BalanceInTx(ctx context.Context, tx pgx.Tx, productID, warehouseID int64) (float64, error) {
	var balance float64
	err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_change), 0) FROM stock_movements
WHERE product_id=$1 AND warehouse_id=$2`, productID, warehouseID).Scan(&balance)
	return balance, err
}

// Append inserts one immutable movement row.
func Append(ctx context.Context, tx pgx.Tx, e Entry) error {
	occurredAt := e.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `INSERT INTO stock_movements (product_id, warehouse_id, transaction_type, quantity_change, ref_ticket_id, ref_ticket_type, actor_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ProductID, e.WarehouseID, string(e.Type), e.QuantityChange,
		nullInt(e.RefTicketID), e.RefTicketType, nullInt(e.ActorID), occurredAt)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
