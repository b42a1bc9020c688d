package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/platform/db"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateReceipt(ctx context.Context, r Receipt) (int64, error)
	UpdateHeader(ctx context.Context, id int64, supplierName, notes string, total float64) error
	InsertItem(ctx context.Context, item ReceiptItem) (int64, error)
	DeleteItems(ctx context.Context, receiptID int64) error
	SoftDelete(ctx context.Context, id int64) error

	LockStock(ctx context.Context, productID, warehouseID int64) error
	AppendLedger(ctx context.Context, e ledger.Entry) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetReceipt returns one live receipt with its items.
func (r *Repository) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	var rec Receipt
	var deletedAt *time.Time
	err := r.pool.QueryRow(ctx, `SELECT id, code, warehouse_id, supplier_name, notes, total, created_by, created_at, updated_at, deleted_at
FROM inventory_receipts WHERE id=$1`, id).
		Scan(&rec.ID, &rec.Code, &rec.WarehouseID, &rec.SupplierName, &rec.Notes, &rec.Total, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, shared.NotFoundf("receipt %d", id)
		}
		return Receipt{}, err
	}
	if deletedAt != nil {
		return Receipt{}, shared.NotFoundf("receipt %d", id)
	}

	rows, err := r.pool.Query(ctx, `SELECT id, receipt_id, product_id, quantity, unit, unit_price, line_total
FROM inventory_receipt_items WHERE receipt_id=$1 ORDER BY id`, id)
	if err != nil {
		return Receipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item ReceiptItem
		if err := rows.Scan(&item.ID, &item.ReceiptID, &item.ProductID, &item.Quantity, &item.Unit, &item.UnitPrice, &item.LineTotal); err != nil {
			return Receipt{}, err
		}
		rec.Items = append(rec.Items, item)
	}
	return rec, rows.Err()
}

// List returns live receipts matching the filters, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int, filters ListFilters) ([]ReceiptListItem, int, error) {
	where := ` WHERE r.deleted_at IS NULL`
	args := []any{}
	argNum := 1

	if filters.WarehouseID > 0 {
		where += ` AND r.warehouse_id = $` + itoa(argNum)
		args = append(args, filters.WarehouseID)
		argNum++
	}
	if filters.Search != "" {
		where += ` AND (r.code ILIKE $` + itoa(argNum) + ` OR r.supplier_name ILIKE $` + itoa(argNum) + `)`
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}
	if !filters.DateFrom.IsZero() {
		where += ` AND r.created_at >= $` + itoa(argNum)
		args = append(args, filters.DateFrom)
		argNum++
	}
	if !filters.DateTo.IsZero() {
		where += ` AND r.created_at < $` + itoa(argNum)
		args = append(args, filters.DateTo.AddDate(0, 0, 1))
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_receipts r`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT r.id, r.code, r.warehouse_id, COALESCE(w.name, ''), r.supplier_name, r.total, r.created_at
FROM inventory_receipts r
LEFT JOIN warehouses w ON w.id = r.warehouse_id` + where +
		` ORDER BY r.created_at DESC, r.id DESC LIMIT $` + itoa(argNum) + ` OFFSET $` + itoa(argNum+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []ReceiptListItem
	for rows.Next() {
		var item ReceiptListItem
		if err := rows.Scan(&item.ID, &item.Code, &item.WarehouseID, &item.WarehouseName, &item.SupplierName, &item.Total, &item.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

func (t *txRepo) CreateReceipt(ctx context.Context, rec Receipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO inventory_receipts
(code, warehouse_id, supplier_name, notes, total, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,now(),now())
RETURNING id`,
		rec.Code, rec.WarehouseID, rec.SupplierName, rec.Notes, rec.Total, rec.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateHeader(ctx context.Context, id int64, supplierName, notes string, total float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE inventory_receipts SET supplier_name=$1, notes=$2, total=$3, updated_at=now()
WHERE id=$4 AND deleted_at IS NULL`, supplierName, notes, total, id)
	return err
}

func (t *txRepo) InsertItem(ctx context.Context, item ReceiptItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO inventory_receipt_items
(receipt_id, product_id, quantity, unit, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id`,
		item.ReceiptID, item.ProductID, item.Quantity, item.Unit, item.UnitPrice, item.LineTotal).Scan(&id)
	return id, err
}

func (t *txRepo) DeleteItems(ctx context.Context, receiptID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM inventory_receipt_items WHERE receipt_id=$1`, receiptID)
	return err
}

func (t *txRepo) SoftDelete(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE inventory_receipts SET deleted_at=now(), updated_at=now()
WHERE id=$1 AND deleted_at IS NULL`, id)
	return err
}

func (t *txRepo) LockStock(ctx context.Context, productID, warehouseID int64) error {
	return ledger.LockStock(ctx, t.tx, productID, warehouseID)
}

func (t *txRepo) AppendLedger(ctx context.Context, e ledger.Entry) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return ledger.Append(ctx, t.tx, e)
}
