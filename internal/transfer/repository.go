package transfer

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

// TxRepository exposes transactional operations. Ledger posting goes through
// the same transaction so a transition and its stock effect commit together.
type TxRepository interface {
	CreateTicket(ctx context.Context, t TransferRequest) (int64, error)
	InsertItem(ctx context.Context, item RequestItem) (int64, error)
	UpdateStatus(ctx context.Context, id int64, from, to TicketStatus) (bool, error)
	SetApproval(ctx context.Context, id int64, approverID int64, notes string, hasCut bool) error
	UpdateItemApproval(ctx context.Context, itemID int64, approvedQty float64) error
	UpdateItemReceipt(ctx context.Context, itemID int64, receivedQty, lossQty float64, lossReason string) error
	UpdateItemQuantities(ctx context.Context, itemID int64, qty float64) error
	UpdateTicketNotes(ctx context.Context, id int64, notes string) error
	DeleteItems(ctx context.Context, transferID int64) error

	LockStock(ctx context.Context, productID, warehouseID int64) error
	StockBalance(ctx context.Context, productID, warehouseID int64) (float64, error)
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

// GetTicket returns a ticket with its items.
func (r *Repository) GetTicket(ctx context.Context, id int64) (TransferRequest, error) {
	var t TransferRequest
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, code, source_warehouse_id, dest_warehouse_id, status, notes,
requester_id, COALESCE(approver_id, 0), approver_notes, has_cut, is_direct, COALESCE(related_transfer_id, 0), created_at, updated_at
FROM inventory_transfers WHERE id=$1`, id).
		Scan(&t.ID, &t.Code, &t.SourceWarehouseID, &t.DestWarehouseID, &status, &t.Notes,
			&t.RequesterID, &t.ApproverID, &t.ApproverNotes, &t.HasCut, &t.Direct, &t.RelatedTransferID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TransferRequest{}, shared.NotFoundf("transfer ticket %d", id)
		}
		return TransferRequest{}, err
	}
	t.Status = TicketStatus(status)

	rows, err := r.pool.Query(ctx, `SELECT id, transfer_id, product_id, COALESCE(category_id, 0),
request_quantity, request_unit, approved_quantity, received_quantity, loss_quantity, loss_reason
FROM inventory_transfer_items WHERE transfer_id=$1 ORDER BY id`, id)
	if err != nil {
		return TransferRequest{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item RequestItem
		if err := rows.Scan(&item.ID, &item.TransferID, &item.ProductID, &item.CategoryID,
			&item.RequestQuantity, &item.RequestUnit, &item.ApprovedQuantity, &item.ReceivedQuantity,
			&item.LossQuantity, &item.LossReason); err != nil {
			return TransferRequest{}, err
		}
		t.Items = append(t.Items, item)
	}
	return t, rows.Err()
}

// List returns tickets matching the filters, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int, filters ListFilters) ([]TicketListItem, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Status != "" {
		where += ` AND t.status = $` + itoa(argNum)
		args = append(args, string(filters.Status))
		argNum++
	}
	if filters.WarehouseID > 0 {
		where += ` AND (t.source_warehouse_id = $` + itoa(argNum) + ` OR t.dest_warehouse_id = $` + itoa(argNum) + `)`
		args = append(args, filters.WarehouseID)
		argNum++
	}
	if !filters.DateFrom.IsZero() {
		where += ` AND t.created_at >= $` + itoa(argNum)
		args = append(args, filters.DateFrom)
		argNum++
	}
	if !filters.DateTo.IsZero() {
		where += ` AND t.created_at < $` + itoa(argNum)
		args = append(args, filters.DateTo.AddDate(0, 0, 1))
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_transfers t`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT t.id, t.code, t.source_warehouse_id, COALESCE(sw.name, ''),
	t.dest_warehouse_id, COALESCE(dw.name, ''), t.status, t.has_cut, t.is_direct,
	COALESCE(t.related_transfer_id, 0), t.created_at
FROM inventory_transfers t
LEFT JOIN warehouses sw ON sw.id = t.source_warehouse_id
LEFT JOIN warehouses dw ON dw.id = t.dest_warehouse_id` + where +
		` ORDER BY t.created_at DESC, t.id DESC LIMIT $` + itoa(argNum) + ` OFFSET $` + itoa(argNum+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []TicketListItem
	for rows.Next() {
		var item TicketListItem
		var status string
		if err := rows.Scan(&item.ID, &item.Code, &item.SourceWarehouseID, &item.SourceWarehouseName,
			&item.DestWarehouseID, &item.DestWarehouseName, &status, &item.HasCut, &item.Direct,
			&item.RelatedTransferID, &item.CreatedAt); err != nil {
			return nil, 0, err
		}
		item.Status = TicketStatus(status)
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

func (t *txRepo) CreateTicket(ctx context.Context, ticket TransferRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO inventory_transfers
(code, source_warehouse_id, dest_warehouse_id, status, notes, requester_id, approver_id, approver_notes, has_cut, is_direct, related_transfer_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
RETURNING id`,
		ticket.Code, ticket.SourceWarehouseID, ticket.DestWarehouseID, string(ticket.Status), ticket.Notes,
		ticket.RequesterID, nullID(ticket.ApproverID), ticket.ApproverNotes, ticket.HasCut, ticket.Direct,
		nullID(ticket.RelatedTransferID)).Scan(&id)
	return id, err
}

func (t *txRepo) InsertItem(ctx context.Context, item RequestItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO inventory_transfer_items
(transfer_id, product_id, category_id, request_quantity, request_unit, approved_quantity, received_quantity, loss_quantity, loss_reason)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id`,
		item.TransferID, item.ProductID, nullID(item.CategoryID), item.RequestQuantity, item.RequestUnit,
		item.ApprovedQuantity, item.ReceivedQuantity, item.LossQuantity, item.LossReason).Scan(&id)
	return id, err
}

// UpdateStatus advances the ticket with a guarded compare-and-swap. A false
// return means another writer got there first.
func (t *txRepo) UpdateStatus(ctx context.Context, id int64, from, to TicketStatus) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE inventory_transfers SET status=$1, updated_at=now()
WHERE id=$2 AND status=$3`, string(to), id, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) SetApproval(ctx context.Context, id int64, approverID int64, notes string, hasCut bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE inventory_transfers SET approver_id=$1, approver_notes=$2, has_cut=$3, updated_at=now()
WHERE id=$4`, nullID(approverID), notes, hasCut, id)
	return err
}

func (t *txRepo) UpdateItemApproval(ctx context.Context, itemID int64, approvedQty float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE inventory_transfer_items SET approved_quantity=$1 WHERE id=$2`, approvedQty, itemID)
	return err
}

func (t *txRepo) UpdateItemReceipt(ctx context.Context, itemID int64, receivedQty, lossQty float64, lossReason string) error {
	_, err := t.tx.Exec(ctx, `UPDATE inventory_transfer_items SET received_quantity=$1, loss_quantity=$2, loss_reason=$3 WHERE id=$4`,
		receivedQty, lossQty, lossReason, itemID)
	return err
}

// UpdateItemQuantities rewrites a direct export line after an amendment.
func (t *txRepo) UpdateItemQuantities(ctx context.Context, itemID int64, qty float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE inventory_transfer_items
SET request_quantity=$1, approved_quantity=$1, received_quantity=$1 WHERE id=$2`, qty, itemID)
	return err
}

func (t *txRepo) UpdateTicketNotes(ctx context.Context, id int64, notes string) error {
	_, err := t.tx.Exec(ctx, `UPDATE inventory_transfers SET notes=$1, updated_at=now() WHERE id=$2`, notes, id)
	return err
}

// DeleteItems clears a ticket's lines. Only valid before approval, when no
// line has produced ledger entries yet.
func (t *txRepo) DeleteItems(ctx context.Context, transferID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM inventory_transfer_items WHERE transfer_id=$1`, transferID)
	return err
}

func (t *txRepo) LockStock(ctx context.Context, productID, warehouseID int64) error {
	return ledger.LockStock(ctx, t.tx, productID, warehouseID)
}

func (t *txRepo) StockBalance(ctx context.Context, productID, warehouseID int64) (float64, error) {
	return ledger.BalanceInTx(ctx, t.tx, productID, warehouseID)
}

func (t *txRepo) AppendLedger(ctx context.Context, e ledger.Entry) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return ledger.Append(ctx, t.tx, e)
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
