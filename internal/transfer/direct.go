package transfer

import (
	"context"
	"fmt"

	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/units"
)

// DirectExportInput describes the synchronous export payload.
type DirectExportInput struct {
	SourceWarehouseID int64
	DestWarehouseID   int64
	Notes             string
	IdempotencyKey    string
	Items             []ItemInput
}

// DirectExport moves stock between warehouses in one atomic operation,
// skipping the approval workflow. The whole operation aborts when any item
// fails the source sufficiency check; on success an audit ticket is created
// directly in COMPLETED.
func (s *Service) DirectExport(ctx context.Context, input DirectExportInput) (TransferRequest, error) {
	if err := s.validateRoute(ctx, input.SourceWarehouseID, input.DestWarehouseID); err != nil {
		return TransferRequest{}, err
	}
	products, err := s.resolveItems(ctx, input.Items)
	if err != nil {
		return TransferRequest{}, err
	}
	actor := shared.ActorFromContext(ctx)

	inserted := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "transfer.direct"); err != nil {
			return TransferRequest{}, err
		}
		inserted = true
	}

	ticket := TransferRequest{
		Code:              generateCode("EXP"),
		SourceWarehouseID: input.SourceWarehouseID,
		DestWarehouseID:   input.DestWarehouseID,
		Status:            StatusCompleted,
		Notes:             input.Notes,
		RequesterID:       actor,
		ApproverID:        actor,
		Direct:            true,
	}
	var posted []ledger.EntryType
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateTicket(ctx, ticket)
		if err != nil {
			return err
		}
		ticket.ID = id
		for _, line := range input.Items {
			product := products[line.ProductID]
			baseQty, err := units.ToBase(line.Quantity, line.Unit, product)
			if err != nil {
				return shared.Validationf("%v", err)
			}
			item := RequestItem{
				TransferID:       id,
				ProductID:        line.ProductID,
				CategoryID:       product.CategoryID,
				RequestQuantity:  line.Quantity,
				RequestUnit:      line.Unit,
				ApprovedQuantity: line.Quantity,
				ReceivedQuantity: line.Quantity,
			}
			itemID, err := tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			ticket.Items = append(ticket.Items, item)

			if err := tx.LockStock(ctx, line.ProductID, input.SourceWarehouseID); err != nil {
				return err
			}
			balance, err := tx.StockBalance(ctx, line.ProductID, input.SourceWarehouseID)
			if err != nil {
				return err
			}
			if balance+units.Epsilon < baseQty {
				return fmt.Errorf("%w: product %d has %.2f, needs %.2f", shared.ErrInsufficientStock, line.ProductID, balance, baseQty)
			}
			if err := tx.AppendLedger(ctx, ledger.Entry{
				ProductID:      line.ProductID,
				WarehouseID:    input.SourceWarehouseID,
				Type:           ledger.EntryExportTransfer,
				QuantityChange: -baseQty,
				RefTicketID:    id,
				RefTicketType:  ledger.RefTransfer,
				ActorID:        actor,
			}); err != nil {
				return err
			}
			if err := tx.AppendLedger(ctx, ledger.Entry{
				ProductID:      line.ProductID,
				WarehouseID:    input.DestWarehouseID,
				Type:           ledger.EntryImportTransfer,
				QuantityChange: baseQty,
				RefTicketID:    id,
				RefTicketType:  ledger.RefTransfer,
				ActorID:        actor,
			}); err != nil {
				return err
			}
			posted = append(posted, ledger.EntryExportTransfer, ledger.EntryImportTransfer)
		}
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return TransferRequest{}, err
	}
	s.observeEntries(posted)
	s.recordAudit(ctx, "DIRECT_EXPORT", ticket.ID, map[string]any{"code": ticket.Code, "items": len(ticket.Items)})
	return ticket, nil
}

// AmendItemInput carries a corrected quantity for one existing line.
type AmendItemInput struct {
	ItemID   int64
	Quantity float64
}

// AmendDirectExport corrects a posted direct export by appending delta
// entries for the difference between old and new quantities. History is
// never edited; an increase re-checks source sufficiency for the delta.
func (s *Service) AmendDirectExport(ctx context.Context, ticketID int64, items []AmendItemInput) error {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if !ticket.Direct || ticket.Status != StatusCompleted {
		return fmt.Errorf("%w: ticket %d is not an amendable direct export", shared.ErrInvalidTransition, ticketID)
	}
	if len(items) == 0 {
		return shared.Validationf("at least one item required")
	}
	byID := make(map[int64]RequestItem, len(ticket.Items))
	for _, item := range ticket.Items {
		byID[item.ID] = item
	}
	for _, line := range items {
		if _, ok := byID[line.ItemID]; !ok {
			return shared.NotFoundf("item %d on ticket %d", line.ItemID, ticketID)
		}
		if line.Quantity <= 0 {
			return shared.Validationf("quantity must be positive on item %d", line.ItemID)
		}
	}
	products, err := s.productsFor(ctx, ticket.Items)
	if err != nil {
		return err
	}
	actor := shared.ActorFromContext(ctx)

	var posted []ledger.EntryType
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Same-status CAS takes the row lock, serialising concurrent amendments.
		ok, err := tx.UpdateStatus(ctx, ticketID, StatusCompleted, StatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return s.conflict(ticketID)
		}
		for _, line := range items {
			item := byID[line.ItemID]
			product := products[item.ProductID]
			oldBase, err := units.ToBase(item.RequestQuantity, item.RequestUnit, product)
			if err != nil {
				return shared.Validationf("%v", err)
			}
			newBase, err := units.ToBase(line.Quantity, item.RequestUnit, product)
			if err != nil {
				return shared.Validationf("%v", err)
			}
			delta := newBase - oldBase
			if delta > -units.Epsilon && delta < units.Epsilon {
				continue
			}
			if err := tx.LockStock(ctx, item.ProductID, ticket.SourceWarehouseID); err != nil {
				return err
			}
			if delta > 0 {
				balance, err := tx.StockBalance(ctx, item.ProductID, ticket.SourceWarehouseID)
				if err != nil {
					return err
				}
				if balance+units.Epsilon < delta {
					return fmt.Errorf("%w: product %d has %.2f, needs %.2f more", shared.ErrInsufficientStock, item.ProductID, balance, delta)
				}
			}
			if err := tx.AppendLedger(ctx, ledger.Entry{
				ProductID:      item.ProductID,
				WarehouseID:    ticket.SourceWarehouseID,
				Type:           ledger.EntryExportTransfer,
				QuantityChange: -delta,
				RefTicketID:    ticketID,
				RefTicketType:  ledger.RefTransfer,
				ActorID:        actor,
			}); err != nil {
				return err
			}
			if err := tx.AppendLedger(ctx, ledger.Entry{
				ProductID:      item.ProductID,
				WarehouseID:    ticket.DestWarehouseID,
				Type:           ledger.EntryImportTransfer,
				QuantityChange: delta,
				RefTicketID:    ticketID,
				RefTicketType:  ledger.RefTransfer,
				ActorID:        actor,
			}); err != nil {
				return err
			}
			if err := tx.UpdateItemQuantities(ctx, line.ItemID, line.Quantity); err != nil {
				return err
			}
			posted = append(posted, ledger.EntryExportTransfer, ledger.EntryImportTransfer)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.observeEntries(posted)
	s.recordAudit(ctx, "DIRECT_EXPORT_AMEND", ticketID, map[string]any{"items": len(items)})
	return nil
}
