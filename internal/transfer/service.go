package transfer

import (
	"context"
	"fmt"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/units"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTicket(ctx context.Context, id int64) (TransferRequest, error)
	List(ctx context.Context, limit, offset int, filters ListFilters) ([]TicketListItem, int, error)
}

// CatalogPort exposes the master data reads the workflow depends on.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	GetProducts(ctx context.Context, ids []int64) (map[int64]catalog.Product, error)
	GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
	ListByEntity(ctx context.Context, entity, entityID string) ([]shared.AuditLog, error)
}

// MetricsPort counts committed transitions, lost CAS races and posted
// ledger entries. A nil port disables instrumentation.
type MetricsPort interface {
	ObserveTransition(from, to string)
	ObserveConflict()
	ObserveLedgerEntry(entryType string)
}

// Service orchestrates the transfer workflow.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	approvals   *shared.ApprovalRecorder
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
}

// NewService constructs transfer service.
func NewService(repo RepositoryPort, cat CatalogPort, approvals *shared.ApprovalRecorder, audit AuditPort, idem *shared.IdempotencyStore, metrics MetricsPort) *Service {
	return &Service{repo: repo, catalog: cat, approvals: approvals, audit: audit, idempotency: idem, metrics: metrics}
}

// ItemInput describes one requested product line.
type ItemInput struct {
	ProductID int64
	Quantity  float64
	Unit      string
}

// CreateRequestInput describes request creation payload.
type CreateRequestInput struct {
	SourceWarehouseID int64
	DestWarehouseID   int64
	Notes             string
	Items             []ItemInput
}

// ApproveItemInput carries one approval decision.
type ApproveItemInput struct {
	ItemID           int64
	ApprovedQuantity float64
}

// ApproveInput describes the approval payload.
type ApproveInput struct {
	Notes string
	Items []ApproveItemInput
}

// ReceiveItemInput carries one receipt line. Loss defaults to the gap
// between approved and received when not reported explicitly.
type ReceiveItemInput struct {
	ItemID           int64
	ReceivedQuantity float64
	LossQuantity     float64
	LossReason       string
}

// ReceiveInput describes the receipt payload.
type ReceiveInput struct {
	Mode  CompensationMode
	Items []ReceiveItemInput
}

// CreateRequest persists a new PENDING ticket. No ledger effect.
func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput) (TransferRequest, error) {
	if err := s.validateRoute(ctx, input.SourceWarehouseID, input.DestWarehouseID); err != nil {
		return TransferRequest{}, err
	}
	products, err := s.resolveItems(ctx, input.Items)
	if err != nil {
		return TransferRequest{}, err
	}
	ticket := TransferRequest{
		Code:              generateCode("TRF"),
		SourceWarehouseID: input.SourceWarehouseID,
		DestWarehouseID:   input.DestWarehouseID,
		Status:            StatusPending,
		Notes:             input.Notes,
		RequesterID:       shared.ActorFromContext(ctx),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateTicket(ctx, ticket)
		if err != nil {
			return err
		}
		ticket.ID = id
		for _, line := range input.Items {
			item := RequestItem{
				TransferID:      id,
				ProductID:       line.ProductID,
				CategoryID:      products[line.ProductID].CategoryID,
				RequestQuantity: line.Quantity,
				RequestUnit:     line.Unit,
			}
			itemID, err := tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			ticket.Items = append(ticket.Items, item)
		}
		return nil
	})
	if err != nil {
		return TransferRequest{}, err
	}
	s.recordAudit(ctx, "TRANSFER_CREATE", ticket.ID, map[string]any{"code": ticket.Code, "items": len(ticket.Items)})
	return ticket, nil
}

// UpdateRequestInput replaces a pending ticket's editable content.
type UpdateRequestInput struct {
	Notes string
	Items []ItemInput
}

// UpdateRequest rewrites the notes and item lines of a ticket that is still
// PENDING. Once an approver has touched the ticket its content is frozen and
// the caller gets an invalid-transition error.
func (s *Service) UpdateRequest(ctx context.Context, ticketID int64, input UpdateRequestInput) (TransferRequest, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return TransferRequest{}, err
	}
	if ticket.Status != StatusPending {
		return TransferRequest{}, fmt.Errorf("%w: ticket %d is %s, only PENDING tickets are editable", shared.ErrInvalidTransition, ticketID, ticket.Status)
	}
	products, err := s.resolveItems(ctx, input.Items)
	if err != nil {
		return TransferRequest{}, err
	}
	ticket.Notes = input.Notes
	ticket.Items = nil
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Same-status CAS keeps a concurrent approval from racing the edit.
		ok, err := tx.UpdateStatus(ctx, ticketID, StatusPending, StatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return s.conflict(ticketID)
		}
		if err := tx.UpdateTicketNotes(ctx, ticketID, input.Notes); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, ticketID); err != nil {
			return err
		}
		for _, line := range input.Items {
			item := RequestItem{
				TransferID:      ticketID,
				ProductID:       line.ProductID,
				CategoryID:      products[line.ProductID].CategoryID,
				RequestQuantity: line.Quantity,
				RequestUnit:     line.Unit,
			}
			itemID, err := tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			ticket.Items = append(ticket.Items, item)
		}
		return nil
	})
	if err != nil {
		return TransferRequest{}, err
	}
	s.recordAudit(ctx, "TRANSFER_UPDATE", ticketID, map[string]any{"items": len(ticket.Items)})
	return ticket, nil
}

// Approve records the sourcing decision. Still no ledger effect; the stock
// commitment happens at Ship.
func (s *Service) Approve(ctx context.Context, ticketID int64, input ApproveInput) error {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status != StatusPending {
		return invalidTransition(ticketID, ticket.Status, StatusApproved)
	}
	approved := make(map[int64]float64, len(input.Items))
	for _, line := range input.Items {
		approved[line.ItemID] = line.ApprovedQuantity
	}
	for i := range ticket.Items {
		item := &ticket.Items[i]
		qty, ok := approved[item.ID]
		if !ok {
			// A line the approver skipped is a full cut.
			qty = 0
		}
		if qty < 0 || qty > item.RequestQuantity+units.Epsilon {
			return shared.Validationf("approved quantity %.2f out of range [0, %.2f] for item %d", qty, item.RequestQuantity, item.ID)
		}
		item.ApprovedQuantity = qty
	}
	hasCut := hasCutQuantity(ticket.Items)
	actor := shared.ActorFromContext(ctx)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.UpdateStatus(ctx, ticketID, StatusPending, StatusApproved)
		if err != nil {
			return err
		}
		if !ok {
			return s.conflict(ticketID)
		}
		if err := tx.SetApproval(ctx, ticketID, actor, input.Notes, hasCut); err != nil {
			return err
		}
		for _, item := range ticket.Items {
			if err := tx.UpdateItemApproval(ctx, item.ID, item.ApprovedQuantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.observeTransition(StatusPending, StatusApproved)
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: "TRANSFER", RefID: ticketID, ActorID: actor, Action: shared.ApprovalApprove, Note: input.Notes})
	}
	s.recordAudit(ctx, "TRANSFER_APPROVE", ticketID, map[string]any{"has_cut": hasCut})
	return nil
}

// Reject closes a PENDING ticket with a mandatory reason.
func (s *Service) Reject(ctx context.Context, ticketID int64, reason string) error {
	if reason == "" {
		return shared.Validationf("rejection reason required")
	}
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status != StatusPending {
		return invalidTransition(ticketID, ticket.Status, StatusRejected)
	}
	actor := shared.ActorFromContext(ctx)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.UpdateStatus(ctx, ticketID, StatusPending, StatusRejected)
		if err != nil {
			return err
		}
		if !ok {
			return s.conflict(ticketID)
		}
		return tx.SetApproval(ctx, ticketID, actor, reason, false)
	})
	if err != nil {
		return err
	}
	s.observeTransition(StatusPending, StatusRejected)
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: "TRANSFER", RefID: ticketID, ActorID: actor, Action: shared.ApprovalReject, Note: reason})
	}
	s.recordAudit(ctx, "TRANSFER_REJECT", ticketID, map[string]any{"reason": reason})
	return nil
}

// Ship confirms dispatch and posts the source-side ledger effect. The stock
// sufficiency check runs under the advisory lock inside the same transaction
// as the append, which is the point of no return for source stock.
func (s *Service) Ship(ctx context.Context, ticketID int64) error {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status != StatusApproved {
		return invalidTransition(ticketID, ticket.Status, StatusShipping)
	}
	products, err := s.productsFor(ctx, ticket.Items)
	if err != nil {
		return err
	}
	actor := shared.ActorFromContext(ctx)

	var posted []ledger.EntryType
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.UpdateStatus(ctx, ticketID, StatusApproved, StatusShipping)
		if err != nil {
			return err
		}
		if !ok {
			return s.conflict(ticketID)
		}
		for _, item := range ticket.Items {
			if item.ApprovedQuantity <= units.Epsilon {
				continue
			}
			baseQty, err := units.ToBase(item.ApprovedQuantity, item.RequestUnit, products[item.ProductID])
			if err != nil {
				return shared.Validationf("item %d: %v", item.ID, err)
			}
			if err := tx.LockStock(ctx, item.ProductID, ticket.SourceWarehouseID); err != nil {
				return err
			}
			balance, err := tx.StockBalance(ctx, item.ProductID, ticket.SourceWarehouseID)
			if err != nil {
				return err
			}
			if balance+units.Epsilon < baseQty {
				return fmt.Errorf("%w: product %d has %.2f, needs %.2f", shared.ErrInsufficientStock, item.ProductID, balance, baseQty)
			}
			if err := tx.AppendLedger(ctx, ledger.Entry{
				ProductID:      item.ProductID,
				WarehouseID:    ticket.SourceWarehouseID,
				Type:           ledger.EntryTransferToTransit,
				QuantityChange: -baseQty,
				RefTicketID:    ticketID,
				RefTicketType:  ledger.RefTransfer,
				ActorID:        actor,
			}); err != nil {
				return err
			}
			posted = append(posted, ledger.EntryTransferToTransit)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.observeTransition(StatusApproved, StatusShipping)
	s.observeEntries(posted)
	s.recordAudit(ctx, "TRANSFER_SHIP", ticketID, nil)
	return nil
}

// Receive posts received quantities at the destination and completes the
// ticket. With auto compensation a linked PENDING ticket is created for the
// residual against the original request, covering both cut and loss.
func (s *Service) Receive(ctx context.Context, ticketID int64, input ReceiveInput) (spilloverID int64, err error) {
	mode, err := ParseCompensationMode(string(input.Mode))
	if err != nil {
		return 0, err
	}
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	if ticket.Status != StatusShipping {
		return 0, invalidTransition(ticketID, ticket.Status, StatusCompleted)
	}
	received := make(map[int64]ReceiveItemInput, len(input.Items))
	for _, line := range input.Items {
		received[line.ItemID] = line
	}
	for i := range ticket.Items {
		item := &ticket.Items[i]
		line := received[item.ID]
		loss := line.LossQuantity
		if loss == 0 && item.ApprovedQuantity-line.ReceivedQuantity > units.Epsilon {
			loss = item.ApprovedQuantity - line.ReceivedQuantity
		}
		if line.ReceivedQuantity < 0 || loss < 0 {
			return 0, shared.Validationf("negative quantity on item %d", item.ID)
		}
		if line.ReceivedQuantity+loss > item.ApprovedQuantity+units.Epsilon {
			return 0, shared.Validationf("received %.2f + loss %.2f exceeds approved %.2f on item %d",
				line.ReceivedQuantity, loss, item.ApprovedQuantity, item.ID)
		}
		if loss > units.Epsilon && line.LossReason == "" {
			return 0, shared.Validationf("loss reason required on item %d", item.ID)
		}
		item.ReceivedQuantity = line.ReceivedQuantity
		item.LossQuantity = loss
		item.LossReason = line.LossReason
	}
	products, err := s.productsFor(ctx, ticket.Items)
	if err != nil {
		return 0, err
	}
	actor := shared.ActorFromContext(ctx)

	var posted []ledger.EntryType
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.UpdateStatus(ctx, ticketID, StatusShipping, StatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return s.conflict(ticketID)
		}
		for _, item := range ticket.Items {
			if err := tx.UpdateItemReceipt(ctx, item.ID, item.ReceivedQuantity, item.LossQuantity, item.LossReason); err != nil {
				return err
			}
			if item.ReceivedQuantity <= units.Epsilon {
				continue
			}
			baseQty, err := units.ToBase(item.ReceivedQuantity, item.RequestUnit, products[item.ProductID])
			if err != nil {
				return shared.Validationf("item %d: %v", item.ID, err)
			}
			if err := tx.AppendLedger(ctx, ledger.Entry{
				ProductID:      item.ProductID,
				WarehouseID:    ticket.DestWarehouseID,
				Type:           ledger.EntryTransitToDest,
				QuantityChange: baseQty,
				RefTicketID:    ticketID,
				RefTicketType:  ledger.RefTransfer,
				ActorID:        actor,
			}); err != nil {
				return err
			}
			posted = append(posted, ledger.EntryTransitToDest)
		}
		if mode == CompensationAuto {
			spilloverID, err = s.createSpillover(ctx, tx, ticket)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.observeTransition(StatusShipping, StatusCompleted)
	s.observeEntries(posted)
	meta := map[string]any{"mode": string(mode)}
	if spilloverID != 0 {
		meta["spillover_id"] = spilloverID
	}
	s.recordAudit(ctx, "TRANSFER_RECEIVE", ticketID, meta)
	return spilloverID, nil
}

// createSpillover creates the compensation ticket for whatever fell short
// of the original request, linked back to the root ticket.
func (s *Service) createSpillover(ctx context.Context, tx TxRepository, ticket TransferRequest) (int64, error) {
	var residualItems []RequestItem
	for _, item := range ticket.Items {
		residual := item.RequestQuantity - item.ReceivedQuantity
		if residual <= units.Epsilon {
			continue
		}
		residualItems = append(residualItems, RequestItem{
			ProductID:       item.ProductID,
			CategoryID:      item.CategoryID,
			RequestQuantity: residual,
			RequestUnit:     item.RequestUnit,
		})
	}
	if len(residualItems) == 0 {
		return 0, nil
	}
	rootID := ticket.ID
	if ticket.RelatedTransferID != 0 {
		rootID = ticket.RelatedTransferID
	}
	spillover := TransferRequest{
		Code:              generateCode("TRF"),
		SourceWarehouseID: ticket.SourceWarehouseID,
		DestWarehouseID:   ticket.DestWarehouseID,
		Status:            StatusPending,
		Notes:             fmt.Sprintf("compensation for %s", ticket.Code),
		RequesterID:       ticket.RequesterID,
		RelatedTransferID: rootID,
	}
	id, err := tx.CreateTicket(ctx, spillover)
	if err != nil {
		return 0, err
	}
	for _, item := range residualItems {
		item.TransferID = id
		if _, err := tx.InsertItem(ctx, item); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Cancel abandons a ticket that has not been approved yet. Cancellation
// past APPROVED is disallowed because sourcing has been committed.
func (s *Service) Cancel(ctx context.Context, ticketID int64) error {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status != StatusPending {
		return invalidTransition(ticketID, ticket.Status, StatusCancelled)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.UpdateStatus(ctx, ticketID, StatusPending, StatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return s.conflict(ticketID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.observeTransition(StatusPending, StatusCancelled)
	s.recordAudit(ctx, "TRANSFER_CANCEL", ticketID, nil)
	return nil
}

// Get returns one ticket with items.
func (s *Service) Get(ctx context.Context, ticketID int64) (TransferRequest, error) {
	return s.repo.GetTicket(ctx, ticketID)
}

// List returns tickets matching filters.
func (s *Service) List(ctx context.Context, limit, offset int, filters ListFilters) ([]TicketListItem, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, limit, offset, filters)
}

// Approvals returns the approval trail for one ticket.
func (s *Service) Approvals(ctx context.Context, ticketID int64) ([]shared.ApprovalLog, error) {
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, "TRANSFER", ticketID)
}

// AuditTrail returns the audit drill-down for one ticket, oldest first.
func (s *Service) AuditTrail(ctx context.Context, ticketID int64) ([]shared.AuditLog, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.ListByEntity(ctx, "transfer", fmt.Sprintf("%d", ticketID))
}

func (s *Service) validateRoute(ctx context.Context, sourceID, destID int64) error {
	if sourceID == 0 || destID == 0 {
		return shared.Validationf("source and destination warehouses required")
	}
	if sourceID == destID {
		return shared.Validationf("source and destination must differ")
	}
	for _, id := range []int64{sourceID, destID} {
		wh, err := s.catalog.GetWarehouse(ctx, id)
		if err != nil {
			return err
		}
		if !wh.IsActive {
			return shared.Validationf("warehouse %d is inactive", id)
		}
	}
	return nil
}

// resolveItems validates item lines and returns the referenced products.
func (s *Service) resolveItems(ctx context.Context, items []ItemInput) (map[int64]catalog.Product, error) {
	if len(items) == 0 {
		return nil, shared.Validationf("at least one item required")
	}
	ids := make([]int64, 0, len(items))
	for _, line := range items {
		if line.ProductID == 0 || line.Quantity <= 0 || line.Unit == "" {
			return nil, shared.Validationf("every item needs product, quantity and unit")
		}
		ids = append(ids, line.ProductID)
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, line := range items {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, shared.NotFoundf("product %d", line.ProductID)
		}
		if !product.IsActive {
			return nil, fmt.Errorf("%w: %s", catalog.ErrProductInactive, product.Code)
		}
		if _, err := units.ToBase(line.Quantity, line.Unit, product); err != nil {
			return nil, shared.Validationf("%v", err)
		}
	}
	return products, nil
}

func (s *Service) productsFor(ctx context.Context, items []RequestItem) (map[int64]catalog.Product, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if _, ok := products[item.ProductID]; !ok {
			return nil, shared.NotFoundf("product %d", item.ProductID)
		}
	}
	return products, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "transfer",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

func (s *Service) observeTransition(from, to TicketStatus) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveTransition(string(from), string(to))
}

func (s *Service) observeEntries(types []ledger.EntryType) {
	if s.metrics == nil {
		return
	}
	for _, t := range types {
		s.metrics.ObserveLedgerEntry(string(t))
	}
}

func invalidTransition(ticketID int64, from, to TicketStatus) error {
	return fmt.Errorf("%w: ticket %d is %s, cannot become %s", shared.ErrInvalidTransition, ticketID, from, to)
}

// conflict reports a lost CAS race on the ticket row.
func (s *Service) conflict(ticketID int64) error {
	if s.metrics != nil {
		s.metrics.ObserveConflict()
	}
	return fmt.Errorf("%w: ticket %d", shared.ErrConflict, ticketID)
}
