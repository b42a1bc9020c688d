package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

type memoryTransferRepo struct {
	mu      sync.Mutex
	tickets map[int64]TransferRequest
	items   map[int64][]RequestItem
	entries []ledger.Entry
	nextID  int64
}

func newMemoryTransferRepo() *memoryTransferRepo {
	return &memoryTransferRepo{
		tickets: make(map[int64]TransferRequest),
		items:   make(map[int64][]RequestItem),
	}
}

func (r *memoryTransferRepo) seedStock(productID, warehouseID int64, qty float64) {
	r.entries = append(r.entries, ledger.Entry{
		ProductID:      productID,
		WarehouseID:    warehouseID,
		Type:           ledger.EntryImportPO,
		QuantityChange: qty,
	})
}

func (r *memoryTransferRepo) balance(productID, warehouseID int64) float64 {
	var total float64
	for _, e := range r.entries {
		if e.ProductID == productID && e.WarehouseID == warehouseID {
			total += e.QuantityChange
		}
	}
	return total
}

// WithTx serialises callers and rolls the state back when fn fails, the way
// the real repository's transaction does.
func (r *memoryTransferRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapTickets := make(map[int64]TransferRequest, len(r.tickets))
	for k, v := range r.tickets {
		snapTickets[k] = v
	}
	snapItems := make(map[int64][]RequestItem, len(r.items))
	for k, v := range r.items {
		snapItems[k] = append([]RequestItem(nil), v...)
	}
	snapEntries := append([]ledger.Entry(nil), r.entries...)
	if err := fn(ctx, &memoryTransferTx{repo: r}); err != nil {
		r.tickets = snapTickets
		r.items = snapItems
		r.entries = snapEntries
		return err
	}
	return nil
}

func (r *memoryTransferRepo) GetTicket(ctx context.Context, id int64) (TransferRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return TransferRequest{}, shared.NotFoundf("transfer ticket %d", id)
	}
	t.Items = append([]RequestItem(nil), r.items[id]...)
	return t, nil
}

func (r *memoryTransferRepo) List(ctx context.Context, limit, offset int, filters ListFilters) ([]TicketListItem, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []TicketListItem
	for _, t := range r.tickets {
		if filters.Status != "" && t.Status != filters.Status {
			continue
		}
		items = append(items, TicketListItem{ID: t.ID, Code: t.Code, Status: t.Status, RelatedTransferID: t.RelatedTransferID})
	}
	return items, len(items), nil
}

type memoryTransferTx struct {
	repo *memoryTransferRepo
}

func (tx *memoryTransferTx) nextID() int64 {
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryTransferTx) CreateTicket(ctx context.Context, t TransferRequest) (int64, error) {
	id := tx.nextID()
	t.ID = id
	t.Items = nil
	tx.repo.tickets[id] = t
	return id, nil
}

func (tx *memoryTransferTx) InsertItem(ctx context.Context, item RequestItem) (int64, error) {
	item.ID = tx.nextID()
	tx.repo.items[item.TransferID] = append(tx.repo.items[item.TransferID], item)
	return item.ID, nil
}

func (tx *memoryTransferTx) UpdateStatus(ctx context.Context, id int64, from, to TicketStatus) (bool, error) {
	t, ok := tx.repo.tickets[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	tx.repo.tickets[id] = t
	return true, nil
}

func (tx *memoryTransferTx) SetApproval(ctx context.Context, id int64, approverID int64, notes string, hasCut bool) error {
	t := tx.repo.tickets[id]
	t.ApproverID = approverID
	t.ApproverNotes = notes
	t.HasCut = hasCut
	tx.repo.tickets[id] = t
	return nil
}

func (tx *memoryTransferTx) UpdateItemApproval(ctx context.Context, itemID int64, approvedQty float64) error {
	return tx.updateItem(itemID, func(item *RequestItem) {
		item.ApprovedQuantity = approvedQty
	})
}

func (tx *memoryTransferTx) UpdateItemReceipt(ctx context.Context, itemID int64, receivedQty, lossQty float64, lossReason string) error {
	return tx.updateItem(itemID, func(item *RequestItem) {
		item.ReceivedQuantity = receivedQty
		item.LossQuantity = lossQty
		item.LossReason = lossReason
	})
}

func (tx *memoryTransferTx) UpdateItemQuantities(ctx context.Context, itemID int64, qty float64) error {
	return tx.updateItem(itemID, func(item *RequestItem) {
		item.RequestQuantity = qty
		item.ApprovedQuantity = qty
		item.ReceivedQuantity = qty
	})
}

func (tx *memoryTransferTx) updateItem(itemID int64, apply func(*RequestItem)) error {
	for transferID, items := range tx.repo.items {
		for i := range items {
			if items[i].ID == itemID {
				apply(&items[i])
				tx.repo.items[transferID] = items
				return nil
			}
		}
	}
	return shared.NotFoundf("item %d", itemID)
}

func (tx *memoryTransferTx) UpdateTicketNotes(ctx context.Context, id int64, notes string) error {
	t, ok := tx.repo.tickets[id]
	if !ok {
		return shared.NotFoundf("transfer ticket %d", id)
	}
	t.Notes = notes
	tx.repo.tickets[id] = t
	return nil
}

func (tx *memoryTransferTx) DeleteItems(ctx context.Context, transferID int64) error {
	delete(tx.repo.items, transferID)
	return nil
}

func (tx *memoryTransferTx) LockStock(ctx context.Context, productID, warehouseID int64) error {
	return nil
}

func (tx *memoryTransferTx) StockBalance(ctx context.Context, productID, warehouseID int64) (float64, error) {
	return tx.repo.balance(productID, warehouseID), nil
}

func (tx *memoryTransferTx) AppendLedger(ctx context.Context, e ledger.Entry) error {
	tx.repo.entries = append(tx.repo.entries, e)
	return nil
}

type stubCatalog struct {
	products   map[int64]catalog.Product
	warehouses map[int64]catalog.Warehouse
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		products: map[int64]catalog.Product{
			1: {ID: 1, Code: "SP001", Name: "Nước suối", BaseUnit: "chai", ConversionRate: 1, IsActive: true},
			2: {ID: 2, Code: "SP002", Name: "Bia lon", BaseUnit: "lon", PackingUnit: "thùng", ConversionRate: 24, IsActive: true, CategoryID: 5},
		},
		warehouses: map[int64]catalog.Warehouse{
			10: {ID: 10, Name: "Kho tổng", Type: catalog.WarehouseTypeMain, IsActive: true},
			20: {ID: 20, Name: "Kho chi nhánh", Type: catalog.WarehouseTypeBranch, IsActive: true},
		},
	}
}

func (c *stubCatalog) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return catalog.Product{}, shared.NotFoundf("product %d", id)
	}
	return p, nil
}

func (c *stubCatalog) GetProducts(ctx context.Context, ids []int64) (map[int64]catalog.Product, error) {
	out := make(map[int64]catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (c *stubCatalog) GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error) {
	w, ok := c.warehouses[id]
	if !ok {
		return catalog.Warehouse{}, shared.NotFoundf("warehouse %d", id)
	}
	return w, nil
}

type recordingMetrics struct {
	transitions []string
	conflicts   int
	entries     []string
}

func (m *recordingMetrics) ObserveTransition(from, to string) {
	m.transitions = append(m.transitions, from+">"+to)
}

func (m *recordingMetrics) ObserveConflict() {
	m.conflicts++
}

func (m *recordingMetrics) ObserveLedgerEntry(entryType string) {
	m.entries = append(m.entries, entryType)
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func (a *memoryAudit) ListByEntity(ctx context.Context, entity, entityID string) ([]shared.AuditLog, error) {
	var out []shared.AuditLog
	for _, log := range a.logs {
		if log.Entity == entity && log.EntityID == entityID {
			out = append(out, log)
		}
	}
	return out, nil
}

func newTestService(repo *memoryTransferRepo) *Service {
	return NewService(repo, newStubCatalog(), nil, nil, nil, nil)
}

func actorContext(id int64) context.Context {
	return shared.ContextWithActor(context.Background(), id)
}

func entriesOfType(entries []ledger.Entry, entryType ledger.EntryType) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range entries {
		if e.Type == entryType {
			out = append(out, e)
		}
	}
	return out
}

func TestTransferLifecycleWithAutoCompensation(t *testing.T) {
	repo := newMemoryTransferRepo()
	repo.seedStock(1, 10, 100)
	svc := newTestService(repo)
	ctx := actorContext(7)

	ticket, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 10, Unit: "chai"}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, ticket.Status)
	require.Len(t, ticket.Items, 1)

	itemID := ticket.Items[0].ID
	require.NoError(t, svc.Approve(ctx, ticket.ID, ApproveInput{
		Notes: "chỉ còn 7",
		Items: []ApproveItemInput{{ItemID: itemID, ApprovedQuantity: 7}},
	}))
	approved, err := svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.True(t, approved.HasCut)

	require.NoError(t, svc.Ship(ctx, ticket.ID))
	outbound := entriesOfType(repo.entries, ledger.EntryTransferToTransit)
	require.Len(t, outbound, 1)
	require.InDelta(t, -7, outbound[0].QuantityChange, 0.001)
	require.Equal(t, int64(10), outbound[0].WarehouseID)

	spilloverID, err := svc.Receive(ctx, ticket.ID, ReceiveInput{
		Mode: CompensationAuto,
		Items: []ReceiveItemInput{{
			ItemID:           itemID,
			ReceivedQuantity: 6,
			LossQuantity:     1,
			LossReason:       "damaged",
		}},
	})
	require.NoError(t, err)
	require.NotZero(t, spilloverID)

	inbound := entriesOfType(repo.entries, ledger.EntryTransitToDest)
	require.Len(t, inbound, 1)
	require.InDelta(t, 6, inbound[0].QuantityChange, 0.001)
	require.Equal(t, int64(20), inbound[0].WarehouseID)

	done, err := svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.InDelta(t, 1, done.Items[0].LossQuantity, 0.001)

	spillover, err := svc.Get(ctx, spilloverID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, spillover.Status)
	require.Equal(t, ticket.ID, spillover.RelatedTransferID)
	require.Len(t, spillover.Items, 1)
	require.InDelta(t, 4, spillover.Items[0].RequestQuantity, 0.001)

	require.InDelta(t, 93, repo.balance(1, 10), 0.001)
	require.InDelta(t, 6, repo.balance(1, 20), 0.001)
}

func TestApproveRejectsOutOfRangeQuantity(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTestService(repo)
	ctx := actorContext(7)

	ticket, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 10, Unit: "chai"}},
	})
	require.NoError(t, err)

	err = svc.Approve(ctx, ticket.ID, ApproveInput{
		Items: []ApproveItemInput{{ItemID: ticket.Items[0].ID, ApprovedQuantity: 11}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRejectRequiresReason(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTestService(repo)
	ctx := actorContext(7)

	ticket, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 5, Unit: "chai"}},
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Reject(ctx, ticket.ID, ""), shared.ErrValidation)
	require.NoError(t, svc.Reject(ctx, ticket.ID, "không đủ hàng"))

	rejected, err := svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
}

func TestCancelOnlyWhilePending(t *testing.T) {
	repo := newMemoryTransferRepo()
	repo.seedStock(1, 10, 100)
	svc := newTestService(repo)
	ctx := actorContext(7)

	ticket, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 5, Unit: "chai"}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, ticket.ID, ApproveInput{
		Items: []ApproveItemInput{{ItemID: ticket.Items[0].ID, ApprovedQuantity: 5}},
	}))

	require.ErrorIs(t, svc.Cancel(ctx, ticket.ID), shared.ErrInvalidTransition)
}

func TestShipInsufficientStockRollsBack(t *testing.T) {
	repo := newMemoryTransferRepo()
	repo.seedStock(1, 10, 5)
	svc := newTestService(repo)
	ctx := actorContext(7)

	ticket, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 7, Unit: "chai"}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, ticket.ID, ApproveInput{
		Items: []ApproveItemInput{{ItemID: ticket.Items[0].ID, ApprovedQuantity: 7}},
	}))

	err = svc.Ship(ctx, ticket.ID)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	after, err := svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, after.Status)
	require.Empty(t, entriesOfType(repo.entries, ledger.EntryTransferToTransit))
}

func TestReceiveLossRequiresReason(t *testing.T) {
	repo := newMemoryTransferRepo()
	repo.seedStock(1, 10, 100)
	svc := newTestService(repo)
	ctx := actorContext(7)

	ticket, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 10, Unit: "chai"}},
	})
	require.NoError(t, err)
	itemID := ticket.Items[0].ID
	require.NoError(t, svc.Approve(ctx, ticket.ID, ApproveInput{
		Items: []ApproveItemInput{{ItemID: itemID, ApprovedQuantity: 10}},
	}))
	require.NoError(t, svc.Ship(ctx, ticket.ID))

	_, err = svc.Receive(ctx, ticket.ID, ReceiveInput{
		Mode:  CompensationNone,
		Items: []ReceiveItemInput{{ItemID: itemID, ReceivedQuantity: 8}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReceiveTwiceReturnsInvalidTransition(t *testing.T) {
	repo := newMemoryTransferRepo()
	repo.seedStock(1, 10, 100)
	svc := newTestService(repo)
	ctx := actorContext(7)

	ticket, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 5, Unit: "chai"}},
	})
	require.NoError(t, err)
	itemID := ticket.Items[0].ID
	require.NoError(t, svc.Approve(ctx, ticket.ID, ApproveInput{
		Items: []ApproveItemInput{{ItemID: itemID, ApprovedQuantity: 5}},
	}))
	require.NoError(t, svc.Ship(ctx, ticket.ID))

	receive := ReceiveInput{
		Mode:  CompensationNone,
		Items: []ReceiveItemInput{{ItemID: itemID, ReceivedQuantity: 5}},
	}
	_, err = svc.Receive(ctx, ticket.ID, receive)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, ticket.ID, receive)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestConcurrentShipHasOneWinner(t *testing.T) {
	repo := newMemoryTransferRepo()
	repo.seedStock(1, 10, 100)
	svc := newTestService(repo)
	ctx := actorContext(7)

	ticket, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 5, Unit: "chai"}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, ticket.ID, ApproveInput{
		Items: []ApproveItemInput{{ItemID: ticket.Items[0].ID, ApprovedQuantity: 5}},
	}))

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.Ship(ctx, ticket.ID)
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrInvalidTransition):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, losses)
	require.Len(t, entriesOfType(repo.entries, ledger.EntryTransferToTransit), 1)
}

func TestDirectExportPostsBothSidesInPackingUnits(t *testing.T) {
	repo := newMemoryTransferRepo()
	repo.seedStock(2, 10, 100)
	svc := newTestService(repo)
	ctx := actorContext(7)

	ticket, err := svc.DirectExport(ctx, DirectExportInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 2, Quantity: 2, Unit: "thùng"}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, ticket.Status)
	require.True(t, ticket.Direct)

	exports := entriesOfType(repo.entries, ledger.EntryExportTransfer)
	imports := entriesOfType(repo.entries, ledger.EntryImportTransfer)
	require.Len(t, exports, 1)
	require.Len(t, imports, 1)
	require.InDelta(t, -48, exports[0].QuantityChange, 0.001)
	require.InDelta(t, 48, imports[0].QuantityChange, 0.001)
	require.InDelta(t, 52, repo.balance(2, 10), 0.001)
	require.InDelta(t, 48, repo.balance(2, 20), 0.001)
}

func TestDirectExportInsufficientStockAbortsWhole(t *testing.T) {
	repo := newMemoryTransferRepo()
	repo.seedStock(1, 10, 3)
	svc := newTestService(repo)
	ctx := actorContext(7)

	before := len(repo.entries)
	_, err := svc.DirectExport(ctx, DirectExportInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 5, Unit: "chai"}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Len(t, repo.entries, before)
	require.Empty(t, repo.tickets)
}

func TestAmendDirectExportPostsDeltas(t *testing.T) {
	repo := newMemoryTransferRepo()
	repo.seedStock(1, 10, 100)
	svc := newTestService(repo)
	ctx := actorContext(7)

	ticket, err := svc.DirectExport(ctx, DirectExportInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 5, Unit: "chai"}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.AmendDirectExport(ctx, ticket.ID, []AmendItemInput{
		{ItemID: ticket.Items[0].ID, Quantity: 3},
	}))

	// 5 exported then 2 returned; net effect matches the corrected quantity.
	require.InDelta(t, 97, repo.balance(1, 10), 0.001)
	require.InDelta(t, 3, repo.balance(1, 20), 0.001)

	amended, err := svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	require.InDelta(t, 3, amended.Items[0].RequestQuantity, 0.001)

	// Amending a workflow ticket is refused.
	workflow, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 2, Unit: "chai"}},
	})
	require.NoError(t, err)
	err = svc.AmendDirectExport(ctx, workflow.ID, []AmendItemInput{{ItemID: workflow.Items[0].ID, Quantity: 1}})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestUpdateRequestRewritesPendingTicket(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTestService(repo)
	ctx := actorContext(7)

	ticket, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Notes:             "first draft",
		Items:             []ItemInput{{ProductID: 1, Quantity: 10, Unit: "chai"}},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateRequest(ctx, ticket.ID, UpdateRequestInput{
		Notes: "second draft",
		Items: []ItemInput{
			{ProductID: 1, Quantity: 4, Unit: "chai"},
			{ProductID: 2, Quantity: 2, Unit: "thùng"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "second draft", updated.Notes)
	require.Len(t, updated.Items, 2)

	stored, err := svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, "second draft", stored.Notes)
	require.Len(t, stored.Items, 2)
	require.Equal(t, float64(2), stored.Items[1].RequestQuantity)
	require.Equal(t, StatusPending, stored.Status)
}

func TestUpdateRequestRejectsApprovedTicket(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTestService(repo)
	ctx := actorContext(7)

	ticket, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 10, Unit: "chai"}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, ticket.ID, ApproveInput{Items: []ApproveItemInput{{ItemID: ticket.Items[0].ID, ApprovedQuantity: 10}}}))

	_, err = svc.UpdateRequest(ctx, ticket.ID, UpdateRequestInput{
		Items: []ItemInput{{ProductID: 1, Quantity: 5, Unit: "chai"}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCreateRequestRejectsInactiveProduct(t *testing.T) {
	repo := newMemoryTransferRepo()
	cat := newStubCatalog()
	cat.products[3] = catalog.Product{ID: 3, Code: "SP003", BaseUnit: "chai", ConversionRate: 1, IsActive: false}
	svc := NewService(repo, cat, nil, nil, nil, nil)

	_, err := svc.CreateRequest(actorContext(7), CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 3, Quantity: 1, Unit: "chai"}},
	})
	require.ErrorIs(t, err, catalog.ErrProductInactive)
}

func TestAuditTrailReturnsTicketHistory(t *testing.T) {
	repo := newMemoryTransferRepo()
	audit := &memoryAudit{}
	svc := NewService(repo, newStubCatalog(), nil, audit, nil, nil)
	ctx := actorContext(7)

	ticket, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 10, Unit: "chai"}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, ticket.ID, ApproveInput{Items: []ApproveItemInput{{ItemID: ticket.Items[0].ID, ApprovedQuantity: 10}}}))

	trail, err := svc.AuditTrail(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, "TRANSFER_CREATE", trail[0].Action)
	require.Equal(t, "TRANSFER_APPROVE", trail[1].Action)
}

func TestLifecycleObservesTransitionsAndEntries(t *testing.T) {
	repo := newMemoryTransferRepo()
	repo.seedStock(1, 10, 100)
	metrics := &recordingMetrics{}
	svc := NewService(repo, newStubCatalog(), nil, nil, nil, metrics)
	ctx := actorContext(7)

	ticket, err := svc.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 10, Unit: "chai"}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, ticket.ID, ApproveInput{Items: []ApproveItemInput{{ItemID: ticket.Items[0].ID, ApprovedQuantity: 10}}}))
	require.NoError(t, svc.Ship(ctx, ticket.ID))
	_, err = svc.Receive(ctx, ticket.ID, ReceiveInput{Items: []ReceiveItemInput{{ItemID: ticket.Items[0].ID, ReceivedQuantity: 10}}})
	require.NoError(t, err)

	require.Equal(t, []string{
		"PENDING>APPROVED",
		"APPROVED>SHIPPING",
		"SHIPPING>COMPLETED",
	}, metrics.transitions)
	require.Equal(t, []string{
		string(ledger.EntryTransferToTransit),
		string(ledger.EntryTransitToDest),
	}, metrics.entries)
	require.Zero(t, metrics.conflicts)
}

type racingTransferRepo struct {
	*memoryTransferRepo
	target int64
	flipTo TicketStatus
}

// WithTx flips the ticket's status right before the transaction body runs,
// recreating a writer that slipped in between the status read and the CAS.
func (r *racingTransferRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	t := r.tickets[r.target]
	t.Status = r.flipTo
	r.tickets[r.target] = t
	r.mu.Unlock()
	return r.memoryTransferRepo.WithTx(ctx, fn)
}

func TestLostRaceObservesConflict(t *testing.T) {
	repo := newMemoryTransferRepo()
	metrics := &recordingMetrics{}
	setup := NewService(repo, newStubCatalog(), nil, nil, nil, nil)
	ctx := actorContext(7)

	ticket, err := setup.CreateRequest(ctx, CreateRequestInput{
		SourceWarehouseID: 10,
		DestWarehouseID:   20,
		Items:             []ItemInput{{ProductID: 1, Quantity: 10, Unit: "chai"}},
	})
	require.NoError(t, err)

	racing := &racingTransferRepo{memoryTransferRepo: repo, target: ticket.ID, flipTo: StatusCancelled}
	svc := NewService(racing, newStubCatalog(), nil, nil, nil, metrics)

	err = svc.Approve(ctx, ticket.ID, ApproveInput{Items: []ApproveItemInput{{ItemID: ticket.Items[0].ID, ApprovedQuantity: 10}}})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 1, metrics.conflicts)
	require.Empty(t, metrics.transitions)
}
