package receipts

import (
	"context"
	"fmt"
	"math"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/units"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReceipt(ctx context.Context, id int64) (Receipt, error)
	List(ctx context.Context, limit, offset int, filters ListFilters) ([]ReceiptListItem, int, error)
}

// CatalogPort exposes the master data reads the receipts flow depends on.
type CatalogPort interface {
	GetProducts(ctx context.Context, ids []int64) (map[int64]catalog.Product, error)
	GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates goods-in documents.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	audit   AuditPort
}

// NewService constructs receipts service.
func NewService(repo RepositoryPort, cat CatalogPort, audit AuditPort) *Service {
	return &Service{repo: repo, catalog: cat, audit: audit}
}

// ItemInput describes one purchased product line.
type ItemInput struct {
	ProductID int64
	Quantity  float64
	Unit      string
	UnitPrice float64
}

// CreateInput describes receipt creation payload.
type CreateInput struct {
	WarehouseID  int64
	SupplierName string
	Notes        string
	Items        []ItemInput
}

// UpdateInput fully replaces a receipt's content.
type UpdateInput struct {
	SupplierName string
	Notes        string
	Items        []ItemInput
}

// Create persists the receipt and posts its inbound ledger entries in the
// same transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (Receipt, error) {
	if input.WarehouseID == 0 {
		return Receipt{}, shared.Validationf("warehouse required")
	}
	wh, err := s.catalog.GetWarehouse(ctx, input.WarehouseID)
	if err != nil {
		return Receipt{}, err
	}
	if !wh.IsActive {
		return Receipt{}, shared.Validationf("warehouse %d is inactive", input.WarehouseID)
	}
	products, err := s.resolveItems(ctx, input.Items)
	if err != nil {
		return Receipt{}, err
	}
	actor := shared.ActorFromContext(ctx)
	rec := Receipt{
		Code:         generateCode("PN"),
		WarehouseID:  input.WarehouseID,
		SupplierName: input.SupplierName,
		Notes:        input.Notes,
		Total:        documentTotal(input.Items),
		CreatedBy:    actor,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateReceipt(ctx, rec)
		if err != nil {
			return err
		}
		rec.ID = id
		for _, line := range input.Items {
			item := ReceiptItem{
				ReceiptID: id,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Unit:      line.Unit,
				UnitPrice: line.UnitPrice,
				LineTotal: lineTotal(line),
			}
			itemID, err := tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			rec.Items = append(rec.Items, item)
		}
		return s.applyItems(ctx, tx, rec.ID, rec.WarehouseID, input.Items, products, actor, 1)
	})
	if err != nil {
		return Receipt{}, err
	}
	s.recordAudit(ctx, "RECEIPT_CREATE", rec.ID, map[string]any{"code": rec.Code, "total": rec.Total})
	return rec, nil
}

// Update replaces the receipt's content, reverting the previous ledger
// effect with compensating adjustments and posting the new items fresh.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Receipt, error) {
	existing, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	newProducts, err := s.resolveItems(ctx, input.Items)
	if err != nil {
		return Receipt{}, err
	}
	oldProducts, err := s.productsForItems(ctx, existing.Items)
	if err != nil {
		return Receipt{}, err
	}
	actor := shared.ActorFromContext(ctx)
	updated := existing
	updated.SupplierName = input.SupplierName
	updated.Notes = input.Notes
	updated.Total = documentTotal(input.Items)
	updated.Items = nil

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.revertItems(ctx, tx, existing, oldProducts, actor); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		if err := tx.UpdateHeader(ctx, id, input.SupplierName, input.Notes, updated.Total); err != nil {
			return err
		}
		for _, line := range input.Items {
			item := ReceiptItem{
				ReceiptID: id,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Unit:      line.Unit,
				UnitPrice: line.UnitPrice,
				LineTotal: lineTotal(line),
			}
			itemID, err := tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			updated.Items = append(updated.Items, item)
		}
		return s.applyItems(ctx, tx, id, existing.WarehouseID, input.Items, newProducts, actor, 1)
	})
	if err != nil {
		return Receipt{}, err
	}
	s.recordAudit(ctx, "RECEIPT_UPDATE", id, map[string]any{"total": updated.Total})
	return updated, nil
}

// Delete reverts the receipt's ledger effect and soft-deletes the document.
func (s *Service) Delete(ctx context.Context, id int64) error {
	existing, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return err
	}
	products, err := s.productsForItems(ctx, existing.Items)
	if err != nil {
		return err
	}
	actor := shared.ActorFromContext(ctx)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.revertItems(ctx, tx, existing, products, actor); err != nil {
			return err
		}
		return tx.SoftDelete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "RECEIPT_DELETE", id, map[string]any{"code": existing.Code})
	return nil
}

// Get returns one receipt with items.
func (s *Service) Get(ctx context.Context, id int64) (Receipt, error) {
	return s.repo.GetReceipt(ctx, id)
}

// List returns receipts matching filters.
func (s *Service) List(ctx context.Context, limit, offset int, filters ListFilters) ([]ReceiptListItem, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, limit, offset, filters)
}

// applyItems posts one inbound entry per line, signed by direction. A
// direction of -1 reverts with adjustments instead of importing.
func (s *Service) applyItems(ctx context.Context, tx TxRepository, receiptID, warehouseID int64, items []ItemInput, products map[int64]catalog.Product, actor int64, direction float64) error {
	for _, line := range items {
		baseQty, err := units.ToBase(line.Quantity, line.Unit, products[line.ProductID])
		if err != nil {
			return shared.Validationf("%v", err)
		}
		if err := tx.LockStock(ctx, line.ProductID, warehouseID); err != nil {
			return err
		}
		entryType := ledger.EntryImportPO
		if direction < 0 {
			entryType = ledger.EntryAdjustment
		}
		if err := tx.AppendLedger(ctx, ledger.Entry{
			ProductID:      line.ProductID,
			WarehouseID:    warehouseID,
			Type:           entryType,
			QuantityChange: direction * baseQty,
			RefTicketID:    receiptID,
			RefTicketType:  ledger.RefReceipt,
			ActorID:        actor,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) revertItems(ctx context.Context, tx TxRepository, rec Receipt, products map[int64]catalog.Product, actor int64) error {
	lines := make([]ItemInput, 0, len(rec.Items))
	for _, item := range rec.Items {
		lines = append(lines, ItemInput{ProductID: item.ProductID, Quantity: item.Quantity, Unit: item.Unit})
	}
	return s.applyItems(ctx, tx, rec.ID, rec.WarehouseID, lines, products, actor, -1)
}

func (s *Service) resolveItems(ctx context.Context, items []ItemInput) (map[int64]catalog.Product, error) {
	if len(items) == 0 {
		return nil, shared.Validationf("at least one item required")
	}
	ids := make([]int64, 0, len(items))
	for _, line := range items {
		if line.ProductID == 0 || line.Quantity <= 0 || line.Unit == "" {
			return nil, shared.Validationf("every item needs product, quantity and unit")
		}
		if line.UnitPrice < 0 {
			return nil, shared.Validationf("unit price cannot be negative")
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

func (s *Service) productsForItems(ctx context.Context, items []ReceiptItem) (map[int64]catalog.Product, error) {
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
		Entity:   "receipt",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

func lineTotal(line ItemInput) float64 {
	return math.Round(line.Quantity*line.UnitPrice*100) / 100
}

func documentTotal(items []ItemInput) float64 {
	var total float64
	for _, line := range items {
		total += lineTotal(line)
	}
	return math.Round(total*100) / 100
}
