package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
	"github.com/meridian-wms/meridian-wms/internal/units"
)

// RepositoryPort abstracts the read-side repository for the service.
type RepositoryPort interface {
	Balance(ctx context.Context, productID, warehouseID int64, asOf time.Time) (float64, error)
	Summary(ctx context.Context, warehouseID int64, from, to time.Time) ([]SummaryRow, error)
	HistoryPage(ctx context.Context, productID, warehouseID int64, cursor Cursor, limit int) ([]HistoryEntry, error)
	Report(ctx context.Context, warehouseID, categoryID int64) ([]ReportRow, error)
}

// Service exposes derived stock projections.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Balance returns the derived stock level at asOf; a zero asOf means now.
func (s *Service) Balance(ctx context.Context, productID, warehouseID int64, asOf time.Time) (float64, error) {
	if productID == 0 || warehouseID == 0 {
		return 0, fmt.Errorf("ledger: product and warehouse required")
	}
	return s.repo.Balance(ctx, productID, warehouseID, asOf)
}

// Summary returns per-product opening/closing balances for the range and
// stamps the warning status where closing falls to or below the threshold.
func (s *Service) Summary(ctx context.Context, warehouseID int64, from, to time.Time) ([]SummaryRow, error) {
	if warehouseID == 0 {
		return nil, fmt.Errorf("ledger: warehouse required")
	}
	rows, err := s.repo.Summary(ctx, warehouseID, from, to)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Status = stockStatus(rows[i].ClosingBalance, rows[i].MinStock)
	}
	return rows, nil
}

// Report returns current balances with display quantities and warning flags.
func (s *Service) Report(ctx context.Context, warehouseID, categoryID int64) ([]ReportRow, error) {
	if warehouseID == 0 {
		return nil, fmt.Errorf("ledger: warehouse required")
	}
	rows, err := s.repo.Report(ctx, warehouseID, categoryID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Status = stockStatus(rows[i].QuantityBase, rows[i].MinStock)
	}
	return rows, nil
}

// History opens a lazy, restartable scan over one pair's movement log,
// newest first. Pass a zero cursor to start from the top, or a cursor from a
// previous scan to resume after an interruption.
func (s *Service) History(productID, warehouseID int64, resume Cursor, batchSize int) *History {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &History{
		svc:         s,
		productID:   productID,
		warehouseID: warehouseID,
		cursor:      resume,
		batchSize:   batchSize,
	}
}

// History iterates ledger entries in batches fetched on demand.
type History struct {
	svc         *Service
	productID   int64
	warehouseID int64
	cursor      Cursor
	batchSize   int

	buf  []HistoryEntry
	pos  int
	done bool
	err  error
}

// Next advances to the following entry, fetching the next batch when the
// buffer is drained. It returns false at the end of the log or on error.
func (h *History) Next(ctx context.Context) bool {
	if h.err != nil {
		return false
	}
	if h.pos < len(h.buf) {
		h.cursor = Cursor{OccurredAt: h.buf[h.pos].OccurredAt, ID: h.buf[h.pos].ID}
		h.pos++
		return true
	}
	if h.done {
		return false
	}
	batch, err := h.svc.repo.HistoryPage(ctx, h.productID, h.warehouseID, h.cursor, h.batchSize)
	if err != nil {
		h.err = err
		return false
	}
	if len(batch) == 0 {
		h.done = true
		return false
	}
	if len(batch) < h.batchSize {
		h.done = true
	}
	h.buf = batch
	h.pos = 1
	h.cursor = Cursor{OccurredAt: batch[0].OccurredAt, ID: batch[0].ID}
	return true
}

// Entry returns the entry positioned by the last successful Next.
func (h *History) Entry() HistoryEntry {
	return h.buf[h.pos-1]
}

// Err reports a fetch failure, nil on clean exhaustion.
func (h *History) Err() error {
	return h.err
}

// Cursor returns the resume position after the last consumed entry.
func (h *History) Cursor() Cursor {
	return h.cursor
}

func stockStatus(quantity float64, minStock int) string {
	if quantity <= float64(minStock) {
		return StatusWarning
	}
	return StatusStable
}

func displayQuantity(baseQuantity float64, product catalog.Product) string {
	if !product.HasPackingUnit() {
		return fmt.Sprintf("%d %s", int64(baseQuantity), product.BaseUnit)
	}
	packs, rest := units.SplitDisplay(baseQuantity, product)
	return fmt.Sprintf("%d %s, %d %s", packs, product.PackingUnit, rest, product.BaseUnit)
}
