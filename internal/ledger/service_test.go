package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
)

type memoryLedgerRepo struct {
	summary []SummaryRow
	report  []ReportRow
	history []HistoryEntry

	pageCalls int
}

func (m *memoryLedgerRepo) Balance(ctx context.Context, productID, warehouseID int64, asOf time.Time) (float64, error) {
	var total float64
	for _, e := range m.history {
		if e.ProductID != productID || e.WarehouseID != warehouseID {
			continue
		}
		if !asOf.IsZero() && e.OccurredAt.After(asOf) {
			continue
		}
		total += e.QuantityChange
	}
	return total, nil
}

func (m *memoryLedgerRepo) Summary(ctx context.Context, warehouseID int64, from, to time.Time) ([]SummaryRow, error) {
	return m.summary, nil
}

func (m *memoryLedgerRepo) Report(ctx context.Context, warehouseID, categoryID int64) ([]ReportRow, error) {
	return m.report, nil
}

func (m *memoryLedgerRepo) HistoryPage(ctx context.Context, productID, warehouseID int64, cursor Cursor, limit int) ([]HistoryEntry, error) {
	m.pageCalls++
	var page []HistoryEntry
	for _, e := range m.history {
		if e.ProductID != productID || e.WarehouseID != warehouseID {
			continue
		}
		if !cursor.IsZero() {
			if e.OccurredAt.After(cursor.OccurredAt) {
				continue
			}
			if e.OccurredAt.Equal(cursor.OccurredAt) && e.ID >= cursor.ID {
				continue
			}
		}
		page = append(page, e)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func historyFixture(n int) []HistoryEntry {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	entries := make([]HistoryEntry, 0, n)
	// Newest first, the order the repository returns.
	for i := n; i >= 1; i-- {
		entries = append(entries, HistoryEntry{
			Entry: Entry{
				ID:             int64(i),
				ProductID:      1,
				WarehouseID:    2,
				Type:           EntryImportPO,
				QuantityChange: float64(i),
				OccurredAt:     base.Add(time.Duration(i) * time.Minute),
			},
		})
	}
	return entries
}

func TestSummaryAssignsWarningStatus(t *testing.T) {
	repo := &memoryLedgerRepo{summary: []SummaryRow{
		{ProductID: 1, ClosingBalance: 10, MinStock: 10},
		{ProductID: 2, ClosingBalance: 11, MinStock: 10},
		{ProductID: 3, ClosingBalance: 0, MinStock: 0},
	}}
	svc := NewService(repo)

	rows, err := svc.Summary(context.Background(), 2, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, StatusWarning, rows[0].Status)
	require.Equal(t, StatusStable, rows[1].Status)
	require.Equal(t, StatusWarning, rows[2].Status)
}

func TestSummaryRequiresWarehouse(t *testing.T) {
	svc := NewService(&memoryLedgerRepo{})
	_, err := svc.Summary(context.Background(), 0, time.Time{}, time.Time{})
	require.Error(t, err)
}

func TestHistoryIteratesAcrossBatches(t *testing.T) {
	repo := &memoryLedgerRepo{history: historyFixture(7)}
	svc := NewService(repo)

	it := svc.History(1, 2, Cursor{}, 3)
	var seen []int64
	for it.Next(context.Background()) {
		seen = append(seen, it.Entry().ID)
	}
	require.NoError(t, it.Err())
	require.Equal(t, []int64{7, 6, 5, 4, 3, 2, 1}, seen)
	require.GreaterOrEqual(t, repo.pageCalls, 3)
}

func TestHistoryResumesFromCursor(t *testing.T) {
	repo := &memoryLedgerRepo{history: historyFixture(5)}
	svc := NewService(repo)

	it := svc.History(1, 2, Cursor{}, 2)
	require.True(t, it.Next(context.Background()))
	require.True(t, it.Next(context.Background()))
	resume := it.Cursor()

	// A fresh iterator picks up strictly after the consumed prefix.
	it2 := svc.History(1, 2, resume, 2)
	var rest []int64
	for it2.Next(context.Background()) {
		rest = append(rest, it2.Entry().ID)
	}
	require.NoError(t, it2.Err())
	require.Equal(t, []int64{3, 2, 1}, rest)
}

func TestHistoryEmptyLog(t *testing.T) {
	svc := NewService(&memoryLedgerRepo{})
	it := svc.History(1, 2, Cursor{}, 10)
	require.False(t, it.Next(context.Background()))
	require.NoError(t, it.Err())
}

func TestBalanceRunningSum(t *testing.T) {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	repo := &memoryLedgerRepo{history: []HistoryEntry{
		{Entry: Entry{ID: 1, ProductID: 1, WarehouseID: 2, Type: EntryImportPO, QuantityChange: 100, OccurredAt: base}},
		{Entry: Entry{ID: 2, ProductID: 1, WarehouseID: 2, Type: EntryTransferToTransit, QuantityChange: -30, OccurredAt: base.Add(time.Hour)}},
		{Entry: Entry{ID: 3, ProductID: 1, WarehouseID: 2, Type: EntryAdjustment, QuantityChange: -5, OccurredAt: base.Add(2 * time.Hour)}},
	}}
	svc := NewService(repo)

	got, err := svc.Balance(context.Background(), 1, 2, time.Time{})
	require.NoError(t, err)
	require.InDelta(t, 65, got, 1e-9)

	asOf, err := svc.Balance(context.Background(), 1, 2, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.InDelta(t, 70, asOf, 1e-9)
}

func TestDisplayQuantitySplitsPackingUnits(t *testing.T) {
	beer := catalog.Product{BaseUnit: "chai", PackingUnit: "thùng", ConversionRate: 24}
	require.Equal(t, "2 thùng, 2 chai", displayQuantity(50, beer))

	rice := catalog.Product{BaseUnit: "kg", ConversionRate: 1}
	require.Equal(t, "75 kg", displayQuantity(75, rice))
}
