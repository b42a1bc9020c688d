package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSummaryWorkbookLayout(t *testing.T) {
	rows := []SummaryRow{
		{
			ProductCode:    "SP001",
			ProductName:    "Nước suối 500ml",
			BaseUnit:       "chai",
			OpeningBalance: 100,
			TotalImport:    50,
			TotalExport:    30,
			ClosingBalance: 120,
			MinStock:       10,
			Status:         StatusStable,
		},
		{
			ProductCode:    "SP002",
			ProductName:    "Bia lon",
			BaseUnit:       "lon",
			ClosingBalance: 5,
			MinStock:       10,
			Status:         StatusWarning,
		},
	}
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	book, err := SummaryWorkbook(rows, "Kho Trung Tâm", from, to)
	require.NoError(t, err)
	t.Cleanup(func() { _ = book.Close() })

	sheet := book.GetSheetName(book.GetActiveSheetIndex())

	title, err := book.GetCellValue(sheet, "A1")
	require.NoError(t, err)
	require.Contains(t, title, "Kho Trung Tâm")
	require.Contains(t, title, "01/06/2025")

	header, err := book.GetCellValue(sheet, "A2")
	require.NoError(t, err)
	require.Equal(t, "Mã SP", header)

	code, err := book.GetCellValue(sheet, "A3")
	require.NoError(t, err)
	require.Equal(t, "SP001", code)

	closing, err := book.GetCellValue(sheet, "G3")
	require.NoError(t, err)
	require.Equal(t, "120", closing)

	status, err := book.GetCellValue(sheet, "I4")
	require.NoError(t, err)
	require.Equal(t, StatusWarning, status)
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 15, 9, 30, 0, 123456789, time.UTC)
	encoded := encodeCursor(Cursor{OccurredAt: at, ID: 42})

	decoded, err := decodeCursor(encoded)
	require.NoError(t, err)
	require.Equal(t, int64(42), decoded.ID)
	require.True(t, decoded.OccurredAt.Equal(at))

	empty, err := decodeCursor("")
	require.NoError(t, err)
	require.True(t, empty.IsZero())

	_, err = decodeCursor("not-a-cursor")
	require.Error(t, err)
}
