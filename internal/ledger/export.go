package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// SummaryWorkbook renders summary rows into an .xlsx workbook. The column
// layout mirrors the on-screen summary so the download needs no legend.
func SummaryWorkbook(rows []SummaryRow, warehouseName string, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	title := fmt.Sprintf("Tồn kho %s (%s - %s)", warehouseName,
		from.Format("02/01/2006"), to.Format("02/01/2006"))
	if err := f.SetCellValue(sheet, "A1", title); err != nil {
		return nil, fmt.Errorf("ledger: write workbook title: %w", err)
	}

	header := []any{
		"Mã SP", "Tên sản phẩm", "Đơn vị",
		"Tồn đầu kỳ", "Nhập trong kỳ", "Xuất trong kỳ", "Tồn cuối kỳ",
		"Định mức", "Trạng thái",
	}
	if err := f.SetSheetRow(sheet, "A2", &header); err != nil {
		return nil, fmt.Errorf("ledger: write workbook header: %w", err)
	}

	for i, row := range rows {
		cell := "A" + strconv.Itoa(i+3)
		line := []any{
			row.ProductCode,
			row.ProductName,
			row.BaseUnit,
			row.OpeningBalance,
			row.TotalImport,
			row.TotalExport,
			row.ClosingBalance,
			row.MinStock,
			row.Status,
		}
		if err := f.SetSheetRow(sheet, cell, &line); err != nil {
			return nil, fmt.Errorf("ledger: write workbook row %d: %w", i, err)
		}
	}
	return f, nil
}
