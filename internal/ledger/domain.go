package ledger

import "time"

// EntryType enumerates stock movement kinds.
type EntryType string

const (
	// EntryImportPO is an inbound movement from a supplier receipt.
	EntryImportPO EntryType = "IMPORT_PO"
	// EntryImportTransfer is an inbound movement at a transfer destination.
	EntryImportTransfer EntryType = "IMPORT_TRANSFER"
	// EntryExportTransfer is an outbound movement at a transfer source.
	EntryExportTransfer EntryType = "EXPORT_TRANSFER"
	// EntryTransferToTransit debits the source when a ticket ships.
	EntryTransferToTransit EntryType = "TRANSFER_TO_TRANSIT"
	// EntryTransitToDest credits the destination with the received quantity.
	EntryTransitToDest EntryType = "TRANSIT_TO_DEST"
	// EntryAdjustment is a manual or compensating correction.
	EntryAdjustment EntryType = "ADJUSTMENT"
)

// Label returns the human-readable transaction label shown in history views.
func (t EntryType) Label() string {
	switch t {
	case EntryImportPO:
		return "Nhập hàng từ NCC"
	case EntryImportTransfer:
		return "Nhập kho"
	case EntryExportTransfer:
		return "Xuất kho"
	case EntryTransferToTransit:
		return "Xuất sang vận chuyển"
	case EntryTransitToDest:
		return "Nhận tại kho đích"
	case EntryAdjustment:
		return "Kiểm kê/Cân chỉnh"
	default:
		return string(t)
	}
}

// Direction classifies entries for client-side filtering.
type Direction string

const (
	DirectionImport Direction = "IMPORT"
	DirectionExport Direction = "EXPORT"
)

// Direction infers the import/export classification from type and sign.
func (e Entry) Direction() Direction {
	if e.QuantityChange >= 0 {
		return DirectionImport
	}
	return DirectionExport
}

// RefType tags the document kind an entry points back to.
const (
	RefTransfer = "TRANSFER"
	RefReceipt  = "RECEIPT"
)

// Entry is one immutable, signed stock movement in base units. Balances are
// always derived from entries, never stored.
type Entry struct {
	ID             int64
	ProductID      int64
	WarehouseID    int64
	Type           EntryType
	QuantityChange float64
	RefTicketID    int64
	RefTicketType  string
	ActorID        int64
	OccurredAt     time.Time
}

// HistoryEntry joins an Entry with presentation fields for audit drill-down.
type HistoryEntry struct {
	Entry
	TypeLabel     string
	WarehouseName string
	RefCode       string
}

// SummaryRow is one product line of a date-ranged warehouse summary.
type SummaryRow struct {
	ProductID      int64
	ProductCode    string
	ProductName    string
	BaseUnit       string
	PackingUnit    string
	ConversionRate int
	CategoryID     int64
	OpeningBalance float64
	TotalImport    float64
	TotalExport    float64
	ClosingBalance float64
	MinStock       int
	Status         string
}

// ReportRow is one line of the realtime stock report.
type ReportRow struct {
	ProductID       int64
	ProductCode     string
	ProductName     string
	WarehouseID     int64
	WarehouseName   string
	QuantityBase    float64
	DisplayQuantity string
	MinStock        int
	Status          string
}

// Stock status labels kept verbatim from the operational vocabulary.
const (
	StatusWarning = "Cảnh báo"
	StatusStable  = "Ổn định"
)
