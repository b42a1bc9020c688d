// Package dashboard computes read-only operational projections on demand.
// Nothing here is cached authoritatively; concurrent identical reads are
// deduplicated in flight but every result reflects the store at call time.
package dashboard

import "time"

// Stats is the aggregate snapshot for one warehouse and date range.
type Stats struct {
	TicketCounts     map[string]int `json:"ticket_counts"`
	ImportCount      int            `json:"import_count"`
	ImportAmount     float64        `json:"import_amount"`
	CompletedExports int            `json:"completed_exports"`
	WarningPercent   float64        `json:"warning_percent"`
}

// Query scopes a stats request. A zero WarehouseID means all warehouses.
type Query struct {
	WarehouseID int64
	DateFrom    time.Time
	DateTo      time.Time
}
