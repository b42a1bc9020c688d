// Package transfer implements the warehouse transfer workflow: request,
// approval, shipment and receipt, plus the direct export shortcut. Every
// stock effect is posted to the movement ledger inside the transition's
// transaction.
package transfer

import (
	"fmt"
	"time"

	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/units"
)

// TicketStatus enumerates transfer ticket states.
type TicketStatus string

const (
	// StatusPending is the initial state; no ledger effect yet.
	StatusPending TicketStatus = "PENDING"
	// StatusApproved records the sourcing decision; still no ledger effect.
	StatusApproved TicketStatus = "APPROVED"
	// StatusShipping means stock left the source warehouse.
	StatusShipping TicketStatus = "SHIPPING"
	// StatusCompleted is terminal; received stock was posted at the destination.
	StatusCompleted TicketStatus = "COMPLETED"
	// StatusRejected is terminal; set by an approver with a reason.
	StatusRejected TicketStatus = "REJECTED"
	// StatusCancelled is terminal; only reachable from PENDING.
	StatusCancelled TicketStatus = "CANCELLED"
)

// transitions is the single source of truth for the state machine. Status
// checks scattered across handlers must go through CanTransition instead.
var transitions = map[TicketStatus][]TicketStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusShipping},
	StatusShipping: {StatusCompleted},
}

// CanTransition reports whether from may advance to to.
func CanTransition(from, to TicketStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves the status.
func (s TicketStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// CompensationMode governs residual handling at receipt time.
type CompensationMode string

const (
	// CompensationNone absorbs any shortfall without follow-up.
	CompensationNone CompensationMode = "none"
	// CompensationAuto creates a linked PENDING ticket for the shortfall.
	CompensationAuto CompensationMode = "auto"
)

// ParseCompensationMode validates the mode; empty defaults to none.
func ParseCompensationMode(raw string) (CompensationMode, error) {
	switch CompensationMode(raw) {
	case "", CompensationNone:
		return CompensationNone, nil
	case CompensationAuto:
		return CompensationAuto, nil
	default:
		return "", shared.Validationf("unknown compensation mode %q", raw)
	}
}

// TransferRequest is a transfer ticket with its items. Tickets are never
// deleted once they produced ledger entries; terminal states close them.
type TransferRequest struct {
	ID                int64
	Code              string
	SourceWarehouseID int64
	DestWarehouseID   int64
	Status            TicketStatus
	Notes             string
	RequesterID       int64
	ApproverID        int64
	ApproverNotes     string
	HasCut            bool
	Direct            bool
	RelatedTransferID int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Items             []RequestItem
}

// RequestItem is one product line of a ticket. Quantities are expressed in
// RequestUnit; conversion to base units happens at posting time.
type RequestItem struct {
	ID               int64
	TransferID       int64
	ProductID        int64
	CategoryID       int64
	RequestQuantity  float64
	RequestUnit      string
	ApprovedQuantity float64
	ReceivedQuantity float64
	LossQuantity     float64
	LossReason       string
}

// hasCutQuantity reports whether any approval falls measurably short of
// its request.
func hasCutQuantity(items []RequestItem) bool {
	for _, item := range items {
		if item.ApprovedQuantity < item.RequestQuantity-units.Epsilon {
			return true
		}
	}
	return false
}

// ListFilters narrows ticket listings.
type ListFilters struct {
	Status      TicketStatus
	WarehouseID int64
	DateFrom    time.Time
	DateTo      time.Time
}

// TicketListItem is a ticket row with warehouse names for listings.
type TicketListItem struct {
	ID                  int64
	Code                string
	SourceWarehouseID   int64
	SourceWarehouseName string
	DestWarehouseID     int64
	DestWarehouseName   string
	Status              TicketStatus
	HasCut              bool
	Direct              bool
	RelatedTransferID   int64
	CreatedAt           time.Time
}

func generateCode(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
