package transfer

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Handler wires HTTP endpoints for the transfer workflow.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers transfer routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/requests", h.createRequest)
	r.Get("/requests", h.listRequests)
	r.Get("/requests/{id}", h.getRequest)
	r.Put("/requests/{id}", h.updateRequest)
	r.Post("/requests/{id}/approve", h.approve)
	r.Post("/requests/{id}/reject", h.reject)
	r.Post("/requests/{id}/ship", h.ship)
	r.Post("/requests/{id}/receive", h.receive)
	r.Post("/requests/{id}/cancel", h.cancel)
	r.Post("/direct", h.directExport)
	r.Put("/direct/{id}", h.amendDirectExport)
}

type itemPayload struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	Unit      string  `json:"unit" validate:"required"`
}

type createRequestPayload struct {
	SourceWarehouseID int64         `json:"source_warehouse_id" validate:"required"`
	DestWarehouseID   int64         `json:"dest_warehouse_id" validate:"required"`
	Notes             string        `json:"notes"`
	Items             []itemPayload `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var payload createRequestPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateRequestInput{
		SourceWarehouseID: payload.SourceWarehouseID,
		DestWarehouseID:   payload.DestWarehouseID,
		Notes:             payload.Notes,
	}
	for _, item := range payload.Items {
		input.Items = append(input.Items, ItemInput{ProductID: item.ProductID, Quantity: item.Quantity, Unit: item.Unit})
	}
	ticket, err := h.service.CreateRequest(r.Context(), input)
	if err != nil {
		h.logger.Error("create transfer request", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ticket)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	filters := ListFilters{
		Status:      TicketStatus(r.URL.Query().Get("status")),
		WarehouseID: warehouseID,
		DateFrom:    parseDate(r.URL.Query().Get("date_from")),
		DateTo:      parseDate(r.URL.Query().Get("date_to")),
	}
	pg := shared.NewPagination(page, perPage, 0)
	items, total, err := h.service.List(r.Context(), pg.PerPage, pg.Offset(), filters)
	if err != nil {
		h.logger.Error("list transfer requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(pg.Page, pg.PerPage, total),
	})
}

type updateRequestPayload struct {
	Notes string        `json:"notes"`
	Items []itemPayload `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) updateRequest(w http.ResponseWriter, r *http.Request) {
	var payload updateRequestPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := UpdateRequestInput{Notes: payload.Notes}
	for _, item := range payload.Items {
		input.Items = append(input.Items, ItemInput{ProductID: item.ProductID, Quantity: item.Quantity, Unit: item.Unit})
	}
	ticket, err := h.service.UpdateRequest(r.Context(), urlID(r), input)
	if err != nil {
		h.logger.Error("update transfer request", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ticket)
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	ticket, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	approvals, err := h.service.Approvals(r.Context(), id)
	if err != nil {
		h.logger.Warn("load approvals", slog.Any("error", err), slog.Int64("id", id))
	}
	audit, err := h.service.AuditTrail(r.Context(), id)
	if err != nil {
		h.logger.Warn("load audit trail", slog.Any("error", err), slog.Int64("id", id))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ticket": ticket, "approvals": approvals, "audit": audit})
}

type approvePayload struct {
	Notes string `json:"notes"`
	Items []struct {
		ItemID           int64   `json:"item_id" validate:"required"`
		ApprovedQuantity float64 `json:"approved_quantity" validate:"gte=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	var payload approvePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ApproveInput{Notes: payload.Notes}
	for _, item := range payload.Items {
		input.Items = append(input.Items, ApproveItemInput{ItemID: item.ItemID, ApprovedQuantity: item.ApprovedQuantity})
	}
	id := urlID(r)
	if err := h.service.Approve(r.Context(), id, input); err != nil {
		h.logger.Error("approve transfer", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": StatusApproved})
}

type rejectPayload struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var payload rejectPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id := urlID(r)
	if err := h.service.Reject(r.Context(), id, payload.Reason); err != nil {
		h.logger.Error("reject transfer", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": StatusRejected})
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := h.service.Ship(r.Context(), id); err != nil {
		h.logger.Error("ship transfer", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": StatusShipping})
}

type receivePayload struct {
	CompensationMode string `json:"compensation_mode"`
	Items            []struct {
		ItemID           int64   `json:"item_id" validate:"required"`
		ReceivedQuantity float64 `json:"received_quantity" validate:"gte=0"`
		LossQuantity     float64 `json:"loss_quantity" validate:"gte=0"`
		LossReason       string  `json:"loss_reason"`
	} `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var payload receivePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ReceiveInput{Mode: CompensationMode(payload.CompensationMode)}
	for _, item := range payload.Items {
		input.Items = append(input.Items, ReceiveItemInput{
			ItemID:           item.ItemID,
			ReceivedQuantity: item.ReceivedQuantity,
			LossQuantity:     item.LossQuantity,
			LossReason:       item.LossReason,
		})
	}
	id := urlID(r)
	spilloverID, err := h.service.Receive(r.Context(), id, input)
	if err != nil {
		h.logger.Error("receive transfer", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	resp := map[string]any{"status": StatusCompleted}
	if spilloverID != 0 {
		resp["spillover_ticket_id"] = spilloverID
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.logger.Error("cancel transfer", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": StatusCancelled})
}

type directExportPayload struct {
	SourceWarehouseID int64         `json:"source_warehouse_id" validate:"required"`
	DestWarehouseID   int64         `json:"dest_warehouse_id" validate:"required"`
	Notes             string        `json:"notes"`
	Items             []itemPayload `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) directExport(w http.ResponseWriter, r *http.Request) {
	var payload directExportPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := DirectExportInput{
		SourceWarehouseID: payload.SourceWarehouseID,
		DestWarehouseID:   payload.DestWarehouseID,
		Notes:             payload.Notes,
		IdempotencyKey:    r.Header.Get("Idempotency-Key"),
	}
	for _, item := range payload.Items {
		input.Items = append(input.Items, ItemInput{ProductID: item.ProductID, Quantity: item.Quantity, Unit: item.Unit})
	}
	ticket, err := h.service.DirectExport(r.Context(), input)
	if err != nil {
		h.logger.Error("direct export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ticket)
}

type amendPayload struct {
	Items []struct {
		ItemID   int64   `json:"item_id" validate:"required"`
		Quantity float64 `json:"quantity" validate:"required,gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) amendDirectExport(w http.ResponseWriter, r *http.Request) {
	var payload amendPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var items []AmendItemInput
	for _, item := range payload.Items {
		items = append(items, AmendItemInput{ItemID: item.ItemID, Quantity: item.Quantity})
	}
	id := urlID(r)
	if err := h.service.AmendDirectExport(r.Context(), id, items); err != nil {
		h.logger.Error("amend direct export", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": StatusCompleted})
}

func urlID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, _ := time.Parse("2006-01-02", raw)
	return t
}
