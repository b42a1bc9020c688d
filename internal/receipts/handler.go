package receipts

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

// Handler wires HTTP endpoints for goods-in receipts.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers receipt routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.remove)
}

type itemPayload struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	Unit      string  `json:"unit" validate:"required"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type createPayload struct {
	WarehouseID  int64         `json:"warehouse_id" validate:"required"`
	SupplierName string        `json:"supplier_name"`
	Notes        string        `json:"notes"`
	Items        []itemPayload `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{
		WarehouseID:  payload.WarehouseID,
		SupplierName: payload.SupplierName,
		Notes:        payload.Notes,
		Items:        toItemInputs(payload.Items),
	}
	rec, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create receipt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	filters := ListFilters{
		WarehouseID: warehouseID,
		Search:      r.URL.Query().Get("search"),
		DateFrom:    parseDate(r.URL.Query().Get("date_from")),
		DateTo:      parseDate(r.URL.Query().Get("date_to")),
	}
	pg := shared.NewPagination(page, perPage, 0)
	items, total, err := h.service.List(r.Context(), pg.PerPage, pg.Offset(), filters)
	if err != nil {
		h.logger.Error("list receipts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(pg.Page, pg.PerPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), urlID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

type updatePayload struct {
	SupplierName string        `json:"supplier_name"`
	Notes        string        `json:"notes"`
	Items        []itemPayload `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var payload updatePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id := urlID(r)
	rec, err := h.service.Update(r.Context(), id, UpdateInput{
		SupplierName: payload.SupplierName,
		Notes:        payload.Notes,
		Items:        toItemInputs(payload.Items),
	})
	if err != nil {
		h.logger.Error("update receipt", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete receipt", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toItemInputs(items []itemPayload) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, ItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Unit:      item.Unit,
			UnitPrice: item.UnitPrice,
		})
	}
	return out
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
