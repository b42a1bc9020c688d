package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

const historyPageSize = 50

// CatalogPort is the master-data surface the handler needs.
type CatalogPort interface {
	GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error)
	GetCategory(ctx context.Context, id int64) (catalog.Category, error)
	MinStock(ctx context.Context, warehouseID, productID int64) (int, error)
	SetMinStock(ctx context.Context, policy catalog.StockPolicy) error
}

// Handler serves the read-side ledger projections.
type Handler struct {
	svc      *Service
	catalog  CatalogPort
	validate *validator.Validate
}

// NewHandler constructs a handler.
func NewHandler(svc *Service, cat CatalogPort) *Handler {
	return &Handler{svc: svc, catalog: cat, validate: validator.New()}
}

// MountRoutes registers ledger routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary", h.summary)
	r.Get("/summary.xlsx", h.summaryXLSX)
	r.Get("/report", h.report)
	r.Get("/history", h.history)
	r.Get("/policies", h.getPolicy)
	r.Put("/policies", h.setPolicy)
}

type summaryRowResponse struct {
	ProductID      int64   `json:"product_id"`
	ProductCode    string  `json:"product_code"`
	ProductName    string  `json:"product_name"`
	BaseUnit       string  `json:"base_unit"`
	PackingUnit    string  `json:"packing_unit,omitempty"`
	ConversionRate int     `json:"conversion_rate,omitempty"`
	OpeningBalance float64 `json:"opening_balance"`
	TotalImport    float64 `json:"total_import"`
	TotalExport    float64 `json:"total_export"`
	ClosingBalance float64 `json:"closing_balance"`
	MinStock       int     `json:"min_stock"`
	Status         string  `json:"status"`
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	warehouseID, from, to, err := summaryParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.svc.Summary(r.Context(), warehouseID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]summaryRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, summaryRowResponse{
			ProductID:      row.ProductID,
			ProductCode:    row.ProductCode,
			ProductName:    row.ProductName,
			BaseUnit:       row.BaseUnit,
			PackingUnit:    row.PackingUnit,
			ConversionRate: row.ConversionRate,
			OpeningBalance: row.OpeningBalance,
			TotalImport:    row.TotalImport,
			TotalExport:    row.TotalExport,
			ClosingBalance: row.ClosingBalance,
			MinStock:       row.MinStock,
			Status:         row.Status,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": out})
}

func (h *Handler) summaryXLSX(w http.ResponseWriter, r *http.Request) {
	warehouseID, from, to, err := summaryParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.svc.Summary(r.Context(), warehouseID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouse, err := h.catalog.GetWarehouse(r.Context(), warehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	book, err := SummaryWorkbook(rows, warehouse.Name, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	defer book.Close()

	filename := "stock-summary-" + to.Format("2006-01-02") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := book.Write(w); err != nil {
		slog.WarnContext(r.Context(), "stock summary download aborted", "error", err)
	}
}

type reportRowResponse struct {
	ProductID       int64   `json:"product_id"`
	ProductCode     string  `json:"product_code"`
	ProductName     string  `json:"product_name"`
	WarehouseID     int64   `json:"warehouse_id"`
	WarehouseName   string  `json:"warehouse_name"`
	QuantityBase    float64 `json:"quantity_base"`
	DisplayQuantity string  `json:"display_quantity"`
	MinStock        int     `json:"min_stock"`
	Status          string  `json:"status"`
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := queryID(r, "warehouse_id", true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	categoryID, err := queryID(r, "category_id", false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var category *catalog.Category
	if categoryID > 0 {
		c, err := h.catalog.GetCategory(r.Context(), categoryID)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		category = &c
	}
	rows, err := h.svc.Report(r.Context(), warehouseID, categoryID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]reportRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, reportRowResponse{
			ProductID:       row.ProductID,
			ProductCode:     row.ProductCode,
			ProductName:     row.ProductName,
			WarehouseID:     row.WarehouseID,
			WarehouseName:   row.WarehouseName,
			QuantityBase:    row.QuantityBase,
			DisplayQuantity: row.DisplayQuantity,
			MinStock:        row.MinStock,
			Status:          row.Status,
		})
	}
	resp := map[string]any{"rows": out}
	if category != nil {
		resp["category"] = category
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type historyEntryResponse struct {
	ID             int64     `json:"id"`
	Type           string    `json:"type"`
	TypeLabel      string    `json:"type_label"`
	Direction      string    `json:"direction"`
	QuantityChange float64   `json:"quantity_change"`
	WarehouseName  string    `json:"warehouse_name"`
	RefCode        string    `json:"ref_code,omitempty"`
	ActorID        int64     `json:"actor_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	productID, err := queryID(r, "product_id", true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouseID, err := queryID(r, "warehouse_id", true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resume, err := decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	scan := h.svc.History(productID, warehouseID, resume, historyPageSize)
	entries := make([]historyEntryResponse, 0, historyPageSize)
	for len(entries) < historyPageSize && scan.Next(r.Context()) {
		e := scan.Entry()
		entries = append(entries, historyEntryResponse{
			ID:             e.ID,
			Type:           string(e.Type),
			TypeLabel:      e.TypeLabel,
			Direction:      string(e.Direction()),
			QuantityChange: e.QuantityChange,
			WarehouseName:  e.WarehouseName,
			RefCode:        e.RefCode,
			ActorID:        e.ActorID,
			OccurredAt:     e.OccurredAt,
		})
	}
	if err := scan.Err(); err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := map[string]any{"entries": entries}
	if len(entries) == historyPageSize {
		resp["cursor"] = encodeCursor(scan.Cursor())
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// getPolicy resolves the effective reorder threshold for one pair, after
// the policy row, global minimum and default fallback are applied.
func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := queryID(r, "warehouse_id", true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	productID, err := queryID(r, "product_id", true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	minStock, err := h.catalog.MinStock(r.Context(), warehouseID, productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"warehouse_id": warehouseID,
		"product_id":   productID,
		"min_stock":    minStock,
	})
}

type policyPayload struct {
	WarehouseID int64 `json:"warehouse_id" validate:"required,gt=0"`
	ProductID   int64 `json:"product_id" validate:"required,gt=0"`
	MinStock    int   `json:"min_stock" validate:"gte=0"`
}

func (h *Handler) setPolicy(w http.ResponseWriter, r *http.Request) {
	var payload policyPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid policy: %v", err))
		return
	}
	err := h.catalog.SetMinStock(r.Context(), catalog.StockPolicy{
		WarehouseID: payload.WarehouseID,
		ProductID:   payload.ProductID,
		MinStock:    payload.MinStock,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func summaryParams(r *http.Request) (int64, time.Time, time.Time, error) {
	warehouseID, err := queryID(r, "warehouse_id", true)
	if err != nil {
		return 0, time.Time{}, time.Time{}, err
	}
	from, err := queryDate(r, "date_from")
	if err != nil {
		return 0, time.Time{}, time.Time{}, err
	}
	to, err := queryDate(r, "date_to")
	if err != nil {
		return 0, time.Time{}, time.Time{}, err
	}
	if to.IsZero() {
		to = time.Now()
	}
	return warehouseID, from, to, nil
}

func queryID(r *http.Request, name string, required bool) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return 0, shared.Validationf("%s is required", name)
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("invalid %s %q", name, raw)
	}
	return id, nil
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, shared.Validationf("invalid %s %q, expected YYYY-MM-DD", name, raw)
	}
	return t, nil
}

// Cursors travel as "<unix-nanos>.<entry-id>" opaque strings.
func encodeCursor(c Cursor) string {
	return strconv.FormatInt(c.OccurredAt.UnixNano(), 10) + "." + strconv.FormatInt(c.ID, 10)
}

func decodeCursor(raw string) (Cursor, error) {
	if raw == "" {
		return Cursor{}, nil
	}
	at, id, ok := strings.Cut(raw, ".")
	if !ok {
		return Cursor{}, shared.Validationf("invalid cursor %q", raw)
	}
	nanos, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return Cursor{}, shared.Validationf("invalid cursor %q", raw)
	}
	entryID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Cursor{}, shared.Validationf("invalid cursor %q", raw)
	}
	return Cursor{OccurredAt: time.Unix(0, nanos), ID: entryID}, nil
}
