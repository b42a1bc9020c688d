package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Handler serves the dashboard snapshot endpoint.
type Handler struct {
	svc *Service
}

// NewHandler constructs a handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// MountRoutes registers dashboard routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stats", h.stats)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	var q Query
	if raw := r.URL.Query().Get("warehouse_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, shared.Validationf("invalid warehouse_id %q", raw))
			return
		}
		q.WarehouseID = id
	}
	var err error
	if q.DateFrom, err = parseDate(r.URL.Query().Get("date_from")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if q.DateTo, err = parseDate(r.URL.Query().Get("date_to")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stats, err := h.svc.Stats(r.Context(), q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, shared.Validationf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}
