package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-wms/meridian-wms/internal/dashboard"
	"github.com/meridian-wms/meridian-wms/internal/images"
	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/observability"
	"github.com/meridian-wms/meridian-wms/internal/receipts"
	"github.com/meridian-wms/meridian-wms/internal/transfer"
	"github.com/meridian-wms/meridian-wms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	TransferHandler      *transfer.Handler
	TransferImageHandler *images.Handler
	ReceiptHandler       *receipts.Handler
	ReceiptImageHandler  *images.Handler
	LedgerHandler        *ledger.Handler
	DashboardHandler     *dashboard.Handler
	JobHandler           *jobs.Handler

	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params.Pool, params.Redis))

	r.Route("/transfers", func(r chi.Router) {
		params.TransferHandler.MountRoutes(r)
		if params.TransferImageHandler != nil {
			params.TransferImageHandler.MountRoutes(r)
		}
	})
	r.Route("/receipts", func(r chi.Router) {
		params.ReceiptHandler.MountRoutes(r)
		if params.ReceiptImageHandler != nil {
			params.ReceiptImageHandler.MountRoutes(r)
		}
	})
	r.Route("/ledger", params.LedgerHandler.MountRoutes)
	r.Route("/dashboard", params.DashboardHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// healthHandler pings the primary stores so load balancers can see real
// readiness rather than process liveness.
func healthHandler(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded","postgres":"down"}`))
				return
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded","redis":"down"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
