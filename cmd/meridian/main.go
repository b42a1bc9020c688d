package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-wms/meridian-wms/internal/app"
	"github.com/meridian-wms/meridian-wms/internal/catalog"
	"github.com/meridian-wms/meridian-wms/internal/dashboard"
	"github.com/meridian-wms/meridian-wms/internal/images"
	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/observability"
	"github.com/meridian-wms/meridian-wms/internal/platform/blob"
	"github.com/meridian-wms/meridian-wms/internal/platform/cache"
	"github.com/meridian-wms/meridian-wms/internal/platform/db"
	"github.com/meridian-wms/meridian-wms/internal/receipts"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/transfer"
	"github.com/meridian-wms/meridian-wms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolConfig())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisTimeout)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	catalogRepo := catalog.NewRepository(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo)
	ledgerHandler := ledger.NewHandler(ledgerService, catalogRepo)

	metrics := observability.NewMetrics()
	metrics.Registerer().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	transferRepo := transfer.NewRepository(pool)
	transferService := transfer.NewService(transferRepo, catalogRepo, approvalRecorder, auditLogger, idempotencyStore, metrics)
	transferHandler := transfer.NewHandler(logger, transferService)

	receiptRepo := receipts.NewRepository(pool)
	receiptService := receipts.NewService(receiptRepo, catalogRepo, auditLogger)
	receiptHandler := receipts.NewHandler(logger, receiptService)

	var transferImages, receiptImages *images.Handler
	if !cfg.UploadDisabled {
		store, err := blob.NewStore(ctx, cfg.BlobConfig())
		if err != nil {
			logger.Error("init blob store", slog.Any("error", err))
			os.Exit(1)
		}
		imageRepo := images.NewRepository(pool)
		imageService := images.NewService(logger, imageRepo, store)
		transferImages = images.NewHandler(logger, imageService, images.EntityTransfer)
		receiptImages = images.NewHandler(logger, imageService, images.EntityReceipt)
	}

	dashboardRepo := dashboard.NewRepository(pool)
	dashboardService := dashboard.NewService(dashboardRepo)
	dashboardHandler := dashboard.NewHandler(dashboardService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		TransferHandler:      transferHandler,
		TransferImageHandler: transferImages,
		ReceiptHandler:       receiptHandler,
		ReceiptImageHandler:  receiptImages,
		LedgerHandler:        ledgerHandler,
		DashboardHandler:     dashboardHandler,
		JobHandler:           jobHandler,
		Pool:                 pool,
		Redis:                redisClient,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
