package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairy/internal/auth"
	"github.com/mamadbah2/dairy/internal/billing"
	"github.com/mamadbah2/dairy/internal/config"
	"github.com/mamadbah2/dairy/internal/render"
	"github.com/mamadbah2/dairy/internal/repository/mongodb"
	"github.com/mamadbah2/dairy/internal/repository/objectstore"
	"github.com/mamadbah2/dairy/internal/repository/sheets"
	"github.com/mamadbah2/dairy/internal/scheduler"
	"github.com/mamadbah2/dairy/internal/server/handlers"
	"github.com/mamadbah2/dairy/internal/server/router"
	commandsvc "github.com/mamadbah2/dairy/internal/service/commands"
	ledgersvc "github.com/mamadbah2/dairy/internal/service/ledger"
	whatsappsvc "github.com/mamadbah2/dairy/internal/service/whatsapp"
	"github.com/mamadbah2/dairy/pkg/clients/pdf"
	whatsappclient "github.com/mamadbah2/dairy/pkg/clients/whatsapp"
	"github.com/mamadbah2/dairy/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	loc, err := cfg.Billing.Location()
	if err != nil {
		baseLogger.Fatal("invalid billing timezone", zap.Error(err))
	}

	steps, err := billing.ParseRates(cfg.Billing.MilkRates, loc)
	if err != nil {
		baseLogger.Fatal("invalid milk rates", zap.Error(err))
	}
	rates, err := billing.NewRateTable(steps...)
	if err != nil {
		baseLogger.Fatal("invalid milk rates", zap.Error(err))
	}
	baseLogger.Info("rate table loaded", zap.Int("steps", len(steps)), zap.Any("milk_types", rates.Types()))

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 15*time.Second)
	mongoRepo, err := mongodb.NewMongoDBRepository(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
	if err == nil {
		err = mongoRepo.EnsureIndexes(connectCtx)
	}
	cancelConnect()
	if err != nil {
		baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	defer func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	// Optional integrations stay nil when not configured; the ledger reports
	// them as disabled instead of failing at startup.
	var exporter ledgersvc.Exporter
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		exporter = sheetsRepo
	} else {
		baseLogger.Warn("google sheets credentials missing, billing export disabled")
	}

	var converter render.Converter
	if cfg.PDF.ConverterURL != "" {
		converter = pdf.NewClient(cfg.PDF.ConverterURL, cfg.PDF.Timeout)
	} else {
		baseLogger.Warn("pdf converter url missing, pdf invoices disabled")
	}

	renderer, err := render.NewRenderer(converter)
	if err != nil {
		baseLogger.Fatal("failed to init invoice renderer", zap.Error(err))
	}

	ledgerOpts := ledgersvc.Options{
		BaseURL:     cfg.Server.PublicBaseURL,
		Location:    loc,
		Concurrency: cfg.Billing.SummaryConcurrency,
		ExportRange: cfg.Sheets.BillingRange,
	}

	switch {
	case !cfg.Archive.Enabled():
		baseLogger.Warn("object store credentials missing, invoice archive disabled")
	case converter == nil:
		baseLogger.Warn("invoice archive needs the pdf converter, archive disabled")
	default:
		archive, err := objectstore.NewMinioStore(context.Background(), cfg.Archive, baseLogger.Named("repo.objectstore"))
		if err != nil {
			baseLogger.Fatal("failed to init invoice archive", zap.Error(err))
		}
		ledgerOpts.Archive = archive
		ledgerOpts.Renderer = renderer
	}

	var whatsClient whatsappclient.Client
	var sender ledgersvc.Sender
	if cfg.WhatsApp.Enabled() {
		whatsClient = whatsappclient.NewClient(cfg.WhatsApp)
		sender = whatsappsvc.NewOutbound(whatsClient, baseLogger.Named("svc.whatsapp.outbound"))
	} else {
		baseLogger.Warn("whatsapp credentials missing, notifications and commands disabled")
	}

	ledger := ledgersvc.NewService(mongoRepo, rates, sender, exporter, ledgerOpts, baseLogger.Named("svc.ledger"))

	var webhookHandler *handlers.WebhookHandler
	if whatsClient != nil {
		commandDispatcher := commandsvc.NewService(ledger, baseLogger.Named("svc.commands"))
		messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, commandDispatcher, baseLogger.Named("svc.whatsapp"))
		webhookHandler = handlers.NewWebhookHandler(messagingSvc, baseLogger.Named("handlers.whatsapp"))
	}

	billingHandler := handlers.NewBillingHandler(ledger, renderer, baseLogger.Named("handlers.billing"))

	var tokens router.TokenVerifier
	if cfg.Auth.Enabled() {
		tokenSvc, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			baseLogger.Fatal("failed to init token service", zap.Error(err))
		}
		tokens = tokenSvc
	} else {
		baseLogger.Warn("ADMIN_JWT_SECRET missing, admin routes are not protected")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := router.New(billingHandler, webhookHandler, tokens, baseLogger.Named("router"))

	if cfg.Reporting.Enabled {
		sched := scheduler.NewScheduler(cfg.Reporting.CronSchedule, loc, ledger, baseLogger.Named("scheduler"))
		if err := sched.Start(); err != nil {
			baseLogger.Fatal("failed to start scheduler", zap.Error(err))
		}
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PDF.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
