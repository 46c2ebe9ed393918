package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keymarket/config"
	"keymarket/internal/adapter/bank"
	httpHandler "keymarket/internal/adapter/http/handler"
	pgStorage "keymarket/internal/adapter/storage/postgres"
	redisStorage "keymarket/internal/adapter/storage/redis"
	"keymarket/internal/core/ports"
	"keymarket/internal/service"
	"keymarket/internal/worker"
	"keymarket/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Key Market")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	accountRepo := pgStorage.NewAccountRepo(pool)
	productRepo := pgStorage.NewProductRepo(pool)
	orderRepo := pgStorage.NewOrderRepo(pool)
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	overrideRepo := pgStorage.NewPriceOverrideRepo(pool)
	bankRepo := pgStorage.NewBankAccountRepo(pool)
	rateRepo := pgStorage.NewExchangeRateRepo(pool, cfg.Payment.DefaultRate)
	refSeqRepo := pgStorage.NewReferenceSequenceRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	refGen := service.NewSequenceReferenceGenerator(refSeqRepo, cfg.Payment.ReferencePrefix, cfg.Payment.ReferenceWidth)
	auditSvc := service.NewAuditService(auditRepo, log)

	// Bank statement feed client
	feedClient := bank.NewFeedClient(cfg.BankFeed, sigSvc, log)

	// Initialize business services
	purchaseSvc := service.NewPurchaseService(
		accountRepo,
		productRepo,
		orderRepo,
		overrideRepo,
		encSvc,
		transactor,
		auditSvc,
		log,
	)
	topupSvc := service.NewTopupService(
		paymentRepo,
		accountRepo,
		bankRepo,
		rateRepo,
		refGen,
		transactor,
		auditSvc,
		service.TopupConfig{
			PendingLimit:  cfg.Payment.PendingLimit,
			IssueInterval: cfg.Payment.IssueInterval,
			Expiry:        cfg.Payment.Expiry,
		},
		log,
	)
	reconcileSvc := service.NewReconcileService(paymentRepo, accountRepo, bankRepo, feedClient, transactor, auditSvc, log)
	pricingSvc := service.NewPricingService(productRepo, overrideRepo)
	rateSvc := service.NewExchangeService(rateRepo, auditSvc, log)
	catalogSvc := service.NewCatalogService(productRepo, encSvc, log)

	// Initialize rate limit store
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PurchaseSvc:    purchaseSvc,
		TopupSvc:       topupSvc,
		PricingSvc:     pricingSvc,
		RateSvc:        rateSvc,
		CatalogSvc:     catalogSvc,
		ReconcileSvc:   reconcileSvc,
		AuditSvc:       auditSvc,
		TokenSvc:       tokenSvc,
		AccountRepo:    accountRepo,
		OrderRepo:      orderRepo,
		PaymentRepo:    paymentRepo,
		OverrideRepo:   overrideRepo,
		BankRepo:       bankRepo,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// Start the reconciliation poller
	reconciler := worker.NewReconciler(reconcileSvc, cfg.Poller.Interval, log)
	if err := reconciler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start reconciler")
	}
	defer reconciler.Stop()

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
