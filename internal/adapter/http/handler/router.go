package handler

import (
	"keymarket/internal/adapter/http/middleware"
	redisStore "keymarket/internal/adapter/storage/redis"
	"keymarket/internal/core/domain"
	"keymarket/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PurchaseSvc    ports.PurchaseService
	TopupSvc       ports.TopupService
	PricingSvc     ports.PricingResolver
	RateSvc        ports.ExchangeRateService
	CatalogSvc     ports.CatalogService
	ReconcileSvc   ports.ReconciliationService
	AuditSvc       ports.AuditService
	TokenSvc       ports.TokenService
	AccountRepo    ports.AccountRepository
	OrderRepo      ports.OrderRepository
	PaymentRepo    ports.PaymentRepository
	OverrideRepo   ports.PriceOverrideRepository
	BankRepo       ports.BankAccountRepository
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes — all authenticated.
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	v1 := r.Group("/api/v1", jwtAuth)

	marketHandler := NewMarketHandler(deps.PurchaseSvc, deps.PricingSvc, deps.CatalogSvc, deps.OrderRepo)
	walletHandler := NewWalletHandler(deps.TopupSvc, deps.RateSvc, deps.AccountRepo, deps.PaymentRepo)

	// --- Seller routes ---
	products := v1.Group("/products")
	{
		products.GET("", rl("reads"), marketHandler.ListProducts)
		products.GET("/:id/price", rl("reads"), marketHandler.GetPrice)
	}

	v1.POST("/purchases", rl("purchase"), marketHandler.Purchase)

	orders := v1.Group("/orders")
	{
		orders.GET("", rl("reads"), marketHandler.ListOrders)
	}

	wallet := v1.Group("/wallet")
	{
		wallet.GET("/balance", rl("reads"), walletHandler.GetBalance)
	}

	v1.POST("/topups", rl("topup"), walletHandler.IssueTopup)
	v1.GET("/payments", rl("reads"), walletHandler.ListPayments)
	v1.GET("/rate", rl("reads"), walletHandler.GetRate)

	// --- Admin routes ---
	adminHandler := NewAdminHandler(
		deps.TopupSvc,
		deps.RateSvc,
		deps.CatalogSvc,
		deps.ReconcileSvc,
		deps.AuditSvc,
		deps.OverrideRepo,
		deps.BankRepo,
		deps.AccountRepo,
	)
	admin := v1.Group("/admin", middleware.RequireRole(domain.RoleAdmin), rl("admin"))
	{
		admin.POST("/payments/:id/settle", adminHandler.SettlePayment)
		admin.POST("/accounts/:id/credit", adminHandler.ManualCredit)
		admin.POST("/accounts/:id/lock", adminHandler.LockAccount)
		admin.POST("/accounts/:id/unlock", adminHandler.UnlockAccount)
		admin.PUT("/rate", adminHandler.SetRate)
		admin.POST("/products", adminHandler.CreateProduct)
		admin.POST("/products/:id/inventory", adminHandler.AddInventory)
		admin.PUT("/price-overrides", adminHandler.SetPriceOverride)
		admin.DELETE("/price-overrides/:seller_id/:product_id", adminHandler.DeletePriceOverride)
		admin.POST("/bank-accounts", adminHandler.CreateBankAccount)
		admin.POST("/bank-accounts/:id/activate", adminHandler.ActivateBankAccount)
		admin.GET("/audit", adminHandler.ListAudit)
		admin.POST("/reconcile/run", adminHandler.RunReconcile)
	}

	return r
}
