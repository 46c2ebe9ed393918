package handler

import (
	"net/http"
	"strconv"

	"keymarket/internal/adapter/http/dto"
	"keymarket/internal/adapter/http/middleware"
	"keymarket/internal/core/ports"
	"keymarket/pkg/apperror"
	"keymarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MarketHandler handles catalog browsing and purchases.
type MarketHandler struct {
	purchaseSvc ports.PurchaseService
	pricingSvc  ports.PricingResolver
	catalogSvc  ports.CatalogService
	orderRepo   ports.OrderRepository
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(
	purchaseSvc ports.PurchaseService,
	pricingSvc ports.PricingResolver,
	catalogSvc ports.CatalogService,
	orderRepo ports.OrderRepository,
) *MarketHandler {
	return &MarketHandler{
		purchaseSvc: purchaseSvc,
		pricingSvc:  pricingSvc,
		catalogSvc:  catalogSvc,
		orderRepo:   orderRepo,
	}
}

// ListProducts handles GET /api/v1/products.
func (h *MarketHandler) ListProducts(c *gin.Context) {
	products, err := h.catalogSvc.ListProducts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		out = append(out, dto.ToProductResponse(&products[i]))
	}
	response.OK(c, out)
}

// GetPrice handles GET /api/v1/products/:id/price.
// Returns the effective price for the requesting seller.
func (h *MarketHandler) GetPrice(c *gin.Context) {
	accountID := mustAccountID(c)
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid product id"))
		return
	}

	price, err := h.pricingSvc.Resolve(c.Request.Context(), accountID, productID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.PriceResponse{ProductID: productID.String(), Price: price})
}

// Purchase handles POST /api/v1/purchases.
func (h *MarketHandler) Purchase(c *gin.Context) {
	accountID := mustAccountID(c)

	var req dto.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid product id"))
		return
	}

	result, err := h.purchaseSvc.Purchase(c.Request.Context(), ports.PurchaseRequest{
		SellerID:  accountID,
		ProductID: productID,
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.PurchaseResponse{
		OrderID:     result.Order.ID.String(),
		ProductName: result.Order.ProductName,
		Value:       result.RedeemedValue,
		Price:       result.Order.Price,
		NewBalance:  result.NewBalance,
		CreatedAt:   result.Order.CreatedAt.Format(timeFormat),
	})
}

// ListOrders handles GET /api/v1/orders.
func (h *MarketHandler) ListOrders(c *gin.Context) {
	accountID := mustAccountID(c)
	page, pageSize := pagination(c)

	orders, total, err := h.orderRepo.ListBySeller(c.Request.Context(), accountID, page, pageSize)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, dto.ToOrderResponse(&orders[i]))
	}
	response.OK(c, dto.OrderListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	})
}

const timeFormat = "2006-01-02T15:04:05Z07:00" // RFC 3339

// mustAccountID reads the authenticated account from the gin context.
// JWTAuth guarantees it is set on every route using this helper.
func mustAccountID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(middleware.CtxAccountID)
	id, _ := v.(uuid.UUID)
	return id
}

func pagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	if pageSize == 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// HealthCheck handles GET /health — deep health check verifying all dependencies.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
