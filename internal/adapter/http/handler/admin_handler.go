package handler

import (
	"fmt"
	"time"

	"keymarket/internal/adapter/http/dto"
	"keymarket/internal/core/domain"
	"keymarket/internal/core/ports"
	"keymarket/pkg/apperror"
	"keymarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler handles operator-only endpoints.
type AdminHandler struct {
	topupSvc     ports.TopupService
	rateSvc      ports.ExchangeRateService
	catalogSvc   ports.CatalogService
	reconcileSvc ports.ReconciliationService
	auditSvc     ports.AuditService
	overrideRepo ports.PriceOverrideRepository
	bankRepo     ports.BankAccountRepository
	accountRepo  ports.AccountRepository
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	topupSvc ports.TopupService,
	rateSvc ports.ExchangeRateService,
	catalogSvc ports.CatalogService,
	reconcileSvc ports.ReconciliationService,
	auditSvc ports.AuditService,
	overrideRepo ports.PriceOverrideRepository,
	bankRepo ports.BankAccountRepository,
	accountRepo ports.AccountRepository,
) *AdminHandler {
	return &AdminHandler{
		topupSvc:     topupSvc,
		rateSvc:      rateSvc,
		catalogSvc:   catalogSvc,
		reconcileSvc: reconcileSvc,
		auditSvc:     auditSvc,
		overrideRepo: overrideRepo,
		bankRepo:     bankRepo,
		accountRepo:  accountRepo,
	}
}

// ManualCredit handles POST /api/v1/admin/accounts/:id/credit.
// Credits a seller's wallet directly, recording a completed payment.
func (h *AdminHandler) ManualCredit(c *gin.Context) {
	adminID := mustAccountID(c)
	sellerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid account id"))
		return
	}

	var req dto.ManualCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	payment, err := h.topupSvc.ManualCredit(c.Request.Context(), adminID, sellerID, req.Amount, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToPaymentResponse(payment))
}

// SettlePayment handles POST /api/v1/admin/payments/:id/settle.
// Force-completes a pending payment the bank feed missed.
func (h *AdminHandler) SettlePayment(c *gin.Context) {
	adminID := mustAccountID(c)
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	var req dto.SettlePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	payment, err := h.topupSvc.SettlePayment(c.Request.Context(), paymentID, adminID, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToPaymentResponse(payment))
}

// LockAccount handles POST /api/v1/admin/accounts/:id/lock.
// A locked seller can neither purchase nor issue top-ups.
func (h *AdminHandler) LockAccount(c *gin.Context) {
	h.setLocked(c, true)
}

// UnlockAccount handles POST /api/v1/admin/accounts/:id/unlock.
func (h *AdminHandler) UnlockAccount(c *gin.Context) {
	h.setLocked(c, false)
}

func (h *AdminHandler) setLocked(c *gin.Context, locked bool) {
	adminID := mustAccountID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid account id"))
		return
	}

	found, err := h.accountRepo.SetLocked(c.Request.Context(), id, locked)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	if !found {
		response.Error(c, apperror.ErrNotFound("account"))
		return
	}

	action := domain.AuditAccountLocked
	if !locked {
		action = domain.AuditAccountUnlocked
	}
	h.auditSvc.Record(c.Request.Context(), &adminID, action, fmt.Sprintf("account=%s", id), c.ClientIP())

	response.OK(c, gin.H{"locked": locked})
}

// SetRate handles PUT /api/v1/admin/rate.
func (h *AdminHandler) SetRate(c *gin.Context) {
	adminID := mustAccountID(c)

	var req dto.SetRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	rate, err := h.rateSvc.SetRate(c.Request.Context(), req.Rate, adminID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.RateResponse{
		Rate:      rate.Rate,
		UpdatedAt: rate.UpdatedAt.Format(time.RFC3339),
	})
}

// CreateProduct handles POST /api/v1/admin/products.
func (h *AdminHandler) CreateProduct(c *gin.Context) {
	var req dto.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid category id"))
		return
	}

	product, err := h.catalogSvc.CreateProduct(c.Request.Context(), categoryID, req.Name, req.BasePrice)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToProductResponse(product))
}

// AddInventory handles POST /api/v1/admin/products/:id/inventory.
// The values are stored as supplied; escaping them would corrupt the
// secrets handed to the eventual buyers, so they are never sanitized.
func (h *AdminHandler) AddInventory(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid product id"))
		return
	}

	var req dto.AddInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	added, err := h.catalogSvc.AddInventory(c.Request.Context(), productID, req.Values)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gin.H{
		"product_id": productID.String(),
		"added":      added,
	})
}

// SetPriceOverride handles PUT /api/v1/admin/price-overrides.
func (h *AdminHandler) SetPriceOverride(c *gin.Context) {
	var req dto.SetPriceOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	sellerID, err := uuid.Parse(req.SellerID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid seller id"))
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid product id"))
		return
	}

	now := time.Now().UTC()
	override := &domain.PriceOverride{
		ID:        uuid.New(),
		SellerID:  sellerID,
		ProductID: productID,
		Price:     req.Price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.overrideRepo.Upsert(c.Request.Context(), override); err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	response.OK(c, dto.PriceResponse{ProductID: productID.String(), Price: req.Price})
}

// DeletePriceOverride handles DELETE /api/v1/admin/price-overrides/:seller_id/:product_id.
func (h *AdminHandler) DeletePriceOverride(c *gin.Context) {
	sellerID, err := uuid.Parse(c.Param("seller_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid seller id"))
		return
	}
	productID, err := uuid.Parse(c.Param("product_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid product id"))
		return
	}

	if err := h.overrideRepo.Delete(c.Request.Context(), sellerID, productID); err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	response.OK(c, gin.H{"deleted": true})
}

// CreateBankAccount handles POST /api/v1/admin/bank-accounts.
func (h *AdminHandler) CreateBankAccount(c *gin.Context) {
	var req dto.CreateBankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	account := &domain.BankAccount{
		ID:            uuid.New(),
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		HolderName:    req.HolderName,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.bankRepo.Create(c.Request.Context(), account); err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	response.Created(c, account)
}

// ActivateBankAccount handles POST /api/v1/admin/bank-accounts/:id/activate.
// New top-up invoices quote this account from now on; invoices already
// issued keep the account they quoted.
func (h *AdminHandler) ActivateBankAccount(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid bank account id"))
		return
	}

	if err := h.bankRepo.SetActive(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"activated": true})
}

// ListAudit handles GET /api/v1/admin/audit.
func (h *AdminHandler) ListAudit(c *gin.Context) {
	page, pageSize := pagination(c)

	logs, total, err := h.auditSvc.List(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	response.OK(c, gin.H{
		"items":       logs,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": totalPages(total, pageSize),
	})
}

// RunReconcile handles POST /api/v1/admin/reconcile/run.
// Triggers one reconciliation pass outside the poller schedule.
func (h *AdminHandler) RunReconcile(c *gin.Context) {
	report, err := h.reconcileSvc.RunOnce(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ReconcileResponse{
		Scanned:   report.Scanned,
		Expired:   report.Expired,
		Completed: report.Completed,
		Errors:    report.Errors,
	})
}
