package handler

import (
	"time"

	"keymarket/internal/adapter/http/dto"
	"keymarket/internal/core/ports"
	"keymarket/pkg/apperror"
	"keymarket/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles balance queries and the top-up lifecycle.
type WalletHandler struct {
	topupSvc    ports.TopupService
	rateSvc     ports.ExchangeRateService
	accountRepo ports.AccountRepository
	paymentRepo ports.PaymentRepository
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(
	topupSvc ports.TopupService,
	rateSvc ports.ExchangeRateService,
	accountRepo ports.AccountRepository,
	paymentRepo ports.PaymentRepository,
) *WalletHandler {
	return &WalletHandler{
		topupSvc:    topupSvc,
		rateSvc:     rateSvc,
		accountRepo: accountRepo,
		paymentRepo: paymentRepo,
	}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	accountID := mustAccountID(c)

	account, err := h.accountRepo.GetByID(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if account == nil {
		response.Error(c, apperror.ErrNotFound("account"))
		return
	}

	response.OK(c, dto.BalanceResponse{Balance: account.Balance})
}

// IssueTopup handles POST /api/v1/topups.
func (h *WalletHandler) IssueTopup(c *gin.Context) {
	accountID := mustAccountID(c)

	var req dto.TopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	instructions, err := h.topupSvc.IssueTopup(c.Request.Context(), ports.TopupRequest{
		SellerID:    accountID,
		QuoteAmount: req.Amount,
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToTopupResponse(instructions))
}

// ListPayments handles GET /api/v1/payments.
func (h *WalletHandler) ListPayments(c *gin.Context) {
	accountID := mustAccountID(c)
	page, pageSize := pagination(c)

	payments, total, err := h.paymentRepo.ListBySeller(c.Request.Context(), accountID, page, pageSize)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	items := make([]dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		items = append(items, dto.ToPaymentResponse(&payments[i]))
	}
	response.OK(c, dto.PaymentListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	})
}

// GetRate handles GET /api/v1/rate.
func (h *WalletHandler) GetRate(c *gin.Context) {
	rate, err := h.rateSvc.GetRate(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.RateResponse{
		Rate:      rate.Rate,
		UpdatedAt: rate.UpdatedAt.Format(time.RFC3339),
	})
}
