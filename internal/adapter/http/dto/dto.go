package dto

import (
	"time"

	"keymarket/internal/core/domain"
	"keymarket/internal/core/ports"
)

// PurchaseRequest is the request body for buying one inventory unit.
type PurchaseRequest struct {
	ProductID string `json:"product_id" binding:"required,uuid"`
}

// PurchaseResponse is the response for a successful purchase.
// Value is returned exactly once, here.
type PurchaseResponse struct {
	OrderID     string `json:"order_id"`
	ProductName string `json:"product_name"`
	Value       string `json:"value"`
	Price       int64  `json:"price"`
	NewBalance  int64  `json:"new_balance"`
	CreatedAt   string `json:"created_at"`
}

// TopupRequest is the request body for issuing a top-up invoice.
type TopupRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"` // cents
}

// TopupResponse carries the transfer instructions for a new invoice.
type TopupResponse struct {
	PaymentID   string `json:"payment_id"`
	BankName    string `json:"bank_name"`
	AccountNo   string `json:"account_no"`
	HolderName  string `json:"holder_name"`
	TransferRef string `json:"transfer_ref"`
	LocalAmount int64  `json:"local_amount"`
	QuoteAmount int64  `json:"quote_amount"`
	ExpiresAt   string `json:"expires_at"`
}

// PaymentResponse is the response body for payment state queries.
type PaymentResponse struct {
	ID          string  `json:"id"`
	QuoteAmount int64   `json:"quote_amount"`
	LocalAmount int64   `json:"local_amount"`
	TransferRef string  `json:"transfer_ref"`
	Status      string  `json:"status"`
	CompletedAt *string `json:"completed_at,omitempty"`
	ExpiresAt   string  `json:"expires_at"`
	Note        *string `json:"note,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// OrderResponse is the response body for order history queries.
// The redeemed value is not repeated here; it was delivered at purchase.
type OrderResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       int64  `json:"price"`
	CreatedAt   string `json:"created_at"`
}

// ProductResponse is the catalog entry shown to sellers.
type ProductResponse struct {
	ID             string `json:"id"`
	CategoryID     string `json:"category_id"`
	Name           string `json:"name"`
	BasePrice      int64  `json:"base_price"`
	TotalAvailable int64  `json:"total_available"`
	TotalSold      int64  `json:"total_sold"`
}

// PriceResponse is the effective price for the requesting seller.
type PriceResponse struct {
	ProductID string `json:"product_id"`
	Price     int64  `json:"price"`
}

// BalanceResponse is the wallet balance query result.
type BalanceResponse struct {
	Balance int64 `json:"balance"` // cents
}

// RateResponse is the current exchange rate.
type RateResponse struct {
	Rate      float64 `json:"rate"`
	UpdatedAt string  `json:"updated_at"`
}

// SetRateRequest is the admin request to change the exchange rate.
type SetRateRequest struct {
	Rate float64 `json:"rate" binding:"required,gt=0"`
}

// ManualCreditRequest is the admin request to credit a seller's wallet
// directly.
type ManualCreditRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"` // cents
	Note   string `json:"note" binding:"max=500"`
}

// SettlePaymentRequest is the admin request to force-complete a pending
// payment the bank feed missed.
type SettlePaymentRequest struct {
	Note string `json:"note" binding:"max=500"`
}

// CreateProductRequest is the admin request to register a product.
type CreateProductRequest struct {
	CategoryID string `json:"category_id" binding:"required,uuid"`
	Name       string `json:"name" binding:"required,min=1,max=200"`
	BasePrice  int64  `json:"base_price" binding:"required,gt=0"` // cents
}

// AddInventoryRequest is the admin request to stock a batch of units,
// one per value, in the given order.
type AddInventoryRequest struct {
	Values []string `json:"values" binding:"required,min=1,max=500,dive,required,min=1,max=2000"`
}

// SetPriceOverrideRequest pins a product price for one seller.
type SetPriceOverrideRequest struct {
	SellerID  string `json:"seller_id" binding:"required,uuid"`
	ProductID string `json:"product_id" binding:"required,uuid"`
	Price     int64  `json:"price" binding:"required,gt=0"` // cents
}

// CreateBankAccountRequest registers an operator receiving account.
type CreateBankAccountRequest struct {
	BankName      string `json:"bank_name" binding:"required,min=1,max=100"`
	AccountNumber string `json:"account_number" binding:"required,safe_id,max=50"`
	HolderName    string `json:"holder_name" binding:"required,min=1,max=100"`
}

// PaymentListResponse wraps a paginated payment list.
type PaymentListResponse struct {
	Items      []PaymentResponse `json:"items"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// OrderListResponse wraps a paginated order list.
type OrderListResponse struct {
	Items      []OrderResponse `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// ReconcileResponse summarises a manually triggered reconciliation pass.
type ReconcileResponse struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Completed int `json:"completed"`
	Errors    int `json:"errors"`
}

// ToPaymentResponse maps a domain payment to its wire form.
func ToPaymentResponse(p *domain.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:          p.ID.String(),
		QuoteAmount: p.QuoteAmount,
		LocalAmount: p.LocalAmount,
		TransferRef: p.TransferRef,
		Status:      string(p.Status),
		ExpiresAt:   p.ExpiresAt.Format(time.RFC3339),
		Note:        p.Note,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
	if p.CompletedAt != nil {
		s := p.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

// ToOrderResponse maps a domain order to its wire form.
func ToOrderResponse(o *domain.Order) OrderResponse {
	return OrderResponse{
		ID:          o.ID.String(),
		ProductID:   o.ProductID.String(),
		ProductName: o.ProductName,
		Price:       o.Price,
		CreatedAt:   o.CreatedAt.Format(time.RFC3339),
	}
}

// ToProductResponse maps a domain product to its wire form.
func ToProductResponse(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:             p.ID.String(),
		CategoryID:     p.CategoryID.String(),
		Name:           p.Name,
		BasePrice:      p.BasePrice,
		TotalAvailable: p.TotalAvailable,
		TotalSold:      p.TotalSold,
	}
}

// ToTopupResponse maps transfer instructions to their wire form.
func ToTopupResponse(in *ports.TopupInstructions) TopupResponse {
	return TopupResponse{
		PaymentID:   in.Payment.ID.String(),
		BankName:    in.BankName,
		AccountNo:   in.AccountNo,
		HolderName:  in.HolderName,
		TransferRef: in.TransferRef,
		LocalAmount: in.LocalAmount,
		QuoteAmount: in.Payment.QuoteAmount,
		ExpiresAt:   in.ExpiresAt.Format(time.RFC3339),
	}
}
