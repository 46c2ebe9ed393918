package ports

import (
	"context"
	"time"

	"keymarket/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, body string) string
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(accountID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID uuid.UUID
	Role      domain.Role
}

// ReferenceGenerator produces globally unique transfer references.
type ReferenceGenerator interface {
	Next(ctx context.Context) (string, error)
}

// BankFeed reads recent inbound transfers for one receiving account
// from the bank's statement API.
type BankFeed interface {
	RecentTransactions(ctx context.Context, accountNo string) ([]domain.BankTransaction, error)
}

// --- Service Ports (Business Logic) ---

// PurchaseService defines the atomic purchase path.
type PurchaseService interface {
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
}

// PurchaseRequest holds validated input for a purchase.
type PurchaseRequest struct {
	SellerID  uuid.UUID
	ProductID uuid.UUID
	ClientIP  string
}

// PurchaseResult is the order plus the decrypted redeemed value,
// returned once to the buyer.
type PurchaseResult struct {
	Order         *domain.Order
	RedeemedValue string
	NewBalance    int64
}

// TopupService defines top-up issuance and the operator credit paths.
type TopupService interface {
	IssueTopup(ctx context.Context, req TopupRequest) (*TopupInstructions, error)
	// ManualCredit credits a seller's wallet by operator decision,
	// recording an already-completed payment and the credit in one
	// transaction. No pending invoice is involved.
	ManualCredit(ctx context.Context, adminID, sellerID uuid.UUID, quoteAmount int64, note string) (*domain.Payment, error)
	// SettlePayment force-completes a pending payment the bank feed
	// missed, crediting the wallet exactly once.
	SettlePayment(ctx context.Context, paymentID uuid.UUID, adminID uuid.UUID, note string) (*domain.Payment, error)
}

// TopupRequest holds validated input for issuing a top-up invoice.
type TopupRequest struct {
	SellerID    uuid.UUID
	QuoteAmount int64 // cents
	ClientIP    string
}

// TopupInstructions is everything the seller needs to perform the transfer.
type TopupInstructions struct {
	Payment     *domain.Payment
	BankName    string
	AccountNo   string
	HolderName  string
	TransferRef string
	LocalAmount int64
	ExpiresAt   time.Time
}

// ReconciliationService matches pending payments against the bank feed.
type ReconciliationService interface {
	// RunOnce expires overdue payments, then matches and settles the
	// remainder. Failures on one payment never block the others.
	RunOnce(ctx context.Context) (*ReconcileReport, error)
}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Scanned   int
	Expired   int
	Completed int
	Errors    int
}

// PricingResolver returns the effective unit price for a seller/product pair.
type PricingResolver interface {
	Resolve(ctx context.Context, sellerID, productID uuid.UUID) (int64, error)
}

// ExchangeRateService manages the system-wide conversion rate.
type ExchangeRateService interface {
	GetRate(ctx context.Context) (*domain.ExchangeRate, error)
	SetRate(ctx context.Context, rate float64, adminID uuid.UUID) (*domain.ExchangeRate, error)
}

// CatalogService manages products and inventory intake.
type CatalogService interface {
	CreateProduct(ctx context.Context, categoryID uuid.UUID, name string, basePrice int64) (*domain.Product, error)
	// AddInventory stocks one unit per value, in the given order, and
	// returns the number of units added.
	AddInventory(ctx context.Context, productID uuid.UUID, values []string) (int64, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// AuditService records money-moving and administrative events.
type AuditService interface {
	Record(ctx context.Context, accountID *uuid.UUID, action domain.AuditAction, detail, ip string)
	List(ctx context.Context, page, pageSize int) ([]domain.AuditLog, int64, error)
}
