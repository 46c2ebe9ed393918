package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpHandler "keymarket/internal/adapter/http/handler"
	"keymarket/internal/core/domain"
	"keymarket/internal/core/ports"
	"keymarket/internal/service"
	"keymarket/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp builds the full application stack on in-memory storage: real
// HTTP layer, middleware, handlers and services, with a serializing
// transactor standing in for row-level locks and a scriptable bank feed.

const testAESKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type testApp struct {
	server *httptest.Server

	tokenSvc ports.TokenService
	encSvc   ports.EncryptionService
	feed     *stubFeed

	accountRepo  *inMemoryAccountRepo
	productRepo  *inMemoryProductRepo
	paymentRepo  *inMemoryPaymentRepo
	bankRepo     *inMemoryBankAccountRepo
	overrideRepo *inMemoryOverrideRepo
	rateRepo     *inMemoryRateRepo
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	log := logger.New("error", false)

	encSvc, err := service.NewAESEncryptionService(testAESKey)
	require.NoError(t, err)
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", 24*time.Hour, "test-issuer")

	accountRepo := newInMemoryAccountRepo()
	productRepo := newInMemoryProductRepo()
	orderRepo := newInMemoryOrderRepo()
	paymentRepo := newInMemoryPaymentRepo()
	overrideRepo := newInMemoryOverrideRepo()
	bankRepo := newInMemoryBankAccountRepo()
	rateRepo := newInMemoryRateRepo(25000)
	auditRepo := newInMemoryAuditRepo()
	transactor := newLockTransactor()
	feed := &stubFeed{}

	refGen := service.NewSequenceReferenceGenerator(&inMemorySequence{}, "NAP", 8)
	auditSvc := service.NewAuditService(auditRepo, log)

	purchaseSvc := service.NewPurchaseService(accountRepo, productRepo, orderRepo, overrideRepo, encSvc, transactor, auditSvc, log)
	topupSvc := service.NewTopupService(paymentRepo, accountRepo, bankRepo, rateRepo, refGen, transactor, auditSvc,
		service.TopupConfig{
			PendingLimit:  3,
			IssueInterval: 0, // no throttling in tests
			Expiry:        15 * time.Minute,
		}, log)
	reconcileSvc := service.NewReconcileService(paymentRepo, accountRepo, bankRepo, feed, transactor, auditSvc, log)
	pricingSvc := service.NewPricingService(productRepo, overrideRepo)
	rateSvc := service.NewExchangeService(rateRepo, auditSvc, log)
	catalogSvc := service.NewCatalogService(productRepo, encSvc, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PurchaseSvc:  purchaseSvc,
		TopupSvc:     topupSvc,
		PricingSvc:   pricingSvc,
		RateSvc:      rateSvc,
		CatalogSvc:   catalogSvc,
		ReconcileSvc: reconcileSvc,
		AuditSvc:     auditSvc,
		TokenSvc:     tokenSvc,
		AccountRepo:  accountRepo,
		OrderRepo:    orderRepo,
		PaymentRepo:  paymentRepo,
		OverrideRepo: overrideRepo,
		BankRepo:     bankRepo,
		Logger:       log,
	})

	return &testApp{
		server:       httptest.NewServer(router),
		tokenSvc:     tokenSvc,
		encSvc:       encSvc,
		feed:         feed,
		accountRepo:  accountRepo,
		productRepo:  productRepo,
		paymentRepo:  paymentRepo,
		bankRepo:     bankRepo,
		overrideRepo: overrideRepo,
		rateRepo:     rateRepo,
	}
}

func (a *testApp) close() {
	a.server.Close()
}

// seedSeller registers a seller account with the given balance and
// returns its id plus a bearer token.
func (a *testApp) seedSeller(t *testing.T, balance int64) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	require.NoError(t, a.accountRepo.Create(context.Background(), &domain.Account{
		ID:       id,
		Username: "seller-" + id.String()[:8],
		Role:     domain.RoleSeller,
		Balance:  balance,
	}))
	token, _, err := a.tokenSvc.Generate(id, domain.RoleSeller)
	require.NoError(t, err)
	return id, token
}

func (a *testApp) seedAdmin(t *testing.T) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	require.NoError(t, a.accountRepo.Create(context.Background(), &domain.Account{
		ID:       id,
		Username: "admin-" + id.String()[:8],
		Role:     domain.RoleAdmin,
	}))
	token, _, err := a.tokenSvc.Generate(id, domain.RoleAdmin)
	require.NoError(t, err)
	return id, token
}

// seedProduct creates a product with one inventory unit holding value.
func (a *testApp) seedProduct(t *testing.T, basePrice int64, value string, qty int64) uuid.UUID {
	t.Helper()
	productID := uuid.New()
	require.NoError(t, a.productRepo.Create(context.Background(), &domain.Product{
		ID:         productID,
		CategoryID: uuid.New(),
		Name:       "Game Key",
		BasePrice:  basePrice,
	}))
	enc, err := a.encSvc.Encrypt(value)
	require.NoError(t, err)
	require.NoError(t, a.productRepo.AddUnits(context.Background(), []*domain.InventoryUnit{{
		ID:           uuid.New(),
		ProductID:    productID,
		ValueEnc:     enc,
		QtyAvailable: qty,
		Position:     time.Now().UTC().UnixNano(),
	}}))
	return productID
}

func (a *testApp) seedActiveBankAccount(t *testing.T) {
	t.Helper()
	id := uuid.New()
	require.NoError(t, a.bankRepo.Create(context.Background(), &domain.BankAccount{
		ID:            id,
		BankName:      "VCB",
		AccountNumber: "0123456789",
		HolderName:    "KEYMARKET CO",
	}))
	require.NoError(t, a.bankRepo.SetActive(context.Background(), id))
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var parsed map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	return resp, parsed
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_Unauthenticated(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, _ := app.do(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_SellerCannotReachAdmin(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	_, token := app.seedSeller(t, 0)
	resp, body := app.do(t, http.MethodPost, "/api/v1/admin/reconcile/run", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "SEC_002", body["error_code"])
}

func TestIntegration_PurchaseFlow(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	sellerID, token := app.seedSeller(t, 10000)
	productID := app.seedProduct(t, 1000, "ABC-123", 1)

	// Effective price for this seller is the base price.
	resp, body := app.do(t, http.MethodGet, "/api/v1/products/"+productID.String()+"/price", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1000), body["data"].(map[string]interface{})["price"])

	// Purchase delivers the plaintext value exactly once.
	resp, body = app.do(t, http.MethodPost, "/api/v1/purchases", token, map[string]string{"product_id": productID.String()})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "ABC-123", data["value"])
	assert.Equal(t, float64(9000), data["new_balance"])

	// Wallet reflects the debit.
	resp, body = app.do(t, http.MethodGet, "/api/v1/wallet/balance", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(9000), body["data"].(map[string]interface{})["balance"])

	// Order history records the sale but never repeats the value.
	resp, body = app.do(t, http.MethodGet, "/api/v1/orders", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["data"].(map[string]interface{})["items"].([]interface{})
	require.Len(t, items, 1)
	order := items[0].(map[string]interface{})
	assert.Equal(t, float64(1000), order["price"])
	_, hasValue := order["value"]
	assert.False(t, hasValue)

	// Second purchase fails: the single unit is gone.
	resp, body = app.do(t, http.MethodPost, "/api/v1/purchases", token, map[string]string{"product_id": productID.String()})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "PUR_002", body["error_code"])

	_ = sellerID
}

func TestIntegration_PriceOverrideWins(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	sellerID, token := app.seedSeller(t, 10000)
	otherID, otherToken := app.seedSeller(t, 10000)
	_, adminToken := app.seedAdmin(t)
	productID := app.seedProduct(t, 1000, "KEY-1", 5)

	// Admin pins a lower price for the first seller only.
	resp, _ := app.do(t, http.MethodPut, "/api/v1/admin/price-overrides", adminToken, map[string]interface{}{
		"seller_id":  sellerID.String(),
		"product_id": productID.String(),
		"price":      500,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := app.do(t, http.MethodGet, "/api/v1/products/"+productID.String()+"/price", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(500), body["data"].(map[string]interface{})["price"])

	resp, body = app.do(t, http.MethodGet, "/api/v1/products/"+productID.String()+"/price", otherToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1000), body["data"].(map[string]interface{})["price"])

	// The override is charged at purchase time.
	resp, body = app.do(t, http.MethodPost, "/api/v1/purchases", token, map[string]string{"product_id": productID.String()})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(500), body["data"].(map[string]interface{})["price"])
	assert.Equal(t, float64(9500), body["data"].(map[string]interface{})["new_balance"])

	_ = otherID
}

func TestIntegration_TopupLifecycle(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	sellerID, token := app.seedSeller(t, 0)
	app.seedActiveBankAccount(t)

	// Issue: 1000 cents at rate 25000 -> 250000 local units.
	resp, body := app.do(t, http.MethodPost, "/api/v1/topups", token, map[string]int64{"amount": 1000})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(250000), data["local_amount"])
	assert.Equal(t, "VCB", data["bank_name"])
	transferRef := data["transfer_ref"].(string)
	assert.Equal(t, "NAP0000000195", transferRef)

	// Nothing in the feed yet: reconcile settles nothing.
	_, adminToken := app.seedAdmin(t)
	resp, body = app.do(t, http.MethodPost, "/api/v1/admin/reconcile/run", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["data"].(map[string]interface{})["completed"])

	// The matching transfer arrives.
	app.feed.set([]domain.BankTransaction{
		{ID: "bank-tx-1", Amount: 250000, Memo: "chuyen tien " + transferRef, PostedAt: time.Now()},
	}, nil)

	resp, body = app.do(t, http.MethodPost, "/api/v1/admin/reconcile/run", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["data"].(map[string]interface{})["completed"])

	// Wallet credited with the quote amount, not the local amount.
	resp, body = app.do(t, http.MethodGet, "/api/v1/wallet/balance", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1000), body["data"].(map[string]interface{})["balance"])

	// Payment shows COMPLETED.
	resp, body = app.do(t, http.MethodGet, "/api/v1/payments", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["data"].(map[string]interface{})["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "COMPLETED", items[0].(map[string]interface{})["status"])

	_ = sellerID
}

func TestIntegration_TopupPendingCap(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	_, token := app.seedSeller(t, 0)
	app.seedActiveBankAccount(t)

	for i := 0; i < 3; i++ {
		resp, _ := app.do(t, http.MethodPost, "/api/v1/topups", token, map[string]int64{"amount": 1000})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := app.do(t, http.MethodPost, "/api/v1/topups", token, map[string]int64{"amount": 1000})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "TOP_001", body["error_code"])
}

func TestIntegration_TopupNoActiveBankAccount(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	_, token := app.seedSeller(t, 0)

	resp, body := app.do(t, http.MethodPost, "/api/v1/topups", token, map[string]int64{"amount": 1000})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "TOP_003", body["error_code"])
}

func TestIntegration_SettlePayment(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	_, token := app.seedSeller(t, 0)
	_, adminToken := app.seedAdmin(t)
	app.seedActiveBankAccount(t)

	resp, body := app.do(t, http.MethodPost, "/api/v1/topups", token, map[string]int64{"amount": 2000})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	paymentID := body["data"].(map[string]interface{})["payment_id"].(string)

	// Admin settles by hand.
	resp, body = app.do(t, http.MethodPost, "/api/v1/admin/payments/"+paymentID+"/settle", adminToken,
		map[string]string{"note": "verified transfer by phone"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "COMPLETED", body["data"].(map[string]interface{})["status"])

	resp, body = app.do(t, http.MethodGet, "/api/v1/wallet/balance", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2000), body["data"].(map[string]interface{})["balance"])

	// A second settle is idempotent: still COMPLETED, no double credit.
	resp, _ = app.do(t, http.MethodPost, "/api/v1/admin/payments/"+paymentID+"/settle", adminToken,
		map[string]string{"note": "again"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = app.do(t, http.MethodGet, "/api/v1/wallet/balance", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2000), body["data"].(map[string]interface{})["balance"])
}

func TestIntegration_ManualCredit(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	sellerID, token := app.seedSeller(t, 0)
	_, adminToken := app.seedAdmin(t)
	app.seedActiveBankAccount(t)

	// Admin credits the wallet directly: no invoice issued beforehand.
	resp, body := app.do(t, http.MethodPost, "/api/v1/admin/accounts/"+sellerID.String()+"/credit", adminToken,
		map[string]interface{}{"amount": 2000, "note": "cash received at office"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "COMPLETED", data["status"])
	assert.Equal(t, float64(2000), data["quote_amount"])

	resp, body = app.do(t, http.MethodGet, "/api/v1/wallet/balance", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2000), body["data"].(map[string]interface{})["balance"])

	// The credit leaves an already-settled payment in the seller's history.
	resp, body = app.do(t, http.MethodGet, "/api/v1/payments", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["data"].(map[string]interface{})["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "COMPLETED", items[0].(map[string]interface{})["status"])
}

func TestIntegration_LockedAccountCannotPurchase(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	sellerID, token := app.seedSeller(t, 10000)
	_, adminToken := app.seedAdmin(t)
	productID := app.seedProduct(t, 1000, "KEY-1", 2)

	resp, body := app.do(t, http.MethodPost, "/api/v1/admin/accounts/"+sellerID.String()+"/lock", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["data"].(map[string]interface{})["locked"])

	resp, body = app.do(t, http.MethodPost, "/api/v1/purchases", token, map[string]string{"product_id": productID.String()})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "PUR_003", body["error_code"])

	// Unlock restores normal trading.
	resp, _ = app.do(t, http.MethodPost, "/api/v1/admin/accounts/"+sellerID.String()+"/unlock", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = app.do(t, http.MethodPost, "/api/v1/purchases", token, map[string]string{"product_id": productID.String()})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestIntegration_RateChangeDoesNotTouchIssuedInvoices(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	_, token := app.seedSeller(t, 0)
	_, adminToken := app.seedAdmin(t)
	app.seedActiveBankAccount(t)

	resp, body := app.do(t, http.MethodPost, "/api/v1/topups", token, map[string]int64{"amount": 1000})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(250000), body["data"].(map[string]interface{})["local_amount"])

	// Rate changes after issuance.
	resp, _ = app.do(t, http.MethodPut, "/api/v1/admin/rate", adminToken, map[string]float64{"rate": 26000})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Existing invoice keeps its snapshotted local amount.
	resp, body = app.do(t, http.MethodGet, "/api/v1/payments", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["data"].(map[string]interface{})["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, float64(250000), items[0].(map[string]interface{})["local_amount"])

	// New invoices quote the new rate.
	resp, body = app.do(t, http.MethodPost, "/api/v1/topups", token, map[string]int64{"amount": 1000})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(260000), body["data"].(map[string]interface{})["local_amount"])
}

func TestIntegration_ExpiredInvoiceNeverCredits(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	sellerID, token := app.seedSeller(t, 0)
	_, adminToken := app.seedAdmin(t)
	app.seedActiveBankAccount(t)

	resp, body := app.do(t, http.MethodPost, "/api/v1/topups", token, map[string]int64{"amount": 1000})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	paymentID := uuid.MustParse(data["payment_id"].(string))
	transferRef := data["transfer_ref"].(string)

	// Force the invoice past its deadline.
	app.paymentRepo.mu.Lock()
	app.paymentRepo.payments[paymentID].ExpiresAt = time.Now().Add(-time.Minute)
	app.paymentRepo.mu.Unlock()

	// The matching transfer shows up late.
	app.feed.set([]domain.BankTransaction{
		{ID: "late-tx", Amount: 250000, Memo: transferRef, PostedAt: time.Now()},
	}, nil)

	resp, body = app.do(t, http.MethodPost, "/api/v1/admin/reconcile/run", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), report["expired"])
	assert.Equal(t, float64(0), report["completed"])

	// No credit for an expired invoice.
	acc, err := app.accountRepo.GetByID(context.Background(), sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Balance)
}

func TestIntegration_FeedOutageLeavesPaymentsPending(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	_, token := app.seedSeller(t, 0)
	_, adminToken := app.seedAdmin(t)
	app.seedActiveBankAccount(t)

	resp, _ := app.do(t, http.MethodPost, "/api/v1/topups", token, map[string]int64{"amount": 1000})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	app.feed.set(nil, fmt.Errorf("bank statement API unreachable"))

	resp, body := app.do(t, http.MethodPost, "/api/v1/admin/reconcile/run", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := body["data"].(map[string]interface{})
	assert.Equal(t, float64(0), report["completed"])
	assert.GreaterOrEqual(t, report["errors"].(float64), float64(1))

	// Still pending: the next healthy pass can settle it.
	resp, body = app.do(t, http.MethodGet, "/api/v1/payments", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["data"].(map[string]interface{})["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "PENDING", items[0].(map[string]interface{})["status"])
}
