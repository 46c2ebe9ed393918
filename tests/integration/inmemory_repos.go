package integration

import (
	"context"
	"sort"
	"sync"
	"time"

	"keymarket/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- Serializing Transactor ---

// lockTransactor serializes transactions behind one mutex, giving the
// in-memory repos the same one-writer-at-a-time behaviour SELECT FOR
// UPDATE provides on PostgreSQL. This makes "exactly one winner"
// assertions in the concurrency tests deterministic.
type lockTransactor struct {
	mu sync.Mutex
}

func newLockTransactor() *lockTransactor {
	return &lockTransactor{}
}

func (t *lockTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &lockTx{owner: t}, nil
}

// lockTx holds the transactor mutex until Commit or Rollback, whichever
// comes first. The deferred Rollback after a Commit is a no-op.
type lockTx struct {
	owner *lockTransactor
	once  sync.Once
}

func (t *lockTx) release() {
	t.once.Do(func() { t.owner.mu.Unlock() })
}

func (t *lockTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *lockTx) Commit(ctx context.Context) error          { t.release(); return nil }
func (t *lockTx) Rollback(ctx context.Context) error        { t.release(); return nil }
func (t *lockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *lockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *lockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *lockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *lockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *lockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *lockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *lockTx) Conn() *pgx.Conn                                              { return nil }

// --- In-Memory Account Repo ---

type inMemoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
}

func newInMemoryAccountRepo() *inMemoryAccountRepo {
	return &inMemoryAccountRepo{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (r *inMemoryAccountRepo) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *inMemoryAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryAccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryAccountRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.Balance = balance
	}
	return nil
}

func (r *inMemoryAccountRepo) Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.Balance += amount
	}
	return nil
}

func (r *inMemoryAccountRepo) SetLocked(ctx context.Context, id uuid.UUID, locked bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return false, nil
	}
	a.Locked = locked
	return true, nil
}

// --- In-Memory Product Repo ---

type inMemoryProductRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
	units    []*domain.InventoryUnit
}

func newInMemoryProductRepo() *inMemoryProductRepo {
	return &inMemoryProductRepo{products: make(map[uuid.UUID]*domain.Product)}
}

func (r *inMemoryProductRepo) Create(ctx context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *inMemoryProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryProductRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Product, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, *p)
	}
	return out, nil
}

func (r *inMemoryProductRepo) AddUnits(ctx context.Context, units []*domain.InventoryUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range units {
		cp := *u
		r.units = append(r.units, &cp)
		if p, ok := r.products[u.ProductID]; ok {
			p.TotalAvailable += u.QtyAvailable
		}
	}
	sort.Slice(r.units, func(i, j int) bool { return r.units[i].Position < r.units[j].Position })
	return nil
}

func (r *inMemoryProductRepo) FirstUnitForUpdate(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (*domain.InventoryUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.units {
		if u.ProductID == productID && u.QtyAvailable > 0 {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryProductRepo) ConsumeUnit(ctx context.Context, tx pgx.Tx, unitID uuid.UUID, buyerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, u := range r.units {
		if u.ID != unitID {
			continue
		}
		u.QtyAvailable--
		u.QtySold++
		u.Buyers = append(u.Buyers, buyerID)
		if u.QtyAvailable == 0 {
			r.units = append(r.units[:i], r.units[i+1:]...)
		}
		return nil
	}
	return nil
}

func (r *inMemoryProductRepo) UpdateAggregates(ctx context.Context, tx pgx.Tx, productID uuid.UUID, availableDelta, soldDelta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[productID]; ok {
		p.TotalAvailable += availableDelta
		if p.TotalAvailable < 0 {
			p.TotalAvailable = 0
		}
		p.TotalSold += soldDelta
	}
	return nil
}

// --- In-Memory Order Repo ---

type inMemoryOrderRepo struct {
	mu     sync.Mutex
	orders []domain.Order
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{}
}

func (r *inMemoryOrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, *o)
	return nil
}

func (r *inMemoryOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.orders {
		if r.orders[i].ID == id {
			cp := r.orders[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryOrderRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]domain.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Order{}
	for i := range r.orders {
		if r.orders[i].SellerID == sellerID {
			out = append(out, r.orders[i])
		}
	}
	return out, int64(len(out)), nil
}

// --- In-Memory Payment Repo ---

type inMemoryPaymentRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*domain.Payment
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{payments: make(map[uuid.UUID]*domain.Payment)}
}

func (r *inMemoryPaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *inMemoryPaymentRepo) CreateInTx(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	return r.Create(ctx, p)
}

func (r *inMemoryPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryPaymentRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]domain.Payment, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Payment{}
	for _, p := range r.payments {
		if p.SellerID == sellerID {
			out = append(out, *p)
		}
	}
	return out, int64(len(out)), nil
}

func (r *inMemoryPaymentRepo) ListPending(ctx context.Context) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.payments {
		if p.Status == domain.PaymentStatusPending {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *inMemoryPaymentRepo) CountPending(ctx context.Context, sellerID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.payments {
		if p.SellerID == sellerID && p.Status == domain.PaymentStatusPending {
			n++
		}
	}
	return n, nil
}

func (r *inMemoryPaymentRepo) LatestPendingCreatedAt(ctx context.Context, sellerID uuid.UUID) (*int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *int64
	for _, p := range r.payments {
		if p.SellerID != sellerID || p.Status != domain.PaymentStatusPending {
			continue
		}
		ts := p.CreatedAt.Unix()
		if latest == nil || ts > *latest {
			v := ts
			latest = &v
		}
	}
	return latest, nil
}

func (r *inMemoryPaymentRepo) Complete(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != domain.PaymentStatusPending {
		return false, nil
	}
	now := time.Now().UTC()
	p.Status = domain.PaymentStatusCompleted
	p.CompletedAt = &now
	return true, nil
}

func (r *inMemoryPaymentRepo) MarkExpired(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != domain.PaymentStatusPending {
		return false, nil
	}
	p.Status = domain.PaymentStatusExpired
	return true, nil
}

// --- In-Memory Price Override Repo ---

type inMemoryOverrideRepo struct {
	mu        sync.Mutex
	overrides map[string]*domain.PriceOverride
}

func newInMemoryOverrideRepo() *inMemoryOverrideRepo {
	return &inMemoryOverrideRepo{overrides: make(map[string]*domain.PriceOverride)}
}

func overrideKey(sellerID, productID uuid.UUID) string {
	return sellerID.String() + "/" + productID.String()
}

func (r *inMemoryOverrideRepo) Upsert(ctx context.Context, o *domain.PriceOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.overrides[overrideKey(o.SellerID, o.ProductID)] = &cp
	return nil
}

func (r *inMemoryOverrideRepo) Delete(ctx context.Context, sellerID, productID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, overrideKey(sellerID, productID))
	return nil
}

func (r *inMemoryOverrideRepo) Get(ctx context.Context, sellerID, productID uuid.UUID) (*domain.PriceOverride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.overrides[overrideKey(sellerID, productID)]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

// --- In-Memory Bank Account Repo ---

type inMemoryBankAccountRepo struct {
	mu       sync.Mutex
	accounts []*domain.BankAccount
}

func newInMemoryBankAccountRepo() *inMemoryBankAccountRepo {
	return &inMemoryBankAccountRepo{}
}

func (r *inMemoryBankAccountRepo) Create(ctx context.Context, a *domain.BankAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts = append(r.accounts, &cp)
	return nil
}

func (r *inMemoryBankAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryBankAccountRepo) SetActive(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, a := range r.accounts {
		if a.ID == id {
			a.Active = true
			a.ActivatedAt = &now
		}
	}
	return nil
}

func (r *inMemoryBankAccountRepo) GetActive(ctx context.Context) (*domain.BankAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.BankAccount
	for _, a := range r.accounts {
		if !a.Active || a.ActivatedAt == nil {
			continue
		}
		if best == nil || a.ActivatedAt.After(*best.ActivatedAt) {
			best = a
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// --- In-Memory Exchange Rate Repo ---

type inMemoryRateRepo struct {
	mu   sync.Mutex
	rate domain.ExchangeRate
}

func newInMemoryRateRepo(rate float64) *inMemoryRateRepo {
	return &inMemoryRateRepo{rate: domain.ExchangeRate{Rate: rate, UpdatedAt: time.Now().UTC()}}
}

func (r *inMemoryRateRepo) Get(ctx context.Context) (*domain.ExchangeRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.rate
	return &cp, nil
}

func (r *inMemoryRateRepo) Set(ctx context.Context, rate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate.Rate = rate
	r.rate.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Reference Sequence ---

type inMemorySequence struct {
	mu sync.Mutex
	n  int64
}

func (s *inMemorySequence) Next(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu   sync.Mutex
	logs []domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, l *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *l)
	return nil
}

func (r *inMemoryAuditRepo) List(ctx context.Context, page, pageSize int) ([]domain.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditLog, len(r.logs))
	copy(out, r.logs)
	return out, int64(len(out)), nil
}

// --- Scriptable Bank Feed ---

type feedResult struct {
	txs []domain.BankTransaction
	err error
}

// stubFeed returns whatever transactions the test has loaded, or an
// error to simulate a bank statement API outage. Results can be scoped
// to one receiving account; unscoped results serve every account.
type stubFeed struct {
	mu        sync.Mutex
	byAccount map[string]feedResult
	fallback  feedResult
}

func (f *stubFeed) set(txs []domain.BankTransaction, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = feedResult{txs: txs, err: err}
}

func (f *stubFeed) setAccount(accountNo string, txs []domain.BankTransaction, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byAccount == nil {
		f.byAccount = make(map[string]feedResult)
	}
	f.byAccount[accountNo] = feedResult{txs: txs, err: err}
}

func (f *stubFeed) RecentTransactions(ctx context.Context, accountNo string) ([]domain.BankTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.byAccount[accountNo]
	if !ok {
		res = f.fallback
	}
	if res.err != nil {
		return nil, res.err
	}
	out := make([]domain.BankTransaction, len(res.txs))
	copy(out, res.txs)
	return out, nil
}
