package service

import (
	"context"
	"sort"
	"sync"

	"keymarket/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeTx satisfies pgx.Tx for services that only need Begin/Commit/Rollback
// semantics. The in-memory repos below ignore the tx handle entirely.
type fakeTx struct {
	onCommit   func() error
	onRollback func() error
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(ctx context.Context) error {
	if t.onCommit != nil {
		return t.onCommit()
	}
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.onRollback != nil {
		return t.onRollback()
	}
	return nil
}
func (t *fakeTx) CopyFrom(ctx context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                              { return nil }

type fakeTransactor struct{ tx fakeTx }

func (f *fakeTransactor) Begin(ctx context.Context) (pgx.Tx, error) { return &f.tx, nil }

// --- in-memory repositories ---

type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (r *memAccountRepo) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *memAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *memAccountRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.Balance = balance
	}
	return nil
}

func (r *memAccountRepo) Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.Balance += amount
	}
	return nil
}

func (r *memAccountRepo) SetLocked(ctx context.Context, id uuid.UUID, locked bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return false, nil
	}
	a.Locked = locked
	return true, nil
}

type memProductRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
	units    []*domain.InventoryUnit
}

func newMemProductRepo() *memProductRepo {
	return &memProductRepo{products: make(map[uuid.UUID]*domain.Product)}
}

func (r *memProductRepo) Create(ctx context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *memProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memProductRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Product, error) {
	return r.GetByID(ctx, id)
}

func (r *memProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memProductRepo) AddUnits(ctx context.Context, units []*domain.InventoryUnit) error {
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

func (r *memProductRepo) FirstUnitForUpdate(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (*domain.InventoryUnit, error) {
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

func (r *memProductRepo) ConsumeUnit(ctx context.Context, tx pgx.Tx, unitID uuid.UUID, buyerID uuid.UUID) error {
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

func (r *memProductRepo) UpdateAggregates(ctx context.Context, tx pgx.Tx, productID uuid.UUID, availableDelta, soldDelta int64) error {
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

type memOrderRepo struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (r *memOrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, *o)
	return nil
}

func (r *memOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
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

func (r *memOrderRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]domain.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for i := range r.orders {
		if r.orders[i].SellerID == sellerID {
			out = append(out, r.orders[i])
		}
	}
	return out, int64(len(out)), nil
}

type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*domain.Payment
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[uuid.UUID]*domain.Payment)}
}

func (r *memPaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *memPaymentRepo) CreateInTx(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	return r.Create(ctx, p)
}

func (r *memPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memPaymentRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]domain.Payment, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.payments {
		if p.SellerID == sellerID {
			out = append(out, *p)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memPaymentRepo) ListPending(ctx context.Context) ([]domain.Payment, error) {
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

func (r *memPaymentRepo) CountPending(ctx context.Context, sellerID uuid.UUID) (int, error) {
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

func (r *memPaymentRepo) LatestPendingCreatedAt(ctx context.Context, sellerID uuid.UUID) (*int64, error) {
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

func (r *memPaymentRepo) Complete(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != domain.PaymentStatusPending {
		return false, nil
	}
	p.Status = domain.PaymentStatusCompleted
	return true, nil
}

func (r *memPaymentRepo) MarkExpired(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != domain.PaymentStatusPending {
		return false, nil
	}
	p.Status = domain.PaymentStatusExpired
	return true, nil
}

type memOverrideRepo struct {
	mu        sync.Mutex
	overrides map[string]*domain.PriceOverride
}

func newMemOverrideRepo() *memOverrideRepo {
	return &memOverrideRepo{overrides: make(map[string]*domain.PriceOverride)}
}

func overrideKey(sellerID, productID uuid.UUID) string {
	return sellerID.String() + "/" + productID.String()
}

func (r *memOverrideRepo) Upsert(ctx context.Context, o *domain.PriceOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.overrides[overrideKey(o.SellerID, o.ProductID)] = &cp
	return nil
}

func (r *memOverrideRepo) Delete(ctx context.Context, sellerID, productID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, overrideKey(sellerID, productID))
	return nil
}

func (r *memOverrideRepo) Get(ctx context.Context, sellerID, productID uuid.UUID) (*domain.PriceOverride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.overrides[overrideKey(sellerID, productID)]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

type memBankAccountRepo struct {
	mu       sync.Mutex
	accounts []*domain.BankAccount
}

func (r *memBankAccountRepo) Create(ctx context.Context, a *domain.BankAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts = append(r.accounts, &cp)
	return nil
}

func (r *memBankAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
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

func (r *memBankAccountRepo) SetActive(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		a.Active = a.ID == id
	}
	return nil
}

func (r *memBankAccountRepo) GetActive(ctx context.Context) (*domain.BankAccount, error) {
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

type memRateRepo struct {
	mu   sync.Mutex
	rate domain.ExchangeRate
}

func (r *memRateRepo) Get(ctx context.Context) (*domain.ExchangeRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.rate
	return &cp, nil
}

func (r *memRateRepo) Set(ctx context.Context, rate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate.Rate = rate
	return nil
}

type memSequence struct {
	mu sync.Mutex
	n  int64
}

func (s *memSequence) Next(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n, nil
}
