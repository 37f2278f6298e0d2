package checkout

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/credit"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/voucher"
)

// --- Mock implementations ---

// memDB is an in-memory store implementing every repository the checkout
// needs. InTx snapshots the state and restores it when fn fails.
type memDB struct {
	mu       sync.Mutex
	products map[string]catalog.Product
	vouchers map[string]voucher.Voucher
	balances map[string]decimal.Decimal
	orders   []order.Order
	usages   []voucher.Usage
	entries  []credit.Entry

	failCreate error
}

func newMemDB() *memDB {
	return &memDB{
		products: map[string]catalog.Product{},
		vouchers: map[string]voucher.Voucher{},
		balances: map[string]decimal.Decimal{},
	}
}

type memState struct {
	products map[string]catalog.Product
	vouchers map[string]voucher.Voucher
	balances map[string]decimal.Decimal
	orders   []order.Order
	usages   []voucher.Usage
	entries  []credit.Entry
}

func (m *memDB) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memState{
		products: maps.Clone(m.products),
		vouchers: maps.Clone(m.vouchers),
		balances: maps.Clone(m.balances),
		orders:   slices.Clone(m.orders),
		usages:   slices.Clone(m.usages),
		entries:  slices.Clone(m.entries),
	}
}

func (m *memDB) restore(s memState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products, m.vouchers, m.balances = s.products, s.vouchers, s.balances
	m.orders, m.usages, m.entries = s.orders, s.usages, s.entries
}

func (m *memDB) InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	s := m.snapshot()
	if err := fn(ctx, Repos{Vouchers: m, Credits: m, Catalog: m, Orders: memOrders{m}}); err != nil {
		m.restore(s)
		return err
	}
	return nil
}

// catalog.Repository

func (m *memDB) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (m *memDB) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memDB) DecrementStock(_ context.Context, id string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return catalog.ErrNotFound
	}
	if p.Stock < qty {
		code := catalog.CodeLimitedStock
		if p.Stock <= 0 {
			code = catalog.CodeOutOfStock
		}
		return &catalog.AvailabilityError{Code: code, ProductID: id, Available: p.Stock}
	}
	p.Stock -= qty
	m.products[id] = p
	return nil
}

// voucher.Repository

func (m *memDB) FindByCode(_ context.Context, code string) (*voucher.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[code]
	if !ok {
		return nil, voucher.ErrNotFound
	}
	return &v, nil
}

func (m *memDB) FindByCodeForUpdate(ctx context.Context, code string) (*voucher.Voucher, error) {
	return m.FindByCode(ctx, code)
}

func (m *memDB) RecordUsage(_ context.Context, u voucher.Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.vouchers[u.Code]
	v.Used++
	m.vouchers[u.Code] = v
	m.usages = append(m.usages, u)
	return nil
}

// credit.Ledger

func (m *memDB) BalanceForUpdate(_ context.Context, accountID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID], nil
}

func (m *memDB) Append(_ context.Context, e credit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[e.AccountID] = m.balances[e.AccountID].Add(e.Amount)
	m.entries = append(m.entries, e)
	return nil
}

// order.Repository

func (m *memDB) CreateBatch(_ context.Context, orders []*order.Order) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		m.orders = append(m.orders, *o)
	}
	return nil
}

// memOrders exposes the order half of memDB; GetByID clashes with the
// catalog lookup.
type memOrders struct{ *memDB }

func (m memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memDB) ListByCode(_ context.Context, code string) ([]*order.Order, error) {
	return m.list(func(o order.Order) bool { return o.Code == code }), nil
}

func (m *memDB) ListByCustomer(_ context.Context, customerID string) ([]*order.Order, error) {
	return m.list(func(o order.Order) bool { return o.CustomerID == customerID }), nil
}

func (m *memDB) list(match func(order.Order) bool) []*order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.Order
	for _, o := range m.orders {
		if match(o) {
			out = append(out, &o)
		}
	}
	return out
}

func (m *memDB) Update(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].ID == o.ID {
			m.orders[i] = *o
			return nil
		}
	}
	return order.ErrNotFound
}

func (m *memDB) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memDB) balance(accountID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID]
}

func (m *memDB) stored(code string) []order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.Code == code {
			out = append(out, o)
		}
	}
	return out
}

// memCarts is a cart.Store.
type memCarts struct {
	mu    sync.Mutex
	carts map[string][]cart.Line
}

func (c *memCarts) Get(_ context.Context, accountID string) (cart.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines, ok := c.carts[accountID]
	if !ok {
		return cart.Snapshot{}, cart.ErrNotFound
	}
	return cart.New(lines)
}

func (c *memCarts) Put(_ context.Context, accountID string, lines []cart.Line) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carts[accountID] = slices.Clone(lines)
	return nil
}

func (c *memCarts) Clear(_ context.Context, accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts, accountID)
	return nil
}

// scriptedGateway returns its results in order, repeating the last one.
type scriptedGateway struct {
	results []payment.ChargeResult
	err     error
	calls   []payment.ChargeRequest
}

func (g *scriptedGateway) Charge(_ context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return payment.ChargeResult{}, g.err
	}
	if len(g.results) == 0 {
		return payment.ChargeResult{Status: payment.StatusSettled, Reference: "ch_1"}, nil
	}
	res := g.results[0]
	if len(g.results) > 1 {
		g.results = g.results[1:]
	}
	return res, nil
}

type recordingPublisher struct {
	events []order.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...order.Event) error {
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) count(t order.EventType) int {
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type staticVerifier struct{ err error }

func (v staticVerifier) VerifyCallback(map[string]string) error { return v.err }

var errBadSignature = errors.New("signature mismatch")

// --- Fixture ---

var fixtureNow = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db       *memDB
	carts    *memCarts
	redirect *scriptedGateway
	token    *scriptedGateway
	events   *recordingPublisher
	verifier *staticVerifier
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		db:       newMemDB(),
		carts:    &memCarts{carts: map[string][]cart.Line{}},
		redirect: &scriptedGateway{},
		token:    &scriptedGateway{},
		events:   &recordingPublisher{},
		verifier: &staticVerifier{},
	}
	now := func() time.Time { return fixtureNow }
	svc, err := NewService(DefaultConfig(), Deps{
		Carts:      f.carts,
		Catalog:    f.db,
		Orders:     memOrders{f.db},
		Vouchers:   voucher.NewService(f.db, now),
		Tx:         f.db,
		Dispatcher: payment.NewDispatcher(f.redirect, f.token, time.Second),
		Verifier:   f.verifier,
		Events:     f.events,
		Policy:     order.DefaultPolicy(),
	})
	if err != nil {
		panic(err)
	}
	svc.now = now
	svc.newCode = func() string { return "K1" }
	f.svc = svc
	return f
}

func (f *fixture) product(id, country string, price int64, stock int) catalog.Product {
	p := catalog.Product{
		ID:          id,
		NSID:        "ns-" + id,
		Name:        "Product " + id,
		SalePrice:   decimal.NewFromInt(price),
		RetailPrice: decimal.NewFromInt(price),
		Country:     country,
		Stock:       stock,
	}
	f.db.products[id] = p
	return p
}

// addToCart puts qty units of product id into the held cart and returns
// the lines a client would submit.
func (f *fixture) addToCart(customerID, id string, qty int) []cart.Line {
	lines := append(f.carts.carts[customerID], cart.LineFor(f.db.products[id], qty))
	f.carts.carts[customerID] = lines
	return slices.Clone(lines)
}

func (f *fixture) voucher(v voucher.Voucher) {
	if v.StartDate.IsZero() {
		v.StartDate = fixtureNow.Add(-24 * time.Hour)
	}
	if v.Expiry.IsZero() {
		v.Expiry = fixtureNow.Add(24 * time.Hour)
	}
	f.db.vouchers[v.Code] = v
}
