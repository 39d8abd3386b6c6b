package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/credential"
	"github.com/iliyamo/event-ticketing/internal/model"
	q "github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// fakeTxRunner satisfies database.TxRunner without a database: the
// callback runs with a nil *sql.Tx, which the store fakes ignore.
type fakeTxRunner struct{ calls int }

func (r *fakeTxRunner) RunTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	r.calls++
	return fn(nil)
}

// fakeCategoryStore mimics the conditional-decrement contract of the
// real repository: the availability guard and the decrement happen
// under one mutex, the in-memory stand-in for a single conditional
// UPDATE, so concurrent callers see exactly-one-winner semantics.
type fakeCategoryStore struct {
	mu       sync.Mutex
	cat      model.TicketCategory
	reserved uint32
	released uint32
}

func (f *fakeCategoryStore) GetByID(context.Context, uint64) (*model.TicketCategory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.cat
	return &c, nil
}
func (f *fakeCategoryStore) GetForUpdateTx(_ context.Context, _ *sql.Tx, id uint64) (*model.TicketCategory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.cat.ID {
		return nil, repository.ErrCategoryNotFound
	}
	c := f.cat
	return &c, nil
}
func (f *fakeCategoryStore) ReserveTx(_ context.Context, _ *sql.Tx, _ uint64, qty uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cat.AvailableQuantity < qty {
		return repository.ErrInsufficientInventory
	}
	f.cat.AvailableQuantity -= qty
	f.reserved += qty
	return nil
}
func (f *fakeCategoryStore) ReleaseTx(_ context.Context, _ *sql.Tx, _ uint64, qty uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cat.AvailableQuantity += qty
	f.released += qty
	return nil
}

func (f *fakeCategoryStore) available() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cat.AvailableQuantity
}

type fakeOrderStore struct {
	mu       sync.Mutex
	nextID   uint64
	orders   map[uint64]*model.Order
	items    []model.OrderItem
	paid     []uint64
	statuses map[uint64][2]string
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{nextID: 100, orders: map[uint64]*model.Order{}, statuses: map[uint64][2]string{}}
}
func (f *fakeOrderStore) CreateTx(_ context.Context, _ *sql.Tx, o *model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	o.ID = f.nextID
	cp := *o
	f.orders[o.ID] = &cp
	return nil
}
func (f *fakeOrderStore) CreateItemTx(_ context.Context, _ *sql.Tx, it *model.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, *it)
	return nil
}
func (f *fakeOrderStore) GetByID(_ context.Context, id uint64) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}
func (f *fakeOrderStore) GetForUpdateTx(ctx context.Context, _ *sql.Tx, id uint64) (*model.Order, error) {
	return f.GetByID(ctx, id)
}
func (f *fakeOrderStore) UpdateStatusTx(_ context.Context, _ *sql.Tx, id uint64, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = [2]string{from, to}
	if o, ok := f.orders[id]; ok && o.Status == from {
		o.Status = to
	}
	return nil
}
func (f *fakeOrderStore) MarkPaid(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid = append(f.paid, id)
	return nil
}
func (f *fakeOrderStore) ListByUser(context.Context, uint64) ([]repository.OrderDetail, error) {
	return nil, nil
}
func (f *fakeOrderStore) ItemsByOrderTx(_ context.Context, _ *sql.Tx, orderID uint64) ([]model.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.OrderItem
	for _, it := range f.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeUnitStore struct {
	mu       sync.Mutex
	created  []model.TicketPurchase
	refunded int64
}

func (f *fakeUnitStore) CreateBulkTx(_ context.Context, _ *sql.Tx, purchases []model.TicketPurchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, purchases...)
	return nil
}
func (f *fakeUnitStore) ListByOrderForUser(_ context.Context, orderID, userID uint64) ([]model.TicketPurchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TicketPurchase
	for _, p := range f.created {
		if p.OrderID == orderID {
			if p.UserID != userID {
				return nil, repository.ErrForbidden
			}
			out = append(out, p)
		}
	}
	return out, nil
}
func (f *fakeUnitStore) ListByOrderTx(_ context.Context, _ *sql.Tx, orderID uint64) ([]model.TicketPurchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TicketPurchase
	for _, p := range f.created {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (f *fakeUnitStore) RefundAllTx(_ context.Context, _ *sql.Tx, orderID uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.created {
		if f.created[i].OrderID == orderID && f.created[i].Status == model.PurchaseStatusActive {
			f.created[i].Status = model.PurchaseStatusRefunded
			n++
		}
	}
	f.refunded += n
	return n, nil
}

type fakeSaleStore struct {
	mu        sync.Mutex
	sale      *model.FlashSale
	findErr   error
	redeemErr error
	redeemed  int
}

func (f *fakeSaleStore) FindActiveByCode(_ context.Context, _ uint64, _ string) (*model.FlashSale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	cp := *f.sale
	return &cp, nil
}
func (f *fakeSaleStore) FindActiveByCodeTx(ctx context.Context, _ *sql.Tx, eventID uint64, code string) (*model.FlashSale, error) {
	return f.FindActiveByCode(ctx, eventID, code)
}
func (f *fakeSaleStore) RedeemTx(context.Context, *sql.Tx, uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.redeemErr != nil {
		return f.redeemErr
	}
	f.redeemed++
	return nil
}

type fakeEventStore struct{ event model.Event }

func (f *fakeEventStore) GetByID(context.Context, uint64) (*model.Event, error) {
	e := f.event
	return &e, nil
}

type recordingPublisher struct {
	mu            sync.Mutex
	confirmed     []q.OrderConfirmedEvent
	notifications []q.TicketNotificationEvent
	err           error
}

func (p *recordingPublisher) PublishOrderConfirmed(_ context.Context, ev q.OrderConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.confirmed = append(p.confirmed, ev)
	return nil
}
func (p *recordingPublisher) PublishTicketNotification(_ context.Context, ev q.TicketNotificationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.notifications = append(p.notifications, ev)
	return nil
}

type purchaseFixture struct {
	svc        *PurchaseService
	txr        *fakeTxRunner
	categories *fakeCategoryStore
	orders     *fakeOrderStore
	units      *fakeUnitStore
	sales      *fakeSaleStore
	publisher  *recordingPublisher
}

func newPurchaseFixture(t *testing.T) *purchaseFixture {
	t.Helper()
	codec, err := credential.NewCodec("test-signing-secret")
	require.NoError(t, err)
	f := &purchaseFixture{
		txr: &fakeTxRunner{},
		categories: &fakeCategoryStore{cat: model.TicketCategory{
			ID:                7,
			EventID:           3,
			Name:              "VIP",
			PriceCents:        5000,
			TotalQuantity:     100,
			AvailableQuantity: 100,
			MaxPerPurchase:    4,
		}},
		orders:    newFakeOrderStore(),
		units:     &fakeUnitStore{},
		sales:     &fakeSaleStore{findErr: repository.ErrPromoNotFound},
		publisher: &recordingPublisher{},
	}
	events := &fakeEventStore{event: model.Event{ID: 3, Title: "Summer Fest"}}
	f.svc = NewPurchaseService(f.txr, f.categories, f.orders, f.units, f.sales, events, codec, f.publisher)
	return f
}

func TestPurchaseCreatesOrderItemsAndCredentials(t *testing.T) {
	f := newPurchaseFixture(t)

	res, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 3})
	require.NoError(t, err)

	assert.Equal(t, uint32(15000), res.TotalAmountCents)
	assert.NotEmpty(t, res.OrderReference)
	require.Len(t, res.Credentials, 3)
	for _, cr := range res.Credentials {
		assert.NotEmpty(t, cr.Payload)
		assert.NotEmpty(t, cr.PNG)
	}

	assert.Equal(t, uint32(3), f.categories.reserved)
	require.Len(t, f.units.created, 3)
	seen := map[string]bool{}
	for _, u := range f.units.created {
		assert.Equal(t, model.PurchaseStatusActive, u.Status)
		assert.Equal(t, res.OrderID, u.OrderID)
		assert.False(t, seen[u.Serial], "serials must be unique")
		seen[u.Serial] = true
	}
	require.Len(t, f.orders.items, 1)
	assert.Equal(t, uint32(5000), f.orders.items[0].PriceAtTimeCents)

	order := f.orders.orders[res.OrderID]
	require.NotNil(t, order)
	assert.Equal(t, model.OrderStatusPending, order.Status)

	require.Len(t, f.publisher.confirmed, 1)
	assert.Equal(t, "Summer Fest", f.publisher.confirmed[0].EventTitle)
	assert.Equal(t, uint32(3), f.publisher.confirmed[0].Quantity)
}

func TestPurchaseRejectsZeroQuantity(t *testing.T) {
	f := newPurchaseFixture(t)

	_, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Zero(t, f.txr.calls, "no transaction should start")
}

func TestPurchaseRejectsQuantityOverLimit(t *testing.T) {
	f := newPurchaseFixture(t)

	_, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 5})
	assert.ErrorIs(t, err, ErrQuantityExceedsLimit)
	assert.Zero(t, f.categories.reserved)
	assert.Empty(t, f.units.created)
}

func TestPurchaseInsufficientInventoryLeavesNothingBehind(t *testing.T) {
	f := newPurchaseFixture(t)
	f.categories.cat.AvailableQuantity = 1

	_, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 2})
	assert.ErrorIs(t, err, repository.ErrInsufficientInventory)
	assert.Empty(t, f.orders.orders)
	assert.Empty(t, f.units.created)
	assert.Empty(t, f.publisher.confirmed)
}

func TestPurchaseInsufficientInventoryReportsRemaining(t *testing.T) {
	f := newPurchaseFixture(t)
	f.categories.cat.AvailableQuantity = 2

	_, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 4})
	require.Error(t, err)

	var inv *InsufficientInventoryError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, uint32(2), inv.Remaining)
	assert.Equal(t, "only 2 tickets remain", err.Error())

	f.categories.cat.AvailableQuantity = 1
	_, err = f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 3})
	require.Error(t, err)
	assert.Equal(t, "only 1 ticket remains", err.Error())
}

func TestPurchaseRejectsOverflowingTotal(t *testing.T) {
	f := newPurchaseFixture(t)
	f.categories.cat.PriceCents = 400_000_000
	f.categories.cat.MaxPerPurchase = 20
	// 400,000,000 * 11 = 4,400,000,000, which does not fit in uint32.
	_, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 11})
	assert.ErrorIs(t, err, ErrOrderTooLarge)
	assert.Empty(t, f.orders.orders)
	assert.Empty(t, f.units.created)
}

func TestPurchaseClosedSalesWindow(t *testing.T) {
	f := newPurchaseFixture(t)
	past := time.Now().Add(-time.Hour)
	f.categories.cat.SalesEndAt = &past

	_, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 1})
	assert.ErrorIs(t, err, ErrSalesWindowClosed)
	assert.Zero(t, f.categories.reserved)
}

func TestPurchaseUnknownCategory(t *testing.T) {
	f := newPurchaseFixture(t)

	_, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 999, Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrCategoryNotFound)
}

func TestPurchaseAppliesPercentPromo(t *testing.T) {
	f := newPurchaseFixture(t)
	f.sales = &fakeSaleStore{sale: &model.FlashSale{
		ID:            12,
		EventID:       3,
		PromoCode:     "EARLY20",
		DiscountKind:  model.DiscountKindPercent,
		DiscountValue: 20,
		IsActive:      true,
	}}
	f.svc.sales = f.sales

	res, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 2, PromoCode: "EARLY20"})
	require.NoError(t, err)

	// 2 * 5000 = 10000, minus 20% = 8000.
	assert.Equal(t, uint32(8000), res.TotalAmountCents)
	assert.Equal(t, 1, f.sales.redeemed)
}

func TestPurchaseFixedPromoFloorsAtZero(t *testing.T) {
	f := newPurchaseFixture(t)
	f.sales = &fakeSaleStore{sale: &model.FlashSale{
		ID:            13,
		EventID:       3,
		PromoCode:     "COMP",
		DiscountKind:  model.DiscountKindFixed,
		DiscountValue: 999999,
		IsActive:      true,
	}}
	f.svc.sales = f.sales

	res, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 1, PromoCode: "COMP"})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.TotalAmountCents)
}

func TestPurchasePromoScopedToOtherCategory(t *testing.T) {
	f := newPurchaseFixture(t)
	f.sales = &fakeSaleStore{sale: &model.FlashSale{
		ID:            14,
		EventID:       3,
		PromoCode:     "GAONLY",
		DiscountKind:  model.DiscountKindPercent,
		DiscountValue: 50,
		IsActive:      true,
		CategoryIDs:   []uint64{42}, // not category 7
	}}
	f.svc.sales = f.sales

	_, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 1, PromoCode: "GAONLY"})
	assert.ErrorIs(t, err, ErrPromoNotApplicable)
	assert.Zero(t, f.sales.redeemed)
	assert.Empty(t, f.orders.orders, "transaction must roll back whole")
}

func TestPurchaseExhaustedPromoFailsWholePurchase(t *testing.T) {
	f := newPurchaseFixture(t)
	f.sales = &fakeSaleStore{
		sale: &model.FlashSale{
			ID:            15,
			EventID:       3,
			PromoCode:     "FLASH",
			DiscountKind:  model.DiscountKindPercent,
			DiscountValue: 30,
			IsActive:      true,
		},
		redeemErr: repository.ErrPromoExhausted,
	}
	f.svc.sales = f.sales

	_, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 1, PromoCode: "FLASH"})
	assert.ErrorIs(t, err, repository.ErrPromoExhausted)
	assert.Empty(t, f.orders.orders)
	assert.Empty(t, f.units.created)
}

func TestPurchasePublishFailureDoesNotFailSale(t *testing.T) {
	f := newPurchaseFixture(t)
	f.publisher.err = context.DeadlineExceeded

	res, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, res.Credentials, 1)
}

func TestGetCredentialsSkipsNonActiveUnits(t *testing.T) {
	f := newPurchaseFixture(t)
	res, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 2})
	require.NoError(t, err)

	f.units.created[0].Status = model.PurchaseStatusUsed

	creds, err := f.svc.GetCredentials(context.Background(), res.OrderID, 9)
	require.NoError(t, err)
	assert.Len(t, creds, 1)
}

func TestGetCredentialsForbiddenForStranger(t *testing.T) {
	f := newPurchaseFixture(t)
	res, err := f.svc.Purchase(context.Background(), PurchaseInput{UserID: 9, CategoryID: 7, Quantity: 1})
	require.NoError(t, err)

	_, err = f.svc.GetCredentials(context.Background(), res.OrderID, 10)
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestApplyDiscountRounding(t *testing.T) {
	cases := []struct {
		name     string
		subtotal uint32
		kind     string
		value    uint32
		want     uint32
	}{
		{"ten percent of 9999 rounds half up", 9999, model.DiscountKindPercent, 10, 8999},
		{"full percent discount", 5000, model.DiscountKindPercent, 100, 0},
		{"fixed under subtotal", 5000, model.DiscountKindFixed, 1500, 3500},
		{"fixed equal to subtotal", 5000, model.DiscountKindFixed, 5000, 0},
		{"fixed over subtotal floors", 5000, model.DiscountKindFixed, 9000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := applyDiscount(tc.subtotal, &model.FlashSale{DiscountKind: tc.kind, DiscountValue: tc.value})
			assert.Equal(t, tc.want, got)
		})
	}
}

// With 3 tickets left and 10 buyers racing for one each, exactly 3
// purchases must succeed and the rest must see the inventory error.
func TestConcurrentPurchasesRespectCapacity(t *testing.T) {
	f := newPurchaseFixture(t)
	f.categories.cat.AvailableQuantity = 3

	const buyers = 10
	results := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Purchase(context.Background(), PurchaseInput{
				UserID:     uint64(1000 + i),
				CategoryID: 7,
				Quantity:   1,
			})
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, repository.ErrInsufficientInventory):
			lost++
		default:
			t.Fatalf("unexpected purchase error: %v", err)
		}
	}
	assert.Equal(t, 3, won)
	assert.Equal(t, 7, lost)
	assert.Equal(t, uint32(0), f.categories.available())
	assert.Equal(t, 3, f.orders.count(), "losers must not leave orders behind")
}
