package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/credential"
	"github.com/iliyamo/event-ticketing/internal/model"
	q "github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// fakeGateStore holds ticket units in memory and mimics the
// conditional-update semantics of the real repository.  Each
// conditional transition (MarkUsed, Reassign) checks and mutates
// under one mutex, the way a single conditional UPDATE would, so
// racing scanners observe a single winner.
type fakeGateStore struct {
	mu          sync.Mutex
	units       map[uint64]*model.TicketPurchase
	orderStatus map[uint64]string // orderID -> status, for gate records
}

func newFakeGateStore() *fakeGateStore {
	return &fakeGateStore{units: map[uint64]*model.TicketPurchase{}, orderStatus: map[uint64]string{}}
}

func (f *fakeGateStore) add(u model.TicketPurchase, orderStatus string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := u
	f.units[u.ID] = &cp
	f.orderStatus[u.OrderID] = orderStatus
}

func (f *fakeGateStore) setStatus(id uint64, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units[id].Status = status
}

func (f *fakeGateStore) FindBySerialAndOrder(_ context.Context, serial string, orderID uint64) (*repository.GateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.units {
		if u.Serial == serial && u.OrderID == orderID {
			return &repository.GateRecord{
				PurchaseID:   u.ID,
				Serial:       u.Serial,
				Status:       u.Status,
				OrderID:      u.OrderID,
				OrderStatus:  f.orderStatus[u.OrderID],
				EventID:      u.EventID,
				EventTitle:   "Summer Fest",
				CategoryName: "VIP",
				AttendeeID:   u.UserID,
				AttendeeName: "Dana",
			}, nil
		}
	}
	return nil, repository.ErrPurchaseNotFound
}

func (f *fakeGateStore) MarkUsed(_ context.Context, purchaseID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[purchaseID]
	if !ok || u.Status != model.PurchaseStatusActive {
		return repository.ErrAlreadyUsed
	}
	u.Status = model.PurchaseStatusUsed
	return nil
}

func (f *fakeGateStore) GetByID(_ context.Context, id uint64) (*model.TicketPurchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[id]
	if !ok {
		return nil, repository.ErrPurchaseNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeGateStore) Reassign(_ context.Context, purchaseID, fromUserID, toUserID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[purchaseID]
	if !ok || u.UserID != fromUserID || u.Status != model.PurchaseStatusActive {
		return repository.ErrPurchaseNotFound
	}
	u.UserID = toUserID
	return nil
}

func (f *fakeGateStore) ListByOrderTx(_ context.Context, _ *sql.Tx, orderID uint64) ([]model.TicketPurchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TicketPurchase
	for _, u := range f.units {
		if u.OrderID == orderID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeGateStore) RefundAllTx(_ context.Context, _ *sql.Tx, orderID uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, u := range f.units {
		if u.OrderID == orderID && u.Status == model.PurchaseStatusActive {
			u.Status = model.PurchaseStatusRefunded
			n++
		}
	}
	return n, nil
}

type fakeUserStore struct{ byEmail map[string]model.User }

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

type lifecycleFixture struct {
	svc        *LifecycleService
	codec      *credential.Codec
	gate       *fakeGateStore
	orders     *fakeOrderStore
	categories *fakeCategoryStore
	users      *fakeUserStore
	publisher  *recordingPublisher
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	codec, err := credential.NewCodec("test-signing-secret")
	require.NoError(t, err)
	f := &lifecycleFixture{
		codec:      codec,
		gate:       newFakeGateStore(),
		orders:     newFakeOrderStore(),
		categories: &fakeCategoryStore{cat: model.TicketCategory{ID: 7, EventID: 3}},
		users:      &fakeUserStore{byEmail: map[string]model.User{}},
		publisher:  &recordingPublisher{},
	}
	f.svc = NewLifecycleService(&fakeTxRunner{}, f.gate, f.orders, f.categories, f.users, codec, f.publisher)
	return f
}

// seedTicket adds an ACTIVE ticket under a PAID order and returns its
// signed wire credential.
func (f *lifecycleFixture) seedTicket(t *testing.T, id uint64, serial string, orderID uint64, orderStatus string) string {
	t.Helper()
	f.gate.add(model.TicketPurchase{
		ID:      id,
		Serial:  serial,
		UserID:  9,
		OrderID: orderID,
		EventID: 3,
		Status:  model.PurchaseStatusActive,
	}, orderStatus)
	cred, err := f.codec.Encode(serial, orderID)
	require.NoError(t, err)
	return cred.Payload
}

func TestValidateAdmitsOnce(t *testing.T) {
	f := newLifecycleFixture(t)
	wire := f.seedTicket(t, 1, "serial-a", 500, model.OrderStatusPaid)

	res, err := f.svc.Validate(context.Background(), wire)
	require.NoError(t, err)
	assert.Equal(t, "serial-a", res.TicketSerial)
	assert.Equal(t, "Summer Fest", res.EventTitle)
	assert.Equal(t, "Dana", res.AttendeeName)

	// Second scan of the same credential is a re-entry attempt.
	_, err = f.svc.Validate(context.Background(), wire)
	assert.ErrorIs(t, err, repository.ErrAlreadyUsed)
}

func TestValidateRejectsForgedCredential(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedTicket(t, 1, "serial-a", 500, model.OrderStatusPaid)

	other, err := credential.NewCodec("attacker-secret")
	require.NoError(t, err)
	forged, err := other.Encode("serial-a", 500)
	require.NoError(t, err)

	_, err = f.svc.Validate(context.Background(), forged.Payload)
	assert.ErrorIs(t, err, credential.ErrInvalidFormat)
}

func TestValidateUnknownSerial(t *testing.T) {
	f := newLifecycleFixture(t)
	cred, err := f.codec.Encode("ghost-serial", 999)
	require.NoError(t, err)

	_, err = f.svc.Validate(context.Background(), cred.Payload)
	assert.ErrorIs(t, err, ErrCredentialNotRecognized)
}

func TestValidateUnpaidOrder(t *testing.T) {
	f := newLifecycleFixture(t)
	wire := f.seedTicket(t, 1, "serial-a", 500, model.OrderStatusPending)

	_, err := f.svc.Validate(context.Background(), wire)
	assert.ErrorIs(t, err, ErrOrderNotPaid)

	// The unit must remain ACTIVE so it admits once the order is paid.
	u, err := f.gate.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusActive, u.Status)
}

func TestValidateRefundedUnit(t *testing.T) {
	f := newLifecycleFixture(t)
	wire := f.seedTicket(t, 1, "serial-a", 500, model.OrderStatusPaid)
	f.gate.setStatus(1, model.PurchaseStatusRefunded)

	_, err := f.svc.Validate(context.Background(), wire)
	assert.ErrorIs(t, err, repository.ErrAlreadyUsed)
}

func TestTransferReassignsAndKeepsCredentialWorking(t *testing.T) {
	f := newLifecycleFixture(t)
	wire := f.seedTicket(t, 1, "serial-a", 500, model.OrderStatusPaid)
	f.users.byEmail["bo@example.com"] = model.User{ID: 11, Email: "bo@example.com"}

	err := f.svc.Transfer(context.Background(), 1, 9, "bo@example.com")
	require.NoError(t, err)

	u, err := f.gate.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), u.UserID)
	assert.Equal(t, model.PurchaseStatusActive, u.Status)

	// The original credential still admits under the new owner.
	res, err := f.svc.Validate(context.Background(), wire)
	require.NoError(t, err)
	assert.Equal(t, "serial-a", res.TicketSerial)

	require.Len(t, f.publisher.notifications, 1)
	assert.Equal(t, q.NotificationTicketTransferred, f.publisher.notifications[0].Kind)
	assert.Equal(t, uint64(11), f.publisher.notifications[0].UserID)
}

func TestTransferOnlyByOwner(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedTicket(t, 1, "serial-a", 500, model.OrderStatusPaid)
	f.users.byEmail["bo@example.com"] = model.User{ID: 11}

	err := f.svc.Transfer(context.Background(), 1, 12, "bo@example.com")
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestTransferUsedTicketRejected(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedTicket(t, 1, "serial-a", 500, model.OrderStatusPaid)
	f.gate.setStatus(1, model.PurchaseStatusUsed)
	f.users.byEmail["bo@example.com"] = model.User{ID: 11}

	err := f.svc.Transfer(context.Background(), 1, 9, "bo@example.com")
	assert.ErrorIs(t, err, ErrNotTransferable)
}

func TestTransferToSelfRejected(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedTicket(t, 1, "serial-a", 500, model.OrderStatusPaid)
	f.users.byEmail["me@example.com"] = model.User{ID: 9, Email: "me@example.com"}

	err := f.svc.Transfer(context.Background(), 1, 9, "me@example.com")
	assert.ErrorIs(t, err, ErrSelfTransfer)
}

func TestTransferUnknownRecipient(t *testing.T) {
	f := newLifecycleFixture(t)
	f.seedTicket(t, 1, "serial-a", 500, model.OrderStatusPaid)

	err := f.svc.Transfer(context.Background(), 1, 9, "nobody@example.com")
	assert.ErrorIs(t, err, ErrRecipientNotFound)
}

func refundOrderFixture(t *testing.T, orderStatus string) (*lifecycleFixture, uint64) {
	t.Helper()
	f := newLifecycleFixture(t)
	order := &model.Order{Reference: "ref", UserID: 9, EventID: 3, Status: orderStatus, TotalAmountCents: 10000}
	require.NoError(t, f.orders.CreateTx(context.Background(), nil, order))
	require.NoError(t, f.orders.CreateItemTx(context.Background(), nil, &model.OrderItem{
		OrderID: order.ID, CategoryID: 7, Quantity: 2, PriceAtTimeCents: 5000,
	}))
	f.gate.add(model.TicketPurchase{ID: 1, Serial: "s1", UserID: 9, OrderID: order.ID, CategoryID: 7, EventID: 3, Status: model.PurchaseStatusActive}, orderStatus)
	f.gate.add(model.TicketPurchase{ID: 2, Serial: "s2", UserID: 9, OrderID: order.ID, CategoryID: 7, EventID: 3, Status: model.PurchaseStatusActive}, orderStatus)
	return f, order.ID
}

func TestRefundWholeOrder(t *testing.T) {
	f, orderID := refundOrderFixture(t, model.OrderStatusPaid)

	err := f.svc.Refund(context.Background(), orderID)
	require.NoError(t, err)

	for _, id := range []uint64{1, 2} {
		u, err := f.gate.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.PurchaseStatusRefunded, u.Status)
	}
	// Both units return to the category pool.
	assert.Equal(t, uint32(2), f.categories.released)
	assert.Equal(t, [2]string{model.OrderStatusPaid, model.OrderStatusRefunded}, f.orders.statuses[orderID])

	require.Len(t, f.publisher.notifications, 1)
	assert.Equal(t, q.NotificationOrderRefunded, f.publisher.notifications[0].Kind)
}

func TestRefundRejectsPartiallyUsedOrder(t *testing.T) {
	f, orderID := refundOrderFixture(t, model.OrderStatusPaid)
	f.gate.setStatus(1, model.PurchaseStatusUsed)

	err := f.svc.Refund(context.Background(), orderID)
	assert.ErrorIs(t, err, ErrPartiallyUsed)

	// Nothing changed: the untouched unit stays ACTIVE, no inventory
	// release, order status intact.
	u, err := f.gate.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusActive, u.Status)
	assert.Zero(t, f.categories.released)
}

func TestRefundRequiresPaidOrder(t *testing.T) {
	f, orderID := refundOrderFixture(t, model.OrderStatusPending)

	err := f.svc.Refund(context.Background(), orderID)
	assert.ErrorIs(t, err, ErrNotRefundable)
}

func TestRefundUnknownOrder(t *testing.T) {
	f := newLifecycleFixture(t)

	err := f.svc.Refund(context.Background(), 404)
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

// Eight gates scanning the same credential at once must admit exactly
// one of them; every other scan reports a re-entry attempt.
func TestConcurrentScansAdmitExactlyOnce(t *testing.T) {
	f := newLifecycleFixture(t)
	wire := f.seedTicket(t, 1, "serial-a", 500, model.OrderStatusPaid)

	const gates = 8
	results := make([]error, gates)
	var wg sync.WaitGroup
	for i := 0; i < gates; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Validate(context.Background(), wire)
		}(i)
	}
	wg.Wait()

	var admitted, reentry int
	for _, err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, repository.ErrAlreadyUsed):
			reentry++
		default:
			t.Fatalf("unexpected validation error: %v", err)
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, gates-1, reentry)

	u, err := f.gate.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseStatusUsed, u.Status)
}
