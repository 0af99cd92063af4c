package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/nutshop/internal/auth"
	"github.com/vladislavdragonenkov/nutshop/internal/cache"
	"github.com/vladislavdragonenkov/nutshop/internal/domain"
	"github.com/vladislavdragonenkov/nutshop/internal/storage/memory"
)

type serviceFixture struct {
	svc      *Service
	repo     domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	repo := memory.NewOrderRepository()
	timeline := memory.NewTimelineRepository()
	outbox := memory.NewOutboxRepository()

	svc := NewService(repo, timeline, outbox, cache.NewMemoryCache("test"), nil, nil)
	svc.now = func() time.Time {
		return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	}
	svc.newToken = func() string { return "MANUAL-1700000000000" }

	return &serviceFixture{svc: svc, repo: repo, timeline: timeline, outbox: outbox}
}

func defaultCreateInput() CreateInput {
	return CreateInput{
		CustomerID: 10,
		AddressID:  4,
		Items: []CreateItemInput{
			{ProductID: 1, Qty: 2, PriceMinor: 100},
			{ProductID: 2, Qty: 1, PriceMinor: 50},
		},
	}
}

func TestServiceCreate_AmountIsSumOfLinePrices(t *testing.T) {
	f := newServiceFixture(t)

	order, err := f.svc.Create(context.Background(), defaultCreateInput())
	require.NoError(t, err)
	require.NotZero(t, order.ID)
	require.NotEmpty(t, order.OrderNo)
	// Сумма строк, не qty*price.
	require.Equal(t, int64(150), order.AmountMinor)
	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.Equal(t, domain.PaymentStatusUnpaid, order.PaymentStatus)
	require.Empty(t, f.orderInvariantErrors(t, order.ID))

	events, err := f.timeline.List(order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "OrderPlaced", events[0].Type)

	pending, err := f.outbox.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, EventOrderCreated, pending[0].EventType)
}

func (f *serviceFixture) orderInvariantErrors(t *testing.T, id int64) []error {
	t.Helper()
	order, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return order.ValidateInvariants()
}

func TestServiceCreate_WithTransactionMarksPaid(t *testing.T) {
	f := newServiceFixture(t)

	input := defaultCreateInput()
	input.TransactionID = "tx-gateway-1"

	order, err := f.svc.Create(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
	require.Equal(t, order.AmountMinor, order.PaidMinor)
	require.Equal(t, "tx-gateway-1", order.TransactionID)
}

func TestServiceCreate_Validation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(*CreateInput)
		wantErr error
	}{
		{"no customer", func(in *CreateInput) { in.CustomerID = 0 }, domain.ErrCustomerRequired},
		{"no address", func(in *CreateInput) { in.AddressID = 0 }, domain.ErrAddressRequired},
		{"no items", func(in *CreateInput) { in.Items = nil }, domain.ErrItemsRequired},
		{"zero qty", func(in *CreateInput) { in.Items[0].Qty = 0 }, domain.ErrItemQtyInvalid},
		{"negative price", func(in *CreateInput) { in.Items[1].PriceMinor = -1 }, domain.ErrItemPriceInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := defaultCreateInput()
			tc.mutate(&input)
			_, err := f.svc.Create(ctx, input)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestServiceGet_AccessControl(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, defaultCreateInput())
	require.NoError(t, err)

	owner := auth.Claims{UserID: 10}
	got, err := f.svc.Get(ctx, owner, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ID, got.ID)

	admin := auth.Claims{UserID: 99, Permissions: []string{auth.PermissionOrders}}
	_, err = f.svc.Get(ctx, admin, order.ID)
	require.NoError(t, err)

	stranger := auth.Claims{UserID: 11}
	_, err = f.svc.Get(ctx, stranger, order.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Get(ctx, admin, order.ID+100)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestServiceUpdateItems_AggregatesStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, defaultCreateInput())
	require.NoError(t, err)

	// Полная поставка первой позиции делает заказ частично доставленным.
	qty := int64(2)
	updated, err := f.svc.UpdateItems(ctx, order.ID, []domain.ItemUpdate{
		{ItemID: order.Items[0].ID, DeliveredQty: &qty},
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPartiallyDelivered, updated.Status)
	require.Equal(t, domain.OrderStatusDelivered, updated.Items[0].Status)

	// Поставка оставшейся позиции завершает заказ.
	one := int64(1)
	updated, err = f.svc.UpdateItems(ctx, order.ID, []domain.ItemUpdate{
		{ItemID: order.Items[1].ID, DeliveredQty: &one},
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusDelivered, updated.Status)

	events, err := f.timeline.List(order.ID)
	require.NoError(t, err)
	var statusChanges int
	for _, e := range events {
		if e.Type == "OrderStatusChanged" {
			statusChanges++
		}
	}
	require.Equal(t, 2, statusChanges)
}

func TestServiceUpdateItems_UnknownItemIgnored(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, defaultCreateInput())
	require.NoError(t, err)

	one := int64(1)
	updated, err := f.svc.UpdateItems(ctx, order.ID, []domain.ItemUpdate{
		{ItemID: 9999, DeliveredQty: &one},
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, updated.Status)
}

func TestServiceOverrideStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, defaultCreateInput())
	require.NoError(t, err)

	updated, err := f.svc.OverrideStatus(ctx, order.ID, domain.OrderStatusConfirmed)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, updated.Status)

	_, err = f.svc.OverrideStatus(ctx, order.ID, domain.OrderStatus(42))
	require.ErrorIs(t, err, domain.ErrOrderStatusInvalid)

	_, err = f.svc.OverrideStatus(ctx, order.ID+100, domain.OrderStatusConfirmed)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestServiceUpdatePayment_PartialFlow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, defaultCreateInput())
	require.NoError(t, err)

	delta := int64(60)
	snapshot, err := f.svc.UpdatePayment(ctx, PaymentInput{
		OrderID:     order.ID,
		StatusLabel: "Partially Paid",
		PaidDelta:   &delta,
	})
	require.NoError(t, err)
	require.Equal(t, int64(60), snapshot.PaidMinor)
	require.Equal(t, int64(90), snapshot.RemainingMinor)
	require.Equal(t, "Partially Paid", snapshot.StatusLabel)
	// Токен синтезируется при оплате без идентификатора платежа.
	require.Equal(t, "MANUAL-1700000000000", snapshot.TransactionID)

	// Переплата зажимается суммой заказа и повышает статус до Paid.
	big := int64(500)
	snapshot, err = f.svc.UpdatePayment(ctx, PaymentInput{
		OrderID:     order.ID,
		StatusLabel: "Partially Paid",
		PaidDelta:   &big,
	})
	require.NoError(t, err)
	require.Equal(t, int64(150), snapshot.PaidMinor)
	require.Zero(t, snapshot.RemainingMinor)
	require.Equal(t, "Paid", snapshot.StatusLabel)
	require.True(t, snapshot.Paid)

	require.Empty(t, f.orderInvariantErrors(t, order.ID))
}

func TestServiceUpdatePayment_Validation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, defaultCreateInput())
	require.NoError(t, err)

	_, err = f.svc.UpdatePayment(ctx, PaymentInput{
		OrderID:     order.ID,
		StatusLabel: "paid",
	})
	require.ErrorIs(t, err, domain.ErrPaymentStatusInvalid)

	_, err = f.svc.UpdatePayment(ctx, PaymentInput{
		OrderID:        order.ID,
		StatusLabel:    "Paid",
		AmountProvided: true,
	})
	require.ErrorIs(t, err, domain.ErrAmountUpdateUnsupported)

	// Partially Paid без дельты или с неположительной дельтой отклоняется.
	_, err = f.svc.UpdatePayment(ctx, PaymentInput{
		OrderID:     order.ID,
		StatusLabel: "Partially Paid",
	})
	require.ErrorIs(t, err, domain.ErrPaidAmountInvalid)

	zero := int64(0)
	_, err = f.svc.UpdatePayment(ctx, PaymentInput{
		OrderID:     order.ID,
		StatusLabel: "Partially Paid",
		PaidDelta:   &zero,
	})
	require.ErrorIs(t, err, domain.ErrPaidAmountInvalid)

	_, err = f.svc.UpdatePayment(ctx, PaymentInput{
		OrderID:     order.ID + 100,
		StatusLabel: "Paid",
	})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestServiceUpdatePayment_ResetToUnpaid(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	input := defaultCreateInput()
	input.TransactionID = "tx-1"
	order, err := f.svc.Create(ctx, input)
	require.NoError(t, err)

	snapshot, err := f.svc.UpdatePayment(ctx, PaymentInput{
		OrderID:     order.ID,
		StatusLabel: "Unpaid",
	})
	require.NoError(t, err)
	require.Zero(t, snapshot.PaidMinor)
	require.Equal(t, "Unpaid", snapshot.StatusLabel)
	require.Empty(t, snapshot.TransactionID)
	require.Empty(t, f.orderInvariantErrors(t, order.ID))
}

func TestServiceStatusCounts_ZeroFilled(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, defaultCreateInput())
	require.NoError(t, err)

	counts, err := f.svc.StatusCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, len(domain.AllOrderStatuses))
	require.Equal(t, int64(1), counts[domain.OrderStatusPending])
	require.Zero(t, counts[domain.OrderStatusDelivered])

	// Второй вызов обслуживается из кэша и совпадает с первым.
	cached, err := f.svc.StatusCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, counts, cached)
}

func TestServiceStatusCounts_CacheInvalidatedOnStatusChange(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, defaultCreateInput())
	require.NoError(t, err)

	counts, err := f.svc.StatusCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts[domain.OrderStatusPending])

	_, err = f.svc.OverrideStatus(ctx, order.ID, domain.OrderStatusConfirmed)
	require.NoError(t, err)

	counts, err = f.svc.StatusCounts(ctx)
	require.NoError(t, err)
	require.Zero(t, counts[domain.OrderStatusPending])
	require.Equal(t, int64(1), counts[domain.OrderStatusConfirmed])
}

func TestServicePendingProducts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, defaultCreateInput())
	require.NoError(t, err)

	products, err := f.svc.PendingProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)

	one := int64(1)
	_, err = f.svc.UpdateItems(ctx, order.ID, []domain.ItemUpdate{
		{ItemID: order.Items[1].ID, DeliveredQty: &one},
	})
	require.NoError(t, err)

	products, err = f.svc.PendingProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, int64(1), products[0].ProductID)
	require.Equal(t, int64(2), products[0].RemainingQty)
}

func TestServiceTimeline(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, defaultCreateInput())
	require.NoError(t, err)

	events, err := f.svc.Timeline(ctx, order.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	_, err = f.svc.Timeline(ctx, order.ID+100)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

// Outbox работает по принципу best-effort: отказ Enqueue логируется и не
// откатывает уже зафиксированное изменение заказа.
type brokenOutbox struct {
	domain.OutboxRepository
}

func (brokenOutbox) Enqueue(domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errors.New("outbox storage unavailable")
}

func TestServiceOutboxFailureDoesNotFailOperation(t *testing.T) {
	repo := memory.NewOrderRepository()
	timeline := memory.NewTimelineRepository()
	svc := NewService(repo, timeline, brokenOutbox{}, cache.NewMemoryCache("test"), nil, nil)

	ctx := context.Background()
	order, err := svc.Create(ctx, defaultCreateInput())
	require.NoError(t, err)
	require.NotZero(t, order.ID)

	updated, err := svc.OverrideStatus(ctx, order.ID, domain.OrderStatusConfirmed)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, updated.Status)

	// Состояние заказа сохранено несмотря на недоступный outbox.
	stored, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, stored.Status)
}
