package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
)

func newTestOrder(customerID int64, orderNo string) *domain.Order {
	return &domain.Order{
		OrderNo:       orderNo,
		OrderDate:     time.Now(),
		CustomerID:    customerID,
		AmountMinor:   300,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Status:        domain.OrderStatusPending,
		AddressID:     7,
		Items: []domain.OrderItem{
			{ProductID: 11, Qty: 2, PriceMinor: 200, Status: domain.OrderStatusPending, IsActive: true},
			{ProductID: 12, Qty: 1, PriceMinor: 100, Status: domain.OrderStatusPending, IsActive: true},
		},
	}
}

func TestOrderRepository_CreateAssignsIDs(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	order := newTestOrder(1, "1700000000000000001")
	require.NoError(t, repo.Create(ctx, order))
	require.NotZero(t, order.ID)
	for _, item := range order.Items {
		require.NotZero(t, item.ID)
		require.Equal(t, order.ID, item.OrderID)
	}

	got, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.OrderNo, got.OrderNo)
	require.Len(t, got.Items, 2)
}

func TestOrderRepository_GetNotFound(t *testing.T) {
	repo := NewOrderRepository()

	_, err := repo.Get(context.Background(), 999)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_GetReturnsCopy(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	order := newTestOrder(1, "copy-check")
	require.NoError(t, repo.Create(ctx, order))

	first, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	first.Items[0].DeliveredQty = 99
	first.PaidMinor = 500

	second, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Zero(t, second.Items[0].DeliveredQty)
	require.Zero(t, second.PaidMinor)
}

func TestOrderRepository_ListByCustomerNewestFirst(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	older := newTestOrder(5, "one")
	older.OrderDate = time.Now().Add(-time.Hour)
	newer := newTestOrder(5, "two")
	other := newTestOrder(6, "three")

	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))
	require.NoError(t, repo.Create(ctx, other))

	got, err := repo.ListByCustomer(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "two", got[0].OrderNo)
	require.Equal(t, "one", got[1].OrderNo)
}

func TestOrderRepository_ListPaginationAndSearch(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	base := time.Now()
	for i, no := range []string{"alpha-1", "alpha-2", "beta-1"} {
		order := newTestOrder(1, no)
		order.OrderDate = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, order))
	}

	page, total, err := repo.List(ctx, domain.ListFilter{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	require.Equal(t, "beta-1", page[0].OrderNo)

	page, total, err = repo.List(ctx, domain.ListFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, page, 1)

	page, total, err = repo.List(ctx, domain.ListFilter{Page: 1, Limit: 10, Search: "ALPHA"})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, page, 2)
}

func TestOrderRepository_UpdateLockedBumpsVersion(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	order := newTestOrder(1, "v")
	require.NoError(t, repo.Create(ctx, order))

	updated, err := repo.UpdateLocked(ctx, order.ID, func(o *domain.Order) error {
		o.Status = domain.OrderStatusConfirmed
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, updated.Status)
	require.Equal(t, order.Version+1, updated.Version)

	// Изменение только позиции не трогает версию строки заказа.
	updated, err = repo.UpdateLocked(ctx, order.ID, func(o *domain.Order) error {
		o.Items[0].DeliveredQty = 1
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, order.Version+1, updated.Version)
}

func TestOrderRepository_UpdateLockedRollsBackOnError(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	order := newTestOrder(1, "rb")
	require.NoError(t, repo.Create(ctx, order))

	_, err := repo.UpdateLocked(ctx, order.ID, func(o *domain.Order) error {
		o.Status = domain.OrderStatusDelivered
		return domain.ErrPaidAmountInvalid
	})
	require.ErrorIs(t, err, domain.ErrPaidAmountInvalid)

	got, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, got.Status)
}

func TestOrderRepository_StatusCounts(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusPending, domain.OrderStatusPending, domain.OrderStatusDelivered,
	} {
		order := newTestOrder(1, "sc")
		order.Status = status
		require.NoError(t, repo.Create(ctx, order))
	}

	counts, err := repo.StatusCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), counts[domain.OrderStatusPending])
	require.Equal(t, int64(1), counts[domain.OrderStatusDelivered])
}

func TestOrderRepository_PendingProducts(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	pending := newTestOrder(1, "p1")
	pending.Items = []domain.OrderItem{
		{ProductID: 11, Qty: 5, DeliveredQty: 2, PriceMinor: 100, Status: domain.OrderStatusPending, IsActive: true},
		{ProductID: 12, Qty: 3, PriceMinor: 100, Status: domain.OrderStatusPending, IsActive: true},
		{ProductID: 13, Qty: 2, DeliveredQty: 2, PriceMinor: 100, Status: domain.OrderStatusDelivered, IsActive: true},
		{ProductID: 14, Qty: 2, PriceMinor: 0, Status: domain.OrderStatusPending, IsActive: false},
	}
	require.NoError(t, repo.Create(ctx, pending))

	another := newTestOrder(2, "p2")
	another.Status = domain.OrderStatusPartiallyDelivered
	another.Items = []domain.OrderItem{
		{ProductID: 11, Qty: 4, DeliveredQty: 1, PriceMinor: 100, Status: domain.OrderStatusPending, IsActive: true},
	}
	require.NoError(t, repo.Create(ctx, another))

	// Заказы в финальном статусе в выборку не попадают.
	done := newTestOrder(3, "p3")
	done.Status = domain.OrderStatusDelivered
	require.NoError(t, repo.Create(ctx, done))

	got, err := repo.PendingProducts(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(11), got[0].ProductID)
	require.Equal(t, int64(6), got[0].RemainingQty)
	require.Equal(t, int64(2), got[0].TotalOrders)
	require.Equal(t, int64(12), got[1].ProductID)
	require.Equal(t, int64(3), got[1].RemainingQty)
}
