package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/nutshop/internal/cache"
	"github.com/vladislavdragonenkov/nutshop/internal/domain"
	"github.com/vladislavdragonenkov/nutshop/internal/service/order"
	"github.com/vladislavdragonenkov/nutshop/internal/service/outbox"
	"github.com/vladislavdragonenkov/nutshop/internal/storage/memory"
)

// capturingPublisher собирает опубликованные события вместо брокера.
type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *capturingPublisher) Publish(msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return nil
}

func (p *capturingPublisher) byType(eventType string) []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.OutboxMessage
	for _, e := range p.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// OrderLifecycleTestSuite прогоняет полный жизненный цикл заказа через
// сервисный слой поверх in-memory хранилищ.
type OrderLifecycleTestSuite struct {
	suite.Suite
	service   *order.Service
	repo      domain.OrderRepository
	timeline  domain.TimelineRepository
	outboxRep domain.OutboxRepository
	publisher *capturingPublisher
	worker    *outbox.Worker
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	s.repo = memory.NewOrderRepository()
	s.timeline = memory.NewTimelineRepository()
	s.outboxRep = memory.NewOutboxRepository()
	s.publisher = &capturingPublisher{}

	s.service = order.NewService(
		s.repo,
		s.timeline,
		s.outboxRep,
		cache.NewMemoryCache("shop"),
		nil,
		logger,
	)
	s.worker = outbox.NewWorker(s.outboxRep, s.publisher, outbox.WithRetryBaseDelay(0))
}

func (s *OrderLifecycleTestSuite) createOrder(ctx context.Context) domain.Order {
	created, err := s.service.Create(ctx, order.CreateInput{
		CustomerID: 77,
		AddressID:  5,
		Items: []order.CreateItemInput{
			{ProductID: 101, Qty: 1, PriceMinor: 199900},
			{ProductID: 102, Qty: 2, PriceMinor: 9998},
		},
	})
	require.NoError(s.T(), err)
	return created
}

func (s *OrderLifecycleTestSuite) TestDeliveryLifecycle() {
	ctx := context.Background()

	created := s.createOrder(ctx)
	require.Equal(s.T(), domain.OrderStatusPending, created.Status)
	require.Equal(s.T(), int64(209898), created.AmountMinor)
	require.Equal(s.T(), domain.PaymentStatusUnpaid, created.PaymentStatus)
	require.Len(s.T(), created.Items, 2)

	// Частичная поставка второй позиции.
	updated, err := s.service.UpdateItems(ctx, created.ID, []domain.ItemUpdate{
		{ItemID: created.Items[1].ID, DeliveredQty: ptr(int64(1))},
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusPartiallyDelivered, updated.Status)

	// Полная поставка обеих позиций.
	updated, err = s.service.UpdateItems(ctx, created.ID, []domain.ItemUpdate{
		{ItemID: created.Items[0].ID, DeliveredQty: ptr(int64(1))},
		{ItemID: created.Items[1].ID, DeliveredQty: ptr(int64(2))},
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusDelivered, updated.Status)

	// Timeline фиксирует размещение и смены статуса.
	events, err := s.service.Timeline(ctx, created.ID)
	require.NoError(s.T(), err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	require.Contains(s.T(), types, "OrderPlaced")
	require.Contains(s.T(), types, "OrderItemsUpdated")
	require.Contains(s.T(), types, "OrderStatusChanged")

	// Outbox-воркер публикует накопленные события.
	s.worker.ProcessOnce(ctx)
	require.Len(s.T(), s.publisher.byType(order.EventOrderCreated), 1)
	require.GreaterOrEqual(s.T(), len(s.publisher.byType(order.EventOrderStatusChanged)), 2)

	stats, err := s.outboxRep.Stats()
	require.NoError(s.T(), err)
	require.Zero(s.T(), stats.PendingCount)
}

func (s *OrderLifecycleTestSuite) TestPaymentReconciliation() {
	ctx := context.Background()
	created := s.createOrder(ctx)

	// Первая доплата без идентификатора платежа: синтезируется токен.
	snap, err := s.service.UpdatePayment(ctx, order.PaymentInput{
		OrderID:     created.ID,
		StatusLabel: "Partially Paid",
		PaidDelta:   ptr(int64(100000)),
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), "Partially Paid", snap.StatusLabel)
	require.Equal(s.T(), int64(100000), snap.PaidMinor)
	require.Equal(s.T(), int64(109898), snap.RemainingMinor)
	require.NotEmpty(s.T(), snap.TransactionID)
	require.True(s.T(), snap.Paid)

	// Доплата сверх остатка ограничивается суммой заказа и
	// автоматически повышает статус до Paid.
	snap, err = s.service.UpdatePayment(ctx, order.PaymentInput{
		OrderID:       created.ID,
		StatusLabel:   "Partially Paid",
		PaidDelta:     ptr(int64(500000)),
		TransactionID: "TX-FINAL",
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), "Paid", snap.StatusLabel)
	require.Equal(s.T(), created.AmountMinor, snap.PaidMinor)
	require.Zero(s.T(), snap.RemainingMinor)
	require.Equal(s.T(), "TX-FINAL", snap.TransactionID)

	// Сброс в Unpaid очищает оплату и идентификатор.
	snap, err = s.service.UpdatePayment(ctx, order.PaymentInput{
		OrderID:     created.ID,
		StatusLabel: "Unpaid",
	})
	require.NoError(s.T(), err)
	require.Zero(s.T(), snap.PaidMinor)
	require.Empty(s.T(), snap.TransactionID)
	require.False(s.T(), snap.Paid)

	s.worker.ProcessOnce(ctx)
	require.Len(s.T(), s.publisher.byType(order.EventOrderPaymentUpdated), 3)

	// Конверт события содержит идентификатор заказа.
	payments := s.publisher.byType(order.EventOrderPaymentUpdated)
	var payload map[string]any
	require.NoError(s.T(), json.Unmarshal(payments[0].Payload, &payload))
	require.EqualValues(s.T(), created.ID, payload["orderId"])
}

func (s *OrderLifecycleTestSuite) TestDashboardAggregates() {
	ctx := context.Background()

	first := s.createOrder(ctx)
	s.createOrder(ctx)

	_, err := s.service.OverrideStatus(ctx, first.ID, domain.OrderStatusConfirmed)
	require.NoError(s.T(), err)

	counts, err := s.service.StatusCounts(ctx)
	require.NoError(s.T(), err)
	require.EqualValues(s.T(), 1, counts[domain.OrderStatusPending])
	require.EqualValues(s.T(), 1, counts[domain.OrderStatusConfirmed])
	require.Zero(s.T(), counts[domain.OrderStatusDelivered])

	products, err := s.service.PendingProducts(ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), products, 2)
	// Позиции сортируются по убыванию недопоставленного количества.
	require.EqualValues(s.T(), 102, products[0].ProductID)
	require.EqualValues(s.T(), 4, products[0].RemainingQty)
	require.EqualValues(s.T(), 2, products[0].TotalOrders)
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}

func ptr[T any](v T) *T { return &v }
