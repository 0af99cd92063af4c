// Package order содержит прикладную логику жизненного цикла заказов:
// создание, исполнение позиций, агрегацию статусов и сверку оплаты.
package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/nutshop/internal/auth"
	"github.com/vladislavdragonenkov/nutshop/internal/cache"
	"github.com/vladislavdragonenkov/nutshop/internal/domain"
	"github.com/vladislavdragonenkov/nutshop/internal/metrics"
)

const (
	EventOrderCreated        = "order.created"
	EventOrderStatusChanged  = "order.status_changed"
	EventOrderPaymentUpdated = "order.payment_updated"

	timelineOrderPlaced    = "OrderPlaced"
	timelineStatusChanged  = "OrderStatusChanged"
	timelineItemsUpdated   = "OrderItemsUpdated"
	timelinePaymentUpdated = "OrderPaymentUpdated"

	dashboardCacheTTL = 30 * time.Second

	cacheOpStatusCounts    = "status-counts"
	cacheOpPendingProducts = "pending-products"
)

// Service реализует операции над заказами поверх доменного репозитория.
type Service struct {
	repo     domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	cache    cache.Cache
	metrics  *metrics.OrderMetrics
	logger   *log.Entry

	now      func() time.Time
	newToken func() string
}

// NewService конструирует сервис заказов. timeline, outbox, cache и metrics
// опциональны: nil отключает соответствующий side-эффект.
func NewService(
	repo domain.OrderRepository,
	timeline domain.TimelineRepository,
	outbox domain.OutboxRepository,
	dashboardCache cache.Cache,
	orderMetrics *metrics.OrderMetrics,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	return &Service{
		repo:     repo,
		timeline: timeline,
		outbox:   outbox,
		cache:    dashboardCache,
		metrics:  orderMetrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: func() string {
			return fmt.Sprintf("MANUAL-%d", time.Now().UnixMilli())
		},
	}
}

// CreateItemInput — позиция создаваемого заказа. PriceMinor — полная
// стоимость строки, зафиксированная на момент оформления.
type CreateItemInput struct {
	ProductID  int64
	Qty        int64
	PriceMinor int64
}

// CreateInput — параметры создания заказа.
type CreateInput struct {
	CustomerID    int64
	AddressID     int64
	TransactionID string
	Items         []CreateItemInput
}

// Create оформляет новый заказ. Сумма заказа считается как сумма стоимостей
// строк и после создания не меняется. Если передан идентификатор платежа,
// заказ сразу помечается полностью оплаченным.
func (s *Service) Create(ctx context.Context, input CreateInput) (domain.Order, error) {
	if input.CustomerID <= 0 {
		return domain.Order{}, domain.ErrCustomerRequired
	}
	if input.AddressID <= 0 {
		return domain.Order{}, domain.ErrAddressRequired
	}
	if len(input.Items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}

	now := s.now()
	items := make([]domain.OrderItem, 0, len(input.Items))
	var amount int64
	for i, item := range input.Items {
		if item.Qty <= 0 {
			return domain.Order{}, fmt.Errorf("item[%d]: %w", i, domain.ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			return domain.Order{}, fmt.Errorf("item[%d]: %w", i, domain.ErrItemPriceInvalid)
		}
		amount += item.PriceMinor
		items = append(items, domain.OrderItem{
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			Status:     domain.OrderStatusPending,
			IsActive:   true,
		})
	}

	order := domain.Order{
		OrderNo:     strconv.FormatInt(now.UnixNano(), 10),
		OrderDate:   now,
		CustomerID:  input.CustomerID,
		AmountMinor: amount,
		Status:      domain.OrderStatusPending,
		AddressID:   input.AddressID,
		Items:       items,
	}

	if input.TransactionID != "" {
		order.PaidMinor = amount
		order.PaymentStatus = domain.PaymentStatusPaid
		order.TransactionID = input.TransactionID
	}

	if err := s.repo.Create(ctx, &order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.metrics.RecordOrderCreated()
	s.appendTimeline(order.ID, timelineOrderPlaced, "", now)
	s.emitEvent(order, EventOrderCreated, map[string]any{
		"orderNo":       order.OrderNo,
		"customerId":    order.CustomerID,
		"amount":        order.AmountMinor,
		"paymentStatus": order.PaymentStatus.Label(),
	})
	s.invalidateDashboard(ctx)

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"order_no": order.OrderNo,
	}).Info("order created")

	return order, nil
}

// Get возвращает заказ. Клиент видит только свои заказы; право Orders
// открывает доступ к любому заказу.
func (s *Service) Get(ctx context.Context, claims auth.Claims, id int64) (domain.Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !claims.Allowed(auth.PermissionOrders) && order.CustomerID != claims.UserID {
		return domain.Order{}, domain.ErrForbidden
	}
	return order, nil
}

// ListByCustomer возвращает заказы клиента, новые первыми.
func (s *Service) ListByCustomer(ctx context.Context, customerID int64) ([]domain.Order, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

// ListAdmin возвращает страницу заказов для админки.
func (s *Service) ListAdmin(ctx context.Context, filter domain.ListFilter) ([]domain.Order, int64, error) {
	return s.repo.List(ctx, filter)
}

// OverrideStatus принудительно выставляет статус заказа, минуя агрегацию
// по позициям. Используется админской операцией смены статуса.
func (s *Service) OverrideStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, domain.ErrOrderStatusInvalid
	}

	var previous domain.OrderStatus
	updated, err := s.repo.UpdateLocked(ctx, orderID, func(o *domain.Order) error {
		previous = o.Status
		o.Status = status
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if previous != updated.Status {
		s.recordStatusChange(ctx, updated, previous)
	}

	return updated, nil
}

// UpdateItems применяет изменения позиций и пересчитывает статус заказа
// из статусов позиций. Изменения с несуществующими идентификаторами
// позиций молча пропускаются.
func (s *Service) UpdateItems(ctx context.Context, orderID int64, updates []domain.ItemUpdate) (domain.Order, error) {
	var previous domain.OrderStatus
	updated, err := s.repo.UpdateLocked(ctx, orderID, func(o *domain.Order) error {
		previous = o.Status

		byID := make(map[int64]*domain.OrderItem, len(o.Items))
		for i := range o.Items {
			byID[o.Items[i].ID] = &o.Items[i]
		}
		for _, u := range updates {
			item, ok := byID[u.ItemID]
			if !ok {
				continue
			}
			item.ApplyUpdate(u)
		}

		o.Status = domain.AggregateStatus(o.Items)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordItemUpdate()
	s.appendTimeline(orderID, timelineItemsUpdated, "", s.now())
	if previous != updated.Status {
		s.recordStatusChange(ctx, updated, previous)
	}

	return updated, nil
}

// PaymentInput — параметры сверки оплаты.
type PaymentInput struct {
	OrderID int64
	// StatusLabel — целевой статус оплаты, строго одна из меток
	// Unpaid, Partially Paid, Paid.
	StatusLabel string
	// AmountProvided выставляется транспортом, если клиент попытался
	// передать новую сумму заказа.
	AmountProvided bool
	// PaidDelta — доплата для Partially Paid.
	PaidDelta *int64
	// TransactionID — идентификатор платежа от клиента, опционально.
	TransactionID string
}

// UpdatePayment выполняет сверку состояния оплаты и возвращает снимок
// после применения.
func (s *Service) UpdatePayment(ctx context.Context, input PaymentInput) (domain.PaymentSnapshot, error) {
	if input.AmountProvided {
		return domain.PaymentSnapshot{}, domain.ErrAmountUpdateUnsupported
	}

	target, err := domain.ParsePaymentStatusLabel(input.StatusLabel)
	if err != nil {
		return domain.PaymentSnapshot{}, err
	}

	var delta int64
	if input.PaidDelta != nil {
		delta = *input.PaidDelta
	} else if target == domain.PaymentStatusPartiallyPaid {
		return domain.PaymentSnapshot{}, domain.ErrPaidAmountInvalid
	}

	var snapshot domain.PaymentSnapshot
	updated, err := s.repo.UpdateLocked(ctx, input.OrderID, func(o *domain.Order) error {
		if err := o.ReconcilePayment(target, delta, input.TransactionID, s.newToken); err != nil {
			return err
		}
		snapshot = o.PaymentSnapshot()
		return nil
	})
	if err != nil {
		return domain.PaymentSnapshot{}, err
	}

	s.metrics.RecordPaymentUpdate(snapshot.StatusLabel)
	s.appendTimeline(updated.ID, timelinePaymentUpdated, snapshot.StatusLabel, s.now())
	s.emitEvent(updated, EventOrderPaymentUpdated, map[string]any{
		"paymentStatus": snapshot.StatusLabel,
		"paidAmount":    snapshot.PaidMinor,
		"remaining":     snapshot.RemainingMinor,
	})

	return snapshot, nil
}

// StatusCounts возвращает количество заказов в каждом статусе. Статусы
// без заказов присутствуют с нулём. Результат кэшируется.
func (s *Service) StatusCounts(ctx context.Context) (map[domain.OrderStatus]int64, error) {
	if cached, ok := s.cachedCounts(ctx); ok {
		return cached, nil
	}

	counts, err := s.repo.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}

	full := make(map[domain.OrderStatus]int64, len(domain.AllOrderStatuses))
	for _, status := range domain.AllOrderStatuses {
		full[status] = counts[status]
	}

	s.storeCounts(ctx, full)
	return full, nil
}

// PendingProducts возвращает сводку недопоставленных товаров по
// незавершённым заказам. Результат кэшируется.
func (s *Service) PendingProducts(ctx context.Context) ([]domain.PendingProduct, error) {
	if s.cache != nil {
		key := s.cache.GenerateKey(cacheOpPendingProducts, "all")
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var products []domain.PendingProduct
			if json.Unmarshal([]byte(raw), &products) == nil {
				return products, nil
			}
		}
	}

	products, err := s.repo.PendingProducts(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(products); err == nil {
			key := s.cache.GenerateKey(cacheOpPendingProducts, "all")
			if err := s.cache.Set(ctx, key, string(raw), dashboardCacheTTL); err != nil {
				s.logger.WithError(err).Warn("cache pending products failed")
			}
		}
	}

	return products, nil
}

// Timeline возвращает историю событий заказа, проверяя его существование.
func (s *Service) Timeline(ctx context.Context, orderID int64) ([]domain.TimelineEvent, error) {
	if _, err := s.repo.Get(ctx, orderID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	return s.timeline.List(orderID)
}

func (s *Service) recordStatusChange(ctx context.Context, order domain.Order, previous domain.OrderStatus) {
	s.metrics.RecordStatusChange(order.Status.String())
	note := fmt.Sprintf("%s -> %s", previous.String(), order.Status.String())
	s.appendTimeline(order.ID, timelineStatusChanged, note, s.now())
	s.emitEvent(order, EventOrderStatusChanged, map[string]any{
		"previousStatus": previous.String(),
		"status":         order.Status.String(),
	})
	s.invalidateDashboard(ctx)
}

func (s *Service) appendTimeline(orderID int64, eventType, note string, occurred time.Time) {
	if s.timeline == nil {
		return
	}
	err := s.timeline.Append(domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Note:     note,
		Occurred: occurred,
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("append timeline event failed")
		return
	}
	s.metrics.RecordTimelineEvent()
}

// emitEvent сериализует событие и кладёт его в outbox. Ошибка публикации
// не прерывает основную операцию.
func (s *Service) emitEvent(order domain.Order, eventType string, payload map[string]any) {
	if s.outbox == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["orderId"] = order.ID
	payload["ts"] = s.now().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		OrderID:   order.ID,
		EventType: eventType,
		Payload:   data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
		return
	}
	s.metrics.RecordOutboxEnqueued()
}

func (s *Service) cachedCounts(ctx context.Context) (map[domain.OrderStatus]int64, bool) {
	if s.cache == nil {
		return nil, false
	}
	key := s.cache.GenerateKey(cacheOpStatusCounts, "all")
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}

	var byCode map[int32]int64
	if err := json.Unmarshal([]byte(raw), &byCode); err != nil {
		return nil, false
	}
	counts := make(map[domain.OrderStatus]int64, len(byCode))
	for code, count := range byCode {
		counts[domain.OrderStatus(code)] = count
	}
	return counts, true
}

func (s *Service) storeCounts(ctx context.Context, counts map[domain.OrderStatus]int64) {
	if s.cache == nil {
		return
	}
	byCode := make(map[int32]int64, len(counts))
	for status, count := range counts {
		byCode[int32(status)] = count
	}
	raw, err := json.Marshal(byCode)
	if err != nil {
		return
	}
	key := s.cache.GenerateKey(cacheOpStatusCounts, "all")
	if err := s.cache.Set(ctx, key, string(raw), dashboardCacheTTL); err != nil {
		s.logger.WithError(err).Warn("cache status counts failed")
	}
}

// invalidateDashboard сбрасывает кэш админских сводок после мутаций.
func (s *Service) invalidateDashboard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	err := s.cache.Delete(ctx,
		s.cache.GenerateKey(cacheOpStatusCounts, "all"),
		s.cache.GenerateKey(cacheOpPendingProducts, "all"),
	)
	if err != nil {
		s.logger.WithError(err).Warn("invalidate dashboard cache failed")
	}
}
