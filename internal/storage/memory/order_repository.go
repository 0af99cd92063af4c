package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository для
// локальной разработки и тестов. Мьютекс даёт те же гарантии
// атомарности «прочитать — изменить — записать», что и блокировка
// строки в PostgreSQL.
type orderRepositoryInMemory struct {
	mu         sync.RWMutex
	orders     map[int64]domain.Order
	nextID     int64
	nextItemID int64
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		orders:     make(map[int64]domain.Order),
		nextID:     1,
		nextItemID: 1,
	}
}

// Create сохраняет заказ вместе с позициями и проставляет идентификаторы.
func (r *orderRepositoryInMemory) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order.ID = r.nextID
	r.nextID++
	for i := range order.Items {
		order.Items[i].ID = r.nextItemID
		order.Items[i].OrderID = order.ID
		r.nextItemID++
	}

	// Храним копию, чтобы избежать мутаций извне.
	r.orders[order.ID] = cloneOrder(*order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(_ context.Context, id int64) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByCustomer возвращает заказы клиента, новые первыми.
func (r *orderRepositoryInMemory) ListByCustomer(_ context.Context, customerID int64) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.orders {
		if order.CustomerID != customerID {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	sortNewestFirst(result)

	return result, nil
}

// List возвращает страницу заказов под фильтром и общее число записей.
func (r *orderRepositoryInMemory) List(_ context.Context, filter domain.ListFilter) ([]domain.Order, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Order, 0, len(r.orders))
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, order := range r.orders {
		if search != "" && !strings.Contains(strings.ToLower(order.OrderNo), search) {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}
	sortNewestFirst(matched)

	total := int64(len(matched))

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}

	offset := (page - 1) * limit
	if offset >= len(matched) {
		return []domain.Order{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// UpdateLocked выполняет цикл «прочитать — изменить — записать» под мьютексом.
func (r *orderRepositoryInMemory) UpdateLocked(_ context.Context, id int64, fn func(*domain.Order) error) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	updated := cloneOrder(current)
	if err := fn(&updated); err != nil {
		return domain.Order{}, err
	}

	if orderRowChanged(current, updated) {
		updated.Version = current.Version + 1
	}
	r.orders[id] = cloneOrder(updated)

	return updated, nil
}

// StatusCounts возвращает количество заказов по каждому статусу.
func (r *orderRepositoryInMemory) StatusCounts(_ context.Context) (map[domain.OrderStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.OrderStatus]int64)
	for _, order := range r.orders {
		counts[order.Status]++
	}
	return counts, nil
}

// PendingProducts агрегирует недопоставленные количества по товарам.
func (r *orderRepositoryInMemory) PendingProducts(_ context.Context) ([]domain.PendingProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pendingStatuses := make(map[domain.OrderStatus]struct{}, len(domain.PendingOrderStatuses))
	for _, s := range domain.PendingOrderStatuses {
		pendingStatuses[s] = struct{}{}
	}

	type bucket struct {
		remaining int64
		orders    map[int64]struct{}
	}
	buckets := make(map[int64]*bucket)

	for _, order := range r.orders {
		if _, ok := pendingStatuses[order.Status]; !ok {
			continue
		}
		for _, item := range order.Items {
			if !item.IsActive {
				continue
			}
			remaining := item.Qty - item.DeliveredQty
			if remaining <= 0 {
				continue
			}
			b, ok := buckets[item.ProductID]
			if !ok {
				b = &bucket{orders: make(map[int64]struct{})}
				buckets[item.ProductID] = b
			}
			b.remaining += remaining
			b.orders[order.ID] = struct{}{}
		}
	}

	result := make([]domain.PendingProduct, 0, len(buckets))
	for productID, b := range buckets {
		result = append(result, domain.PendingProduct{
			ProductID:    productID,
			RemainingQty: b.remaining,
			TotalOrders:  int64(len(b.orders)),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RemainingQty != result[j].RemainingQty {
			return result[i].RemainingQty > result[j].RemainingQty
		}
		return result[i].ProductID < result[j].ProductID
	})

	return result, nil
}

func sortNewestFirst(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].OrderDate.Equal(orders[j].OrderDate) {
			return orders[i].OrderDate.After(orders[j].OrderDate)
		}
		return orders[i].ID > orders[j].ID
	})
}

// orderRowChanged проверяет, изменились ли поля строки заказа
// (позиции сравниваются отдельно и на версию не влияют).
func orderRowChanged(before, after domain.Order) bool {
	return before.Status != after.Status ||
		before.PaidMinor != after.PaidMinor ||
		before.PaymentStatus != after.PaymentStatus ||
		before.TransactionID != after.TransactionID ||
		before.AmountMinor != after.AmountMinor ||
		before.AddressID != after.AddressID
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = make([]domain.OrderItem, len(src.Items))
	copy(dst.Items, src.Items)
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
