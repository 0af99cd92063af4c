package domain

import "context"

// ListFilter задаёт параметры админской выборки заказов.
type ListFilter struct {
	Page  int
	Limit int
	// Search — подстрочный поиск по OrderNo.
	Search string
}

// PendingProduct — агрегат недопоставленного количества по товару.
type PendingProduct struct {
	ProductID    int64
	RemainingQty int64
	TotalOrders  int64
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create атомарно сохраняет заказ вместе с позициями и проставляет
	// им идентификаторы. Либо видны все строки, либо ни одной.
	Create(ctx context.Context, order *Order) error
	// Get возвращает заказ с позициями (по возрастанию id позиций)
	// или ErrOrderNotFound.
	Get(ctx context.Context, id int64) (Order, error)
	// ListByCustomer возвращает заказы клиента, новые первыми.
	ListByCustomer(ctx context.Context, customerID int64) ([]Order, error)
	// List возвращает страницу заказов и общее число записей под фильтром.
	List(ctx context.Context, filter ListFilter) ([]Order, int64, error)
	// UpdateLocked выполняет цикл «прочитать — изменить — записать» под
	// блокировкой строки заказа: загружает заказ с позициями, передаёт
	// его в fn и сохраняет только изменившиеся строки. Версия заказа
	// инкрементируется при записи его строки. Ошибка из fn откатывает
	// всю транзакцию.
	UpdateLocked(ctx context.Context, id int64, fn func(*Order) error) (Order, error)
	// StatusCounts возвращает количество заказов по каждому статусу.
	// Статусы без заказов в карте отсутствуют.
	StatusCounts(ctx context.Context) (map[OrderStatus]int64, error)
	// PendingProducts возвращает по каждому товару суммарное
	// недопоставленное количество Σ(Qty − DeliveredQty) по активным
	// позициям заказов в нетерминальных статусах
	// {Pending, Confirmed, Packaging, PartiallyDelivered}.
	PendingProducts(ctx context.Context) ([]PendingProduct, error)
}

// PendingOrderStatuses — нетерминальные статусы для сводки недопоставок.
var PendingOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPackaging,
	OrderStatusPartiallyDelivered,
}
