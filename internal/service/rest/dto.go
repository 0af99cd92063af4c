package rest

import (
	"time"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
	"github.com/vladislavdragonenkov/nutshop/internal/service/order"
)

// createOrderRequest — тело POST /api/orders.
type createOrderRequest struct {
	AddressID     int64                    `json:"addressId"`
	TransactionID string                   `json:"transactionId"`
	Items         []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ProductID int64 `json:"productId"`
	Qty       int64 `json:"qty"`
	// Price — стоимость строки в минимальных денежных единицах.
	Price int64 `json:"price"`
}

func (r createOrderRequest) toInput(customerID int64) order.CreateInput {
	items := make([]order.CreateItemInput, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, order.CreateItemInput{
			ProductID:  it.ProductID,
			Qty:        it.Qty,
			PriceMinor: it.Price,
		})
	}
	return order.CreateInput{
		CustomerID:    customerID,
		AddressID:     r.AddressID,
		TransactionID: r.TransactionID,
		Items:         items,
	}
}

// createOrderResponse повторяет ответ размещения заказа: клиентам нужны
// только идентификатор и номер.
type createOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID int64  `json:"orderId"`
	OrderNo string `json:"orderNo"`
}

// updateStatusRequest — тело POST /api/admin/orders/update-status.
type updateStatusRequest struct {
	OrderID     int64 `json:"orderId"`
	OrderStatus int32 `json:"status"`
}

// updateItemsRequest — тело POST /api/admin/orders/update-items.
type updateItemsRequest struct {
	OrderID int64               `json:"orderId"`
	Items   []itemUpdateRequest `json:"items"`
}

type itemUpdateRequest struct {
	ItemID int64 `json:"itemId"`
	// DeliveredQty и Status опциональны: отсутствующее поле не меняет позицию.
	DeliveredQty *int64 `json:"deliveredQty"`
	Status       *int32 `json:"status"`
}

func (r updateItemsRequest) toUpdates() []domain.ItemUpdate {
	updates := make([]domain.ItemUpdate, 0, len(r.Items))
	for _, it := range r.Items {
		u := domain.ItemUpdate{ItemID: it.ItemID, DeliveredQty: it.DeliveredQty}
		if it.Status != nil {
			status := domain.OrderStatus(*it.Status)
			u.Status = &status
		}
		updates = append(updates, u)
	}
	return updates
}

// updatePaymentRequest — тело POST /api/admin/orders/update-payment.
//
// Amount декодируется указателем только ради проверки присутствия ключа:
// изменение суммы заказа с этого эндпойнта не поддерживается.
type updatePaymentRequest struct {
	OrderID       int64    `json:"orderId"`
	PaymentStatus string   `json:"paymentStatus"`
	PaidAmount    *int64   `json:"paidAmount"`
	TransactionID string   `json:"transactionId"`
	Amount        *float64 `json:"amount"`
}

func (r updatePaymentRequest) toInput() order.PaymentInput {
	return order.PaymentInput{
		OrderID:        r.OrderID,
		StatusLabel:    r.PaymentStatus,
		AmountProvided: r.Amount != nil,
		PaidDelta:      r.PaidAmount,
		TransactionID:  r.TransactionID,
	}
}

// paymentData — блок data в ответе обновления оплаты. Регистр полей
// исторический, его менять нельзя.
type paymentData struct {
	ID              int64  `json:"id"`
	Amount          int64  `json:"Amount"`
	PaidAmount      int64  `json:"PaidAmount"`
	RemainingAmount int64  `json:"RemainingAmount"`
	PaymentStatus   string `json:"paymentStatus"`
	TransactionID   string `json:"TransactionId"`
	Paid            bool   `json:"paid"`
}

func newPaymentData(s domain.PaymentSnapshot) paymentData {
	return paymentData{
		ID:              s.OrderID,
		Amount:          s.AmountMinor,
		PaidAmount:      s.PaidMinor,
		RemainingAmount: s.RemainingMinor,
		PaymentStatus:   s.StatusLabel,
		TransactionID:   s.TransactionID,
		Paid:            s.Paid,
	}
}

// orderResponse — представление заказа в ответах чтения.
type orderResponse struct {
	ID            int64               `json:"id"`
	OrderNo       string              `json:"orderNo"`
	OrderDate     time.Time           `json:"orderDate"`
	CustomerID    int64               `json:"customerId"`
	Amount        int64               `json:"amount"`
	PaidAmount    int64               `json:"paidAmount"`
	PaymentStatus string              `json:"paymentStatus"`
	Status        int32               `json:"status"`
	StatusLabel   string              `json:"statusLabel"`
	TransactionID string              `json:"transactionId,omitempty"`
	AddressID     int64               `json:"addressId"`
	Items         []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ID           int64 `json:"id"`
	ProductID    int64 `json:"productId"`
	Qty          int64 `json:"qty"`
	Price        int64 `json:"price"`
	Status       int32 `json:"status"`
	DeliveredQty int64 `json:"deliveredQty"`
	IsActive     bool  `json:"isActive"`
}

func newOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ID:           it.ID,
			ProductID:    it.ProductID,
			Qty:          it.Qty,
			Price:        it.PriceMinor,
			Status:       int32(it.Status),
			DeliveredQty: it.DeliveredQty,
			IsActive:     it.IsActive,
		})
	}
	return orderResponse{
		ID:            o.ID,
		OrderNo:       o.OrderNo,
		OrderDate:     o.OrderDate,
		CustomerID:    o.CustomerID,
		Amount:        o.AmountMinor,
		PaidAmount:    o.PaidMinor,
		PaymentStatus: o.PaymentStatus.Label(),
		Status:        int32(o.Status),
		StatusLabel:   o.Status.String(),
		TransactionID: o.TransactionID,
		AddressID:     o.AddressID,
		Items:         items,
	}
}

func newOrderResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	return out
}

// pagination — блок постраничной навигации админского списка.
type pagination struct {
	TotalRecords int64 `json:"totalRecords"`
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int64 `json:"totalPages"`
	Limit        int   `json:"limit"`
}

func newPagination(total int64, page, limit int) pagination {
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return pagination{
		TotalRecords: total,
		CurrentPage:  page,
		TotalPages:   pages,
		Limit:        limit,
	}
}

// statusCountsData — zero-filled гистограмма статусов заказов.
type statusCountsData struct {
	Pending            int64 `json:"pending"`
	Confirmed          int64 `json:"confirmed"`
	Packaging          int64 `json:"packaging"`
	OutForDelivery     int64 `json:"outForDelivery"`
	PartiallyDelivered int64 `json:"partiallyDelivered"`
	Delivered          int64 `json:"delivered"`
}

func newStatusCountsData(counts map[domain.OrderStatus]int64) statusCountsData {
	return statusCountsData{
		Pending:            counts[domain.OrderStatusPending],
		Confirmed:          counts[domain.OrderStatusConfirmed],
		Packaging:          counts[domain.OrderStatusPackaging],
		OutForDelivery:     counts[domain.OrderStatusOutForDelivery],
		PartiallyDelivered: counts[domain.OrderStatusPartiallyDelivered],
		Delivered:          counts[domain.OrderStatusDelivered],
	}
}

type pendingProductResponse struct {
	ProductID    int64 `json:"productId"`
	RemainingQty int64 `json:"remainingQty"`
	TotalOrders  int64 `json:"totalOrders"`
}

func newPendingProductResponses(products []domain.PendingProduct) []pendingProductResponse {
	out := make([]pendingProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, pendingProductResponse{
			ProductID:    p.ProductID,
			RemainingQty: p.RemainingQty,
			TotalOrders:  p.TotalOrders,
		})
	}
	return out
}

type timelineEventResponse struct {
	Type       string    `json:"type"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func newTimelineEventResponses(events []domain.TimelineEvent) []timelineEventResponse {
	out := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEventResponse{
			Type:       e.Type,
			Note:       e.Note,
			OccurredAt: e.Occurred,
		})
	}
	return out
}
