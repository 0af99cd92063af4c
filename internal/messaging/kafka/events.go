package kafka

import "time"

// EventType определяет тип доменного события заказа.
type EventType string

const (
	// EventTypeOrderCreated — заказ размещён.
	EventTypeOrderCreated EventType = "order.created"
	// EventTypeOrderStatusChanged — изменился статус исполнения заказа.
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	// EventTypeOrderPaymentUpdated — изменилось состояние оплаты.
	EventTypeOrderPaymentUpdated EventType = "order.payment_updated"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "shop.order.events"
	TopicDeadLetterQueue = "shop.order.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет доменное событие заказа на проводе.
type OrderEvent struct {
	EventType EventType      `json:"event_type"`
	OrderID   int64          `json:"order_id"`
	OrderNo   string         `json:"order_no,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewOrderEvent создаёт событие заказа с текущей меткой времени.
func NewOrderEvent(eventType EventType, orderID int64, orderNo string, metadata map[string]any) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		OrderNo:   orderNo,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}
