package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish отправляет сообщение, partition key — идентификатор заказа,
// чтобы события одного заказа читались в порядке записи.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := strconv.FormatInt(event.OrderID, 10)
	if event.OrderID <= 0 {
		key = event.ID
	}

	envelope := struct {
		ID          string          `json:"id"`
		OrderID     int64           `json:"order_id"`
		EventType   string          `json:"event_type"`
		Payload     json.RawMessage `json:"payload"`
		PublishedAt time.Time       `json:"published_at"`
	}{
		ID:          event.ID,
		OrderID:     event.OrderID,
		EventType:   event.EventType,
		Payload:     json.RawMessage(event.Payload),
		PublishedAt: time.Now().UTC(),
	}

	return p.producer.Publish(p.topic, key, envelope)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
