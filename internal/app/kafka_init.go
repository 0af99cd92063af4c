package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
	"github.com/vladislavdragonenkov/nutshop/internal/messaging/kafka"
)

// eventTransport объединяет Kafka producer и собранные поверх него
// publisher'ы outbox-воркера. Nil-значение означает, что брокер не
// сконфигурирован: события остаются в outbox до его появления.
type eventTransport struct {
	producer *kafka.Producer

	// Events публикует заказные события в основной топик,
	// DeadLetter принимает сообщения, исчерпавшие ретраи.
	Events     domain.OutboxPublisher
	DeadLetter domain.OutboxPublisher
}

// newEventTransport собирает транспорт событий, если список брокеров не
// пустой. При ошибке подключения сервис продолжает работу без Kafka.
func newEventTransport(brokers string, logger *log.Entry) *eventTransport {
	if brokers == "" {
		return nil
	}

	brokerList := strings.Split(brokers, ",")
	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return &eventTransport{
		producer:   producer,
		Events:     kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
		DeadLetter: kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue),
	}
}

// Close закрывает producer, на nil-транспорте безопасен.
func (t *eventTransport) Close(logger *log.Entry) {
	if t == nil || t.producer == nil {
		return
	}

	if err := t.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
