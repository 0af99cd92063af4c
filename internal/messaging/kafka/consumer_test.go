package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func newTestConsumer(dlq *Producer, maxRetries int, handler MessageHandler) *Consumer {
	return &Consumer{
		handler:     handler,
		logger:      log.WithField("component", "kafka-consumer-test"),
		dlqProducer: dlq,
		maxRetries:  maxRetries,
	}
}

func consumerMessage(retryCount string) *sarama.ConsumerMessage {
	msg := &sarama.ConsumerMessage{
		Topic:     TopicOrderEvents,
		Partition: 0,
		Offset:    42,
		Key:       []byte("7"),
		Value:     []byte(`{"event_type":"order.created","order_id":7}`),
	}
	if retryCount != "" {
		msg.Headers = append(msg.Headers, &sarama.RecordHeader{
			Key:   []byte(HeaderRetryCount),
			Value: []byte(retryCount),
		})
	}
	return msg
}

func TestConsumer_HandleMessage_Success(t *testing.T) {
	called := 0
	c := newTestConsumer(nil, 3, func(ctx context.Context, message *sarama.ConsumerMessage) error {
		called++
		return nil
	})

	if err := c.handleMessageWithRetry(context.Background(), consumerMessage("")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if called != 1 {
		t.Fatalf("expected 1 call, got %d", called)
	}
}

func TestConsumer_HandleMessage_RetryableError(t *testing.T) {
	handlerErr := errors.New("transient failure")
	c := newTestConsumer(nil, 3, func(ctx context.Context, message *sarama.ConsumerMessage) error {
		return handlerErr
	})

	// Лимит retry не исчерпан, ошибка возвращается наружу.
	err := c.handleMessageWithRetry(context.Background(), consumerMessage("1"))
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestConsumer_HandleMessage_SendsToDLQ(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(raw []byte) error {
		var dlq map[string]any
		if err := json.Unmarshal(raw, &dlq); err != nil {
			return err
		}
		if dlq["original_topic"] != TopicOrderEvents {
			t.Errorf("unexpected original topic: %v", dlq["original_topic"])
		}
		if dlq["error_message"] != "permanent failure" {
			t.Errorf("unexpected error message: %v", dlq["error_message"])
		}
		return nil
	})
	dlqProducer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-consumer-test"),
	}

	c := newTestConsumer(dlqProducer, 3, func(ctx context.Context, message *sarama.ConsumerMessage) error {
		return errors.New("permanent failure")
	})

	// Retry count достиг лимита, сообщение уходит в DLQ и считается обработанным.
	if err := c.handleMessageWithRetry(context.Background(), consumerMessage("3")); err != nil {
		t.Fatalf("expected nil after DLQ, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestConsumer_GetRetryCount(t *testing.T) {
	c := newTestConsumer(nil, 3, nil)

	if got := c.getRetryCount(consumerMessage("")); got != 0 {
		t.Fatalf("expected 0 for missing header, got %d", got)
	}
	if got := c.getRetryCount(consumerMessage("2")); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := c.getRetryCount(consumerMessage("oops")); got != 0 {
		t.Fatalf("expected 0 for malformed header, got %d", got)
	}
}

func TestParseOrderEvent(t *testing.T) {
	event, err := ParseOrderEvent(consumerMessage(""))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.EventType != EventTypeOrderCreated || event.OrderID != 7 {
		t.Fatalf("unexpected event: %+v", event)
	}

	_, err = ParseOrderEvent(&sarama.ConsumerMessage{Value: []byte("not json")})
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}

	if event.Timestamp.After(time.Now().Add(time.Minute)) {
		t.Fatal("timestamp sanity check failed")
	}
}
