package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/nutshop/internal/messaging/kafka"
)

// Утилита для отладки: читает топик событий заказов и печатает каждое
// событие в лог. Удобна для проверки публикации outbox на стенде.
func main() {
	var (
		brokers string
		topic   string
		group   string
	)

	flag.StringVar(&brokers, "brokers", os.Getenv("SHOP_KAFKA_BROKERS"), "kafka brokers, comma separated")
	flag.StringVar(&topic, "topic", kafka.TopicOrderEvents, "topic to tail")
	flag.StringVar(&group, "group", "shop-order-events-tail", "consumer group id")
	flag.Parse()

	if strings.TrimSpace(brokers) == "" {
		fmt.Fprintln(os.Stderr, "SHOP_KAFKA_BROKERS (or -brokers) is required")
		os.Exit(2)
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "order-events-tail")

	handler := func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParseOrderEvent(message)
		if err != nil {
			logger.WithError(err).WithField("offset", message.Offset).Warn("skipping malformed event")
			return nil
		}

		logger.WithFields(log.Fields{
			"event_type": event.EventType,
			"order_id":   event.OrderID,
			"order_no":   event.OrderNo,
			"timestamp":  event.Timestamp,
			"partition":  message.Partition,
			"offset":     message.Offset,
		}).Info("order event")
		return nil
	}

	consumer, err := kafka.NewConsumer(strings.Split(brokers, ","), group, []string{topic}, handler)
	if err != nil {
		logger.WithError(err).Fatal("failed to create consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Fatal("failed to start consumer")
	}

	<-ctx.Done()
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("consumer stopped with error")
	}
}
