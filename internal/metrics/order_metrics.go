package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
type OrderMetrics struct {
	// Счётчики операций
	ordersCreated  prometheus.Counter
	itemUpdates    prometheus.Counter
	statusChanges  *prometheus.CounterVec
	paymentUpdates *prometheus.CounterVec

	// Гистограмма времени обработки HTTP-запросов
	httpDuration *prometheus.HistogramVec

	// Счётчики инфраструктурных событий
	timelineEvents prometheus.Counter
	outboxEnqueued prometheus.Counter
}

// NewOrderMetrics регистрирует метрики в глобальном registerer.
func NewOrderMetrics() *OrderMetrics {
	return newOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_created_total",
			Help: "Total number of orders created",
		}),
		itemUpdates: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_order_item_updates_total",
			Help: "Total number of order item update operations",
		}),
		statusChanges: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_status_changes_total",
			Help: "Total number of order status transitions",
		}, []string{"status"}),
		paymentUpdates: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_payment_updates_total",
			Help: "Total number of payment reconciliations",
		}, []string{"status"}),
		httpDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route", "code"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEnqueued: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_outbox_enqueued_total",
			Help: "Total number of events enqueued into the outbox",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordItemUpdate увеличивает счётчик операций обновления позиций.
func (m *OrderMetrics) RecordItemUpdate() {
	if m == nil {
		return
	}
	m.itemUpdates.Inc()
}

// RecordStatusChange фиксирует переход заказа в новый статус.
func (m *OrderMetrics) RecordStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

// RecordPaymentUpdate фиксирует сверку оплаты с итоговым статусом.
func (m *OrderMetrics) RecordPaymentUpdate(status string) {
	if m == nil {
		return
	}
	m.paymentUpdates.WithLabelValues(status).Inc()
}

// RecordHTTPRequest записывает длительность HTTP-запроса.
func (m *OrderMetrics) RecordHTTPRequest(method, route, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEnqueued увеличивает счётчик сообщений, попавших в outbox.
func (m *OrderMetrics) RecordOutboxEnqueued() {
	if m == nil {
		return
	}
	m.outboxEnqueued.Inc()
}
