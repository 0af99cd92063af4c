package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/nutshop/internal/auth"
	"github.com/vladislavdragonenkov/nutshop/internal/domain"
	"github.com/vladislavdragonenkov/nutshop/internal/metrics"
)

// RouterConfig собирает зависимости HTTP-маршрутизатора.
type RouterConfig struct {
	Orders      *Handler
	Idempotency domain.IdempotencyRepository
	Metrics     *metrics.OrderMetrics
	Logger      *log.Entry
	// JWTSecret — ключ проверки подписи токенов доступа.
	JWTSecret string
}

// NewRouter собирает chi-маршрутизатор API заказов.
//
// Клиентские маршруты требуют только валидный токен, админские
// дополнительно требуют право Orders. Тексты отказов исторические,
// на них завязаны клиенты.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.New())
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(logger))
	if cfg.Metrics != nil {
		r.Use(observeRequests(cfg.Metrics))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(cfg.JWTSecret))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", idempotent(cfg.Idempotency, logger, cfg.Orders.placeOrder))
			r.Get("/", cfg.Orders.myOrders)
			r.Get("/{id}", cfg.Orders.getOrder)
		})

		r.Route("/admin/orders", func(r chi.Router) {
			r.With(requirePermission(auth.PermissionOrders,
				"you don't have permission to get list of orders.")).
				Get("/", cfg.Orders.adminList)
			r.With(requirePermission(auth.PermissionOrders,
				"you don't have permission to update order.")).
				Post("/update-status", cfg.Orders.updateStatus)
			r.With(requirePermission(auth.PermissionOrders,
				"you don't have permission to update order.")).
				Post("/update-items", cfg.Orders.updateItems)
			r.With(requirePermission(auth.PermissionOrders,
				"you don't have permission to update order payment.")).
				Post("/update-payment", cfg.Orders.updatePayment)
			r.With(requirePermission(auth.PermissionOrders,
				"you don't have permission to get list of orders.")).
				Get("/status-counts", cfg.Orders.statusCounts)
			r.With(requirePermission(auth.PermissionOrders,
				"you don't have permission to get list of pending orders.")).
				Get("/pending-products", cfg.Orders.pendingProducts)
			r.With(requirePermission(auth.PermissionOrders,
				"you don't have permission to get list of orders.")).
				Get("/{id}/timeline", cfg.Orders.timeline)
		})
	})

	return r
}
