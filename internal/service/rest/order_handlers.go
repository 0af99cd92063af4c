package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
	"github.com/vladislavdragonenkov/nutshop/internal/service/order"
)

// Handler обслуживает HTTP API заказов.
type Handler struct {
	orders *order.Service
	logger *log.Entry
}

// NewHandler создаёт обработчик поверх сервиса заказов.
func NewHandler(orders *order.Service, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.NewEntry(log.New())
	}
	return &Handler{orders: orders, logger: logger}
}

// dataEnvelope — конверт успешного ответа с полезной нагрузкой.
type dataEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

// placeOrder обрабатывает POST /api/orders.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusBadRequest, "Invalid User Token.")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.orders.Create(r.Context(), req.toInput(claims.UserID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		Success: true,
		Message: "Order placed successfully",
		OrderID: created.ID,
		OrderNo: created.OrderNo,
	})
}

// myOrders обрабатывает GET /api/orders: заказы владельца токена, новые первыми.
func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusBadRequest, "Invalid User Token.")
		return
	}

	orders, err := h.orders.ListByCustomer(r.Context(), claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dataEnvelope{Success: true, Data: newOrderResponses(orders)})
}

// getOrder обрабатывает GET /api/orders/{id}. Владелец видит свой заказ,
// право Orders открывает любой.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusBadRequest, "Invalid User Token.")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeFailure(w, http.StatusBadRequest, "orderId is required")
		return
	}

	found, err := h.orders.Get(r.Context(), claims, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dataEnvelope{Success: true, Data: newOrderResponse(found)})
}

// adminList обрабатывает GET /api/admin/orders с пагинацией и поиском по
// номеру заказа.
func (h *Handler) adminList(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 10),
		Search: r.URL.Query().Get("search"),
	}

	orders, total, err := h.orders.ListAdmin(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success    bool            `json:"success"`
		Data       []orderResponse `json:"data"`
		Pagination pagination      `json:"pagination"`
	}{
		Success:    true,
		Data:       newOrderResponses(orders),
		Pagination: newPagination(total, filter.Page, filter.Limit),
	})
}

// updateStatus обрабатывает POST /api/admin/orders/update-status: явная
// установка статуса заказа оператором.
func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID <= 0 {
		writeFailure(w, http.StatusBadRequest, "orderId is required")
		return
	}

	updated, err := h.orders.OverrideStatus(r.Context(), req.OrderID, domain.OrderStatus(req.OrderStatus))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dataEnvelope{
		Success: true,
		Message: "Order status updated successfully",
		Data:    newOrderResponse(updated),
	})
}

// updateItems обрабатывает POST /api/admin/orders/update-items: применяет
// изменения позиций и пересчитывает статус заказа из статусов позиций.
func (h *Handler) updateItems(w http.ResponseWriter, r *http.Request) {
	var req updateItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID <= 0 {
		writeFailure(w, http.StatusBadRequest, "orderId is required")
		return
	}

	updated, err := h.orders.UpdateItems(r.Context(), req.OrderID, req.toUpdates())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dataEnvelope{
		Success: true,
		Message: "Order status updated successfully",
		Data:    newOrderResponse(updated),
	})
}

// updatePayment обрабатывает POST /api/admin/orders/update-payment.
func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	var req updatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID <= 0 {
		writeFailure(w, http.StatusBadRequest, "orderId is required")
		return
	}

	snapshot, err := h.orders.UpdatePayment(r.Context(), req.toInput())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dataEnvelope{
		Success: true,
		Message: "Order payment updated successfully",
		Data:    newPaymentData(snapshot),
	})
}

// statusCounts обрабатывает GET /api/admin/orders/status-counts.
func (h *Handler) statusCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.orders.StatusCounts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dataEnvelope{Success: true, Data: newStatusCountsData(counts)})
}

// pendingProducts обрабатывает GET /api/admin/orders/pending-products.
func (h *Handler) pendingProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.orders.PendingProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := newPendingProductResponses(products)
	writeJSON(w, http.StatusOK, struct {
		Success bool                     `json:"success"`
		Count   int                      `json:"count"`
		Data    []pendingProductResponse `json:"data"`
	}{Success: true, Count: len(out), Data: out})
}

// timeline обрабатывает GET /api/admin/orders/{id}/timeline.
func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeFailure(w, http.StatusBadRequest, "orderId is required")
		return
	}

	events, err := h.orders.Timeline(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dataEnvelope{Success: true, Data: newTimelineEventResponses(events)})
}

// queryInt читает положительный целочисленный query-параметр с дефолтом.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
