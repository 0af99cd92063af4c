package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
)

// envelope — базовый конверт всех ответов API.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// writeJSON сериализует payload и пишет его с указанным кодом.
// Ошибка сериализации на этом этапе уже не исправима, поэтому только логируется
// провайдером выше по стеку через middleware.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeFailure пишет конверт {success:false, message}.
func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// httpStatusFor переводит доменную ошибку в HTTP-код.
//
// Ошибки валидации запроса и неподдерживаемых полей отдаются как 400,
// отсутствующий заказ как 404, доступ к чужому заказу как 403. Всё
// остальное считается внутренней ошибкой.
func httpStatusFor(err error) int {
	switch {
	case domain.IsInvalidRequest(err),
		errors.Is(err, domain.ErrAmountUpdateUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// internalErrorMessage отдаётся клиенту вместо текста внутренней ошибки.
const internalErrorMessage = "internal server error"

// writeError пишет конверт ошибки с кодом, выведенным из самой ошибки.
// Текст внутренних ошибок наружу не уходит, он остаётся в логах.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFor(err)
	message := err.Error()
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		// Исторический текст ответа, на него завязаны клиенты.
		message = "Order not found"
	case status == http.StatusInternalServerError:
		h.logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		message = internalErrorMessage
	}
	writeFailure(w, status, message)
}
