package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer id is required")
	// Ошибка отсутствующего адреса доставки.
	ErrAddressRequired = errors.New("address is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order items are required")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("order amount must be non-negative")
	// Ошибка нарушения диапазона 0 <= PaidMinor <= AmountMinor.
	ErrPaidAmountOutOfRange = errors.New("paid amount out of range")
	// Ошибка нарушения связки TransactionID <-> PaidMinor.
	ErrTransactionMismatch = errors.New("transaction id must be present iff paid amount is positive")
	// Ошибка при некорректном количестве позиции (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка при отрицательной стоимости строки.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка нарушения диапазона 0 <= DeliveredQty <= Qty.
	ErrDeliveredQtyOutOfRange = errors.New("delivered qty out of range")
	// Ошибка несоответствия суммы заказа и сумм строк.
	ErrAmountMismatch = errors.New("order amount does not match items sum")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderDuplicate — нарушение уникальности при вставке заказа,
	// практически это коллизия order_no.
	ErrOrderDuplicate = errors.New("order already exists")
	// ErrForbidden — нарушение контракта доступа к чужому заказу.
	ErrForbidden = errors.New("access to this order is not allowed")

	// ErrOrderStatusInvalid — неизвестный код статуса заказа.
	ErrOrderStatusInvalid = errors.New("order status is out of the known range")
	// ErrPaymentStatusInvalid — целевая метка статуса оплаты не из списка
	// Unpaid / Partially Paid / Paid.
	ErrPaymentStatusInvalid = errors.New("paymentStatus must be one of: Unpaid, Partially Paid, Paid")
	// ErrPaidAmountInvalid — для Partially Paid требуется положительная дельта.
	ErrPaidAmountInvalid = errors.New("paidAmount must be a positive number for Partially Paid")
	// ErrAmountUpdateUnsupported — попытка изменить сумму заказа через
	// операцию оплаты запрещена намеренно.
	ErrAmountUpdateUnsupported = errors.New("order amount updates are not supported from this endpoint")

	// ErrOutboxPublish — ошибка публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOutboxMessageNotFound — сообщение отсутствует в outbox-хранилище.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")

	// Ошибки idempotency-слоя.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key is already used with different request payload")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// IsInvalidRequest относит ошибку к семейству InvalidRequest из таксономии
// транспортного слоя (HTTP 400).
func IsInvalidRequest(err error) bool {
	for _, target := range []error{
		ErrCustomerRequired,
		ErrAddressRequired,
		ErrItemsRequired,
		ErrItemQtyInvalid,
		ErrItemPriceInvalid,
		ErrOrderStatusInvalid,
		ErrPaymentStatusInvalid,
		ErrPaidAmountInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
