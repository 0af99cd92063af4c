package domain

import "strings"

// PaymentStatus — целочисленный код состояния оплаты заказа.
type PaymentStatus int32

const (
	// PaymentStatusUnpaid — оплата не поступала.
	PaymentStatusUnpaid PaymentStatus = 0
	// PaymentStatusPartiallyPaid — оплачена часть суммы заказа.
	PaymentStatusPartiallyPaid PaymentStatus = 1
	// PaymentStatusPaid — заказ оплачен полностью.
	PaymentStatusPaid PaymentStatus = 2
)

// Label возвращает текстовую метку, которую принимает и отдаёт API оплат.
func (s PaymentStatus) Label() string {
	switch s {
	case PaymentStatusPaid:
		return "Paid"
	case PaymentStatusPartiallyPaid:
		return "Partially Paid"
	default:
		return "Unpaid"
	}
}

// ParsePaymentStatusLabel разбирает целевую метку статуса оплаты.
// Допустимы только три литеральных значения: "Unpaid", "Partially Paid", "Paid".
func ParsePaymentStatusLabel(label string) (PaymentStatus, error) {
	switch strings.TrimSpace(label) {
	case "Unpaid":
		return PaymentStatusUnpaid, nil
	case "Partially Paid":
		return PaymentStatusPartiallyPaid, nil
	case "Paid":
		return PaymentStatusPaid, nil
	default:
		return PaymentStatusUnpaid, ErrPaymentStatusInvalid
	}
}

// PaymentSnapshot — результат сверки оплаты, возвращаемый наружу.
type PaymentSnapshot struct {
	OrderID        int64
	AmountMinor    int64
	PaidMinor      int64
	RemainingMinor int64
	StatusLabel    string
	TransactionID  string
	Paid           bool
}

// ReconcilePayment применяет запрошенный переход статуса оплаты.
//
// Семантика переходов:
//   - Unpaid: PaidMinor = 0, TransactionID очищается;
//   - Paid: PaidMinor = AmountMinor;
//   - Partially Paid: PaidMinor = min(AmountMinor, PaidMinor + deltaMinor),
//     при достижении полной суммы статус автоматически повышается до Paid;
//     deltaMinor обязан быть положительным.
//
// В любом случае PaidMinor ограничивается сверху AmountMinor (защита от
// внешнего изменения суммы). TransactionID: при PaidMinor > 0 берётся
// переданный идентификатор, иначе сохраняется текущий, иначе
// синтезируется через newToken; при PaidMinor == 0 очищается.
// Сумма заказа этой операцией не изменяется.
func (o *Order) ReconcilePayment(target PaymentStatus, deltaMinor int64, transactionID string, newToken func() string) error {
	nextPaid := o.PaidMinor
	nextStatus := o.PaymentStatus

	switch target {
	case PaymentStatusUnpaid:
		nextPaid = 0
		nextStatus = PaymentStatusUnpaid
	case PaymentStatusPaid:
		nextPaid = o.AmountMinor
		nextStatus = PaymentStatusPaid
	case PaymentStatusPartiallyPaid:
		if deltaMinor <= 0 {
			return ErrPaidAmountInvalid
		}
		// Сложение без переполнения: дельта больше остатка сразу
		// означает полную оплату.
		if deltaMinor >= o.AmountMinor-o.PaidMinor {
			nextPaid = o.AmountMinor
		} else {
			nextPaid = o.PaidMinor + deltaMinor
		}
		if nextPaid >= o.AmountMinor {
			nextStatus = PaymentStatusPaid
		} else {
			nextStatus = PaymentStatusPartiallyPaid
		}
	default:
		return ErrPaymentStatusInvalid
	}

	if nextPaid > o.AmountMinor {
		nextPaid = o.AmountMinor
	}

	o.PaidMinor = nextPaid
	o.PaymentStatus = nextStatus

	if nextPaid > 0 {
		if tx := strings.TrimSpace(transactionID); tx != "" {
			o.TransactionID = tx
		} else if o.TransactionID == "" && newToken != nil {
			o.TransactionID = newToken()
		}
	} else {
		o.TransactionID = ""
	}

	return nil
}

// PaymentSnapshot собирает текущее платёжное состояние заказа.
func (o *Order) PaymentSnapshot() PaymentSnapshot {
	remaining := o.AmountMinor - o.PaidMinor
	if remaining < 0 {
		remaining = 0
	}
	return PaymentSnapshot{
		OrderID:        o.ID,
		AmountMinor:    o.AmountMinor,
		PaidMinor:      o.PaidMinor,
		RemainingMinor: remaining,
		StatusLabel:    o.PaymentStatus.Label(),
		TransactionID:  o.TransactionID,
		Paid:           o.TransactionID != "",
	}
}
