package domain

import "time"

// OrderStatus — целочисленный код стадии исполнения заказа.
// Те же коды используются для позиций заказа (OrderItem.Status).
type OrderStatus int32

const (
	// OrderStatusPending — заказ размещён, работа по нему не начата.
	OrderStatusPending OrderStatus = 1
	// OrderStatusConfirmed — заказ подтверждён оператором.
	OrderStatusConfirmed OrderStatus = 2
	// OrderStatusPackaging — заказ собирается на складе.
	OrderStatusPackaging OrderStatus = 3
	// OrderStatusOutForDelivery — заказ передан в доставку.
	OrderStatusOutForDelivery OrderStatus = 4
	// OrderStatusPartiallyDelivered — часть позиций доставлена.
	OrderStatusPartiallyDelivered OrderStatus = 5
	// OrderStatusDelivered — все позиции доставлены.
	OrderStatusDelivered OrderStatus = 6
)

// AllOrderStatuses перечисляет коды в возрастающем порядке; используется
// для zero-filled гистограммы статусов.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPackaging,
	OrderStatusOutForDelivery,
	OrderStatusPartiallyDelivered,
	OrderStatusDelivered,
}

// Valid проверяет, что код относится к известным стадиям.
func (s OrderStatus) Valid() bool {
	return s >= OrderStatusPending && s <= OrderStatusDelivered
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "Pending"
	case OrderStatusConfirmed:
		return "Confirmed"
	case OrderStatusPackaging:
		return "Packaging"
	case OrderStatusOutForDelivery:
		return "Out For Delivery"
	case OrderStatusPartiallyDelivered:
		return "Partially Delivered"
	case OrderStatusDelivered:
		return "Delivered"
	default:
		return "Unknown"
	}
}

// OrderItem представляет одну товарную позицию заказа.
type OrderItem struct {
	ID      int64
	OrderID int64
	// ProductID — ссылка на товар каталога.
	ProductID int64
	// Qty — заказанное количество, всегда > 0.
	Qty int64
	// PriceMinor — стоимость строки на момент заказа в минимальных
	// денежных единицах. Историческое значение, не пересчитывается.
	PriceMinor int64
	// Status использует то же пространство кодов, что и статус заказа,
	// но относится только к этой позиции.
	Status OrderStatus
	// DeliveredQty — накопленное доставленное количество, 0 <= DeliveredQty <= Qty.
	DeliveredQty int64
	IsActive     bool
}

// ItemUpdate описывает одно изменение позиции от оператора.
// Оба поля опциональны: nil означает "не менять".
type ItemUpdate struct {
	ItemID       int64
	DeliveredQty *int64
	Status       *OrderStatus
}

// ApplyUpdate применяет изменение к позиции.
//
// Явно переданный статус ставится первым, но если задано DeliveredQty,
// выведенный из количества статус имеет приоритет: DeliveredQty >= Qty
// даёт Delivered, 0 < DeliveredQty < Qty даёт PartiallyDelivered, ноль
// оставляет статус как есть (позиция не откатывается в Pending
// автоматически). DeliveredQty ограничивается диапазоном [0, Qty].
func (it *OrderItem) ApplyUpdate(u ItemUpdate) {
	if u.Status != nil && u.Status.Valid() {
		it.Status = *u.Status
	}
	if u.DeliveredQty == nil {
		return
	}

	qty := *u.DeliveredQty
	if qty < 0 {
		qty = 0
	}
	if qty > it.Qty {
		qty = it.Qty
	}
	it.DeliveredQty = qty

	switch {
	case qty >= it.Qty && it.Qty > 0:
		it.Status = OrderStatusDelivered
	case qty > 0:
		it.Status = OrderStatusPartiallyDelivered
	}
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID int64
	// OrderNo — человекочитаемый номер, генерируется в момент создания.
	OrderNo   string
	OrderDate time.Time
	// CustomerID — владелец заказа.
	CustomerID int64
	// AmountMinor — полная стоимость заказа; фиксируется при создании и
	// никогда не изменяется операциями оплаты или исполнения.
	AmountMinor int64
	// PaidMinor — накопленная оплаченная сумма, 0 <= PaidMinor <= AmountMinor.
	PaidMinor     int64
	PaymentStatus PaymentStatus
	Status        OrderStatus
	// TransactionID — непрозрачный идентификатор платежа; пустая строка
	// означает отсутствие. Инвариант: TransactionID != "" <=> PaidMinor > 0.
	TransactionID string
	// AddressID — ссылка на адрес доставки клиента.
	AddressID int64
	// Version — колонка optimistic locking, инкрементируется при каждой
	// записи строки заказа.
	Version int64
	Items   []OrderItem
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает
// список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID <= 0 {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.AddressID <= 0 {
		errs = append(errs, ErrAddressRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if o.PaidMinor < 0 || o.PaidMinor > o.AmountMinor {
		errs = append(errs, ErrPaidAmountOutOfRange)
	}
	if (o.TransactionID != "") != (o.PaidMinor > 0) {
		errs = append(errs, ErrTransactionMismatch)
	}

	// Сумма заказа равна сумме стоимостей строк. Фронтенд присылает
	// стоимость строки целиком, поэтому количество в сумме не участвует.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.DeliveredQty < 0 || item.DeliveredQty > item.Qty {
			errs = append(errs, ErrDeliveredQtyOutOfRange)
		}
		calc += item.PriceMinor
	}
	if len(o.Items) > 0 && calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// AggregateStatus выводит статус заказа из статусов его позиций.
//
// Правила в порядке приоритета:
//  1. все позиции Delivered -> Delivered;
//  2. есть PartiallyDelivered, либо есть Delivered при незавершённых
//     остальных -> PartiallyDelivered;
//  3. иначе — мода (самый частый статус); при равенстве частот
//     побеждает статус, первым достигший максимума в порядке обхода.
//
// Репозитории возвращают позиции в порядке возрастания id, поэтому
// tie-break детерминирован и совпадает с порядком вставки.
func AggregateStatus(items []OrderItem) OrderStatus {
	if len(items) == 0 {
		return OrderStatusPending
	}

	allDelivered := true
	anyDelivered := false
	anyPartial := false
	for _, it := range items {
		switch it.Status {
		case OrderStatusDelivered:
			anyDelivered = true
		case OrderStatusPartiallyDelivered:
			anyPartial = true
			allDelivered = false
		default:
			allDelivered = false
		}
	}

	if allDelivered {
		return OrderStatusDelivered
	}
	if anyPartial || anyDelivered {
		return OrderStatusPartiallyDelivered
	}

	counts := make(map[OrderStatus]int, len(items))
	best := items[0].Status
	bestCount := 0
	for _, it := range items {
		counts[it.Status]++
		if counts[it.Status] > bestCount {
			bestCount = counts[it.Status]
			best = it.Status
		}
	}
	return best
}
