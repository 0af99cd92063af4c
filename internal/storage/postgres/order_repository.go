package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
)

const opTimeout = 5 * time.Second

const orderColumns = `
	id, order_no, order_date, customer_id, amount_minor, paid_minor,
	payment_status, status, transaction_id, address_id, version
`

const itemColumns = `
	id, order_id, product_id, qty, price_minor, status, delivered_qty, is_active
`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_no, order_date, customer_id, amount_minor, paid_minor,
			payment_status, status, transaction_id, address_id, version,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
		RETURNING id
	`,
		order.OrderNo, order.OrderDate, order.CustomerID, order.AmountMinor,
		order.PaidMinor, int32(order.PaymentStatus), int32(order.Status),
		nullableText(order.TransactionID), order.AddressID, order.Version, now,
	).Scan(&order.ID)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("insert order %q: %w", order.OrderNo, domain.ErrOrderDuplicate)
			return err
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err = tx.QueryRowContext(ctx, `
			INSERT INTO order_items (
				order_id, product_id, qty, price_minor, status, delivered_qty, is_active
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`,
			item.OrderID, item.ProductID, item.Qty, item.PriceMinor,
			int32(item.Status), item.DeliveredQty, item.IsActive,
		).Scan(&item.ID); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, r.db, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID int64) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE customer_id = $1
		ORDER BY order_date DESC, id DESC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}
	defer rows.Close()

	return r.collectOrders(ctx, rows)
}

func (r *orderRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Order, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := (page - 1) * limit

	where := ""
	args := []any{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where = "WHERE order_no ILIKE $1"
		args = append(args, "%"+search+"%")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM orders "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		%s
		ORDER BY order_date DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, orderColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := r.collectOrders(ctx, rows)
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// UpdateLocked загружает заказ под блокировкой строки, применяет fn и
// сохраняет только изменившиеся строки. Версия заказа инкрементируется
// при записи его строки.
func (r *orderRepository) UpdateLocked(ctx context.Context, id int64, fn func(*domain.Order) error) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, id)

	var before domain.Order
	before, err = scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = domain.ErrOrderNotFound
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("select order for update: %w", err)
	}

	before.Items, err = r.loadItems(ctx, tx, id)
	if err != nil {
		return domain.Order{}, err
	}

	updated := before
	updated.Items = make([]domain.OrderItem, len(before.Items))
	copy(updated.Items, before.Items)

	if err = fn(&updated); err != nil {
		return domain.Order{}, err
	}

	if orderRowChanged(before, updated) {
		updated.Version = before.Version + 1
		if _, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET amount_minor = $1,
			    paid_minor = $2,
			    payment_status = $3,
			    status = $4,
			    transaction_id = $5,
			    address_id = $6,
			    version = $7,
			    updated_at = $8
			WHERE id = $9
		`,
			updated.AmountMinor, updated.PaidMinor, int32(updated.PaymentStatus),
			int32(updated.Status), nullableText(updated.TransactionID),
			updated.AddressID, updated.Version, time.Now().UTC(), id,
		); err != nil {
			return domain.Order{}, fmt.Errorf("update order row: %w", err)
		}
	}

	beforeItems := make(map[int64]domain.OrderItem, len(before.Items))
	for _, item := range before.Items {
		beforeItems[item.ID] = item
	}
	for _, item := range updated.Items {
		prev, ok := beforeItems[item.ID]
		if ok && prev == item {
			continue
		}
		if _, err = tx.ExecContext(ctx, `
			UPDATE order_items
			SET status = $1,
			    delivered_qty = $2,
			    is_active = $3
			WHERE id = $4 AND order_id = $5
		`,
			int32(item.Status), item.DeliveredQty, item.IsActive, item.ID, id,
		); err != nil {
			return domain.Order{}, fmt.Errorf("update order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit update order: %w", err)
	}

	return updated, nil
}

func (r *orderRepository) StatusCounts(ctx context.Context) (map[domain.OrderStatus]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM orders
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count orders by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OrderStatus]int64)
	for rows.Next() {
		var (
			status int32
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.OrderStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return counts, nil
}

func (r *orderRepository) PendingProducts(ctx context.Context) ([]domain.PendingProduct, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	statuses := make([]string, 0, len(domain.PendingOrderStatuses))
	args := make([]any, 0, len(domain.PendingOrderStatuses))
	for i, s := range domain.PendingOrderStatuses {
		statuses = append(statuses, fmt.Sprintf("$%d", i+1))
		args = append(args, int32(s))
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT i.product_id,
		       SUM(i.qty - i.delivered_qty) AS remaining_qty,
		       COUNT(DISTINCT o.id) AS total_orders
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE o.status IN (%s)
		  AND i.is_active
		  AND i.qty > i.delivered_qty
		GROUP BY i.product_id
		ORDER BY remaining_qty DESC, i.product_id
	`, strings.Join(statuses, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("query pending products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.PendingProduct, 0)
	for rows.Next() {
		var p domain.PendingProduct
		if err := rows.Scan(&p.ProductID, &p.RemainingQty, &p.TotalOrders); err != nil {
			return nil, fmt.Errorf("scan pending product: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending products: %w", err)
	}

	return result, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *orderRepository) collectOrders(ctx context.Context, rows *sql.Rows) ([]domain.Order, error) {
	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, r.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

func (r *orderRepository) loadItems(ctx context.Context, q queryer, orderID int64) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var (
			item   domain.OrderItem
			status int32
		)
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Qty,
			&item.PriceMinor, &status, &item.DeliveredQty, &item.IsActive,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Status = domain.OrderStatus(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		paymentStatus int32
		status        int32
		transactionID sql.NullString
	)
	if err := row.Scan(
		&order.ID, &order.OrderNo, &order.OrderDate, &order.CustomerID,
		&order.AmountMinor, &order.PaidMinor, &paymentStatus, &status,
		&transactionID, &order.AddressID, &order.Version,
	); err != nil {
		return domain.Order{}, err
	}
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	order.Status = domain.OrderStatus(status)
	if transactionID.Valid {
		order.TransactionID = transactionID.String
	}

	return order, nil
}

// orderRowChanged сравнивает поля строки заказа без позиций.
func orderRowChanged(before, after domain.Order) bool {
	return before.Status != after.Status ||
		before.PaidMinor != after.PaidMinor ||
		before.PaymentStatus != after.PaymentStatus ||
		before.TransactionID != after.TransactionID ||
		before.AmountMinor != after.AmountMinor ||
		before.AddressID != after.AddressID
}

func nullableText(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
