package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
)

// timelineRepository хранит хронологию заказа в append-only таблице.
// Строки не обновляются и не удаляются, порядок чтения фиксирован.
type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	if event.OrderID <= 0 {
		return domain.ErrOrderNotFound
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, event_type, note, occurred_at)
		VALUES ($1,$2,$3,$4)
	`, event.OrderID, event.Type, event.Note, event.Occurred)
	if err != nil {
		return fmt.Errorf("append timeline event %q for order %d: %w", event.Type, event.OrderID, err)
	}
	return nil
}

func (r *timelineRepository) List(orderID int64) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Вторичная сортировка по id стабилизирует порядок событий с
	// одинаковым occurred_at.
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, event_type, note, occurred_at
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline of order %d: %w", orderID, err)
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var event domain.TimelineEvent
		if err := rows.Scan(&event.OrderID, &event.Type, &event.Note, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline of order %d: %w", orderID, err)
	}
	return events, nil
}
