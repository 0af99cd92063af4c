package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
)

// timelineRepositoryInMemory хранит события истории заказов в памяти.
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[int64][]domain.TimelineEvent
}

// NewTimelineRepository возвращает in-memory репозиторий истории заказов.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{
		events: make(map[int64][]domain.TimelineEvent),
	}
}

func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[event.OrderID] = append(r.events[event.OrderID], event)
	return nil
}

// List возвращает события заказа в порядке добавления.
func (r *timelineRepositoryInMemory) List(orderID int64) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.events[orderID]
	result := make([]domain.TimelineEvent, len(src))
	copy(result, src)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
