package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
)

type outboxState string

const (
	outboxPending outboxState = "pending"
	outboxSent    outboxState = "sent"
	outboxFailed  outboxState = "failed"
)

type outboxEntry struct {
	msg       domain.OutboxMessage
	state     outboxState
	createdAt time.Time
}

// outboxRepositoryInMemory — in-memory очередь outbox-сообщений.
type outboxRepositoryInMemory struct {
	mu      sync.Mutex
	entries map[string]*outboxEntry
}

// NewOutboxRepository возвращает in-memory outbox-репозиторий.
func NewOutboxRepository() domain.OutboxRepository {
	return &outboxRepositoryInMemory{
		entries: make(map[string]*outboxEntry),
	}
}

func (r *outboxRepositoryInMemory) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.entries[msg.ID] = &outboxEntry{
		msg:       msg,
		state:     outboxPending,
		createdAt: time.Now(),
	}
	return msg, nil
}

// PullPending возвращает до limit ожидающих сообщений в порядке добавления.
func (r *outboxRepositoryInMemory) PullPending(limit int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make([]*outboxEntry, 0)
	for _, e := range r.entries {
		if e.state == outboxPending {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].createdAt.Before(pending[j].createdAt)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, e := range pending {
		result = append(result, e.msg)
	}
	return result, nil
}

func (r *outboxRepositoryInMemory) Stats() (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.OutboxStats
	for _, e := range r.entries {
		if e.state != outboxPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || e.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = e.createdAt
		}
	}
	return stats, nil
}

func (r *outboxRepositoryInMemory) MarkSent(id string) error {
	return r.setState(id, outboxSent)
}

func (r *outboxRepositoryInMemory) MarkFailed(id string) error {
	return r.setState(id, outboxFailed)
}

// RequeueFailed возвращает failed-сообщения в состояние pending.
func (r *outboxRepositoryInMemory) RequeueFailed(limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	requeued := 0
	for _, e := range r.entries {
		if e.state != outboxFailed {
			continue
		}
		e.state = outboxPending
		requeued++
		if limit > 0 && requeued >= limit {
			break
		}
	}
	return requeued, nil
}

func (r *outboxRepositoryInMemory) setState(id string, state outboxState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.ErrOutboxMessageNotFound
	}
	e.state = state
	return nil
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
