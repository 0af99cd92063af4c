package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
)

// idempotencyRepositoryInMemory хранит записи идемпотентности в памяти.
type idempotencyRepositoryInMemory struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
}

// NewIdempotencyRepository возвращает in-memory репозиторий записей
// идемпотентности.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyRepositoryInMemory{
		records: make(map[string]domain.IdempotencyRecord),
	}
}

// CreateProcessing создаёт запись в состоянии processing. Если ключ уже
// существует, возвращает текущую запись и ErrIdempotencyKeyAlreadyExists.
func (r *idempotencyRepositoryInMemory) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[key]; ok {
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	now := time.Now()
	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.records[key] = record
	return record, nil
}

func (r *idempotencyRepositoryInMemory) Get(key string) (domain.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return record, nil
}

// MarkDone сохраняет успешный ответ для повторной выдачи.
func (r *idempotencyRepositoryInMemory) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepositoryInMemory) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *idempotencyRepositoryInMemory) finish(key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.HTTPStatus = httpStatus
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.UpdatedAt = time.Now()
	r.records[key] = record
	return nil
}

// DeleteExpired удаляет до limit записей с истёкшим TTL и возвращает
// их количество. limit <= 0 снимает ограничение.
func (r *idempotencyRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for key, record := range r.records {
		if !record.TTLAt.Before(before) {
			continue
		}
		delete(r.records, key)
		deleted++
		if limit > 0 && deleted >= limit {
			break
		}
	}
	return deleted, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
