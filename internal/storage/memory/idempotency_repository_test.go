package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
)

func TestIdempotencyRepository_CreateProcessing(t *testing.T) {
	repo := NewIdempotencyRepository()
	ttlAt := time.Now().Add(time.Hour)

	record, err := repo.CreateProcessing("key-1", "hash-1", ttlAt)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, record.Status)
	require.Equal(t, ttlAt, record.TTLAt)

	// Повторное создание возвращает существующую запись.
	existing, err := repo.CreateProcessing("key-1", "hash-1", ttlAt)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, record.Key, existing.Key)
	require.Equal(t, record.RequestHash, existing.RequestHash)

	_, err = repo.CreateProcessing("", "hash", ttlAt)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)

	_, err = repo.CreateProcessing("key-2", "", ttlAt)
	require.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
}

func TestIdempotencyRepository_MarkDoneAndGet(t *testing.T) {
	repo := NewIdempotencyRepository()

	_, err := repo.CreateProcessing("key-1", "hash-1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	body := []byte(`{"success":true,"orderId":42}`)
	require.NoError(t, repo.MarkDone("key-1", body, 201))

	record, err := repo.Get("key-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, record.Status)
	require.Equal(t, 201, record.HTTPStatus)
	require.Equal(t, body, record.ResponseBody)

	_, err = repo.Get("missing")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_MarkFailed(t *testing.T) {
	repo := NewIdempotencyRepository()

	_, err := repo.CreateProcessing("key-1", "hash-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed("key-1", []byte(`{"success":false}`), 500))

	record, err := repo.Get("key-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, record.Status)
	require.Equal(t, 500, record.HTTPStatus)

	require.ErrorIs(t, repo.MarkFailed("missing", nil, 500), domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_DeleteExpired(t *testing.T) {
	repo := NewIdempotencyRepository()

	_, err := repo.CreateProcessing("fresh", "h", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = repo.CreateProcessing("stale", "h", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	deleted, err := repo.DeleteExpired(time.Now(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, err = repo.Get("stale")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get("fresh")
	require.NoError(t, err)
}
