package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
)

func TestOutboxRepository_Integration_Lifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	first, err := repo.Enqueue(domain.OutboxMessage{
		OrderID:   1,
		EventType: "order.created",
		Payload:   []byte(`{"orderId":1}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := repo.Enqueue(domain.OutboxMessage{
		OrderID:   2,
		EventType: "order.status_changed",
		Payload:   []byte(`{"orderId":2}`),
	})
	require.NoError(t, err)

	pending, err := repo.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, repo.MarkSent(first.ID))
	require.NoError(t, repo.MarkFailed(second.ID))

	stats, err := repo.Stats()
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)

	requeued, err := repo.RequeueFailed(0)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	pending, err = repo.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second.ID, pending[0].ID)

	require.ErrorIs(t, repo.MarkSent("11111111-2222-3333-4444-555555555555"), domain.ErrOutboxMessageNotFound)
}
