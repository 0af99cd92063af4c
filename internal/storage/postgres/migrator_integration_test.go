package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMigrator_Integration_UpDownFlow(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0))

	version, count, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Positive(t, version)
	require.Positive(t, count)

	// Повторный запуск идемпотентен.
	require.NoError(t, store.MigrateUp(ctx, 0))
	versionAgain, countAgain, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, version, versionAgain)
	require.Equal(t, count, countAgain)

	require.NoError(t, store.MigrateDown(ctx, 1))
	versionDown, countDown, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Less(t, versionDown, version)
	require.Equal(t, count-1, countDown)

	require.NoError(t, store.MigrateUp(ctx, 0))
}

func TestStore_Integration_Ping(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)
	require.NoError(t, store.Ping(context.Background()))
}
