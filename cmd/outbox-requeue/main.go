package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/nutshop/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

// Утилита возвращает failed-записи transactional outbox в статус pending,
// после чего воркер публикует их заново. Используется после восстановления
// брокера.
func main() {
	var (
		dsn   string
		limit int
	)

	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: SHOP_POSTGRES_DSN)")
	flag.IntVar(&limit, "limit", 0, "maximum records to requeue (0=all)")
	flag.Parse()

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("SHOP_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("SHOP_POSTGRES_DSN (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	repo := postgres.NewOutboxRepository(store)

	requeued, err := repo.RequeueFailed(limit)
	if err != nil {
		fail("requeue failed records: %v", err)
	}

	stats, err := repo.Stats()
	if err != nil {
		fail("collect outbox stats: %v", err)
	}

	fmt.Printf("requeued=%d pending=%d", requeued, stats.PendingCount)
	if !stats.OldestPendingAt.IsZero() {
		fmt.Printf(" oldest_pending=%s", stats.OldestPendingAt.UTC().Format(time.RFC3339))
	}
	fmt.Println()
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
