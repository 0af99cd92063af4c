package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/nutshop/internal/domain"
	"github.com/vladislavdragonenkov/nutshop/internal/storage/memory"
)

func TestCleanupWorker_DeleteExpired(t *testing.T) {
	t.Parallel()

	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for _, key := range []string{"expired-1", "expired-2"} {
		if _, err := repo.CreateProcessing(key, "hash", now.Add(-time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := repo.CreateProcessing("alive", "hash", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	worker := NewCleanupWorker(repo, WithBatchSize(1))

	deleted, err := worker.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}

	if _, err := repo.Get("alive"); err != nil {
		t.Fatalf("live record must survive cleanup: %v", err)
	}
	if _, err := repo.Get("expired-1"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected expired record to be gone, got %v", err)
	}
}

func TestCleanupWorker_DeleteExpired_RepoError(t *testing.T) {
	t.Parallel()

	worker := NewCleanupWorker(&failingIdempotencyRepo{})

	if _, err := worker.DeleteExpired(context.Background(), time.Now()); err == nil {
		t.Fatal("expected repo error")
	}
}

func TestCleanupWorker_Run_StopsOnCancel(t *testing.T) {
	t.Parallel()

	repo := memory.NewIdempotencyRepository()
	if _, err := repo.CreateProcessing("expired", "hash", time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	worker := NewCleanupWorker(repo, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	wg.Wait()

	if _, err := repo.Get("expired"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected record to be cleaned up, got %v", err)
	}
}

type failingIdempotencyRepo struct{}

func (failingIdempotencyRepo) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	return domain.IdempotencyRecord{}, errors.New("storage down")
}

func (failingIdempotencyRepo) Get(key string) (domain.IdempotencyRecord, error) {
	return domain.IdempotencyRecord{}, errors.New("storage down")
}

func (failingIdempotencyRepo) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return errors.New("storage down")
}

func (failingIdempotencyRepo) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return errors.New("storage down")
}

func (failingIdempotencyRepo) DeleteExpired(before time.Time, limit int) (int, error) {
	return 0, errors.New("storage down")
}
