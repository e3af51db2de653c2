package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository(NewStore())

	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":1}`),
	}

	saved, err := repo.Enqueue(ctx, msg)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}
	if pending[0].ID != saved.ID {
		t.Fatalf("expected same message id, got %s", pending[0].ID)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOutboxRepository_PullLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository(NewStore())

	for i := 0; i < 5; i++ {
		if _, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateProduct}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	pending, err := repo.PullPending(ctx, 2)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository(NewStore())

	sent, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	failed, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkSent(ctx, sent.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, failed.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "missing"); !errors.Is(err, domain.ErrOutboxMessageNotFound) {
		t.Fatalf("expected ErrOutboxMessageNotFound for missing record, got %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 0 || !stats.OldestPendingAt.IsZero() {
		t.Fatalf("expected empty backlog, got %+v", stats)
	}
}

func TestOutboxRepository_DeleteProcessedBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository(NewStore())

	ids := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		msg, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateProduct})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		ids = append(ids, msg.ID)
	}
	if err := repo.MarkSent(ctx, ids[0]); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkSent(ctx, ids[1]); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, ids[2]); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	deleted, err := repo.DeleteProcessedBefore(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected nothing older than an hour, deleted %d", deleted)
	}

	cutoff := time.Now().Add(time.Second)
	deleted, err = repo.DeleteProcessedBefore(ctx, cutoff, 2)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected batch of 2, deleted %d", deleted)
	}

	deleted, err = repo.DeleteProcessedBefore(ctx, cutoff, 2)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected last processed record, deleted %d", deleted)
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != ids[3] {
		t.Fatalf("pending record must survive cleanup, got %+v", pending)
	}
}
