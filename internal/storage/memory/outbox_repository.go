package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"

	defaultPullLimit = 100
)

// outboxRepositoryInMemory хранит transactional outbox в памяти.
type outboxRepositoryInMemory struct {
	store       *Store
	beforeWrite writeHook
}

// NewOutboxRepository создаёт in-memory реализацию outbox поверх store.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepositoryInMemory{store: store}
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с идентификатором.
func (r *outboxRepositoryInMemory) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.beforeWrite.fire()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.store.outboxSeq++
	r.store.outbox[msg.ID] = &outboxRecord{
		msg:       msg,
		seq:       r.store.outboxSeq,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	}
	return msg, nil
}

// PullPending возвращает до limit самых старых сообщений со статусом `pending`.
func (r *outboxRepositoryInMemory) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if limit <= 0 {
		limit = defaultPullLimit
	}

	pending := r.pendingLocked()
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *outboxRepositoryInMemory) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	pending := r.pendingLocked()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].createdAt
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepositoryInMemory) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepositoryInMemory) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxStatusFailed)
}

// DeleteProcessedBefore удаляет старые sent/failed записи, начиная с самых давних.
func (r *outboxRepositoryInMemory) DeleteProcessedBefore(_ context.Context, before time.Time, limit int) (int, error) {
	r.beforeWrite.fire()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if limit <= 0 {
		limit = defaultPullLimit
	}

	expired := make([]*outboxRecord, 0)
	for _, rec := range r.store.outbox {
		if rec.status != outboxStatusPending && rec.updatedAt.Before(before) {
			expired = append(expired, rec)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if !expired[i].updatedAt.Equal(expired[j].updatedAt) {
			return expired[i].updatedAt.Before(expired[j].updatedAt)
		}
		return expired[i].seq < expired[j].seq
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}

	for _, rec := range expired {
		delete(r.store.outbox, rec.msg.ID)
	}
	return len(expired), nil
}

func (r *outboxRepositoryInMemory) mark(id, status string) error {
	r.beforeWrite.fire()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	record, ok := r.store.outbox[id]
	if !ok {
		return fmt.Errorf("outbox message %s: %w", id, domain.ErrOutboxMessageNotFound)
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	return nil
}

// pendingLocked возвращает pending-записи от старых к новым. Вызывается под mu.
func (r *outboxRepositoryInMemory) pendingLocked() []*outboxRecord {
	result := make([]*outboxRecord, 0, len(r.store.outbox))
	for _, rec := range r.store.outbox {
		if rec.status == outboxStatusPending {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].createdAt.Equal(result[j].createdAt) {
			return result[i].createdAt.Before(result[j].createdAt)
		}
		return result[i].seq < result[j].seq
	})
	return result
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
