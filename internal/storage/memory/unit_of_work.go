package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// repositorySet связывает репозитории одного store.
type repositorySet struct {
	products domain.ProductRepository
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
}

// NewRepositories возвращает набор репозиториев поверх store без транзакционной границы.
func NewRepositories(store *Store) domain.Repositories {
	return newRepositorySet(store, nil)
}

func newRepositorySet(store *Store, beforeWrite writeHook) *repositorySet {
	return &repositorySet{
		products: &productRepositoryInMemory{store: store, beforeWrite: beforeWrite},
		orders:   &orderRepositoryInMemory{store: store, beforeWrite: beforeWrite},
		outbox:   &outboxRepositoryInMemory{store: store, beforeWrite: beforeWrite},
	}
}

func (s *repositorySet) Products() domain.ProductRepository { return s.products }
func (s *repositorySet) Orders() domain.OrderRepository     { return s.orders }
func (s *repositorySet) Outbox() domain.OutboxRepository    { return s.outbox }

// unitOfWork эмулирует транзакцию снимком состояния store.
// Области Do выполняются последовательно; вложенный Do на том же unit of work заблокируется.
type unitOfWork struct {
	mu    sync.Mutex
	store *Store
}

// NewUnitOfWork создаёт in-memory unit of work.
func NewUnitOfWork(store *Store) domain.UnitOfWork {
	return &unitOfWork{store: store}
}

// Do выполняет fn и откатывает store к снимку, если fn вернула ошибку или запаниковала.
// Снимок снимается при первой записи, поэтому области только на чтение store не копируют.
func (u *unitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	var (
		once sync.Once
		snap *snapshot
	)
	repos := newRepositorySet(u.store, func() {
		once.Do(func() {
			s := u.store.snapshot()
			snap = &s
		})
	})

	committed := false
	defer func() {
		if !committed && snap != nil {
			u.store.restore(*snap)
		}
	}()

	if err := fn(ctx, repos); err != nil {
		return err
	}
	committed = true
	return nil
}

var _ domain.UnitOfWork = (*unitOfWork)(nil)
