package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// txRepositories объединяет репозитории, привязанные к одной *sql.Tx.
type txRepositories struct {
	products *productRepository
	orders   *orderRepository
	outbox   *outboxRepository
}

func newRepositories(q querier) *txRepositories {
	return &txRepositories{
		products: &productRepository{q: q},
		orders:   &orderRepository{q: q},
		outbox:   &outboxRepository{q: q},
	}
}

// NewRepositories возвращает репозитории поверх пула подключений, без общей транзакции.
func NewRepositories(store *Store) domain.Repositories {
	return newRepositories(store.DB())
}

func (r *txRepositories) Products() domain.ProductRepository { return r.products }
func (r *txRepositories) Orders() domain.OrderRepository     { return r.orders }
func (r *txRepositories) Outbox() domain.OutboxRepository    { return r.outbox }

// UnitOfWork открывает транзакцию на каждый вызов Do.
type UnitOfWork struct {
	db     *sql.DB
	logger *log.Entry
}

// NewUnitOfWork создаёт транзакционный unit of work поверх store.
func NewUnitOfWork(store *Store, logger *log.Entry) *UnitOfWork {
	if logger == nil {
		logger = log.WithField("component", "postgres-uow")
	}
	return &UnitOfWork{db: store.DB(), logger: logger}
}

// Do выполняет fn в транзакции: commit при nil, rollback при ошибке или панике.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			u.logger.WithError(rbErr).Warn("rollback unit of work failed")
		}
	}()

	if err := fn(ctx, newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	committed = true
	return nil
}

var _ domain.UnitOfWork = (*UnitOfWork)(nil)
