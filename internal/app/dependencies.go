package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/warehouse/internal/health"
	"github.com/vladislavdragonenkov/warehouse/internal/storage/memory"
	"github.com/vladislavdragonenkov/warehouse/internal/storage/postgres"
)

// runtimeDependencies содержит хранилище, выбранное конфигурацией.
type runtimeDependencies struct {
	uow            domain.UnitOfWork
	outbox         domain.OutboxRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// initRuntimeDependencies открывает хранилище согласно cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			uow:    memory.NewUnitOfWork(store),
			outbox: memory.NewOutboxRepository(store),
			storageChecker: healthcheck.NewFuncChecker("storage", func(context.Context) error {
				return nil
			}),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires %s", EnvPostgresDSN)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres schema: %w", err)
			}
		}
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
		return &runtimeDependencies{
			uow:            postgres.NewUnitOfWork(store, logger.WithField("layer", "postgres")),
			outbox:         postgres.NewOutboxRepository(store),
			storageChecker: healthcheck.NewFuncChecker("storage", store.Ping),
			closeFn:        store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
