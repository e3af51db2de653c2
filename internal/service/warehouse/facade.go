package warehouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/metrics"
)

// Facade выполняет каждую операцию Service в отдельной области unit of work.
// События пишутся в outbox той же транзакции, поэтому фиксируются только вместе с изменениями.
// Методы-обёртки возвращают копии сущностей, снятые внутри транзакции; Do отдаёт
// сервис как есть, со ссылочной семантикой репозиториев.
type Facade struct {
	uow     domain.UnitOfWork
	logger  *log.Entry
	metrics *metrics.WarehouseMetrics
}

// NewFacade создаёт фасад поверх unit of work.
func NewFacade(uow domain.UnitOfWork, opts ...Option) *Facade {
	o := buildOptions(opts)
	return &Facade{
		uow:     uow,
		logger:  o.logger,
		metrics: o.metrics,
	}
}

// Do выполняет fn с сервисом, привязанным к транзакции.
func (f *Facade) Do(ctx context.Context, fn func(ctx context.Context, svc *Service) error) error {
	err := f.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		svc := NewService(
			repos.Products(),
			repos.Orders(),
			WithLogger(f.logger),
			WithMetrics(f.metrics),
			WithEvents(repos.Outbox()),
		)
		return fn(ctx, svc)
	})
	f.metrics.RecordUnitOfWork(err == nil)
	return err
}

// CreateProduct создаёт товар.
func (f *Facade) CreateProduct(ctx context.Context, name string, quantity int64, price decimal.Decimal) (*domain.Product, error) {
	var product *domain.Product
	err := f.Do(ctx, func(ctx context.Context, svc *Service) error {
		var err error
		product, err = svc.CreateProduct(ctx, name, quantity, price)
		product = product.Clone()
		return err
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// ChangeProduct перезаписывает остаток и цену товара.
func (f *Facade) ChangeProduct(ctx context.Context, id int64, quantity int64, price decimal.Decimal) error {
	return f.Do(ctx, func(ctx context.Context, svc *Service) error {
		return svc.ChangeProduct(ctx, id, quantity, price)
	})
}

// CreateOrder загружает товары по ID и создаёт заказ в одной транзакции.
func (f *Facade) CreateOrder(ctx context.Context, productIDs []int64) (*domain.Order, error) {
	var order *domain.Order
	err := f.Do(ctx, func(ctx context.Context, svc *Service) error {
		products, err := loadProducts(ctx, svc, productIDs)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		order, err = svc.CreateOrder(ctx, products)
		order = order.Clone()
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CompleteOrder удаляет заказ.
func (f *Facade) CompleteOrder(ctx context.Context, id int64) error {
	return f.Do(ctx, func(ctx context.Context, svc *Service) error {
		return svc.CompleteOrder(ctx, id)
	})
}

// CancelOrder отменяет заказ с возвратом остатков.
func (f *Facade) CancelOrder(ctx context.Context, id int64) error {
	return f.Do(ctx, func(ctx context.Context, svc *Service) error {
		return svc.CancelOrder(ctx, id)
	})
}

// GetProduct возвращает товар по ID.
func (f *Facade) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product *domain.Product
	err := f.Do(ctx, func(ctx context.Context, svc *Service) error {
		var err error
		product, err = svc.GetProduct(ctx, id)
		product = product.Clone()
		return err
	})
	return product, err
}

// ListProducts возвращает все товары.
func (f *Facade) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	var products []*domain.Product
	err := f.Do(ctx, func(ctx context.Context, svc *Service) error {
		var err error
		products, err = svc.ListProducts(ctx)
		for i, p := range products {
			products[i] = p.Clone()
		}
		return err
	})
	return products, err
}

// GetOrder возвращает заказ по ID.
func (f *Facade) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	var order *domain.Order
	err := f.Do(ctx, func(ctx context.Context, svc *Service) error {
		var err error
		order, err = svc.GetOrder(ctx, id)
		order = order.Clone()
		return err
	})
	return order, err
}

// ListOrders возвращает все заказы.
func (f *Facade) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := f.Do(ctx, func(ctx context.Context, svc *Service) error {
		var err error
		orders, err = svc.ListOrders(ctx)
		for i, o := range orders {
			orders[i] = o.Clone()
		}
		return err
	})
	return orders, err
}

// loadProducts сохраняет порядок и повторы ID; повторный ID даёт тот же объект.
func loadProducts(ctx context.Context, svc *Service, ids []int64) ([]*domain.Product, error) {
	loaded := make(map[int64]*domain.Product, len(ids))
	products := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := loaded[id]
		if !ok {
			var err error
			p, err = svc.GetProduct(ctx, id)
			if err != nil {
				return nil, err
			}
			loaded[id] = p
		}
		products = append(products, p)
	}
	return products, nil
}
