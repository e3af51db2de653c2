package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProductRepository описывает требования к хранилищу товаров.
type ProductRepository interface {
	// Add сохраняет товар и проставляет ему ID.
	Add(ctx context.Context, product *Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(ctx context.Context, id int64) (*Product, error)
	// Change перезаписывает остаток и цену товара (не относительное изменение).
	Change(ctx context.Context, id int64, quantity int64, price decimal.Decimal) error
	// Adjust атомарно прибавляет delta к остатку и возвращает новое значение.
	// Параллельные вызовы для одного товара не теряют изменений.
	Adjust(ctx context.Context, id int64, delta int64) (int64, error)
	// Delete удаляет товар или возвращает ErrProductNotFound.
	Delete(ctx context.Context, id int64) error
	// List возвращает все товары по возрастанию ID.
	List(ctx context.Context) ([]*Product, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Add сохраняет заказ и проставляет ему ID.
	// Возвращает ErrProductNotFound, если какой-либо товар заказа отсутствует.
	Add(ctx context.Context, order *Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id int64) (*Order, error)
	// Delete удаляет заказ или возвращает ErrOrderNotFound.
	Delete(ctx context.Context, id int64) error
	// List возвращает все заказы по возрастанию ID.
	List(ctx context.Context) ([]*Order, error)
}

// Repositories объединяет репозитории, привязанные к одной транзакции.
type Repositories interface {
	Products() ProductRepository
	Orders() OrderRepository
	Outbox() OutboxRepository
}

// UnitOfWork задаёт транзакционную границу.
// Do фиксирует изменения, если fn вернула nil, и откатывает их при ошибке или панике.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
