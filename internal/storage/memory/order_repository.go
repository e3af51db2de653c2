package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// orderRepositoryInMemory реализует OrderRepository в памяти.
type orderRepositoryInMemory struct {
	store       *Store
	beforeWrite writeHook
}

// NewOrderRepository возвращает in-memory репозиторий заказов поверх store.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

// Add сохраняет заказ, если все его товары есть в хранилище.
func (r *orderRepositoryInMemory) Add(_ context.Context, order *domain.Order) error {
	r.beforeWrite.fire()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, p := range order.Products {
		if _, ok := r.store.products[p.ID]; !ok {
			return fmt.Errorf("product %d: %w", p.ID, domain.ErrProductNotFound)
		}
	}

	order.ID = r.store.nextOrderID
	r.store.nextOrderID++
	r.store.orders[order.ID] = order
	return nil
}

// Get возвращает заказ или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(_ context.Context, id int64) (*domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	order, ok := r.store.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFound)
	}
	return order, nil
}

// Delete удаляет заказ или возвращает ErrOrderNotFound.
func (r *orderRepositoryInMemory) Delete(_ context.Context, id int64) error {
	r.beforeWrite.fire()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.orders[id]; !ok {
		return fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFound)
	}
	delete(r.store.orders, id)
	return nil
}

// List возвращает заказы по возрастанию ID.
func (r *orderRepositoryInMemory) List(_ context.Context) ([]*domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*domain.Order, 0, len(r.store.orders))
	for _, o := range r.store.orders {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
