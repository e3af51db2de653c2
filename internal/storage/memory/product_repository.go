package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// productRepositoryInMemory реализует ProductRepository в памяти.
type productRepositoryInMemory struct {
	store       *Store
	beforeWrite writeHook
}

// NewProductRepository возвращает in-memory репозиторий товаров поверх store.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepositoryInMemory{store: store}
}

// Add сохраняет товар и присваивает ему очередной ID.
func (r *productRepositoryInMemory) Add(_ context.Context, product *domain.Product) error {
	r.beforeWrite.fire()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	product.ID = r.store.nextProductID
	r.store.nextProductID++
	r.store.products[product.ID] = product
	return nil
}

// Get возвращает сохранённый объект товара или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(_ context.Context, id int64) (*domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	product, ok := r.store.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
	}
	return product, nil
}

// Change перезаписывает остаток и цену товара.
func (r *productRepositoryInMemory) Change(_ context.Context, id int64, quantity int64, price decimal.Decimal) error {
	r.beforeWrite.fire()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	product, ok := r.store.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
	}
	product.Quantity = quantity
	product.Price = price
	return nil
}

// Adjust меняет остаток на delta под блокировкой store.
func (r *productRepositoryInMemory) Adjust(_ context.Context, id int64, delta int64) (int64, error) {
	r.beforeWrite.fire()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	product, ok := r.store.products[id]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
	}
	product.Quantity += delta
	return product.Quantity, nil
}

// Delete удаляет товар и убирает ссылки на него из заказов.
// Срез товаров заказа заменяется новым: исходный срез мог передать вызывающий код.
func (r *productRepositoryInMemory) Delete(_ context.Context, id int64) error {
	r.beforeWrite.fire()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
	}
	delete(r.store.products, id)

	for _, order := range r.store.orders {
		kept := make([]*domain.Product, 0, len(order.Products))
		for _, p := range order.Products {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		order.Products = kept
	}
	return nil
}

// List возвращает товары по возрастанию ID.
func (r *productRepositoryInMemory) List(_ context.Context) ([]*domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*domain.Product, 0, len(r.store.products))
	for _, p := range r.store.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
