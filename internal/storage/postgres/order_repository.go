package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

type orderRepository struct {
	q querier
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{q: store.DB()}
}

// Add вставляет заказ и его связи с товарами одной транзакцией.
// Ссылка на отсутствующий товар даёт ErrProductNotFound (нарушение FK).
func (r *orderRepository) Add(ctx context.Context, order *domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var id int64
	err := inTx(ctx, r.q, func(q querier) error {
		if err := q.QueryRowContext(ctx, `
			INSERT INTO orders DEFAULT VALUES
			RETURNING id
		`).Scan(&id); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for pos, p := range order.Products {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO order_products (order_id, product_id, position)
				VALUES ($1, $2, $3)
			`, id, p.ID, pos); err != nil {
				if isForeignKeyViolation(err) {
					return fmt.Errorf("product %d: %w", p.ID, domain.ErrProductNotFound)
				}
				return fmt.Errorf("insert order product: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	order.ID = id
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var orderID int64
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, id).Scan(&orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFound)
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	products, err := r.loadProducts(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &domain.Order{ID: orderID, Products: products}, nil
}

func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	return expectAffected(res, fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFound))
}

func (r *orderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	ids, err := r.listIDs(ctx)
	if err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		products, err := r.loadProducts(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, &domain.Order{ID: id, Products: products})
	}

	return orders, nil
}

// listIDs читает идентификаторы целиком до загрузки товаров:
// внутри транзакции нельзя держать открытый курсор и выполнять новый запрос.
func (r *orderRepository) listIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id FROM orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return ids, nil
}

func (r *orderRepository) loadProducts(ctx context.Context, orderID int64) ([]*domain.Product, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT p.id, p.name, p.quantity, p.price
		FROM order_products op
		JOIN products p ON p.id = op.product_id
		WHERE op.order_id = $1
		ORDER BY op.position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order products: %w", err)
	}
	defer rows.Close()

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}

	// Повторы одного товара в заказе ссылаются на один объект, как в in-memory хранилище.
	seen := make(map[int64]*domain.Product, len(products))
	for i, p := range products {
		if first, ok := seen[p.ID]; ok {
			products[i] = first
			continue
		}
		seen[p.ID] = p
	}
	return products, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
