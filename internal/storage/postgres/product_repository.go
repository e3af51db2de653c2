package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

type productRepository struct {
	q querier
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{q: store.DB()}
}

func (r *productRepository) Add(ctx context.Context, product *domain.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var id int64
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO products (name, quantity, price)
		VALUES ($1, $2, $3)
		RETURNING id
	`, product.Name, product.Quantity, product.Price).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	product.ID = id
	return nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (*domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var p domain.Product
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, quantity, price
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Quantity, &p.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
		}
		return nil, fmt.Errorf("select product: %w", err)
	}

	return &p, nil
}

func (r *productRepository) Change(ctx context.Context, id int64, quantity int64, price decimal.Decimal) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET quantity = $2,
		    price = $3
		WHERE id = $1
	`, id, quantity, price)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	return expectAffected(res, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound))
}

// Adjust меняет остаток одним UPDATE: строка блокируется до конца транзакции,
// и параллельный заказ увидит уже изменённое значение.
func (r *productRepository) Adjust(ctx context.Context, id int64, delta int64) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var quantity int64
	err := r.q.QueryRowContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2
		WHERE id = $1
		RETURNING quantity
	`, id, delta).Scan(&quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
		}
		return 0, fmt.Errorf("adjust product quantity: %w", err)
	}

	return quantity, nil
}

func (r *productRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	return expectAffected(res, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound))
}

func (r *productRepository) List(ctx context.Context) ([]*domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, name, quantity, price
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

func scanProducts(rows *sql.Rows) ([]*domain.Product, error) {
	products := make([]*domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Quantity, &p.Price); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

// expectAffected возвращает notFound, если запрос не затронул ни одной строки.
func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
