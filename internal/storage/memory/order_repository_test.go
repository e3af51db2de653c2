package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/storage/memory"
)

func newProduct(t *testing.T, repo domain.ProductRepository, name string, qty int64) *domain.Product {
	t.Helper()

	p := &domain.Product{Name: name, Quantity: qty, Price: decimal.NewFromInt(100)}
	if err := repo.Add(context.Background(), p); err != nil {
		t.Fatalf("add product failed: %v", err)
	}
	return p
}

func TestOrderRepository_AddGetDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	products := memory.NewProductRepository(store)
	orders := memory.NewOrderRepository(store)

	apple := newProduct(t, products, "apple", 10)
	order := &domain.Order{Products: []*domain.Product{apple}}

	if err := orders.Add(ctx, order); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if order.ID <= 0 {
		t.Fatalf("expected positive id, got %d", order.ID)
	}

	stored, err := orders.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Products[0] != apple {
		t.Fatal("expected order to keep the product reference")
	}

	if err := orders.Delete(ctx, order.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := orders.Get(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound after delete, got %v", err)
	}
	if err := orders.Delete(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on second delete, got %v", err)
	}
}

func TestOrderRepository_AddUnknownProduct(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	orders := memory.NewOrderRepository(store)

	order := &domain.Order{Products: []*domain.Product{{ID: 99, Name: "ghost"}}}
	if err := orders.Add(ctx, order); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if order.ID != 0 {
		t.Fatalf("failed add must not assign id, got %d", order.ID)
	}

	list, err := orders.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no orders, got %d", len(list))
	}
}

func TestOrderRepository_List(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	products := memory.NewProductRepository(store)
	orders := memory.NewOrderRepository(store)

	apple := newProduct(t, products, "apple", 10)
	for i := 0; i < 3; i++ {
		if err := orders.Add(ctx, &domain.Order{Products: []*domain.Product{apple}}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	list, err := orders.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].ID >= list[i].ID {
			t.Fatalf("orders are not sorted by id: %d >= %d", list[i-1].ID, list[i].ID)
		}
	}
}
