package warehouse_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/service/warehouse"
	"github.com/vladislavdragonenkov/warehouse/internal/storage/memory"
)

type fixture struct {
	store    *memory.Store
	products domain.ProductRepository
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	svc      *warehouse.Service
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	return logger.WithField("component", "warehouse-test")
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func requirePrice(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, money(want).Equal(got), "price: want %s, got %s", want, got)
}

func newFixture(opts ...warehouse.Option) *fixture {
	store := memory.NewStore()
	f := &fixture{
		store:    store,
		products: memory.NewProductRepository(store),
		orders:   memory.NewOrderRepository(store),
		outbox:   memory.NewOutboxRepository(store),
	}
	opts = append([]warehouse.Option{warehouse.WithLogger(loggerForTests())}, opts...)
	f.svc = warehouse.NewService(f.products, f.orders, opts...)
	return f
}

func TestService_CreateProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	p, err := f.svc.CreateProduct(ctx, "test_product", 100, money("100"))
	require.NoError(t, err)
	require.Positive(t, p.ID)
	require.Equal(t, "test_product", p.Name)
	require.EqualValues(t, 100, p.Quantity)
	requirePrice(t, "100", p.Price)

	second, err := f.svc.CreateProduct(ctx, "other", 1, money("1"))
	require.NoError(t, err)
	require.NotEqual(t, p.ID, second.ID)
}

func TestService_ChangeProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	p, err := f.svc.CreateProduct(ctx, "test_product", 100, money("100"))
	require.NoError(t, err)

	require.NoError(t, f.svc.ChangeProduct(ctx, p.ID, 50, money("200")))
	require.EqualValues(t, 50, p.Quantity)
	requirePrice(t, "200", p.Price)

	stored, err := f.products.Get(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 50, stored.Quantity)
	requirePrice(t, "200", stored.Price)
}

func TestService_ChangeProductNotFound(t *testing.T) {
	f := newFixture()

	err := f.svc.ChangeProduct(context.Background(), 404, 1, money("1"))
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestService_CreateOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	p, err := f.svc.CreateProduct(ctx, "test_product", 100, money("100"))
	require.NoError(t, err)

	o, err := f.svc.CreateOrder(ctx, []*domain.Product{p})
	require.NoError(t, err)
	require.Positive(t, o.ID)
	require.Same(t, p, o.Products[0])
	require.EqualValues(t, 99, p.Quantity)
}

func TestService_CreateOrderRepeatedProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	p, err := f.svc.CreateProduct(ctx, "test_product", 10, money("1"))
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, []*domain.Product{p, p})
	require.NoError(t, err)
	require.EqualValues(t, 8, p.Quantity)
}

func TestService_CreateOrderAdjustsStoredQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	p, err := f.svc.CreateProduct(ctx, "test_product", 100, money("1"))
	require.NoError(t, err)

	// Устаревшая копия товара не должна перезаписать остаток своим значением.
	stale := &domain.Product{ID: p.ID, Name: p.Name, Quantity: 5}
	_, err = f.svc.CreateOrder(ctx, []*domain.Product{stale})
	require.NoError(t, err)

	stored, err := f.products.Get(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 99, stored.Quantity)
	require.EqualValues(t, 99, stale.Quantity)
}

func TestService_CreateOrderUnknownProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.CreateOrder(ctx, []*domain.Product{{ID: 77, Quantity: 5}})
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	orders, err := f.orders.List(ctx)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestService_CompleteOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	p, err := f.svc.CreateProduct(ctx, "test_product", 100, money("100"))
	require.NoError(t, err)
	o, err := f.svc.CreateOrder(ctx, []*domain.Product{p})
	require.NoError(t, err)

	require.NoError(t, f.svc.CompleteOrder(ctx, o.ID))

	_, err = f.orders.Get(ctx, o.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.EqualValues(t, 99, p.Quantity, "completing an order must not touch stock")
}

func TestService_CompleteOrderNotFound(t *testing.T) {
	f := newFixture()

	err := f.svc.CompleteOrder(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestService_CancelOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	p, err := f.svc.CreateProduct(ctx, "test_product", 100, money("100"))
	require.NoError(t, err)
	o, err := f.svc.CreateOrder(ctx, []*domain.Product{p})
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelOrder(ctx, o.ID))

	_, err = f.orders.Get(ctx, o.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	stored, err := f.products.Get(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 100, stored.Quantity)
}

func TestService_CancelOrderNotFound(t *testing.T) {
	f := newFixture()

	err := f.svc.CancelOrder(context.Background(), 5)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.False(t, errors.Is(err, domain.ErrProductNotFound))
}

func TestService_ReadThroughs(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	apple, err := f.svc.CreateProduct(ctx, "apple", 10, money("100"))
	require.NoError(t, err)
	_, err = f.svc.CreateProduct(ctx, "microsoft", 10, money("200"))
	require.NoError(t, err)
	order, err := f.svc.CreateOrder(ctx, []*domain.Product{apple})
	require.NoError(t, err)

	products, err := f.svc.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)

	got, err := f.svc.GetProduct(ctx, apple.ID)
	require.NoError(t, err)
	require.Equal(t, "apple", got.Name)

	orders, err := f.svc.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	gotOrder, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{apple.ID}, gotOrder.ProductIDs())
}

func TestService_EmitsEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	outbox := memory.NewOutboxRepository(store)
	svc := warehouse.NewService(
		memory.NewProductRepository(store),
		memory.NewOrderRepository(store),
		warehouse.WithLogger(loggerForTests()),
		warehouse.WithEvents(outbox),
	)

	p, err := svc.CreateProduct(ctx, "apple", 10, money("100"))
	require.NoError(t, err)
	require.NoError(t, svc.ChangeProduct(ctx, p.ID, 20, money("50")))
	o, err := svc.CreateOrder(ctx, []*domain.Product{p})
	require.NoError(t, err)
	require.NoError(t, svc.CancelOrder(ctx, o.ID))

	pending, err := outbox.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 4)

	types := make(map[domain.EventType]domain.OutboxMessage, len(pending))
	for _, msg := range pending {
		types[msg.EventType] = msg
	}
	require.Contains(t, types, domain.EventProductCreated)
	require.Contains(t, types, domain.EventProductChanged)
	require.Contains(t, types, domain.EventOrderCreated)
	require.Contains(t, types, domain.EventOrderCanceled)

	var created warehouse.OrderEvent
	require.NoError(t, json.Unmarshal(types[domain.EventOrderCreated].Payload, &created))
	require.Equal(t, o.ID, created.OrderID)
	require.Equal(t, []int64{p.ID}, created.ProductIDs)
	require.Equal(t, domain.AggregateOrder, types[domain.EventOrderCreated].AggregateType)

	var changed warehouse.ProductEvent
	require.NoError(t, json.Unmarshal(types[domain.EventProductChanged].Payload, &changed))
	requirePrice(t, "50", changed.Price)
	require.Contains(t, string(types[domain.EventProductChanged].Payload), `"price":"50"`)
}

func TestService_NoEventsOnFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	outbox := memory.NewOutboxRepository(store)
	svc := warehouse.NewService(
		memory.NewProductRepository(store),
		memory.NewOrderRepository(store),
		warehouse.WithLogger(loggerForTests()),
		warehouse.WithEvents(outbox),
	)

	require.Error(t, svc.CompleteOrder(ctx, 1))
	require.Error(t, svc.ChangeProduct(ctx, 1, 1, money("1")))

	stats, err := outbox.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}
