package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/metrics"
)

// Названия операций для логов и метрик.
const (
	OpCreateProduct = "create_product"
	OpChangeProduct = "change_product"
	OpCreateOrder   = "create_order"
	OpCompleteOrder = "complete_order"
	OpCancelOrder   = "cancel_order"
)

// Service выполняет складские операции поверх репозиториев.
// Транзакционную границу задаёт вызывающий код (см. Facade).
type Service struct {
	products domain.ProductRepository
	orders   domain.OrderRepository
	events   domain.OutboxRepository
	logger   *log.Entry
	metrics  *metrics.WarehouseMetrics
}

// NewService создаёт сервис склада.
func NewService(products domain.ProductRepository, orders domain.OrderRepository, opts ...Option) *Service {
	o := buildOptions(opts)
	return &Service{
		products: products,
		orders:   orders,
		events:   o.events,
		logger:   o.logger,
		metrics:  o.metrics,
	}
}

// CreateProduct создаёт товар и возвращает его с присвоенным ID.
func (s *Service) CreateProduct(ctx context.Context, name string, quantity int64, price decimal.Decimal) (product *domain.Product, err error) {
	defer s.observe(OpCreateProduct, time.Now(), &err)

	product = &domain.Product{Name: name, Quantity: quantity, Price: price}
	if err := s.products.Add(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	if err := s.emit(ctx, domain.AggregateProduct, product.ID, domain.EventProductCreated, productEvent(product)); err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"name":       product.Name,
		"quantity":   product.Quantity,
	}).Info("product created")
	return product, nil
}

// ChangeProduct перезаписывает остаток и цену товара.
func (s *Service) ChangeProduct(ctx context.Context, id int64, quantity int64, price decimal.Decimal) (err error) {
	defer s.observe(OpChangeProduct, time.Now(), &err)

	if err := s.products.Change(ctx, id, quantity, price); err != nil {
		return fmt.Errorf("change product: %w", err)
	}
	if err := s.emit(ctx, domain.AggregateProduct, id, domain.EventProductChanged, ProductEvent{
		ProductID: id,
		Quantity:  quantity,
		Price:     price,
	}); err != nil {
		return err
	}

	s.logger.WithFields(log.Fields{
		"product_id": id,
		"quantity":   quantity,
		"price":      price.String(),
	}).Info("product changed")
	return nil
}

// CreateOrder сохраняет заказ и списывает по одной единице каждого товара.
// Остаток меняется относительно текущего значения в хранилище, новое значение
// проставляется и в переданные объекты товаров.
func (s *Service) CreateOrder(ctx context.Context, products []*domain.Product) (order *domain.Order, err error) {
	defer s.observe(OpCreateOrder, time.Now(), &err)

	order = &domain.Order{Products: products}
	if err := s.orders.Add(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	for _, p := range products {
		if err := s.adjustQuantity(ctx, p, -1); err != nil {
			return nil, fmt.Errorf("create order %d: %w", order.ID, err)
		}
	}
	s.metrics.RecordStockAdjustment(metrics.StockDecrement, len(products))

	if err := s.emit(ctx, domain.AggregateOrder, order.ID, domain.EventOrderCreated, OrderEvent{
		OrderID:    order.ID,
		ProductIDs: order.ProductIDs(),
	}); err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"product_ids": order.ProductIDs(),
	}).Info("order created")
	return order, nil
}

// CompleteOrder удаляет заказ без изменения остатков.
func (s *Service) CompleteOrder(ctx context.Context, id int64) (err error) {
	defer s.observe(OpCompleteOrder, time.Now(), &err)

	if err := s.orders.Delete(ctx, id); err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	if err := s.emit(ctx, domain.AggregateOrder, id, domain.EventOrderCompleted, OrderEvent{OrderID: id}); err != nil {
		return err
	}

	s.logger.WithField("order_id", id).Info("order completed")
	return nil
}

// CancelOrder возвращает по одной единице каждого товара заказа и удаляет заказ.
func (s *Service) CancelOrder(ctx context.Context, id int64) (err error) {
	defer s.observe(OpCancelOrder, time.Now(), &err)

	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}

	for _, p := range order.Products {
		if err := s.adjustQuantity(ctx, p, 1); err != nil {
			return fmt.Errorf("cancel order %d: %w", id, err)
		}
	}
	s.metrics.RecordStockAdjustment(metrics.StockIncrement, len(order.Products))

	if err := s.orders.Delete(ctx, id); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if err := s.emit(ctx, domain.AggregateOrder, id, domain.EventOrderCanceled, OrderEvent{
		OrderID:    id,
		ProductIDs: order.ProductIDs(),
	}); err != nil {
		return err
	}

	s.logger.WithField("order_id", id).Info("order canceled")
	return nil
}

// GetProduct возвращает товар по ID.
func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.products.Get(ctx, id)
}

// ListProducts возвращает все товары.
func (s *Service) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	return s.products.List(ctx)
}

// GetOrder возвращает заказ по ID.
func (s *Service) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.orders.Get(ctx, id)
}

// ListOrders возвращает все заказы.
func (s *Service) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.orders.List(ctx)
}

// adjustQuantity меняет остаток в репозитории на delta и копирует результат в p.
func (s *Service) adjustQuantity(ctx context.Context, p *domain.Product, delta int64) error {
	quantity, err := s.products.Adjust(ctx, p.ID, delta)
	if err != nil {
		return err
	}
	p.Quantity = quantity
	return nil
}

func (s *Service) observe(operation string, start time.Time, errp *error) {
	result := metrics.ResultOK
	if err := *errp; err != nil {
		result = metrics.ResultError
		if domain.IsNotFound(err) {
			result = metrics.ResultNotFound
		}
		s.logger.WithError(err).WithField("operation", operation).Warn("warehouse operation failed")
	}
	s.metrics.RecordOperation(operation, result, time.Since(start))
}

func productEvent(p *domain.Product) ProductEvent {
	return ProductEvent{
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  p.Quantity,
		Price:     p.Price,
	}
}
