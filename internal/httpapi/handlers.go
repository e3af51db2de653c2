package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// Warehouse перечисляет операции склада, которые обслуживает API.
// Реализуется warehouse.Facade.
type Warehouse interface {
	CreateProduct(ctx context.Context, name string, quantity int64, price decimal.Decimal) (*domain.Product, error)
	ChangeProduct(ctx context.Context, id int64, quantity int64, price decimal.Decimal) error
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	CreateOrder(ctx context.Context, productIDs []int64) (*domain.Order, error)
	CompleteOrder(ctx context.Context, id int64) error
	CancelOrder(ctx context.Context, id int64) error
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
}

// ProductResponse описывает товар в ответах API. Цена сериализуется строкой
// ("0.666"), чтобы клиент не терял точность.
type ProductResponse struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// OrderResponse описывает заказ вместе с товарами.
type OrderResponse struct {
	ID       int64             `json:"id"`
	Products []ProductResponse `json:"products"`
}

// Цена в запросах принимается и числом, и строкой.
type createProductRequest struct {
	Name     string          `json:"name"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type changeProductRequest struct {
	Quantity *int64           `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
}

type createOrderRequest struct {
	ProductIDs []int64 `json:"product_ids"`
}

// NewProductResponse переводит товар в DTO ответа.
func NewProductResponse(p *domain.Product) ProductResponse {
	return ProductResponse{ID: p.ID, Name: p.Name, Quantity: p.Quantity, Price: p.Price}
}

// NewOrderResponse переводит заказ в DTO ответа.
func NewOrderResponse(o *domain.Order) OrderResponse {
	resp := OrderResponse{ID: o.ID, Products: make([]ProductResponse, 0, len(o.Products))}
	for _, p := range o.Products {
		resp.Products = append(resp.Products, NewProductResponse(p))
	}
	return resp
}

// Handlers обслуживает /v1/products и /v1/orders.
type Handlers struct {
	warehouse Warehouse
	logger    *log.Entry
}

// NewHandlers создаёт обработчики поверх Warehouse.
func NewHandlers(warehouse Warehouse, logger *log.Entry) *Handlers {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &Handlers{warehouse: warehouse, logger: logger}
}

func (h *Handlers) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "name is required")
		return
	}

	product, err := h.warehouse.CreateProduct(r.Context(), req.Name, req.Quantity, req.Price)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewProductResponse(product))
}

func (h *Handlers) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.warehouse.ListProducts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, NewProductResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	product, err := h.warehouse.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewProductResponse(product))
}

func (h *Handlers) changeProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req changeProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Изменение перезаписывает оба поля, поэтому оба обязательны.
	if req.Quantity == nil || req.Price == nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "quantity and price are required")
		return
	}

	if err := h.warehouse.ChangeProduct(r.Context(), id, *req.Quantity, *req.Price); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.warehouse.CreateOrder(r.Context(), req.ProductIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewOrderResponse(order))
}

func (h *Handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.warehouse.ListOrders(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, NewOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := h.warehouse.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewOrderResponse(order))
}

func (h *Handlers) completeOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.warehouse.CompleteOrder)
}

func (h *Handlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.warehouse.CancelOrder)
}

func (h *Handlers) orderAction(w http.ResponseWriter, r *http.Request, action func(context.Context, int64) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := action(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !domain.IsNotFound(err) {
		h.logger.WithError(err).WithFields(log.Fields{
			"path":       r.URL.Path,
			"request_id": RequestIDFromContext(r.Context()),
		}).Error("warehouse operation failed")
	}
	writeDomainError(w, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		WriteJSONError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
