package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/service/warehouse"
	"github.com/vladislavdragonenkov/warehouse/internal/storage/memory"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := log.New()
	logger.SetOutput(io.Discard)
	entry := log.NewEntry(logger)

	facade := warehouse.NewFacade(memory.NewUnitOfWork(memory.NewStore()), warehouse.WithLogger(entry))
	return NewRouter(facade, entry)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func TestProductEndpoints(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/v1/products", `{"name":"apple","quantity":10,"price":1.5}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[ProductResponse](t, rr)
	require.Positive(t, created.ID)
	require.Equal(t, "apple", created.Name)

	rr = do(t, h, http.MethodPut, "/v1/products/1", `{"quantity":666,"price":0.666}`)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, h, http.MethodGet, "/v1/products/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[ProductResponse](t, rr)
	require.Equal(t, int64(666), got.Quantity)
	require.True(t, got.Price.Equal(decimal.RequireFromString("0.666")), "price %s", got.Price)
	require.Contains(t, do(t, h, http.MethodGet, "/v1/products/1", "").Body.String(), `"price":"0.666"`)

	rr = do(t, h, http.MethodPut, "/v1/products/1", `{"quantity":1,"price":"19.99"}`)
	require.Equal(t, http.StatusNoContent, rr.Code)
	got = decode[ProductResponse](t, do(t, h, http.MethodGet, "/v1/products/1", ""))
	require.Equal(t, "19.99", got.Price.String())

	rr = do(t, h, http.MethodGet, "/v1/products", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[[]ProductResponse](t, rr), 1)
}

func TestOrderEndpoints(t *testing.T) {
	h := newTestRouter(t)

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/products", `{"name":"apple","quantity":100,"price":1}`).Code)

	rr := do(t, h, http.MethodPost, "/v1/orders", `{"product_ids":[1]}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	order := decode[OrderResponse](t, rr)
	require.Len(t, order.Products, 1)
	require.Equal(t, int64(99), order.Products[0].Quantity)

	rr = do(t, h, http.MethodGet, "/v1/orders", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[[]OrderResponse](t, rr), 1)

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/v1/orders/1/cancel", "").Code)

	product := decode[ProductResponse](t, do(t, h, http.MethodGet, "/v1/products/1", ""))
	require.Equal(t, int64(100), product.Quantity)

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/orders/1", "").Code)

	rr = do(t, h, http.MethodPost, "/v1/orders", `{"product_ids":[1]}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	second := decode[OrderResponse](t, rr)

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/v1/orders/2/complete", "").Code)
	require.Equal(t, int64(2), second.ID)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/v1/orders/2/complete", "").Code)
}

func TestErrorMapping(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "unknown product", method: http.MethodGet, path: "/v1/products/42", wantStatus: http.StatusNotFound, wantError: "product_not_found"},
		{name: "change unknown product", method: http.MethodPut, path: "/v1/products/42", body: `{"quantity":1,"price":1}`, wantStatus: http.StatusNotFound, wantError: "product_not_found"},
		{name: "unknown order", method: http.MethodPost, path: "/v1/orders/42/cancel", wantStatus: http.StatusNotFound, wantError: "order_not_found"},
		{name: "order with unknown product", method: http.MethodPost, path: "/v1/orders", body: `{"product_ids":[42]}`, wantStatus: http.StatusNotFound, wantError: "product_not_found"},
		{name: "bad id", method: http.MethodGet, path: "/v1/products/abc", wantStatus: http.StatusBadRequest, wantError: "invalid_id"},
		{name: "zero id", method: http.MethodGet, path: "/v1/orders/0", wantStatus: http.StatusBadRequest, wantError: "invalid_id"},
		{name: "malformed json", method: http.MethodPost, path: "/v1/products", body: `{"name":`, wantStatus: http.StatusBadRequest, wantError: "invalid_json"},
		{name: "unknown field", method: http.MethodPost, path: "/v1/products", body: `{"name":"a","sku":"x"}`, wantStatus: http.StatusBadRequest, wantError: "invalid_json"},
		{name: "non-numeric price", method: http.MethodPost, path: "/v1/products", body: `{"name":"a","price":"cheap"}`, wantStatus: http.StatusBadRequest, wantError: "invalid_json"},
		{name: "missing name", method: http.MethodPost, path: "/v1/products", body: `{"quantity":1}`, wantStatus: http.StatusBadRequest, wantError: "validation_error"},
		{name: "partial change", method: http.MethodPut, path: "/v1/products/1", body: `{"quantity":1}`, wantStatus: http.StatusBadRequest, wantError: "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rr.Code)
			require.Equal(t, tt.wantError, decode[jsonError](t, rr).Error)
		})
	}
}

type failingWarehouse struct {
	Warehouse
}

func (failingWarehouse) ListProducts(context.Context) ([]*domain.Product, error) {
	return nil, errors.New("connection reset")
}

func TestInternalErrorHidesDetails(t *testing.T) {
	logger := log.New()
	logger.SetOutput(io.Discard)

	h := NewRouter(failingWarehouse{}, log.NewEntry(logger))

	rr := do(t, h, http.MethodGet, "/v1/products", "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode[jsonError](t, rr)
	require.Equal(t, "internal_error", body.Error)
	require.Empty(t, body.Details)
}

func TestRequestIDPropagation(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/products", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "req-123", rr.Header().Get(HeaderRequestID))

	rr = do(t, h, http.MethodGet, "/v1/products", "")
	require.NotEmpty(t, rr.Header().Get(HeaderRequestID))
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodDelete, "/v1/products/1", "")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
