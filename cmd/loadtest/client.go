package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

var errUnexpectedStatus = errors.New("unexpected status")

// warehouseClient описывает вызовы HTTP API склада, которые гоняет нагрузка.
// Каждый метод возвращает HTTP-статус, либо 0, если ответа не было.
type warehouseClient interface {
	CreateProduct(ctx context.Context, name string, quantity int64, price decimal.Decimal) (int64, int, error)
	CreateOrder(ctx context.Context, productIDs []int64) (int64, int, error)
	CompleteOrder(ctx context.Context, orderID int64) (int, error)
	CancelOrder(ctx context.Context, orderID int64) (int, error)
	// GetProduct возвращает текущий остаток товара.
	GetProduct(ctx context.Context, productID int64) (int64, int, error)
}

type httpWarehouseClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPWarehouseClient(baseURL string, client *http.Client) *httpWarehouseClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpWarehouseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type idResponse struct {
	ID int64 `json:"id"`
}

func (c *httpWarehouseClient) CreateProduct(ctx context.Context, name string, quantity int64, price decimal.Decimal) (int64, int, error) {
	var out idResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/products", map[string]any{
		"name":     name,
		"quantity": quantity,
		"price":    price,
	}, &out)
	return out.ID, status, err
}

func (c *httpWarehouseClient) CreateOrder(ctx context.Context, productIDs []int64) (int64, int, error) {
	var out idResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/orders", map[string]any{
		"product_ids": productIDs,
	}, &out)
	return out.ID, status, err
}

func (c *httpWarehouseClient) CompleteOrder(ctx context.Context, orderID int64) (int, error) {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/orders/%d/complete", orderID), nil, nil)
}

func (c *httpWarehouseClient) CancelOrder(ctx context.Context, orderID int64) (int, error) {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/orders/%d/cancel", orderID), nil, nil)
}

func (c *httpWarehouseClient) GetProduct(ctx context.Context, productID int64) (int64, int, error) {
	var out struct {
		Quantity int64 `json:"quantity"`
	}
	status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/products/%d", productID), nil, &out)
	return out.Quantity, status, err
}

func (c *httpWarehouseClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, fmt.Errorf("%s %s: %w %d", method, path, errUnexpectedStatus, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return resp.StatusCode, nil
}
