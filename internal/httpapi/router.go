package httpapi

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Register добавляет маршруты API в mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/products", h.createProduct)
	mux.HandleFunc("GET /v1/products", h.listProducts)
	mux.HandleFunc("GET /v1/products/{id}", h.getProduct)
	mux.HandleFunc("PUT /v1/products/{id}", h.changeProduct)

	mux.HandleFunc("POST /v1/orders", h.createOrder)
	mux.HandleFunc("GET /v1/orders", h.listOrders)
	mux.HandleFunc("GET /v1/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /v1/orders/{id}/complete", h.completeOrder)
	mux.HandleFunc("POST /v1/orders/{id}/cancel", h.cancelOrder)
}

// NewRouter возвращает API с middleware request id и логирования.
func NewRouter(warehouse Warehouse, logger *log.Entry) http.Handler {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	mux := http.NewServeMux()
	NewHandlers(warehouse, logger).Register(mux)
	return WithRequestID(WithLogging(logger, mux))
}
