// Package httpapi exposes the warehouse over JSON HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSONError пишет JSON-ошибку с заданным статусом.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, jsonError{Error: message, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeDomainError переводит ошибку сервиса в HTTP-статус.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		WriteJSONError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteJSONError(w, http.StatusNotFound, "order_not_found", err.Error())
	default:
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
