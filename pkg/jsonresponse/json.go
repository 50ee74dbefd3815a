// Package jsonresponse standardizes JSON writing for the HTTP handlers.
package jsonresponse

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// AppError is the error body every failing endpoint returns.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e AppError) Error() string { return e.Message }

// WriteResponse writes v as JSON with the given status.
func WriteResponse(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteError writes a standard error body.
func WriteError(w http.ResponseWriter, status int, message string, logger *slog.Logger) {
	WriteResponse(w, status, AppError{Code: status, Message: message}, logger)
}
