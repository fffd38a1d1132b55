package httpapi

import (
	"encoding/json"
	"net/http"

	"insightd/internal/backend"
	"insightd/internal/orchestrator"
	"insightd/internal/registry"
	"insightd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps well-known service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case orchestrator.IsEmptyPrompt(err), orchestrator.IsCredentialNotAllowed(err):
		return http.StatusBadRequest
	case registry.IsProviderNotFound(err):
		return http.StatusNotFound
	case registry.IsDuplicateProvider(err), orchestrator.IsReservedProvider(err):
		return http.StatusConflict
	case registry.IsInvalidDescriptor(err), backend.IsUnknownType(err):
		return http.StatusBadRequest
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}
