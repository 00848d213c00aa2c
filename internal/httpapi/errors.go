package httpapi

import (
	"encoding/json"
	"net/http"

	"lingolens/internal/app"
	"lingolens/internal/cards"
	"lingolens/internal/download"
	"lingolens/internal/gateway"
	"lingolens/internal/orchestrator"
	"lingolens/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps well-known service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case app.IsModelNotFound(err), cards.IsNotFound(err):
		return http.StatusNotFound
	case download.IsDownloadActive(err), app.IsCaptureBusy(err), orchestrator.IsNotShowing(err):
		return http.StatusConflict
	case gateway.IsEngineUnavailable(err):
		return http.StatusServiceUnavailable
	case gateway.IsNotLoaded(err):
		return http.StatusPreconditionFailed
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}
