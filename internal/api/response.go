package api

import (
	"encoding/json"
	"net/http"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/betedge/edgelake/pkg/exception"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logs.Errorf("encode response, err: %+v", err)
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	respondJSON(w, status, errorBody{
		Error:   http.StatusText(status),
		Message: err.Error(),
	})
}

// statusFor maps pipeline sentinels onto HTTP status codes. Anything
// unrecognized is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, exception.ErrInvalidArgument),
		errors.Is(err, exception.ErrInvalidRange),
		errors.Is(err, exception.ErrInvalidInterval),
		errors.Is(err, exception.ErrUnknownDataset),
		errors.Is(err, exception.ErrEmptyExpansion):
		return http.StatusBadRequest
	case errors.Is(err, exception.ErrJobNotFound),
		errors.Is(err, exception.ErrMissingPartition):
		return http.StatusNotFound
	case errors.Is(err, exception.ErrProviderNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
