package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"pubclass/ml"
	"pubclass/service"
	"pubclass/vectorize"
)

const notReadyMessage = "Service is still initializing, please wait and try again"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// statusForError maps service errors to a status code and client message.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, vectorize.ErrUnsupportedMethod):
		return http.StatusBadRequest, invalidMethodMessage()
	case errors.Is(err, ml.ErrUnknownModel):
		return http.StatusBadRequest, invalidModelMessage()
	case errors.Is(err, service.ErrNotInitialized), errors.Is(err, service.ErrInitializing):
		return http.StatusServiceUnavailable, notReadyMessage
	case errors.Is(err, service.ErrVectorization):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: timestamp(),
	})
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
