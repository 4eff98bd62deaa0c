package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"toolrent-backend/internal/logger"
	"toolrent-backend/internal/service"

	"github.com/google/uuid"
)

type errorBody struct {
	Code           string      `json:"code"`
	Error          string      `json:"error"`
	AvailableIDs   []uuid.UUID `json:"available_ids,omitempty"`
	UnavailableIDs []uuid.UUID `json:"unavailable_ids,omitempty"`
	ToolIDs        []uuid.UUID `json:"tool_ids,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErrorBody(w, http.StatusBadRequest, errorBody{Code: "INVALID_ARGUMENT", Error: msg})
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var unavailable *service.UnavailableError
	var duplicate *service.DuplicateInBatchError

	switch {
	case errors.As(err, &unavailable):
		writeErrorBody(w, http.StatusConflict, errorBody{
			Code:           "TOOL_UNAVAILABLE",
			Error:          err.Error(),
			AvailableIDs:   unavailable.AvailableIDs,
			UnavailableIDs: unavailable.UnavailableIDs,
		})
	case errors.As(err, &duplicate):
		writeErrorBody(w, http.StatusConflict, errorBody{
			Code:    "DUPLICATE_IN_BATCH",
			Error:   err.Error(),
			ToolIDs: duplicate.ToolIDs,
		})
	case errors.Is(err, service.ErrInvalidState):
		writeErrorBody(w, http.StatusConflict, errorBody{Code: "INVALID_STATE", Error: err.Error()})
	case errors.Is(err, service.ErrInvalidWindow):
		writeErrorBody(w, http.StatusBadRequest, errorBody{Code: "INVALID_WINDOW", Error: err.Error()})
	case errors.Is(err, service.ErrInvalidArgument):
		writeErrorBody(w, http.StatusBadRequest, errorBody{Code: "INVALID_ARGUMENT", Error: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		writeErrorBody(w, http.StatusNotFound, errorBody{Code: "NOT_FOUND", Error: err.Error()})
	default:
		logger.ErrorContext(r.Context(), "Request failed", "route", routeName(r), "error", err)
		writeErrorBody(w, http.StatusInternalServerError, errorBody{Code: "INTERNAL", Error: "internal server error"})
	}
}
