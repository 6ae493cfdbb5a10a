package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// classify maps a service error onto a status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrConnectionNotFound):
		return http.StatusNotFound, "connection_not_found"
	case errors.Is(err, apperrors.ErrNoDocumentAtRank):
		return http.StatusNotFound, "no_document_at_rank"
	case errors.Is(err, apperrors.ErrMessageNotFound):
		return http.StatusNotFound, "message_not_found"
	case errors.Is(err, apperrors.ErrBehaviorNotFound):
		return http.StatusNotFound, "behavior_not_found"
	case errors.Is(err, apperrors.ErrChunkNotFound):
		return http.StatusNotFound, "chunk_not_found"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrMissingUserID):
		return http.StatusBadRequest, "missing_user_id"
	case errors.Is(err, apperrors.ErrInvalidFeedbackType):
		return http.StatusBadRequest, "invalid_feedback_type"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, apperrors.ErrDuplicateFeedback):
		return http.StatusConflict, "duplicate_feedback"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		message = "Internal server error"
	}
	if encErr := ErrorResponse(w, status, code, message); encErr != nil {
		h.logger.Error("Failed to write error response", zap.Error(encErr))
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

const maxBodyBytes = 1 << 20

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if encErr := ErrorResponse(w, http.StatusBadRequest, "invalid_request_body", "Invalid request body: "+err.Error()); encErr != nil {
			h.logger.Error("Failed to write error response", zap.Error(encErr))
		}
		return false
	}
	return true
}
