package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-sorter/internal/facematch"
	"github.com/kozaktomas/face-sorter/internal/labels"
	"github.com/kozaktomas/face-sorter/internal/sorter"
	"github.com/kozaktomas/face-sorter/internal/undo"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps domain sentinel errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, labels.ErrLabelNotFound), errors.Is(err, undo.ErrEmpty):
		return http.StatusNotFound
	case errors.Is(err, labels.ErrUndoConflict), errors.Is(err, labels.ErrLabelExists),
		errors.Is(err, sorter.ErrOutputLocked):
		return http.StatusConflict
	case errors.Is(err, undo.ErrNotRevertible):
		return http.StatusGone
	case errors.Is(err, labels.ErrInvalidLabel), errors.Is(err, labels.ErrInvalidThreshold),
		errors.Is(err, facematch.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, sorter.ErrNoReferenceData):
		return http.StatusPreconditionFailed
	}
	return http.StatusInternalServerError
}

// respondDomainError sends err with the status its sentinel maps to.
func respondDomainError(w http.ResponseWriter, err error) {
	respondError(w, statusForError(err), err.Error())
}

// errorStrings flattens errors for JSON output.
func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
