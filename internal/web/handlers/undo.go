package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/kozaktomas/face-sorter/internal/labels"
	"github.com/kozaktomas/face-sorter/internal/undo"
)

// UndoEntry represents one undoable action, newest first in listings
type UndoEntry struct {
	Kind    undo.Kind `json:"kind"`
	Summary string    `json:"summary"`
	Labels  []string  `json:"labels"`
	When    time.Time `json:"when"`
}

func undoEntry(rec undo.Record) UndoEntry {
	return UndoEntry{
		Kind:    rec.Kind(),
		Summary: rec.Summary(),
		Labels:  rec.Labels(),
		When:    rec.When(),
	}
}

// History lists the undo stack
func (h *LabelsHandler) History(w http.ResponseWriter, r *http.Request) {
	stack := h.labels.UndoStack()
	if stack == nil {
		respondJSON(w, http.StatusOK, []UndoEntry{})
		return
	}
	records := stack.List()
	result := make([]UndoEntry, len(records))
	for i, rec := range records {
		result[i] = undoEntry(rec)
	}
	respondJSON(w, http.StatusOK, result)
}

// Undo reverts the most recent destructive action
func (h *LabelsHandler) Undo(w http.ResponseWriter, r *http.Request) {
	rec, err := h.labels.Undo(r.Context())
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]any{"undone": undoEntry(rec)})
	case rec != nil && !errors.Is(err, labels.ErrUndoConflict) && !errors.Is(err, undo.ErrNotRevertible):
		// Reverted with some per-item failures; the record is consumed.
		respondJSON(w, http.StatusOK, map[string]any{
			"undone":   undoEntry(rec),
			"warnings": []string{err.Error()},
		})
	default:
		respondDomainError(w, err)
	}
}
