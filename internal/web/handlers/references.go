package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// ReferenceResponse represents one reference image
type ReferenceResponse struct {
	Path      string    `json:"path"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

type pathsRequest struct {
	Paths []string `json:"paths"`
}

func decodePaths(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req pathsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return nil, false
	}
	if len(req.Paths) == 0 {
		respondError(w, http.StatusBadRequest, "paths are required")
		return nil, false
	}
	return req.Paths, true
}

// ListReferences returns the reference images of a label
func (h *LabelsHandler) ListReferences(w http.ResponseWriter, r *http.Request) {
	refs, err := h.labels.ListReferences(r.Context(), labelParam(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	result := make([]ReferenceResponse, len(refs))
	for i, ref := range refs {
		result[i] = ReferenceResponse{Path: ref.Path, Label: ref.Label, CreatedAt: ref.CreatedAt}
	}
	respondJSON(w, http.StatusOK, result)
}

// AddReferences copies images into a label folder
func (h *LabelsHandler) AddReferences(w http.ResponseWriter, r *http.Request) {
	paths, ok := decodePaths(w, r)
	if !ok {
		return
	}

	result, err := h.labels.AddReferences(r.Context(), labelParam(r), paths)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"added":   result.Added,
		"skipped": result.Skipped,
		"errors":  errorStrings(result.Errors),
	})
}

// DeleteReferences soft-deletes reference images of a label
func (h *LabelsHandler) DeleteReferences(w http.ResponseWriter, r *http.Request) {
	paths, ok := decodePaths(w, r)
	if !ok {
		return
	}

	result, err := h.labels.DeleteReferences(r.Context(), labelParam(r), paths)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"deleted": result.Deleted,
		"missing": result.Missing,
		"failed":  result.Failed,
		"errors":  errorStrings(result.Errors),
		"undo":    result.Record != nil,
	})
}

// Scan registers label folders and images found under the reference root
func (h *LabelsHandler) Scan(w http.ResponseWriter, r *http.Request) {
	result, err := h.labels.ScanRoot(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"labels":     result.Labels,
		"references": result.References,
	})
}

// Purge drops references whose files no longer exist
func (h *LabelsHandler) Purge(w http.ResponseWriter, r *http.Request) {
	n, err := h.labels.Purge(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"purged": n})
}
