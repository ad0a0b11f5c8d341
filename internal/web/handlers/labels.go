package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/labels"
	"github.com/kozaktomas/face-sorter/internal/undo"
)

// LabelService is the label and reference API (implemented by labels.Manager)
type LabelService interface {
	ListLabels(ctx context.Context) ([]labels.Summary, error)
	CreateLabel(ctx context.Context, name string) (*database.LabelRecord, error)
	RenameLabel(ctx context.Context, oldLabel, newLabel string) (*undo.RenameLabel, error)
	DeleteLabel(ctx context.Context, label string) (*undo.DeleteLabel, error)
	SetThreshold(ctx context.Context, label string, threshold float64) error
	ListReferences(ctx context.Context, label string) ([]database.ReferenceEntry, error)
	AddReferences(ctx context.Context, label string, paths []string) (*labels.AddResult, error)
	DeleteReferences(ctx context.Context, label string, paths []string) (*labels.DeleteResult, error)
	ScanRoot(ctx context.Context) (*labels.ScanResult, error)
	Purge(ctx context.Context) (int, error)
	Undo(ctx context.Context) (undo.Record, error)
	UndoStack() *undo.Stack
}

// LabelsHandler handles label endpoints
type LabelsHandler struct {
	labels LabelService
}

// NewLabelsHandler creates a new labels handler
func NewLabelsHandler(svc LabelService) *LabelsHandler {
	return &LabelsHandler{labels: svc}
}

// LabelResponse represents a label in API responses
type LabelResponse struct {
	Label      string  `json:"label"`
	Folder     string  `json:"folder"`
	Threshold  float64 `json:"threshold"`
	References int     `json:"references"`
}

// labelParam returns the decoded {label} URL parameter
func labelParam(r *http.Request) string {
	raw := chi.URLParam(r, "label")
	if label, err := url.PathUnescape(raw); err == nil {
		return label
	}
	return raw
}

// List returns all labels
func (h *LabelsHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.labels.ListLabels(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	result := make([]LabelResponse, len(summaries))
	for i, s := range summaries {
		result[i] = LabelResponse{
			Label:      s.Label,
			Folder:     s.FolderPath,
			Threshold:  s.Threshold,
			References: s.References,
		}
	}
	respondJSON(w, http.StatusOK, result)
}

type createLabelRequest struct {
	Name string `json:"name"`
}

// Create registers a new label
func (h *LabelsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	rec, err := h.labels.CreateLabel(r.Context(), req.Name)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, LabelResponse{
		Label:     rec.Label,
		Folder:    rec.FolderPath,
		Threshold: rec.Threshold,
	})
}

type renameLabelRequest struct {
	Name string `json:"name"`
}

// Rename renames a label and moves its folder
func (h *LabelsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameLabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	rec, err := h.labels.RenameLabel(r.Context(), labelParam(r), req.Name)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"label":   rec.NewLabel,
		"folder":  rec.NewFolder,
		"moved":   len(rec.Files),
		"summary": rec.Summary(),
	})
}

// Delete soft-deletes a label and its folder
func (h *LabelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rec, err := h.labels.DeleteLabel(r.Context(), labelParam(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"deleted":     rec.Label,
		"recoverable": rec.Backup.Recoverable(),
		"summary":     rec.Summary(),
	})
}

type thresholdRequest struct {
	Threshold *float64 `json:"threshold"`
}

// SetThreshold updates a label's matching threshold
func (h *LabelsHandler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Threshold == nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	label := labelParam(r)
	if err := h.labels.SetThreshold(r.Context(), label, *req.Threshold); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"label":     label,
		"threshold": *req.Threshold,
	})
}
