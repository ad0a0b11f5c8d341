package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/logger"
	"github.com/kozaktomas/face-sorter/internal/sorter"
)

// Assigner files photos under a label by hand (implemented by sorter.Sorter)
type Assigner interface {
	Assign(ctx context.Context, req sorter.AssignRequest) (*sorter.AssignResult, error)
}

// AssignHandler handles manual assignment of reviewed photos
type AssignHandler struct {
	assigner Assigner
	log      *zap.Logger
}

func NewAssignHandler(a Assigner, log *zap.Logger) *AssignHandler {
	return &AssignHandler{assigner: a, log: logger.OrNop(log).Named("assign")}
}

// AssignRequest represents a manual assignment request
type AssignRequest struct {
	Label     string   `json:"label"`
	Paths     []string `json:"paths"`
	OutputDir string   `json:"output_dir"`
	Copy      bool     `json:"copy"`
}

// AssignResponse lists the written files and per-file failures
type AssignResponse struct {
	Label        string   `json:"label"`
	Destinations []string `json:"destinations"`
	Errors       []string `json:"errors,omitempty"`
}

// Assign moves or copies the given photos into the label's output folder
func (h *AssignHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Label == "" || req.OutputDir == "" {
		respondError(w, http.StatusBadRequest, "label and output_dir are required")
		return
	}
	if len(req.Paths) == 0 {
		respondError(w, http.StatusBadRequest, "paths must not be empty")
		return
	}

	result, err := h.assigner.Assign(r.Context(), sorter.AssignRequest{
		Paths:     req.Paths,
		Label:     req.Label,
		OutputDir: req.OutputDir,
		Copy:      req.Copy,
	})
	if err != nil {
		h.log.Warn("assignment failed", zap.String("label", sanitizeForLog(req.Label)), zap.Error(err))
		respondDomainError(w, err)
		return
	}

	dests := result.Destinations
	if dests == nil {
		dests = []string{}
	}
	respondJSON(w, http.StatusOK, AssignResponse{
		Label:        req.Label,
		Destinations: dests,
		Errors:       errorStrings(result.Errors),
	})
}
