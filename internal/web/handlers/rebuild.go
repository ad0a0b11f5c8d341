package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kozaktomas/face-sorter/internal/refcache"
)

// RebuildScheduler is the debounced rebuild scheduler
type RebuildScheduler interface {
	RequestRebuild(scope refcache.Scope)
	Flush()
	Wait(ctx context.Context) error
	Pending() bool
	Executed() int
}

// SnapshotSource exposes the published label vectors
type SnapshotSource interface {
	Snapshot() *refcache.Snapshot
}

// RebuildHandler handles embedding cache endpoints
type RebuildHandler struct {
	scheduler RebuildScheduler
	cache     SnapshotSource
}

// NewRebuildHandler creates a new rebuild handler
func NewRebuildHandler(s RebuildScheduler, cache SnapshotSource) *RebuildHandler {
	return &RebuildHandler{scheduler: s, cache: cache}
}

type rebuildRequest struct {
	Labels []string `json:"labels"`
	Wait   bool     `json:"wait"`
}

// Status reports the scheduler state and the labels with a vector
func (h *RebuildHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.status())
}

// Rebuild requests a rebuild of the given labels, or of every label when none
// are given. With wait set the request is flushed and the response sent once
// the scheduler is idle.
func (h *RebuildHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	scope := refcache.AllLabels()
	if len(req.Labels) > 0 {
		scope = refcache.Labels(req.Labels...)
	}
	h.scheduler.RequestRebuild(scope)

	if !req.Wait {
		respondJSON(w, http.StatusAccepted, map[string]string{"scope": scope.String()})
		return
	}

	h.scheduler.Flush()
	if err := h.scheduler.Wait(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "rebuild still running: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.status())
}

func (h *RebuildHandler) status() map[string]any {
	labels := []string{}
	if snap := h.cache.Snapshot(); snap != nil {
		labels = snap.Labels()
	}
	return map[string]any{
		"pending":  h.scheduler.Pending(),
		"executed": h.scheduler.Executed(),
		"labels":   labels,
	}
}
