package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-sorter/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the non-secret configuration a client needs
type ConfigResponse struct {
	ReferenceRoot     string   `json:"reference_root"`
	PhotoRoots        []string `json:"photo_roots"`
	Backend           string   `json:"backend"`
	SortMode          string   `json:"sort_mode"`
	KeepOriginalNames bool     `json:"keep_original_names"`
	DefaultThreshold  float64  `json:"default_threshold"`
	ImageExtensions   []string `json:"image_extensions"`
	UndoLimit         int      `json:"undo_limit"`
	ThumbMaxBytes     int64    `json:"thumb_max_bytes"`
	ThumbMaxItems     int      `json:"thumb_max_items"`
}

// Get returns the available configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	backend := "sqlite"
	if h.config.Database.UsePostgres() {
		backend = "postgres"
	}

	photoRoots := h.config.Library.PhotoRoots
	if photoRoots == nil {
		photoRoots = []string{}
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		ReferenceRoot:     h.config.Library.ReferenceRoot,
		PhotoRoots:        photoRoots,
		Backend:           backend,
		SortMode:          h.config.Sort.Mode,
		KeepOriginalNames: h.config.Sort.KeepOriginalNames,
		DefaultThreshold:  h.config.Defaults.Matching.DefaultThreshold,
		ImageExtensions:   h.config.Defaults.ImageExtensions,
		UndoLimit:         h.config.Library.UndoLimit,
		ThumbMaxBytes:     h.config.Cache.ThumbMaxBytes,
		ThumbMaxItems:     h.config.Cache.ThumbMaxItems,
	})
}
