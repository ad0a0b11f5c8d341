package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/logger"
	"github.com/kozaktomas/face-sorter/internal/thumbcache"
)

const (
	defaultThumbSize = 256
	minThumbSize     = 16
	maxThumbSize     = 4096
)

var errOutsideRoots = errors.New("path is outside the allowed roots")

// ThumbnailLoader renders and caches thumbnails (implemented by thumbcache.Loader)
type ThumbnailLoader interface {
	Load(ctx context.Context, path string, size int) (image.Image, error)
	Prefetch(ctx context.Context, paths []string, size int) (int, error)
	Cache() *thumbcache.Cache
}

// ThumbnailsHandler serves JPEG thumbnails of images under the configured roots
type ThumbnailsHandler struct {
	loader  ThumbnailLoader
	roots   []string
	quality int
	log     *zap.Logger
}

// NewThumbnailsHandler creates a thumbnail handler restricted to roots
func NewThumbnailsHandler(loader ThumbnailLoader, roots []string, log *zap.Logger) *ThumbnailsHandler {
	h := &ThumbnailsHandler{
		loader:  loader,
		quality: thumbcache.DefaultJPEGQuality,
		log:     logger.OrNop(log).Named("thumbnails"),
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		h.roots = append(h.roots, abs)
	}
	return h
}

// resolvePath returns the real path of p if it lies under one of the roots
func (h *ThumbnailsHandler) resolvePath(p string) (string, error) {
	if p == "" {
		return "", errors.New("path is required")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	for _, root := range h.roots {
		rel, err := filepath.Rel(root, resolved)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return resolved, nil
		}
	}
	return "", errOutsideRoots
}

func parseThumbSize(s string) (int, error) {
	if s == "" {
		return defaultThumbSize, nil
	}
	size, err := strconv.Atoi(s)
	if err != nil || size < minThumbSize || size > maxThumbSize {
		return 0, errors.New("size must be between 16 and 4096")
	}
	return size, nil
}

// Get renders one thumbnail as JPEG
func (h *ThumbnailsHandler) Get(w http.ResponseWriter, r *http.Request) {
	size, err := parseThumbSize(r.URL.Query().Get("size"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	path, err := h.resolvePath(r.URL.Query().Get("path"))
	switch {
	case errors.Is(err, errOutsideRoots):
		respondError(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, fs.ErrNotExist):
		respondError(w, http.StatusNotFound, "image not found")
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	img, err := h.loader.Load(r.Context(), path, size)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.log.Warn("thumbnail failed", zap.String("path", sanitizeForLog(path)), zap.Error(err))
		respondError(w, http.StatusUnprocessableEntity, "failed to render thumbnail")
		return
	}

	var buf bytes.Buffer
	if err := thumbcache.EncodeJPEG(&buf, img, h.quality); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode thumbnail")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

type prefetchRequest struct {
	Paths []string `json:"paths"`
	Size  int      `json:"size"`
}

// Prefetch warms the cache for a set of images. Paths outside the roots are
// skipped.
func (h *ThumbnailsHandler) Prefetch(w http.ResponseWriter, r *http.Request) {
	var req prefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Size == 0 {
		req.Size = defaultThumbSize
	}
	if req.Size < minThumbSize || req.Size > maxThumbSize {
		respondError(w, http.StatusBadRequest, "size must be between 16 and 4096")
		return
	}

	allowed := make([]string, 0, len(req.Paths))
	for _, p := range req.Paths {
		if path, err := h.resolvePath(p); err == nil {
			allowed = append(allowed, path)
		}
	}

	loaded, err := h.loader.Prefetch(r.Context(), allowed, req.Size)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"requested": len(req.Paths),
		"loaded":    loaded,
		"skipped":   len(req.Paths) - len(allowed),
	})
}

// Stats reports cache usage
func (h *ThumbnailsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.loader.Cache().Stats())
}

// Invalidate drops cached thumbnails of one path, or everything when no path is given
func (h *ThumbnailsHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	cache := h.loader.Cache()
	p := r.URL.Query().Get("path")
	if p == "" {
		cache.Clear()
		respondJSON(w, http.StatusOK, map[string]bool{"cleared": true})
		return
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	removed := cache.RemovePath(p)
	if resolved, err := filepath.EvalSymlinks(p); err == nil && resolved != p {
		removed += cache.RemovePath(resolved)
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
