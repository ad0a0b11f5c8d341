package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/kozaktomas/face-sorter/internal/audit"
)

// AuditHandler exports the match audit log
type AuditHandler struct {
	source audit.Source
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(src audit.Source) *AuditHandler {
	return &AuditHandler{source: src}
}

// Export streams the audit log as CSV, optionally filtered by label and a
// "since" RFC 3339 timestamp
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter := audit.Filter{Label: r.URL.Query().Get("label")}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = t
	}

	// Buffer so a failed listing can still produce a JSON error.
	var buf bytes.Buffer
	if _, err := audit.Export(r.Context(), h.source, &buf, filter); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="match_audit.csv"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
