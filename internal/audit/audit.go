// Package audit exports the match audit log as CSV.
package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/facematch"
)

// Header is the first CSV row
var Header = []string{"filename", "matched_label", "confidence", "mode", "timestamp_utc"}

// Source reads the audit log
type Source interface {
	ListMatches(ctx context.Context) ([]database.MatchRecord, error)
}

// Filter narrows an export. Zero values match everything.
type Filter struct {
	Label string
	Since time.Time
}

func (f Filter) keep(rec database.MatchRecord) bool {
	if f.Label != "" && !facematch.SameLabel(f.Label, rec.MatchedLabel) {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Export writes the matching audit rows to w and returns the row count
func Export(ctx context.Context, src Source, w io.Writer, filter Filter) (int, error) {
	records, err := src.ListMatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("list matches: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return 0, fmt.Errorf("write CSV header: %w", err)
	}

	rows := 0
	for _, rec := range records {
		if !filter.keep(rec) {
			continue
		}
		if err := writer.Write(Row(rec)); err != nil {
			return rows, fmt.Errorf("write CSV row: %w", err)
		}
		rows++
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return rows, fmt.Errorf("CSV writer error: %w", err)
	}
	return rows, nil
}

// ExportFile writes the export to path, replacing it only once complete
func ExportFile(ctx context.Context, src Source, path string, filter Filter) (int, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".audit-*.csv")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	rows, err := Export(ctx, src, tmp, filter)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("publish export: %w", err)
	}
	return rows, nil
}

// Row formats one record
func Row(rec database.MatchRecord) []string {
	return []string{
		sanitizeField(rec.Filename),
		sanitizeField(rec.MatchedLabel),
		strconv.FormatFloat(rec.Confidence, 'f', 4, 64),
		rec.Mode,
		rec.Timestamp.UTC().Format(time.RFC3339),
	}
}

// sanitizeField neutralizes spreadsheet formulas in user-controlled text
func sanitizeField(field string) string {
	if field == "" {
		return field
	}
	if strings.HasPrefix(field, "=") || strings.HasPrefix(field, "+") ||
		strings.HasPrefix(field, "-") || strings.HasPrefix(field, "@") {
		return "'" + field
	}
	return field
}
