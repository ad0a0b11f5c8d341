package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/database/mock"
)

func seededStore(t *testing.T) *mock.MockStore {
	t.Helper()
	store := mock.NewMockStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	records := []database.MatchRecord{
		{Filename: "a.jpg", MatchedLabel: "Alice", Confidence: 0.8123456, Mode: "best", Timestamp: base},
		{Filename: "b.jpg", MatchedLabel: "Bob", Confidence: 0.5, Mode: "multi", Timestamp: base.Add(time.Hour)},
		{Filename: "=cmd.jpg", MatchedLabel: "Alice", Confidence: 1, Mode: "manual", Timestamp: base.Add(2 * time.Hour)},
	}
	for _, rec := range records {
		if err := store.LogMatch(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	return rows
}

func TestExport(t *testing.T) {
	var buf bytes.Buffer
	n, err := Export(context.Background(), seededStore(t), &buf, Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows, got %d", n)
	}

	rows := readCSV(t, buf.Bytes())
	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "filename" || rows[0][4] != "timestamp_utc" {
		t.Errorf("unexpected header %v", rows[0])
	}

	first := rows[1]
	if first[0] != "a.jpg" || first[1] != "Alice" || first[3] != "best" {
		t.Errorf("unexpected first row %v", first)
	}
	if first[2] != "0.8123" {
		t.Errorf("expected confidence 0.8123, got %s", first[2])
	}
	if first[4] != "2024-03-01T11:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", first[4])
	}
	if rows[3][0] != "'=cmd.jpg" {
		t.Errorf("expected formula to be neutralized, got %s", rows[3][0])
	}
}

func TestExport_Filter(t *testing.T) {
	store := seededStore(t)

	var buf bytes.Buffer
	n, err := Export(context.Background(), store, &buf, Filter{Label: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows for alice, got %d", n)
	}

	buf.Reset()
	since := time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC)
	n, err = Export(context.Background(), store, &buf, Filter{Since: since})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows since %s, got %d", since, n)
	}
}

type failingSource struct{ err error }

func (f failingSource) ListMatches(ctx context.Context) ([]database.MatchRecord, error) {
	return nil, f.err
}

func TestExport_SourceError(t *testing.T) {
	boom := errors.New("boom")
	var buf bytes.Buffer
	_, err := Export(context.Background(), failingSource{err: boom}, &buf, Filter{})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected nothing written, got %q", buf.String())
	}
}

func TestExportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.csv")

	n, err := ExportFile(context.Background(), seededStore(t), path, Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows, got %d", n)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if rows := readCSV(t, data); len(rows) != 4 {
		t.Errorf("expected 4 lines, got %d", len(rows))
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the export in %s, got %d entries", dir, len(entries))
	}
}

func TestExportFile_KeepsOldFileOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.csv")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ExportFile(context.Background(), failingSource{err: errors.New("boom")}, path, Filter{}); err == nil {
		t.Fatal("expected error")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "old" {
		t.Errorf("expected old content to survive, got %q", data)
	}
}
