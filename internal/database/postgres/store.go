package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/pgvector/pgvector-go"
)

// Store implements database.Store and database.CentroidStore on PostgreSQL
type Store struct {
	pool *Pool
}

// NewStore creates a store on an existing pool
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool
func (s *Store) Close() error {
	return s.pool.Close()
}

// ListReferences returns every reference ordered by label and path
func (s *Store) ListReferences(ctx context.Context) ([]database.ReferenceEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, label, path, created_at
		FROM reference_images
		ORDER BY label, path
	`)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	return scanReferences(rows)
}

// ListReferencesByLabel returns the references of one label
func (s *Store) ListReferencesByLabel(ctx context.Context, label string) ([]database.ReferenceEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, label, path, created_at
		FROM reference_images
		WHERE label = $1
		ORDER BY path
	`, label)
	if err != nil {
		return nil, fmt.Errorf("query references for %s: %w", label, err)
	}
	return scanReferences(rows)
}

func scanReferences(rows *sql.Rows) ([]database.ReferenceEntry, error) {
	defer rows.Close()

	var refs []database.ReferenceEntry
	for rows.Next() {
		var ref database.ReferenceEntry
		if err := rows.Scan(&ref.ID, &ref.Label, &ref.Path, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	return refs, nil
}

// InsertReference stores a reference, relabeling it when the path already exists
func (s *Store) InsertReference(ctx context.Context, path, label string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reference_images (path, label)
		VALUES ($1, $2)
		ON CONFLICT (path) DO UPDATE SET label = EXCLUDED.label
	`, path, label)
	if err != nil {
		return fmt.Errorf("insert reference %s: %w", path, err)
	}
	return nil
}

// DeleteReference removes the reference with the given path
func (s *Store) DeleteReference(ctx context.Context, path string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM reference_images WHERE path = $1", path); err != nil {
		return fmt.Errorf("delete reference %s: %w", path, err)
	}
	return nil
}

// PurgeMissingReferences deletes rows whose file no longer exists
func (s *Store) PurgeMissingReferences(ctx context.Context) (int, error) {
	refs, err := s.ListReferences(ctx)
	if err != nil {
		return 0, err
	}
	return database.PurgeMissing(ctx, refs, s.DeleteReference)
}

// GetLabel returns the label record or database.ErrNotFound
func (s *Store) GetLabel(ctx context.Context, label string) (*database.LabelRecord, error) {
	var rec database.LabelRecord
	err := s.pool.QueryRow(ctx, `
		SELECT label, folder_path, threshold FROM labels WHERE label = $1
	`, label).Scan(&rec.Label, &rec.FolderPath, &rec.Threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("label %s: %w", label, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query label %s: %w", label, err)
	}
	return &rec, nil
}

// ListLabels returns every label ordered by name
func (s *Store) ListLabels(ctx context.Context) ([]database.LabelRecord, error) {
	rows, err := s.pool.Query(ctx, "SELECT label, folder_path, threshold FROM labels ORDER BY label")
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var labels []database.LabelRecord
	for rows.Next() {
		var rec database.LabelRecord
		if err := rows.Scan(&rec.Label, &rec.FolderPath, &rec.Threshold); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return labels, nil
}

// GetThreshold returns the label's threshold or database.ErrNotFound
func (s *Store) GetThreshold(ctx context.Context, label string) (float64, error) {
	rec, err := s.GetLabel(ctx, label)
	if err != nil {
		return 0, err
	}
	return rec.Threshold, nil
}

// SetThreshold updates the threshold of an existing label
func (s *Store) SetThreshold(ctx context.Context, label string, threshold float64) error {
	res, err := s.pool.Exec(ctx, "UPDATE labels SET threshold = $2 WHERE label = $1", label, threshold)
	if err != nil {
		return fmt.Errorf("update threshold for %s: %w", label, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("label %s: %w", label, database.ErrNotFound)
	}
	return nil
}

// InsertOrUpdateLabel creates or replaces a label record
func (s *Store) InsertOrUpdateLabel(ctx context.Context, label, folder string, threshold float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO labels (label, folder_path, threshold)
		VALUES ($1, $2, $3)
		ON CONFLICT (label) DO UPDATE SET folder_path = EXCLUDED.folder_path, threshold = EXCLUDED.threshold
	`, label, folder, threshold)
	if err != nil {
		return fmt.Errorf("upsert label %s: %w", label, err)
	}
	return nil
}

// DeleteLabel removes the label, its references and its stored centroid in one transaction
func (s *Store) DeleteLabel(ctx context.Context, label string) error {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, stmt := range []string{
		"DELETE FROM reference_images WHERE label = $1",
		"DELETE FROM label_centroids WHERE label = $1",
		"DELETE FROM labels WHERE label = $1",
	} {
		if _, err := tx.ExecContext(ctx, stmt, label); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete label %s: %w", label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete label %s: %w", label, err)
	}
	return nil
}

// LogMatch appends one match decision
func (s *Store) LogMatch(ctx context.Context, rec database.MatchRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO match_audit (filename, matched_label, confidence, mode, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.Filename, rec.MatchedLabel, rec.Confidence, rec.Mode, rec.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert match audit: %w", err)
	}
	return nil
}

// ListMatches returns all match decisions in insertion order
func (s *Store) ListMatches(ctx context.Context) ([]database.MatchRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, filename, matched_label, confidence, mode, created_at
		FROM match_audit
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query match audit: %w", err)
	}
	defer rows.Close()

	var records []database.MatchRecord
	for rows.Next() {
		var rec database.MatchRecord
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.MatchedLabel, &rec.Confidence, &rec.Mode, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan match audit: %w", err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match audit: %w", err)
	}
	return records, nil
}

// SaveCentroids replaces the stored vectors for the given labels
func (s *Store) SaveCentroids(ctx context.Context, centroids map[string][]float32) error {
	if len(centroids) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for label, vec := range centroids {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO label_centroids (label, centroid, dim, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (label) DO UPDATE SET centroid = EXCLUDED.centroid, dim = EXCLUDED.dim, updated_at = NOW()
		`, label, pgvector.NewVector(vec), len(vec))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("save centroid for %s: %w", label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit centroids: %w", err)
	}
	return nil
}

// DeleteCentroid removes the stored vector for a label
func (s *Store) DeleteCentroid(ctx context.Context, label string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM label_centroids WHERE label = $1", label); err != nil {
		return fmt.Errorf("delete centroid for %s: %w", label, err)
	}
	return nil
}

// LoadCentroids returns every stored vector keyed by label
func (s *Store) LoadCentroids(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.pool.Query(ctx, "SELECT label, centroid FROM label_centroids")
	if err != nil {
		return nil, fmt.Errorf("query centroids: %w", err)
	}
	defer rows.Close()

	centroids := make(map[string][]float32)
	for rows.Next() {
		var label string
		var vec pgvector.Vector
		if err := rows.Scan(&label, &vec); err != nil {
			return nil, fmt.Errorf("scan centroid: %w", err)
		}
		centroids[label] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate centroids: %w", err)
	}
	return centroids, nil
}

var (
	_ database.Store         = (*Store)(nil)
	_ database.CentroidStore = (*Store)(nil)
)
