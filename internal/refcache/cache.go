// Package refcache holds the per-label mean face vectors derived from the reference store.
package refcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/embedding"
	"github.com/kozaktomas/face-sorter/internal/logger"
)

// ErrDimensionMismatch means label vectors of different lengths would end up in one snapshot,
// typically after the embedding model changed without a full rebuild.
var ErrDimensionMismatch = errors.New("label vectors differ in dimension")

// RebuildStats summarizes one rebuild
type RebuildStats struct {
	Scope          Scope
	LabelsBuilt    int
	LabelsRemoved  []string
	ImagesEmbedded int
	ImagesSkipped  int
	Purged         int
	Duration       time.Duration
}

// Cache maps label to mean vector. Readers take a Snapshot; Rebuild publishes
// a new snapshot with a single atomic swap so no reader sees a partial update.
type Cache struct {
	store     database.ReferenceWriter
	extractor embedding.Extractor
	centroids database.CentroidStore
	logger    *zap.Logger
	readFile  func(string) ([]byte, error)

	mu   sync.Mutex // serializes rebuilds
	snap atomic.Pointer[Snapshot]
}

// Option configures a Cache
type Option func(*Cache)

// WithCentroidStore persists rebuilt vectors and enables Warm
func WithCentroidStore(cs database.CentroidStore) Option {
	return func(c *Cache) {
		c.centroids = cs
	}
}

// WithReadFile overrides how reference images are read
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(c *Cache) {
		c.readFile = fn
	}
}

// New creates an empty cache
func New(store database.ReferenceWriter, extractor embedding.Extractor, log *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:     store,
		extractor: extractor,
		logger:    logger.OrNop(log).Named("refcache"),
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.snap.Store(newSnapshot(map[string][]float32{}))
	return c
}

// Snapshot returns the current immutable view
func (c *Cache) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Persistent reports whether rebuilt vectors outlive the process
func (c *Cache) Persistent() bool {
	return c.centroids != nil
}

// Warm publishes the persisted vectors without running the extractor.
// Returns the number of labels loaded; 0 when no centroid store is configured.
func (c *Cache) Warm(ctx context.Context) (int, error) {
	if c.centroids == nil {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	vectors, err := c.centroids.LoadCentroids(ctx)
	if err != nil {
		return 0, fmt.Errorf("load centroids: %w", err)
	}
	c.snap.Store(newSnapshot(vectors))
	c.logger.Info("cache warmed from stored centroids", zap.Int("labels", len(vectors)))
	return len(vectors), nil
}

// Rebuild recomputes the vectors for scope. AllLabels purges missing references
// and replaces the whole map; a label scope leaves every other label untouched.
// Per-image failures are logged and skipped. An unavailable extractor or a
// cancelled context aborts the rebuild and nothing is published.
func (c *Cache) Rebuild(ctx context.Context, scope Scope) (*RebuildStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	stats := &RebuildStats{Scope: scope}
	if scope.IsEmpty() {
		return stats, nil
	}

	refs, err := c.collect(ctx, scope, stats)
	if err != nil {
		return nil, err
	}

	grouped := database.GroupByLabel(refs)
	labels := make([]string, 0, len(grouped))
	for label := range grouped {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	built := make(map[string][]float32, len(labels))
	for _, label := range labels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := c.buildLabel(ctx, label, grouped[label], stats)
		if err != nil {
			return nil, fmt.Errorf("rebuild %s: %w", label, err)
		}
		if vec == nil {
			c.logger.Warn("no valid embeddings for label", zap.String("label", label))
			continue
		}
		built[label] = vec
	}

	previous := c.Snapshot()
	next := make(map[string][]float32, len(built)+previous.Len())
	if scope.IsAll() {
		for label, vec := range built {
			next[label] = vec
		}
		for _, label := range previous.Labels() {
			if _, ok := built[label]; !ok {
				stats.LabelsRemoved = append(stats.LabelsRemoved, label)
			}
		}
	} else {
		for label, vec := range previous.vectors {
			next[label] = vec
		}
		for _, label := range scope.LabelNames() {
			if vec, ok := built[label]; ok {
				next[label] = vec
				continue
			}
			if _, ok := next[label]; ok {
				delete(next, label)
				stats.LabelsRemoved = append(stats.LabelsRemoved, label)
			}
		}
	}
	if err := checkDimensions(next); err != nil {
		c.logger.Error("rebuild rejected", zap.Stringer("scope", scope), zap.Error(err))
		return nil, err
	}
	c.snap.Store(newSnapshot(next))
	stats.LabelsBuilt = len(built)

	c.persist(ctx, built, stats.LabelsRemoved)

	stats.Duration = time.Since(start)
	c.logger.Info("embedding cache rebuilt",
		zap.Stringer("scope", scope),
		zap.Int("labels_built", stats.LabelsBuilt),
		zap.Strings("labels_removed", stats.LabelsRemoved),
		zap.Int("images_embedded", stats.ImagesEmbedded),
		zap.Int("images_skipped", stats.ImagesSkipped),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// checkDimensions requires every vector to have the same length
func checkDimensions(vectors map[string][]float32) error {
	labels := make([]string, 0, len(vectors))
	for label := range vectors {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	dim, first := 0, ""
	for _, label := range labels {
		n := len(vectors[label])
		if first == "" {
			dim, first = n, label
			continue
		}
		if n != dim {
			return fmt.Errorf("%w: %s has %d, %s has %d", ErrDimensionMismatch, first, dim, label, n)
		}
	}
	return nil
}

// collect lists the references covered by scope
func (c *Cache) collect(ctx context.Context, scope Scope, stats *RebuildStats) ([]database.ReferenceEntry, error) {
	if scope.IsAll() {
		purged, err := c.store.PurgeMissingReferences(ctx)
		if err != nil {
			c.logger.Warn("reference cleanup skipped", zap.Error(err))
		} else if purged > 0 {
			stats.Purged = purged
			c.logger.Info("removed dead reference entries", zap.Int("count", purged))
		}

		refs, err := c.store.ListReferences(ctx)
		if err != nil {
			return nil, fmt.Errorf("list references: %w", err)
		}
		return refs, nil
	}

	var refs []database.ReferenceEntry
	for _, label := range scope.LabelNames() {
		labelRefs, err := c.store.ListReferencesByLabel(ctx, label)
		if err != nil {
			return nil, fmt.Errorf("list references for %s: %w", label, err)
		}
		refs = append(refs, labelRefs...)
	}
	return refs, nil
}

// buildLabel averages the per-image vectors of one label. Each image contributes
// the mean of its faces so group photos are not weighted by face count.
// Returns nil when no image produced a usable vector.
func (c *Cache) buildLabel(ctx context.Context, label string, refs []database.ReferenceEntry, stats *RebuildStats) ([]float32, error) {
	var imageVecs [][]float32
	dim := 0

	for _, ref := range refs {
		log := c.logger.With(zap.String("label", label), zap.String("path", ref.Path))

		data, err := c.readFile(ref.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Warn("missing reference file, skipping")
			} else {
				log.Warn("unreadable reference file, skipping", zap.Error(err))
			}
			stats.ImagesSkipped++
			continue
		}

		faces, err := c.extractor.DetectFaces(ctx, data)
		if err != nil {
			if errors.Is(err, embedding.ErrExtractorUnavailable) || ctx.Err() != nil {
				return nil, err
			}
			log.Warn("face detection failed, skipping", zap.Error(err))
			stats.ImagesSkipped++
			continue
		}
		if len(faces) == 0 {
			log.Warn("no face found in reference")
			stats.ImagesSkipped++
			continue
		}

		vec, err := embedding.Mean(embedding.FaceVectors(faces))
		if err != nil {
			log.Warn("invalid face embeddings, skipping", zap.Error(err))
			stats.ImagesSkipped++
			continue
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			log.Warn("embedding dimension mismatch, skipping", zap.Int("expected", dim), zap.Int("got", len(vec)))
			stats.ImagesSkipped++
			continue
		}

		imageVecs = append(imageVecs, vec)
		stats.ImagesEmbedded++
		log.Debug("embedded reference", zap.Int("faces", len(faces)))
	}

	if len(imageVecs) == 0 {
		return nil, nil
	}
	return embedding.Mean(imageVecs)
}

// persist mirrors the rebuilt vectors into the centroid store; failures only cost a warm start
func (c *Cache) persist(ctx context.Context, built map[string][]float32, removed []string) {
	if c.centroids == nil {
		return
	}
	if err := c.centroids.SaveCentroids(ctx, built); err != nil {
		c.logger.Warn("failed to persist centroids", zap.Error(err))
	}
	for _, label := range removed {
		if err := c.centroids.DeleteCentroid(ctx, label); err != nil {
			c.logger.Warn("failed to delete centroid", zap.String("label", label), zap.Error(err))
		}
	}
}
