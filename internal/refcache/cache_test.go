package refcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/kozaktomas/face-sorter/internal/database/mock"
	"github.com/kozaktomas/face-sorter/internal/embedding"
)

type fixture struct {
	dir       string
	store     *mock.MockStore
	extractor *embedding.StaticExtractor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		dir:       t.TempDir(),
		store:     mock.NewMockStore(),
		extractor: embedding.NewStaticExtractor(),
	}
}

// addRef writes a reference file whose content doubles as the extractor key
func (f *fixture) addRef(t *testing.T, label, name string, faces ...[]float32) string {
	t.Helper()
	path := filepath.Join(f.dir, label, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	content := label + "/" + name
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	f.extractor.Set(content, faces...)
	if err := f.store.InsertReference(context.Background(), path, label); err != nil {
		t.Fatal(err)
	}
	return path
}

func vectorOf(t *testing.T, snap *Snapshot, label string) []float32 {
	t.Helper()
	vec, ok := snap.Vector(label)
	if !ok {
		t.Fatalf("expected vector for %s", label)
	}
	return vec
}

func TestRebuild_AllLabels(t *testing.T) {
	f := newFixture(t)
	f.addRef(t, "Alice", "1.jpg", []float32{1, 0})
	f.addRef(t, "Alice", "2.jpg", []float32{0, 1})
	f.addRef(t, "Bob", "1.jpg", []float32{1, 1})

	cache := New(f.store, f.extractor, nil)
	stats, err := cache.Rebuild(context.Background(), AllLabels())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.LabelsBuilt != 2 || stats.ImagesEmbedded != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if got := vectorOf(t, cache.Snapshot(), "Alice"); !slices.Equal(got, []float32{0.5, 0.5}) {
		t.Errorf("expected Alice mean [0.5 0.5], got %v", got)
	}
	if got := cache.Snapshot().Labels(); !slices.Equal(got, []string{"Alice", "Bob"}) {
		t.Errorf("unexpected labels %v", got)
	}
}

func TestRebuild_MultiFaceImageAveragedFirst(t *testing.T) {
	f := newFixture(t)
	// A group photo with three faces must weigh the same as a single-face photo.
	f.addRef(t, "Alice", "group.jpg", []float32{3, 0}, []float32{3, 0}, []float32{0, 0})
	f.addRef(t, "Alice", "solo.jpg", []float32{0, 2})

	cache := New(f.store, f.extractor, nil)
	if _, err := cache.Rebuild(context.Background(), AllLabels()); err != nil {
		t.Fatal(err)
	}

	// group image mean = [2 0]; label mean = ([2 0] + [0 2]) / 2
	if got := vectorOf(t, cache.Snapshot(), "Alice"); !slices.Equal(got, []float32{1, 1}) {
		t.Errorf("expected [1 1], got %v", got)
	}
}

func TestRebuild_LabelIsolation(t *testing.T) {
	f := newFixture(t)
	f.addRef(t, "Alice", "1.jpg", []float32{1, 0})
	f.addRef(t, "Bob", "1.jpg", []float32{0, 1})

	cache := New(f.store, f.extractor, nil)
	if _, err := cache.Rebuild(context.Background(), AllLabels()); err != nil {
		t.Fatal(err)
	}
	bobBefore := slices.Clone(vectorOf(t, cache.Snapshot(), "Bob"))

	f.addRef(t, "Alice", "2.jpg", []float32{0, 1})
	// Bob's image would now embed differently, but a rebuild of Alice must not look at it.
	f.extractor.Set("Bob/1.jpg", []float32{5, 5})

	if _, err := cache.Rebuild(context.Background(), Labels("Alice")); err != nil {
		t.Fatal(err)
	}

	if got := vectorOf(t, cache.Snapshot(), "Bob"); !slices.Equal(got, bobBefore) {
		t.Errorf("expected Bob unchanged %v, got %v", bobBefore, got)
	}
	if got := vectorOf(t, cache.Snapshot(), "Alice"); !slices.Equal(got, []float32{0.5, 0.5}) {
		t.Errorf("expected Alice rebuilt to [0.5 0.5], got %v", got)
	}
}

func TestRebuild_SkipsBadImages(t *testing.T) {
	f := newFixture(t)
	f.addRef(t, "Alice", "good.jpg", []float32{1, 0})
	f.addRef(t, "Alice", "noface.jpg")
	f.addRef(t, "Alice", "bad.jpg")
	f.extractor.SetError("Alice/bad.jpg", embedding.ErrUndecodable)
	missing := f.addRef(t, "Alice", "missing.jpg", []float32{9, 9})
	os.Remove(missing)
	f.addRef(t, "Alice", "wrongdim.jpg", []float32{1, 0, 0})

	cache := New(f.store, f.extractor, nil)
	stats, err := cache.Rebuild(context.Background(), Labels("Alice"))
	if err != nil {
		t.Fatalf("per-image failures must not fail the rebuild: %v", err)
	}
	if stats.ImagesEmbedded != 1 || stats.ImagesSkipped != 4 {
		t.Errorf("expected 1 embedded and 4 skipped, got %+v", stats)
	}
	if got := vectorOf(t, cache.Snapshot(), "Alice"); !slices.Equal(got, []float32{1, 0}) {
		t.Errorf("expected [1 0], got %v", got)
	}
}

func TestRebuild_RemovesLabelWithoutEmbeddings(t *testing.T) {
	f := newFixture(t)
	alice := f.addRef(t, "Alice", "1.jpg", []float32{1, 0})
	f.addRef(t, "Bob", "1.jpg", []float32{0, 1})

	cache := New(f.store, f.extractor, nil)
	if _, err := cache.Rebuild(context.Background(), AllLabels()); err != nil {
		t.Fatal(err)
	}

	f.store.DeleteReference(context.Background(), alice)
	stats, err := cache.Rebuild(context.Background(), Labels("Alice"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Snapshot().Vector("Alice"); ok {
		t.Error("expected Alice removed from cache")
	}
	if !slices.Equal(stats.LabelsRemoved, []string{"Alice"}) {
		t.Errorf("expected Alice reported removed, got %v", stats.LabelsRemoved)
	}
	if _, ok := cache.Snapshot().Vector("Bob"); !ok {
		t.Error("expected Bob to stay cached")
	}

	// A full rebuild drops labels whose images all fail.
	f.extractor.Set("Bob/1.jpg")
	if _, err := cache.Rebuild(context.Background(), AllLabels()); err != nil {
		t.Fatal(err)
	}
	if cache.Snapshot().Len() != 0 {
		t.Errorf("expected empty cache, got %v", cache.Snapshot().Labels())
	}
}

func TestRebuild_AllPurgesMissingReferences(t *testing.T) {
	f := newFixture(t)
	f.addRef(t, "Alice", "1.jpg", []float32{1, 0})
	gone := f.addRef(t, "Alice", "2.jpg", []float32{0, 1})
	os.Remove(gone)

	cache := New(f.store, f.extractor, nil)
	stats, err := cache.Rebuild(context.Background(), AllLabels())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Purged != 1 {
		t.Errorf("expected 1 purged reference, got %d", stats.Purged)
	}
	if paths := f.store.Paths("Alice"); len(paths) != 1 {
		t.Errorf("expected dead row removed from store, got %v", paths)
	}
}

func TestRebuild_ExtractorUnavailablePublishesNothing(t *testing.T) {
	f := newFixture(t)
	f.addRef(t, "Alice", "1.jpg", []float32{1, 0})

	cache := New(f.store, f.extractor, nil)
	if _, err := cache.Rebuild(context.Background(), AllLabels()); err != nil {
		t.Fatal(err)
	}
	before := cache.Snapshot()

	f.extractor.Err = embedding.ErrExtractorUnavailable
	_, err := cache.Rebuild(context.Background(), AllLabels())
	if !errors.Is(err, embedding.ErrExtractorUnavailable) {
		t.Fatalf("expected ErrExtractorUnavailable, got %v", err)
	}
	if cache.Snapshot() != before {
		t.Error("expected previous snapshot to remain published")
	}
}

func TestRebuild_DimensionMismatch(t *testing.T) {
	f := newFixture(t)
	f.addRef(t, "Alice", "1.jpg", []float32{1, 0})
	f.addRef(t, "Bob", "1.jpg", []float32{0, 1})

	cache := New(f.store, f.extractor, nil)
	if _, err := cache.Rebuild(context.Background(), AllLabels()); err != nil {
		t.Fatal(err)
	}
	before := cache.Snapshot()

	// Bob re-embeds with a different model while Alice keeps the old vector
	f.extractor.Set("Bob/1.jpg", []float32{0, 1, 0})
	_, err := cache.Rebuild(context.Background(), Labels("Bob"))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if cache.Snapshot() != before {
		t.Error("expected previous snapshot to remain published")
	}

	f.extractor.Set("Alice/1.jpg", []float32{1, 0, 0})
	if _, err := cache.Rebuild(context.Background(), AllLabels()); err != nil {
		t.Fatalf("expected full rebuild with one dimension to succeed, got %v", err)
	}
	if got := vectorOf(t, cache.Snapshot(), "Alice"); len(got) != 3 {
		t.Errorf("expected 3-dim Alice vector, got %v", got)
	}
}

func TestRebuild_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.addRef(t, "Alice", "1.jpg", []float32{1, 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cache := New(f.store, f.extractor, nil)
	if _, err := cache.Rebuild(ctx, AllLabels()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if cache.Snapshot().Len() != 0 {
		t.Error("expected nothing published")
	}
}

func TestRebuild_EmptyScope(t *testing.T) {
	f := newFixture(t)
	cache := New(f.store, f.extractor, nil)
	if _, err := cache.Rebuild(context.Background(), Labels()); err != nil {
		t.Fatal(err)
	}
	if f.extractor.Calls() != 0 {
		t.Error("expected no extraction for empty scope")
	}
}

func TestCentroidPersistenceAndWarm(t *testing.T) {
	f := newFixture(t)
	f.addRef(t, "Alice", "1.jpg", []float32{1, 0})
	bob := f.addRef(t, "Bob", "1.jpg", []float32{0, 1})

	cache := New(f.store, f.extractor, nil, WithCentroidStore(f.store))
	if !cache.Persistent() {
		t.Error("expected persistent cache")
	}
	if _, err := cache.Rebuild(context.Background(), AllLabels()); err != nil {
		t.Fatal(err)
	}

	f.store.DeleteReference(context.Background(), bob)
	if _, err := cache.Rebuild(context.Background(), Labels("Bob")); err != nil {
		t.Fatal(err)
	}

	warm := New(f.store, f.extractor, nil, WithCentroidStore(f.store))
	n, err := warm.Warm(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 warmed label, got %d", n)
	}
	if got := vectorOf(t, warm.Snapshot(), "Alice"); !slices.Equal(got, []float32{1, 0}) {
		t.Errorf("expected persisted Alice vector, got %v", got)
	}
	if _, ok := warm.Snapshot().Vector("Bob"); ok {
		t.Error("expected Bob centroid deleted with the label")
	}
}

func TestWarm_WithoutCentroidStore(t *testing.T) {
	f := newFixture(t)
	cache := New(f.store, f.extractor, nil)
	n, err := cache.Warm(context.Background())
	if err != nil || n != 0 {
		t.Errorf("expected no-op warm, got %d, %v", n, err)
	}
}

func TestSnapshot_ConcurrentReaders(t *testing.T) {
	f := newFixture(t)
	f.addRef(t, "Alice", "1.jpg", []float32{1, 1, 1, 1})

	cache := New(f.store, f.extractor, nil)
	if _, err := cache.Rebuild(context.Background(), AllLabels()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				vec, ok := cache.Snapshot().Vector("Alice")
				if !ok {
					continue
				}
				// Every published vector is internally consistent.
				for _, x := range vec[1:] {
					if x != vec[0] {
						t.Errorf("observed partially updated vector %v", vec)
						return
					}
				}
			}
		}()
	}

	for i := range 20 {
		v := float32(i)
		f.extractor.Set("Alice/1.jpg", []float32{v, v, v, v})
		if _, err := cache.Rebuild(context.Background(), Labels("Alice")); err != nil {
			t.Error(err)
		}
	}
	close(stop)
	wg.Wait()
}
