package thumbcache

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	// Decoders beyond the image/* defaults
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/face-sorter/internal/logger"
)

// DefaultWorkers is the prefetch concurrency when none is configured
const DefaultWorkers = 4

// RenderFunc decodes path and scales it to fit a size x size box
type RenderFunc func(path string, size int) (image.Image, error)

// Loader fills the cache on misses. Concurrent misses for the same key share
// one decode.
type Loader struct {
	cache   *Cache
	render  RenderFunc
	workers int
	group   singleflight.Group
	log     *zap.Logger
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithWorkers sets the prefetch concurrency
func WithWorkers(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithRender replaces the imaging-based renderer
func WithRender(fn RenderFunc) LoaderOption {
	return func(l *Loader) { l.render = fn }
}

func NewLoader(cache *Cache, log *zap.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		cache:   cache,
		render:  Render,
		workers: DefaultWorkers,
		log:     logger.OrNop(log).Named("thumbcache"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Cache returns the underlying cache
func (l *Loader) Cache() *Cache {
	return l.cache
}

// Render opens an image honoring its EXIF orientation and fits it into size x size
func Render(path string, size int) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return imaging.Fit(img, size, size, imaging.Lanczos), nil
}

// Load returns the thumbnail for (path, size), rendering it on a miss.
// A request far from the previous size drops thumbnails of other sizes first.
func (l *Loader) Load(ctx context.Context, path string, size int) (image.Image, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %d", size)
	}
	if removed := l.cache.ObserveSize(size); removed > 0 {
		l.log.Debug("thumbnail size changed, purged other sizes", zap.Int("size", size), zap.Int("removed", removed))
	}
	if img, ok := l.cache.Get(path, size); ok {
		return img, nil
	}

	key := path + "\x00" + strconv.Itoa(size)
	ch := l.group.DoChan(key, func() (any, error) {
		if img, ok := l.cache.Get(path, size); ok {
			return img, nil
		}
		img, err := l.render(path, size)
		if err != nil {
			return nil, err
		}
		l.cache.Put(path, size, img)
		return img, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(image.Image), nil
	}
}

// Prefetch warms the cache for paths at one size using a bounded worker pool.
// Undecodable files are logged and skipped. Returns how many thumbnails are now cached.
func (l *Loader) Prefetch(ctx context.Context, paths []string, size int) (int, error) {
	l.cache.ObserveSize(size)

	var loaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if _, err := l.Load(gctx, path, size); err != nil {
				if gctx.Err() == nil {
					l.log.Warn("failed to prefetch thumbnail", zap.String("path", path), zap.Error(err))
				}
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(loaded.Load()), err
	}
	return int(loaded.Load()), ctx.Err()
}
