package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/embedding"
	"github.com/kozaktomas/face-sorter/internal/fileutil"
	"github.com/kozaktomas/face-sorter/internal/labels"
	"github.com/kozaktomas/face-sorter/internal/logger"
	"github.com/kozaktomas/face-sorter/internal/refcache"
	"github.com/kozaktomas/face-sorter/internal/scheduler"
	"github.com/kozaktomas/face-sorter/internal/sorter"
	"github.com/kozaktomas/face-sorter/internal/trash"
	"github.com/kozaktomas/face-sorter/internal/undo"

	// Store backends register themselves with database.Open
	_ "github.com/kozaktomas/face-sorter/internal/database/postgres"
	_ "github.com/kozaktomas/face-sorter/internal/database/sqlite"
)

// flushTimeout bounds how long a command waits for a pending rebuild on exit
const flushTimeout = 5 * time.Minute

// app is the component graph shared by every command
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	store     database.Store
	extractor *embedding.Client
	cache     *refcache.Cache
	scheduler *scheduler.Scheduler
	manager   *labels.Manager
	sorter    *sorter.Sorter
	exts      fileutil.Extensions
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	log := logger.New(debug || cfg.LogDebug)

	// Stored reference paths are absolute
	if root, err := filepath.Abs(cfg.Library.ReferenceRoot); err == nil {
		cfg.Library.ReferenceRoot = root
	}
	if err := os.MkdirAll(cfg.Library.ReferenceRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reference root: %w", err)
	}

	log.Debug("opening reference store", zap.String("backend", database.BackendName(&cfg.Database)))
	store, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	extractor := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout)

	var cacheOpts []refcache.Option
	if cs, ok := store.(database.CentroidStore); ok {
		cacheOpts = append(cacheOpts, refcache.WithCentroidStore(cs))
	}
	cache := refcache.New(store, extractor, log, cacheOpts...)

	sched := scheduler.New(cache, log, scheduler.WithDebounce(cfg.Cache.RebuildDebounce))

	stack, err := undo.NewStack(cfg.Library.UndoLimit, undo.NewFileJournal(cfg.Library.UndoJournal), log)
	if err != nil {
		sched.Close()
		store.Close()
		return nil, fmt.Errorf("failed to load undo history: %w", err)
	}

	exts := fileutil.NewExtensions(cfg.Defaults.ImageExtensions)
	threshold := cfg.Defaults.Matching.DefaultThreshold

	manager := labels.NewManager(store, trash.NewLocal(cfg.Library.TrashDir, log), stack, sched,
		cfg.Library.ReferenceRoot, exts, log, labels.WithDefaultThreshold(threshold))
	srt := sorter.New(cache, extractor, store, exts, log,
		sorter.WithDefaultThreshold(threshold),
		sorter.WithThresholdSource(manager),
	)

	return &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		extractor: extractor,
		cache:     cache,
		scheduler: sched,
		manager:   manager,
		sorter:    srt,
		exts:      exts,
	}, nil
}

// checkExtractor fails fast when the embedding server cannot be reached
func (a *app) checkExtractor(ctx context.Context) error {
	if err := a.extractor.Health(ctx); err != nil {
		return fmt.Errorf("embedding server not ready: %w", err)
	}
	return nil
}

// ensureCache loads persisted vectors, or rebuilds everything when none exist.
// The embedding server must be healthy either way since sorting needs it.
func (a *app) ensureCache(ctx context.Context) error {
	if err := a.checkExtractor(ctx); err != nil {
		return err
	}

	n, err := a.cache.Warm(ctx)
	if err != nil {
		a.log.Warn("failed to warm embedding cache", zap.Error(err))
	}
	if n > 0 {
		a.log.Debug("embedding cache warmed", zap.Int("labels", n))
		return nil
	}

	fmt.Println("Building embedding cache...")
	stats, err := a.cache.Rebuild(ctx, refcache.AllLabels())
	if err != nil {
		return fmt.Errorf("failed to build embedding cache: %w", err)
	}
	fmt.Printf("Cache ready: %d labels, %d images embedded, %d skipped\n",
		stats.LabelsBuilt, stats.ImagesEmbedded, stats.ImagesSkipped)
	return nil
}

// Close runs any pending rebuild to completion and releases the store
func (a *app) Close() {
	a.scheduler.Flush()
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := a.scheduler.Wait(ctx); err != nil {
		a.log.Warn("pending rebuild did not finish", zap.Error(err))
	}
	a.scheduler.Close()

	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close store", zap.Error(err))
	}
	_ = a.log.Sync()
}

// signalContext is cancelled on the first SIGINT/SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Println("\nInterrupted, finishing current file...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// confirm asks a yes/no question on stdin
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
