package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/embedding"
	"github.com/kozaktomas/face-sorter/internal/thumbcache"
	"github.com/kozaktomas/face-sorter/internal/watcher"
	"github.com/kozaktomas/face-sorter/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Sorter HTTP API.
The API manages labels and references, runs sort jobs with live progress
(server-sent events), serves cached thumbnails and exposes the undo history.
The reference root is watched so edits made outside the app trigger rebuilds.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default from WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from WEB_HOST)")
	serveCmd.Flags().Bool("no-watch", false, "Do not watch the reference root for changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	if err := a.ensureCache(ctx); err != nil {
		if errors.Is(err, embedding.ErrExtractorUnavailable) {
			return err
		}
		// The API still serves label management; sorting reports missing data
		a.log.Warn("embedding cache not ready", zap.Error(err))
	}

	thumbs := thumbcache.New(
		thumbcache.WithMaxBytes(a.cfg.Cache.ThumbMaxBytes),
		thumbcache.WithMaxItems(a.cfg.Cache.ThumbMaxItems),
		thumbcache.WithBytesPerPixel(a.cfg.Defaults.Thumbnails.BytesPerPixel),
		thumbcache.WithResizeJump(a.cfg.Defaults.Thumbnails.ResizeJumpPixels, a.cfg.Defaults.Thumbnails.ResizeJumpRatio),
	)
	loader := thumbcache.NewLoader(thumbs, a.log, thumbcache.WithWorkers(a.cfg.Cache.ThumbWorkers))

	if !mustGetBool(cmd, "no-watch") {
		w, err := watcher.New(a.cfg.Library.ReferenceRoot, a.exts, a.scheduler, a.log,
			watcher.WithThumbnails(thumbs),
			watcher.WithLabelResolver(a.manager.LabelForFolder),
		)
		if err != nil {
			return fmt.Errorf("failed to watch reference root: %w", err)
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil {
				a.log.Warn("watcher stopped", zap.Error(err))
			}
		}()
	}

	server := web.NewServer(a.cfg, web.Deps{
		Labels:     a.manager,
		Sorter:     a.sorter,
		Assigner:   a.sorter,
		Scheduler:  a.scheduler,
		Cache:      a.cache,
		Thumbnails: loader,
		Audit:      a.store,
	}, a.log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Sorter API on http://%s:%d\n", a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
