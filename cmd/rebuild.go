package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-sorter/internal/refcache"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute the per-label face vectors",
	Long: `Recompute the mean face vector of every label (or only the given labels)
from their reference photos. A full rebuild also drops references whose file
no longer exists.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)

	rebuildCmd.Flags().StringSlice("labels", nil, "Only rebuild these labels (comma separated)")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	scope := refcache.AllLabels()
	if names := mustGetStringSlice(cmd, "labels"); len(names) > 0 {
		scope = refcache.Labels(names...)
	}

	if err := a.checkExtractor(ctx); err != nil {
		return err
	}

	fmt.Printf("Rebuilding %s...\n", scope)
	stats, err := a.cache.Rebuild(ctx, scope)
	if err != nil {
		return err
	}

	fmt.Printf("Labels built:    %d\n", stats.LabelsBuilt)
	if len(stats.LabelsRemoved) > 0 {
		fmt.Printf("Labels removed:  %v\n", stats.LabelsRemoved)
	}
	fmt.Printf("Images embedded: %d\n", stats.ImagesEmbedded)
	fmt.Printf("Images skipped:  %d\n", stats.ImagesSkipped)
	if stats.Purged > 0 {
		fmt.Printf("Missing purged:  %d\n", stats.Purged)
	}
	fmt.Printf("Duration:        %s\n", stats.Duration.Round(time.Millisecond))
	if !a.cache.Persistent() {
		fmt.Println("\nVectors are kept in memory only; sort and serve rebuild them on start.")
	}
	return nil
}
