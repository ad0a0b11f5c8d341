package cmd

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-sorter/internal/facematch"
	"github.com/kozaktomas/face-sorter/internal/sorter"
)

var sortCmd = &cobra.Command{
	Use:   "sort <inbox> <output>",
	Short: "Distribute inbox photos into per-label folders",
	Long: `Sort every image under the inbox folder by comparing the faces it contains
with each label's mean reference vector.

Modes:
  best    move the photo to the highest-scoring label
  multi   copy to every other matched label, then move to the best one
  manual  leave every photo in the unmatched folder for manual triage

Photos without a face above any label's threshold go to the unmatched folder.`,
	Args: cobra.ExactArgs(2),
	RunE: runSort,
}

func init() {
	rootCmd.AddCommand(sortCmd)

	sortCmd.Flags().String("mode", "", "Distribution mode: best, multi, manual (default from SORT_MODE)")
	sortCmd.Flags().Bool("keep-names", true, "Keep original file names (otherwise rename to a timestamp)")
	sortCmd.Flags().Bool("dry-run", false, "Decide only, do not move or copy files")
	sortCmd.Flags().Int("limit", 0, "Limit number of photos to process (0 = no limit)")
	sortCmd.Flags().String("unmatched", "", "Folder for unmatched photos (default <output>/_unmatched)")
}

func runSort(cmd *cobra.Command, args []string) error {
	inbox, output := args[0], args[1]

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	modeName := mustGetString(cmd, "mode")
	if modeName == "" {
		modeName = a.cfg.Sort.Mode
	}
	mode, err := facematch.ParseMode(modeName)
	if err != nil {
		return err
	}

	keepNames := a.cfg.Sort.KeepOriginalNames
	if cmd.Flags().Changed("keep-names") {
		keepNames = mustGetBool(cmd, "keep-names")
	}
	dryRun := mustGetBool(cmd, "dry-run")

	// Manual triage never looks at faces
	if mode != facematch.ModeManual {
		if err := a.ensureCache(ctx); err != nil {
			return err
		}
	}

	var bar *progressbar.ProgressBar
	req := sorter.SortRequest{
		InboxDir:          inbox,
		OutputDir:         output,
		UnmatchedDir:      mustGetString(cmd, "unmatched"),
		Mode:              mode,
		KeepOriginalNames: keepNames,
		DryRun:            dryRun,
		Limit:             mustGetInt(cmd, "limit"),
		OnProgress: func(info sorter.ProgressInfo) {
			if info.Phase != "sorting" {
				return
			}
			if bar == nil {
				bar = progressbar.NewOptions(info.Total,
					progressbar.OptionSetDescription("Sorting photos"),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
					progressbar.OptionSetItsString("photos"),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionSetPredictTime(true),
					progressbar.OptionFullWidth(),
				)
			}
			_ = bar.Set(info.Current)
		},
	}

	if dryRun {
		fmt.Println("DRY RUN: no files will be moved or copied")
	}
	fmt.Printf("Sorting %s into %s (mode: %s)\n\n", inbox, output, mode)

	result, err := a.sorter.Sort(ctx, req)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	printSortResult(result, dryRun)
	return nil
}

func printSortResult(result *sorter.SortResult, dryRun bool) {
	if dryRun {
		for _, o := range result.Outcomes {
			switch o.Status {
			case sorter.StatusSorted:
				fmt.Printf("  %s -> %v\n", o.Source, o.Labels)
			default:
				fmt.Printf("  %s -> %s (%s)\n", o.Source, o.Status, o.Reason)
			}
		}
		fmt.Println()
	}

	fmt.Printf("Processed: %d\n", result.Processed)
	fmt.Printf("Sorted:    %d\n", result.Sorted)
	if result.Copies > 0 {
		fmt.Printf("Copies:    %d\n", result.Copies)
	}
	fmt.Printf("Unmatched: %d\n", result.Unmatched)
	if result.Failed > 0 {
		fmt.Printf("Failed:    %d\n", result.Failed)
	}
	fmt.Printf("Duration:  %s\n", result.Duration.Round(time.Millisecond))

	if result.Stopped {
		fmt.Println("\nSorting was interrupted before every photo was handled.")
	}
	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("  - %v\n", e)
		}
	}
}
