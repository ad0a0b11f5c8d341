package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/labels"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Manage labels",
	Long:  "Commands for listing, creating, renaming and deleting labels.",
}

var labelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all labels",
	Long: `List all labels with their reference counts and thresholds.

Sort options:
  name     Sort by name (default)
  count    Sort by reference count
  -name    Sort by name descending
  -count   Sort by reference count descending`,
	Args: cobra.NoArgs,
	RunE: runLabelsList,
}

var labelsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a label and its reference folder",
	Long: `Create a label and its reference folder.
Without --threshold the label matches at the default threshold.`,
	Args: cobra.ExactArgs(1),
	RunE: runLabelsCreate,
}

var labelsRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a label and its reference folder",
	Long: `Rename a label. The folder is renamed and every reference moves with it.
The rename can be reverted with "face-sorter undo".`,
	Args: cobra.ExactArgs(2),
	RunE: runLabelsRename,
}

var labelsDeleteCmd = &cobra.Command{
	Use:   "delete <name>...",
	Short: "Delete labels",
	Long: `Delete labels together with their folders and references.
Folders are moved to the trash and can be restored with "face-sorter undo".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLabelsDelete,
}

var labelsThresholdCmd = &cobra.Command{
	Use:   "threshold <name> [value]",
	Short: "Show or set a label's match threshold",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runLabelsThreshold,
}

func init() {
	rootCmd.AddCommand(labelsCmd)
	labelsCmd.AddCommand(labelsListCmd)
	labelsCmd.AddCommand(labelsCreateCmd)
	labelsCmd.AddCommand(labelsRenameCmd)
	labelsCmd.AddCommand(labelsDeleteCmd)
	labelsCmd.AddCommand(labelsThresholdCmd)

	labelsListCmd.Flags().String("sort", "name", "Sort by: name, count (prefix with - for descending)")
	labelsCreateCmd.Flags().Float64("threshold", 0, "Match threshold between 0 and 1 (default from config)")
	labelsDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
}

func runLabelsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	sortBy := mustGetString(cmd, "sort")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	summaries, err := a.manager.ListLabels(ctx)
	if err != nil {
		return err
	}

	if len(summaries) == 0 {
		fmt.Println("No labels found.")
		return nil
	}

	sortLabels(summaries, sortBy)

	// Vectors are only known without a rebuild when the store persists them
	if _, err := a.cache.Warm(ctx); err != nil {
		a.log.Warn("failed to warm embedding cache", zap.Error(err))
	}
	snap := a.cache.Snapshot()
	cached := make(map[string]bool, snap.Len())
	for _, l := range snap.Labels() {
		cached[l] = true
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tREFERENCES\tTHRESHOLD\tCACHED\tFOLDER")
	fmt.Fprintln(w, "----\t----------\t---------\t------\t------")

	for _, s := range summaries {
		mark := ""
		if cached[s.Label] {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%s\t%s\n", s.Label, s.References, s.Threshold, mark, s.FolderPath)
	}

	w.Flush()

	fmt.Printf("\nTotal: %d labels\n", len(summaries))

	return nil
}

func runLabelsCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	threshold, hasThreshold, err := optionalThreshold(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.manager.CreateLabel(ctx, args[0])
	if err != nil {
		return err
	}
	if hasThreshold {
		if err := a.manager.SetThreshold(ctx, rec.Label, threshold); err != nil {
			return err
		}
	}

	fmt.Printf("Created label %s (%s), threshold %.2f\n", rec.Label, rec.FolderPath, a.manager.Threshold(ctx, rec.Label))
	return nil
}

func runLabelsRename(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.manager.RenameLabel(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Printf("Renamed %s to %s (%d references moved)\n", rec.OldLabel, rec.NewLabel, len(rec.Files))
	return nil
}

func runLabelsDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	skipConfirm := mustGetBool(cmd, "yes")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	summaries, err := a.manager.ListLabels(ctx)
	if err != nil {
		return err
	}
	counts := make(map[string]int, len(summaries))
	for _, s := range summaries {
		counts[s.Label] = s.References
	}

	// Validate names and show what will be deleted
	var valid []string
	fmt.Println("Labels to delete:")
	for _, name := range args {
		if n, ok := counts[name]; ok {
			fmt.Printf("  - %s (%d references)\n", name, n)
			valid = append(valid, name)
		} else {
			fmt.Printf("  - WARNING: Unknown label %s (skipping)\n", name)
		}
	}

	if len(valid) == 0 {
		return fmt.Errorf("no valid labels to delete")
	}

	if !skipConfirm && !confirm(fmt.Sprintf("\nDelete %d label(s)?", len(valid))) {
		fmt.Println("Cancelled.")
		return nil
	}

	deleted := 0
	for _, name := range valid {
		if _, err := a.manager.DeleteLabel(ctx, name); err != nil {
			fmt.Printf("  - %s: %v\n", name, err)
			continue
		}
		deleted++
	}

	fmt.Printf("Deleted %d label(s). Use \"face-sorter undo\" to restore.\n", deleted)
	return nil
}

func runLabelsThreshold(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	if len(args) == 1 {
		fmt.Printf("%s: %.2f\n", name, a.manager.Threshold(ctx, name))
		return nil
	}

	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid threshold %q: %w", args[1], labels.ErrInvalidThreshold)
	}
	if err := a.manager.SetThreshold(ctx, name, value); err != nil {
		return err
	}

	fmt.Printf("%s: threshold set to %.2f\n", name, value)
	return nil
}

func sortLabels(summaries []labels.Summary, sortBy string) {
	descending := strings.HasPrefix(sortBy, "-")
	field := strings.TrimPrefix(sortBy, "-")

	sort.Slice(summaries, func(i, j int) bool {
		var less bool
		switch field {
		case "count":
			less = summaries[i].References < summaries[j].References
		case "name":
			fallthrough
		default:
			less = strings.ToLower(summaries[i].Label) < strings.ToLower(summaries[j].Label)
		}
		if descending {
			return !less
		}
		return less
	})
}
