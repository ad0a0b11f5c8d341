package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-sorter/internal/labels"
	"github.com/kozaktomas/face-sorter/internal/undo"
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Revert the most recent deletion or rename",
	Long: `Revert the most recent reference deletion, label deletion or label rename.
Soft-deleted files are moved back from the trash. Use --list to show the
history without reverting anything.`,
	Args: cobra.NoArgs,
	RunE: runUndo,
}

func init() {
	rootCmd.AddCommand(undoCmd)

	undoCmd.Flags().Bool("list", false, "Show the undo history (newest first)")
}

func runUndo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if mustGetBool(cmd, "list") {
		records := a.manager.UndoStack().List()
		if len(records) == 0 {
			fmt.Println("Nothing to undo.")
			return nil
		}
		for i, rec := range records {
			fmt.Printf("%2d. %s  %s\n", i+1, rec.When().Local().Format("2006-01-02 15:04:05"), rec.Summary())
		}
		return nil
	}

	rec, err := a.manager.Undo(ctx)
	switch {
	case errors.Is(err, undo.ErrEmpty):
		fmt.Println("Nothing to undo.")
		return nil
	case errors.Is(err, labels.ErrUndoConflict):
		return fmt.Errorf("cannot undo %s yet: %w", rec.Summary(), err)
	case errors.Is(err, undo.ErrNotRevertible):
		return fmt.Errorf("%s was dropped from the history: %w", rec.Summary(), err)
	case err != nil && rec != nil:
		fmt.Printf("Reverted %s with warnings:\n  %v\n", rec.Summary(), err)
		return nil
	case err != nil:
		return err
	}

	fmt.Printf("Reverted %s\n", rec.Summary())
	return nil
}
