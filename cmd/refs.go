package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "Manage reference photos",
	Long:  "Commands for listing, adding and deleting the reference photos of a label.",
}

var refsListCmd = &cobra.Command{
	Use:   "list <label>",
	Short: "List the references of a label",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefsList,
}

var refsAddCmd = &cobra.Command{
	Use:   "add <label> <image>...",
	Short: "Add reference photos to a label",
	Long: `Copy images into the label folder and register them as references.
The label is created when it does not exist yet. Files that already live in
the label folder are registered in place.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRefsAdd,
}

var refsDeleteCmd = &cobra.Command{
	Use:   "delete <label> <image>...",
	Short: "Delete reference photos of a label",
	Long: `Move reference photos to the trash and drop their rows.
The deletion can be reverted with "face-sorter undo".`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRefsDelete,
}

var refsScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Import the reference root folder",
	Long: `Register every sub-folder of the reference root as a label and every image
inside it as a reference. Existing rows are kept.`,
	Args: cobra.NoArgs,
	RunE: runRefsScan,
}

func init() {
	rootCmd.AddCommand(refsCmd)
	refsCmd.AddCommand(refsListCmd)
	refsCmd.AddCommand(refsAddCmd)
	refsCmd.AddCommand(refsDeleteCmd)
	refsCmd.AddCommand(refsScanCmd)

	refsDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
}

func runRefsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	refs, err := a.manager.ListReferences(ctx, args[0])
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		fmt.Println("No references found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tADDED")
	fmt.Fprintln(w, "----\t-----")
	for _, r := range refs {
		fmt.Fprintf(w, "%s\t%s\n", r.Path, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d references\n", len(refs))
	return nil
}

func runRefsAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.manager.AddReferences(ctx, args[0], absPaths(args[1:]))
	if err != nil {
		return err
	}

	for _, p := range result.Skipped {
		fmt.Printf("  skipped %s (not an image)\n", p)
	}
	for _, e := range result.Errors {
		fmt.Printf("  error: %v\n", e)
	}
	fmt.Printf("Added %d reference(s) to %s\n", len(result.Added), args[0])
	return nil
}

func runRefsDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	skipConfirm := mustGetBool(cmd, "yes")
	label, paths := args[0], absPaths(args[1:])

	if !skipConfirm && !confirm(fmt.Sprintf("Delete %d reference(s) of %s?", len(paths), label)) {
		fmt.Println("Cancelled.")
		return nil
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.manager.DeleteReferences(ctx, label, paths)
	if err != nil {
		return err
	}

	for _, p := range result.Missing {
		fmt.Printf("  %s was already gone, row removed\n", p)
	}
	for _, e := range result.Errors {
		fmt.Printf("  error: %v\n", e)
	}
	fmt.Printf("Deleted %d reference(s).", len(result.Deleted))
	if result.Record != nil {
		fmt.Print(" Use \"face-sorter undo\" to restore.")
	}
	fmt.Println()
	return nil
}

func runRefsScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.manager.ScanRoot(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %s: %d label(s), %d new reference(s)\n",
		a.manager.Root(), len(result.Labels), result.References)
	return nil
}

// absPaths makes command line paths comparable with stored ones
func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}
