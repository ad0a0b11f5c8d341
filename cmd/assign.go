package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-sorter/internal/sorter"
)

var assignCmd = &cobra.Command{
	Use:   "assign <label> <photo>...",
	Short: "File reviewed photos under a label by hand",
	Long: `Move (or copy) photos, usually from the unmatched folder, into
<output>/<label> and record a manual entry in the audit log.
Fails while a sort holds the output directory.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAssign,
}

func init() {
	rootCmd.AddCommand(assignCmd)

	assignCmd.Flags().StringP("output", "o", "", "Sort output directory the label folder lives in (required)")
	assignCmd.Flags().Bool("copy", false, "Copy instead of move, leaving the photos in place")
	_ = assignCmd.MarkFlagRequired("output")
}

func runAssign(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.sorter.Assign(ctx, sorter.AssignRequest{
		Paths:     absPaths(args[1:]),
		Label:     args[0],
		OutputDir: mustGetString(cmd, "output"),
		Copy:      mustGetBool(cmd, "copy"),
	})
	if err != nil {
		return err
	}

	for _, dst := range result.Destinations {
		fmt.Printf("  -> %s\n", dst)
	}
	for _, e := range result.Errors {
		fmt.Printf("  error: %v\n", e)
	}
	fmt.Printf("Assigned %d of %d photo(s) to %s\n", len(result.Destinations), len(args)-1, args[0])
	return nil
}
