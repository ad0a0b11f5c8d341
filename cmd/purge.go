package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop references whose file no longer exists",
	Args:  cobra.NoArgs,
	RunE:  runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.manager.Purge(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Purged %d missing reference(s)\n", n)
	return nil
}
