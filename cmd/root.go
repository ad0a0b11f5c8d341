package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "face-sorter",
	Short: "Sort photos into per-person folders by face similarity",
	Long: `Face Sorter keeps a library of labeled reference photos (one folder per
person), derives a mean face vector per label, and distributes inbox photos
into label folders when a face is similar enough to a label's references.

Reference and label deletions are soft: files go to an application trash
and can be restored with "face-sorter undo".`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
