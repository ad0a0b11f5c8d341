package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// mustFlag reads a flag registered in init(); a lookup error is a programming bug.
func mustFlag[T any](name string, get func(string) (T, error)) T {
	val, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return mustFlag(name, cmd.Flags().GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return mustFlag(name, cmd.Flags().GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return mustFlag(name, cmd.Flags().GetString)
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	return mustFlag(name, cmd.Flags().GetFloat64)
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	return mustFlag(name, cmd.Flags().GetStringSlice)
}

// optionalThreshold returns the --threshold value when the user passed one
func optionalThreshold(cmd *cobra.Command) (float64, bool, error) {
	if !cmd.Flags().Changed("threshold") {
		return 0, false, nil
	}
	t := mustGetFloat64(cmd, "threshold")
	if t < 0 || t > 1 {
		return 0, false, fmt.Errorf("--threshold %v must be between 0 and 1", t)
	}
	return t, true, nil
}
