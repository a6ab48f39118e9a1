package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "benefits",
	Short: "Benefits administration engine",
	Long:  "Rate resolution, enrollment, and renewal engine for group and Medicare benefit plans.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
