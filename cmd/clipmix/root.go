package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "clipmix",
	Short: "Render every intro/outro combination of a commercial",
	Long: `clipmix assembles intro, product and outro clips into every combination,
renders each one with ffmpeg and packages the results into a zip archive.

Defaults for durations, policy and limits come from the same environment
variables (or .env file) the API server reads.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(planCmd)
}
