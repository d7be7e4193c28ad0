// Package main provides the entry point for the Congressional Record mirror.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "crmirror",
	Short: "Congressional Record mirror",
	Long: "crmirror maintains a mirror of the daily Congressional Record: it fetches\n" +
		"new issues from congress.gov, syncs the local tree to an S3-compatible\n" +
		"bucket, publishes a daily ZIP archive with download stats, and keeps a\n" +
		"human-readable bucket summary.",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	// Load .env if it exists; deployments pass everything through the
	// environment.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
