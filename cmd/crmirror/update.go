package main

import (
	"github.com/spf13/cobra"

	"github.com/capitolarchive/crmirror/internal/pipeline"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch new record issues, sync them to the bucket, and refresh the summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(func(m *mirror) []pipeline.Step {
			return []pipeline.Step{
				m.updateStep(),
				m.syncStep(),
				m.summaryStep(),
			}
		})
	},
}

func init() {
	updateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan the sync without uploading")
	rootCmd.AddCommand(updateCmd)
}
