package main

import (
	"github.com/spf13/cobra"

	"github.com/capitolarchive/crmirror/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full mirror pipeline: update, sync, archive, summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(func(m *mirror) []pipeline.Step {
			return []pipeline.Step{
				m.updateStep(),
				m.syncStep(),
				m.archiveStep(),
				m.summaryStep(),
			}
		})
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan the sync without uploading")
	rootCmd.AddCommand(runCmd)
}
