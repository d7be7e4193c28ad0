package main

import (
	"github.com/spf13/cobra"

	"github.com/capitolarchive/crmirror/internal/pipeline"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Rebuild the bucket summary and commit it to the repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(func(m *mirror) []pipeline.Step {
			return []pipeline.Step{
				m.summaryStep(),
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
