package main

import (
	"github.com/spf13/cobra"

	"github.com/capitolarchive/crmirror/internal/pipeline"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Build and publish the ZIP archive and stats document",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(func(m *mirror) []pipeline.Step {
			return []pipeline.Step{
				m.archiveStep(),
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}
