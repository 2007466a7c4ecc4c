package main

import (
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "engram",
		Short:         "Commit-anchored memory for engineering work",
		Long:          `Capture decisions, learnings, blockers and progress as durable memories anchored to git commits, and recall them by semantic search.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	addSubcommands(rootCmd)

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("scope", "", "Target scope (global|project)")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
}

func addSubcommands(root *cobra.Command) {
	root.AddCommand(
		NewInitCmd(),
		NewCaptureCmd(),
		NewResolveCmd(),
		NewSearchCmd(),
		NewShowCmd(),
		NewStatusCmd(),
		NewVerifyCmd(),
		NewReindexCmd(),
		NewGCCmd(),
		NewExportCmd(),
		NewArchiveCmd(),
		NewPatternsCmd(),
		NewWatchCmd(),
	)
}
