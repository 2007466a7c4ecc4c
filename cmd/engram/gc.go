package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func NewGCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Reconcile the index with the canonical log",
		Long:  `Remove index entries whose memories no longer exist and index memories the index is missing. The canonical log is never modified.`,
		RunE:  runGC,
	}
}

func runGC(cmd *cobra.Command, _ []string) error {
	scopeHint, _ := cmd.Flags().GetString("scope")
	asJSON, _ := cmd.Flags().GetBool("json")

	eng, err := openEngine(scopeHint)
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.syncService().GC(cmd.Context())
	if err != nil {
		return fmt.Errorf("gc: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d orphaned, added %d missing, %d failed\n",
		stats.Removed, stats.Added, stats.Failed)
	return nil
}
