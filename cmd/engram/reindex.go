package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index",
		Long:  `Rebuild the index from the canonical log. Incremental by default; --full drops the index and re-embeds everything.`,
		RunE:  runReindex,
	}

	cmd.Flags().Bool("full", false, "Drop and rebuild the whole index")
	return cmd
}

func runReindex(cmd *cobra.Command, _ []string) error {
	scopeHint, _ := cmd.Flags().GetString("scope")
	asJSON, _ := cmd.Flags().GetBool("json")
	full, _ := cmd.Flags().GetBool("full")

	eng, err := openEngine(scopeHint)
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.syncService().Reindex(cmd.Context(), full)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d, indexed %d, failed %d in %s\n",
		stats.Scanned, stats.Indexed, stats.Failed, stats.Duration.Round(time.Millisecond))
	return nil
}
