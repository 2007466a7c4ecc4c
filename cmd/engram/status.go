package main

import (
	"encoding/json"
	"fmt"

	"github.com/4thel00z/engram/internal"
	"github.com/spf13/cobra"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store and index status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	scopeHint, _ := cmd.Flags().GetString("scope")
	asJSON, _ := cmd.Flags().GetBool("json")

	eng, err := openEngine(scopeHint)
	if err != nil {
		return err
	}
	defer eng.Close()

	branch, head, err := eng.repo.CurrentBranch()
	if err != nil {
		return fmt.Errorf("current branch: %w", err)
	}

	memories, malformed, err := internal.ScanStore(eng.store)
	if err != nil {
		return fmt.Errorf("scan store: %w", err)
	}
	perNamespace := make(map[string]int)
	for _, m := range memories {
		perNamespace[m.Namespace.String()]++
	}

	indexed, err := eng.index.Count(cmd.Context())
	if err != nil {
		return fmt.Errorf("count index: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"scope":      eng.scope.Type,
			"branch":     branch,
			"head":       head,
			"memories":   len(memories),
			"namespaces": perNamespace,
			"indexed":    indexed,
			"malformed":  malformed,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scope:    %s (%s)\n", eng.scope.Type, eng.scope.EngramPath)
	fmt.Fprintf(out, "Branch:   %s @ %s\n", branch, internal.ShortRef(head))
	fmt.Fprintf(out, "Memories: %d canonical, %d indexed\n", len(memories), indexed)
	for _, ns := range internal.AllNamespaces() {
		if n := perNamespace[ns.String()]; n > 0 {
			fmt.Fprintf(out, "  %-14s %d\n", ns, n)
		}
	}
	if malformed > 0 {
		fmt.Fprintf(out, "Warning:  %d malformed entries skipped\n", malformed)
	}
	if len(memories) != indexed {
		fmt.Fprintln(out, "Index out of sync; run `engram gc` or `engram reindex`.")
	}
	return nil
}
