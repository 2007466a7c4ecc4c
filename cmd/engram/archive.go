package main

import (
	"encoding/json"
	"fmt"

	"github.com/4thel00z/engram/internal"
	"github.com/spf13/cobra"
)

func NewArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <spec>",
		Short: "Condense a spec's memories into summaries",
		Long:  `Group a spec's memories by namespace and condense each group into an archive summary. With a provider configured the condensation is model-written, otherwise a plain digest is produced. The canonical log is not modified.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runArchive,
	}
	return cmd
}

func runArchive(cmd *cobra.Command, args []string) error {
	scopeHint, _ := cmd.Flags().GetString("scope")
	asJSON, _ := cmd.Flags().GetBool("json")
	spec := args[0]

	eng, err := openEngine(scopeHint)
	if err != nil {
		return err
	}
	defer eng.Close()

	memories, _, err := internal.ScanStore(eng.store)
	if err != nil {
		return fmt.Errorf("scan store: %w", err)
	}

	var matched []internal.Memory
	for _, m := range memories {
		if m.Spec == spec {
			matched = append(matched, m)
		}
	}
	if len(matched) == 0 {
		return fmt.Errorf("no memories for spec %q", spec)
	}

	mgr := internal.NewLifecycleManager(eng.cfg.Lifecycle, eng.provider(cmd.Context()), eng.log)
	summaries, err := mgr.ArchiveSpec(cmd.Context(), spec, matched)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	out := cmd.OutOrStdout()
	for _, s := range summaries {
		fmt.Fprintf(out, "## %s\n%s\n", s.Title, s.Overview)
		for _, p := range s.KeyPoints {
			fmt.Fprintf(out, "  - %s\n", p)
		}
		fmt.Fprintln(out)
	}
	return nil
}
