package main

import (
	"fmt"
	"os"

	"github.com/4thel00z/engram/internal"
	"github.com/spf13/cobra"
)

func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as a YAML snapshot",
		Long:  `Read every memory from the canonical log, apply the filters and write a structured snapshot to stdout or a file.`,
		RunE:  runExport,
	}

	cmd.Flags().StringSlice("namespace", nil, "Restrict to namespaces (repeatable)")
	cmd.Flags().String("spec", "", "Restrict to a spec")
	cmd.Flags().String("since", "", "Only memories after this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().String("until", "", "Only memories before this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	scopeHint, _ := cmd.Flags().GetString("scope")

	filter, err := exportFilter(cmd)
	if err != nil {
		return err
	}

	eng, err := openEngine(scopeHint)
	if err != nil {
		return err
	}
	defer eng.Close()

	snapshot, err := eng.syncService().Export(filter)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	outPath, _ := cmd.Flags().GetString("output")
	if outPath == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d memories to %s\n", snapshot.Count, outPath)
	return nil
}

func exportFilter(cmd *cobra.Command) (internal.ExportFilter, error) {
	var filter internal.ExportFilter

	names, _ := cmd.Flags().GetStringSlice("namespace")
	for _, name := range names {
		ns, err := internal.ParseNamespace(name)
		if err != nil {
			return filter, fmt.Errorf("namespace %q: %w", name, err)
		}
		filter.Namespaces = append(filter.Namespaces, ns)
	}
	filter.Spec, _ = cmd.Flags().GetString("spec")

	since, _ := cmd.Flags().GetString("since")
	if since != "" {
		t, err := parseTimeFlag(since)
		if err != nil {
			return filter, err
		}
		filter.Since = t
	}
	until, _ := cmd.Flags().GetString("until")
	if until != "" {
		t, err := parseTimeFlag(until)
		if err != nil {
			return filter, err
		}
		filter.Until = t
	}
	return filter, nil
}
