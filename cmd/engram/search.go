package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/4thel00z/engram/internal"
	"github.com/spf13/cobra"
)

func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories semantically",
		Long:  `Search the index by semantic similarity, optionally narrowed by namespace, spec, tags and time range.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().StringSlice("namespace", nil, "Restrict to namespaces (repeatable)")
	cmd.Flags().String("spec", "", "Restrict to a spec")
	cmd.Flags().StringSliceP("tag", "t", nil, "Require tags (repeatable)")
	cmd.Flags().String("since", "", "Only memories after this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().String("until", "", "Only memories before this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().IntP("number", "n", 0, "Maximum results")
	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	scopeHint, _ := cmd.Flags().GetString("scope")
	asJSON, _ := cmd.Flags().GetBool("json")
	limit, _ := cmd.Flags().GetInt("number")

	filters, err := searchFilters(cmd)
	if err != nil {
		return err
	}

	eng, err := openEngine(scopeHint)
	if err != nil {
		return err
	}
	defer eng.Close()

	results, err := eng.recallService().Recall(cmd.Context(), args[0], filters, limit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if asJSON {
		return outputResultsJSON(cmd, results)
	}

	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %-42s  %s\n", r.Distance, r.Memory.ID, r.Memory.Summary)
	}
	return nil
}

func searchFilters(cmd *cobra.Command) (internal.SearchFilters, error) {
	var filters internal.SearchFilters

	names, _ := cmd.Flags().GetStringSlice("namespace")
	for _, name := range names {
		ns, err := internal.ParseNamespace(name)
		if err != nil {
			return filters, fmt.Errorf("namespace %q: %w", name, err)
		}
		filters.Namespaces = append(filters.Namespaces, ns)
	}

	filters.Spec, _ = cmd.Flags().GetString("spec")
	filters.Tags, _ = cmd.Flags().GetStringSlice("tag")

	since, _ := cmd.Flags().GetString("since")
	if since != "" {
		t, err := parseTimeFlag(since)
		if err != nil {
			return filters, err
		}
		filters.Since = t
	}
	until, _ := cmd.Flags().GetString("until")
	if until != "" {
		t, err := parseTimeFlag(until)
		if err != nil {
			return filters, err
		}
		filters.Until = t
	}
	return filters, nil
}

func parseTimeFlag(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

func outputResultsJSON(cmd *cobra.Command, results []internal.MemoryResult) error {
	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		out = append(out, map[string]any{
			"id":        r.Memory.ID,
			"namespace": r.Memory.Namespace,
			"summary":   r.Memory.Summary,
			"commit":    r.Memory.CommitRef,
			"distance":  r.Distance,
			"timestamp": r.Memory.Timestamp,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
