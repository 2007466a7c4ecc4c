package main

import (
	"encoding/json"
	"fmt"

	"github.com/4thel00z/engram/internal"
	"github.com/spf13/cobra"
)

func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a memory",
		Long:  `Load one memory by id. Level 1 prints the summary line, level 2 the full body, level 3 also the files its commit changed.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}

	cmd.Flags().IntP("level", "l", 2, "Hydration level (1=summary, 2=full, 3=files)")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	scopeHint, _ := cmd.Flags().GetString("scope")
	asJSON, _ := cmd.Flags().GetBool("json")
	level, _ := cmd.Flags().GetInt("level")

	eng, err := openEngine(scopeHint)
	if err != nil {
		return err
	}
	defer eng.Close()

	h, err := eng.recallService().Hydrate(cmd.Context(), args[0], internal.HydrationLevel(level))
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(h)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:        %s\n", h.ID)
	fmt.Fprintf(out, "namespace: %s\n", h.Namespace)
	fmt.Fprintf(out, "commit:    %s\n", h.CommitRef)
	fmt.Fprintf(out, "timestamp: %s\n", h.Timestamp.Format("2006-01-02 15:04:05 MST"))
	if h.Spec != "" {
		fmt.Fprintf(out, "spec:      %s\n", h.Spec)
	}
	if len(h.Tags) > 0 {
		fmt.Fprintf(out, "tags:      %v\n", h.SortedTags())
	}
	fmt.Fprintf(out, "summary:   %s\n", h.Summary)

	if h.Level >= internal.HydrationFull && h.Content != "" {
		fmt.Fprintf(out, "\n%s\n", h.Content)
	}

	if h.Level >= internal.HydrationFiles {
		fmt.Fprintf(out, "\nChanged files:\n")
		for path, snap := range h.Files {
			marker := ""
			if snap.Truncated {
				marker = " (truncated)"
			}
			fmt.Fprintf(out, "  %s (%d bytes)%s\n", path, len(snap.Content), marker)
		}
		if h.FilesOmitted > 0 {
			fmt.Fprintf(out, "  ... %d more files omitted\n", h.FilesOmitted)
		}
	}
	return nil
}
