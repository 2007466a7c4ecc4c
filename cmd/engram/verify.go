package main

import (
	"encoding/json"
	"fmt"

	"github.com/4thel00z/engram/internal"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
)

func NewVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check index consistency",
		Long:  `Compare the index against the canonical log and report memories that are missing, orphaned or diverged. Nothing is modified; run gc to reconcile.`,
		RunE:  runVerify,
	}

	cmd.Flags().Bool("diff", false, "Show content diffs for diverged memories")
	return cmd
}

func runVerify(cmd *cobra.Command, _ []string) error {
	scopeHint, _ := cmd.Flags().GetString("scope")
	asJSON, _ := cmd.Flags().GetBool("json")
	showDiff, _ := cmd.Flags().GetBool("diff")

	eng, err := openEngine(scopeHint)
	if err != nil {
		return err
	}
	defer eng.Close()

	result, err := eng.syncService().Verify(cmd.Context())
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printVerifyResult(cmd, result)
		if showDiff {
			if err := printMismatchDiffs(cmd, eng, result.ContentMismatches); err != nil {
				return err
			}
		}
	}

	if !result.IsConsistent() {
		return fmt.Errorf("index and canonical log disagree; run `engram gc`")
	}
	return nil
}

func printVerifyResult(cmd *cobra.Command, result *internal.VerificationResult) {
	out := cmd.OutOrStdout()
	if result.IsConsistent() {
		fmt.Fprintln(out, "Index is consistent with the canonical log.")
		return
	}

	for _, id := range result.MissingInIndex {
		fmt.Fprintf(out, "missing in index:  %s\n", id)
	}
	for _, id := range result.OrphanedInIndex {
		fmt.Fprintf(out, "orphaned in index: %s\n", id)
	}
	for _, id := range result.ContentMismatches {
		fmt.Fprintf(out, "content diverged:  %s\n", id)
	}
}

// printMismatchDiffs renders, per diverged memory, the difference between
// the canonical body and what the index holds.
func printMismatchDiffs(cmd *cobra.Command, eng *engine, ids []string) error {
	dmp := diffmatchpatch.New()
	out := cmd.OutOrStdout()

	for _, id := range ids {
		ns, shortRef, _, err := internal.ParseMemoryID(id)
		if err != nil {
			continue
		}

		canonical, err := internal.FindInStore(eng.store, id, ns, shortRef)
		if err != nil {
			return fmt.Errorf("load %s from store: %w", id, err)
		}
		indexed, err := eng.index.Get(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("load %s from index: %w", id, err)
		}

		diffs := dmp.DiffMain(indexed.Content, canonical.Content, false)
		dmp.DiffCleanupSemantic(diffs)

		fmt.Fprintf(out, "\n--- %s (index vs canonical) ---\n", id)
		fmt.Fprintln(out, dmp.DiffPrettyText(diffs))
	}
	return nil
}
