package main

import (
	"encoding/json"
	"fmt"

	"github.com/4thel00z/engram/internal"
	"github.com/spf13/cobra"
)

func NewPatternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Detect recurring themes across memories",
		Long:  `Scan the canonical log for recurring themes. Detection is read-only; use --promote to persist one detected pattern as a memory.`,
		RunE:  runPatterns,
	}

	cmd.Flags().String("spec", "", "Restrict to a spec")
	cmd.Flags().String("promote", "", "Persist the named detected pattern as a memory")
	return cmd
}

func runPatterns(cmd *cobra.Command, _ []string) error {
	scopeHint, _ := cmd.Flags().GetString("scope")
	asJSON, _ := cmd.Flags().GetBool("json")
	spec, _ := cmd.Flags().GetString("spec")
	promote, _ := cmd.Flags().GetString("promote")

	eng, err := openEngine(scopeHint)
	if err != nil {
		return err
	}
	defer eng.Close()

	memories, _, err := internal.ScanStore(eng.store)
	if err != nil {
		return fmt.Errorf("scan store: %w", err)
	}
	if spec != "" {
		var matched []internal.Memory
		for _, m := range memories {
			if m.Spec == spec {
				matched = append(matched, m)
			}
		}
		memories = matched
	}

	detected := internal.NewPatternDetector().Detect(memories)

	if promote != "" {
		return promotePattern(cmd, eng, detected, memories, promote, spec)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(detected)
	}

	out := cmd.OutOrStdout()
	if len(detected) == 0 {
		fmt.Fprintln(out, "No recurring patterns found.")
		return nil
	}
	for _, p := range detected {
		fmt.Fprintf(out, "%.2f  %-13s %-28s %s\n", p.Confidence, p.PatternType, p.Name, p.Description)
	}
	return nil
}

func promotePattern(cmd *cobra.Command, eng *engine, detected []internal.DetectedPattern, memories []internal.Memory, name, spec string) error {
	for _, p := range detected {
		if p.Name != name {
			continue
		}
		// A configured provider rewrites the description in prose; without
		// one the detector's deterministic description is kept.
		p.Description = internal.DescribePattern(cmd.Context(), eng.provider(cmd.Context()), p, memories)
		result, err := eng.captureService().CapturePattern(cmd.Context(), internal.CaptureRequest{
			Spec: spec,
		}, p)
		if err != nil {
			return fmt.Errorf("promote pattern: %w", err)
		}
		return printCaptureResult(cmd, result)
	}
	return fmt.Errorf("no detected pattern named %q", name)
}
