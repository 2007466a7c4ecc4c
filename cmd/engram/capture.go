package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/4thel00z/engram/internal"
	"github.com/spf13/cobra"
)

func NewCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture <namespace> <summary>",
		Short: "Capture a memory",
		Long:  `Record a memory in the canonical log, anchored to a commit, and index it for search. Content is read from --content or stdin.`,
		Args:  cobra.ExactArgs(2),
		RunE:  runCapture,
	}

	addCaptureFlags(cmd)
	cmd.AddCommand(
		newDecisionCmd(),
		newLearningCmd(),
		newBlockerCmd(),
		newProgressCmd(),
		newReviewCmd(),
		newRetroCmd(),
	)
	return cmd
}

func addCaptureFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("content", "m", "", "Memory body in markdown (stdin if omitted)")
	cmd.Flags().String("spec", "", "Spec or feature this memory belongs to")
	cmd.Flags().String("phase", "", "Work phase")
	cmd.Flags().StringSliceP("tag", "t", nil, "Tags (repeatable)")
	cmd.Flags().String("commit", "", "Anchor commit (default: current HEAD)")
}

func captureRequest(cmd *cobra.Command, ns, summary string) (internal.CaptureRequest, error) {
	content, _ := cmd.Flags().GetString("content")
	if content == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return internal.CaptureRequest{}, fmt.Errorf("read content from stdin: %w", err)
		}
		content = strings.TrimSpace(string(data))
	}

	spec, _ := cmd.Flags().GetString("spec")
	phase, _ := cmd.Flags().GetString("phase")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	commit, _ := cmd.Flags().GetString("commit")

	return internal.CaptureRequest{
		Namespace: internal.Namespace(ns),
		Summary:   summary,
		Content:   content,
		Spec:      spec,
		Phase:     phase,
		Tags:      tags,
		CommitRef: commit,
	}, nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	req, err := captureRequest(cmd, args[0], args[1])
	if err != nil {
		return err
	}
	return withCapture(cmd, func(svc *internal.CaptureService) (*internal.CaptureResult, error) {
		return svc.Capture(cmd.Context(), req)
	})
}

// withCapture opens the engine, runs one capture and prints the result.
func withCapture(cmd *cobra.Command, fn func(*internal.CaptureService) (*internal.CaptureResult, error)) error {
	scopeHint, _ := cmd.Flags().GetString("scope")
	eng, err := openEngine(scopeHint)
	if err != nil {
		return err
	}
	defer eng.Close()

	result, err := fn(eng.captureService())
	if err != nil {
		return err
	}
	return printCaptureResult(cmd, result)
}

func printCaptureResult(cmd *cobra.Command, result *internal.CaptureResult) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"id":      result.Memory.ID,
			"commit":  result.Memory.CommitRef,
			"indexed": result.Indexed,
			"warning": result.Warning,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Captured %s\n", result.Memory.ID)
	if !result.Indexed {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: not indexed (%s); run `engram reindex`\n", result.Warning)
	}
	return nil
}

func newDecisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decision <summary>",
		Short: "Capture a decision with its rationale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			rationale, _ := cmd.Flags().GetString("rationale")
			req, err := captureRequest(cmd, string(internal.NamespaceDecisions), args[0])
			if err != nil {
				return err
			}
			return withCapture(cmd, func(svc *internal.CaptureService) (*internal.CaptureResult, error) {
				return svc.CaptureDecision(cmd.Context(), req, category, rationale)
			})
		},
	}
	addCaptureFlags(cmd)
	cmd.Flags().String("category", "design", "Decision category (architecture|dependency|design|process|tooling)")
	cmd.Flags().String("rationale", "", "Why this decision was made")
	return cmd
}

func newLearningCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learning <summary>",
		Short: "Capture something learned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			req, err := captureRequest(cmd, string(internal.NamespaceLearnings), args[0])
			if err != nil {
				return err
			}
			return withCapture(cmd, func(svc *internal.CaptureService) (*internal.CaptureResult, error) {
				return svc.CaptureLearning(cmd.Context(), req, category)
			})
		},
	}
	addCaptureFlags(cmd)
	cmd.Flags().String("category", "discovery", "Learning category (discovery|error|optimization|workaround)")
	return cmd
}

func newBlockerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocker <summary>",
		Short: "Capture an unresolved blocker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			severity, _ := cmd.Flags().GetString("severity")
			req, err := captureRequest(cmd, string(internal.NamespaceBlockers), args[0])
			if err != nil {
				return err
			}
			return withCapture(cmd, func(svc *internal.CaptureService) (*internal.CaptureResult, error) {
				return svc.CaptureBlocker(cmd.Context(), req, severity)
			})
		},
	}
	addCaptureFlags(cmd)
	cmd.Flags().String("severity", "medium", "Blocker severity (low|medium|high|critical)")
	return cmd
}

func newProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <summary>",
		Short: "Capture a progress milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, _ := cmd.Flags().GetString("outcome")
			req, err := captureRequest(cmd, string(internal.NamespaceProgress), args[0])
			if err != nil {
				return err
			}
			return withCapture(cmd, func(svc *internal.CaptureService) (*internal.CaptureResult, error) {
				return svc.CaptureProgress(cmd.Context(), req, outcome)
			})
		},
	}
	addCaptureFlags(cmd)
	cmd.Flags().String("outcome", "milestone", "Progress outcome (started|milestone|completed)")
	return cmd
}

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <summary>",
		Short: "Capture a review outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verdict, _ := cmd.Flags().GetString("verdict")
			req, err := captureRequest(cmd, string(internal.NamespaceReviews), args[0])
			if err != nil {
				return err
			}
			return withCapture(cmd, func(svc *internal.CaptureService) (*internal.CaptureResult, error) {
				return svc.CaptureReview(cmd.Context(), req, verdict)
			})
		},
	}
	addCaptureFlags(cmd)
	cmd.Flags().String("verdict", "approved", "Review verdict (approved|changes-requested|rejected)")
	return cmd
}

func newRetroCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retro <summary>",
		Short: "Capture a retrospective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wentWell, _ := cmd.Flags().GetString("went-well")
			needsWork, _ := cmd.Flags().GetString("needs-work")
			spec, _ := cmd.Flags().GetString("spec")
			phase, _ := cmd.Flags().GetString("phase")
			tags, _ := cmd.Flags().GetStringSlice("tag")
			commit, _ := cmd.Flags().GetString("commit")

			req := internal.CaptureRequest{
				Namespace: internal.NamespaceRetrospective,
				Summary:   args[0],
				Spec:      spec,
				Phase:     phase,
				Tags:      tags,
				CommitRef: commit,
			}
			return withCapture(cmd, func(svc *internal.CaptureService) (*internal.CaptureResult, error) {
				return svc.CaptureRetrospective(cmd.Context(), req, wentWell, needsWork)
			})
		},
	}
	addCaptureFlags(cmd)
	cmd.Flags().String("went-well", "", "What went well")
	cmd.Flags().String("needs-work", "", "What needs work")
	return cmd
}

func NewResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <blocker-id>",
		Short: "Resolve a blocker",
		Long:  `Record a resolution for a captured blocker. The original memory stays in the log untouched; the resolution is a new memory referencing it.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolution, _ := cmd.Flags().GetString("resolution")
			summary, _ := cmd.Flags().GetString("summary")
			if summary == "" {
				summary = "Resolved: " + args[0]
			}
			spec, _ := cmd.Flags().GetString("spec")
			phase, _ := cmd.Flags().GetString("phase")
			tags, _ := cmd.Flags().GetStringSlice("tag")
			commit, _ := cmd.Flags().GetString("commit")

			req := internal.CaptureRequest{
				Namespace: internal.NamespaceBlockers,
				Summary:   summary,
				Spec:      spec,
				Phase:     phase,
				Tags:      tags,
				CommitRef: commit,
			}
			return withCapture(cmd, func(svc *internal.CaptureService) (*internal.CaptureResult, error) {
				return svc.ResolveBlocker(cmd.Context(), req, args[0], resolution)
			})
		},
	}
	addCaptureFlags(cmd)
	cmd.Flags().String("resolution", "", "How the blocker was resolved")
	cmd.Flags().String("summary", "", "Summary for the resolution memory")
	return cmd
}
