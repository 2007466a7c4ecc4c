package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CaptureRequest carries everything needed to record one memory.
// CommitRef defaults to the current HEAD.
type CaptureRequest struct {
	Namespace Namespace
	Summary   string
	Content   string
	Spec      string
	Phase     string
	Tags      []string
	CommitRef string
	Status    string
}

// CaptureService is the only writer path into the note store and index.
// The canonical append is strict; the index upsert is best effort, so a
// capture that reached the note store never fails outright because
// embedding or indexing did.
type CaptureService struct {
	repo     *GitRepository
	store    NoteStore
	index    Index
	embedder Embedder
	lock     *CaptureLock
	dedup    *SessionScope
	scorer   *LearningScorer
	cfg      CaptureConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewCaptureService(
	repo *GitRepository,
	store NoteStore,
	index Index,
	embedder Embedder,
	lock *CaptureLock,
	cfg CaptureConfig,
	log zerolog.Logger,
) *CaptureService {
	return &CaptureService{
		repo:     repo,
		store:    store,
		index:    index,
		embedder: embedder,
		lock:     lock,
		dedup:    NewSessionScope(cfg.DedupCapacity),
		scorer:   NewLearningScorer(),
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Capture validates, locks, appends to the note store, then indexes.
// Validation failures happen before any side effect. A note-store failure
// aborts the capture; an embedding or index failure degrades to a partial
// success with a warning.
func (s *CaptureService) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	ns, err := ParseNamespace(string(req.Namespace))
	if err != nil {
		return nil, &ValidationError{Field: "namespace", Reason: fmt.Sprintf("unknown namespace %q", req.Namespace)}
	}

	commitHash, err := s.repo.ResolveCommit(req.CommitRef)
	if err != nil {
		return nil, err
	}

	mem := Memory{
		CommitRef: commitHash,
		Namespace: ns,
		Spec:      req.Spec,
		Phase:     req.Phase,
		Summary:   req.Summary,
		Content:   req.Content,
		Tags:      req.Tags,
		Timestamp: s.now().UTC(),
		Status:    req.Status,
	}
	mem.ID = NewMemoryID(ns, commitHash, mem.Timestamp)
	if err := mem.Validate(); err != nil {
		return nil, err
	}

	entry, err := EncodeEntry(&mem)
	if err != nil {
		return nil, &StorageError{Op: "encode note entry", Err: err}
	}

	handle, err := s.lock.Acquire(commitHash, ns)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := handle.Release(); rerr != nil {
			s.log.Warn().Err(rerr).Str("id", mem.ID).Msg("release capture lock")
		}
	}()

	if err := s.store.Append(ns, commitHash, entry); err != nil {
		return nil, err
	}

	result := &CaptureResult{Memory: mem, Indexed: true}
	if err := s.indexMemory(ctx, mem); err != nil {
		result.Indexed = false
		result.Warning = err.Error()
		s.log.Warn().Err(err).Str("id", mem.ID).
			Msg("memory recorded but not indexed; run reindex to make it searchable")
	}

	s.log.Info().
		Str("id", mem.ID).
		Str("namespace", ns.String()).
		Bool("indexed", result.Indexed).
		Msg("memory captured")
	return result, nil
}

func (s *CaptureService) indexMemory(ctx context.Context, mem Memory) error {
	if s.embedder == nil {
		return &EmbeddingError{Err: ErrNoEmbedder}
	}
	if s.index == nil {
		return &IndexError{Op: "upsert", Err: ErrNoIndex}
	}

	vec, err := s.embedder.Embed(ctx, embeddingText(&mem))
	if err != nil {
		return &EmbeddingError{Err: err}
	}
	return s.index.Upsert(ctx, mem, vec)
}

// CaptureAuto applies the automatic-capture policy on top of Capture: the
// namespace must be enabled for auto capture, the scored response must
// clear the threshold, and identical content within the session is
// suppressed. A suppressed capture returns (nil, nil).
func (s *CaptureService) CaptureAuto(ctx context.Context, req CaptureRequest, toolName string, meta ResponseMetadata) (*CaptureResult, error) {
	if !s.autoEnabled(req.Namespace) {
		return nil, &ValidationError{
			Field:  "namespace",
			Reason: fmt.Sprintf("namespace %q is not enabled for auto capture", req.Namespace),
		}
	}

	if !s.scorer.ShouldCapture(toolName, meta) {
		return nil, nil
	}

	digest := ContentHash(req.Content)
	if s.dedup.IsDuplicate(digest) {
		s.log.Debug().Str("digest", digest).Msg("duplicate content suppressed")
		return nil, nil
	}

	result, err := s.Capture(ctx, req)
	if err != nil {
		return nil, err
	}
	s.dedup.Remember(digest)
	return result, nil
}

func (s *CaptureService) autoEnabled(ns Namespace) bool {
	for _, enabled := range s.cfg.AutoNamespaces {
		if enabled == string(ns) {
			return true
		}
	}
	return false
}

// Controlled vocabularies of the specialized capture variants. Unknown
// values are rejected before any write.
var (
	decisionCategories = []string{"architecture", "dependency", "design", "process", "tooling"}
	learningCategories = []string{"discovery", "error", "optimization", "workaround"}
	blockerSeverities  = []string{"low", "medium", "high", "critical"}
	progressOutcomes   = []string{"started", "milestone", "completed"}
	reviewVerdicts     = []string{"approved", "changes-requested", "rejected"}
)

func checkVocabulary(field, value string, allowed []string) error {
	for _, v := range allowed {
		if v == value {
			return nil
		}
	}
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("%q is not one of %s", value, strings.Join(allowed, "|")),
	}
}

// metadataBlock renders the shared markdown header of a formatted capture.
func metadataBlock(pairs ...[2]string) string {
	var sb strings.Builder
	for _, kv := range pairs {
		if kv[1] == "" {
			continue
		}
		fmt.Fprintf(&sb, "**%s:** %s\n", kv[0], kv[1])
	}
	return sb.String()
}

// CaptureDecision records a decision with its rationale.
func (s *CaptureService) CaptureDecision(ctx context.Context, req CaptureRequest, category, rationale string) (*CaptureResult, error) {
	if err := checkVocabulary("category", category, decisionCategories); err != nil {
		return nil, err
	}

	req.Namespace = NamespaceDecisions
	req.Content = metadataBlock(
		[2]string{"Category", category},
	) + "\n## Decision\n" + req.Content + "\n\n## Rationale\n" + rationale
	return s.Capture(ctx, req)
}

// CaptureLearning records something learned the hard way.
func (s *CaptureService) CaptureLearning(ctx context.Context, req CaptureRequest, category string) (*CaptureResult, error) {
	if err := checkVocabulary("category", category, learningCategories); err != nil {
		return nil, err
	}

	req.Namespace = NamespaceLearnings
	req.Content = metadataBlock(
		[2]string{"Category", category},
	) + "\n" + req.Content
	return s.Capture(ctx, req)
}

// CaptureBlocker records an unresolved blocker.
func (s *CaptureService) CaptureBlocker(ctx context.Context, req CaptureRequest, severity string) (*CaptureResult, error) {
	if err := checkVocabulary("severity", severity, blockerSeverities); err != nil {
		return nil, err
	}

	req.Namespace = NamespaceBlockers
	req.Status = string(BlockerUnresolved)
	req.Content = metadataBlock(
		[2]string{"Severity", severity},
	) + "\n" + req.Content
	return s.Capture(ctx, req)
}

// ResolveBlocker records a resolution as a new memory referencing the
// original blocker id. The original stays untouched in the canonical log.
func (s *CaptureService) ResolveBlocker(ctx context.Context, req CaptureRequest, originalID, resolution string) (*CaptureResult, error) {
	if _, _, _, err := ParseMemoryID(originalID); err != nil {
		return nil, &ValidationError{Field: "originalID", Reason: fmt.Sprintf("malformed memory id %q", originalID)}
	}

	req.Namespace = NamespaceBlockers
	req.Status = string(BlockerResolved)
	req.Content = metadataBlock(
		[2]string{"Resolves", originalID},
	) + "\n## Resolution\n" + resolution
	return s.Capture(ctx, req)
}

// CaptureProgress records a progress milestone for a phase.
func (s *CaptureService) CaptureProgress(ctx context.Context, req CaptureRequest, outcome string) (*CaptureResult, error) {
	if err := checkVocabulary("outcome", outcome, progressOutcomes); err != nil {
		return nil, err
	}

	req.Namespace = NamespaceProgress
	req.Content = metadataBlock(
		[2]string{"Outcome", outcome},
		[2]string{"Phase", req.Phase},
	) + "\n" + req.Content
	return s.Capture(ctx, req)
}

// CaptureReview records a review outcome.
func (s *CaptureService) CaptureReview(ctx context.Context, req CaptureRequest, verdict string) (*CaptureResult, error) {
	if err := checkVocabulary("verdict", verdict, reviewVerdicts); err != nil {
		return nil, err
	}

	req.Namespace = NamespaceReviews
	req.Content = metadataBlock(
		[2]string{"Verdict", verdict},
	) + "\n" + req.Content
	return s.Capture(ctx, req)
}

// CaptureRetrospective records what went well and what didn't.
func (s *CaptureService) CaptureRetrospective(ctx context.Context, req CaptureRequest, wentWell, needsWork string) (*CaptureResult, error) {
	req.Namespace = NamespaceRetrospective
	req.Content = "## Went well\n" + wentWell + "\n\n## Needs work\n" + needsWork
	if req.Content == "## Went well\n\n\n## Needs work\n" {
		return nil, &ValidationError{Field: "content", Reason: "retrospective must not be empty"}
	}
	return s.Capture(ctx, req)
}

// CapturePattern promotes a detected pattern into a persisted memory.
// Detection itself never writes; this is the explicit promotion step.
func (s *CaptureService) CapturePattern(ctx context.Context, req CaptureRequest, pattern DetectedPattern) (*CaptureResult, error) {
	switch pattern.PatternType {
	case PatternSuccess, PatternAntiPattern, PatternDeviation:
	default:
		return nil, &ValidationError{
			Field:  "patternType",
			Reason: fmt.Sprintf("%q is not one of %s|%s|%s", pattern.PatternType, PatternSuccess, PatternAntiPattern, PatternDeviation),
		}
	}

	req.Namespace = NamespacePatterns
	if req.Summary == "" {
		req.Summary = pattern.Name
	}
	req.Tags = append(req.Tags, pattern.Tags...)
	req.Content = metadataBlock(
		[2]string{"Type", string(pattern.PatternType)},
		[2]string{"Confidence", fmt.Sprintf("%.2f", pattern.Confidence)},
		[2]string{"Evidence", strings.Join(pattern.Evidence, ", ")},
	) + "\n" + pattern.Description
	return s.Capture(ctx, req)
}
