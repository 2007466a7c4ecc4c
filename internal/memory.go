package internal

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxSummaryLen bounds the one-line summary of a memory, in characters.
	MaxSummaryLen = 100
	// MaxContentBytes bounds the markdown body of a memory.
	MaxContentBytes = 100_000

	// ShortRefLen is the abbreviated commit hash length used in memory ids.
	ShortRefLen = 7
)

// Namespace partitions memories by kind. The set is closed: captures against
// an unknown namespace are rejected before any write happens.
type Namespace string

const (
	NamespaceDecisions     Namespace = "decisions"
	NamespaceLearnings     Namespace = "learnings"
	NamespaceBlockers      Namespace = "blockers"
	NamespaceProgress      Namespace = "progress"
	NamespaceReviews       Namespace = "reviews"
	NamespaceRetrospective Namespace = "retrospective"
	NamespacePatterns      Namespace = "patterns"
)

// AllNamespaces returns the recognized namespaces in stable order.
func AllNamespaces() []Namespace {
	return []Namespace{
		NamespaceDecisions,
		NamespaceLearnings,
		NamespaceBlockers,
		NamespaceProgress,
		NamespaceReviews,
		NamespaceRetrospective,
		NamespacePatterns,
	}
}

// ParseNamespace validates a namespace string.
func ParseNamespace(s string) (Namespace, error) {
	ns := Namespace(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllNamespaces() {
		if ns == known {
			return ns, nil
		}
	}
	return "", ErrInvalidNamespace
}

func (n Namespace) String() string {
	return string(n)
}

// BlockerStatus tracks whether a captured blocker has been resolved.
// Resolution is a new memory referencing the original, never a mutation.
type BlockerStatus string

const (
	BlockerUnresolved BlockerStatus = "unresolved"
	BlockerResolved   BlockerStatus = "resolved"
)

// Memory is one captured, immutable fact anchored to a commit.
type Memory struct {
	ID        string    `yaml:"id"`
	CommitRef string    `yaml:"commit"`
	Namespace Namespace `yaml:"namespace"`
	Spec      string    `yaml:"spec,omitempty"`
	Phase     string    `yaml:"phase,omitempty"`
	Summary   string    `yaml:"summary"`
	Content   string    `yaml:"content"`
	Tags      []string  `yaml:"tags,omitempty"`
	Timestamp time.Time `yaml:"timestamp"`
	Status    string    `yaml:"status,omitempty"`
}

// NewMemoryID builds the canonical id: namespace:shortRef:timestampMillis.
// Two captures within the same millisecond on the same commit collide; the
// index treats that as last-write-wins while the note store keeps both
// bodies.
func NewMemoryID(ns Namespace, commitRef string, ts time.Time) string {
	return fmt.Sprintf("%s:%s:%d", ns, ShortRef(commitRef), ts.UnixMilli())
}

// ShortRef abbreviates a commit hash for use in ids.
func ShortRef(commitRef string) string {
	if len(commitRef) > ShortRefLen {
		return commitRef[:ShortRefLen]
	}
	return commitRef
}

// ParseMemoryID splits an id back into its parts.
func ParseMemoryID(id string) (Namespace, string, time.Time, error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 {
		return "", "", time.Time{}, &ParseError{What: "memory id", Detail: id}
	}
	ns, err := ParseNamespace(parts[0])
	if err != nil {
		return "", "", time.Time{}, &ParseError{What: "memory id namespace", Detail: id}
	}
	millis, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", "", time.Time{}, &ParseError{What: "memory id timestamp", Detail: id}
	}
	return ns, parts[1], time.UnixMilli(millis).UTC(), nil
}

// Validate checks the field invariants that hold for every memory.
func (m *Memory) Validate() error {
	if m.CommitRef == "" {
		return &ValidationError{Field: "commitRef", Reason: "must not be empty"}
	}
	if m.Summary == "" {
		return &ValidationError{Field: "summary", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(m.Summary) > MaxSummaryLen {
		return &ValidationError{
			Field:  "summary",
			Reason: fmt.Sprintf("exceeds %d characters", MaxSummaryLen),
		}
	}
	if len(m.Content) > MaxContentBytes {
		return &ValidationError{
			Field:  "content",
			Reason: fmt.Sprintf("exceeds %d bytes", MaxContentBytes),
		}
	}
	if _, err := ParseNamespace(string(m.Namespace)); err != nil {
		return &ValidationError{Field: "namespace", Reason: fmt.Sprintf("unknown namespace %q", m.Namespace)}
	}
	return nil
}

// Age reports how old the memory is at the given instant.
func (m *Memory) Age(now time.Time) time.Duration {
	return now.Sub(m.Timestamp)
}

// SortedTags returns the tags deduplicated and sorted. Tags are an unordered
// set; this is the canonical form used for storage and comparison.
func (m *Memory) SortedTags() []string {
	seen := make(map[string]struct{}, len(m.Tags))
	out := make([]string, 0, len(m.Tags))
	for _, t := range m.Tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// MemoryResult is a memory plus its search distance. Lower distance means
// more similar.
type MemoryResult struct {
	Memory
	Distance float64
}

// Score aliases Distance.
func (r MemoryResult) Score() float64 {
	return r.Distance
}

// HydrationLevel controls how much of a memory gets loaded on recall.
type HydrationLevel int

const (
	HydrationSummary HydrationLevel = 1
	HydrationFull    HydrationLevel = 2
	HydrationFiles   HydrationLevel = 3
)

// FileSnapshot is one file changed in the anchoring commit, loaded at
// HydrationFiles. Truncation is flagged, never silent.
type FileSnapshot struct {
	Content   string
	Truncated bool
}

// HydratedMemory is a memory at a given hydration level. Files is populated
// only at HydrationFiles; Content only from HydrationFull upward.
type HydratedMemory struct {
	Memory
	Level        HydrationLevel
	Files        map[string]FileSnapshot
	FilesOmitted int
}

// PatternType classifies a detected pattern.
type PatternType string

const (
	PatternSuccess     PatternType = "success"
	PatternAntiPattern PatternType = "anti-pattern"
	PatternDeviation   PatternType = "deviation"
)

// DetectedPattern is a named, evidence-backed recurring signal across
// memories. Detection is read-only; persisting a pattern is a separate
// capture call.
type DetectedPattern struct {
	PatternType PatternType
	Name        string
	Description string
	Confidence  float64
	Evidence    []string // contributing memory ids, bounded sample
	Tags        []string
}

// VerificationResult holds the three discrepancy sets between note store and
// index.
type VerificationResult struct {
	MissingInIndex    []string
	OrphanedInIndex   []string
	ContentMismatches []string
}

// IsConsistent reports whether all discrepancy sets are empty.
func (v VerificationResult) IsConsistent() bool {
	return len(v.MissingInIndex) == 0 &&
		len(v.OrphanedInIndex) == 0 &&
		len(v.ContentMismatches) == 0
}

// CaptureResult reports the outcome of a capture. Indexed is false when the
// canonical write succeeded but the embedding or index step did not; the
// memory is still durable and becomes searchable after a reindex.
type CaptureResult struct {
	Memory  Memory
	Indexed bool
	Warning string
}

// RebuildStats summarizes an index rebuild.
type RebuildStats struct {
	Scanned  int
	Indexed  int
	Failed   int
	Duration time.Duration
}

// GCStats summarizes an index reconciliation pass.
type GCStats struct {
	Removed int
	Added   int
	Failed  int
}
