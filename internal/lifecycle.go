package internal

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultHalfLifeDays is the relevance half-life used when none is
// configured.
const DefaultHalfLifeDays = 30.0

// LifecycleState classifies a memory by age.
type LifecycleState string

const (
	StateActive   LifecycleState = "active"
	StateAging    LifecycleState = "aging"
	StateStale    LifecycleState = "stale"
	StateArchived LifecycleState = "archived"
)

// Decay is the exponential age discount: 2^(-ageDays/halfLifeDays).
// Monotonically decreasing in age; 1.0 at age zero.
func Decay(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}
	if ageDays <= 0 {
		return 1.0
	}
	return math.Exp2(-ageDays / halfLifeDays)
}

// LifecycleManager scores age-based relevance and condenses groups of
// memories for archival. Archival summarizes; it never deletes from the
// canonical log.
type LifecycleManager struct {
	cfg      LifecycleConfig
	provider Provider // optional; archival falls back to a deterministic digest
	log      zerolog.Logger
	now      func() time.Time
}

func NewLifecycleManager(cfg LifecycleConfig, provider Provider, log zerolog.Logger) *LifecycleManager {
	if cfg.HalfLifeDays <= 0 {
		cfg.HalfLifeDays = DefaultHalfLifeDays
	}
	return &LifecycleManager{
		cfg:      cfg,
		provider: provider,
		log:      log,
		now:      time.Now,
	}
}

// DecayOf scores one memory at the current instant.
func (l *LifecycleManager) DecayOf(m *Memory) float64 {
	ageDays := l.now().Sub(m.Timestamp).Hours() / 24
	return Decay(ageDays, l.cfg.HalfLifeDays)
}

// Classify maps an age in days onto a lifecycle state using the configured
// thresholds.
func (l *LifecycleManager) Classify(ageDays float64) LifecycleState {
	switch {
	case ageDays < l.cfg.ActiveDays:
		return StateActive
	case ageDays < l.cfg.AgingDays:
		return StateAging
	case ageDays < l.cfg.StaleDays:
		return StateStale
	default:
		return StateArchived
	}
}

// StateOf classifies one memory at the current instant.
func (l *LifecycleManager) StateOf(m *Memory) LifecycleState {
	return l.Classify(l.now().Sub(m.Timestamp).Hours() / 24)
}

// ArchiveSummary is the condensed form of one namespace's memories within a
// spec.
type ArchiveSummary struct {
	Title     string   `json:"title"`
	Overview  string   `json:"overview"`
	KeyPoints []string `json:"key_points"`
}

// ArchiveSpec condenses a spec's memories into per-namespace summaries.
// With a provider configured the condensation is generated; without one a
// deterministic digest of summaries is produced. Either way the original
// memories stay in the note store untouched.
func (l *LifecycleManager) ArchiveSpec(ctx context.Context, spec string, memories []Memory) ([]ArchiveSummary, error) {
	if len(memories) == 0 {
		return nil, nil
	}

	byNamespace := make(map[Namespace][]Memory)
	for _, m := range memories {
		byNamespace[m.Namespace] = append(byNamespace[m.Namespace], m)
	}

	namespaces := make([]Namespace, 0, len(byNamespace))
	for ns := range byNamespace {
		namespaces = append(namespaces, ns)
	}
	sort.Slice(namespaces, func(i, j int) bool { return namespaces[i] < namespaces[j] })

	var summaries []ArchiveSummary
	for _, ns := range namespaces {
		group := byNamespace[ns]
		sort.Slice(group, func(i, j int) bool { return group[i].Timestamp.Before(group[j].Timestamp) })

		summary, err := l.condense(ctx, spec, ns, group)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (l *LifecycleManager) condense(ctx context.Context, spec string, ns Namespace, group []Memory) (ArchiveSummary, error) {
	if l.provider != nil {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Condense these %s memories for spec %q into a short archive summary:\n\n", ns, spec)
		for _, m := range group {
			fmt.Fprintf(&sb, "- [%s] %s\n%s\n\n", m.Timestamp.Format("2006-01-02"), m.Summary, m.Content)
		}

		var summary ArchiveSummary
		if err := l.provider.GenerateObject(ctx, sb.String(), &summary); err != nil {
			l.log.Warn().Err(err).Str("namespace", ns.String()).Msg("provider condensation failed, using digest")
			return digestSummary(spec, ns, group), nil
		}
		if summary.Title == "" {
			summary.Title = digestTitle(spec, ns, group)
		}
		return summary, nil
	}
	return digestSummary(spec, ns, group), nil
}

func digestTitle(spec string, ns Namespace, group []Memory) string {
	return fmt.Sprintf("%s: %d %s (%s to %s)",
		spec, len(group), ns,
		group[0].Timestamp.Format("2006-01-02"),
		group[len(group)-1].Timestamp.Format("2006-01-02"))
}

func digestSummary(spec string, ns Namespace, group []Memory) ArchiveSummary {
	points := make([]string, 0, len(group))
	for _, m := range group {
		points = append(points, m.Summary)
	}
	return ArchiveSummary{
		Title:     digestTitle(spec, ns, group),
		Overview:  fmt.Sprintf("Condensed record of %d %s captured for spec %q.", len(group), ns, spec),
		KeyPoints: points,
	}
}
