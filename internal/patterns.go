package internal

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	// minPatternOccurrences is how many memories must share a theme
	// before it counts as a pattern.
	minPatternOccurrences = 2

	// maxPatternEvidence caps the memory ids attached to a pattern.
	maxPatternEvidence = 5
)

// keywordFamilies map recurring phrasings in memory content onto a
// pattern theme and type. Matching is case-insensitive substring.
var keywordFamilies = []struct {
	theme    string
	ptype    PatternType
	keywords []string
}{
	{"repeated-failure", PatternAntiPattern, []string{"failed again", "same error", "broke again", "regression"}},
	{"workaround-accumulation", PatternAntiPattern, []string{"workaround", "hack", "temporary fix", "band-aid"}},
	{"flaky-behavior", PatternAntiPattern, []string{"flaky", "intermittent", "sometimes fails", "race"}},
	{"effective-approach", PatternSuccess, []string{"worked well", "clean solution", "solved by", "fixed by"}},
	{"reusable-technique", PatternSuccess, []string{"reusable", "applies elsewhere", "same approach"}},
	{"plan-deviation", PatternDeviation, []string{"instead of", "deviated", "changed approach", "pivoted"}},
	{"scope-change", PatternDeviation, []string{"out of scope", "descoped", "expanded scope"}},
}

// PatternDetector finds recurring themes across memories. Detection is
// read only; promoting a pattern into a persisted memory is a separate,
// explicit capture.
type PatternDetector struct{}

func NewPatternDetector() *PatternDetector {
	return &PatternDetector{}
}

// Detect groups the given memories by shared tags and by keyword
// families, and reports every group with enough occurrences as a
// pattern. Output order is deterministic: by descending confidence,
// then by name.
func (d *PatternDetector) Detect(memories []Memory) []DetectedPattern {
	groups := make(map[string]*patternGroup)

	for i := range memories {
		m := &memories[i]
		content := strings.ToLower(m.Summary + "\n" + m.Content)

		for _, fam := range keywordFamilies {
			for _, kw := range fam.keywords {
				if strings.Contains(content, kw) {
					key := "kw:" + fam.theme
					g := groups[key]
					if g == nil {
						g = &patternGroup{
							name:  fam.theme,
							ptype: fam.ptype,
						}
						groups[key] = g
					}
					g.add(m)
					break
				}
			}
		}

		for _, tag := range m.SortedTags() {
			key := "tag:" + strings.ToLower(tag)
			g := groups[key]
			if g == nil {
				g = &patternGroup{
					name:  "recurring-tag-" + strings.ToLower(tag),
					ptype: PatternSuccess,
					tags:  []string{tag},
				}
				groups[key] = g
			}
			g.add(m)
		}
	}

	var detected []DetectedPattern
	for _, g := range groups {
		if len(g.ids) < minPatternOccurrences {
			continue
		}
		detected = append(detected, g.toPattern())
	}

	sort.Slice(detected, func(i, j int) bool {
		if detected[i].Confidence != detected[j].Confidence {
			return detected[i].Confidence > detected[j].Confidence
		}
		return detected[i].Name < detected[j].Name
	})
	return detected
}

// DescribePattern asks the provider for a short prose description of a
// detected pattern, grounded in its evidence memories. Without a provider,
// or when generation fails, the detector's deterministic description
// stands.
func DescribePattern(ctx context.Context, provider Provider, p DetectedPattern, memories []Memory) string {
	if provider == nil {
		return p.Description
	}

	byID := make(map[string]*Memory, len(memories))
	for i := range memories {
		byID[memories[i].ID] = &memories[i]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Describe in one or two sentences the recurring %s pattern %q observed in these engineering notes:\n\n", p.PatternType, p.Name)
	for _, id := range p.Evidence {
		m, ok := byID[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "- %s\n", m.Summary)
	}

	text, err := provider.Complete(ctx, sb.String())
	if err != nil {
		return p.Description
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return p.Description
	}
	return text
}

type patternGroup struct {
	name  string
	ptype PatternType
	tags  []string
	ids   []string
	seen  map[string]bool
}

func (g *patternGroup) add(m *Memory) {
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	if g.seen[m.ID] {
		return
	}
	g.seen[m.ID] = true
	g.ids = append(g.ids, m.ID)
}

// toPattern finalizes the group. Confidence grows with occurrences but
// never reaches certainty.
func (g *patternGroup) toPattern() DetectedPattern {
	count := len(g.ids)
	confidence := 0.35 + 0.15*float64(count)
	if confidence > 0.95 {
		confidence = 0.95
	}

	evidence := make([]string, len(g.ids))
	copy(evidence, g.ids)
	sort.Strings(evidence)
	if len(evidence) > maxPatternEvidence {
		evidence = evidence[:maxPatternEvidence]
	}

	return DetectedPattern{
		Name:        g.name,
		PatternType: g.ptype,
		Description: fmt.Sprintf("%d memories share the %s theme", count, g.name),
		Confidence:  confidence,
		Evidence:    evidence,
		Tags:        g.tags,
	}
}
