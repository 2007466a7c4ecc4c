package internal

import "regexp"

// DefaultCaptureThreshold gates whether a scored tool response is worth
// capturing automatically.
const DefaultCaptureThreshold = 0.6

// ResponseMetadata is what a scorer sees about a tool invocation. The text
// is assumed to have passed secret filtering upstream.
type ResponseMetadata struct {
	ExitCode int
	Output   string
}

// LearningScorer decides whether arbitrary tool output is capture-worthy.
// It sits on a latency-sensitive path, so all patterns are compiled once and
// scoring does no I/O.
type LearningScorer struct {
	errorPatterns      []*regexp.Regexp
	workaroundPatterns []*regexp.Regexp
	discoveryPatterns  []*regexp.Regexp
	noisePatterns      []*regexp.Regexp
}

const (
	weightExitCode   = 0.4
	weightError      = 0.3
	weightWorkaround = 0.25
	weightDiscovery  = 0.25
	weightNoise      = 0.3
)

func NewLearningScorer() *LearningScorer {
	compile := func(patterns []string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, len(patterns))
		for i, p := range patterns {
			out[i] = regexp.MustCompile(p)
		}
		return out
	}

	return &LearningScorer{
		errorPatterns: compile([]string{
			`(?i)\berror\b`,
			`(?i)\bfail(ed|ure)?\b`,
			`(?i)\bexception\b`,
			`(?i)\bpanic\b`,
			`(?i)\bfatal\b`,
			`(?i)\btraceback\b`,
		}),
		workaroundPatterns: compile([]string{
			`(?i)\bworkaround\b`,
			`(?i)\binstead of\b`,
			`(?i)\bhad to\b`,
			`(?i)\bturns out\b`,
			`(?i)\bfixed by\b`,
		}),
		discoveryPatterns: compile([]string{
			`(?i)\bdiscovered\b`,
			`(?i)\brealized\b`,
			`(?i)\broot cause\b`,
			`(?i)\bactually\b`,
			`(?i)\bgotcha\b`,
		}),
		noisePatterns: compile([]string{
			`(?i)^ok$`,
			`(?i)\ball tests pass(ed)?\b`,
			`(?i)\bno changes\b`,
			`(?i)\bup to date\b`,
			`(?i)\bnothing to do\b`,
		}),
	}
}

// Score rates output in [0,1]. Non-zero exit codes and error, workaround and
// discovery language raise the score; routine success noise lowers it.
func (s *LearningScorer) Score(toolName string, meta ResponseMetadata) float64 {
	score := 0.0

	if meta.ExitCode != 0 {
		score += weightExitCode
	}
	if matchAny(s.errorPatterns, meta.Output) {
		score += weightError
	}
	if matchAny(s.workaroundPatterns, meta.Output) {
		score += weightWorkaround
	}
	if matchAny(s.discoveryPatterns, meta.Output) {
		score += weightDiscovery
	}
	if matchAny(s.noisePatterns, meta.Output) {
		score -= weightNoise
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ShouldCapture applies the default threshold.
func (s *LearningScorer) ShouldCapture(toolName string, meta ResponseMetadata) bool {
	return s.Score(toolName, meta) >= DefaultCaptureThreshold
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
