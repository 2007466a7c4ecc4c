package internal

import "testing"

func TestScorerFailedCommandScoresHigh(t *testing.T) {
	s := NewLearningScorer()

	meta := ResponseMetadata{
		ExitCode: 1,
		Output:   "error: connection refused\nturns out the port was taken",
	}
	if !s.ShouldCapture("bash", meta) {
		t.Errorf("failed command with error and workaround language scored %.2f, want >= %.2f",
			s.Score("bash", meta), DefaultCaptureThreshold)
	}
}

func TestScorerRoutineSuccessScoresLow(t *testing.T) {
	s := NewLearningScorer()

	meta := ResponseMetadata{ExitCode: 0, Output: "all tests passed"}
	if s.ShouldCapture("bash", meta) {
		t.Errorf("routine success scored %.2f, should be below threshold", s.Score("bash", meta))
	}
}

func TestScorerClampsToUnitInterval(t *testing.T) {
	s := NewLearningScorer()

	hot := ResponseMetadata{
		ExitCode: 2,
		Output:   "fatal error: panic. discovered root cause, fixed by workaround instead of the obvious fix",
	}
	if got := s.Score("bash", hot); got > 1 {
		t.Errorf("score = %.2f, want <= 1", got)
	}

	cold := ResponseMetadata{ExitCode: 0, Output: "ok"}
	if got := s.Score("bash", cold); got < 0 {
		t.Errorf("score = %.2f, want >= 0", got)
	}
}

func TestScorerDiscoveryWithoutFailure(t *testing.T) {
	s := NewLearningScorer()

	meta := ResponseMetadata{
		ExitCode: 0,
		Output:   "discovered that the cache actually ignores the TTL header, root cause of the staleness",
	}
	if got := s.Score("bash", meta); got <= 0 {
		t.Errorf("discovery language scored %.2f, want > 0", got)
	}
}
