package internal

import (
	"strings"
	"testing"
	"time"
)

func TestMemoryIDRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	id := NewMemoryID(NamespaceDecisions, "abc1234def5678", ts)

	ns, shortRef, parsed, err := ParseMemoryID(id)
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	if ns != NamespaceDecisions {
		t.Errorf("namespace = %q, want decisions", ns)
	}
	if shortRef != "abc1234" {
		t.Errorf("short ref = %q, want abc1234", shortRef)
	}
	if !parsed.Equal(ts.Truncate(time.Millisecond)) {
		t.Errorf("timestamp = %v, want %v", parsed, ts)
	}
}

func TestParseMemoryIDRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "decisions", "decisions:abc1234", "nope:abc1234:123", "decisions:abc1234:notanumber"} {
		if _, _, _, err := ParseMemoryID(id); err == nil {
			t.Errorf("ParseMemoryID(%q) accepted malformed id", id)
		}
	}
}

func TestParseNamespace(t *testing.T) {
	ns, err := ParseNamespace("  Learnings ")
	if err != nil {
		t.Fatalf("parse namespace: %v", err)
	}
	if ns != NamespaceLearnings {
		t.Errorf("namespace = %q, want learnings", ns)
	}

	if _, err := ParseNamespace("feelings"); err == nil {
		t.Error("expected error for unknown namespace")
	}
}

func TestMemoryValidate(t *testing.T) {
	base := testMemory(NamespaceLearnings, "abc1234", "a summary", time.Now())
	if err := base.Validate(); err != nil {
		t.Fatalf("valid memory rejected: %v", err)
	}

	long := base
	long.Summary = strings.Repeat("x", MaxSummaryLen+1)
	if err := long.Validate(); err == nil {
		t.Error("expected error for oversized summary")
	}

	big := base
	big.Content = strings.Repeat("y", MaxContentBytes+1)
	if err := big.Validate(); err == nil {
		t.Error("expected error for oversized content")
	}

	empty := base
	empty.Summary = ""
	if err := empty.Validate(); err == nil {
		t.Error("expected error for empty summary")
	}
}

func TestMemoryValidateSummaryCountsCharacters(t *testing.T) {
	// 100 three-byte characters stay within the character bound even
	// though they exceed it in bytes.
	wide := testMemory(NamespaceLearnings, "abc1234", strings.Repeat("学", MaxSummaryLen), time.Now())
	if err := wide.Validate(); err != nil {
		t.Errorf("%d-character summary rejected: %v", MaxSummaryLen, err)
	}

	wide.Summary = strings.Repeat("学", MaxSummaryLen+1)
	if err := wide.Validate(); err == nil {
		t.Errorf("expected error for %d-character summary", MaxSummaryLen+1)
	}
}

func TestSortedTags(t *testing.T) {
	m := Memory{Tags: []string{"zeta", "alpha", "alpha", "Mid"}}
	got := m.SortedTags()

	want := []string{"Mid", "alpha", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestVerificationResultIsConsistent(t *testing.T) {
	if !(VerificationResult{}).IsConsistent() {
		t.Error("empty result should be consistent")
	}
	if (VerificationResult{OrphanedInIndex: []string{"x"}}).IsConsistent() {
		t.Error("result with orphans should be inconsistent")
	}
}
