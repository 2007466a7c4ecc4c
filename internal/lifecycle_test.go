package internal

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLifecycleManager() *LifecycleManager {
	return NewLifecycleManager(LifecycleConfig{
		HalfLifeDays: 30,
		ActiveDays:   7,
		AgingDays:    30,
		StaleDays:    90,
	}, nil, zerolog.Nop())
}

func TestDecayMonotonicallyDecreasing(t *testing.T) {
	prev := Decay(0, 30)
	if prev != 1.0 {
		t.Errorf("decay at age 0 = %f, want 1.0", prev)
	}

	for _, age := range []float64{1, 7, 30, 90, 365} {
		d := Decay(age, 30)
		if d >= prev {
			t.Errorf("decay(%f) = %f not below decay at younger age %f", age, d, prev)
		}
		if d <= 0 || d > 1 {
			t.Errorf("decay(%f) = %f outside (0,1]", age, d)
		}
		prev = d
	}
}

func TestDecayHalfLife(t *testing.T) {
	d := Decay(30, 30)
	if d < 0.499 || d > 0.501 {
		t.Errorf("decay at one half-life = %f, want 0.5", d)
	}
}

func TestClassifyBoundaries(t *testing.T) {
	mgr := testLifecycleManager()

	cases := []struct {
		ageDays float64
		want    LifecycleState
	}{
		{0, StateActive},
		{6.9, StateActive},
		{7, StateAging},
		{29.9, StateAging},
		{30, StateStale},
		{89.9, StateStale},
		{90, StateArchived},
		{400, StateArchived},
	}
	for _, c := range cases {
		if got := mgr.Classify(c.ageDays); got != c.want {
			t.Errorf("Classify(%f) = %q, want %q", c.ageDays, got, c.want)
		}
	}
}

func TestArchiveSpecDigestFallback(t *testing.T) {
	mgr := testLifecycleManager()
	ts := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	memories := []Memory{
		testMemory(NamespaceLearnings, "abc1234", "later lesson", ts.Add(24*time.Hour)),
		testMemory(NamespaceLearnings, "abc1234", "earlier lesson", ts),
		testMemory(NamespaceDecisions, "abc1234", "a decision", ts),
	}

	summaries, err := mgr.ArchiveSpec(context.Background(), "payments", memories)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d, want 2 (one per namespace)", len(summaries))
	}

	// namespaces come back sorted: decisions before learnings
	if summaries[0].Title == "" || summaries[1].Title == "" {
		t.Error("digest summary missing title")
	}
	learnings := summaries[1]
	if len(learnings.KeyPoints) != 2 {
		t.Fatalf("key points = %d, want 2", len(learnings.KeyPoints))
	}
	if learnings.KeyPoints[0] != "earlier lesson" {
		t.Errorf("key points not in chronological order: %v", learnings.KeyPoints)
	}
}

func TestArchiveSpecEmptyInput(t *testing.T) {
	summaries, err := testLifecycleManager().ArchiveSpec(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if summaries != nil {
		t.Errorf("expected nil summaries for empty input, got %v", summaries)
	}
}
