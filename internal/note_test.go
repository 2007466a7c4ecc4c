package internal

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeParseEntryRoundTrip(t *testing.T) {
	ts := time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)
	m := Memory{
		CommitRef: "abc1234def",
		Namespace: NamespaceDecisions,
		Spec:      "auth-rework",
		Phase:     "implementation",
		Summary:   "switched token signing to ed25519",
		Content:   "## Decision\nRS256 keys were painful to rotate.\n",
		Tags:      []string{"auth", "crypto"},
		Timestamp: ts,
	}
	m.ID = NewMemoryID(m.Namespace, m.CommitRef, ts)

	raw, err := EncodeEntry(&m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := ParseEntry(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got.ID != m.ID {
		t.Errorf("id = %q, want %q", got.ID, m.ID)
	}
	if got.Namespace != NamespaceDecisions {
		t.Errorf("namespace = %q, want decisions", got.Namespace)
	}
	if got.Spec != m.Spec || got.Phase != m.Phase {
		t.Errorf("spec/phase = %q/%q, want %q/%q", got.Spec, got.Phase, m.Spec, m.Phase)
	}
	if !strings.Contains(got.Content, "RS256 keys were painful") {
		t.Errorf("content lost: %q", got.Content)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, ts)
	}
}

func TestAppendEntryKeepsBothBodies(t *testing.T) {
	ts := time.Now().UTC()
	first := testMemory(NamespaceLearnings, "abc1234", "first lesson", ts)
	second := testMemory(NamespaceLearnings, "abc1234", "second lesson", ts.Add(time.Second))

	e1, err := EncodeEntry(&first)
	if err != nil {
		t.Fatalf("encode first: %v", err)
	}
	e2, err := EncodeEntry(&second)
	if err != nil {
		t.Fatalf("encode second: %v", err)
	}

	merged := AppendEntry(AppendEntry("", e1), e2)

	entries, malformed := ParseEntries(merged)
	if malformed != 0 {
		t.Fatalf("malformed = %d, want 0", malformed)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Summary != "first lesson" || entries[1].Summary != "second lesson" {
		t.Errorf("append reordered entries: %q, %q", entries[0].Summary, entries[1].Summary)
	}
}

func TestParseEntriesSkipsMalformed(t *testing.T) {
	ts := time.Now().UTC()
	good := testMemory(NamespaceProgress, "abc1234", "good entry", ts)
	e, err := EncodeEntry(&good)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	content := AppendEntry(e, "not a valid entry at all\n")

	entries, malformed := ParseEntries(content)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if malformed != 1 {
		t.Errorf("malformed = %d, want 1", malformed)
	}
	if entries[0].Summary != "good entry" {
		t.Errorf("surviving entry = %q", entries[0].Summary)
	}
}

func TestParseEntryRejectsMissingFence(t *testing.T) {
	if _, err := ParseEntry("just some markdown\n"); err == nil {
		t.Error("expected error for entry without front-matter")
	}
	if _, err := ParseEntry("---\nid: x\nno terminator"); err == nil {
		t.Error("expected error for unterminated front-matter")
	}
}

func TestEncodeEntryBodyWithScissorsLine(t *testing.T) {
	// A body containing the separator itself would split on parse; the
	// fence check makes the fragment count as malformed rather than
	// corrupting neighbours.
	ts := time.Now().UTC()
	m := testMemory(NamespaceLearnings, "abc1234", "tricky", ts)
	m.Content = "before\n" + entrySeparator + "\nafter"

	raw, err := EncodeEntry(&m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	entries, malformed := ParseEntries(raw)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if malformed != 1 {
		t.Errorf("malformed = %d, want 1 (the split-off fragment)", malformed)
	}
}
