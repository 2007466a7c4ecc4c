package internal

import (
	"os"
	"testing"
	"time"
)

func TestCaptureLockAcquireRelease(t *testing.T) {
	lock := NewCaptureLock(t.TempDir(), time.Second)

	h, err := lock.Acquire("abc1234def", NamespaceDecisions)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	// reacquire after release
	h2, err := lock.Acquire("abc1234def", NamespaceDecisions)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = h2.Release()
}

func TestCaptureLockContentionTimesOut(t *testing.T) {
	lock := NewCaptureLock(t.TempDir(), 150*time.Millisecond)

	h, err := lock.Acquire("abc1234", NamespaceLearnings)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Release()

	start := time.Now()
	_, err = lock.Acquire("abc1234", NamespaceLearnings)
	if err == nil {
		t.Fatal("expected timeout while lock held")
	}
	if !IsRetryable(err) {
		t.Errorf("timeout should be retryable, got %T: %v", err, err)
	}
	if waited := time.Since(start); waited < 100*time.Millisecond {
		t.Errorf("gave up after %v, expected to poll until the deadline", waited)
	}
}

func TestCaptureLockDistinctPairsAreIndependent(t *testing.T) {
	lock := NewCaptureLock(t.TempDir(), 200*time.Millisecond)

	h1, err := lock.Acquire("abc1234", NamespaceDecisions)
	if err != nil {
		t.Fatalf("acquire first: %v", err)
	}
	defer h1.Release()

	// same commit, different namespace
	h2, err := lock.Acquire("abc1234", NamespaceLearnings)
	if err != nil {
		t.Fatalf("acquire other namespace: %v", err)
	}
	_ = h2.Release()

	// same namespace, different commit
	h3, err := lock.Acquire("def5678", NamespaceDecisions)
	if err != nil {
		t.Fatalf("acquire other commit: %v", err)
	}
	_ = h3.Release()
}

func TestCaptureLockTakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()
	lock := NewCaptureLock(dir, 500*time.Millisecond)

	h, err := lock.Acquire("abc1234", NamespaceProgress)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// age the lock file past the staleness cutoff
	old := time.Now().Add(-2 * lockStaleAfter)
	if err := os.Chtimes(h.path, old, old); err != nil {
		t.Fatalf("age lock file: %v", err)
	}

	h2, err := lock.Acquire("abc1234", NamespaceProgress)
	if err != nil {
		t.Fatalf("takeover of stale lock failed: %v", err)
	}
	_ = h2.Release()
}
