package internal

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func setupTestScope(t *testing.T) Scope {
	t.Helper()

	root := t.TempDir()
	engramPath := filepath.Join(root, ".engram")
	scope := Scope{
		Type:       ScopeProject,
		Path:       root,
		EngramPath: engramPath,
		GitPath:    filepath.Join(engramPath, "git"),
	}
	if err := os.MkdirAll(scope.LocksPath(), 0o755); err != nil {
		t.Fatalf("create locks dir: %v", err)
	}
	return scope
}

func setupTestRepo(t *testing.T) (*GitRepository, Scope) {
	t.Helper()

	scope := setupTestScope(t)
	if err := InitRepository(scope); err != nil {
		t.Fatalf("init repository: %v", err)
	}
	repo, err := NewGitRepository(scope)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	return repo, scope
}

func setupTestIndex(t *testing.T, dim int) *SQLiteIndex {
	t.Helper()

	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "index.db"), dim, zerolog.Nop())
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

// hashEmbedder produces deterministic pseudo-vectors so similarity tests
// can rely on exact matches ranking first.
type hashEmbedder struct {
	dim  int
	fail bool
}

func (e *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedder unavailable")
	}

	vec := make([]float32, e.dim)
	for i := range vec {
		h := fnv.New32a()
		fmt.Fprintf(h, "%s|%d", text, i)
		vec[i] = float32(h.Sum32()%1000)/1000.0 - 0.5
	}
	return vec, nil
}

func (e *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *hashEmbedder) Dimension() int                        { return e.dim }
func (e *hashEmbedder) IsLoaded() bool                        { return true }
func (e *hashEmbedder) EnsureLoaded(_ context.Context) error  { return nil }
func (e *hashEmbedder) Close() error                          { return nil }

func testMemory(ns Namespace, commit, summary string, ts time.Time) Memory {
	m := Memory{
		CommitRef: commit,
		Namespace: ns,
		Summary:   summary,
		Content:   "body of " + summary,
		Timestamp: ts,
	}
	m.ID = NewMemoryID(ns, commit, ts)
	return m
}
