package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexUpsertAndGet(t *testing.T) {
	idx := setupTestIndex(t, 4)
	ctx := context.Background()

	ts := time.Now().UTC().Truncate(time.Millisecond)
	m := testMemory(NamespaceDecisions, "abc1234", "pick sqlite for the index", ts)
	m.Tags = []string{"storage", "sqlite"}

	require.NoError(t, idx.Upsert(ctx, m, []float32{1, 0, 0, 0}))

	got, err := idx.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Summary, got.Summary)
	assert.Equal(t, []string{"sqlite", "storage"}, got.Tags)
	assert.True(t, got.Timestamp.Equal(ts))

	_, err = idx.Get(ctx, "decisions:zzzzzzz:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIndexUpsertSameIDReplaces(t *testing.T) {
	idx := setupTestIndex(t, 4)
	ctx := context.Background()

	ts := time.Now().UTC()
	m := testMemory(NamespaceLearnings, "abc1234", "first body", ts)
	require.NoError(t, idx.Upsert(ctx, m, []float32{1, 0, 0, 0}))

	m.Summary = "second body"
	require.NoError(t, idx.Upsert(ctx, m, []float32{0, 1, 0, 0}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := idx.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "second body", got.Summary)
}

func TestIndexUpsertDimensionMismatch(t *testing.T) {
	idx := setupTestIndex(t, 4)

	m := testMemory(NamespaceLearnings, "abc1234", "bad vector", time.Now())
	err := idx.Upsert(context.Background(), m, []float32{1, 0})
	require.Error(t, err)
}

func TestIndexSearchOrderingAndLimit(t *testing.T) {
	idx := setupTestIndex(t, 4)
	ctx := context.Background()
	ts := time.Now().UTC()

	near := testMemory(NamespaceDecisions, "aaaaaaa", "near match", ts)
	mid := testMemory(NamespaceDecisions, "bbbbbbb", "middling match", ts)
	far := testMemory(NamespaceDecisions, "ccccccc", "far match", ts)

	require.NoError(t, idx.Upsert(ctx, near, []float32{1, 0, 0, 0}))
	require.NoError(t, idx.Upsert(ctx, mid, []float32{0.7, 0.7, 0, 0}))
	require.NoError(t, idx.Upsert(ctx, far, []float32{0, 0, 1, 0}))

	results, err := idx.Search(ctx, []float32{1, 0.01, 0, 0}, 2, SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, near.ID, results[0].ID)
	assert.Equal(t, mid.ID, results[1].ID)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
}

func TestIndexSearchFilters(t *testing.T) {
	idx := setupTestIndex(t, 4)
	ctx := context.Background()

	old := testMemory(NamespaceDecisions, "aaaaaaa", "old decision", time.Now().Add(-48*time.Hour))
	old.Spec = "billing"
	fresh := testMemory(NamespaceLearnings, "bbbbbbb", "fresh learning", time.Now())
	fresh.Spec = "auth"
	fresh.Tags = []string{"jwt"}

	require.NoError(t, idx.Upsert(ctx, old, []float32{1, 0, 0, 0}))
	require.NoError(t, idx.Upsert(ctx, fresh, []float32{1, 0, 0, 0}))

	query := []float32{1, 0, 0, 0}

	byNS, err := idx.Search(ctx, query, 10, SearchFilters{Namespaces: []Namespace{NamespaceLearnings}})
	require.NoError(t, err)
	require.Len(t, byNS, 1)
	assert.Equal(t, fresh.ID, byNS[0].ID)

	bySpec, err := idx.Search(ctx, query, 10, SearchFilters{Spec: "billing"})
	require.NoError(t, err)
	require.Len(t, bySpec, 1)
	assert.Equal(t, old.ID, bySpec[0].ID)

	byTag, err := idx.Search(ctx, query, 10, SearchFilters{Tags: []string{"jwt"}})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, fresh.ID, byTag[0].ID)

	bySince, err := idx.Search(ctx, query, 10, SearchFilters{Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, bySince, 1)
	assert.Equal(t, fresh.ID, bySince[0].ID)
}

func TestIndexRebuildFromStoreIsIdempotent(t *testing.T) {
	repo, _ := setupTestRepo(t)
	store := NewGitNoteStore(repo)
	head, err := repo.ResolveCommit("")
	require.NoError(t, err)

	emb := &hashEmbedder{dim: 4}
	ctx := context.Background()

	for i, summary := range []string{"alpha", "beta", "gamma"} {
		m := testMemory(NamespaceLearnings, head, summary, time.Now().UTC().Add(time.Duration(i)*time.Second))
		entry, err := EncodeEntry(&m)
		require.NoError(t, err)
		require.NoError(t, store.Append(NamespaceLearnings, head, entry))
	}

	idx := setupTestIndex(t, 4)

	stats1, err := idx.RebuildFromStore(ctx, store, emb)
	require.NoError(t, err)
	assert.Equal(t, 3, stats1.Indexed)

	ids1, err := idx.IDs(ctx)
	require.NoError(t, err)

	stats2, err := idx.RebuildFromStore(ctx, store, emb)
	require.NoError(t, err)
	assert.Equal(t, stats1.Indexed, stats2.Indexed)

	ids2, err := idx.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids1, ids2)
}

func TestIndexRebuildIsInsertionOrderIndependent(t *testing.T) {
	ctx := context.Background()
	emb := &hashEmbedder{dim: 4}
	ts := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	// Two stores receive the same memories in opposite orders, across
	// namespaces and commits. Deterministic anchors keep ids identical
	// between the repositories.
	buildStore := func(reversed bool) (*GitNoteStore, []Memory) {
		repo, _ := setupTestRepo(t)
		store := NewGitNoteStore(repo)

		commits := []string{
			danglingCommit(t, repo, "first anchor"),
			danglingCommit(t, repo, "second anchor"),
		}

		memories := []Memory{
			testMemory(NamespaceDecisions, commits[0], "alpha", ts),
			testMemory(NamespaceLearnings, commits[0], "beta", ts.Add(time.Second)),
			testMemory(NamespaceDecisions, commits[1], "gamma", ts.Add(2*time.Second)),
			testMemory(NamespaceBlockers, commits[1], "delta", ts.Add(3*time.Second)),
		}
		memories[1].Tags = []string{"jwt", "auth"}
		memories[2].Spec = "billing"

		order := make([]Memory, len(memories))
		copy(order, memories)
		if reversed {
			for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
				order[i], order[j] = order[j], order[i]
			}
		}
		for i := range order {
			entry, err := EncodeEntry(&order[i])
			require.NoError(t, err)
			require.NoError(t, store.Append(order[i].Namespace, order[i].CommitRef, entry))
		}
		return store, memories
	}

	forward, memories := buildStore(false)
	backward, _ := buildStore(true)

	idxA := setupTestIndex(t, 4)
	idxB := setupTestIndex(t, 4)

	statsA, err := idxA.RebuildFromStore(ctx, forward, emb)
	require.NoError(t, err)
	statsB, err := idxB.RebuildFromStore(ctx, backward, emb)
	require.NoError(t, err)
	assert.Equal(t, statsA.Indexed, statsB.Indexed)

	idsA, err := idxA.IDs(ctx)
	require.NoError(t, err)
	idsB, err := idxB.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, idsA, idsB)

	// Metadata must survive identically regardless of insertion order.
	for _, m := range memories {
		gotA, err := idxA.Get(ctx, m.ID)
		require.NoError(t, err)
		gotB, err := idxB.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, gotA, gotB)
		assert.Equal(t, m.Summary, gotA.Summary)
	}

	// Identical stored vectors produce identical distances for the same
	// query.
	query, err := emb.Embed(ctx, "alpha")
	require.NoError(t, err)
	resA, err := idxA.Search(ctx, query, 10, SearchFilters{})
	require.NoError(t, err)
	resB, err := idxB.Search(ctx, query, 10, SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, resA, resB)
}

func TestIndexVerify(t *testing.T) {
	repo, _ := setupTestRepo(t)
	store := NewGitNoteStore(repo)
	head, err := repo.ResolveCommit("")
	require.NoError(t, err)

	ctx := context.Background()
	emb := &hashEmbedder{dim: 4}

	inStore := testMemory(NamespaceDecisions, head, "canonical only", time.Now().UTC())
	entry, err := EncodeEntry(&inStore)
	require.NoError(t, err)
	require.NoError(t, store.Append(NamespaceDecisions, head, entry))

	idx := setupTestIndex(t, 4)
	orphan := testMemory(NamespaceDecisions, head, "index only", time.Now().UTC().Add(time.Second))
	vec, err := emb.Embed(ctx, "orphan")
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, orphan, vec))

	result, err := idx.Verify(ctx, store)
	require.NoError(t, err)
	assert.False(t, result.IsConsistent())
	assert.Equal(t, []string{inStore.ID}, result.MissingInIndex)
	assert.Equal(t, []string{orphan.ID}, result.OrphanedInIndex)
	assert.Empty(t, result.ContentMismatches)
}

func TestIndexVerifyDetectsContentDrift(t *testing.T) {
	repo, _ := setupTestRepo(t)
	store := NewGitNoteStore(repo)
	head, err := repo.ResolveCommit("")
	require.NoError(t, err)

	ctx := context.Background()
	m := testMemory(NamespaceLearnings, head, "drifted", time.Now().UTC())
	entry, err := EncodeEntry(&m)
	require.NoError(t, err)
	require.NoError(t, store.Append(NamespaceLearnings, head, entry))

	idx := setupTestIndex(t, 4)
	stale := m
	stale.Content = "an older body"
	require.NoError(t, idx.Upsert(ctx, stale, []float32{1, 0, 0, 0}))

	result, err := idx.Verify(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{m.ID}, result.ContentMismatches)
}
