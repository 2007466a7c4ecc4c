package internal

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

func setupSyncTest(t *testing.T) (*SyncService, *CaptureService, NoteStore, *SQLiteIndex) {
	t.Helper()

	repo, scope := setupTestRepo(t)
	store := NewGitNoteStore(repo)
	idx := setupTestIndex(t, 4)
	emb := &hashEmbedder{dim: 4}
	lock := NewCaptureLock(scope.LocksPath(), time.Second)

	capture := NewCaptureService(repo, store, idx, emb, lock, CaptureConfig{
		LockTimeout:   time.Second,
		DedupCapacity: DefaultDedupCapacity,
	}, zerolog.Nop())
	base := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	capture.now = func() time.Time {
		base = base.Add(time.Minute)
		return base
	}

	sync := NewSyncService(store, idx, emb, zerolog.Nop())
	return sync, capture, store, idx
}

func captureN(t *testing.T, capture *CaptureService, ns Namespace, summaries ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		res, err := capture.Capture(context.Background(), CaptureRequest{
			Namespace: ns,
			Summary:   s,
			Content:   "body of " + s,
		})
		if err != nil {
			t.Fatalf("capture %q: %v", s, err)
		}
		ids = append(ids, res.Memory.ID)
	}
	return ids
}

func TestReindexFullRebuildsEverything(t *testing.T) {
	sync, capture, _, idx := setupSyncTest(t)
	ctx := context.Background()

	ids := captureN(t, capture, NamespaceLearnings, "one", "two", "three")

	// poison the index with a row the store does not have
	orphan := testMemory(NamespaceLearnings, strings.Repeat("d", 40), "orphan", time.Now().UTC())
	vec, _ := (&hashEmbedder{dim: 4}).Embed(ctx, "orphan")
	if err := idx.Upsert(ctx, orphan, vec); err != nil {
		t.Fatalf("plant orphan: %v", err)
	}

	stats, err := sync.Reindex(ctx, true)
	if err != nil {
		t.Fatalf("full reindex: %v", err)
	}
	if stats.Indexed != len(ids) {
		t.Errorf("indexed %d, want %d", stats.Indexed, len(ids))
	}

	got, err := idx.IDs(ctx)
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	sort.Strings(ids)
	if len(got) != len(ids) {
		t.Fatalf("index has %d ids, want %d", len(got), len(ids))
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Errorf("id[%d] = %s, want %s", i, got[i], ids[i])
		}
	}
}

func TestReindexIncrementalOnlyTouchesDrift(t *testing.T) {
	sync, capture, _, idx := setupSyncTest(t)
	ctx := context.Background()

	captureN(t, capture, NamespaceDecisions, "already indexed")

	// captures index synchronously, so the only new work is what we break
	ids := captureN(t, capture, NamespaceDecisions, "will be deindexed")
	if err := idx.Delete(ctx, ids[0]); err != nil {
		t.Fatalf("delete: %v", err)
	}

	orphan := testMemory(NamespaceDecisions, strings.Repeat("e", 40), "orphan", time.Now().UTC())
	vec, _ := (&hashEmbedder{dim: 4}).Embed(ctx, "orphan")
	if err := idx.Upsert(ctx, orphan, vec); err != nil {
		t.Fatalf("plant orphan: %v", err)
	}

	stats, err := sync.Reindex(ctx, false)
	if err != nil {
		t.Fatalf("incremental reindex: %v", err)
	}
	if stats.Indexed != 1 {
		t.Errorf("indexed %d, want 1", stats.Indexed)
	}

	if _, err := idx.Get(ctx, ids[0]); err != nil {
		t.Errorf("deindexed memory not restored: %v", err)
	}
	if _, err := idx.Get(ctx, orphan.ID); !IsNotFound(err) {
		t.Errorf("orphan survived incremental reindex: %v", err)
	}
}

func TestGCReconcilesBothDirections(t *testing.T) {
	sync, capture, _, idx := setupSyncTest(t)
	ctx := context.Background()

	ids := captureN(t, capture, NamespaceLearnings, "kept", "dropped from index")
	if err := idx.Delete(ctx, ids[1]); err != nil {
		t.Fatalf("delete: %v", err)
	}

	orphan := testMemory(NamespaceLearnings, strings.Repeat("a", 40), "orphan", time.Now().UTC())
	vec, _ := (&hashEmbedder{dim: 4}).Embed(ctx, "orphan")
	if err := idx.Upsert(ctx, orphan, vec); err != nil {
		t.Fatalf("plant orphan: %v", err)
	}

	stats, err := sync.GC(ctx)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if stats.Removed != 1 || stats.Added != 1 || stats.Failed != 0 {
		t.Errorf("gc stats = %+v, want removed=1 added=1 failed=0", *stats)
	}

	result, err := sync.Verify(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.IsConsistent() {
		t.Errorf("still inconsistent after gc: %+v", *result)
	}
}

func TestExportFiltersAndSorts(t *testing.T) {
	sync, capture, _, _ := setupSyncTest(t)
	ctx := context.Background()

	if _, err := capture.Capture(ctx, CaptureRequest{
		Namespace: NamespaceDecisions,
		Summary:   "billing decision",
		Content:   "body",
		Spec:      "billing",
	}); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if _, err := capture.Capture(ctx, CaptureRequest{
		Namespace: NamespaceLearnings,
		Summary:   "search learning",
		Content:   "body",
		Spec:      "search",
	}); err != nil {
		t.Fatalf("capture: %v", err)
	}

	all, err := sync.Export(ExportFilter{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if all.Count != 2 || len(all.Memories) != 2 {
		t.Fatalf("export count = %d, want 2", all.Count)
	}
	if all.Memories[0].ID > all.Memories[1].ID {
		t.Error("export not sorted by id")
	}

	bySpec, err := sync.Export(ExportFilter{Spec: "billing"})
	if err != nil {
		t.Fatalf("export by spec: %v", err)
	}
	if bySpec.Count != 1 || bySpec.Memories[0].Spec != "billing" {
		t.Errorf("spec filter kept %d memories", bySpec.Count)
	}

	byNS, err := sync.Export(ExportFilter{Namespaces: []Namespace{NamespaceLearnings}})
	if err != nil {
		t.Fatalf("export by namespace: %v", err)
	}
	if byNS.Count != 1 || byNS.Memories[0].Namespace != NamespaceLearnings {
		t.Errorf("namespace filter kept %d memories", byNS.Count)
	}

	cutoff := all.Memories[0].Timestamp
	if all.Memories[1].Timestamp.Before(cutoff) {
		cutoff = all.Memories[1].Timestamp
	}
	since, err := sync.Export(ExportFilter{Since: cutoff.Add(time.Second)})
	if err != nil {
		t.Fatalf("export since: %v", err)
	}
	if since.Count != 1 {
		t.Errorf("since filter kept %d memories, want 1", since.Count)
	}
}

func TestExportMarshalRoundTrips(t *testing.T) {
	sync, capture, _, _ := setupSyncTest(t)

	captureN(t, capture, NamespaceProgress, "milestone reached")

	export, err := sync.Export(ExportFilter{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := export.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Export
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Count != 1 || len(decoded.Memories) != 1 {
		t.Fatalf("decoded count = %d", decoded.Count)
	}
	if decoded.Memories[0].Summary != "milestone reached" {
		t.Errorf("summary = %q", decoded.Memories[0].Summary)
	}
	if decoded.Memories[0].ID != export.Memories[0].ID {
		t.Error("id did not survive the round trip")
	}
}
