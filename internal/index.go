package internal

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register the sqlite-vec extension for every connection.
	sqlite_vec.Auto()
}

// SearchFilters restrict index rows before any vector comparison happens.
// Zero values mean "no restriction".
type SearchFilters struct {
	Namespaces []Namespace
	Spec       string
	Tags       []string // every listed tag must be present
	Since      time.Time
	Until      time.Time
}

// Index is the derived vector+metadata store. It is a cache of the note
// store: rows may be deleted and recreated freely, and the whole thing is
// reconstructable with RebuildFromStore.
type Index interface {
	Upsert(ctx context.Context, mem Memory, vector []float32) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query []float32, limit int, filters SearchFilters) ([]MemoryResult, error)
	Get(ctx context.Context, id string) (*Memory, error)
	IDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	RebuildFromStore(ctx context.Context, store NoteStore, embedder Embedder) (*RebuildStats, error)
	Verify(ctx context.Context, store NoteStore) (*VerificationResult, error)
	Close() error
}

var _ Index = (*SQLiteIndex)(nil)

// SQLiteIndex stores memory rows and their embeddings in one sqlite table,
// ranking candidates with vec_distance_cosine after SQL metadata filtering.
type SQLiteIndex struct {
	mu        sync.Mutex // serializes writers; readers go straight to sqlite
	db        *sql.DB
	dimension int
	log       zerolog.Logger
}

// NewSQLiteIndex opens (or creates) the index database at path. Use
// ":memory:" for an ephemeral index.
func NewSQLiteIndex(path string, dimension int, log zerolog.Logger) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	idx := &SQLiteIndex{db: db, dimension: dimension, log: log}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize index schema: %w", err)
	}
	return idx, nil
}

func (x *SQLiteIndex) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			commit_ref TEXT NOT NULL,
			namespace TEXT NOT NULL,
			spec TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL,
			content TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT ',,',
			status TEXT NOT NULL DEFAULT '',
			timestamp_ms INTEGER NOT NULL,
			embedding BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memories_namespace ON memories(namespace);
		CREATE INDEX IF NOT EXISTS idx_memories_spec ON memories(spec);
		CREATE INDEX IF NOT EXISTS idx_memories_timestamp ON memories(timestamp_ms);
	`
	_, err := x.db.Exec(schema)
	return err
}

// joinTags stores tags as ",a,b,c," so containment checks stay a single
// LIKE per tag.
func joinTags(tags []string) string {
	return "," + strings.Join(tags, ",") + ","
}

func splitTags(s string) []string {
	trimmed := strings.Trim(s, ",")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ",")
}

// Upsert writes one row. Same id replaces the row: the accepted
// last-write-wins behavior for same-millisecond id collisions.
func (x *SQLiteIndex) Upsert(ctx context.Context, mem Memory, vector []float32) error {
	if x.dimension > 0 && len(vector) != x.dimension {
		return &IndexError{Op: "upsert", Err: fmt.Errorf("dimension mismatch: expected %d, got %d", x.dimension, len(vector))}
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return &IndexError{Op: "serialize vector", Err: err}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	_, err = x.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories
			(id, commit_ref, namespace, spec, phase, summary, content, tags, status, timestamp_ms, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.CommitRef, mem.Namespace.String(), mem.Spec, mem.Phase,
		mem.Summary, mem.Content, joinTags(mem.SortedTags()), mem.Status,
		mem.Timestamp.UnixMilli(), blob,
	)
	if err != nil {
		return &IndexError{Op: "upsert", Err: err}
	}
	return nil
}

// Delete drops one row. Deleting an absent id is a no-op.
func (x *SQLiteIndex) Delete(ctx context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, err := x.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id); err != nil {
		return &IndexError{Op: "delete", Err: err}
	}
	return nil
}

// Search ranks rows by cosine distance after applying filters in SQL.
// Results come back sorted ascending by distance, at most limit entries.
func (x *SQLiteIndex) Search(ctx context.Context, query []float32, limit int, filters SearchFilters) ([]MemoryResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, &IndexError{Op: "serialize query vector", Err: err}
	}

	where, args := buildFilterClauses(filters)
	args = append([]any{blob}, args...)
	args = append(args, limit)

	q := `
		SELECT id, commit_ref, namespace, spec, phase, summary, content, tags, status, timestamp_ms,
		       vec_distance_cosine(embedding, ?) AS distance
		FROM memories` + where + `
		ORDER BY distance ASC
		LIMIT ?`

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &IndexError{Op: "search", Err: err}
	}
	defer rows.Close()

	var results []MemoryResult
	for rows.Next() {
		var r MemoryResult
		var ns, tags string
		var millis int64
		if err := rows.Scan(&r.ID, &r.CommitRef, &ns, &r.Spec, &r.Phase,
			&r.Summary, &r.Content, &tags, &r.Status, &millis, &r.Distance); err != nil {
			return nil, &IndexError{Op: "scan search row", Err: err}
		}
		r.Namespace = Namespace(ns)
		r.Tags = splitTags(tags)
		r.Timestamp = time.UnixMilli(millis).UTC()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &IndexError{Op: "search rows", Err: err}
	}
	return results, nil
}

func buildFilterClauses(filters SearchFilters) (string, []any) {
	var clauses []string
	var args []any

	if len(filters.Namespaces) > 0 {
		placeholders := make([]string, len(filters.Namespaces))
		for i, ns := range filters.Namespaces {
			placeholders[i] = "?"
			args = append(args, ns.String())
		}
		clauses = append(clauses, "namespace IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filters.Spec != "" {
		clauses = append(clauses, "spec = ?")
		args = append(args, filters.Spec)
	}
	for _, tag := range filters.Tags {
		clauses = append(clauses, "tags LIKE ?")
		args = append(args, "%,"+tag+",%")
	}
	if !filters.Since.IsZero() {
		clauses = append(clauses, "timestamp_ms >= ?")
		args = append(args, filters.Since.UnixMilli())
	}
	if !filters.Until.IsZero() {
		clauses = append(clauses, "timestamp_ms <= ?")
		args = append(args, filters.Until.UnixMilli())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Get loads one row by id.
func (x *SQLiteIndex) Get(ctx context.Context, id string) (*Memory, error) {
	row := x.db.QueryRowContext(ctx, `
		SELECT id, commit_ref, namespace, spec, phase, summary, content, tags, status, timestamp_ms
		FROM memories WHERE id = ?`, id)

	var m Memory
	var ns, tags string
	var millis int64
	err := row.Scan(&m.ID, &m.CommitRef, &ns, &m.Spec, &m.Phase,
		&m.Summary, &m.Content, &tags, &m.Status, &millis)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &IndexError{Op: "get", Err: err}
	}
	m.Namespace = Namespace(ns)
	m.Tags = splitTags(tags)
	m.Timestamp = time.UnixMilli(millis).UTC()
	return &m, nil
}

// IDs lists every indexed id, sorted.
func (x *SQLiteIndex) IDs(ctx context.Context) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, "SELECT id FROM memories ORDER BY id")
	if err != nil {
		return nil, &IndexError{Op: "list ids", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &IndexError{Op: "scan id", Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count reports the number of indexed rows.
func (x *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&n); err != nil {
		return 0, &IndexError{Op: "count", Err: err}
	}
	return n, nil
}

// RebuildFromStore clears the index and repopulates it by scanning every
// namespace of the note store. Rebuilding twice, or from any insertion-order
// permutation of the same notes, converges to the same rows because entries
// are sorted by id and keyed by id.
func (x *SQLiteIndex) RebuildFromStore(ctx context.Context, store NoteStore, embedder Embedder) (*RebuildStats, error) {
	start := time.Now()

	memories, malformed, err := ScanStore(store)
	if err != nil {
		return nil, err
	}
	sort.Slice(memories, func(i, j int) bool { return memories[i].ID < memories[j].ID })

	x.mu.Lock()
	defer x.mu.Unlock()

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &IndexError{Op: "begin rebuild", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM memories"); err != nil {
		return nil, &IndexError{Op: "clear index", Err: err}
	}

	stats := &RebuildStats{Scanned: len(memories) + malformed, Failed: malformed}
	for start := 0; start < len(memories); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(memories) {
			end = len(memories)
		}
		batch := memories[start:end]

		texts := make([]string, len(batch))
		for i, m := range batch {
			texts[i] = embeddingText(&m)
		}

		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, &EmbeddingError{Err: err}
		}

		for i, m := range batch {
			blob, err := sqlite_vec.SerializeFloat32(vectors[i])
			if err != nil {
				return nil, &IndexError{Op: "serialize vector", Err: err}
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO memories
					(id, commit_ref, namespace, spec, phase, summary, content, tags, status, timestamp_ms, embedding)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, m.CommitRef, m.Namespace.String(), m.Spec, m.Phase,
				m.Summary, m.Content, joinTags(m.SortedTags()), m.Status,
				m.Timestamp.UnixMilli(), blob,
			)
			if err != nil {
				return nil, &IndexError{Op: "insert during rebuild", Err: err}
			}
			stats.Indexed++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &IndexError{Op: "commit rebuild", Err: err}
	}

	stats.Duration = time.Since(start)
	x.log.Info().
		Int("scanned", stats.Scanned).
		Int("indexed", stats.Indexed).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("index rebuilt")
	return stats, nil
}

// Verify computes the three discrepancy sets against the note store without
// mutating anything.
func (x *SQLiteIndex) Verify(ctx context.Context, store NoteStore) (*VerificationResult, error) {
	memories, _, err := ScanStore(store)
	if err != nil {
		return nil, err
	}

	canonical := make(map[string]string, len(memories))
	for _, m := range memories {
		canonical[m.ID] = m.Content
	}

	rows, err := x.db.QueryContext(ctx, "SELECT id, content FROM memories")
	if err != nil {
		return nil, &IndexError{Op: "verify scan", Err: err}
	}
	defer rows.Close()

	indexed := make(map[string]string)
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, &IndexError{Op: "verify scan row", Err: err}
		}
		indexed[id] = content
	}
	if err := rows.Err(); err != nil {
		return nil, &IndexError{Op: "verify rows", Err: err}
	}

	result := &VerificationResult{}
	for id := range canonical {
		if _, ok := indexed[id]; !ok {
			result.MissingInIndex = append(result.MissingInIndex, id)
		}
	}
	for id, content := range indexed {
		want, ok := canonical[id]
		switch {
		case !ok:
			result.OrphanedInIndex = append(result.OrphanedInIndex, id)
		case want != content:
			result.ContentMismatches = append(result.ContentMismatches, id)
		}
	}

	sort.Strings(result.MissingInIndex)
	sort.Strings(result.OrphanedInIndex)
	sort.Strings(result.ContentMismatches)
	return result, nil
}

// Close releases the database handle.
func (x *SQLiteIndex) Close() error {
	return x.db.Close()
}

const embedBatchSize = 32

// ScanStore parses every memory of every namespace out of the note store.
func ScanStore(store NoteStore) ([]Memory, int, error) {
	var memories []Memory
	malformed := 0

	for _, ns := range AllNamespaces() {
		records, err := store.List(ns)
		if err != nil {
			return nil, 0, err
		}
		for _, rec := range records {
			mems, bad := ParseEntries(rec.Content)
			malformed += bad
			for _, m := range mems {
				if m.CommitRef == "" {
					m.CommitRef = rec.CommitRef
				}
				memories = append(memories, m)
			}
		}
	}
	return memories, malformed, nil
}

// embeddingText is the canonical text embedded for a memory: the summary
// carries the signal, the body refines it.
func embeddingText(m *Memory) string {
	if m.Content == "" {
		return m.Summary
	}
	return m.Summary + "\n\n" + m.Content
}
