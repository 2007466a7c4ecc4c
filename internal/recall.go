package internal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultCacheTTL bounds how long a recall result may be served
	// without re-searching the index.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultHydrationMaxFiles caps how many changed files level-3
	// hydration attaches to a memory.
	DefaultHydrationMaxFiles = 20

	// DefaultHydrationMaxFileBytes caps each attached file snapshot.
	DefaultHydrationMaxFileBytes = 16 * 1024

	// overfetchFactor widens the index query so re-ranking has
	// candidates to promote beyond the requested limit.
	overfetchFactor = 3
)

// querySynonyms expands common shorthand so a search for "db" also
// surfaces memories that said "database". Expansion appends terms, it
// never rewrites the original query.
var querySynonyms = map[string][]string{
	"db":       {"database"},
	"auth":     {"authentication", "authorization"},
	"config":   {"configuration"},
	"perf":     {"performance"},
	"deps":     {"dependencies"},
	"repo":     {"repository"},
	"ci":       {"continuous integration"},
	"k8s":      {"kubernetes"},
	"env":      {"environment"},
	"api":      {"endpoint"},
	"bug":      {"defect", "error"},
	"refactor": {"restructure"},
}

type cachedRecall struct {
	results []MemoryResult
	expires time.Time
}

// RecallService answers semantic queries over the index and hydrates
// results from the canonical note store.
type RecallService struct {
	repo     *GitRepository
	store    NoteStore
	index    Index
	embedder Embedder
	cfg      *Config
	log      zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedRecall
}

func NewRecallService(
	repo *GitRepository,
	store NoteStore,
	index Index,
	embedder Embedder,
	cfg *Config,
	log zerolog.Logger,
) *RecallService {
	return &RecallService{
		repo:     repo,
		store:    store,
		index:    index,
		embedder: embedder,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		cache:    make(map[string]cachedRecall),
	}
}

// ExpandQuery appends synonym terms for any whole word of the query that
// has a known expansion. The result is deterministic for a given query.
func ExpandQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[strings.Trim(w, ".,;:!?")] = true
	}

	var extra []string
	for _, w := range words {
		for _, syn := range querySynonyms[strings.Trim(w, ".,;:!?")] {
			if !seen[syn] {
				seen[syn] = true
				extra = append(extra, syn)
			}
		}
	}
	if len(extra) == 0 {
		return query
	}
	return query + " " + strings.Join(extra, " ")
}

// Recall embeds the expanded query, searches the index with overfetch,
// re-ranks by recency and context affinity, and returns the top results
// ordered by ascending effective distance.
func (s *RecallService) Recall(ctx context.Context, query string, filters SearchFilters, limit int) ([]MemoryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Field: "query", Reason: "query must not be empty"}
	}
	if limit <= 0 {
		limit = s.cfg.Recall.DefaultLimit
	}

	expanded := ExpandQuery(query)
	key := cacheKey(expanded, filters, limit)
	if results, ok := s.cachedResults(key); ok {
		return results, nil
	}

	if s.embedder == nil {
		return nil, &EmbeddingError{Err: ErrNoEmbedder}
	}
	vec, err := s.embedder.Embed(ctx, expanded)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}

	candidates, err := s.index.Search(ctx, vec, limit*overfetchFactor, filters)
	if err != nil {
		return nil, err
	}

	results := s.rerank(candidates, filters)
	if len(results) > limit {
		results = results[:limit]
	}

	s.storeResults(key, results)
	return results, nil
}

// rerank applies recency and affinity boosts. Boosts only ever reduce the
// effective distance, never increase it, and the result is clamped at
// zero so ordering stays meaningful.
func (s *RecallService) rerank(candidates []MemoryResult, filters SearchFilters) []MemoryResult {
	now := s.now().UTC()
	halfLife := s.cfg.Lifecycle.HalfLifeDays
	if halfLife <= 0 {
		halfLife = DefaultHalfLifeDays
	}

	results := make([]MemoryResult, len(candidates))
	for i, c := range candidates {
		ageDays := now.Sub(c.Memory.Timestamp).Hours() / 24
		boost := 0.1 * Decay(ageDays, halfLife)
		if filters.Spec != "" && c.Memory.Spec == filters.Spec {
			boost += 0.05
		}
		boost += 0.02 * float64(tagOverlap(c.Memory.Tags, filters.Tags))

		c.Distance -= boost
		if c.Distance < 0 {
			c.Distance = 0
		}
		results[i] = c
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results
}

func tagOverlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[strings.ToLower(t)] = true
	}
	n := 0
	for _, t := range b {
		if set[strings.ToLower(t)] {
			n++
		}
	}
	return n
}

func cacheKey(expandedQuery string, filters SearchFilters, limit int) string {
	var sb strings.Builder
	sb.WriteString(expandedQuery)
	sb.WriteByte('\x00')
	for _, ns := range filters.Namespaces {
		sb.WriteString(string(ns))
		sb.WriteByte(',')
	}
	sb.WriteByte('\x00')
	sb.WriteString(filters.Spec)
	sb.WriteByte('\x00')
	sb.WriteString(strings.Join(filters.Tags, ","))
	sb.WriteByte('\x00')
	if !filters.Since.IsZero() {
		sb.WriteString(filters.Since.UTC().Format(time.RFC3339))
	}
	sb.WriteByte('\x00')
	if !filters.Until.IsZero() {
		sb.WriteString(filters.Until.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "\x00%d", limit)
	return sb.String()
}

func (s *RecallService) cachedResults(key string) ([]MemoryResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expires) {
		delete(s.cache, key)
		return nil, false
	}
	// Hand out a copy so a caller mutating its results cannot corrupt
	// later hits within the TTL.
	out := make([]MemoryResult, len(entry.results))
	copy(out, entry.results)
	return out, true
}

func (s *RecallService) storeResults(key string, results []MemoryResult) {
	ttl := s.cfg.Recall.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	cached := make([]MemoryResult, len(results))
	copy(cached, results)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cachedRecall{results: cached, expires: s.now().Add(ttl)}
}

// InvalidateCache drops all cached recall results. Called after writes so
// stale result sets do not outlive the data that produced them.
func (s *RecallService) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cachedRecall)
}

// Hydrate loads a memory at the requested detail level. Level 1 carries
// identity and summary only, level 2 adds the full content (served from the
// index, or from the canonical note store when the index misses), and
// level 3 also attaches the files changed by the anchor commit, capped and
// truncated per the hydration config.
func (s *RecallService) Hydrate(ctx context.Context, id string, level HydrationLevel) (*HydratedMemory, error) {
	ns, shortRef, _, err := ParseMemoryID(id)
	if err != nil {
		return nil, err
	}

	mem, err := s.lookup(ctx, id, ns, shortRef)
	if err != nil {
		return nil, err
	}

	h := &HydratedMemory{Memory: *mem, Level: level}
	switch level {
	case HydrationSummary:
		h.Memory.Content = ""
		return h, nil
	case HydrationFull:
		return h, nil
	case HydrationFiles:
	default:
		return nil, &ValidationError{Field: "level", Reason: fmt.Sprintf("unknown hydration level %d", level)}
	}

	maxFiles := s.cfg.Hydration.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultHydrationMaxFiles
	}
	maxBytes := s.cfg.Hydration.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultHydrationMaxFileBytes
	}

	files, omitted, err := s.repo.ChangedFiles(mem.CommitRef, maxFiles, maxBytes)
	if err != nil {
		return nil, err
	}
	h.Files = files
	h.FilesOmitted = omitted
	return h, nil
}

// lookup finds a memory by id. The index is tried first; on a miss or an
// index error the note store is scanned, so lookups survive a stale or
// missing index.
func (s *RecallService) lookup(ctx context.Context, id string, ns Namespace, shortRef string) (*Memory, error) {
	if s.index != nil {
		mem, err := s.index.Get(ctx, id)
		if err == nil {
			return mem, nil
		}
		if !IsNotFound(err) {
			s.log.Debug().Err(err).Str("id", id).Msg("index lookup failed, falling back to note store")
		}
	}
	return FindInStore(s.store, id, ns, shortRef)
}

// FindInStore locates a memory by id in the canonical log by matching the
// note commits whose hash starts with the id's short ref.
func FindInStore(store NoteStore, id string, ns Namespace, shortRef string) (*Memory, error) {
	records, err := store.List(ns)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		if !strings.HasPrefix(rec.CommitRef, shortRef) {
			continue
		}
		entries, _ := ParseEntries(rec.Content)
		for i := range entries {
			if entries[i].ID == id {
				return &entries[i], nil
			}
		}
	}
	return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
}
