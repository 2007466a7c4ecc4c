package internal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// SyncService reconciles the index against the canonical note store. The
// note store always wins a disagreement; the index is rebuilt from it,
// never the other way around.
type SyncService struct {
	store    NoteStore
	index    Index
	embedder Embedder
	log      zerolog.Logger
	now      func() time.Time
}

func NewSyncService(store NoteStore, index Index, embedder Embedder, log zerolog.Logger) *SyncService {
	return &SyncService{
		store:    store,
		index:    index,
		embedder: embedder,
		log:      log,
		now:      time.Now,
	}
}

// Reindex rebuilds the index. Full mode drops everything and re-embeds
// the whole store; incremental mode only embeds memories the index does
// not know yet and removes ids the store no longer has.
func (s *SyncService) Reindex(ctx context.Context, full bool) (*RebuildStats, error) {
	if full {
		stats, err := s.index.RebuildFromStore(ctx, s.store, s.embedder)
		if err != nil {
			return nil, err
		}
		s.log.Info().
			Int("scanned", stats.Scanned).
			Int("indexed", stats.Indexed).
			Int("failed", stats.Failed).
			Dur("duration", stats.Duration).
			Msg("full reindex complete")
		return stats, nil
	}
	return s.reindexIncremental(ctx)
}

func (s *SyncService) reindexIncremental(ctx context.Context) (*RebuildStats, error) {
	start := s.now()

	memories, malformed, err := ScanStore(s.store)
	if err != nil {
		return nil, err
	}

	known, err := s.index.IDs(ctx)
	if err != nil {
		return nil, err
	}
	knownSet := make(map[string]bool, len(known))
	for _, id := range known {
		knownSet[id] = true
	}

	storeSet := make(map[string]bool, len(memories))
	stats := &RebuildStats{Scanned: len(memories) + malformed, Failed: malformed}
	for i := range memories {
		m := &memories[i]
		storeSet[m.ID] = true
		if knownSet[m.ID] {
			continue
		}

		vec, err := s.embedder.Embed(ctx, embeddingText(m))
		if err != nil {
			s.log.Warn().Err(err).Str("id", m.ID).Msg("embed during incremental reindex")
			stats.Failed++
			continue
		}
		if err := s.index.Upsert(ctx, *m, vec); err != nil {
			s.log.Warn().Err(err).Str("id", m.ID).Msg("upsert during incremental reindex")
			stats.Failed++
			continue
		}
		stats.Indexed++
	}

	for _, id := range known {
		if storeSet[id] {
			continue
		}
		if err := s.index.Delete(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("id", id).Msg("delete orphan during incremental reindex")
			stats.Failed++
		}
	}

	stats.Duration = s.now().Sub(start)
	s.log.Info().
		Int("scanned", stats.Scanned).
		Int("indexed", stats.Indexed).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("incremental reindex complete")
	return stats, nil
}

// Verify compares note store and index without changing either.
func (s *SyncService) Verify(ctx context.Context) (*VerificationResult, error) {
	return s.index.Verify(ctx, s.store)
}

// GC reconciles the index with the store: orphaned index entries are
// removed and memories missing from the index are embedded and added.
// The canonical log is never touched.
func (s *SyncService) GC(ctx context.Context) (*GCStats, error) {
	result, err := s.index.Verify(ctx, s.store)
	if err != nil {
		return nil, err
	}

	stats := &GCStats{}
	for _, id := range result.OrphanedInIndex {
		if err := s.index.Delete(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("id", id).Msg("remove orphaned index entry")
			stats.Failed++
			continue
		}
		stats.Removed++
	}

	if len(result.MissingInIndex) > 0 {
		memories, _, err := ScanStore(s.store)
		if err != nil {
			return nil, err
		}
		missing := make(map[string]bool, len(result.MissingInIndex))
		for _, id := range result.MissingInIndex {
			missing[id] = true
		}

		for i := range memories {
			m := &memories[i]
			if !missing[m.ID] {
				continue
			}
			vec, err := s.embedder.Embed(ctx, embeddingText(m))
			if err != nil {
				s.log.Warn().Err(err).Str("id", m.ID).Msg("embed missing memory")
				stats.Failed++
				continue
			}
			if err := s.index.Upsert(ctx, *m, vec); err != nil {
				s.log.Warn().Err(err).Str("id", m.ID).Msg("index missing memory")
				stats.Failed++
				continue
			}
			stats.Added++
		}
	}

	s.log.Info().
		Int("removed", stats.Removed).
		Int("added", stats.Added).
		Int("failed", stats.Failed).
		Msg("index reconciled")
	return stats, nil
}

// ExportFilter narrows an export to a subset of the store.
type ExportFilter struct {
	Namespaces []Namespace
	Spec       string
	Since      time.Time
	Until      time.Time
}

func (f ExportFilter) matches(m *Memory) bool {
	if len(f.Namespaces) > 0 {
		found := false
		for _, ns := range f.Namespaces {
			if m.Namespace == ns {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Spec != "" && m.Spec != f.Spec {
		return false
	}
	if !f.Since.IsZero() && m.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && m.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Export is a structured snapshot of the canonical log at a point in
// time, suitable for archival or transfer.
type Export struct {
	ExportedAt time.Time `yaml:"exported_at"`
	Count      int       `yaml:"count"`
	Malformed  int       `yaml:"malformed,omitempty"`
	Memories   []Memory  `yaml:"memories"`
}

// Export reads every memory from the note store, applies the filter, and
// returns a snapshot sorted by id for stable output.
func (s *SyncService) Export(filter ExportFilter) (*Export, error) {
	memories, malformed, err := ScanStore(s.store)
	if err != nil {
		return nil, err
	}

	var kept []Memory
	for i := range memories {
		if filter.matches(&memories[i]) {
			kept = append(kept, memories[i])
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })

	return &Export{
		ExportedAt: s.now().UTC(),
		Count:      len(kept),
		Malformed:  malformed,
		Memories:   kept,
	}, nil
}

// MarshalYAML renders the export as a YAML document.
func (e *Export) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return data, nil
}
