package v1

import (
	"context"
	"fmt"
	"os"

	"github.com/4thel00z/engram/internal"
	"github.com/rs/zerolog"
)

// Client provides programmatic access to the memory engine.
type Client struct {
	scope    internal.Scope
	cfg      *internal.Config
	repo     *internal.GitRepository
	store    internal.NoteStore
	index    internal.Index
	embedder internal.Embedder
	capture  *internal.CaptureService
	recall   *internal.RecallService
	sync     *internal.SyncService
}

// New opens a client against an initialized memory store.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	resolver := internal.NewScopeResolver()
	scope := resolver.Resolve(cfg.scope)

	if _, err := os.Stat(scope.EngramPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("not initialized: %s", scope.EngramPath)
	}

	conf, err := internal.LoadConfig(scope)
	if err != nil {
		return nil, err
	}

	log := zerolog.Nop()

	repo, err := internal.NewGitRepository(scope)
	if err != nil {
		return nil, err
	}

	index, err := internal.NewSQLiteIndex(scope.IndexPath(), conf.Embeddings.Dimension, log)
	if err != nil {
		return nil, err
	}

	embedder := cfg.embedder
	if embedder == nil {
		embedder = internal.NewLazyEmbedder(conf.Embeddings.Dimension, func(_ context.Context) (internal.Embedder, error) {
			apiKey := os.Getenv(conf.Embeddings.APIKeyEnv)
			if apiKey == "" {
				return nil, fmt.Errorf("embedding backend %q needs %s set", conf.Embeddings.Backend, conf.Embeddings.APIKeyEnv)
			}
			return internal.NewOpenAIEmbedder(apiKey, conf.Embeddings.Model, conf.Embeddings.Dimension), nil
		})
	}

	store := internal.NewGitNoteStore(repo)
	lock := internal.NewCaptureLock(scope.LocksPath(), conf.Capture.LockTimeout)

	return &Client{
		scope:    scope,
		cfg:      conf,
		repo:     repo,
		store:    store,
		index:    index,
		embedder: embedder,
		capture:  internal.NewCaptureService(repo, store, index, embedder, lock, conf.Capture, log),
		recall:   internal.NewRecallService(repo, store, index, embedder, conf, log),
		sync:     internal.NewSyncService(store, index, embedder, log),
	}, nil
}

// Capture records a memory anchored to the current HEAD.
func (c *Client) Capture(ctx context.Context, namespace, summary, content string, tags ...string) (string, error) {
	result, err := c.capture.Capture(ctx, internal.CaptureRequest{
		Namespace: internal.Namespace(namespace),
		Summary:   summary,
		Content:   content,
		Tags:      tags,
	})
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	return result.Memory.ID, nil
}

// Search finds memories semantically similar to the query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	results, err := c.recall.Recall(ctx, query, internal.SearchFilters{}, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			Memory:   toMemory(&r.Memory),
			Distance: r.Distance,
		})
	}
	return out, nil
}

// Get loads one memory by id with its full content.
func (c *Client) Get(ctx context.Context, id string) (*Memory, error) {
	h, err := c.recall.Hydrate(ctx, id, internal.HydrationFull)
	if err != nil {
		return nil, err
	}
	m := toMemory(&h.Memory)
	return &m, nil
}

// Reindex rebuilds the search index from the canonical log.
func (c *Client) Reindex(ctx context.Context, full bool) error {
	if _, err := c.sync.Reindex(ctx, full); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	return nil
}

// Close releases the index and the embedding backend.
func (c *Client) Close() error {
	err := c.index.Close()
	if cerr := c.embedder.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func toMemory(m *internal.Memory) Memory {
	return Memory{
		ID:        m.ID,
		Commit:    m.CommitRef,
		Namespace: m.Namespace.String(),
		Spec:      m.Spec,
		Summary:   m.Summary,
		Content:   m.Content,
		Tags:      m.Tags,
		Timestamp: m.Timestamp,
	}
}
