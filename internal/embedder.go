package internal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Embedder turns text into fixed-dimension vectors. Implementations are
// expensive to initialize, so callers may pre-warm with EnsureLoaded outside
// any latency-sensitive path.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	IsLoaded() bool
	EnsureLoaded(ctx context.Context) error
	Close() error
}

const DefaultEmbeddingDimension = 384

var _ Embedder = (*OpenAIEmbedder)(nil)

// OpenAIEmbedder calls the OpenAI embeddings endpoint, requesting vectors
// shortened to the configured dimension.
type OpenAIEmbedder struct {
	api       openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(apiKey, model string, dimension int) *OpenAIEmbedder {
	if dimension <= 0 {
		dimension = DefaultEmbeddingDimension
	}
	return &OpenAIEmbedder{
		api:       openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		dimension: dimension,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(e.model),
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions: openai.Int(int64(e.dimension)),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings response: expected %d vectors, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) IsLoaded() bool {
	return true
}

func (e *OpenAIEmbedder) EnsureLoaded(ctx context.Context) error {
	return nil
}

func (e *OpenAIEmbedder) Close() error {
	return nil
}

// LazyEmbedder defers constructing the real embedder until first use. First
// use may race across goroutines, so the load is double-checked: a lock-free
// read first, then a re-check under the mutex before the factory runs. A
// failed load is retried on the next call instead of being latched.
type LazyEmbedder struct {
	mu        sync.Mutex
	factory   func(ctx context.Context) (Embedder, error)
	dimension int
	inner     atomic.Pointer[embedderBox]
}

type embedderBox struct {
	embedder Embedder
}

// NewLazyEmbedder wraps a factory. dimension must match what the factory
// will produce, so Dimension answers before the embedder is loaded.
func NewLazyEmbedder(dimension int, factory func(ctx context.Context) (Embedder, error)) *LazyEmbedder {
	return &LazyEmbedder{factory: factory, dimension: dimension}
}

func (l *LazyEmbedder) load(ctx context.Context) (Embedder, error) {
	if box := l.inner.Load(); box != nil {
		return box.embedder, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if box := l.inner.Load(); box != nil {
		return box.embedder, nil
	}

	inner, err := l.factory(ctx)
	if err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("load embedder: %w", err)}
	}
	l.inner.Store(&embedderBox{embedder: inner})
	return inner, nil
}

func (l *LazyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	inner, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	return inner.Embed(ctx, text)
}

func (l *LazyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inner, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	return inner.EmbedBatch(ctx, texts)
}

func (l *LazyEmbedder) Dimension() int {
	return l.dimension
}

func (l *LazyEmbedder) IsLoaded() bool {
	box := l.inner.Load()
	return box != nil && box.embedder.IsLoaded()
}

// EnsureLoaded warms the embedder eagerly, outside latency-sensitive paths.
func (l *LazyEmbedder) EnsureLoaded(ctx context.Context) error {
	inner, err := l.load(ctx)
	if err != nil {
		return err
	}
	return inner.EnsureLoaded(ctx)
}

func (l *LazyEmbedder) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	box := l.inner.Load()
	if box == nil {
		return nil
	}
	l.inner.Store(nil)
	return box.embedder.Close()
}
