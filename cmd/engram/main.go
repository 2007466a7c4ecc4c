package main

import (
	"context"
	"fmt"
	"os"

	"github.com/4thel00z/engram/internal"
	"github.com/charmbracelet/fang"
	"github.com/rs/zerolog"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	ctx := context.Background()

	rootCmd := NewRootCmd(version)
	if err := fang.Execute(ctx, rootCmd); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if os.Getenv("ENGRAM_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// engine bundles everything a command needs against one resolved scope.
// The embedder is lazy, so commands that never touch vectors pay nothing
// for it.
type engine struct {
	scope    internal.Scope
	cfg      *internal.Config
	repo     *internal.GitRepository
	store    internal.NoteStore
	index    internal.Index
	embedder internal.Embedder
	log      zerolog.Logger
}

func openEngine(scopeHint string) (*engine, error) {
	resolver := internal.NewScopeResolver()
	scope := resolver.Resolve(scopeHint)

	if _, err := os.Stat(scope.EngramPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("not initialized: %s (run `engram init`)", scope.EngramPath)
	}

	cfg, err := internal.LoadConfig(scope)
	if err != nil {
		return nil, err
	}

	log := newLogger()

	repo, err := internal.NewGitRepository(scope)
	if err != nil {
		return nil, err
	}

	index, err := internal.NewSQLiteIndex(scope.IndexPath(), cfg.Embeddings.Dimension, log)
	if err != nil {
		return nil, err
	}

	embedder := internal.NewLazyEmbedder(cfg.Embeddings.Dimension, func(_ context.Context) (internal.Embedder, error) {
		apiKey := os.Getenv(cfg.Embeddings.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("embedding backend %q needs %s set", cfg.Embeddings.Backend, cfg.Embeddings.APIKeyEnv)
		}
		return internal.NewOpenAIEmbedder(apiKey, cfg.Embeddings.Model, cfg.Embeddings.Dimension), nil
	})

	return &engine{
		scope:    scope,
		cfg:      cfg,
		repo:     repo,
		store:    internal.NewGitNoteStore(repo),
		index:    index,
		embedder: embedder,
		log:      log,
	}, nil
}

func (e *engine) Close() error {
	var first error
	if err := e.index.Close(); err != nil {
		first = err
	}
	if err := e.embedder.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// provider builds the configured generation provider, or nil when none is
// configured or it cannot be reached. Callers degrade to deterministic
// output on nil.
func (e *engine) provider(ctx context.Context) internal.Provider {
	if e.cfg.Provider.Provider == "" {
		return nil
	}
	p, err := internal.NewFantasyProvider(ctx, e.cfg.Provider)
	if err != nil {
		e.log.Warn().Err(err).Msg("provider unavailable")
		return nil
	}
	return p
}

func (e *engine) captureService() *internal.CaptureService {
	lock := internal.NewCaptureLock(e.scope.LocksPath(), e.cfg.Capture.LockTimeout)
	return internal.NewCaptureService(e.repo, e.store, e.index, e.embedder, lock, e.cfg.Capture, e.log)
}

func (e *engine) recallService() *internal.RecallService {
	return internal.NewRecallService(e.repo, e.store, e.index, e.embedder, e.cfg, e.log)
}

func (e *engine) syncService() *internal.SyncService {
	return internal.NewSyncService(e.store, e.index, e.embedder, e.log)
}
