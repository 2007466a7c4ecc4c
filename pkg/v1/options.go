package v1

import "github.com/4thel00z/engram/internal"

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	scope    string
	embedder internal.Embedder
}

// WithScope forces a specific scope (global or project).
func WithScope(scope string) Option {
	return func(c *clientConfig) {
		c.scope = scope
	}
}

// WithEmbedder replaces the configured embedding backend, for example
// with a local or test implementation.
func WithEmbedder(e internal.Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}
