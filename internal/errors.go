package internal

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("memory not found")
	ErrInvalidNamespace = errors.New("invalid namespace")
	ErrNoIndex          = errors.New("no vector index available")
	ErrNoEmbedder       = errors.New("embedder not available")
)

// ValidationError means the input was rejected before any write happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// LockTimeoutError means the capture lock could not be acquired within its
// bound. No write happened; the operation is safe to retry.
type LockTimeoutError struct {
	CommitRef string
	Namespace Namespace
	Waited    time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock timeout after %s for %s@%s", e.Waited, e.Namespace, ShortRef(e.CommitRef))
}

// Retryable marks the error as transient.
func (e *LockTimeoutError) Retryable() bool {
	return true
}

// StorageError is a canonical-log read or write failure. Fatal for the
// operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// EmbeddingError means the index write was skipped; the canonical write is
// unaffected and the memory remains recoverable via reindex.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %v (memory is recorded; run reindex to make it searchable)", e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// IndexError is a search or verify level failure in the derived index,
// recoverable by rebuild.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index: %s: %v (run verify/reindex to recover)", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// ParseError flags malformed stored content encountered during a read.
type ParseError struct {
	What   string
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.What, e.Detail)
}

// IsRetryable reports whether err is transient and worth retrying.
func IsRetryable(err error) bool {
	var lt *LockTimeoutError
	return errors.As(err, &lt)
}

// IsNotFound reports whether err means the requested memory does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
