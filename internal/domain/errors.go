package domain

import "errors"

// Domain errors represent pipeline and store failures by kind.
// They are wrapped with %w at call sites and matched with errors.Is.
var (
	// ErrSourceNotFound indicates a local path that does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrSourceUnreachable indicates a fetch that could not complete.
	ErrSourceUnreachable = errors.New("source unreachable")

	// ErrProviderUnavailable indicates an embedding or LLM backend failure.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderTimeout indicates a provider call that exceeded its deadline.
	ErrProviderTimeout = errors.New("provider timeout")

	// ErrDimensionMismatch indicates a vector whose length does not equal
	// the collection dimension. Configuration error, never coerced.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrAlreadyExists indicates a collection name taken with a
	// different dimension or metric.
	ErrAlreadyExists = errors.New("collection already exists")

	// ErrStoreUnavailable indicates a connection or transaction failure
	// in the backing store.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrRetrievalFailed indicates the embed or search phase of a query
	// failed after retries were exhausted.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrSynthesisFailed indicates the answer synthesizer failed.
	ErrSynthesisFailed = errors.New("synthesis failed")

	// ErrIngestionFailed indicates an ingestion call aborted; no records
	// from that source were persisted.
	ErrIngestionFailed = errors.New("ingestion failed")

	// ErrMissingConfig indicates required configuration is absent.
	ErrMissingConfig = errors.New("missing configuration")
)
