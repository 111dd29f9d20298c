package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the retrieval core. Handlers map these to HTTP status
// codes in utils.RespondWithMappedError.
var (
	// ErrInvalidInput marks empty queries, empty documents handed to the
	// embedder, or malformed caller metadata. Not retryable.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSizeLimit marks a document exceeding the configured maximum size.
	ErrSizeLimit = errors.New("document exceeds size limit")

	// ErrDocumentParse marks a PDF extraction failure.
	ErrDocumentParse = errors.New("document parse failed")

	// ErrBackendTimeout marks a vector store call that hit its deadline.
	// Safe to retry: chunk ids are deterministic, so a replayed ingestion
	// overwrites rather than duplicates.
	ErrBackendTimeout = errors.New("vector store timeout")

	// ErrBackendUnavailable marks connectivity or auth failures against the
	// vector store, including an open circuit breaker.
	ErrBackendUnavailable = errors.New("vector store unavailable")
)

// ConfigError reports invalid startup configuration (chunk size, overlap,
// backend selection). Fatal at startup, never produced per-request.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// PartialUpsertError reports a batch upsert where the backend accepted some
// items and rejected others. Failed holds the chunk ids that must be
// re-ingested; Succeeded ids are durable.
type PartialUpsertError struct {
	Collection string
	Succeeded  []string
	Failed     []string
}

func (e *PartialUpsertError) Error() string {
	return fmt.Sprintf("partial upsert in collection %q: %d succeeded, %d failed (%s)",
		e.Collection, len(e.Succeeded), len(e.Failed), strings.Join(e.Failed, ", "))
}
