package models

import (
	"fmt"
	"time"
)

// Metadata keys attached to every chunk during ingestion.
const (
	MetaSourceFile = "source_file"
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
	MetaChunkTotal = "chunk_total"
	MetaStartIndex = "start_index"
	MetaEndIndex   = "end_index"
)

// Document is the unit of ingestion: one extracted text with caller metadata.
// Immutable once its chunks are created; re-ingesting the same file produces a
// new document id.
type Document struct {
	ID        string         `json:"id"`
	Filename  string         `json:"filename"`
	TextSize  int            `json:"text_size"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ChunkSpan is one window produced by the chunker: a contiguous substring of
// the document text with its character offsets.
type ChunkSpan struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// ChunkID derives the stable chunk identifier for a document and chunk index.
// Determinism here is what makes ingestion retries idempotent.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// IngestResult is returned for every successful ingestion, including the
// zero-chunk case (empty document).
type IngestResult struct {
	DocumentID     string   `json:"document_id"`
	Filename       string   `json:"filename,omitempty"`
	CollectionName string   `json:"collection_name"`
	ChunksCreated  int      `json:"chunks_created"`
	ChunkIDs       []string `json:"chunk_ids"`
	Status         string   `json:"status"`
}

// SearchResultItem is one ranked passage returned to the caller.
type SearchResultItem struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// QueryResult is the public search response shape.
type QueryResult struct {
	Query          string             `json:"query"`
	CollectionName string             `json:"collection_name"`
	Results        []SearchResultItem `json:"results"`
	TotalResults   int                `json:"total_results"`
}

// IngestRequest is the JSON body for raw-text ingestion.
type IngestRequest struct {
	Text           string         `json:"text"`
	CollectionName string         `json:"collection_name" binding:"required"`
	Metadata       map[string]any `json:"metadata"`
	SourceFile     string         `json:"source_file"`
}

// SearchRequest is the JSON body for similarity search.
type SearchRequest struct {
	Query          string         `json:"query" binding:"required"`
	CollectionName string         `json:"collection_name" binding:"required"`
	TopK           int            `json:"top_k"`
	Filter         map[string]any `json:"filter"`
}

// ValidateMetadata enforces the closed scalar variant for caller metadata:
// values must be strings, booleans, or numbers. Numbers are normalized to
// float64 so every backend serializes them the same way. Returns the
// normalized map, or ErrInvalidInput for any other value type.
func ValidateMetadata(metadata map[string]any) (map[string]any, error) {
	if len(metadata) == 0 {
		return nil, nil
	}

	normalized := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if key == "" {
			return nil, fmt.Errorf("%w: metadata key must not be empty", ErrInvalidInput)
		}
		switch v := value.(type) {
		case string, bool:
			normalized[key] = v
		case float64:
			normalized[key] = v
		case float32:
			normalized[key] = float64(v)
		case int:
			normalized[key] = float64(v)
		case int32:
			normalized[key] = float64(v)
		case int64:
			normalized[key] = float64(v)
		default:
			return nil, fmt.Errorf("%w: metadata value for %q must be string, number or boolean, got %T",
				ErrInvalidInput, key, value)
		}
	}
	return normalized, nil
}
