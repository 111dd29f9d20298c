package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pdf-rag-service/internal/ai"
	"pdf-rag-service/internal/config"
	"pdf-rag-service/internal/logger"
	"pdf-rag-service/internal/telemetry"
	"pdf-rag-service/internal/vectorstore"
	"pdf-rag-service/models"
)

// RetrievalEngine orchestrates the two core paths: ingestion (chunk, embed,
// upsert) and query (embed, search, rank). It holds no per-request state;
// the embedder and backend are injected once at startup.
type RetrievalEngine struct {
	cfg      *config.Config
	chunker  *Chunker
	embedder ai.Embedder
	store    vectorstore.Store
	metrics  *telemetry.Metrics
}

// NewRetrievalEngine wires the engine. metrics may be nil (tests, worker
// without an exporter).
func NewRetrievalEngine(cfg *config.Config, embedder ai.Embedder, store vectorstore.Store, metrics *telemetry.Metrics) (*RetrievalEngine, error) {
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	return &RetrievalEngine{
		cfg:      cfg,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		metrics:  metrics,
	}, nil
}

// IngestText runs the full ingestion path for one document. The document id
// is generated here; chunk ids derive from it deterministically, so retrying
// a failed ingestion with the same id overwrites instead of duplicating.
//
// An empty document is not an error: the caller gets a success result with
// zero chunks. Any real step failure aborts the whole ingestion.
func (e *RetrievalEngine) IngestText(ctx context.Context, text, collection string, metadata map[string]any, sourceFile string) (*models.IngestResult, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, fmt.Errorf("%w: collection name is required", models.ErrInvalidInput)
	}
	if int64(len(text)) > e.cfg.MaxDocumentBytes {
		return nil, fmt.Errorf("%w: document is %d bytes, maximum is %d",
			models.ErrSizeLimit, len(text), e.cfg.MaxDocumentBytes)
	}

	callerMeta, err := models.ValidateMetadata(metadata)
	if err != nil {
		return nil, err
	}

	documentID := uuid.NewString()

	// Windows that are entirely whitespace carry nothing to retrieve and
	// would be rejected by the embedder; drop them before embedding.
	var spans []models.ChunkSpan
	for _, span := range e.chunker.Split(text) {
		if strings.TrimSpace(span.Text) != "" {
			spans = append(spans, span)
		}
	}

	if len(spans) == 0 {
		logger.Info("Ingested empty document", "document_id", documentID, "collection", collection)
		return &models.IngestResult{
			DocumentID:     documentID,
			Filename:       sourceFile,
			CollectionName: collection,
			ChunksCreated:  0,
			ChunkIDs:       []string{},
			Status:         "success",
		}, nil
	}

	texts := make([]string, len(spans))
	for i, span := range spans {
		texts[i] = span.Text
	}

	embedStart := time.Now()
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding document %s for collection %q: %w", documentID, collection, err)
	}
	if e.metrics != nil {
		e.metrics.EmbeddingDuration.Record(ctx, time.Since(embedStart).Seconds())
	}

	items := make([]vectorstore.Item, len(spans))
	chunkIDs := make([]string, len(spans))
	for i, span := range spans {
		chunkMeta := make(map[string]any, len(callerMeta)+6)
		for k, v := range callerMeta {
			chunkMeta[k] = v
		}
		if sourceFile != "" {
			chunkMeta[models.MetaSourceFile] = sourceFile
		}
		chunkMeta[models.MetaDocumentID] = documentID
		chunkMeta[models.MetaChunkIndex] = float64(i)
		chunkMeta[models.MetaChunkTotal] = float64(len(spans))
		chunkMeta[models.MetaStartIndex] = float64(span.Start)
		chunkMeta[models.MetaEndIndex] = float64(span.End)

		chunkIDs[i] = models.ChunkID(documentID, i)
		items[i] = vectorstore.Item{
			ID:       chunkIDs[i],
			Vector:   vectors[i],
			Text:     span.Text,
			Metadata: chunkMeta,
		}
	}

	if err := e.store.Upsert(ctx, collection, items); err != nil {
		if e.metrics != nil {
			e.metrics.RecordBackendOp(e.store.Name(), "upsert", false)
		}
		return nil, fmt.Errorf("storing document %s in collection %q: %w", documentID, collection, err)
	}

	if e.metrics != nil {
		e.metrics.RecordBackendOp(e.store.Name(), "upsert", true)
		e.metrics.RecordIngestion(collection, len(items))
	}
	logger.Info("Document ingested",
		"document_id", documentID,
		"collection", collection,
		"chunks", len(items),
		"source_file", sourceFile,
	)

	return &models.IngestResult{
		DocumentID:     documentID,
		Filename:       sourceFile,
		CollectionName: collection,
		ChunksCreated:  len(items),
		ChunkIDs:       chunkIDs,
		Status:         "success",
	}, nil
}

// Query embeds the query text and returns the topK most similar passages.
// A collection that has never been ingested yields an empty result set;
// absence of data is not a failure.
func (e *RetrievalEngine) Query(ctx context.Context, query, collection string, topK int, filter map[string]any) (*models.QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", models.ErrInvalidInput)
	}
	if strings.TrimSpace(collection) == "" {
		return nil, fmt.Errorf("%w: collection name is required", models.ErrInvalidInput)
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be at least 1", models.ErrInvalidInput)
	}

	start := time.Now()

	vector, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query for collection %q: %w", collection, err)
	}

	matches, err := e.store.Search(ctx, collection, vector, topK, filter)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordBackendOp(e.store.Name(), "search", false)
		}
		return nil, fmt.Errorf("searching collection %q: %w", collection, err)
	}

	if e.metrics != nil {
		e.metrics.RecordBackendOp(e.store.Name(), "search", true)
		e.metrics.QueryDuration.Record(ctx, time.Since(start).Seconds())
	}

	results := make([]models.SearchResultItem, len(matches))
	for i, match := range matches {
		results[i] = models.SearchResultItem{
			Content:  match.Content,
			Score:    match.Score,
			Metadata: match.Metadata,
		}
	}

	return &models.QueryResult{
		Query:          query,
		CollectionName: collection,
		Results:        results,
		TotalResults:   len(results),
	}, nil
}

// DeleteCollection removes a collection and everything in it. Deleting a
// collection that does not exist reports deleted=false, not an error.
func (e *RetrievalEngine) DeleteCollection(ctx context.Context, collection string) (bool, error) {
	if strings.TrimSpace(collection) == "" {
		return false, fmt.Errorf("%w: collection name is required", models.ErrInvalidInput)
	}

	deleted, err := e.store.DeleteCollection(ctx, collection)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordBackendOp(e.store.Name(), "delete_collection", false)
		}
		return false, fmt.Errorf("deleting collection %q: %w", collection, err)
	}
	if e.metrics != nil {
		e.metrics.RecordBackendOp(e.store.Name(), "delete_collection", true)
	}
	logger.Info("Collection delete", "collection", collection, "deleted", deleted)
	return deleted, nil
}

// Health probes the configured backend.
func (e *RetrievalEngine) Health(ctx context.Context) vectorstore.Health {
	return e.store.Health(ctx)
}

// Backend exposes the backend type name for health reporting.
func (e *RetrievalEngine) Backend() string {
	return e.store.Name()
}
