package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"pdf-rag-service/internal/logger"
	"pdf-rag-service/models"
	"pdf-rag-service/services"
)

const TaskIngestDocument = "ingest:document"

// IngestPayload describes one queued document ingestion. The uploaded file
// is already on disk; the worker extracts, chunks, embeds and upserts it.
type IngestPayload struct {
	FilePath       string         `json:"file_path"`
	Filename       string         `json:"filename"`
	CollectionName string         `json:"collection_name"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewIngestTask enqueues a background ingestion.
func NewIngestTask(filePath, filename, collection string, metadata map[string]any) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		FilePath:       filePath,
		Filename:       filename,
		CollectionName: collection,
		Metadata:       metadata,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor handles queued ingestion tasks.
type TaskProcessor struct {
	engine    *services.RetrievalEngine
	extractor *services.PDFExtractor
}

func NewTaskProcessor(engine *services.RetrievalEngine, extractor *services.PDFExtractor) *TaskProcessor {
	return &TaskProcessor{engine: engine, extractor: extractor}
}

// ProcessIngest extracts and ingests one stored PDF. Permanent failures
// (unparseable file, invalid input) skip retry; transient backend failures
// are retried by asynq, which is safe because re-running an ingestion
// produces a fresh document rather than corrupting an old one.
func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	logger.Info("Processing queued ingestion",
		"file", payload.Filename,
		"collection", payload.CollectionName,
	)

	extraction, err := p.extractor.ExtractFromFile(ctx, payload.FilePath)
	if err != nil {
		if errors.Is(err, models.ErrDocumentParse) {
			os.Remove(payload.FilePath)
			return fmt.Errorf("extraction failed: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	result, err := p.engine.IngestText(ctx, extraction.Text, payload.CollectionName, payload.Metadata, payload.Filename)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) || errors.Is(err, models.ErrSizeLimit) {
			os.Remove(payload.FilePath)
			return fmt.Errorf("ingestion rejected: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	os.Remove(payload.FilePath)
	logger.Info("Queued ingestion complete",
		"document_id", result.DocumentID,
		"chunks", result.ChunksCreated,
	)
	return nil
}
