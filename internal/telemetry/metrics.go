package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter    metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	DocumentsIngested metric.Int64Counter
	ChunksCreated     metric.Int64Counter
	QueryDuration     metric.Float64Histogram
	EmbeddingDuration metric.Float64Histogram
	BackendOperations metric.Int64Counter
	BackendHealthy    metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("pdf-rag-service")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	documentsIngested, err := meter.Int64Counter(
		"rag.documents.ingested",
		metric.WithDescription("Total documents ingested"),
	)
	if err != nil {
		return nil, err
	}

	chunksCreated, err := meter.Int64Counter(
		"rag.chunks.created",
		metric.WithDescription("Total chunks created during ingestion"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"rag.query.duration",
		metric.WithDescription("Similarity query duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	embeddingDuration, err := meter.Float64Histogram(
		"rag.embedding.duration",
		metric.WithDescription("Embedding batch duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	backendOperations, err := meter.Int64Counter(
		"rag.backend.operations",
		metric.WithDescription("Vector store operations by backend and outcome"),
	)
	if err != nil {
		return nil, err
	}

	backendHealthy, err := meter.Int64Counter(
		"rag.backend.health_probes",
		metric.WithDescription("Backend health probe results"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:    requestCounter,
		RequestDuration:   requestDuration,
		DocumentsIngested: documentsIngested,
		ChunksCreated:     chunksCreated,
		QueryDuration:     queryDuration,
		EmbeddingDuration: embeddingDuration,
		BackendOperations: backendOperations,
		BackendHealthy:    backendHealthy,
	}, nil
}

// RecordRequest records a completed HTTP request
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)
	m.RequestCounter.Add(context.Background(), 1, attrs)
	m.RequestDuration.Record(context.Background(), duration, attrs)
}

// RecordIngestion records a successful document ingestion
func (m *Metrics) RecordIngestion(collection string, chunks int) {
	attrs := metric.WithAttributes(attribute.String("collection", collection))
	m.DocumentsIngested.Add(context.Background(), 1, attrs)
	m.ChunksCreated.Add(context.Background(), int64(chunks), attrs)
}

// RecordBackendOp records a vector store operation outcome
func (m *Metrics) RecordBackendOp(backend, op string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.BackendOperations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

// RecordHealthProbe records a scheduled backend health probe result
func (m *Metrics) RecordHealthProbe(backend string, healthy bool) {
	m.BackendHealthy.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.Bool("healthy", healthy),
	))
}
