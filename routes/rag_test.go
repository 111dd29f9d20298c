package routes

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"pdf-rag-service/internal/config"
	"pdf-rag-service/internal/vectorstore"
	"pdf-rag-service/services"

	"github.com/gin-gonic/gin"
)

type stubEmbedder struct{}

func (stubEmbedder) Dimension() int { return 4 }

func (s stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		sum := sha256.Sum256([]byte(t))
		vec := make([]float32, 4)
		var norm float64
		for j := range vec {
			vec[j] = float32(sum[j]) + 1
			norm += float64(vec[j]) * float64(vec[j])
		}
		norm = math.Sqrt(norm)
		for j := range vec {
			vec[j] = float32(float64(vec[j]) / norm)
		}
		out[i] = vec
	}
	return out, nil
}

func (s stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vs, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		ChunkSize:        100,
		ChunkOverlap:     10,
		MaxDocumentBytes: 100000,
		MaxFileSize:      1 << 20,
		EmbeddingModel:   "text-embedding-004",
		EmbeddingDim:     4,
	}
	store, err := vectorstore.NewLocalStore("")
	if err != nil {
		t.Fatal(err)
	}
	engine, err := services.NewRetrievalEngine(cfg, stubEmbedder{}, store, nil)
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	SetupRAGRoutes(r, cfg, engine, services.NewPDFExtractor(), nil)
	return r
}

// newMultipart builds a multipart form body and returns its content type.
func newMultipart(t *testing.T, buf *bytes.Buffer, fields map[string]string, fileField, filename string, content []byte) string {
	t.Helper()
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile(fileField, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return mw.FormDataContentType()
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTextIngestAndSearchEndpoints(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/documents", gin.H{
		"text":            "the migration runbook lives in the wiki",
		"collection_name": "ops",
		"metadata":        gin.H{"team": "platform"},
		"source_file":     "runbook.txt",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("ingest status: got %d, body %s", w.Code, w.Body.String())
	}
	var ingest struct {
		DocumentID    string `json:"document_id"`
		ChunksCreated int    `json:"chunks_created"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ingest); err != nil {
		t.Fatal(err)
	}
	if ingest.ChunksCreated != 1 {
		t.Fatalf("chunks created: got %d, want 1", ingest.ChunksCreated)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/search", gin.H{
		"query":           "where is the migration runbook",
		"collection_name": "ops",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("search status: got %d, body %s", w.Code, w.Body.String())
	}
	var search struct {
		TotalResults int `json:"total_results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &search); err != nil {
		t.Fatal(err)
	}
	if search.TotalResults != 1 {
		t.Fatalf("total results: got %d, want 1", search.TotalResults)
	}
}

func TestSearchValidationErrors(t *testing.T) {
	r := newTestRouter(t)

	// Missing required fields.
	w := doJSON(t, r, http.MethodPost, "/api/v1/search", gin.H{"query": "q"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing collection: got %d, want 400", w.Code)
	}

	// top_k out of range.
	w = doJSON(t, r, http.MethodPost, "/api/v1/search", gin.H{
		"query":           "q",
		"collection_name": "ops",
		"top_k":           500,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("top_k 500: got %d, want 400", w.Code)
	}
}

func TestSearchUnknownCollectionEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/search", gin.H{
		"query":           "anything",
		"collection_name": "ghost",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unknown collection: got %d, want 200", w.Code)
	}
	var search struct {
		TotalResults int `json:"total_results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &search); err != nil {
		t.Fatal(err)
	}
	if search.TotalResults != 0 {
		t.Fatalf("expected empty results, got %d", search.TotalResults)
	}
}

func TestDeleteCollectionEndpoint(t *testing.T) {
	r := newTestRouter(t)

	doJSON(t, r, http.MethodPost, "/api/v1/documents", gin.H{
		"text":            "temporary",
		"collection_name": "scratch",
	})

	w := doJSON(t, r, http.MethodDelete, "/api/v1/collections/scratch", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status: got %d", w.Code)
	}
	var resp struct {
		Deleted bool `json:"deleted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Deleted {
		t.Fatal("expected deleted=true")
	}

	w = doJSON(t, r, http.MethodDelete, "/api/v1/collections/scratch", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("second delete status: got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Deleted {
		t.Fatal("expected deleted=false on second delete")
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status: got %d", w.Code)
	}
	var health struct {
		Status  string `json:"status"`
		Backend struct {
			Type    string `json:"type"`
			Healthy bool   `json:"healthy"`
		} `json:"backend"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" || health.Backend.Type != "local" || !health.Backend.Healthy {
		t.Fatalf("unexpected health payload: %s", w.Body.String())
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	r := newTestRouter(t)

	var buf bytes.Buffer
	mw := newMultipart(t, &buf, map[string]string{"collection_name": "docs"}, "file", "notes.txt", []byte("plain text"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", mw)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("non-pdf upload: got %d, want 400", w.Code)
	}
}
