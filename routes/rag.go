package routes

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"pdf-rag-service/internal/config"
	"pdf-rag-service/internal/queue"
	"pdf-rag-service/models"
	"pdf-rag-service/services"
	"pdf-rag-service/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// SetupRAGRoutes registers the retrieval API under /api/v1. The asynq client
// may be nil, in which case the async upload endpoint responds 503.
func SetupRAGRoutes(r *gin.Engine, cfg *config.Config, engine *services.RetrievalEngine, extractor *services.PDFExtractor, queueClient *asynq.Client) {
	v1 := r.Group("/api/v1")
	{
		v1.POST("/upload", HandlePDFUpload(cfg, engine, extractor))
		v1.POST("/upload/async", HandleAsyncUpload(cfg, queueClient))
		v1.POST("/documents", HandleTextIngest(engine))
		v1.POST("/search", HandleSearch(engine))
		v1.DELETE("/collections/:name", HandleDeleteCollection(engine))
	}
	r.GET("/health", HandleHealth(cfg, engine))
}

// readPDFUpload validates the multipart upload shared by the sync and async
// paths and returns the open file plus its parsed form fields.
func readPDFUpload(c *gin.Context, maxFileSize int64) (io.ReadSeekCloser, string, string, map[string]any, bool) {
	if err := c.Request.ParseMultipartForm(maxFileSize); err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error_code": "file_too_large",
			"message":    "File size exceeds maximum limit",
		})
		return nil, "", "", nil, false
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "no_file",
			"message":    "No PDF file provided under field 'file'",
		})
		return nil, "", "", nil, false
	}

	ct := header.Header.Get("Content-Type")
	if !strings.Contains(ct, "pdf") && !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		file.Close()
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_file_type",
			"message":    "Only PDF files are allowed",
		})
		return nil, "", "", nil, false
	}

	if header.Size > maxFileSize {
		file.Close()
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error_code": "file_too_large",
			"message":    "File size exceeds maximum limit",
		})
		return nil, "", "", nil, false
	}

	// Magic-byte check before spending time on extraction.
	headerBuf := make([]byte, 5)
	if _, err := io.ReadFull(file, headerBuf); err != nil || string(headerBuf[:4]) != "%PDF" {
		file.Close()
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_pdf",
			"message":    "File does not appear to be a valid PDF",
		})
		return nil, "", "", nil, false
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "file_seek_error",
			"message":    "Failed to reset file for reading",
		})
		return nil, "", "", nil, false
	}

	collection := c.PostForm("collection_name")
	if collection == "" {
		file.Close()
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_input",
			"message":    "collection_name form field is required",
		})
		return nil, "", "", nil, false
	}

	var metadata map[string]any
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			file.Close()
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "metadata must be a JSON object",
			})
			return nil, "", "", nil, false
		}
	}

	return file, header.Filename, collection, metadata, true
}

// HandlePDFUpload ingests a PDF synchronously: extract, chunk, embed, upsert.
func HandlePDFUpload(cfg *config.Config, engine *services.RetrievalEngine, extractor *services.PDFExtractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, filename, collection, metadata, ok := readPDFUpload(c, cfg.MaxFileSize)
		if !ok {
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, cfg.MaxFileSize+1))
		if err != nil {
			utils.RespondWithError(c, http.StatusInternalServerError, "file_read_error", "Failed to read uploaded file", nil)
			return
		}

		extraction, err := extractor.ExtractText(c.Request.Context(), data)
		if err != nil {
			utils.RespondWithMappedError(c, err)
			return
		}

		result, err := engine.IngestText(c.Request.Context(), extraction.Text, collection, metadata, filename)
		if err != nil {
			utils.RespondWithMappedError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document_id":       result.DocumentID,
			"filename":          result.Filename,
			"collection_name":   result.CollectionName,
			"chunks_created":    result.ChunksCreated,
			"chunk_ids":         result.ChunkIDs,
			"status":            result.Status,
			"pages":             extraction.Pages,
			"extraction_method": extraction.Method,
		})
	}
}

// HandleAsyncUpload stores the PDF and enqueues a background ingestion task.
func HandleAsyncUpload(cfg *config.Config, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if queueClient == nil {
			utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_unavailable",
				"Async uploads require Redis; configure REDIS_URL or use /api/v1/upload", nil)
			return
		}

		file, filename, collection, metadata, ok := readPDFUpload(c, cfg.MaxFileSize)
		if !ok {
			return
		}
		defer file.Close()

		fileID := uuid.NewString()
		uploadDir := filepath.Join(cfg.FileStorageDir, "pending")
		if err := os.MkdirAll(uploadDir, 0o755); err != nil {
			utils.RespondWithError(c, http.StatusInternalServerError, "directory_error", "Failed to create upload directory", nil)
			return
		}

		filePath := filepath.Join(uploadDir, fmt.Sprintf("%s.pdf", fileID))
		dst, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			utils.RespondWithError(c, http.StatusInternalServerError, "file_open_error", "Failed to open destination", nil)
			return
		}
		if _, err := io.Copy(dst, io.LimitReader(file, cfg.MaxFileSize)); err != nil {
			dst.Close()
			os.Remove(filePath)
			utils.RespondWithError(c, http.StatusInternalServerError, "file_save_error", "Failed to save file", nil)
			return
		}
		dst.Close()

		task, err := queue.NewIngestTask(filePath, filename, collection, metadata)
		if err != nil {
			os.Remove(filePath)
			utils.RespondWithError(c, http.StatusInternalServerError, "queue_error", "Failed to create ingestion task", nil)
			return
		}
		info, err := queueClient.Enqueue(task)
		if err != nil {
			os.Remove(filePath)
			utils.RespondWithError(c, http.StatusInternalServerError, "queue_error", "Failed to enqueue ingestion task", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message":         "PDF accepted for processing",
			"file_id":         fileID,
			"task_id":         info.ID,
			"filename":        filename,
			"collection_name": collection,
			"status":          "pending",
		})
	}
}

// HandleTextIngest ingests raw text without the PDF extraction step.
func HandleTextIngest(engine *services.RetrievalEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_input", "Invalid request body: "+err.Error(), nil)
			return
		}

		sourceFile := req.SourceFile
		if sourceFile == "" {
			sourceFile = "inline"
		}

		result, err := engine.IngestText(c.Request.Context(), req.Text, req.CollectionName, req.Metadata, sourceFile)
		if err != nil {
			utils.RespondWithMappedError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document_id":     result.DocumentID,
			"filename":        result.Filename,
			"collection_name": result.CollectionName,
			"chunks_created":  result.ChunksCreated,
			"chunk_ids":       result.ChunkIDs,
			"status":          result.Status,
		})
	}
}

// HandleSearch runs a similarity query against one collection.
func HandleSearch(engine *services.RetrievalEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_input", "Invalid request body: "+err.Error(), nil)
			return
		}

		if req.TopK == 0 {
			req.TopK = 5
		}
		if req.TopK < 1 || req.TopK > 100 {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_input", "top_k must be between 1 and 100", nil)
			return
		}

		result, err := engine.Query(c.Request.Context(), req.Query, req.CollectionName, req.TopK, req.Filter)
		if err != nil {
			utils.RespondWithMappedError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// HandleDeleteCollection removes a collection and everything in it.
// Deleting a collection that never existed is not an error.
func HandleDeleteCollection(engine *services.RetrievalEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		deleted, err := engine.DeleteCollection(c.Request.Context(), name)
		if err != nil {
			utils.RespondWithMappedError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"collection_name": name,
			"deleted":         deleted,
		})
	}
}

// HandleHealth reports backend reachability plus the active configuration.
func HandleHealth(cfg *config.Config, engine *services.RetrievalEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := engine.Health(c.Request.Context())

		status := "healthy"
		code := http.StatusOK
		if !health.Healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status": status,
			"backend": gin.H{
				"type":    engine.Backend(),
				"healthy": health.Healthy,
				"detail":  health.Detail,
			},
			"config": gin.H{
				"embedding_model": cfg.EmbeddingModel,
				"embedding_dim":   cfg.EmbeddingDim,
				"chunk_size":      cfg.ChunkSize,
				"chunk_overlap":   cfg.ChunkOverlap,
			},
		})
	}
}
