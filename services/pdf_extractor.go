package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"

	"pdf-rag-service/internal/logger"
	"pdf-rag-service/models"
)

// PDFExtractor turns PDF bytes into one text string per document. Extraction
// is a collaborator of the retrieval core: its failures surface as document
// parse errors and never reach the vector store.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractionResult contains the extracted text and basic statistics.
type ExtractionResult struct {
	Text           string
	Pages          int
	Method         string
	WordCount      int
	CharacterCount int
}

// ExtractText extracts text from PDF content, trying the in-process reader
// first and falling back to pdftotext when it yields nothing usable.
func (e *PDFExtractor) ExtractText(ctx context.Context, content []byte) (*ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, goErr := e.extractWithGoPDF(content)
	if goErr == nil {
		return result, nil
	}
	logger.Debug("go-pdf extraction failed, trying pdftotext", "error", goErr)

	result, popplerErr := e.extractWithPoppler(ctx, content)
	if popplerErr == nil {
		return result, nil
	}

	return nil, fmt.Errorf("%w: go-pdf: %v; pdftotext: %v", models.ErrDocumentParse, goErr, popplerErr)
}

// ExtractFromFile extracts text from a PDF on disk (async ingestion path).
func (e *PDFExtractor) ExtractFromFile(ctx context.Context, filePath string) (*ExtractionResult, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", models.ErrDocumentParse, filePath, err)
	}
	return e.ExtractText(ctx, content)
}

func (e *PDFExtractor) extractWithGoPDF(content []byte) (*ExtractionResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract page text", "page", i, "error", err)
			continue
		}

		textBuilder.WriteString(fmt.Sprintf("\n--- Page %d ---\n", i))
		textBuilder.WriteString(text)
	}

	extracted := textBuilder.String()
	if strings.TrimSpace(extracted) == "" {
		return nil, fmt.Errorf("no text extracted")
	}

	return newExtractionResult(extracted, pages, "go-pdf"), nil
}

// extractWithPoppler shells out to pdftotext, which copes with layouts the
// pure-Go reader cannot.
func (e *PDFExtractor) extractWithPoppler(ctx context.Context, content []byte) (*ExtractionResult, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not installed")
	}

	tmp, err := os.CreateTemp("", "extract-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	tmp.Close()

	out, err := exec.CommandContext(ctx, "pdftotext", "-layout", tmp.Name(), "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}

	extracted := string(out)
	if strings.TrimSpace(extracted) == "" {
		return nil, fmt.Errorf("no text extracted")
	}

	// pdftotext separates pages with form feeds
	pages := strings.Count(extracted, "\f") + 1

	return newExtractionResult(extracted, pages, "poppler"), nil
}

func newExtractionResult(text string, pages int, method string) *ExtractionResult {
	return &ExtractionResult{
		Text:           text,
		Pages:          pages,
		Method:         method,
		WordCount:      len(strings.Fields(text)),
		CharacterCount: len(text),
	}
}
