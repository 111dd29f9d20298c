package services

import (
	"pdf-rag-service/models"
)

// Chunker splits document text into fixed-size overlapping windows. Purely
// offset-based: no sentence or paragraph awareness, no trimming, no padding.
// Identical input always produces identical boundaries, which is what makes
// chunk ids stable across ingestion retries.
//
// Window size, overlap and span offsets are all measured in characters
// (runes), so multi-byte text is never cut mid-character.
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker validates the window parameters. chunkSize must be positive and
// overlap must satisfy 0 <= overlap < chunkSize; violations are configuration
// errors, caught at startup rather than per request.
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, &models.ConfigError{Field: "chunk size", Reason: "must be greater than zero"}
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, &models.ConfigError{Field: "chunk overlap", Reason: "must satisfy 0 <= overlap < chunk size"}
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split advances a window of chunkSize characters over text with stride
// chunkSize-overlap. The final window is bounded to the text's end and may be
// shorter; it is never dropped. Empty text yields no chunks; text shorter
// than chunkSize yields exactly one chunk covering all of it.
func (c *Chunker) Split(text string) []models.ChunkSpan {
	if len(text) == 0 {
		return nil
	}

	runes := []rune(text)
	stride := c.chunkSize - c.overlap
	var spans []models.ChunkSpan

	for start := 0; start < len(runes); start += stride {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		spans = append(spans, models.ChunkSpan{
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == len(runes) {
			break
		}
	}
	return spans
}
