package chunker

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"scientific-rag/internal/models"
)

// DocumentChunker runs special-content extraction ahead of text windowing so
// tables, equations and figure captions are indexed whole.
type DocumentChunker struct {
	extractor *ContentExtractor
	segmenter *TextSegmenter
}

func NewDocumentChunker(chunkSize, chunkOverlap int) *DocumentChunker {
	return &DocumentChunker{
		extractor: NewContentExtractor(),
		segmenter: NewTextSegmenter(chunkSize, chunkOverlap),
	}
}

// ChunkDocument chunks one page of extracted text. Special-content chunks
// come first, then the windowed residual text; order is stable.
func (c *DocumentChunker) ChunkDocument(doc *models.SourceDocument) ([]models.Chunk, error) {
	base := doc.BaseMetadata()
	chunks := c.extractor.ExtractSpecialContent(doc.Text, base)
	residual := c.extractor.RemoveSpecialContent(doc.Text)
	textChunks, err := c.segmenter.Segment(residual, base)
	if err != nil {
		return nil, err
	}
	return append(chunks, textChunks...), nil
}

// ChunkAll chunks documents in input order.
func (c *DocumentChunker) ChunkAll(docs []models.SourceDocument) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for i := range docs {
		cs, err := c.ChunkDocument(&docs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to chunk %s page %d: %w", docs[i].Source, docs[i].Page, err)
		}
		chunks = append(chunks, cs...)
	}
	log.Debug().Int("documents", len(docs)).Int("chunks", len(chunks)).
		Interface("by_type", CountByType(chunks)).Msg("Chunked documents")
	return chunks, nil
}

// CountByType builds a chunk histogram keyed by content type.
func CountByType(chunks []models.Chunk) map[models.ContentType]int {
	counts := make(map[models.ContentType]int)
	for _, ch := range chunks {
		counts[ch.Type]++
	}
	return counts
}
