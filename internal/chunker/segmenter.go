package chunker

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"scientific-rag/internal/models"
)

// TextSegmenter splits running prose into overlapping windows, preferring
// paragraph and line boundaries over hard cuts. Splitting is deterministic:
// the same input always yields the same windows.
type TextSegmenter struct {
	splitter textsplitter.TextSplitter
}

func NewTextSegmenter(chunkSize, chunkOverlap int) *TextSegmenter {
	return &TextSegmenter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Segment windows text into text-type chunks, each carrying a copy of the
// base metadata. Empty or whitespace-only input produces no chunks.
func (s *TextSegmenter) Segment(text string, base map[string]string) ([]models.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	var chunks []models.Chunk
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		md := cloneMetadata(base)
		md[models.MetaContentType] = string(models.ContentTypeText)
		chunks = append(chunks, models.Chunk{
			Text:     part,
			Type:     models.ContentTypeText,
			Metadata: md,
		})
	}
	return chunks, nil
}
