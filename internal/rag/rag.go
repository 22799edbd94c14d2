package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"scientific-rag/internal/config"
	"scientific-rag/internal/helper"
	"scientific-rag/internal/models"
)

const citationPreviewChars = 200

// Index is the slice of a vector store the retriever needs. Both store
// backends implement it.
type Index interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, k int) ([]models.SearchHit, error)
	Count(ctx context.Context) (int, error)
}

// Result is one retrieved chunk with its similarity score.
type Result struct {
	Chunk models.Chunk
	Score float32
}

// Citation is the provenance record surfaced alongside an answer.
type Citation struct {
	Source      string
	Page        string
	ContentType string
	Score       float64
	TextPreview string
}

// Retriever embeds a query and pulls the best-matching chunks out of the
// index.
type Retriever struct {
	index    Index
	embedder embeddings.Embedder
	topK     int
	topN     int
	cutoff   float32
}

func NewRetriever(index Index, embedder embeddings.Embedder, cfg *config.RAGConfig) *Retriever {
	return &Retriever{
		index:    index,
		embedder: embedder,
		topK:     cfg.TopK,
		topN:     cfg.TopN,
		cutoff:   float32(cfg.SimilarityCutoff),
	}
}

// Retrieve searches the top-K candidate pool for the query, then filters it
// down: drop hits below the similarity cutoff, keep only the allowed content
// types when an allowlist is given, and truncate to top-N. Nothing passing
// the filters is a normal outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, contentTypes ...models.ContentType) ([]Result, error) {
	queryEmbedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %v", err)
	}

	hits, err := r.index.SearchByEmbedding(ctx, queryEmbedding, r.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}

	pool := make([]Result, 0, len(hits))
	for _, hit := range hits {
		pool = append(pool, Result{Chunk: hitChunk(hit), Score: hit.Similarity})
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Score > pool[j].Score })

	var kept []Result
	for _, res := range pool {
		if res.Score < r.cutoff {
			continue
		}
		if len(contentTypes) > 0 && !typeAllowed(res.Chunk.Type, contentTypes) {
			continue
		}
		kept = append(kept, res)
	}
	if len(kept) > r.topN {
		kept = kept[:r.topN]
	}

	log.Debug().Int("pool", len(hits)).Int("kept", len(kept)).Msg("Retrieved chunks")
	return kept, nil
}

func typeAllowed(t models.ContentType, allowed []models.ContentType) bool {
	for _, a := range allowed {
		if t == a {
			return true
		}
	}
	return false
}

func hitChunk(hit models.SearchHit) models.Chunk {
	return models.Chunk{
		Text:     hit.Content,
		Type:     models.ContentType(hit.Metadata[models.MetaContentType]),
		Metadata: hit.Metadata,
	}
}

// FormatContext renders results as labeled context blocks for the prompt.
// No results produce an empty string.
func FormatContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, len(results))
	for i, res := range results {
		md := res.Chunk.Metadata
		parts[i] = fmt.Sprintf("[Source %d: %s, Page %s, Type: %s]\n%s\n",
			i+1, md[models.MetaSource], md[models.MetaPage], res.Chunk.Type, res.Chunk.Text)
	}
	return strings.Join(parts, models.ContextSeparator)
}

// BuildCitations produces one provenance record per surfaced result, scores
// rounded to three decimals and previews cut to 200 characters.
func BuildCitations(results []Result) []Citation {
	citations := make([]Citation, len(results))
	for i, res := range results {
		md := res.Chunk.Metadata
		citations[i] = Citation{
			Source:      md[models.MetaSource],
			Page:        md[models.MetaPage],
			ContentType: string(res.Chunk.Type),
			Score:       math.Round(float64(res.Score)*1000) / 1000,
			TextPreview: helper.Truncate(res.Chunk.Text, citationPreviewChars),
		}
	}
	return citations
}
