package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"scientific-rag/internal/chunker"
	"scientific-rag/internal/models"
	"scientific-rag/internal/parser"
)

// ErrEmptyCorpus means the data directory yielded no usable documents.
var ErrEmptyCorpus = errors.New("no parseable documents found")

// DocumentSource produces the corpus to ingest.
type DocumentSource interface {
	ParseDirectory(ctx context.Context, dir string) ([]models.SourceDocument, []parser.Failure, error)
}

// Chunker splits documents into typed chunks.
type Chunker interface {
	ChunkAll(docs []models.SourceDocument) ([]models.Chunk, error)
}

// Embedder turns chunks into embedded chunks.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []models.Chunk) ([]models.EmbeddedChunk, error)
}

// Store persists embedded chunks.
type Store interface {
	AddChunks(ctx context.Context, chunks []models.EmbeddedChunk) error
	Count(ctx context.Context) (int, error)
	Collection() string
	Reset(ctx context.Context) error
}

// Report summarizes one ingestion run. Sample is only set on dry runs, a
// preview of what would have been stored.
type Report struct {
	Documents    int
	Failures     []parser.Failure
	Chunks       int
	ChunksByType map[models.ContentType]int
	Sample       []models.Chunk `json:",omitempty"`
	Stored       int
	Collection   string
}

// Pipeline runs the full ingestion: parse, chunk, embed, store. Each run
// replaces the stored collection so re-ingesting a corpus never duplicates
// chunks.
type Pipeline struct {
	source   DocumentSource
	chunker  Chunker
	embedder Embedder
	store    Store
}

// NewPipeline wires the four ingestion stages together.
func NewPipeline(source DocumentSource, chunker Chunker, embedder Embedder, store Store) *Pipeline {
	return &Pipeline{
		source:   source,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
	}
}

// Run ingests every supported file under dataDir. With dryRun set it stops
// after chunking and leaves the store untouched. A corpus that produces no
// chunks at all returns ErrEmptyCorpus.
func (p *Pipeline) Run(ctx context.Context, dataDir string, dryRun bool) (*Report, error) {
	docs, failures, err := p.source.ParseDirectory(ctx, dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to parse corpus: %v", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrEmptyCorpus, dataDir)
	}
	log.Info().
		Int("documents", len(docs)).
		Int("failures", len(failures)).
		Msg("Parsed corpus")

	chunks, err := p.chunker.ChunkAll(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk corpus: %v", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrEmptyCorpus, dataDir)
	}
	breakdown := chunker.CountByType(chunks)
	log.Info().
		Int("chunks", len(chunks)).
		Interface("breakdown", breakdown).
		Msg("Chunked documents")

	report := &Report{
		Documents:    len(docs),
		Failures:     failures,
		Chunks:       len(chunks),
		ChunksByType: breakdown,
		Collection:   p.store.Collection(),
	}
	if dryRun {
		report.Sample = sampleByType(chunks)
		log.Info().Msg("Dry run, skipping embedding and storage")
		return report, nil
	}

	embedded, err := p.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %v", err)
	}
	log.Info().Int("embedded", len(embedded)).Msg("Embedded chunks")

	// replace the collection so a re-run never duplicates chunks
	if err := p.store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset collection: %v", err)
	}
	if err := p.store.AddChunks(ctx, embedded); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %v", err)
	}
	stored, err := p.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count stored chunks: %v", err)
	}
	report.Stored = stored
	log.Info().
		Int("stored", stored).
		Str("collection", report.Collection).
		Msg("Stored chunks")

	return report, nil
}

// sampleByType picks the first chunk of each content type, in chunk order.
func sampleByType(chunks []models.Chunk) []models.Chunk {
	seen := make(map[models.ContentType]bool)
	var sample []models.Chunk
	for _, ch := range chunks {
		if seen[ch.Type] {
			continue
		}
		seen[ch.Type] = true
		sample = append(sample, ch)
	}
	return sample
}
