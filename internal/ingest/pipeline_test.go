package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scientific-rag/internal/chunker"
	"scientific-rag/internal/models"
	"scientific-rag/internal/parser"
)

type fakeSource struct {
	docs     []models.SourceDocument
	failures []parser.Failure
	err      error
}

func (f *fakeSource) ParseDirectory(context.Context, string) ([]models.SourceDocument, []parser.Failure, error) {
	return f.docs, f.failures, f.err
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedChunks(_ context.Context, chunks []models.Chunk) ([]models.EmbeddedChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = models.EmbeddedChunk{Chunk: c, Embedding: []float32{1, 0}}
	}
	return out, nil
}

type fakeStore struct {
	added    []models.EmbeddedChunk
	resets   int
	addErr   error
	resetErr error
}

func (f *fakeStore) AddChunks(_ context.Context, chunks []models.EmbeddedChunk) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, chunks...)
	return nil
}

func (f *fakeStore) Count(context.Context) (int, error) {
	return len(f.added), nil
}

func (f *fakeStore) Collection() string {
	return "papers_test"
}

func (f *fakeStore) Reset(context.Context) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resets++
	f.added = nil
	return nil
}

func corpus() []models.SourceDocument {
	return []models.SourceDocument{
		{
			Text:   "Figure 1: System overview.\n\nProse about the method with $$y = ax$$ in it.\n\nA | B\n---|---\n1 | 2\n",
			Source: "paper.pdf", DocID: "paper", Page: 1,
		},
		{
			Text:   "Further prose on the second page.",
			Source: "paper.pdf", DocID: "paper", Page: 2,
		},
	}
}

func newTestPipeline(source *fakeSource, embedder *fakeEmbedder, store *fakeStore) *Pipeline {
	return NewPipeline(source, chunker.NewDocumentChunker(512, 50), embedder, store)
}

func TestPipelineRun(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(&fakeSource{docs: corpus()}, &fakeEmbedder{}, store)

	report, err := p.Run(context.Background(), "./papers", false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 5, report.Chunks)
	assert.Equal(t, 1, report.ChunksByType[models.ContentTypeTable])
	assert.Equal(t, 1, report.ChunksByType[models.ContentTypeEquation])
	assert.Equal(t, 1, report.ChunksByType[models.ContentTypeFigure])
	assert.Equal(t, 2, report.ChunksByType[models.ContentTypeText])
	assert.Equal(t, 5, report.Stored)
	assert.Equal(t, "papers_test", report.Collection)

	assert.Equal(t, 1, store.resets)
	assert.Len(t, store.added, 5)
}

func TestPipelineDryRun(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(&fakeSource{docs: corpus()}, &fakeEmbedder{}, store)

	report, err := p.Run(context.Background(), "./papers", true)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Chunks)
	assert.Zero(t, report.Stored)
	assert.Zero(t, store.resets)
	assert.Empty(t, store.added)

	// one preview chunk per content type, in chunk order
	require.Len(t, report.Sample, 4)
	types := make([]models.ContentType, 0, len(report.Sample))
	for _, ch := range report.Sample {
		types = append(types, ch.Type)
	}
	assert.Equal(t, []models.ContentType{
		models.ContentTypeTable,
		models.ContentTypeEquation,
		models.ContentTypeFigure,
		models.ContentTypeText,
	}, types)
}

func TestPipelineForwardsFailures(t *testing.T) {
	source := &fakeSource{
		docs:     corpus(),
		failures: []parser.Failure{{File: "scan.pdf", Reason: "encrypted"}},
	}
	p := newTestPipeline(source, &fakeEmbedder{}, &fakeStore{})

	report, err := p.Run(context.Background(), "./papers", false)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "scan.pdf", report.Failures[0].File)
}

func TestPipelineEmptyCorpus(t *testing.T) {
	t.Run("no documents", func(t *testing.T) {
		p := newTestPipeline(&fakeSource{}, &fakeEmbedder{}, &fakeStore{})
		_, err := p.Run(context.Background(), "./papers", false)
		assert.ErrorIs(t, err, ErrEmptyCorpus)
	})
	t.Run("only blank pages", func(t *testing.T) {
		source := &fakeSource{docs: []models.SourceDocument{
			{Text: "   \n\t", Source: "blank.pdf", DocID: "blank", Page: 1},
		}}
		p := newTestPipeline(source, &fakeEmbedder{}, &fakeStore{})
		_, err := p.Run(context.Background(), "./papers", false)
		assert.ErrorIs(t, err, ErrEmptyCorpus)
	})
}

func TestPipelineStageErrors(t *testing.T) {
	t.Run("source failure", func(t *testing.T) {
		p := newTestPipeline(&fakeSource{err: errors.New("disk gone")}, &fakeEmbedder{}, &fakeStore{})
		_, err := p.Run(context.Background(), "./papers", false)
		assert.Error(t, err)
	})
	t.Run("embedder failure leaves the store untouched", func(t *testing.T) {
		store := &fakeStore{}
		p := newTestPipeline(&fakeSource{docs: corpus()}, &fakeEmbedder{err: errors.New("model down")}, store)
		_, err := p.Run(context.Background(), "./papers", false)
		assert.Error(t, err)
		assert.Zero(t, store.resets)
	})
	t.Run("reset failure", func(t *testing.T) {
		p := newTestPipeline(&fakeSource{docs: corpus()}, &fakeEmbedder{}, &fakeStore{resetErr: errors.New("locked")})
		_, err := p.Run(context.Background(), "./papers", false)
		assert.Error(t, err)
	})
	t.Run("store failure", func(t *testing.T) {
		p := newTestPipeline(&fakeSource{docs: corpus()}, &fakeEmbedder{}, &fakeStore{addErr: errors.New("full")})
		_, err := p.Run(context.Background(), "./papers", false)
		assert.Error(t, err)
	})
}
