package chromemdb

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"scientific-rag/internal/models"
)

const (
	compress = false
)

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	dbPath     string
}

// NewVectorDBManager opens (or creates) the database and collection. The
// in-memory mode keeps nothing on disk and is mainly useful in tests.
func NewVectorDBManager(dbPath, collectionName string, inMemory bool) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	c, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}

	return &VectorDBManager{
		db:         db,
		collection: c,
		name:       collectionName,
		dbPath:     dbPath,
	}, nil
}

// AddChunks stores embedded chunks under deterministic ids derived from the
// document id, page, content type and position, so re-ingesting the same
// corpus yields the same ids.
func (m *VectorDBManager) AddChunks(ctx context.Context, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	counters := make(map[string]int)
	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		docID := ch.Metadata[models.MetaDocID]
		page := ch.Metadata[models.MetaPage]
		key := docID + "|" + page + "|" + string(ch.Type)
		n := counters[key]
		counters[key] = n + 1
		docs = append(docs, chromem.Document{
			ID:        fmt.Sprintf("%s-p%s-%s-%d", docID, page, ch.Type, n),
			Content:   ch.Text,
			Metadata:  ch.Metadata,
			Embedding: ch.Embedding,
		})
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}
	log.Debug().Int("documents", len(docs)).Str("collection", m.name).Msg("Stored embedded chunks")
	return nil
}

// SearchByEmbedding performs a similarity search, clamping k to the number of
// stored documents. An empty collection yields no hits, not an error.
func (m *VectorDBManager) SearchByEmbedding(ctx context.Context, embedding []float32, k int) ([]models.SearchHit, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	count := m.collection.Count()
	if k > count {
		k = count
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       k,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	hits := make([]models.SearchHit, len(results))
	for i, r := range results {
		hits[i] = models.SearchHit{
			Content:    r.Content,
			Metadata:   r.Metadata,
			Similarity: r.Similarity,
		}
	}
	return hits, nil
}

// Count reports how many chunks the collection holds.
func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	return m.collection.Count(), nil
}

// Collection returns the collection name.
func (m *VectorDBManager) Collection() string {
	return m.name
}

// Reset drops and recreates the collection, discarding every stored chunk.
// Not safe to run concurrently with queries or writes on the same manager.
func (m *VectorDBManager) Reset(ctx context.Context) error {
	if err := m.db.DeleteCollection(m.name); err != nil {
		return fmt.Errorf("failed to drop collection: %v", err)
	}
	c, err := m.db.GetOrCreateCollection(m.name, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to recreate collection: %v", err)
	}
	m.collection = c
	return nil
}
