package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"scientific-rag/internal/models"
)

// ChunkRecord is one stored chunk row. The frequently filtered fields get
// their own columns, the full metadata map rides along as jsonb.
type ChunkRecord struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	ID            int64             `bun:"id,pk,autoincrement"`
	Content       string            `bun:"content,notnull"`
	ContentType   string            `bun:"content_type,notnull"`
	Source        string            `bun:"source,notnull"`
	Page          int               `bun:"page"`
	DocID         string            `bun:"doc_id"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Embedding     pgvector.Vector   `bun:"embedding,notnull,type:vector"`
	Similarity    float64           `bun:"similarity,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(dsn string) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
}

// InitSchema enables pgvector and creates the chunks table with the
// configured embedding dimensionality.
func InitSchema(ctx context.Context, db *bun.DB, dimensions int) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector extension: %v", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
		id BIGSERIAL PRIMARY KEY,
		content TEXT NOT NULL,
		content_type TEXT NOT NULL,
		source TEXT NOT NULL,
		page INTEGER NOT NULL DEFAULT 0,
		doc_id TEXT NOT NULL DEFAULT '',
		metadata JSONB,
		embedding vector(%d) NOT NULL
	)`, dimensions)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create chunks table: %v", err)
	}
	return nil
}

func StoreChunks(ctx context.Context, db *bun.DB, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	records := make([]ChunkRecord, len(chunks))
	for i, ch := range chunks {
		page, _ := strconv.Atoi(ch.Metadata[models.MetaPage])
		records[i] = ChunkRecord{
			Content:     ch.Text,
			ContentType: string(ch.Type),
			Source:      ch.Metadata[models.MetaSource],
			Page:        page,
			DocID:       ch.Metadata[models.MetaDocID],
			Metadata:    ch.Metadata,
			Embedding:   pgvector.NewVector(ch.Embedding),
		}
	}
	if _, err := db.NewInsert().Model(&records).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store chunks: %v", err)
	}
	return nil
}

// SearchChunks runs a cosine similarity search. Similarity is 1 minus the
// cosine distance reported by pgvector.
func SearchChunks(ctx context.Context, db *bun.DB, embedding []float32, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(embedding)
	var records []ChunkRecord
	err := db.NewSelect().
		Model(&records).
		Column("content", "content_type", "source", "page", "doc_id", "metadata").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", vec).
		OrderExpr("embedding <=> ?", vec).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %v", err)
	}

	hits := make([]models.SearchHit, len(records))
	for i, r := range records {
		hits[i] = models.SearchHit{
			Content:    r.Content,
			Metadata:   r.Metadata,
			Similarity: float32(r.Similarity),
		}
	}
	return hits, nil
}

func CountChunks(ctx context.Context, db *bun.DB) (int, error) {
	return db.NewSelect().Model((*ChunkRecord)(nil)).Count(ctx)
}

// drop table chunks

func DropChunks(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*ChunkRecord)(nil)).IfExists().Exec(ctx)
	return err
}

// Store adapts the chunks table to the vector store interfaces shared with
// the embedded backend.
type Store struct {
	db         *bun.DB
	dimensions int
}

func NewStore(db *bun.DB, dimensions int) *Store {
	return &Store{db: db, dimensions: dimensions}
}

func (s *Store) AddChunks(ctx context.Context, chunks []models.EmbeddedChunk) error {
	return StoreChunks(ctx, s.db, chunks)
}

func (s *Store) SearchByEmbedding(ctx context.Context, embedding []float32, k int) ([]models.SearchHit, error) {
	return SearchChunks(ctx, s.db, embedding, k)
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return CountChunks(ctx, s.db)
}

func (s *Store) Collection() string {
	return "chunks"
}

// Reset drops and recreates the chunks table. Not safe to run concurrently
// with queries or writes.
func (s *Store) Reset(ctx context.Context) error {
	if err := DropChunks(ctx, s.db); err != nil {
		return fmt.Errorf("failed to drop chunks: %v", err)
	}
	return InitSchema(ctx, s.db, s.dimensions)
}
