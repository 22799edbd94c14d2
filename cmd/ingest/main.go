package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"scientific-rag/internal/chromemdb"
	"scientific-rag/internal/chunker"
	"scientific-rag/internal/config"
	"scientific-rag/internal/db"
	"scientific-rag/internal/embedding"
	"scientific-rag/internal/helper"
	"scientific-rag/internal/ingest"
	"scientific-rag/internal/models"
	"scientific-rag/internal/parser"
)

const configFilePath = "./configs/config.yaml"

// vectorStore is what both storage backends provide to the pipeline.
type vectorStore interface {
	AddChunks(ctx context.Context, chunks []models.EmbeddedChunk) error
	SearchByEmbedding(ctx context.Context, embedding []float32, k int) ([]models.SearchHit, error)
	Count(ctx context.Context) (int, error)
	Collection() string
	Reset(ctx context.Context) error
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	dataDir := flag.String("data", "", "Directory of papers to ingest, overrides the config")
	dryRun := flag.Bool("dry-run", false, "Parse and chunk only, do not embed or store")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if *dataDir != "" {
		cfg.Paths.DataDir = *dataDir
	}

	for _, dir := range []string{cfg.Paths.StoreDir, cfg.Paths.ExtractedDir, cfg.Paths.FiguresDir} {
		if err := helper.CreateFolder(dir); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Error creating folder")
		}
	}

	ctx := context.Background()

	docParser, err := parser.NewDocumentParser(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing parser")
	}

	embedder, err := embedding.NewEmbedder(&cfg.Embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	pipeline := ingest.NewPipeline(
		docParser,
		chunker.NewDocumentChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		embedding.NewChunkEmbedder(embedder, cfg.Embedder.Dimensions),
		openStore(cfg),
	)

	report, err := pipeline.Run(ctx, cfg.Paths.DataDir, *dryRun)
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyCorpus) {
			log.Fatal().Err(err).Msg("Nothing to ingest, add papers to the data directory first")
		}
		log.Fatal().Err(err).Msg("Error ingesting corpus")
	}

	if *dryRun {
		fmt.Println("Sample of what would be stored:")
		helper.PrettyPrint(report.Sample)
	} else if *debug {
		helper.PrettyPrint(report)
	}
	printReport(report, *dryRun)
}

// openStore opens the configured storage backend. The postgres connector
// does not dial until the first query, so a dry run works without a live
// database.
func openStore(cfg *config.Config) vectorStore {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		sqldb := db.ConnectDB(cfg.Store.PostgresDSN)
		return db.NewStore(db.NewDB(sqldb, cfg.Store.Debug), cfg.Embedder.Dimensions)
	default:
		manager, err := chromemdb.NewVectorDBManager(cfg.Paths.StoreDir, cfg.Store.Collection, false)
		if err != nil {
			log.Fatal().Err(err).Msg("Error opening vector store")
		}
		return manager
	}
}

func printReport(report *ingest.Report, dryRun bool) {
	fmt.Printf("\nIngestion complete\n")
	fmt.Printf("  documents parsed: %d\n", report.Documents)
	if len(report.Failures) > 0 {
		fmt.Printf("  files skipped:    %d\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Printf("    %s: %s\n", f.File, f.Reason)
		}
	}
	fmt.Printf("  chunks built:     %d\n", report.Chunks)
	for _, ct := range []models.ContentType{
		models.ContentTypeText,
		models.ContentTypeTable,
		models.ContentTypeEquation,
		models.ContentTypeFigure,
	} {
		if n := report.ChunksByType[ct]; n > 0 {
			fmt.Printf("    %-9s %d\n", string(ct)+":", n)
		}
	}
	if dryRun {
		fmt.Printf("  dry run, nothing stored\n")
		return
	}
	fmt.Printf("  chunks stored:    %d in %q\n", report.Stored, report.Collection)
}
