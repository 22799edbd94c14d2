package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"scientific-rag/internal/chat"
	"scientific-rag/internal/chromemdb"
	"scientific-rag/internal/config"
	"scientific-rag/internal/db"
	"scientific-rag/internal/embedding"
	"scientific-rag/internal/llmservice"
	"scientific-rag/internal/models"
	"scientific-rag/internal/rag"
)

const configFilePath = "./configs/config.yaml"

// vectorStore is what both storage backends provide to the session.
type vectorStore interface {
	AddChunks(ctx context.Context, chunks []models.EmbeddedChunk) error
	SearchByEmbedding(ctx context.Context, embedding []float32, k int) ([]models.SearchHit, error)
	Count(ctx context.Context) (int, error)
	Collection() string
	Reset(ctx context.Context) error
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// keep routine logs off the conversation unless asked for
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	ctx := context.Background()

	embedder, err := embedding.NewEmbedder(&cfg.Embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	svc, err := llmservice.New(&cfg.LLM)
	if err != nil {
		if errors.Is(err, config.ErrMissingCredential) {
			log.Fatal().Err(err).Msg("Set the API key in the environment before starting a chat")
		}
		log.Fatal().Err(err).Msg("Error initializing language model")
	}

	store := openStore(cfg)
	session, err := chat.NewSession(ctx, chat.SessionConfig{
		Index:             store,
		Retriever:         rag.NewRetriever(store, embedder, &cfg.RAG),
		Generator:         svc,
		Collection:        store.Collection(),
		MemoryTokenBudget: cfg.RAG.MemoryTokenBudget,
	})
	if err != nil {
		if errors.Is(err, chat.ErrEmptyKnowledgeBase) {
			log.Fatal().Err(err).Msg("Ingest some papers before starting a chat")
		}
		log.Fatal().Err(err).Msg("Error starting chat session")
	}

	runREPL(ctx, session)
}

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

func runREPL(ctx context.Context, session *chat.Session) {
	banner := color.New(color.FgMagenta, color.Bold)
	userColor := color.New(color.FgGreen, color.Bold)
	assistantColor := color.New(color.FgCyan)
	faint := color.New(color.Faint)

	banner.Println("Scientific Papers Chat")
	if stats, err := session.Stats(ctx); err == nil {
		fmt.Printf("Answering from %d chunks in %q.\n", stats.Chunks, stats.Collection)
	}
	fmt.Println("Ask about your papers. Commands: /clear, /stats, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		userColor.Print("\nYou: ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "quit", "exit":
			fmt.Println("Bye.")
			return
		case "/clear":
			session.Reset()
			fmt.Println("Conversation cleared.")
			continue
		case "/stats":
			stats, err := session.Stats(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Error reading stats")
				continue
			}
			fmt.Printf("Collection %q holds %d chunks, %d turns in memory.\n",
				stats.Collection, stats.Chunks, stats.Turns)
			continue
		}

		assistantColor.Print("Assistant: ")
		answer, err := session.Ask(ctx, line, func(token string) error {
			assistantColor.Print(token)
			return nil
		})
		fmt.Println()
		if err != nil {
			log.Error().Err(err).Msg("Error answering question")
			continue
		}
		printSources(answer, faint)
	}

	if err := scanner.Err(); err != nil {
		log.Fatal().Err(err).Msg("Error reading input")
	}
}

func printSources(answer *chat.Answer, faint *color.Color) {
	if len(answer.Citations) > 0 {
		faint.Println("\nSources:")
		for i, c := range answer.Citations {
			faint.Printf("  [%d] %s, page %s (%s, score %.3f)\n", i+1, c.Source, c.Page, c.ContentType, c.Score)
			faint.Printf("      %s\n", c.TextPreview)
		}
	}
	if len(answer.Images) > 0 {
		faint.Println("Figures:")
		for _, path := range answer.Images {
			faint.Printf("  %s\n", path)
		}
	}
}
