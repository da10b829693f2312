package main

import (
	"context"
	"fmt"

	"campus-assistant/internal/adapter/openai"
	"campus-assistant/internal/adapter/repository/memory"
	"campus-assistant/internal/adapter/repository/postgres"
	"campus-assistant/internal/delivery/http/handler"
	"campus-assistant/internal/usecase/ingestion"
	"campus-assistant/internal/usecase/query"
	"campus-assistant/pkg/config"
	"campus-assistant/pkg/database"
	applog "campus-assistant/pkg/logger"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	cfg := config.Load()

	log, err := applog.New(cfg.LogMode)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	// connect to database
	db, err := database.Connect(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()
	log.Info("connected to database")

	// initialize gateways
	embeddingClient := openai.NewEmbeddingClient(cfg.OpenAIKey, cfg.OpenAIEmbeddingModel, cfg.EmbeddingDimension, cfg.GatewayTimeout)
	chatClient := openai.NewChatClient(cfg.OpenAIKey, cfg.OpenAIChatModel, cfg.GatewayTimeout)

	// initialize repositories
	docRepo := postgres.NewDocumentRepository(db)
	chunkRepo := postgres.NewChunkRepository(db)
	structuredStore := postgres.NewStructuredStore(db)
	jobStore := memory.NewJobStore()

	// initialize ingestion pipeline
	pipeline := ingestion.NewPipeline(
		docRepo,
		chunkRepo,
		jobStore,
		structuredStore,
		embeddingClient,
		cfg.ChunkSize,
		cfg.ChunkOverlap,
		cfg.InsertBatchSize,
		cfg.IngestWorkers,
		log,
	)

	// the router's schema vocabulary is built once at startup
	schemas, err := structuredStore.ExistingTables(context.Background())
	if err != nil {
		log.Fatal("failed to introspect schema", "error", err)
	}
	vocab := query.NewSchemaVocabulary(schemas)

	// initialize the hybrid retrieval agent
	router := query.NewRouter(vocab, chatClient, cfg.SQLRouteThreshold, cfg.RAGRouteThreshold, log)
	retriever := query.NewRetriever(embeddingClient, chunkRepo, cfg.TopKResults, cfg.SimilarityThreshold, cfg.ContextCharBudget)
	synthesizer := query.NewSQLSynthesizer(chatClient, structuredStore, log)
	composer := query.NewComposer(chatClient, cfg.AnswerTemperature, cfg.AnswerMaxTokens, log)
	agent := query.NewAgent(router, retriever, synthesizer, composer, log)

	// initialize handlers
	chatHandler := handler.NewChatHandler(agent)
	ingestHandler := handler.NewIngestHandler(pipeline)
	docHandler := handler.NewDocumentHandler(pipeline)

	// initialize fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 100 * 1024 * 1024,
	})
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Post("/chat", chatHandler.Chat)

	api.Post("/ingest/documents", ingestHandler.IngestDocuments)
	api.Post("/ingest/tabular", ingestHandler.IngestTabular)
	api.Get("/jobs/:id", ingestHandler.GetJob)
	api.Post("/jobs/:id/cancel", ingestHandler.CancelJob)

	api.Get("/documents", docHandler.List)
	api.Get("/documents/:id", docHandler.GetByID)
	api.Delete("/documents/:id", docHandler.Delete)

	log.Info("server starting", "port", cfg.Port)
	if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		log.Fatal("failed to start server", "error", err)
	}
}
