package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docubot/docubot-api/internal/config"
	"github.com/docubot/docubot-api/internal/core/chat"
	db "github.com/docubot/docubot-api/internal/core/database"
	"github.com/docubot/docubot-api/internal/core/ingestion_engine"
	"github.com/docubot/docubot-api/internal/core/llm"
	objectclient "github.com/docubot/docubot-api/internal/core/object-client"
	"github.com/docubot/docubot-api/internal/core/retrieval"
)

type App struct {
	DBClient  *db.DatabaseClient
	Objects   *objectclient.S3Client
	Processor *ingestion_engine.Processor
	Responder *chat.Responder
	Server    *Server

	log      *zap.Logger
	embedder *llm.GeminiEmbedder
	genAI    *llm.GeminiLLM
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(initCtx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database initialized and ready")

	objClient, err := objectclient.NewS3Client(initCtx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("object client initialized and ready")

	embedder, err := llm.NewGeminiEmbedder(initCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	streamer, err := llm.NewGeminiLLM(initCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm: %w", err)
	}

	extractor := ingestion_engine.NewDocconvExtractor(false)

	processor := ingestion_engine.NewProcessor(dbClient, objClient, embedder, extractor, &ingestion_engine.Config{
		MaxTokens:        cfg.ChunkMaxTokens,
		OverlapTokens:    cfg.ChunkOverlapTokens,
		MinTokens:        cfg.ChunkMinTokens,
		Merge:            cfg.MergeChunks,
		PersistBatchSize: cfg.PersistBatchSize,
		EmbedDim:         cfg.EmbedDim,
	}, logger)
	processor.Start(ctx, cfg.IngestWorkers)

	retriever := retrieval.NewService(dbClient, embedder)

	responder := chat.NewResponder(dbClient, retriever, streamer, &chat.Config{
		RetrievalLimit: cfg.RetrievalLimit,
		HistoryLimit:   cfg.HistoryLimit,
	}, logger)

	server := NewServer(cfg, dbClient, objClient, processor, responder, logger)

	return &App{
		DBClient:  dbClient,
		Objects:   objClient,
		Processor: processor,
		Responder: responder,
		Server:    server,
		log:       logger,
		embedder:  embedder,
		genAI:     streamer,
	}, nil
}

func (a *App) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.genAI != nil {
		_ = a.genAI.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
