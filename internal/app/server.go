package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/docubot/docubot-api/internal/api/handlers"
	appMiddleware "github.com/docubot/docubot-api/internal/api/middlewares"
	"github.com/docubot/docubot-api/internal/config"
	"github.com/docubot/docubot-api/internal/core"
	"github.com/docubot/docubot-api/internal/core/chat"
	"github.com/docubot/docubot-api/internal/core/ingestion_engine"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, dbc core.DbClient, obj core.ObjectClient, proc *ingestion_engine.Processor, responder *chat.Responder, logger *zap.Logger) *Server {
	authHandler := handlers.NewAuthHandler(dbc)
	docHandler := handlers.NewDocumentHandler(dbc, obj, proc, cfg, logger)
	chatHandler := handlers.NewChatHandler(dbc, responder, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware)

			protected.Post("/documents/upload", docHandler.UploadDocument)
			protected.Get("/documents", docHandler.GetDocuments)
			protected.Post("/documents/{document_id}/reprocess", docHandler.ReprocessDocument)
			protected.Delete("/documents/{document_id}", docHandler.DeleteDocument)

			protected.Post("/chat/sessions", chatHandler.CreateSession)
			protected.Get("/chat/sessions", chatHandler.GetSessions)
			protected.Post("/chat/sessions/{session_id}/messages", chatHandler.SendMessage)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,

		// The chat endpoint streams; only bound the headers read here.
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv, log: logger}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
