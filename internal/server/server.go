// Package server wires the HTTP surface of the archive: routing, CORS,
// request logging, and the JSON handlers for ingestion, reads, and
// annotation.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/valmeida/chatvault/internal/chatlog"
	"github.com/valmeida/chatvault/internal/classifier"
	"github.com/valmeida/chatvault/internal/config"
	"github.com/valmeida/chatvault/internal/database"
	"github.com/valmeida/chatvault/internal/gemini"
	"github.com/valmeida/chatvault/internal/ingest"
	"github.com/valmeida/chatvault/internal/insights"
	"github.com/valmeida/chatvault/internal/logger"
)

// Deps carries everything the handlers need. All fields are required
// except Tone, which may be nil when no Gemini key is configured (the
// tone endpoint then answers with an empty tone).
type Deps struct {
	Logger     *slog.Logger
	Store      database.Store
	Ingest     *ingest.Service
	Assembler  *chatlog.Assembler
	Classifier *classifier.Client
	Tone       gemini.Client
	Insights   *insights.Aggregator
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        config.ServerConfig
}

// NewServer builds and wires all routes.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	log := deps.Logger.With("component", "server")
	h := &handlers{deps: deps, logger: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/messages", func(mr chi.Router) {
		mr.Post("/", h.ingestMessage)
		mr.Get("/", h.listMessages)
		mr.Post("/classifier", h.classifyOrigin)
		mr.Post("/tone", h.classifyTone)
		mr.Get("/user/{userID}", h.listMessagesByUser)
		mr.Get("/log/{messageID}", h.renderTranscript)
		mr.Get("/{id}", h.getMessage)
		mr.Get("/{id}/attachments", h.listAttachments)
		mr.Get("/{id}/embeds", h.listEmbeds)
		mr.Get("/{id}/components", h.listComponents)
		mr.Get("/{id}/member", h.getMember)
		mr.Get("/{id}/mentions", h.listMentions)
		mr.Get("/{id}/message-reference", h.getMessageReference)
		mr.Get("/{id}/referenced-message", h.getReferencedMessage)
	})

	r.Get("/message-context/{messageID}", h.getMessageContext)

	// The host plugin calls the author list with both verbs; both serve
	// the same read.
	r.Get("/authors", h.listAuthors)
	r.Post("/authors", h.listAuthors)
	r.Get("/authors/{id}", h.getAuthor)

	r.Post("/user_insights/generate/{userID}", h.generateUserInsights)
	r.Get("/user_insights/generate/{userID}", h.readUserInsights)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, logger: log, cfg: cfg}
}

// Run starts the HTTP listener and blocks until the context is cancelled
// or the listener fails, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		s.logger.Info("Shutdown signal received, stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Error during HTTP server shutdown", "error", err)
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		s.logger.Info("HTTP server stopped gracefully.")
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Handler exposes the underlying router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
