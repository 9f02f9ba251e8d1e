// Package server wires the stores, services and handlers into an HTTP
// server.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go: config.Load → OpenDeps (redis, bucket, archive)
//	New:     Deps → services → handlers → routes
//
// Each layer only receives what it needs: services get repositories and
// the kv store, handlers get service interfaces.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/artwall/internal/auth"
	"github.com/sakif/artwall/internal/config"
	"github.com/sakif/artwall/internal/handler"
	"github.com/sakif/artwall/internal/middleware"
	"github.com/sakif/artwall/internal/service"
)

type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	deps   *Deps
}

// New builds the router. The server takes ownership of deps and closes
// them when Start returns.
func New(cfg config.Config, deps *Deps, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		deps:   deps,
	}
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures middleware and routes.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz, /readyz
//	GET    /api/artworks[/{id}]          gallery
//	POST   /api/artworks                 submit
//	PATCH  /api/artworks/{id}            owner edit
//	DELETE /api/artworks/{id}            owner or admin delete
//	POST   /api/uploads, PUT /api/uploads/{id}
//	POST   /api/artworks/{id}/like, /api/likes/status
//	GET    /api/leaderboard[/periods]
//	POST   /api/admin/leaderboard/{rebuild,reset}
func (s *Server) setupRoutes() error {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// Direct uploads are disabled without a ticket secret.
	var tickets *auth.TicketService
	if s.config.UploadTicketSecret != "" {
		var err error
		tickets, err = auth.NewTicketService(s.config.UploadTicketSecret, s.config.UploadTicketTTL)
		if err != nil {
			return fmt.Errorf("creating ticket service: %w", err)
		}
	} else {
		s.logger.Warn("UPLOAD_TICKET_SECRET not set, direct uploads are disabled")
	}

	admin := auth.NewAdminVerifier(s.config.AdminSecret)
	if admin == nil {
		s.logger.Warn("ADMIN_SECRET not set, admin routes are disabled")
	}

	d := s.deps
	artworkService := service.NewArtworkService(d.Artworks, d.Store, d.Calc, tickets, s.config.MaxUploadBytes, s.logger)
	likeService := service.NewLikeService(d.Artworks, d.Store, d.Calc, s.logger)
	boardService := service.NewLeaderboardService(d.Artworks, d.Archive, d.Store, d.Calc, s.logger)

	artworkHandler := handler.NewArtworkHandler(artworkService, admin, s.logger)
	likeHandler := handler.NewLikeHandler(likeService, s.logger)
	boardHandler := handler.NewLeaderboardHandler(boardService, s.logger)
	healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{
		"redis":   d.Store,
		"archive": d.Archive,
	}, s.logger)

	s.router.Get("/healthz", healthHandler.HandleLive)
	s.router.Get("/readyz", healthHandler.HandleReady)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/artworks", artworkHandler.HandleList)
		r.Get("/artworks/{id}", artworkHandler.HandleGet)
		r.Post("/artworks", artworkHandler.HandleSubmit)
		r.Patch("/artworks/{id}", artworkHandler.HandlePatch)
		r.Delete("/artworks/{id}", artworkHandler.HandleDelete)

		r.Post("/uploads", artworkHandler.HandleCreateUpload)
		r.Put("/uploads/{id}", artworkHandler.HandlePutUpload)

		// likes need a voter id
		r.Group(func(r chi.Router) {
			r.Use(middleware.Voter(s.config.SecureCookies))
			r.Post("/artworks/{id}/like", likeHandler.HandleToggle)
			r.Post("/likes/status", likeHandler.HandleStatus)
		})

		r.Get("/leaderboard", boardHandler.HandleTop)
		r.Get("/leaderboard/periods", boardHandler.HandlePeriods)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin(admin))
			r.Post("/leaderboard/rebuild", boardHandler.HandleRebuild)
			r.Post("/leaderboard/reset", boardHandler.HandleReset)
		})
	})

	return nil
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests and
// closes the stores.
func (s *Server) Start() error {
	defer func() {
		if err := s.deps.Close(); err != nil {
			s.logger.Error("closing stores", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("blob_driver", s.config.BlobDriver),
			slog.String("archive", s.config.ArchiveDBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
