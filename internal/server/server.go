// Package server wires the repositories, services and handlers together and
// runs the HTTP server.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/config"
	"github.com/refolio/refolio/internal/github"
	"github.com/refolio/refolio/internal/handler"
	"github.com/refolio/refolio/internal/middleware"
	"github.com/refolio/refolio/internal/realtime"
	sqliteRepo "github.com/refolio/refolio/internal/repository/sqlite"
	"github.com/refolio/refolio/internal/schema"
	"github.com/refolio/refolio/internal/service"
	"github.com/refolio/refolio/internal/storage"
)

// Server owns the database and the change bus; both are closed when Start
// returns.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	store  storage.Store
	bus    realtime.Bus
	tokens *auth.TokenService
}

// New opens the database and builds every route. store and bus are chosen
// by the caller (disk or S3, in-process or Redis).
func New(cfg config.Config, store storage.Store, bus realtime.Bus, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		logger.Warn("JWT_SECRET not set; sessions will not survive a restart")
		secret, err = randomSecret()
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	tokens, err := auth.NewTokenService(secret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		store:  store,
		bus:    bus,
		tokens: tokens,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() error {
	schemas, err := schema.New()
	if err != nil {
		return fmt.Errorf("compiling section schemas: %w", err)
	}

	secure := s.config.Auth.SecureCookies
	passwords := auth.NewPasswordService()
	mailer := auth.NewLogMailer(s.logger)
	gh := github.NewClient(s.config.GitHub.Token)

	usernames := service.NewUsernameService(s.db, s.logger)
	auths := service.NewAuthService(s.db, s.db, s.tokens, mailer, s.config.BaseURL, s.logger)
	sections := service.NewSectionService(s.db, s.db, s.db, usernames, passwords, schemas, s.bus, s.logger)
	profiles := service.NewProfileService(s.db, s.db, gh, s.logger)
	gates := service.NewGateService(s.db, passwords, s.tokens, s.logger)
	uploads := service.NewUploadService(s.store, sections, s.logger)

	var provider handler.IdentityProvider
	if s.config.GoogleEnabled() {
		provider = auth.NewGoogleProvider(s.config.Auth.GoogleClientID, s.config.Auth.GoogleClientSecret, s.config.CallbackURL())
	} else {
		s.logger.Info("Google sign-in disabled; only magic links are available")
	}

	authHandler := handler.NewAuthHandler(provider, auths, secure, s.logger)
	settingsHandler := handler.NewSettingsHandler(sections, usernames, profiles, uploads, s.logger)
	profileHandler := handler.NewProfileHandler(profiles, gates, s.tokens, s.bus, secure, s.logger)
	pageHandler, err := handler.NewPageHandler(profiles, gates, s.tokens, secure, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}

	// Middleware runs in the order added. The /@ rewrite has to precede
	// routing, which chi does once every Use has run.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.AtUsername)
	s.router.Use(auth.LoadSession(s.tokens))

	s.router.Get("/", s.handleLanding)

	if disk, ok := s.store.(*storage.DiskStore); ok {
		fileServer := http.FileServer(http.Dir(disk.Root()))
		s.router.Handle("/media/*", http.StripPrefix("/media/", fileServer))
	}

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.HandleGoogleLogin)
		r.Get("/callback", authHandler.HandleCallback)
		r.Post("/magic-link", authHandler.HandleMagicLink)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.With(auth.RequireSession).Get("/user/me", settingsHandler.HandleSettings)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/profiles", profileHandler.HandleDirectory)
		r.Route("/profiles/{username}", func(r chi.Router) {
			r.Get("/", profileHandler.HandleProfile)
			r.Get("/gate", profileHandler.HandleGateStart)
			r.Post("/gate", profileHandler.HandleGateSubmit)
			r.Get("/events", profileHandler.HandleEvents)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession)
			r.Get("/me", authHandler.HandleMe)
			r.Get("/settings", settingsHandler.HandleSettings)
			r.Put("/settings/username", settingsHandler.HandleUsername)
			r.Put("/settings/publish", settingsHandler.HandlePublish)
			r.Post("/settings/avatar", settingsHandler.HandleAvatar)
			r.Get("/settings/sections/{name}", settingsHandler.HandleSection)
			r.Put("/settings/sections/{name}", settingsHandler.HandleReplace)
			r.Post("/settings/sections/{name}/edits", settingsHandler.HandleEdits)
			r.Post("/settings/sections/{name}/rows/{index}/media", settingsHandler.HandleRowMedia)
		})
	})

	s.router.Get("/{username}", pageHandler.HandleProfile)
	s.router.Post("/{username}", pageHandler.HandleUnlock)

	return nil
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"name":"re-folio","status":"ok"}` + "\n"))
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds.
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Event streams clear their own deadline.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.BaseURL),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
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

// close releases the bus before the database so no subscriber outlives it.
func (s *Server) close() {
	if err := s.bus.Close(); err != nil {
		s.logger.Error("closing change bus", slog.String("error", err.Error()))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("closing database", slog.String("error", err.Error()))
	}
}

// Close releases resources without starting; used when New succeeded but
// the caller gives up.
func (s *Server) Close() { s.close() }
