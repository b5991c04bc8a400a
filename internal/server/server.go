// Package server wires the task manager together and runs the HTTP server.
//
// COMPOSITION ROOT:
// Every dependency is built here and nowhere else:
//
//	sqlite.DB, TokenService, PasswordService, Queue → AuthService ─┐
//	sqlite.DB, PasswordService, Queue               → UserService ─┴→ UserHandler
//	sqlite.DB                                       → TaskService ──→ TaskHandler
//
// Handlers only see services, services only see repository interfaces.
package server

import (
	"context"
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

	"github.com/sakif/taskmanager/internal/auth"
	"github.com/sakif/taskmanager/internal/config"
	"github.com/sakif/taskmanager/internal/handler"
	"github.com/sakif/taskmanager/internal/middleware"
	"github.com/sakif/taskmanager/internal/notify"
	sqliteRepo "github.com/sakif/taskmanager/internal/repository/sqlite"
	"github.com/sakif/taskmanager/internal/service"
)

// Server owns the router, the database connection and the mail queue.
// Start releases them on shutdown; tests that never call Start call Close.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	mail   *notify.Queue
}

// New opens the database (running migrations) and builds every service and
// handler from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	passwords, err := auth.NewPasswordService(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("creating password service: %w", err)
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	mailer := notify.NewQueue(notify.NewLogMailer(logger, cfg.Mail.From), notify.DefaultQueueConfig(), logger)
	mailer.Start()

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		mail:   mailer,
	}

	s.setupRoutes(
		service.NewAuthService(db, tokens, passwords, mailer, logger),
		service.NewUserService(db, passwords, mailer, logger),
		service.NewTaskService(db, logger),
	)

	return s, nil
}

// setupRoutes registers middleware and routes.
//
// ROUTES:
//
//	GET    /healthz                  health check
//	POST   /users                    signup
//	POST   /users/login              login
//	GET    /users/{id}/avatar        public avatar
//	--- behind RequireAuth ---
//	POST   /users/logout             end this session
//	POST   /users/logoutAll          end every session
//	GET    /users/me                 profile
//	PATCH  /users/me                 update profile
//	DELETE /users/me                 delete account and its tasks
//	POST   /users/me/avatar          upload avatar
//	DELETE /users/me/avatar          remove avatar
//	POST   /tasks                    create task
//	GET    /tasks                    list tasks
//	GET    /tasks/{id}               get task
//	PATCH  /tasks/{id}               update task
//	DELETE /tasks/{id}               delete task
//
// MIDDLEWARE ORDER:
// RequestID runs first so the Logger line carries the ID, and Recoverer
// sits inside Logger so a panic is still logged as a 500.
func (s *Server) setupRoutes(authSvc *service.AuthService, userSvc *service.UserService, taskSvc *service.TaskService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	healthHandler := handler.NewHealthHandler(s.db, s.logger)
	userHandler := handler.NewUserHandler(authSvc, userSvc, s.logger)
	taskHandler := handler.NewTaskHandler(taskSvc, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	// Public
	s.router.Post("/users", userHandler.HandleSignup)
	s.router.Post("/users/login", userHandler.HandleLogin)
	s.router.Get("/users/{id}/avatar", userHandler.HandleGetAvatar)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(authSvc))
		r.Use(middleware.TagUser)

		r.Post("/users/logout", userHandler.HandleLogout)
		r.Post("/users/logoutAll", userHandler.HandleLogoutAll)
		r.Get("/users/me", userHandler.HandleMe)
		r.Patch("/users/me", userHandler.HandleUpdateMe)
		r.Delete("/users/me", userHandler.HandleDeleteMe)
		r.Post("/users/me/avatar", userHandler.HandleUploadAvatar)
		r.Delete("/users/me/avatar", userHandler.HandleDeleteAvatar)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.HandleCreate)
			r.Get("/", taskHandler.HandleList)
			r.Get("/{id}", taskHandler.HandleGet)
			r.Patch("/{id}", taskHandler.HandleUpdate)
			r.Delete("/{id}", taskHandler.HandleDelete)
		})
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close delivers any queued mail and releases the database.
func (s *Server) Close() error {
	s.mail.Stop()
	return s.db.Close()
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully:
// stop accepting connections, give in-flight requests 30 seconds, flush
// queued mail, close the database.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Database.Path),
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
