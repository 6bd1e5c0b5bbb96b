package app

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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/glimpse/internal/auth"
	"github.com/vadim/glimpse/internal/config"
	httpcontroller "github.com/vadim/glimpse/internal/controller/http"
	"github.com/vadim/glimpse/internal/database"
	accountdao "github.com/vadim/glimpse/internal/domain/account/dao"
	accountservice "github.com/vadim/glimpse/internal/domain/account/service"
	directdao "github.com/vadim/glimpse/internal/domain/direct/dao"
	directservice "github.com/vadim/glimpse/internal/domain/direct/service"
	publicationdao "github.com/vadim/glimpse/internal/domain/publication/dao"
	publicationservice "github.com/vadim/glimpse/internal/domain/publication/service"
	"github.com/vadim/glimpse/internal/realtime"
	"github.com/vadim/glimpse/internal/storage"
)

// App is the main application container
type App struct {
	cfg        config.Config
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	pool     *pgxpool.Pool
	tokens   *auth.Manager
	hub      *realtime.Hub
	limiters *httpcontroller.LimiterStore

	accounts     *accountservice.Service
	direct       *directservice.Service
	publications *publicationservice.Service
	media        *storage.S3Storage
}

// NewApp creates and initializes the application
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Timeout(30 * time.Second))

	app := &App{
		cfg:    cfg,
		router: r,
		logger: logger,
	}

	if err := app.initInfrastructure(ctx); err != nil {
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}
	app.initDomains()
	app.registerRoutes()

	app.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// initInfrastructure initializes the database pool, token manager, object
// storage and the realtime hub
func (a *App) initInfrastructure(ctx context.Context) error {
	pool, err := database.NewPostgresPool(ctx, a.cfg.Database.PostgresDSN,
		a.cfg.Database.MaxConns, a.cfg.Database.MinConns)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	a.pool = pool

	a.tokens = auth.NewManager(
		a.cfg.Auth.AccessSecret,
		a.cfg.Auth.RefreshSecret,
		a.cfg.Auth.AccessTTL,
		a.cfg.Auth.RefreshTTL,
	)

	media, err := storage.NewS3Storage(storage.S3Config{
		Endpoint:        a.cfg.S3.Endpoint,
		AccessKeyID:     a.cfg.S3.AccessKeyID,
		SecretAccessKey: a.cfg.S3.SecretAccessKey,
		Bucket:          a.cfg.S3.Bucket,
		Region:          a.cfg.S3.Region,
		PublicURL:       a.cfg.S3.PublicURL,
	})
	if err != nil {
		return fmt.Errorf("initializing object storage: %w", err)
	}
	a.media = media

	a.hub = realtime.NewHub(a.logger)
	a.limiters = httpcontroller.NewLimiterStore(
		a.cfg.RateLimit.PerMinute, a.cfg.RateLimit.Burst, 5*time.Minute)

	return nil
}

// initDomains wires DAOs and services
func (a *App) initDomains() {
	users := accountdao.NewUserPostgres(a.pool)
	a.accounts = accountservice.New(users, a.tokens, a.logger)

	conversations := directdao.NewConversationPostgres(a.pool)
	messages := directdao.NewMessagePostgres(a.pool)
	a.direct = directservice.New(conversations, messages, users, a.hub, a.logger)

	posts := publicationdao.NewPostPostgres(a.pool)
	comments := publicationdao.NewCommentPostgres(a.pool)
	a.publications = publicationservice.New(posts, comments)
}

// registerRoutes registers all HTTP routes
func (a *App) registerRoutes() {
	a.router.Get("/healthz", a.healthHandler)
	a.router.Get("/readyz", a.readyHandler)

	a.router.Route("/api/v1", func(r chi.Router) {
		r.Use(httpcontroller.RateLimit(a.limiters))

		accountHandler := httpcontroller.NewAccountHandler(a.accounts, a.tokens)
		accountHandler.RegisterRoutes(r)

		publicationHandler := httpcontroller.NewPublicationHandler(a.publications, a.tokens)
		publicationHandler.RegisterRoutes(r)

		mediaHandler := httpcontroller.NewMediaHandler(a.media, a.tokens)
		mediaHandler.RegisterRoutes(r)

		directHandler := httpcontroller.NewDirectHandler(a.direct)
		r.Group(func(r chi.Router) {
			r.Use(httpcontroller.RequireAuth(a.tokens))
			directHandler.RegisterRoutes(r)
		})

		realtimeHandler := httpcontroller.NewRealtimeHandler(a.hub, a.tokens, a.logger)
		realtimeHandler.RegisterRoutes(r)
	})
}

// healthHandler handles health check requests
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// readyHandler handles readiness check requests
func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.pool.Ping(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// Run starts the application and blocks until shutdown signal
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", "addr", a.cfg.Server.Address())
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("context cancelled")
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	a.limiters.Stop()
	a.pool.Close()

	a.logger.Info("shutdown complete")
	return nil
}
