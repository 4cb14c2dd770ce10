package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eventos/apiserver/config"
	"github.com/eventos/apiserver/internal/auth"
	"github.com/eventos/apiserver/internal/db"
	"github.com/eventos/apiserver/internal/handlers"
	"github.com/eventos/apiserver/internal/metrics"
	"github.com/eventos/apiserver/internal/middleware"
	"github.com/eventos/apiserver/internal/mq"
	"github.com/eventos/apiserver/internal/services"
	"github.com/eventos/apiserver/internal/storage"
	"github.com/eventos/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const defaultPort = 3000

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *gorm.DB
	queue      *mq.MQ
	objects    *storage.Storage
	log        zerolog.Logger
}

// New opens the database and optional backends, builds the services and
// registers every route.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth)
	if err != nil {
		return nil, err
	}

	gdb, err := db.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = db.Close(gdb)
		return nil, fmt.Errorf("open message queue: %w", err)
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = db.Close(gdb)
		if queue != nil {
			_ = queue.Close()
		}
		return nil, fmt.Errorf("open object storage: %w", err)
	}

	opts := []services.UserServiceOption{services.WithLogger(log)}
	if queue != nil {
		opts = append(opts, services.WithEventPublisher(mq.NewEventPublisher(queue, cfg.MQ.UserRegisteredChannel)))
	}
	if objects != nil {
		opts = append(opts, services.WithAvatarStore(objects))
	}

	userService := services.NewUserService(
		store.NewUserRepository(gdb),
		auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		tokens,
		opts...,
	)

	metrics.Init()

	router := NewRouter(RouterDeps{
		UserService:    userService,
		Tokens:         tokens,
		LoginLimiter:   middleware.NewLoginRateLimiter(cfg.RateLimit),
		Ping:           func(ctx context.Context) error { return db.Ping(ctx, gdb) },
		MaxAvatarBytes: cfg.Avatar.MaxBytes,
		Logger:         log,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = defaultPort
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("db_driver", cfg.Database.Driver).
		Str("mq_backend", cfg.MQ.Backend).
		Str("storage_backend", cfg.Storage.Backend).
		Int("port", port).
		Msg("server configured")

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         gdb,
		queue:      queue,
		objects:    objects,
		log:        log,
	}, nil
}

// RouterDeps are the collaborators NewRouter wires into handlers.
type RouterDeps struct {
	UserService    *services.UserService
	Tokens         *auth.TokenIssuer
	LoginLimiter   *middleware.RateLimiter
	Ping           func(context.Context) error
	MaxAvatarBytes int64
	Logger         zerolog.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	authMiddleware := handlers.RequireAuth(deps.Tokens)

	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.Tracing,
		middleware.RequestLogging(deps.Logger),
		chimw.Recoverer,
		metrics.HTTPMiddleware,
		chimw.Timeout(60*time.Second),
	)

	router.Get("/", handlers.Index)
	router.Get("/healthz", handlers.Healthz(deps.Ping))
	router.Handle("/metrics", metrics.Handler())

	handlers.UserRouter(router, deps.UserService, authMiddleware, deps.MaxAvatarBytes)
	handlers.AuthRouter(router, deps.UserService, deps.Tokens, deps.LoginLimiter.Middleware)

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done, then closes the queue, object storage and the database.
func (s *Server) Shutdown(ctx context.Context) error {
	errs := []error{s.httpServer.Shutdown(ctx)}
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if s.objects != nil {
		errs = append(errs, s.objects.Close())
	}
	errs = append(errs, db.Close(s.db))
	return errors.Join(errs...)
}
