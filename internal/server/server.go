package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/diagramlab/apiserver/config"
	"github.com/diagramlab/apiserver/internal/db"
	"github.com/diagramlab/apiserver/internal/handlers"
	"github.com/diagramlab/apiserver/internal/notify"
	"github.com/diagramlab/apiserver/internal/ratelimit"
	"github.com/diagramlab/apiserver/internal/services"
	"github.com/diagramlab/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	limiter    *ratelimit.Limiter
	notifier   notify.Notifier
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(newCounterStore(cfg))

	notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		_ = limiter.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	diagramRepo := store.NewDiagramRepository(dbConn)

	authService := services.NewAuthService(userRepo, notifier, cfg.AdminEmail, cfg.BaseURL)
	userService := services.NewUserService(userRepo)
	diagramService := services.NewDiagramService(diagramRepo)

	authMW := handlers.NewAuthMiddleware(authService, cfg.JWTSecret)
	healthHandler := handlers.NewHealthHandler(dbConn)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/health", healthHandler.Health)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authService, cfg.JWTSecret, limiter, authMW)
	})
	router.Route("/diagrams", func(r chi.Router) {
		handlers.DiagramRouter(r, diagramService, limiter, authMW)
	})
	router.Route("/admin/users", func(r chi.Router) {
		handlers.AdminRouter(r, userService, authMW)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		limiter:    limiter,
		notifier:   notifier,
	}, nil
}

// newCounterStore picks the rate-limit backend: Redis when configured,
// so the limit holds across instances, otherwise in-process counters.
func newCounterStore(cfg config.Config) ratelimit.CounterStore {
	if cfg.Redis.Addr == "" {
		return ratelimit.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return ratelimit.NewRedisStore(client)
}

func newNotifier(ctx context.Context, cfg config.Config) (notify.Notifier, error) {
	switch cfg.Notifier.Backend {
	case "", "log":
		return notify.LogNotifier{}, nil
	case "rabbitmq":
		backend, err := notify.NewRabbitMQBackend(cfg.Notifier.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return notify.NewQueueNotifier(backend, cfg.Notifier.Channel), nil
	case "pubsub":
		backend, err := notify.NewPubSubBackend(ctx, cfg.Notifier.PubSub)
		if err != nil {
			return nil, err
		}
		return notify.NewQueueNotifier(backend, cfg.Notifier.Channel), nil
	default:
		return nil, fmt.Errorf("unknown notifier backend %q", cfg.Notifier.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.limiter != nil {
		_ = s.limiter.Close()
	}
	if closer, ok := s.notifier.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return s.httpServer.Close()
}
