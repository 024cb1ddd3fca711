package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/fintrack/apiserver/config"
	"github.com/fintrack/apiserver/internal/auth"
	"github.com/fintrack/apiserver/internal/db"
	"github.com/fintrack/apiserver/internal/handlers"
	"github.com/fintrack/apiserver/internal/mq"
	"github.com/fintrack/apiserver/internal/services"
	"github.com/fintrack/apiserver/internal/storage"
	"github.com/fintrack/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 60 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *db.DB
	queue      *mq.MQ
	objects    *storage.Storage
}

// Services bundles the use-cases the HTTP layer is built on.
type Services struct {
	Users        *services.UserService
	Accounts     *services.AccountService
	Transactions *services.TransactionService
	Admin        *services.AdminService
	// Statements is nil when no object storage is configured.
	Statements *services.StatementService
}

// NewServices wires repositories and services over an open database.
// events and objects may be nil.
func NewServices(conn *db.DB, tokens *auth.TokenService, events services.EventPublisher, objects services.ObjectStore) Services {
	userRepo := store.NewUserRepository(conn)
	accountRepo := store.NewAccountRepository(conn)
	txnRepo := store.NewTransactionRepository(conn, store.NewLedger(conn))

	svc := Services{
		Users:        services.NewUserService(userRepo, tokens, events),
		Accounts:     services.NewAccountService(accountRepo),
		Transactions: services.NewTransactionService(accountRepo, txnRepo, events),
		Admin:        services.NewAdminService(userRepo, accountRepo, txnRepo),
	}
	if objects != nil {
		svc.Statements = services.NewStatementService(accountRepo, txnRepo, objects)
	}
	return svc
}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(svc Services, tokens handlers.TokenVerifier) *chi.Mux {
	authMiddleware := handlers.RequireAuth(tokens)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(requestTimeout),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, svc.Users, authMiddleware)
		})
		r.Route("/accounts", func(r chi.Router) {
			handlers.AccountRouter(r, svc.Accounts, svc.Statements, authMiddleware)
		})
		r.Route("/transactions", func(r chi.Router) {
			handlers.TransactionRouter(r, svc.Transactions, authMiddleware)
		})
		r.Route("/admin", func(r chi.Router) {
			handlers.AdminRouter(r, svc.Admin, authMiddleware)
		})
	})
	return router
}

// New constructs a Server: it opens the database, connects the optional
// broker and object storage, seeds the configured admin and registers
// routes.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	queue, err := mq.NewFromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	objects, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = queue.Close()
		_ = dbConn.Close()
		return nil, err
	}

	var events services.EventPublisher
	if queue != nil {
		events = queue
	}
	var objectStore services.ObjectStore
	if objects != nil {
		objectStore = objects
	}

	tokens := auth.NewTokenService(cfg.JWT)
	svc := NewServices(dbConn, tokens, events, objectStore)

	if err := seedAdmin(ctx, svc.Users, cfg.Admin); err != nil {
		_ = objects.Close()
		_ = queue.Close()
		_ = dbConn.Close()
		return nil, err
	}

	router := NewRouter(svc, tokens)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		objects:    objects,
	}, nil
}

func seedAdmin(ctx context.Context, users *services.UserService, cfg config.AdminConfig) error {
	if strings.TrimSpace(cfg.Email) == "" || cfg.Password == "" {
		return nil
	}
	admin, created, err := users.EnsureAdmin(ctx, cfg.FullName, cfg.Email, cfg.Password)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		log.Printf("created admin user %s (id=%d)", admin.Email, admin.ID)
	}
	return nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests, then releases the broker, object
// storage and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if closeErr := s.queue.Close(); closeErr != nil {
		log.Printf("close mq: %v", closeErr)
	}
	if closeErr := s.objects.Close(); closeErr != nil {
		log.Printf("close storage: %v", closeErr)
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
