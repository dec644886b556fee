// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/folio-tracker/internal/circuitbreaker"
	"github.com/folio-tracker/internal/config"
	"github.com/folio-tracker/internal/logging"
	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/service"
	"github.com/folio-tracker/internal/types"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// SchedulerServiceInterface defines the cron operations
type SchedulerServiceInterface interface {
	Authorize(header string) bool
	RunBatch(ctx context.Context, req service.BatchRequest) (*service.BatchResult, error)
	Cleanup(ctx context.Context) (*service.PruneResult, error)
}

// HistoryServiceInterface defines snapshot reads and writes
type HistoryServiceInterface interface {
	SaveSnapshot(ctx context.Context, in service.SaveSnapshotInput) error
	Query(ctx context.Context, portfolioID int64, period types.Period, start time.Time) ([]*models.HistorySnapshot, error)
}

// BalanceServiceInterface defines balance reads
type BalanceServiceInterface interface {
	GetBalances(ctx context.Context, portfolioID int64) (*service.BalancesView, error)
}

// ValuationServiceInterface defines portfolio valuation
type ValuationServiceInterface interface {
	ValuePortfolio(ctx context.Context, portfolioID int64) (float64, error)
}

// CoinServiceInterface defines coin metadata reads
type CoinServiceInterface interface {
	GetMetadata(ctx context.Context, ticker string) (*models.CoinMetadata, error)
	ListMetadata(ctx context.Context) ([]*models.CoinMetadata, error)
}

// LedgerServiceInterface defines transaction operations
type LedgerServiceInterface interface {
	RecordTransaction(ctx context.Context, in service.RecordTransactionInput) (*models.Transaction, error)
	ListTransactions(ctx context.Context, portfolioID int64) ([]*models.Transaction, error)
	CorrectTransaction(ctx context.Context, id int64, c models.TransactionCorrection) (*models.Transaction, error)
}

// ChartServiceInterface defines chart reads
type ChartServiceInterface interface {
	Chart(ctx context.Context, ref types.PortfolioRef, r types.ChartRange) (*service.ChartView, error)
}

// PortfolioLookup checks that a portfolio exists before writes
type PortfolioLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// HealthCheck pings one dependency
type HealthCheck func(ctx context.Context) error

// Dependencies wires the server to its services
type Dependencies struct {
	Scheduler    SchedulerServiceInterface
	History      HistoryServiceInterface
	Balances     BalanceServiceInterface
	Valuation    ValuationServiceInterface
	Coins        CoinServiceInterface
	Ledger       LedgerServiceInterface
	Charts       ChartServiceInterface
	Portfolios   PortfolioLookup
	Demo         *service.DemoData
	Monitor      *service.PerformanceMonitor
	BreakerStats func() *circuitbreaker.Stats
	Checks       map[string]HealthCheck
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	deps       Dependencies
	config     *config.ServerConfig
	now        func() time.Time
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.ServerConfig, deps Dependencies) *Server {
	if deps.Demo == nil {
		deps.Demo = service.NewDemoData()
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		config: cfg,
		now:    time.Now,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Cron endpoints authenticate with the bearer secret instead of rate limits
	s.router.HandleFunc(service.UpdatePricesPath, s.handleUpdatePrices).Methods(http.MethodGet)
	s.router.HandleFunc(service.CleanupPath, s.handleCleanup).Methods(http.MethodGet)

	// Preflight requests only need the CORS headers set by middleware
	s.router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	public := s.router.NewRoute().Subrouter()
	public.Use(RateLimitMiddleware(NewRateLimiter(s.config.RequestsPerSec)))

	// Portfolio endpoints
	public.HandleFunc("/portfolio/{id}/current-value", s.handlePostCurrentValue).Methods(http.MethodPost)
	public.HandleFunc("/portfolio/{id}/history", s.handleGetHistory).Methods(http.MethodGet)
	public.HandleFunc("/portfolio/{id}/history", s.handlePostHistory).Methods(http.MethodPost)
	public.HandleFunc("/portfolio/{id}/balances", s.handleGetBalances).Methods(http.MethodGet)
	public.HandleFunc("/portfolio/{id}/value", s.handleGetValue).Methods(http.MethodGet)
	public.HandleFunc("/portfolio/{id}/chart", s.handleGetChart).Methods(http.MethodGet)

	// Ledger endpoints
	public.HandleFunc("/portfolio/{id}/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	public.HandleFunc("/portfolio/{id}/transactions", s.handleListTransactions).Methods(http.MethodGet)
	public.HandleFunc("/transactions/{txid}", s.handleCorrectTransaction).Methods(http.MethodPatch)

	// Coin endpoints
	public.HandleFunc("/coins", s.handleListCoins).Methods(http.MethodGet)
	public.HandleFunc("/coins/{ticker}", s.handleGetCoin).Methods(http.MethodGet)
}

// Handler exposes the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
