// Package server assembles the HTTP API: routes, middleware chain, and the
// WebSocket endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clawstreet/clawd/internal/domain"
	"github.com/clawstreet/clawd/internal/server/handler"
	"github.com/clawstreet/clawd/internal/server/middleware"
	"github.com/clawstreet/clawd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// APIKey guards the mutating endpoints when set. Empty disables auth.
	APIKey string

	// TradeRateLimit caps trades per wallet-facing client IP per
	// TradeRateWindow. Zero disables the limiter.
	TradeRateLimit  int
	TradeRateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Trades    *handler.TradeHandler
	Claims    *handler.ClaimHandler
	Verify    *handler.VerifyHandler
	Portfolio *handler.PortfolioHandler
	Events    *handler.EventsHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wires the middleware chain. Reads are
// open; trades, claims, and verification sit behind the API key and the
// trade rate limiter.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{handle}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{handle}/holders", handlers.Markets.ListHolders)
	mux.HandleFunc("GET /api/markets/{handle}/trades", handlers.Markets.ListTrades)
	mux.HandleFunc("GET /api/markets/{handle}/quote", handlers.Markets.Quote)

	mutating := http.NewServeMux()
	mutating.HandleFunc("POST /api/markets/{handle}/buy", handlers.Trades.Buy)
	mutating.HandleFunc("POST /api/markets/{handle}/sell", handlers.Trades.Sell)
	mutating.HandleFunc("POST /api/markets/{handle}/claim", handlers.Claims.Claim)
	mutating.HandleFunc("POST /api/markets/{handle}/verify", handlers.Verify.Verify)

	var guarded http.Handler = mutating
	guarded = middleware.Auth(cfg.APIKey)(guarded)
	if limiter != nil && cfg.TradeRateLimit > 0 {
		window := cfg.TradeRateWindow
		if window <= 0 {
			window = time.Second
		}
		guarded = middleware.RateLimit(limiter, cfg.TradeRateLimit, window)(guarded)
	}
	mux.Handle("POST /api/markets/{handle}/buy", guarded)
	mux.Handle("POST /api/markets/{handle}/sell", guarded)
	mux.Handle("POST /api/markets/{handle}/claim", guarded)
	mux.Handle("POST /api/markets/{handle}/verify", guarded)

	mux.HandleFunc("GET /api/wallets/{address}", handlers.Portfolio.Portfolio)
	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.List)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
