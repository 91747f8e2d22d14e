package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
	"github.com/pilotdeskhq/pilotdesk/internal/server/handler"
	"github.com/pilotdeskhq/pilotdesk/internal/server/middleware"
	"github.com/pilotdeskhq/pilotdesk/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	RateLimit   int           // requests per client per window; 0 disables
	RateWindow  time.Duration // sliding window for the rate limit
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Opportunities *handler.OpportunityHandler
	Bids          *handler.BidHandler
	Holdings      *handler.HoldingHandler
	Notifications *handler.NotificationHandler
}

// Server is the HTTP + WebSocket API for the marketplace workflow engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limiting, CORS, logging, token auth) wired
// around it.
func NewServer(cfg Config, handlers Handlers, resolver middleware.TokenResolver, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Opportunity endpoints (buyer surface plus public listings).
	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.List)
	mux.HandleFunc("POST /api/opportunities", handlers.Opportunities.Create)
	mux.HandleFunc("GET /api/opportunities/{id}", handlers.Opportunities.Get)
	mux.HandleFunc("POST /api/opportunities/{id}/publish", handlers.Opportunities.Publish)
	mux.HandleFunc("POST /api/opportunities/{id}/cancel", handlers.Opportunities.Cancel)
	mux.HandleFunc("GET /api/opportunities/{id}/bids", handlers.Opportunities.ListBids)

	// Bid lifecycle endpoints (seller and buyer surfaces).
	mux.HandleFunc("GET /api/bids", handlers.Bids.List)
	mux.HandleFunc("POST /api/bids", handlers.Bids.Submit)
	mux.HandleFunc("GET /api/bids/{id}", handlers.Bids.Get)
	mux.HandleFunc("POST /api/bids/{id}/review", handlers.Bids.Review)
	mux.HandleFunc("POST /api/bids/{id}/approve", handlers.Bids.Approve)
	mux.HandleFunc("POST /api/bids/{id}/decline", handlers.Bids.Decline)
	mux.HandleFunc("POST /api/bids/{id}/withdraw", handlers.Bids.Withdraw)
	mux.HandleFunc("POST /api/bids/{id}/request-completion", handlers.Bids.RequestCompletion)
	mux.HandleFunc("POST /api/bids/{id}/verify-completion", handlers.Bids.VerifyCompletion)
	mux.HandleFunc("GET /api/bids/{id}/holding", handlers.Bids.GetHolding)

	// Escrow endpoints (operations surface).
	mux.HandleFunc("GET /api/holdings/{id}", handlers.Holdings.Get)
	mux.HandleFunc("POST /api/holdings/{id}/send-instructions", handlers.Holdings.SendInstructions)
	mux.HandleFunc("POST /api/holdings/{id}/mark-initiated", handlers.Holdings.MarkInitiated)
	mux.HandleFunc("POST /api/holdings/{id}/confirm-payment", handlers.Holdings.ConfirmPayment)
	mux.HandleFunc("POST /api/holdings/{id}/release", handlers.Holdings.Release)
	mux.HandleFunc("POST /api/holdings/{id}/cancel", handlers.Holdings.Cancel)

	// Notification feed.
	mux.HandleFunc("GET /api/notifications", handlers.Notifications.List)

	// WebSocket event feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(resolver)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
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
