// Package server exposes rankings over HTTP and a websocket feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/observability"
	"netbuy-ranker/internal/orchestrator"
	"netbuy-ranker/internal/pricing"
	"netbuy-ranker/internal/reporting"
)

// Ranker is the subset of orchestrator.Service the transport needs.
type Ranker interface {
	RunIngestionAndRank(ctx context.Context) (*orchestrator.RunResult, error)
	LatestSnapshot(ctx context.Context) (*domain.RankingSnapshot, error)
	History(ctx context.Context, limit int) ([]*domain.RankingSnapshot, error)
}

// Quoter supplies price quotes.
type Quoter interface {
	Quote(ctx context.Context) (*pricing.Quote, error)
}

var (
	_ Ranker = (*orchestrator.Service)(nil)
	_ Quoter = (*pricing.Client)(nil)
)

// Options for creating a Server.
type Options struct {
	// Required
	Addr   string
	Ranker Ranker

	// Optional
	Quoter      Quoter       // nil disables /api/v1/price
	Broadcaster *Broadcaster // nil disables /ws
	Cooldown    time.Duration
	TopN        int

	// TrustedProxies may set CallerHeader; other callers are keyed by remote host.
	TrustedProxies []netip.Prefix

	Message     reporting.MessageOptions
	Logger      zerolog.Logger

	// WriteTimeout bounds a whole response, including a refresh run. Default 5m.
	WriteTimeout time.Duration
}

// Server is the HTTP transport.
type Server struct {
	opts     Options
	cooldown *Cooldown
	logger   zerolog.Logger
	server   *http.Server
}

// New creates a new Server.
func New(opts Options) *Server {
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Minute
	}
	s := &Server{
		opts:     opts,
		cooldown: NewCooldown(opts.Cooldown, opts.TrustedProxies...),
		logger:   opts.Logger.With().Str("component", "server").Logger(),
	}
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, label string, h http.Handler) {
		mux.Handle(pattern, metricsMiddleware(label, h))
	}

	// Rankings
	route("GET /api/v1/rankings", "/api/v1/rankings", handleGetRankings(s.opts.Ranker, s.opts.TopN, s.logger))
	route("GET /api/v1/rankings/history", "/api/v1/rankings/history", handleRankingHistory(s.opts.Ranker, s.logger))
	route("GET /api/v1/rankings/message", "/api/v1/rankings/message", handleRankingMessage(s.opts.Ranker, s.opts.TopN, s.opts.Message, s.logger))
	route("POST /api/v1/rankings/refresh", "/api/v1/rankings/refresh",
		s.cooldown.Middleware(handleRefresh(s.opts.Ranker, s.opts.TopN, s.logger)))

	// Pricing shares the caller cooldown with refresh
	if s.opts.Quoter != nil {
		route("GET /api/v1/price", "/api/v1/price",
			s.cooldown.Middleware(handlePrice(s.opts.Quoter, s.opts.Message, s.logger)))
	}

	// Websocket feed; not wrapped, the upgrade needs the raw writer
	if s.opts.Broadcaster != nil {
		mux.HandleFunc("GET /ws", s.opts.Broadcaster.Handler())
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", observability.Handler())

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.opts.Broadcaster != nil {
		s.opts.Broadcaster.Close()
	}
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return <-errCh
}
