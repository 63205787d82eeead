// Package api is the connection layer: the HTTP read API, the WebSocket
// gateway and the observability surface. It talks to matches through the
// registry and to queues through the matchmaker, never to match state
// directly.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Server wraps the HTTP listener with graceful shutdown.
type Server struct {
	httpServer  *http.Server
	rateLimiter *IPRateLimiter
}

// NewServer builds a production server on the given port. The router is
// assembled here; background pumps (queue events, matchmaker loop) are
// the caller's to start.
func NewServer(port int, cfg RouterConfig) *Server {
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = NewIPRateLimiter(DefaultRateLimitConfig)
		cfg.RateLimiter = limiter
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 5 * time.Second,
		},
		rateLimiter: limiter,
	}
}

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	log.Printf("api server listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}
