// Package api provides the HTTP REST API and live feed transports for
// VendLink Core.
//
// It exposes stored device state, command submission, machine code
// resolution, and real-time state feeds (SSE and WebSocket) to terminal
// front-ends and operator tooling.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vendlink/vendlink-core/internal/bridge"
	"github.com/vendlink/vendlink-core/internal/command"
	"github.com/vendlink/vendlink-core/internal/feed"
	"github.com/vendlink/vendlink-core/internal/infrastructure/config"
	"github.com/vendlink/vendlink-core/internal/infrastructure/logging"
	"github.com/vendlink/vendlink-core/internal/lookup"
	"github.com/vendlink/vendlink-core/internal/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Feed     config.FeedConfig
	Logger   *logging.Logger
	Store    *state.Store
	Registry *feed.Registry
	Bridge   *bridge.Bridge
	Gateway  *command.Gateway
	Resolver *lookup.Resolver
	Version  string
}

// Server is the HTTP API server for VendLink Core.
//
// It owns the HTTP listener, routes, and middleware. Feed sessions opened by
// SSE and WebSocket handlers are tied to their request lifetimes and to the
// server context, so Close tears down every live stream.
type Server struct {
	cfg      config.APIConfig
	feedCfg  config.FeedConfig
	logger   *logging.Logger
	store    *state.Store
	registry *feed.Registry
	bridge   *bridge.Bridge
	gateway  *command.Gateway
	resolver *lookup.Resolver
	version  string

	server    *http.Server
	startTime time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("feed registry is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("command gateway is required")
	}

	return &Server{
		cfg:      deps.Config,
		feedCfg:  deps.Feed,
		logger:   deps.Logger,
		store:    deps.Store,
		registry: deps.Registry,
		bridge:   deps.Bridge,
		gateway:  deps.Gateway,
		resolver: deps.Resolver,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine; stop it with Close().
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can end live feed streams independently of
	// the parent context.
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startTime = time.Now()

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		// No WriteTimeout: SSE and WebSocket responses are long-lived.
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// Live feed streams are cancelled first, then the listener waits up to 10
// seconds for remaining requests before closing connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// done returns a channel closed when the server is shutting down. Before
// Start it returns nil, which never selects.
func (s *Server) done() <-chan struct{} {
	if s.ctx == nil {
		return nil
	}
	return s.ctx.Done()
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
