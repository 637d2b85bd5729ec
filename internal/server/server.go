// package server contains middleware & handlers for the spotchat web service
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotchat/internal/auth"
	"github.com/desertthunder/spotchat/internal/services"
	"github.com/desertthunder/spotchat/internal/session"
	"github.com/desertthunder/spotchat/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows its own routes.
//
// Routes are [http.ServeMux] patterns including the method, e.g. "GET /auth/login".
type Handler interface {
	http.Handler
	Routes() []string
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

const shutdownTimeout = 10 * time.Second

// Opts holds the collaborators of the web service.
type Opts struct {
	Config   shared.ServerConfig
	Flow     *auth.Flow
	Sessions *session.Manager
	Spotify  *services.SpotifyService
	Gemini   services.Generator
	Logger   *log.Logger
}

// Server is the spotchat web service.
type Server struct {
	config shared.ServerConfig
	router *BasicRouter
	logger *log.Logger
}

// New wires the handlers and middleware into a [Server].
func New(opts Opts) *Server {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	logger := shared.WithLogger(opts.Logger, "component", "server")

	router := NewBasicRouter()
	router.Use(RequestLogger(logger), Recover(logger), opts.Sessions.Middleware)

	router.Handler(NewAuthHandler(opts.Flow, logger))
	router.Handler(NewHomeHandler(opts.Spotify, logger))
	router.Handler(NewAPIHandler(opts.Spotify, logger))

	chat := NewChatHandler(opts.Spotify, opts.Gemini, logger)
	limiter := NewClientLimiter(opts.Config.ChatRate, opts.Config.ChatBurst, opts.Config.TrustForwardedHeaders)
	router.Handle(http.MethodPost, "/chat/send", limiter.Middleware(chat))

	return &Server{config: opts.Config, router: router, logger: logger}
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
