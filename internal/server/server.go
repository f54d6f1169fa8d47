package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	relayapi "github.com/danilofalcao/ai-relay/internal/api/relay/v1"
	"github.com/danilofalcao/ai-relay/internal/backend/util"
	"github.com/danilofalcao/ai-relay/internal/server/logger"
	"github.com/danilofalcao/ai-relay/internal/server/middleware"
	logutils "github.com/danilofalcao/ai-relay/internal/utils/logger"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"golang.org/x/net/http2"
)

// maxBodyBytes caps /api/ai bodies; larger ones get a 413
const maxBodyBytes = 100 << 10

// Relay answers one chat message
type Relay interface {
	Handle(ctx context.Context, message, model string) string
	Models() []string
}

// Options configures the server
type Options struct {
	Port     string
	Relay    Relay
	LogLevel string
	Cors     middleware.CorsOptions
	ExitCh   chan string
}

// Server represents the API server
type Server struct {
	ctx    context.Context
	port   string
	relay  Relay
	cors   middleware.CorsOptions
	srv    *http.Server
}

// New creates a new server instance
func New(ctx context.Context, opts Options) (*Server, error) {
	// set up the server's logger
	lgr := logger.New(
		ctx,
		"server",
		logger.LevelFromString(opts.LogLevel),
		opts.ExitCh,
	)
	ctx = logutils.ContextWithLogger(ctx, lgr)

	if opts.Port == "" {
		return nil, fmt.Errorf("port is required")
	}
	if opts.Relay == nil {
		return nil, fmt.Errorf("relay is required")
	}

	s := &Server{
		ctx:   ctx,
		port:  opts.Port,
		relay: opts.Relay,
		cors:  opts.Cors,
	}
	s.srv = &http.Server{
		Addr:        ":" + s.port,
		Handler:     s.Handler(),
		BaseContext: func(l net.Listener) context.Context { return s.ctx },
	}

	// Enable HTTP/2 support
	if err := http2.ConfigureServer(s.srv, nil); err != nil {
		return nil, fmt.Errorf("error configuring HTTP/2: %w", err)
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ai", s.handleAI)
		r.Get("/models", s.handleModels)
	})

	return middleware.Wrap(s.ctx, r, middleware.Params{
		Cors: s.cors,
	})
}

// Start starts the HTTP server and blocks until it stops. A failure other
// than a shutdown is also reported on the exit channel through a Fatal log.
func (s *Server) Start() error {
	lgr := logutils.FromContext(s.ctx)
	lgr.Infof(s.ctx, "Server is running on port %s", s.port)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		err = errors.Wrap(err, "error serving")
		lgr.Fatal(s.ctx, err.Error())
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests. A
// Start that has not begun listening yet returns immediately once it does.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleAI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lgr := logutils.FromContext(ctx)

	// An empty body is an empty request, not a malformed one
	var req relayapi.Request
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		err = errors.Wrap(err, "error in /api/ai endpoint")
		lgr.Error(ctx, err.Error())
		status := http.StatusInternalServerError
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(ctx, w, status, relayapi.ErrorResponse{Error: http.StatusText(status)})
		return
	}

	// A client hanging up does not abort the upstream call; the backend
	// timeout still bounds it.
	answer := s.relay.Handle(context.WithoutCancel(ctx), req.Message, req.Model)
	writeJSON(ctx, w, http.StatusOK, relayapi.Response{Response: answer})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, relayapi.ModelsResponse{Models: s.relay.Models()})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	if err := util.WriteJSON(w, status, v); err != nil {
		err = errors.Wrap(err, "error encoding response")
		logutils.FromContext(ctx).Error(ctx, err.Error())
	}
}
