// Package server hosts the local HTTP API over the conversion client.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/3leaps/vr180/internal/errors"
	"github.com/3leaps/vr180/internal/server/handlers"
	"github.com/3leaps/vr180/internal/server/middleware"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

type options struct {
	facade          handlers.Facade
	api             handlers.APIOptions
	version         handlers.VersionInfo
	corsOrigins     []string
	logger          *zap.Logger
	readTimeout     time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
}

// Option configures a Server.
type Option func(*options)

// WithFacade mounts the job, record and media endpoints.
func WithFacade(f handlers.Facade, api handlers.APIOptions) Option {
	return func(o *options) {
		o.facade = f
		o.api = api
	}
}

func WithVersion(info handlers.VersionInfo) Option {
	return func(o *options) { o.version = info }
}

// WithCORSOrigins allows browser access from the given origins.
func WithCORSOrigins(origins []string) Option {
	return func(o *options) { o.corsOrigins = origins }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTimeouts overrides the read-header, idle and shutdown timeouts. Zero
// keeps the default.
func WithTimeouts(read, idle, shutdown time.Duration) Option {
	return func(o *options) {
		if read > 0 {
			o.readTimeout = read
		}
		if idle > 0 {
			o.idleTimeout = idle
		}
		if shutdown > 0 {
			o.shutdownTimeout = shutdown
		}
	}
}

// Server is the local HTTP API.
type Server struct {
	host    string
	port    int
	opts    options
	handler http.Handler
}

func New(host string, port int, opts ...Option) *Server {
	o := options{
		logger:          zap.NewNop(),
		readTimeout:     defaultReadHeaderTimeout,
		idleTimeout:     defaultIdleTimeout,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.api.Logger == nil {
		o.api.Logger = o.logger
	}

	s := &Server{host: host, port: port, opts: o}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(s.opts.logger))
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteHTTPError(w, r, http.StatusNotFound, apperrors.CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteHTTPError(w, r, http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed, "method not allowed", nil)
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler(s.opts.version))

	if s.opts.facade != nil {
		handlers.NewAPI(s.opts.facade, s.opts.api).Routes(r)
	}

	if len(s.opts.corsOrigins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders: []string{"Content-Disposition", middleware.RequestIDHeader},
	})
	return c.Handler(r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Port() int {
	return s.port
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.opts.readTimeout,
		IdleTimeout:       s.opts.idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.opts.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.shutdownTimeout)
		defer cancel()
		s.opts.logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
