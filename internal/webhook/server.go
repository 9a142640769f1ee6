package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/pushdeploy/internal/config"
	"github.com/mattjoyce/pushdeploy/internal/events"
)

// Server represents the webhook HTTP server.
type Server struct {
	config    *config.Config
	deployer  Deployer
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new webhook server instance.
func New(cfg *config.Config, deployer Deployer, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    cfg,
		deployer:  deployer,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	// Request contexts end on shutdown so /events streams close, while sync
	// deploys keep running on their detached context until they finish.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: /events streams and sync deploys hold the response open.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	s.server.RegisterOnShutdown(cancelBase)

	s.logger.Info("webhook server starting",
		"port", s.config.Port,
		"mount_path", s.config.MountPath,
		"endpoints", s.config.Endpoints,
		"deploy_mode", s.config.DeployMode,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// shutdownTimeout is how long Start waits for open requests. In sync mode a
// request lasts as long as its deploy.
func (s *Server) shutdownTimeout() time.Duration {
	timeout := 5 * time.Second
	if s.config.DeployMode == config.DeployModeSync && s.config.DeployTimeout > 0 {
		timeout += s.config.DeployTimeout
	}
	return timeout
}

// Handler returns the router with every route mounted under the configured
// mount path.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	if s.config.MountPath == "" || s.config.MountPath == "/" {
		s.routes(r)
	} else {
		r.Route(s.config.MountPath, s.routes)
	}
	return r
}

func (s *Server) routes(r chi.Router) {
	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/deploys", s.handleDeploys)
	r.Get("/events", s.handleEvents)

	for _, name := range s.config.Endpoints {
		endpoint := name
		r.Post("/"+endpoint, func(w http.ResponseWriter, r *http.Request) {
			s.handleWebhook(w, r, endpoint)
		})
	}
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Webhook server running on port %d\n", s.config.Port)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Port:          s.config.Port,
		Endpoints:     s.config.Endpoints,
		DeployMode:    string(s.config.DeployMode),
	}
	if s.events != nil {
		resp.EventClients = s.events.Subscribers()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
