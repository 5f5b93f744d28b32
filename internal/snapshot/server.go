package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server is the cold-path HTTP collaborator: a read-only JSON endpoint
// serving the current Snapshot at GET /snapshot, plus GET /metrics when
// a Prometheus registry is supplied. Static asset serving is out of
// scope per spec.md §6.
type Server struct {
	router *mux.Router
	server *http.Server
	log    zerolog.Logger
}

// ServerConfig configures the listening address and timeouts.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c *ServerConfig) setDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// NewServer builds the HTTP surface over the given Provider. promReg
// may be nil, in which case no /metrics route is mounted; production
// callers pass the same *prometheus.Registry the orchestrator's
// metrics.Registry was built against.
func NewServer(cfg ServerConfig, p *Provider, promReg *prometheus.Registry, log zerolog.Logger) *Server {
	cfg.setDefaults()

	router := mux.NewRouter()
	s := &Server{router: router, log: log}

	router.Use(s.requestIDMiddleware)
	router.HandleFunc("/snapshot", s.handleSnapshot(p)).Methods(http.MethodGet)
	if promReg != nil {
		router.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) handleSnapshot(p *Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(p.Current()); err != nil {
			s.log.Error().Err(err).Msg("snapshot: failed to encode response")
		}
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type requestIDKey struct{}

// Start runs the HTTP server until it errors or is shut down. It
// returns http.ErrServerClosed on a graceful Shutdown, matching
// net/http.Server's own contract.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("snapshot server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
