package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/FairForge/notifier/internal/config"
	"github.com/FairForge/notifier/internal/gateway"
	"github.com/FairForge/notifier/internal/gateway/metrics"
	"github.com/FairForge/notifier/internal/logging"
	"github.com/FairForge/notifier/internal/queue"
)

// Version is set at build time.
var Version = "dev"

type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
	metrics    *metrics.Collector
	broker     *queue.Broker

	shuttingDown atomic.Bool
}

// Option customizes a Server
type Option func(*Server)

// WithBroker exposes the in-memory notification topics under /_notifier.
func WithBroker(b *queue.Broker) Option {
	return func(s *Server) {
		s.broker = b
	}
}

// NewServer puts the notification interceptor in front of storage, the
// handler that actually serves object storage requests.
func NewServer(cfg *config.Config, logger *zap.Logger, storage http.Handler, publisher gateway.Publisher, collector *metrics.Collector, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	s := &Server{
		config:  cfg,
		logger:  logger,
		router:  mux.NewRouter(),
		metrics: collector,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes(storage, publisher)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

func (s *Server) setupRoutes(storage http.Handler, publisher gateway.Publisher) {
	// storage paths are matched as sent; "//" and %2F are meaningful
	s.router.SkipClean(true)
	s.router.UseEncodedPath()

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET", "HEAD")
	s.router.HandleFunc("/readyz", s.handleReady).Methods("GET", "HEAD")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")

	if s.broker != nil {
		s.router.HandleFunc("/_notifier/topics", s.handleListTopics).Methods("GET")
		s.router.HandleFunc("/_notifier/topics/{topic}/receive", s.handleReceive).Methods("POST")
	}

	pipeline := gateway.NewPipeline(
		logging.Middleware(s.logger),
		metrics.Middleware(s.metrics),
		gateway.NotificationMiddleware(publisher, s.logger, s.metrics),
	)

	// storage catch-all (MUST be last)
	s.router.PathPrefix("/").Handler(pipeline.Then(storage))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"uptime":  s.metrics.Uptime().Seconds(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ready": true})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": Version,
		"go":      runtime.Version(),
	})
}

type topicStats struct {
	Name     string `json:"name"`
	Ready    int    `json:"ready"`
	InFlight int    `json:"in_flight"`
}

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	names := s.broker.Topics()
	out := make([]topicStats, 0, len(names))
	for _, name := range names {
		st, err := s.broker.Stats(name)
		if err != nil {
			continue
		}
		out = append(out, topicStats{Name: name, Ready: st.Ready, InFlight: st.InFlight})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleReceive pops and acknowledges up to ?max= messages (default 10) and
// returns their notification envelopes.
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]

	limit := 10
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max must be between 1 and 1000"})
			return
		}
		limit = n
	}

	out := make([]json.RawMessage, 0, limit)
	for len(out) < limit {
		msg, err := s.broker.Pop(r.Context(), topic)
		if errors.Is(err, queue.ErrTopicNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown topic"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if msg == nil {
			break
		}
		if err := s.broker.Ack(r.Context(), topic, msg.Receipt); err != nil {
			s.logger.Warn("ack failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		out = append(out, json.RawMessage(msg.Body))
	}
	writeJSON(w, http.StatusOK, out)
}
