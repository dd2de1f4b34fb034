package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tovey/reverie/internal/config"
	"github.com/tovey/reverie/internal/metrics"
	"github.com/tovey/reverie/internal/outbox"
	"github.com/tovey/reverie/internal/scoring"
	"github.com/tovey/reverie/internal/store"
)

// Server is the reverie HTTP API server. It fronts the chat store and
// gives operators on-demand triggers for both background pipelines.
type Server struct {
	db         *store.DB
	evaluator  *scoring.Evaluator
	dispatcher *outbox.Dispatcher
	rescorer   scoring.Rescorer
	cfg        config.Config
	router     chi.Router
	version    string
	started    time.Time
}

// New creates a new Server. The evaluator and dispatcher may be nil
// when the process runs API-only; their trigger routes then return 503.
func New(db *store.DB, ev *scoring.Evaluator, disp *outbox.Dispatcher, cfg config.Config, version string) *Server {
	s := &Server{
		db:         db,
		evaluator:  ev,
		dispatcher: disp,
		rescorer:   &scoring.StoreRescorer{DB: db},
		cfg:        cfg,
		version:    version,
		started:    time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/conversations", s.handleCreateConversation)
		r.Put("/conversations/{conversationID}", s.handleUpdateConversation)
		r.Post("/conversations/{conversationID}/messages", s.handleAddMessage)

		r.Post("/messages/{messageID}/feedback", s.handleFeedback)

		r.Post("/scoring/run", s.handleScoringRun)
		r.Post("/outbox/run", s.handleOutboxRun)
		r.Get("/outbox/stats", s.handleOutboxStats)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}
