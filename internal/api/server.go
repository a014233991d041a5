// Package api exposes the dashboard HTTP interface: service health, queue
// introspection, and stored article lookups.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/newsgrid/harvester/internal/metrics"
	"github.com/newsgrid/harvester/internal/pipeline"
)

// Server wires HTTP handlers to the queue and the article store.
type Server struct {
	router chi.Router
	queue  pipeline.Queue
	store  pipeline.ArticleStore
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(queue pipeline.Queue, store pipeline.ArticleStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	s := &Server{
		queue:  queue,
		store:  store,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/queue", func(r chi.Router) {
		r.Get("/stats", s.queueStats)
		r.Post("/clear", s.queueClear)
	})
	r.Route("/articles", func(r chi.Router) {
		r.Get("/stats", s.articleStats)
		r.Get("/failed", s.failedArticles)
		r.Get("/{id}", s.articleByID)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	queueUp := s.queue.HealthCheck(r.Context())
	storeUp := s.store.HealthCheck(r.Context())

	status := http.StatusOK
	overall := "ok"
	if !queueUp || !storeUp {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status": overall,
		"services": map[string]string{
			"queue": upOrDown(queueUp),
			"store": upOrDown(storeUp),
		},
	})
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	lanes := make(map[pipeline.Priority]int64, 3)
	var total int64
	for _, lane := range pipeline.Lanes() {
		n, err := s.queue.Length(r.Context(), lane)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "queue unavailable")
			return
		}
		lanes[lane] = n
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lanes": lanes,
		"total": total,
	})
}

func (s *Server) queueClear(w http.ResponseWriter, r *http.Request) {
	var lanes []pipeline.Priority
	if raw := r.URL.Query().Get("lane"); raw != "" {
		lane, err := pipeline.ParsePriority(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		lanes = append(lanes, lane)
	}
	if err := s.queue.Clear(r.Context(), lanes...); err != nil {
		writeError(w, http.StatusInternalServerError, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) articleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) failedArticles(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	articles, err := s.store.FindByStatus(r.Context(), pipeline.StatusFailed, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	if articles == nil {
		articles = []pipeline.Article{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"articles": articles,
		"count":    len(articles),
	})
}

func (s *Server) articleByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	article, err := s.store.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	if article == nil {
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func upOrDown(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
