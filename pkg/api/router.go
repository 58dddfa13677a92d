// Package api exposes the concept graph over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/athapong/concept-graph/services"
)

// Router serves the REST surface of a ConceptGraph.
type Router struct {
	cg     *services.ConceptGraph
	logger *logrus.Logger
}

func NewRouter(cg *services.ConceptGraph, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Router{cg: cg, logger: logger}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(rt.logger))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", rt.healthCheck)
	router.Handle("/metrics", promhttp.Handler())

	h := &handler{cg: rt.cg, logger: rt.logger}
	router.Route("/graphs", func(r chi.Router) {
		r.Post("/upload_nodes", h.uploadDocument)
		r.Get("/{workspaceID}", h.graphView)
	})
	router.Route("/nodes/{workspaceID}", func(r chi.Router) {
		r.Get("/", h.listNodes)
		r.Post("/", h.uploadNodes)
		r.Post("/cleanup", h.cleanup)
		r.Get("/{nodeID}", h.getNode)
		r.Get("/{nodeID}/neighbors", h.neighbors)
		r.Delete("/{nodeID}", h.deleteNode)
	})
	router.Route("/workspaces", func(r chi.Router) {
		r.Post("/create", h.createWorkspace)
		r.Get("/{userID}", h.listWorkspaces)
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(rt.logger, w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"storage":   rt.cg.Config.StorageBackend,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func requestLogger(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": chimiddleware.GetReqID(r.Context()),
				"remote":     r.RemoteAddr,
			}).Info("HTTP request")
		})
	}
}
