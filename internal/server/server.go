// Package server is the HTTP front for the detection pipeline.
package server

import (
	"log/slog"

	"github.com/gorilla/mux"

	"github.com/neuroscan/tumor-detection-service/internal/config"
	"github.com/neuroscan/tumor-detection-service/internal/detect"
	"github.com/neuroscan/tumor-detection-service/internal/pipeline"
)

const (
	SystemName = "Brain Tumor Detection Service"
	Version    = "1.0.0"
)

type Server struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	// pool is nil when the simulator engine is active.
	pool *detect.SessionPool
	log  *slog.Logger
}

func New(cfg *config.Config, p *pipeline.Pipeline, pool *detect.SessionPool, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, pipeline: p, pool: pool, log: log}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/predict", s.handlePredict).Methods("POST", "OPTIONS")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	r.Use(corsMiddleware)
	r.Use(s.requestLogMiddleware)
	return r
}
