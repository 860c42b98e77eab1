// Package server exposes the path registry and the reports over HTTP.
package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/denismitr/pathkeeper/internal/logging"
	"github.com/denismitr/pathkeeper/internal/paths"
	"github.com/denismitr/pathkeeper/internal/registry"
	"github.com/denismitr/pathkeeper/internal/report"
)

const defaultItemsCollection = "items"

type Config struct {
	// ItemsCollection receives the documents posted to /api/items.
	ItemsCollection string
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type Server struct {
	r       *gin.Engine
	logger  logr.Logger
	records *registry.Service
	reports *report.Service
	cfg     Config
}

func New(logger logr.Logger, records *registry.Service, reports *report.Service, cfg Config) *Server {
	if cfg.ItemsCollection == "" {
		cfg.ItemsCollection = defaultItemsCollection
	}

	r := gin.New()
	// saved paths are matched exactly, never redirected
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	s := &Server{
		r:       r,
		logger:  logger,
		records: records,
		reports: reports,
		cfg:     cfg,
	}

	s.routes()
	s.reserveStaticPaths()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) routes() {
	s.r.Use(
		s.recovery(),
		s.requestContext(),
		s.observe(),
		cors(),
	)

	s.r.GET("/healthz", s.handleHealth())
	if s.cfg.Gatherer != nil {
		s.r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.r.Group("/api")
	api.POST("/save", s.handleSave())
	api.POST("/rebrand", s.handleRebrand())
	api.GET("/paths", s.handlePaths())
	api.POST("/items", s.handleInsertItems())

	s.r.GET("/fields-data", s.handleFields())
	s.r.POST("/generate-reports", s.handleGenerateReports())

	// every other GET is a read of a saved path
	s.r.NoRoute(s.handleDynamicRead())
}

// reserveStaticPaths keeps saves away from paths a fixed GET route would
// always shadow.
func (s *Server) reserveStaticPaths() {
	var reserved []string
	for _, ri := range s.r.Routes() {
		if ri.Method != http.MethodGet || strings.ContainsAny(ri.Path, ":*") {
			continue
		}

		p, err := paths.Normalize(ri.Path)
		if err != nil {
			continue
		}
		reserved = append(reserved, p)
	}

	s.records.Routes().Reserve(reserved...)
	s.logger.V(logging.VERBOSE).Info("Reserved static paths", "paths", reserved)
}
