// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the orchestrator over HTTP: job submission and
// inspection, queue status, stored reports, and Prometheus metrics.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/evalbench/services/evaluator/datasets"
	"github.com/AleutianAI/evalbench/services/evaluator/datatypes"
	"github.com/AleutianAI/evalbench/services/evaluator/jobs"
	"github.com/AleutianAI/evalbench/services/evaluator/storage"
)

// Server wires the orchestrator and report store into a gin router.
type Server struct {
	orch    *jobs.Orchestrator
	reports *storage.ReportStore
	metrics prometheus.Gatherer
	logger  *slog.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithReportStore enables the /v1/reports endpoints.
func WithReportStore(store *storage.ReportStore) Option {
	return func(s *Server) { s.reports = store }
}

// WithMetrics exposes the gatherer on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.metrics = g }
}

// WithLogger sets the request-handling logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a server around an orchestrator.
func NewServer(orch *jobs.Orchestrator, opts ...Option) *Server {
	s := &Server{
		orch:   orch,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/v1/health", s.health)

	router.POST("/v1/jobs", s.createJob)
	router.GET("/v1/jobs", s.listJobs)
	router.GET("/v1/jobs/:id", s.getJob)
	router.DELETE("/v1/jobs/:id", s.cancelJob)
	router.GET("/v1/jobs/:id/report", s.getJobReport)
	router.GET("/v1/queue", s.queueStatus)

	if s.reports != nil {
		router.GET("/v1/reports", s.listReports)
		router.GET("/v1/reports/:id", s.getReport)
	}
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))
	}
	return router
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("status server listening", "addr", addr)
	return s.Router().Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createJob(c *gin.Context) {
	var cfg datatypes.JobConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	job, err := s.orch.CreateJob(c.Request.Context(), cfg)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, datasets.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) listJobs(c *gin.Context) {
	if status := c.Query("status"); status != "" {
		c.JSON(http.StatusOK, s.orch.GetJobsByStatus(datatypes.JobStatus(status)))
		return
	}
	c.JSON(http.StatusOK, s.orch.GetAllJobs())
}

func (s *Server) getJob(c *gin.Context) {
	job, ok := s.orch.GetJob(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) cancelJob(c *gin.Context) {
	id := c.Param("id")
	if !s.orch.CancelJob(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "job not found or already terminal"})
		return
	}
	job, _ := s.orch.GetJob(id)
	c.JSON(http.StatusOK, job)
}

func (s *Server) getJobReport(c *gin.Context) {
	report, ok := s.orch.GetReport(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report for job"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) queueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.GetQueueStatus())
}

func (s *Server) listReports(c *gin.Context) {
	reports, err := s.reports.ListReports(c.Request.Context())
	if err != nil {
		s.logger.Error("list reports failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list reports failed"})
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (s *Server) getReport(c *gin.Context) {
	report, err := s.reports.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrReportNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		s.logger.Error("get report failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get report failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}
