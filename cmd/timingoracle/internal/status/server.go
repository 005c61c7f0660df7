// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/AleutianAI/TimingOracle/pkg/logging"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ServiceName names the server in traces.
const ServiceName = "timingoracle-status"

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// NewRouter registers the status routes.
//
// # Inputs
//
//   - tracker: Source of GET /v1/progress
//   - metrics: Prometheus handler for GET /metrics; nil answers 404
//   - version: Reported by GET /healthz
func NewRouter(tracker *Tracker, metrics http.Handler, version string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(ServiceName))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: version})
	})

	v1 := router.Group("/v1")
	v1.GET("/progress", func(c *gin.Context) {
		c.JSON(http.StatusOK, tracker.Snapshot())
	})

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	} else {
		router.GET("/metrics", func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"error": "prometheus metric exporter is not enabled"})
		})
	}
	return router
}

// Server is a running status server.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	done   chan struct{}
	logger *logging.Logger
}

// Start listens on addr and serves handler in the background.
func Start(addr string, handler http.Handler, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status server listen %s: %w", addr, err)
	}
	s := &Server{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		done:   make(chan struct{}),
		logger: logger,
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", "error", err)
		}
	}()
	logger.Info("status server listening", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
