// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the routing engine over HTTP: question dispatch,
// classification, cache and decision-log introspection, and override
// management. Mutating management endpoints require the management key or
// a direct localhost connection.
package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/routeAILocal/internal/classifier"
	"github.com/traylinx/routeAILocal/internal/config"
	"github.com/traylinx/routeAILocal/internal/declog"
	"github.com/traylinx/routeAILocal/internal/dispatch"
	"github.com/traylinx/routeAILocal/internal/routing"
	"github.com/traylinx/routeAILocal/internal/scenecache"
	"github.com/traylinx/routeAILocal/internal/util"
)

// Server wires the engine components behind HTTP handlers.
type Server struct {
	cfg          *config.Config
	orchestrator *dispatch.Orchestrator
	classifier   *classifier.Classifier
	router       *routing.Router
	sceneCache   *scenecache.Cache
	recorder     *declog.Recorder
	engine       *gin.Engine
}

// NewServer builds the HTTP server. sceneCache and recorder may be nil;
// their endpoints report unavailability.
func NewServer(cfg *config.Config, orch *dispatch.Orchestrator, cls *classifier.Classifier, router *routing.Router, sceneCache *scenecache.Cache, recorder *declog.Recorder) *Server {
	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		classifier:   cls,
		router:       router,
		sceneCache:   sceneCache,
		recorder:     recorder,
	}
	s.engine = s.buildEngine()
	return s
}

// Handler returns the underlying http.Handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// RegisterWebsocket mounts a websocket upgrade handler at /v1/ws. Call
// before Run.
func (s *Server) RegisterWebsocket(handler http.HandlerFunc) {
	s.engine.GET("/v1/ws", gin.WrapF(handler))
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	log.Infof("API server listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) buildEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID())

	engine.GET("/health", s.handleHealth)

	v1 := engine.Group("/v1")
	{
		v1.POST("/route", s.handleRoute)
		v1.POST("/classify", s.handleClassify)
	}

	mgmt := engine.Group("/v0/management")
	{
		mgmt.GET("/defaults", s.handleListDefaults)
		mgmt.GET("/overrides/:caller", s.handleListOverrides)
		mgmt.GET("/classifier/stats", s.handleClassifierStats)
		mgmt.GET("/scene-cache/stats", s.handleSceneCacheStats)
		mgmt.GET("/decisions", s.handleRecentDecisions)
		mgmt.GET("/decisions/stats", s.handleDecisionStats)

		protected := mgmt.Group("", s.requireManagementAccess)
		protected.PUT("/overrides/:caller/:tier", s.handleSetOverride)
		protected.DELETE("/overrides/:caller/:tier", s.handleRemoveOverride)
		protected.DELETE("/overrides/:caller", s.handleRemoveAllOverrides)
		protected.POST("/classifier/sweep", s.handleClassifierSweep)
		protected.POST("/classifier/clear", s.handleClassifierClear)
	}

	return engine
}

// requestID attaches a short request identifier for log correlation.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// requireManagementAccess admits requests carrying the management key or
// arriving directly from localhost.
func (s *Server) requireManagementAccess(c *gin.Context) {
	if util.IsLocalhostDirect(c) {
		c.Next()
		return
	}

	key := c.GetHeader("X-Management-Key")
	if key == "" {
		auth := c.GetHeader("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			key = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if !s.cfg.CheckManagementKey(key) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "management key required"})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
