// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/traylinx/routeAILocal/internal/classifier"
	"github.com/traylinx/routeAILocal/internal/dispatch"
	"github.com/traylinx/routeAILocal/internal/registry"
	"github.com/traylinx/routeAILocal/internal/routing"
)

// RouteRequest is the body of POST /v1/route.
type RouteRequest struct {
	Query          string   `json:"query" binding:"required"`
	Caller         string   `json:"caller"`
	ConversationID string   `json:"conversation_id"`
	RequiresVision bool     `json:"requires_vision"`
	SceneSource    string   `json:"scene_source"`
	SceneReading   *float64 `json:"scene_reading"`
}

// handleRoute classifies, selects, and invokes for one question.
// POST /v1/route
func (s *Server) handleRoute(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	result, err := s.orchestrator.Handle(c.Request.Context(), dispatch.Request{
		Query:          req.Query,
		Caller:         req.Caller,
		ConversationID: req.ConversationID,
		RequiresVision: req.RequiresVision,
		SceneSource:    req.SceneSource,
		SceneReading:   req.SceneReading,
	})
	if err != nil {
		if errors.Is(err, routing.ErrNoCapableBackend) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleClassify returns the tier for a query without dispatching it.
// POST /v1/classify
func (s *Server) handleClassify(c *gin.Context) {
	var req struct {
		Query string `json:"query" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	tier := s.classifier.Classify(req.Query)
	c.JSON(http.StatusOK, gin.H{
		"tier":               tier,
		"needs_current_info": tier == classifier.TierCurrentInfo,
	})
}

// handleListDefaults returns the tier default table.
// GET /v0/management/defaults
func (s *Server) handleListDefaults(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"defaults": s.router.ListDefaults()})
}

// handleListOverrides returns one caller's override table.
// GET /v0/management/overrides/:caller
func (s *Server) handleListOverrides(c *gin.Context) {
	caller := c.Param("caller")
	overrides := s.router.ListOverrides(caller)
	if overrides == nil {
		c.JSON(http.StatusOK, gin.H{"caller": caller, "overrides": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"caller": caller, "overrides": overrides})
}

// handleSetOverride registers a per-caller backend for a tier.
// PUT /v0/management/overrides/:caller/:tier
func (s *Server) handleSetOverride(c *gin.Context) {
	tier, err := classifier.ParseTier(c.Param("tier"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var backend registry.BackendConfig
	if err := c.ShouldBindJSON(&backend); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid backend configuration"})
		return
	}
	if err := s.router.AddOverride(c.Param("caller"), tier, backend); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

// handleRemoveOverride drops one override.
// DELETE /v0/management/overrides/:caller/:tier
func (s *Server) handleRemoveOverride(c *gin.Context) {
	tier, err := classifier.ParseTier(c.Param("tier"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.router.RemoveOverride(c.Param("caller"), tier)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleRemoveAllOverrides drops every override for a caller.
// DELETE /v0/management/overrides/:caller
func (s *Server) handleRemoveAllOverrides(c *gin.Context) {
	s.router.RemoveOverride(c.Param("caller"), "")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleClassifierStats returns classifier counters.
// GET /v0/management/classifier/stats
func (s *Server) handleClassifierStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.classifier.CacheStats())
}

// handleClassifierSweep eagerly removes expired classification entries.
// POST /v0/management/classifier/sweep
func (s *Server) handleClassifierSweep(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"removed": s.classifier.SweepCache()})
}

// handleClassifierClear drops the classification cache.
// POST /v0/management/classifier/clear
func (s *Server) handleClassifierClear(c *gin.Context) {
	s.classifier.ClearCache()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleSceneCacheStats returns scene cache effectiveness counters.
// GET /v0/management/scene-cache/stats
func (s *Server) handleSceneCacheStats(c *gin.Context) {
	if s.sceneCache == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "stats": s.sceneCache.Stats()})
}

// handleRecentDecisions returns the newest routing decisions.
// GET /v0/management/decisions?limit=N
func (s *Server) handleRecentDecisions(c *gin.Context) {
	if s.recorder == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	decisions, err := s.recorder.GetRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "decisions": decisions})
}

// handleDecisionStats returns aggregates over the decision log.
// GET /v0/management/decisions/stats
func (s *Server) handleDecisionStats(c *gin.Context) {
	if s.recorder == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	stats, err := s.recorder.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "stats": stats})
}
