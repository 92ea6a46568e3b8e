// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch runs the classify-select-invoke loop for one question.
// The orchestrator owns no I/O of its own beyond its collaborators: the
// backend invoker performs inference, the memory store supplies context,
// and the decision recorder persists outcomes. All collaborators are
// injected at construction.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/routeAILocal/internal/classifier"
	"github.com/traylinx/routeAILocal/internal/costing"
	"github.com/traylinx/routeAILocal/internal/declog"
	"github.com/traylinx/routeAILocal/internal/memory"
	"github.com/traylinx/routeAILocal/internal/registry"
	"github.com/traylinx/routeAILocal/internal/routing"
	"github.com/traylinx/routeAILocal/internal/scenecache"
)

// Request is one question to answer.
type Request struct {
	// Query is the raw question text.
	Query string
	// Caller identifies the requesting component for override lookup.
	Caller string
	// ConversationID is echoed back to the transport untouched.
	ConversationID string
	// RequiresVision marks queries that need image understanding.
	RequiresVision bool
	// SceneSource identifies the sensor behind a vision query; with a
	// non-empty value the scene cache is consulted before invoking.
	SceneSource string
	// SceneReading is the sensor's most recent continuous reading, nil
	// when unavailable.
	SceneReading *float64
}

// Result is the outcome of one dispatch.
type Result struct {
	Answer         string            `json:"answer"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Tier           classifier.Tier   `json:"tier"`
	ResolvedTier   classifier.Tier   `json:"resolved_tier"`
	Provider       registry.Provider `json:"provider"`
	Model          string            `json:"model"`
	SceneCacheHit  bool              `json:"scene_cache_hit"`
	LatencyMs      int64             `json:"latency_ms"`
	CostEstimate   costing.Estimate  `json:"cost_estimate"`
	Source         routing.Source    `json:"source"`
}

// BackendInvoker executes inference against a selected backend. The
// orchestrator never talks to a model endpoint directly.
type BackendInvoker interface {
	Invoke(ctx context.Context, backend registry.BackendConfig, prompt string) (string, error)
}

// DecisionRecorder persists routing outcomes. *declog.Recorder satisfies it.
type DecisionRecorder interface {
	Record(ctx context.Context, d *declog.Decision) error
}

// Orchestrator wires the classifier, router, caches, and invoker.
type Orchestrator struct {
	classifier *classifier.Classifier
	router     *routing.Router
	estimator  *costing.Estimator
	invoker    BackendInvoker

	// Optional collaborators; nil disables the feature.
	recorder   DecisionRecorder
	memories   *memory.Store
	sceneCache *scenecache.Cache
	daysBack   int

	now func() time.Time
}

// Options configures optional collaborators.
type Options struct {
	Recorder       DecisionRecorder
	Memories       *memory.Store
	SceneCache     *scenecache.Cache
	MemoryDaysBack int
}

// New builds an Orchestrator. classifier, router, estimator, and invoker
// are required.
func New(cls *classifier.Classifier, router *routing.Router, estimator *costing.Estimator, invoker BackendInvoker, opts Options) (*Orchestrator, error) {
	if cls == nil || router == nil || estimator == nil || invoker == nil {
		return nil, fmt.Errorf("dispatch: classifier, router, estimator, and invoker are all required")
	}
	daysBack := opts.MemoryDaysBack
	if daysBack <= 0 {
		daysBack = memory.DefaultDaysBack
	}
	return &Orchestrator{
		classifier: cls,
		router:     router,
		estimator:  estimator,
		invoker:    invoker,
		recorder:   opts.Recorder,
		memories:   opts.Memories,
		sceneCache: opts.SceneCache,
		daysBack:   daysBack,
		now:        time.Now,
	}, nil
}

// Handle answers one request: scene-cache reuse for vision queries, then
// classify, select, invoke, and record.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Result, error) {
	started := o.now()

	if req.RequiresVision && req.SceneSource != "" && o.sceneCache != nil {
		if answer, ok := o.sceneCache.Lookup(req.SceneSource, req.Query, req.SceneReading); ok {
			result := Result{
				Answer:         answer,
				ConversationID: req.ConversationID,
				SceneCacheHit:  true,
				LatencyMs:      o.now().Sub(started).Milliseconds(),
			}
			o.record(ctx, req, result, "")
			return result, nil
		}
	}

	tier := o.classifier.Classify(req.Query)

	capability := routing.CapabilityNone
	if req.RequiresVision {
		capability = routing.CapabilityVision
	}

	sel, err := o.router.Select(tier, req.Caller, capability)
	if err != nil {
		o.record(ctx, req, Result{Tier: tier, LatencyMs: o.now().Sub(started).Milliseconds()}, err.Error())
		return Result{}, err
	}

	prompt := req.Query
	if o.memories != nil {
		if memCtx, err := o.memories.LoadContext(o.daysBack); err != nil {
			log.Warnf("Failed to load memory context: %v", err)
		} else if memCtx != "" {
			prompt = memCtx + "\n\n---\n\n" + req.Query
		}
	}

	estimate := o.estimator.EstimateCost(prompt, sel.Config.MaxTokens, costing.CostTable{
		Per1KInput:  sel.Config.CostPer1KInput,
		Per1KOutput: sel.Config.CostPer1KOutput,
	})

	answer, err := o.invoker.Invoke(ctx, sel.Config, prompt)
	latency := o.now().Sub(started).Milliseconds()
	result := Result{
		Answer:         strings.TrimSpace(answer),
		ConversationID: req.ConversationID,
		Tier:           tier,
		ResolvedTier:   sel.Tier,
		Provider:       sel.Config.Provider,
		Model:          sel.Config.EffectiveModelID(),
		LatencyMs:      latency,
		CostEstimate:   estimate,
		Source:         sel.Source,
	}
	if err != nil {
		o.record(ctx, req, result, err.Error())
		return Result{}, fmt.Errorf("dispatch: backend invocation failed: %w", err)
	}

	if req.RequiresVision && req.SceneSource != "" && o.sceneCache != nil {
		o.sceneCache.Store(req.SceneSource, req.Query, req.SceneReading, result.Answer, estimate.MaxTotalUSD)
	}

	o.record(ctx, req, result, "")
	log.WithFields(log.Fields{
		"tier":       tier,
		"backend":    sel.Config.String(),
		"latency_ms": latency,
	}).Debug("Dispatched question")
	return result, nil
}

func (o *Orchestrator) record(ctx context.Context, req Request, result Result, errMsg string) {
	if o.recorder == nil {
		return
	}
	d := &declog.Decision{
		QueryHash:       declog.HashQuery(req.Query),
		Tier:            string(result.Tier),
		ResolvedTier:    string(result.ResolvedTier),
		Source:          string(result.Source),
		Caller:          req.Caller,
		Provider:        string(result.Provider),
		Model:           result.Model,
		CacheHit:        result.SceneCacheHit,
		LatencyMs:       result.LatencyMs,
		CostEstimateUSD: result.CostEstimate.MaxTotalUSD,
		ErrorMessage:    errMsg,
	}
	if err := o.recorder.Record(ctx, d); err != nil {
		log.Warnf("Failed to record routing decision: %v", err)
	}
}

// SetClock replaces the time source. Tests only.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}
