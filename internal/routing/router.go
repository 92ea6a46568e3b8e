// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package routing selects a backend configuration for a classified query.
// The router is pure in-memory decision logic over a registry: it never
// performs I/O and never instantiates inference clients.
package routing

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/routeAILocal/internal/classifier"
	"github.com/traylinx/routeAILocal/internal/registry"
)

// Capability names a backend feature a caller can require at selection time.
type Capability string

const (
	// CapabilityNone places no requirement on the selected backend.
	CapabilityNone Capability = ""
	// CapabilityVision requires image understanding.
	CapabilityVision Capability = "vision"
	// CapabilityStreaming requires incremental token delivery.
	CapabilityStreaming Capability = "streaming"
)

// ErrNoCapableBackend is returned when no registered default satisfies the
// requested capability. The caller decides the user-visible fallback; the
// router has no further options.
var ErrNoCapableBackend = errors.New("routing: no registered backend satisfies the required capability")

// Source records which resolution step produced a selection.
type Source string

const (
	SourceGrounding Source = "grounding"
	SourceOverride  Source = "override"
	SourceDefault   Source = "default"
	SourceFallback  Source = "capability_fallback"
)

// Selection is the outcome of one routing decision.
type Selection struct {
	Config registry.BackendConfig
	// Tier is the tier the selection was resolved against. It differs from
	// the requested tier when current_info is demoted to moderate or when
	// the capability search settled on another tier's default.
	Tier   classifier.Tier
	Source Source
}

// Router resolves (tier, caller, capability) to a backend configuration.
type Router struct {
	registry *registry.Registry
}

// New builds a Router over reg.
func New(reg *registry.Registry) *Router {
	return &Router{registry: reg}
}

// Select resolves a backend configuration for the given tier. Resolution
// order: grounding for current_info (else demote to moderate), then a
// capability-satisfying caller override, then the tier default, then a
// capability search over [tier, moderate, complex]. An override that fails
// the capability check is skipped, never returned degraded.
func (r *Router) Select(tier classifier.Tier, caller string, require Capability) (Selection, error) {
	requested := tier

	if tier == classifier.TierCurrentInfo {
		if cfg, ok := r.registry.Grounding(); ok {
			sel := Selection{Config: cfg, Tier: classifier.TierCurrentInfo, Source: SourceGrounding}
			r.logSelection(requested, caller, require, sel)
			return sel, nil
		}
		tier = classifier.TierModerate
	}

	if caller != "" {
		if cfg, ok := r.registry.Override(caller, tier); ok {
			if satisfies(cfg, require) {
				sel := Selection{Config: cfg, Tier: tier, Source: SourceOverride}
				r.logSelection(requested, caller, require, sel)
				return sel, nil
			}
			log.WithFields(log.Fields{
				"caller":     caller,
				"tier":       tier,
				"capability": require,
				"backend":    cfg.String(),
			}).Warn("Caller override lacks required capability, falling back to defaults")
		}
	}

	if cfg, ok := r.registry.Default(tier); ok && satisfies(cfg, require) {
		sel := Selection{Config: cfg, Tier: tier, Source: SourceDefault}
		r.logSelection(requested, caller, require, sel)
		return sel, nil
	}

	// Capability search preserves tier intent where possible: never below
	// the requested tier, only sideways then upward.
	for _, candidate := range []classifier.Tier{tier, classifier.TierModerate, classifier.TierComplex} {
		cfg, ok := r.registry.Default(candidate)
		if !ok || !satisfies(cfg, require) {
			continue
		}
		sel := Selection{Config: cfg, Tier: candidate, Source: SourceFallback}
		r.logSelection(requested, caller, require, sel)
		return sel, nil
	}

	return Selection{}, fmt.Errorf("%w: tier %q, capability %q", ErrNoCapableBackend, requested, require)
}

// AddOverride registers or replaces a per-caller backend for a tier.
func (r *Router) AddOverride(caller string, tier classifier.Tier, cfg registry.BackendConfig) error {
	if err := r.registry.SetOverride(caller, tier, cfg); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"caller":  caller,
		"tier":    tier,
		"backend": cfg.String(),
	}).Info("Registered caller override")
	return nil
}

// RemoveOverride drops caller's override for tier; an empty tier drops all
// of the caller's overrides. Removing the last override removes the
// caller's table entirely.
func (r *Router) RemoveOverride(caller string, tier classifier.Tier) {
	r.registry.RemoveOverride(caller, tier)
	log.WithFields(log.Fields{"caller": caller, "tier": tier}).Info("Removed caller override")
}

// ListDefaults returns a copy of the tier→default mapping.
func (r *Router) ListDefaults() map[classifier.Tier]registry.BackendConfig {
	return r.registry.Defaults()
}

// ListOverrides returns a copy of caller's override table, nil when none.
func (r *Router) ListOverrides(caller string) map[classifier.Tier]registry.BackendConfig {
	return r.registry.Overrides(caller)
}

// OverrideCallers returns the callers with registered overrides.
func (r *Router) OverrideCallers() []string {
	return r.registry.OverrideCallers()
}

func satisfies(cfg registry.BackendConfig, require Capability) bool {
	switch require {
	case CapabilityNone:
		return true
	case CapabilityVision:
		return cfg.SupportsVision
	case CapabilityStreaming:
		return cfg.SupportsStreaming
	default:
		return false
	}
}

func (r *Router) logSelection(requested classifier.Tier, caller string, require Capability, sel Selection) {
	log.WithFields(log.Fields{
		"requested_tier": requested,
		"resolved_tier":  sel.Tier,
		"caller":         caller,
		"capability":     require,
		"source":         sel.Source,
		"backend":        sel.Config.String(),
		"access_method":  sel.Config.AccessMethod(),
	}).Debug("Routed query to backend")
}
