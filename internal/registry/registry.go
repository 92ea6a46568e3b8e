// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/traylinx/routeAILocal/internal/classifier"
)

// Registry maps complexity tiers to backend configurations, with optional
// per-caller override tables and an optional grounding backend used only for
// current_info queries. All state is in-memory; mutation and lookup are safe
// for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	defaults  map[classifier.Tier]BackendConfig
	overrides map[string]map[classifier.Tier]BackendConfig
	grounding *BackendConfig
}

// requiredTiers must all have default configurations. TierCurrentInfo is
// absent because it legitimately falls back to TierModerate.
var requiredTiers = []classifier.Tier{
	classifier.TierSimple,
	classifier.TierModerate,
	classifier.TierComplex,
}

// New validates every supplied configuration and builds a Registry. It fails
// when a config is malformed or when the default mapping omits any of
// simple, moderate, complex.
func New(defaults map[classifier.Tier]BackendConfig, overrides map[string]map[classifier.Tier]BackendConfig, grounding *BackendConfig) (*Registry, error) {
	for _, tier := range requiredTiers {
		if _, ok := defaults[tier]; !ok {
			return nil, fmt.Errorf("registry: missing default configuration for tier %q", tier)
		}
	}
	for tier, cfg := range defaults {
		if !tier.Valid() {
			return nil, fmt.Errorf("registry: unknown tier %q in defaults", tier)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("registry: default for tier %q: %w", tier, err)
		}
	}
	for caller, table := range overrides {
		if caller == "" {
			return nil, fmt.Errorf("registry: override caller identity must not be empty")
		}
		for tier, cfg := range table {
			if !tier.Valid() {
				return nil, fmt.Errorf("registry: unknown tier %q in overrides for %q", tier, caller)
			}
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("registry: override %s/%s: %w", caller, tier, err)
			}
		}
	}
	if grounding != nil {
		if err := grounding.Validate(); err != nil {
			return nil, fmt.Errorf("registry: grounding configuration: %w", err)
		}
	}

	r := &Registry{
		defaults:  make(map[classifier.Tier]BackendConfig, len(defaults)),
		overrides: make(map[string]map[classifier.Tier]BackendConfig, len(overrides)),
	}
	for tier, cfg := range defaults {
		r.defaults[tier] = cfg
	}
	for caller, table := range overrides {
		copied := make(map[classifier.Tier]BackendConfig, len(table))
		for tier, cfg := range table {
			copied[tier] = cfg
		}
		r.overrides[caller] = copied
	}
	if grounding != nil {
		g := *grounding
		r.grounding = &g
	}
	return r, nil
}

// Replace swaps this registry's tables for those of fresh, atomically from
// the perspective of concurrent lookups. Config hot-reload uses it so
// long-lived references to the registry observe the new tables.
func (r *Registry) Replace(fresh *Registry) {
	fresh.mu.RLock()
	defaults := fresh.defaults
	overrides := fresh.overrides
	grounding := fresh.grounding
	fresh.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = defaults
	r.overrides = overrides
	r.grounding = grounding
}

// Default returns the default configuration for tier.
func (r *Registry) Default(tier classifier.Tier) (BackendConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.defaults[tier]
	return cfg, ok
}

// Override returns caller's override for tier, if any.
func (r *Registry) Override(caller string, tier classifier.Tier) (BackendConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table, ok := r.overrides[caller]
	if !ok {
		return BackendConfig{}, false
	}
	cfg, ok := table[tier]
	return cfg, ok
}

// Grounding returns the grounding configuration registered for current_info
// queries, if any.
func (r *Registry) Grounding() (BackendConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.grounding == nil {
		return BackendConfig{}, false
	}
	return *r.grounding, true
}

// SetOverride adds or replaces caller's override for tier.
func (r *Registry) SetOverride(caller string, tier classifier.Tier, cfg BackendConfig) error {
	if caller == "" {
		return fmt.Errorf("registry: override caller identity must not be empty")
	}
	if !tier.Valid() {
		return fmt.Errorf("registry: unknown tier %q", tier)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overrides[caller] == nil {
		r.overrides[caller] = make(map[classifier.Tier]BackendConfig)
	}
	r.overrides[caller][tier] = cfg
	return nil
}

// RemoveOverride deletes caller's override for tier. With an empty tier it
// deletes every override for the caller. Removing the last override for a
// caller removes the caller's table entirely.
func (r *Registry) RemoveOverride(caller string, tier classifier.Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, ok := r.overrides[caller]
	if !ok {
		return
	}
	if tier == "" {
		delete(r.overrides, caller)
		return
	}
	delete(table, tier)
	if len(table) == 0 {
		delete(r.overrides, caller)
	}
}

// Defaults returns a copy of the tier→default mapping.
func (r *Registry) Defaults() map[classifier.Tier]BackendConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[classifier.Tier]BackendConfig, len(r.defaults))
	for tier, cfg := range r.defaults {
		out[tier] = cfg
	}
	return out
}

// Overrides returns a copy of caller's override table, or nil when the
// caller has none.
func (r *Registry) Overrides(caller string) map[classifier.Tier]BackendConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table, ok := r.overrides[caller]
	if !ok {
		return nil
	}
	out := make(map[classifier.Tier]BackendConfig, len(table))
	for tier, cfg := range table {
		out[tier] = cfg
	}
	return out
}

// OverrideCallers returns the sorted list of caller identities with
// overrides.
func (r *Registry) OverrideCallers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	callers := make([]string, 0, len(r.overrides))
	for caller := range r.overrides {
		callers = append(callers, caller)
	}
	sort.Strings(callers)
	return callers
}
