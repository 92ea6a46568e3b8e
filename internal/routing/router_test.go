// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"errors"
	"testing"

	"github.com/traylinx/routeAILocal/internal/classifier"
	"github.com/traylinx/routeAILocal/internal/registry"
)

func newRegistry(t *testing.T, grounding *registry.BackendConfig, visionTiers ...classifier.Tier) *registry.Registry {
	t.Helper()

	vision := make(map[classifier.Tier]bool, len(visionTiers))
	for _, tier := range visionTiers {
		vision[tier] = true
	}
	defaults := map[classifier.Tier]registry.BackendConfig{
		classifier.TierSimple: {
			Provider: registry.ProviderOllama, ModelID: "qwen2.5:1.5b", MaxTokens: 512,
			Host: "http://127.0.0.1:11434", SupportsVision: vision[classifier.TierSimple],
		},
		classifier.TierModerate: {
			Provider: registry.ProviderOllama, ModelID: "qwen2.5:7b", MaxTokens: 1024,
			Host: "http://127.0.0.1:11434", SupportsVision: vision[classifier.TierModerate],
		},
		classifier.TierComplex: {
			Provider: registry.ProviderBedrock, ModelID: "anthropic.claude-3-5-sonnet-20241022-v2:0",
			MaxTokens: 4096, Region: "us-east-1", SupportsVision: vision[classifier.TierComplex],
			CostPer1KInput: 0.003, CostPer1KOutput: 0.015,
		},
	}
	reg, err := registry.New(defaults, nil, grounding)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return reg
}

func TestSelectDefaultPerTier(t *testing.T) {
	r := New(newRegistry(t, nil))
	for _, tier := range []classifier.Tier{classifier.TierSimple, classifier.TierModerate, classifier.TierComplex} {
		sel, err := r.Select(tier, "", CapabilityNone)
		if err != nil {
			t.Fatalf("Select(%s): %v", tier, err)
		}
		if sel.Source != SourceDefault {
			t.Fatalf("Select(%s) source = %q, want default", tier, sel.Source)
		}
		if sel.Tier != tier {
			t.Fatalf("Select(%s) resolved tier = %q", tier, sel.Tier)
		}
	}
}

func TestSelectCurrentInfoPrefersGrounding(t *testing.T) {
	grounding := &registry.BackendConfig{
		Provider: registry.ProviderGemini, ModelID: "gemini-2.0-flash", MaxTokens: 2048,
	}
	r := New(newRegistry(t, grounding))

	sel, err := r.Select(classifier.TierCurrentInfo, "", CapabilityNone)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Source != SourceGrounding {
		t.Fatalf("source = %q, want grounding", sel.Source)
	}
	if sel.Config.ModelID != "gemini-2.0-flash" {
		t.Fatalf("ModelID = %q", sel.Config.ModelID)
	}
}

func TestSelectCurrentInfoDemotesToModerate(t *testing.T) {
	r := New(newRegistry(t, nil))

	demoted, err := r.Select(classifier.TierCurrentInfo, "", CapabilityNone)
	if err != nil {
		t.Fatalf("Select(current_info): %v", err)
	}
	moderate, err := r.Select(classifier.TierModerate, "", CapabilityNone)
	if err != nil {
		t.Fatalf("Select(moderate): %v", err)
	}
	if demoted.Config != moderate.Config {
		t.Fatalf("current_info without grounding = %+v, want the moderate default %+v", demoted.Config, moderate.Config)
	}
	if demoted.Tier != classifier.TierModerate {
		t.Fatalf("resolved tier = %q, want moderate", demoted.Tier)
	}
}

func TestSelectOverridePrecedence(t *testing.T) {
	r := New(newRegistry(t, nil))
	override := registry.BackendConfig{
		Provider: registry.ProviderAnthropic, ModelID: "claude-3-5-haiku-latest", MaxTokens: 1024,
	}
	if err := r.AddOverride("kiosk", classifier.TierSimple, override); err != nil {
		t.Fatalf("AddOverride: %v", err)
	}

	sel, err := r.Select(classifier.TierSimple, "kiosk", CapabilityNone)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Source != SourceOverride {
		t.Fatalf("source = %q, want override", sel.Source)
	}
	if sel.Config.ModelID != override.ModelID {
		t.Fatalf("ModelID = %q", sel.Config.ModelID)
	}

	// A different caller still gets the default.
	other, err := r.Select(classifier.TierSimple, "wallboard", CapabilityNone)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if other.Source != SourceDefault {
		t.Fatalf("source = %q, want default for a caller without overrides", other.Source)
	}
}

func TestSelectIgnoresCapabilityDeficientOverride(t *testing.T) {
	r := New(newRegistry(t, nil, classifier.TierModerate))
	override := registry.BackendConfig{
		Provider: registry.ProviderOpenAI, ModelID: "gpt-4o-mini", MaxTokens: 512,
	}
	if err := r.AddOverride("kiosk", classifier.TierModerate, override); err != nil {
		t.Fatalf("AddOverride: %v", err)
	}

	sel, err := r.Select(classifier.TierModerate, "kiosk", CapabilityVision)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Source != SourceDefault {
		t.Fatalf("source = %q, want the vision-capable default, never a degraded override", sel.Source)
	}
	if !sel.Config.SupportsVision {
		t.Fatal("selected config lacks vision")
	}
}

func TestSelectCapabilityFallbackUpgrades(t *testing.T) {
	// Only the complex default has vision.
	r := New(newRegistry(t, nil, classifier.TierComplex))

	sel, err := r.Select(classifier.TierSimple, "", CapabilityVision)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Source != SourceFallback {
		t.Fatalf("source = %q, want capability_fallback", sel.Source)
	}
	if sel.Tier != classifier.TierComplex {
		t.Fatalf("resolved tier = %q, want complex", sel.Tier)
	}
	if !sel.Config.SupportsVision {
		t.Fatal("fallback config lacks vision")
	}
}

func TestSelectCapabilityUnsatisfiable(t *testing.T) {
	r := New(newRegistry(t, nil))

	_, err := r.Select(classifier.TierSimple, "", CapabilityVision)
	if err == nil {
		t.Fatal("expected an error when no default supports vision")
	}
	if !errors.Is(err, ErrNoCapableBackend) {
		t.Fatalf("err = %v, want ErrNoCapableBackend", err)
	}
}

func TestSelectStreamingCapability(t *testing.T) {
	reg := newRegistry(t, nil)
	r := New(reg)

	if _, err := r.Select(classifier.TierSimple, "", CapabilityStreaming); err == nil {
		t.Fatal("expected an error when no default supports streaming")
	}
}

func TestRemoveOverrideRoundTrip(t *testing.T) {
	r := New(newRegistry(t, nil))
	override := registry.BackendConfig{
		Provider: registry.ProviderOpenAI, ModelID: "gpt-4o-mini", MaxTokens: 512,
	}
	if err := r.AddOverride("kiosk", classifier.TierSimple, override); err != nil {
		t.Fatalf("AddOverride: %v", err)
	}
	r.RemoveOverride("kiosk", classifier.TierSimple)

	if table := r.ListOverrides("kiosk"); table != nil {
		t.Fatalf("ListOverrides = %v, want nil after last override removed", table)
	}
	sel, err := r.Select(classifier.TierSimple, "kiosk", CapabilityNone)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Source != SourceDefault {
		t.Fatalf("source = %q, want default after removal", sel.Source)
	}
}

func TestListDefaults(t *testing.T) {
	r := New(newRegistry(t, nil))
	defaults := r.ListDefaults()
	for _, tier := range []classifier.Tier{classifier.TierSimple, classifier.TierModerate, classifier.TierComplex} {
		if _, ok := defaults[tier]; !ok {
			t.Fatalf("ListDefaults missing %s", tier)
		}
	}
}
