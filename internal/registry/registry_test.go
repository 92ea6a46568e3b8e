// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"reflect"
	"sync"
	"testing"

	"github.com/traylinx/routeAILocal/internal/classifier"
)

func testDefaults() map[classifier.Tier]BackendConfig {
	return map[classifier.Tier]BackendConfig{
		classifier.TierSimple: {
			Provider: ProviderOllama, ModelID: "qwen2.5:1.5b", MaxTokens: 512, Host: "http://127.0.0.1:11434",
		},
		classifier.TierModerate: {
			Provider: ProviderOllama, ModelID: "qwen2.5:7b", MaxTokens: 1024, Host: "http://127.0.0.1:11434",
		},
		classifier.TierComplex: {
			Provider: ProviderBedrock, ModelID: "anthropic.claude-3-5-sonnet-20241022-v2:0",
			MaxTokens: 4096, Region: "us-east-1", SupportsVision: true,
			CostPer1KInput: 0.003, CostPer1KOutput: 0.015,
		},
	}
}

func mustRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(testDefaults(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNewRequiresCoreTiers(t *testing.T) {
	defaults := testDefaults()
	delete(defaults, classifier.TierModerate)
	if _, err := New(defaults, nil, nil); err == nil {
		t.Fatal("expected an error when the moderate default is missing")
	}
}

func TestNewRejectsInvalidDefault(t *testing.T) {
	defaults := testDefaults()
	bad := defaults[classifier.TierSimple]
	bad.MaxTokens = 0
	defaults[classifier.TierSimple] = bad
	if _, err := New(defaults, nil, nil); err == nil {
		t.Fatal("expected an error for a default with non-positive max tokens")
	}
}

func TestNewRejectsInvalidOverride(t *testing.T) {
	overrides := map[string]map[classifier.Tier]BackendConfig{
		"scheduler": {
			classifier.TierSimple: {Provider: "azure", ModelID: "gpt-4o-mini", MaxTokens: 256},
		},
	}
	if _, err := New(testDefaults(), overrides, nil); err == nil {
		t.Fatal("expected an error for an override with an unknown provider")
	}
}

func TestNewRejectsInvalidGrounding(t *testing.T) {
	grounding := &BackendConfig{Provider: ProviderGemini, ModelID: "", MaxTokens: 1024}
	if _, err := New(testDefaults(), nil, grounding); err == nil {
		t.Fatal("expected an error for a grounding config without a model")
	}
}

func TestNewCopiesInputs(t *testing.T) {
	defaults := testDefaults()
	r, err := New(defaults, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Mutating the caller's map must not leak into the registry.
	mutated := defaults[classifier.TierSimple]
	mutated.ModelID = "something-else"
	defaults[classifier.TierSimple] = mutated

	got, ok := r.Default(classifier.TierSimple)
	if !ok {
		t.Fatal("Default(simple) missing")
	}
	if got.ModelID != "qwen2.5:1.5b" {
		t.Fatalf("ModelID = %q, registry aliased the input map", got.ModelID)
	}
}

func TestGrounding(t *testing.T) {
	r := mustRegistry(t)
	if _, ok := r.Grounding(); ok {
		t.Fatal("Grounding() reported a backend on a registry built without one")
	}

	grounding := &BackendConfig{
		Provider: ProviderGemini, ModelID: "gemini-2.0-flash", MaxTokens: 2048,
		CostPer1KInput: 0.0001, CostPer1KOutput: 0.0004,
	}
	r2, err := New(testDefaults(), nil, grounding)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, ok := r2.Grounding()
	if !ok {
		t.Fatal("Grounding() missing")
	}
	if got.ModelID != "gemini-2.0-flash" {
		t.Fatalf("Grounding ModelID = %q", got.ModelID)
	}
}

func TestSetOverrideAndLookup(t *testing.T) {
	r := mustRegistry(t)
	cfg := BackendConfig{Provider: ProviderAnthropic, ModelID: "claude-3-5-haiku-latest", MaxTokens: 1024}

	if err := r.SetOverride("kiosk", classifier.TierSimple, cfg); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}
	got, ok := r.Override("kiosk", classifier.TierSimple)
	if !ok {
		t.Fatal("Override(kiosk, simple) missing after SetOverride")
	}
	if got.ModelID != cfg.ModelID {
		t.Fatalf("Override ModelID = %q", got.ModelID)
	}
	if _, ok := r.Override("kiosk", classifier.TierComplex); ok {
		t.Fatal("Override(kiosk, complex) should be absent")
	}
	if _, ok := r.Override("nobody", classifier.TierSimple); ok {
		t.Fatal("Override(nobody, simple) should be absent")
	}
}

func TestSetOverrideValidation(t *testing.T) {
	r := mustRegistry(t)
	good := BackendConfig{Provider: ProviderOpenAI, ModelID: "gpt-4o-mini", MaxTokens: 512}

	if err := r.SetOverride("", classifier.TierSimple, good); err == nil {
		t.Fatal("expected an error for an empty caller identity")
	}
	if err := r.SetOverride("kiosk", "urgent", good); err == nil {
		t.Fatal("expected an error for an unknown tier")
	}
	bad := good
	bad.CostPer1KInput = -1
	if err := r.SetOverride("kiosk", classifier.TierSimple, bad); err == nil {
		t.Fatal("expected an error for a negative cost")
	}
}

func TestRemoveOverrideDropsEmptyCaller(t *testing.T) {
	r := mustRegistry(t)
	cfg := BackendConfig{Provider: ProviderOpenAI, ModelID: "gpt-4o-mini", MaxTokens: 512}
	if err := r.SetOverride("kiosk", classifier.TierSimple, cfg); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}
	if err := r.SetOverride("kiosk", classifier.TierComplex, cfg); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}

	r.RemoveOverride("kiosk", classifier.TierSimple)
	if _, ok := r.Override("kiosk", classifier.TierSimple); ok {
		t.Fatal("simple override survived removal")
	}
	if _, ok := r.Override("kiosk", classifier.TierComplex); !ok {
		t.Fatal("complex override went missing")
	}

	r.RemoveOverride("kiosk", classifier.TierComplex)
	if callers := r.OverrideCallers(); len(callers) != 0 {
		t.Fatalf("OverrideCallers() = %v, want empty after last override removed", callers)
	}
}

func TestRemoveOverrideAllTiers(t *testing.T) {
	r := mustRegistry(t)
	cfg := BackendConfig{Provider: ProviderOpenAI, ModelID: "gpt-4o-mini", MaxTokens: 512}
	for _, tier := range []classifier.Tier{classifier.TierSimple, classifier.TierModerate} {
		if err := r.SetOverride("kiosk", tier, cfg); err != nil {
			t.Fatalf("SetOverride: %v", err)
		}
	}

	r.RemoveOverride("kiosk", "")
	if r.Overrides("kiosk") != nil {
		t.Fatal("caller table survived a full removal")
	}

	// Removing for an unknown caller is a no-op.
	r.RemoveOverride("ghost", classifier.TierSimple)
}

func TestDefaultsSnapshot(t *testing.T) {
	r := mustRegistry(t)
	snap := r.Defaults()
	if !reflect.DeepEqual(snap, testDefaults()) {
		t.Fatalf("Defaults() = %v", snap)
	}

	// Mutating the snapshot must not touch the registry.
	mutated := snap[classifier.TierSimple]
	mutated.ModelID = "tampered"
	snap[classifier.TierSimple] = mutated
	got, _ := r.Default(classifier.TierSimple)
	if got.ModelID == "tampered" {
		t.Fatal("Defaults() aliased internal state")
	}
}

func TestOverrideCallersSorted(t *testing.T) {
	r := mustRegistry(t)
	cfg := BackendConfig{Provider: ProviderOpenAI, ModelID: "gpt-4o-mini", MaxTokens: 512}
	for _, caller := range []string{"zeta", "alpha", "mid"} {
		if err := r.SetOverride(caller, classifier.TierSimple, cfg); err != nil {
			t.Fatalf("SetOverride: %v", err)
		}
	}
	want := []string{"alpha", "mid", "zeta"}
	if got := r.OverrideCallers(); !reflect.DeepEqual(got, want) {
		t.Fatalf("OverrideCallers() = %v, want %v", got, want)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := mustRegistry(t)
	cfg := BackendConfig{Provider: ProviderOpenAI, ModelID: "gpt-4o-mini", MaxTokens: 512}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = r.SetOverride("kiosk", classifier.TierSimple, cfg)
				r.Override("kiosk", classifier.TierSimple)
				r.Default(classifier.TierModerate)
				r.RemoveOverride("kiosk", classifier.TierSimple)
			}
		}()
	}
	wg.Wait()
}
