// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/traylinx/routeAILocal/internal/classifier"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalRouting = `
routing:
  defaults:
    simple:
      provider: ollama
      model: qwen2.5:1.5b
      max-tokens: 512
      host: http://127.0.0.1:11434
    moderate:
      provider: ollama
      model: qwen2.5:7b
      max-tokens: 1024
      host: http://127.0.0.1:11434
    complex:
      provider: bedrock
      model: anthropic.claude-3-5-sonnet-20241022-v2:0
      max-tokens: 4096
      region: us-east-1
      vision: true
      cost-per-1k-input: 0.003
      cost-per-1k-output: 0.015
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalRouting))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Port != 8317 {
		t.Fatalf("Port = %d, want 8317 default", cfg.Port)
	}
	if cfg.Classifier.CacheTTLSeconds != 300 {
		t.Fatalf("CacheTTLSeconds = %d, want 300", cfg.Classifier.CacheTTLSeconds)
	}
	if cfg.SceneCache.BucketWidth != 20 || cfg.SceneCache.HardTTLSeconds != 30 || cfg.SceneCache.NoReadingTTLSeconds != 5 {
		t.Fatalf("scene cache defaults = %+v", cfg.SceneCache)
	}
	if cfg.DecisionLog.RetentionDays != 90 {
		t.Fatalf("RetentionDays = %d", cfg.DecisionLog.RetentionDays)
	}
	if cfg.Costing.TokenEstimator != "tiktoken" {
		t.Fatalf("TokenEstimator = %q", cfg.Costing.TokenEstimator)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "routing: [unclosed")); err == nil {
		t.Fatal("expected an error for invalid YAML")
	}
}

func TestLoadConfigHashesPlaintextManagementKey(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "management-key: hunter2\n"+minimalRouting))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !strings.HasPrefix(cfg.ManagementKey, "$2") {
		t.Fatalf("ManagementKey = %q, want a bcrypt hash", cfg.ManagementKey)
	}
	if !cfg.CheckManagementKey("hunter2") {
		t.Fatal("CheckManagementKey rejected the original secret")
	}
	if cfg.CheckManagementKey("wrong") {
		t.Fatal("CheckManagementKey accepted a wrong secret")
	}
}

func TestLoadConfigKeepsHashedManagementKey(t *testing.T) {
	hashed, err := hashSecret("hunter2")
	if err != nil {
		t.Fatalf("hashSecret: %v", err)
	}
	cfg, err := LoadConfig(writeConfig(t, "management-key: "+hashed+"\n"+minimalRouting))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ManagementKey != hashed {
		t.Fatal("already-hashed key was re-hashed")
	}
}

func TestCheckManagementKeyEmptyConfig(t *testing.T) {
	cfg := &Config{}
	if cfg.CheckManagementKey("anything") {
		t.Fatal("empty configured key must reject all candidates")
	}
}

func TestSanitizeSceneCacheClampsNoReading(t *testing.T) {
	cfg := &Config{}
	cfg.SceneCache.BucketWidth = -1
	cfg.SceneCache.HardTTLSeconds = 10
	cfg.SceneCache.NoReadingTTLSeconds = 60
	cfg.SanitizeSceneCache()

	if cfg.SceneCache.BucketWidth != 20 {
		t.Fatalf("BucketWidth = %f", cfg.SceneCache.BucketWidth)
	}
	if cfg.SceneCache.NoReadingTTLSeconds != 10 {
		t.Fatalf("NoReadingTTLSeconds = %d, want clamped to the hard ceiling", cfg.SceneCache.NoReadingTTLSeconds)
	}
}

func TestBuildRegistry(t *testing.T) {
	body := minimalRouting + `
  overrides:
    kiosk:
      simple:
        provider: openai
        model: gpt-4o-mini
        max-tokens: 512
  grounding:
    provider: gemini
    model: gemini-2.0-flash
    max-tokens: 2048
`
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	reg, err := cfg.BuildRegistry()
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}

	if _, ok := reg.Default(classifier.TierComplex); !ok {
		t.Fatal("complex default missing")
	}
	if override, ok := reg.Override("kiosk", classifier.TierSimple); !ok || override.ModelID != "gpt-4o-mini" {
		t.Fatalf("kiosk override = %+v, %v", override, ok)
	}
	if grounding, ok := reg.Grounding(); !ok || grounding.ModelID != "gemini-2.0-flash" {
		t.Fatalf("grounding = %+v, %v", grounding, ok)
	}
}

func TestBuildRegistryUnknownTier(t *testing.T) {
	body := strings.Replace(minimalRouting, "    simple:", "    urgent:", 1)
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := cfg.BuildRegistry(); err == nil {
		t.Fatal("expected an error for an unknown tier name")
	}
}

func TestBuildRegistryMissingCoreTier(t *testing.T) {
	body := `
routing:
  defaults:
    simple:
      provider: ollama
      model: qwen2.5:1.5b
      max-tokens: 512
`
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := cfg.BuildRegistry(); err == nil {
		t.Fatal("expected an error when moderate and complex defaults are missing")
	}
}

func TestResolveBedrockFromEnv(t *testing.T) {
	t.Setenv("BEDROCK_MODEL_ID", "us.anthropic.claude-3-5-haiku-20241022-v1:0")
	t.Setenv("BEDROCK_REGION", "us-west-2")
	t.Setenv("BEDROCK_MAX_TOKENS", "")
	t.Setenv("USE_INFERENCE_PROFILE", "")
	t.Setenv("INFERENCE_PROFILE_ID", "")

	body := strings.Replace(minimalRouting,
		"      model: anthropic.claude-3-5-sonnet-20241022-v2:0\n", "", 1)
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	backend := cfg.Routing.Defaults["complex"]
	if backend.ModelID != "anthropic.claude-3-5-haiku-20241022-v1:0" {
		t.Fatalf("ModelID = %q, want env-derived base model", backend.ModelID)
	}
	if !backend.UseInferenceProfile {
		t.Fatal("profile addressing not auto-detected from env")
	}
	if backend.Region != "us-west-2" {
		t.Fatalf("Region = %q", backend.Region)
	}
	if backend.MaxTokens != 4096 {
		t.Fatalf("MaxTokens = %d, want the explicit yaml value kept", backend.MaxTokens)
	}
	if !backend.SupportsVision {
		t.Fatal("vision flag from yaml was dropped")
	}
}

func TestClassifierOptions(t *testing.T) {
	body := minimalRouting + `
classifier:
  cache-ttl-seconds: 60
  current-info-patterns:
    - "(?i)\\bbreaking news\\b"
`
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	opts := cfg.ClassifierOptions()
	if opts.CacheTTL != 60*time.Second {
		t.Fatalf("CacheTTL = %v", opts.CacheTTL)
	}
	if len(opts.CurrentInfoPatterns) != 1 {
		t.Fatalf("CurrentInfoPatterns = %v", opts.CurrentInfoPatterns)
	}
	if _, err := classifier.New(opts); err != nil {
		t.Fatalf("classifier.New with loaded options: %v", err)
	}
}

func TestRegistryValidationSurfacesFromYAML(t *testing.T) {
	body := strings.Replace(minimalRouting, "provider: ollama", "provider: azure", 1)
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := cfg.BuildRegistry(); err == nil {
		t.Fatal("expected an error for an invalid provider in yaml")
	}
}
