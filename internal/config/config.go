// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and sanitizes the YAML configuration that wires the
// classifier, router, caches, and server together. Configuration is read
// once at startup (or on a watcher-triggered reload) and treated as
// immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/traylinx/routeAILocal/internal/classifier"
	"github.com/traylinx/routeAILocal/internal/registry"
)

// ClassifierConfig tunes the query classifier.
type ClassifierConfig struct {
	// CacheTTLSeconds is how long a classification stays cached.
	CacheTTLSeconds int `yaml:"cache-ttl-seconds"`
	// CurrentInfoPatterns replaces the built-in current-info vocabulary
	// when non-empty.
	CurrentInfoPatterns []string `yaml:"current-info-patterns"`
	// ExtraSimpleFactPatterns appends to the built-in short-factual list.
	ExtraSimpleFactPatterns []string `yaml:"extra-simple-fact-patterns"`
}

// RoutingConfig declares the tier defaults, per-caller overrides, and the
// optional grounding backend.
type RoutingConfig struct {
	Defaults  map[string]registry.BackendConfig            `yaml:"defaults"`
	Overrides map[string]map[string]registry.BackendConfig `yaml:"overrides"`
	Grounding *registry.BackendConfig                      `yaml:"grounding"`
}

// SceneCacheConfig tunes the scene-similarity cache.
type SceneCacheConfig struct {
	BucketWidth         float64 `yaml:"bucket-width"`
	HardTTLSeconds      int     `yaml:"hard-ttl-seconds"`
	NoReadingTTLSeconds int     `yaml:"no-reading-ttl-seconds"`
}

// DecisionLogConfig controls the SQLite routing-decision log.
type DecisionLogConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention-days"`
}

// MemoryConfig controls the markdown memory store.
type MemoryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	DaysBack int    `yaml:"days-back"`
}

// GatewayConfig tunes the websocket question gateway.
type GatewayConfig struct {
	// KnownSpeakers maps spoken aliases to canonical names for
	// introduction detection ("I'm ziggy" -> Ziggy).
	KnownSpeakers map[string]string `yaml:"known-speakers"`
}

// CostingConfig selects the token estimation method.
type CostingConfig struct {
	// TokenEstimator is "tiktoken" or "simple".
	TokenEstimator string `yaml:"token-estimator"`
}

// Config is the root configuration document.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	// Default is empty ("") to bind all interfaces.
	Host string `yaml:"host"`
	// Port for the HTTP and websocket server.
	Port int `yaml:"port"`
	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`
	// LoggingToFile writes rotating log files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file"`
	// LogsMaxTotalSizeMB caps the rotating log directory; 0 disables the cap.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb"`
	// ManagementKey protects mutating management endpoints. Plaintext values
	// are bcrypt-hashed on load; a value with a $2a$/$2b$/$2y$ prefix is
	// kept as-is.
	ManagementKey string `yaml:"management-key"`

	Classifier  ClassifierConfig  `yaml:"classifier"`
	Routing     RoutingConfig     `yaml:"routing"`
	SceneCache  SceneCacheConfig  `yaml:"scene-cache"`
	DecisionLog DecisionLogConfig `yaml:"decision-log"`
	Memory      MemoryConfig      `yaml:"memory"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Costing     CostingConfig     `yaml:"costing"`
}

// LoadConfig reads YAML from configFile, applies defaults for absent keys,
// hashes a plaintext management key, and sanitizes every section.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	// Set defaults before unmarshal so that absent keys keep defaults.
	cfg.Port = 8317
	cfg.Classifier.CacheTTLSeconds = 300
	cfg.SceneCache.BucketWidth = 20
	cfg.SceneCache.HardTTLSeconds = 30
	cfg.SceneCache.NoReadingTTLSeconds = 5
	cfg.DecisionLog.Path = "./data/decisions.db"
	cfg.DecisionLog.RetentionDays = 90
	cfg.Memory.Dir = "./data/memory"
	cfg.Memory.DaysBack = 7
	cfg.Costing.TokenEstimator = "tiktoken"

	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.ManagementKey != "" && !looksLikeBcrypt(cfg.ManagementKey) {
		hashed, errHash := hashSecret(cfg.ManagementKey)
		if errHash != nil {
			return nil, fmt.Errorf("failed to hash management key: %w", errHash)
		}
		cfg.ManagementKey = hashed
	}

	cfg.SanitizeClassifier()
	cfg.SanitizeSceneCache()
	cfg.SanitizeDecisionLog()
	cfg.SanitizeMemory()
	cfg.SanitizeCosting()
	if err := cfg.resolveBedrockFromEnv(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SanitizeClassifier clamps classifier settings to sane values.
func (cfg *Config) SanitizeClassifier() {
	if cfg.Classifier.CacheTTLSeconds <= 0 {
		cfg.Classifier.CacheTTLSeconds = 300
	}
}

// SanitizeSceneCache clamps scene cache settings to sane values.
func (cfg *Config) SanitizeSceneCache() {
	if cfg.SceneCache.BucketWidth <= 0 {
		cfg.SceneCache.BucketWidth = 20
	}
	if cfg.SceneCache.HardTTLSeconds <= 0 {
		cfg.SceneCache.HardTTLSeconds = 30
	}
	if cfg.SceneCache.NoReadingTTLSeconds <= 0 {
		cfg.SceneCache.NoReadingTTLSeconds = 5
	}
	if cfg.SceneCache.NoReadingTTLSeconds > cfg.SceneCache.HardTTLSeconds {
		cfg.SceneCache.NoReadingTTLSeconds = cfg.SceneCache.HardTTLSeconds
	}
}

// SanitizeDecisionLog fills decision log defaults.
func (cfg *Config) SanitizeDecisionLog() {
	if strings.TrimSpace(cfg.DecisionLog.Path) == "" {
		cfg.DecisionLog.Path = "./data/decisions.db"
	}
	if cfg.DecisionLog.RetentionDays <= 0 {
		cfg.DecisionLog.RetentionDays = 90
	}
}

// SanitizeMemory fills memory store defaults.
func (cfg *Config) SanitizeMemory() {
	if strings.TrimSpace(cfg.Memory.Dir) == "" {
		cfg.Memory.Dir = "./data/memory"
	}
	if cfg.Memory.DaysBack <= 0 {
		cfg.Memory.DaysBack = 7
	}
}

// SanitizeCosting normalizes the token estimator choice.
func (cfg *Config) SanitizeCosting() {
	if cfg.Costing.TokenEstimator != "tiktoken" && cfg.Costing.TokenEstimator != "simple" {
		cfg.Costing.TokenEstimator = "tiktoken"
	}
}

// resolveBedrockFromEnv completes bedrock backend entries that declare the
// provider but leave the model empty, reading identifiers and region from
// the standard BEDROCK_* environment variables.
func (cfg *Config) resolveBedrockFromEnv() error {
	resolve := func(c *registry.BackendConfig) error {
		if c.Provider != registry.ProviderBedrock || c.ModelID != "" {
			return nil
		}
		env, err := registry.NewBedrockConfigFromEnv(registry.BedrockEnvOptions{
			CostPer1KInput:    c.CostPer1KInput,
			CostPer1KOutput:   c.CostPer1KOutput,
			SupportsStreaming: c.SupportsStreaming,
			SupportsVision:    c.SupportsVision,
		})
		if err != nil {
			return err
		}
		if c.MaxTokens > 0 {
			env.MaxTokens = c.MaxTokens
		}
		*c = env
		return nil
	}

	for tier, backend := range cfg.Routing.Defaults {
		if err := resolve(&backend); err != nil {
			return fmt.Errorf("routing defaults %q: %w", tier, err)
		}
		cfg.Routing.Defaults[tier] = backend
	}
	for caller, table := range cfg.Routing.Overrides {
		for tier, backend := range table {
			if err := resolve(&backend); err != nil {
				return fmt.Errorf("routing overrides %s/%s: %w", caller, tier, err)
			}
			table[tier] = backend
		}
	}
	if cfg.Routing.Grounding != nil {
		if err := resolve(cfg.Routing.Grounding); err != nil {
			return fmt.Errorf("routing grounding: %w", err)
		}
	}
	return nil
}

// ClassifierOptions converts the classifier section for construction.
func (cfg *Config) ClassifierOptions() classifier.Options {
	return classifier.Options{
		CacheTTL:                time.Duration(cfg.Classifier.CacheTTLSeconds) * time.Second,
		CurrentInfoPatterns:     cfg.Classifier.CurrentInfoPatterns,
		ExtraSimpleFactPatterns: cfg.Classifier.ExtraSimpleFactPatterns,
	}
}

// BuildRegistry validates the routing section and constructs the backend
// registry.
func (cfg *Config) BuildRegistry() (*registry.Registry, error) {
	defaults := make(map[classifier.Tier]registry.BackendConfig, len(cfg.Routing.Defaults))
	for name, backend := range cfg.Routing.Defaults {
		tier, err := classifier.ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("routing defaults: %w", err)
		}
		defaults[tier] = backend
	}

	var overrides map[string]map[classifier.Tier]registry.BackendConfig
	if len(cfg.Routing.Overrides) > 0 {
		overrides = make(map[string]map[classifier.Tier]registry.BackendConfig, len(cfg.Routing.Overrides))
		for caller, table := range cfg.Routing.Overrides {
			parsed := make(map[classifier.Tier]registry.BackendConfig, len(table))
			for name, backend := range table {
				tier, err := classifier.ParseTier(name)
				if err != nil {
					return nil, fmt.Errorf("routing overrides for %q: %w", caller, err)
				}
				parsed[tier] = backend
			}
			overrides[caller] = parsed
		}
	}

	return registry.New(defaults, overrides, cfg.Routing.Grounding)
}

// SceneCacheTTLs returns the scene cache durations.
func (cfg *Config) SceneCacheTTLs() (hard, noReading time.Duration) {
	return time.Duration(cfg.SceneCache.HardTTLSeconds) * time.Second,
		time.Duration(cfg.SceneCache.NoReadingTTLSeconds) * time.Second
}

// CheckManagementKey reports whether candidate matches the configured
// management key. An empty configured key rejects everything.
func (cfg *Config) CheckManagementKey(candidate string) bool {
	if cfg.ManagementKey == "" || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(cfg.ManagementKey), []byte(candidate)) == nil
}

// looksLikeBcrypt returns true if the provided string appears to be a
// bcrypt hash.
func looksLikeBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// hashSecret hashes the given secret using bcrypt.
func hashSecret(secret string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}
