// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry holds immutable backend configurations indexed by
// complexity tier. A BackendConfig describes one inference backend well
// enough for the caller to instantiate a client: provider, model identifier,
// token limit, capability flags, and cost table. The registry validates
// everything at construction so lookups never fail on malformed data.
package registry

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Provider identifies a backend family.
type Provider string

const (
	ProviderBedrock   Provider = "bedrock"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderOllama    Provider = "ollama"
	ProviderMLX       Provider = "mlx"
)

var validProviders = map[Provider]bool{
	ProviderBedrock:   true,
	ProviderOpenAI:    true,
	ProviderAnthropic: true,
	ProviderGemini:    true,
	ProviderOllama:    true,
	ProviderMLX:       true,
}

// regionTokens is the hard-coded list of region-like prefixes recognized by
// inference-profile auto-detection. This is a shape heuristic, not a lookup
// against a canonical registry; identifiers that coincidentally start with
// one of these tokens are treated as region-scoped.
var regionTokens = map[string]bool{"us": true, "eu": true, "ap": true}

// BackendConfig is an immutable descriptor of one inference backend.
type BackendConfig struct {
	// Provider is the backend family.
	Provider Provider `yaml:"provider" json:"provider"`
	// ModelID is the direct model identifier.
	ModelID string `yaml:"model" json:"model"`
	// CostPer1KInput and CostPer1KOutput are USD per thousand tokens.
	CostPer1KInput  float64 `yaml:"cost-per-1k-input" json:"cost_per_1k_input"`
	CostPer1KOutput float64 `yaml:"cost-per-1k-output" json:"cost_per_1k_output"`
	// MaxTokens caps the completion length requested from the backend.
	MaxTokens int `yaml:"max-tokens" json:"max_tokens"`
	// SupportsStreaming and SupportsVision are capability flags consulted by
	// the router.
	SupportsStreaming bool `yaml:"streaming" json:"supports_streaming"`
	SupportsVision    bool `yaml:"vision" json:"supports_vision"`
	// Region applies to bedrock backends.
	Region string `yaml:"region,omitempty" json:"region,omitempty"`
	// Host applies to local backends (ollama, mlx).
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	// UseInferenceProfile addresses the backend via a region-scoped
	// inference profile instead of the direct model identifier. Bedrock only.
	UseInferenceProfile bool `yaml:"use-inference-profile,omitempty" json:"use_inference_profile,omitempty"`
	// InferenceProfileID is the profile identifier when it differs from
	// ModelID.
	InferenceProfileID string `yaml:"inference-profile-id,omitempty" json:"inference_profile_id,omitempty"`
}

// Validate checks the descriptor's construction-time invariants.
func (c BackendConfig) Validate() error {
	if !validProviders[c.Provider] {
		return fmt.Errorf("registry: invalid provider %q", c.Provider)
	}
	if c.ModelID == "" {
		return fmt.Errorf("registry: model identifier is required")
	}
	if c.CostPer1KInput < 0 || c.CostPer1KOutput < 0 {
		return fmt.Errorf("registry: cost values must be non-negative")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("registry: max tokens must be positive")
	}
	if c.UseInferenceProfile && c.Provider != ProviderBedrock {
		return fmt.Errorf("registry: inference profiles are only supported for the bedrock provider")
	}
	return nil
}

// EffectiveModelID returns the identifier used for backend calls: the
// inference profile when profile addressing is active and an ID is set,
// otherwise the direct model identifier.
func (c BackendConfig) EffectiveModelID() string {
	if c.UseInferenceProfile && c.InferenceProfileID != "" {
		return c.InferenceProfileID
	}
	return c.ModelID
}

// AccessMethod describes how the backend is addressed, for logs.
func (c BackendConfig) AccessMethod() string {
	switch {
	case c.Provider == ProviderBedrock && c.UseInferenceProfile:
		return "inference_profile"
	case c.Provider == ProviderBedrock:
		return "direct_model_access"
	default:
		return string(c.Provider) + "_direct"
	}
}

// String renders provider/model for log lines.
func (c BackendConfig) String() string {
	return string(c.Provider) + "/" + c.ModelID
}

// looksLikeInferenceProfile reports whether modelID has the region-scoped
// shape region.vendor.model with a recognized region token.
func looksLikeInferenceProfile(modelID string) bool {
	if strings.Count(modelID, ".") < 2 {
		return false
	}
	parts := strings.SplitN(modelID, ".", 2)
	return regionTokens[parts[0]]
}

// BedrockEnvOptions names the environment variables and cost defaults used
// by NewBedrockConfigFromEnv. Zero-value fields fall back to the defaults
// below.
type BedrockEnvOptions struct {
	ModelIDVar             string
	RegionVar              string
	MaxTokensVar           string
	UseInferenceProfileVar string
	InferenceProfileIDVar  string
	CostPer1KInput         float64
	CostPer1KOutput        float64
	SupportsStreaming      bool
	SupportsVision         bool
}

func (o *BedrockEnvOptions) applyDefaults() {
	if o.ModelIDVar == "" {
		o.ModelIDVar = "BEDROCK_MODEL_ID"
	}
	if o.RegionVar == "" {
		o.RegionVar = "BEDROCK_REGION"
	}
	if o.MaxTokensVar == "" {
		o.MaxTokensVar = "BEDROCK_MAX_TOKENS"
	}
	if o.UseInferenceProfileVar == "" {
		o.UseInferenceProfileVar = "USE_INFERENCE_PROFILE"
	}
	if o.InferenceProfileIDVar == "" {
		o.InferenceProfileIDVar = "INFERENCE_PROFILE_ID"
	}
}

// NewBedrockConfigFromEnv builds a bedrock BackendConfig from environment
// variables, auto-detecting inference-profile addressing from the model
// identifier's shape when the explicit flag is unset. An identifier like
// eu.anthropic.claude-haiku-4-5-20251001-v1:0 is treated as a region-scoped
// profile; the direct model identifier is recovered by stripping the leading
// region token.
func NewBedrockConfigFromEnv(opts BedrockEnvOptions) (BackendConfig, error) {
	opts.applyDefaults()

	modelID := envDefault(opts.ModelIDVar, "anthropic.claude-3-haiku-20240307-v1:0")
	region := envDefault(opts.RegionVar, "us-east-1")

	maxTokens := 500
	if raw := os.Getenv(opts.MaxTokensVar); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return BackendConfig{}, fmt.Errorf("registry: invalid %s value %q: %w", opts.MaxTokensVar, raw, err)
		}
		maxTokens = parsed
	}

	useProfile := envBool(opts.UseInferenceProfileVar)
	profileID := os.Getenv(opts.InferenceProfileIDVar)

	if !useProfile && looksLikeInferenceProfile(modelID) {
		useProfile = true
		log.Infof("Auto-detected inference profile from model ID: %s", modelID)
	}

	if useProfile && profileID == "" {
		profileID = modelID
		// Recover the base model ID by stripping the region prefix.
		if looksLikeInferenceProfile(modelID) {
			modelID = strings.SplitN(modelID, ".", 2)[1]
			log.Infof("Extracted base model ID from inference profile: %s", modelID)
		}
	}

	cfg := BackendConfig{
		Provider:            ProviderBedrock,
		ModelID:             modelID,
		CostPer1KInput:      opts.CostPer1KInput,
		CostPer1KOutput:     opts.CostPer1KOutput,
		MaxTokens:           maxTokens,
		SupportsStreaming:   opts.SupportsStreaming,
		SupportsVision:      opts.SupportsVision,
		Region:              region,
		UseInferenceProfile: useProfile,
		InferenceProfileID:  profileID,
	}
	if err := cfg.Validate(); err != nil {
		return BackendConfig{}, err
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	}
	return false
}
