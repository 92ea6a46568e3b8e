// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package backends turns a selected backend configuration into an actual
// model call. Every provider here speaks HTTP: ollama and mlx serve on the
// local network, the hosted providers authenticate with environment API
// keys, and bedrock is reached through an OpenAI-compatible gateway host.
package backends

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/traylinx/routeAILocal/internal/registry"
)

const (
	defaultTimeout    = 2 * time.Minute
	defaultOllamaHost = "http://localhost:11434"
	openAIEndpoint    = "https://api.openai.com/v1/chat/completions"
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"
	geminiEndpoint    = "https://generativelanguage.googleapis.com/v1beta/models"
)

// HTTPInvoker executes inference requests over HTTP. API keys for hosted
// providers come from the environment at construction time.
type HTTPInvoker struct {
	client *http.Client

	openAIKey    string
	anthropicKey string
	geminiKey    string
}

// NewHTTPInvoker builds an invoker with the default timeout.
func NewHTTPInvoker() *HTTPInvoker {
	return &HTTPInvoker{
		client:       &http.Client{Timeout: defaultTimeout},
		openAIKey:    os.Getenv("OPENAI_API_KEY"),
		anthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		geminiKey:    os.Getenv("GEMINI_API_KEY"),
	}
}

// Invoke sends prompt to the backend described by cfg and returns the model
// text.
func (i *HTTPInvoker) Invoke(ctx context.Context, cfg registry.BackendConfig, prompt string) (string, error) {
	switch cfg.Provider {
	case registry.ProviderOllama:
		return i.invokeOllama(ctx, cfg, prompt)
	case registry.ProviderMLX:
		// MLX servers expose the OpenAI chat surface.
		return i.invokeChatCompletions(ctx, chatTarget(cfg, ""), cfg.ModelID, cfg.MaxTokens, "", prompt)
	case registry.ProviderOpenAI:
		return i.invokeChatCompletions(ctx, chatTarget(cfg, openAIEndpoint), cfg.ModelID, cfg.MaxTokens, i.openAIKey, prompt)
	case registry.ProviderBedrock:
		if cfg.Host == "" {
			return "", fmt.Errorf("backends: bedrock backend %q needs a gateway host", cfg.ModelID)
		}
		return i.invokeChatCompletions(ctx, chatTarget(cfg, ""), cfg.EffectiveModelID(), cfg.MaxTokens, "", prompt)
	case registry.ProviderAnthropic:
		return i.invokeAnthropic(ctx, cfg, prompt)
	case registry.ProviderGemini:
		return i.invokeGemini(ctx, cfg, prompt)
	default:
		return "", fmt.Errorf("backends: unsupported provider %q", cfg.Provider)
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

func (i *HTTPInvoker) invokeOllama(ctx context.Context, cfg registry.BackendConfig, prompt string) (string, error) {
	host := cfg.Host
	if host == "" {
		host = defaultOllamaHost
	}
	payload := ollamaGenerateRequest{
		Model:  cfg.ModelID,
		Prompt: prompt,
		Stream: false,
	}
	if cfg.MaxTokens > 0 {
		payload.Options = map[string]any{"num_predict": cfg.MaxTokens}
	}

	body, err := i.post(ctx, strings.TrimSuffix(host, "/")+"/api/generate", payload, nil)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "response").String(), nil
}

type chatCompletionsRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatTarget resolves the chat-completions URL: an explicit host wins over
// the provider's public endpoint.
func chatTarget(cfg registry.BackendConfig, fallback string) string {
	if cfg.Host != "" {
		return strings.TrimSuffix(cfg.Host, "/") + "/v1/chat/completions"
	}
	return fallback
}

func (i *HTTPInvoker) invokeChatCompletions(ctx context.Context, url, model string, maxTokens int, apiKey, prompt string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("backends: no endpoint for model %q", model)
	}
	payload := chatCompletionsRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	}
	var headers map[string]string
	if apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + apiKey}
	}

	body, err := i.post(ctx, url, payload, headers)
	if err != nil {
		return "", err
	}
	answer := gjson.GetBytes(body, "choices.0.message.content").String()
	if answer == "" {
		return "", fmt.Errorf("backends: empty completion for model %q", model)
	}
	return answer, nil
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

func (i *HTTPInvoker) invokeAnthropic(ctx context.Context, cfg registry.BackendConfig, prompt string) (string, error) {
	if i.anthropicKey == "" {
		return "", fmt.Errorf("backends: ANTHROPIC_API_KEY is not set")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	payload := anthropicRequest{
		Model:     cfg.ModelID,
		MaxTokens: maxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}
	url := anthropicEndpoint
	if cfg.Host != "" {
		url = strings.TrimSuffix(cfg.Host, "/") + "/v1/messages"
	}
	headers := map[string]string{
		"x-api-key":         i.anthropicKey,
		"anthropic-version": anthropicVersion,
	}

	body, err := i.post(ctx, url, payload, headers)
	if err != nil {
		return "", err
	}
	answer := gjson.GetBytes(body, "content.0.text").String()
	if answer == "" {
		return "", fmt.Errorf("backends: empty response for model %q", cfg.ModelID)
	}
	return answer, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

func (i *HTTPInvoker) invokeGemini(ctx context.Context, cfg registry.BackendConfig, prompt string) (string, error) {
	if i.geminiKey == "" {
		return "", fmt.Errorf("backends: GEMINI_API_KEY is not set")
	}
	base := geminiEndpoint
	if cfg.Host != "" {
		base = strings.TrimSuffix(cfg.Host, "/") + "/v1beta/models"
	}
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", base, cfg.ModelID, i.geminiKey)
	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}

	body, err := i.post(ctx, url, payload, nil)
	if err != nil {
		return "", err
	}
	answer := gjson.GetBytes(body, "candidates.0.content.parts.0.text").String()
	if answer == "" {
		return "", fmt.Errorf("backends: empty response for model %q", cfg.ModelID)
	}
	return answer, nil
}

func (i *HTTPInvoker) post(ctx context.Context, url string, payload any, headers map[string]string) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("backends: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("backends: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backends: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backends: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Warnf("backend call to %s returned %d: %s", url, resp.StatusCode, clipBody(body))
		return nil, fmt.Errorf("backends: unexpected status code: %d", resp.StatusCode)
	}
	return body, nil
}

func clipBody(body []byte) string {
	const max = 200
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
