// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package costing estimates the dollar cost of dispatching a prompt to a
// selected backend. Estimates feed the decision log and the scene cache's
// cost-saved accounting; they are pre-flight approximations, not billing.
package costing

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Estimation methods. "tiktoken" counts with a real BPE codec, "simple"
// approximates with words * 1.3.
const (
	MethodTiktoken = "tiktoken"
	MethodSimple   = "simple"
)

// CostTable is the per-1k-token pricing of one backend.
type CostTable struct {
	Per1KInput  float64
	Per1KOutput float64
}

// Estimate is the pre-flight cost breakdown for one dispatch.
type Estimate struct {
	InputTokens     int     `json:"input_tokens"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	InputUSD        float64 `json:"input_usd"`
	MaxOutputUSD    float64 `json:"max_output_usd"`
	MaxTotalUSD     float64 `json:"max_total_usd"`
}

// Estimator counts prompt tokens and prices them against a cost table.
type Estimator struct {
	method string
	codec  tokenizer.Codec
}

// NewEstimator builds an Estimator. Unknown methods fall back to "simple".
func NewEstimator(method string) (*Estimator, error) {
	if method != MethodTiktoken && method != MethodSimple {
		method = MethodSimple
	}
	e := &Estimator{method: method}
	if method == MethodTiktoken {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, fmt.Errorf("costing: tokenizer init failed: %w", err)
		}
		e.codec = codec
	}
	return e, nil
}

// Method returns the active estimation method.
func (e *Estimator) Method() string { return e.method }

// CountTokens estimates the token count of text.
func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if e.codec != nil {
		if ids, _, err := e.codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return simpleEstimate(text)
}

// EstimateCost prices prompt against table, assuming the completion may run
// to maxOutputTokens. MaxTotalUSD is therefore a worst-case bound.
func (e *Estimator) EstimateCost(prompt string, maxOutputTokens int, table CostTable) Estimate {
	inputTokens := e.CountTokens(prompt)
	if maxOutputTokens < 0 {
		maxOutputTokens = 0
	}
	est := Estimate{
		InputTokens:     inputTokens,
		MaxOutputTokens: maxOutputTokens,
		InputUSD:        float64(inputTokens) / 1000 * table.Per1KInput,
		MaxOutputUSD:    float64(maxOutputTokens) / 1000 * table.Per1KOutput,
	}
	est.MaxTotalUSD = est.InputUSD + est.MaxOutputUSD
	return est
}

// simpleEstimate approximates tokens as words * 1.3, the usual subword
// expansion factor.
func simpleEstimate(text string) int {
	words := 0
	inWord := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
		} else if !inWord {
			words++
			inWord = true
		}
	}
	return int(float64(words) * 1.3)
}
