// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package costing

import (
	"math"
	"strings"
	"testing"
)

func TestCountTokensSimple(t *testing.T) {
	e, err := NewEstimator(MethodSimple)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}

	if got := e.CountTokens(""); got != 0 {
		t.Fatalf("CountTokens(empty) = %d", got)
	}
	// 10 words * 1.3 = 13.
	if got := e.CountTokens(strings.Repeat("word ", 10)); got != 13 {
		t.Fatalf("CountTokens(10 words) = %d, want 13", got)
	}
	// 3 words * 1.3 truncates to 3.
	if got := e.CountTokens("  spaced\tout\nwords  "); got != 3 {
		t.Fatalf("CountTokens = %d", got)
	}
}

func TestUnknownMethodFallsBackToSimple(t *testing.T) {
	e, err := NewEstimator("guesswork")
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	if e.Method() != MethodSimple {
		t.Fatalf("Method() = %q, want simple", e.Method())
	}
}

func TestCountTokensTiktoken(t *testing.T) {
	e, err := NewEstimator(MethodTiktoken)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	if e.Method() != MethodTiktoken {
		t.Fatalf("Method() = %q", e.Method())
	}
	count := e.CountTokens("the quick brown fox jumps over the lazy dog")
	if count < 5 || count > 20 {
		t.Fatalf("CountTokens = %d, outside plausible range", count)
	}
}

func TestEstimateCost(t *testing.T) {
	e, err := NewEstimator(MethodSimple)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	table := CostTable{Per1KInput: 0.003, Per1KOutput: 0.015}

	// 100 words -> 130 input tokens.
	est := e.EstimateCost(strings.Repeat("word ", 100), 1000, table)
	if est.InputTokens != 130 {
		t.Fatalf("InputTokens = %d, want 130", est.InputTokens)
	}
	if est.MaxOutputTokens != 1000 {
		t.Fatalf("MaxOutputTokens = %d", est.MaxOutputTokens)
	}
	// 130 tokens at 0.003 per 1k.
	if math.Abs(est.InputUSD-0.00039) > 1e-9 {
		t.Fatalf("InputUSD = %f, want 0.00039", est.InputUSD)
	}
	if math.Abs(est.MaxOutputUSD-0.015) > 1e-9 {
		t.Fatalf("MaxOutputUSD = %f, want 0.015", est.MaxOutputUSD)
	}
	if math.Abs(est.MaxTotalUSD-(est.InputUSD+est.MaxOutputUSD)) > 1e-12 {
		t.Fatalf("MaxTotalUSD = %f, not the sum of parts", est.MaxTotalUSD)
	}
}

func TestEstimateCostClampsNegativeOutput(t *testing.T) {
	e, _ := NewEstimator(MethodSimple)
	est := e.EstimateCost("hello there", -5, CostTable{Per1KInput: 1, Per1KOutput: 1})
	if est.MaxOutputTokens != 0 || est.MaxOutputUSD != 0 {
		t.Fatalf("negative output not clamped: %+v", est)
	}
}

func TestFreeLocalBackendCostsNothing(t *testing.T) {
	e, _ := NewEstimator(MethodSimple)
	est := e.EstimateCost("what time is it", 512, CostTable{})
	if est.MaxTotalUSD != 0 {
		t.Fatalf("MaxTotalUSD = %f, want 0 for a zero cost table", est.MaxTotalUSD)
	}
}
