// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package classifier assigns a complexity tier to incoming questions using an
// ordered heuristic rule cascade. The tier drives backend selection: cheap
// local models answer simple questions, the cloud backend handles complex or
// grounding-dependent ones. Results are cached per normalized query text with
// a TTL so repeat phrasings skip rule evaluation.
//
// The cascade order is load-bearing. Tool-backed vocabulary outranks
// current-info vocabulary ("what's the weather now" stays cheap because a
// downstream tool supplies the data), and complex vocabulary outranks the
// short-factual carve-out ("what is your analysis of X" is not "what is 2
// plus 2"). Reordering stages changes routing behavior.
package classifier

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/routeAILocal/internal/ttlcache"
)

// Tier is the complexity class assigned to a query.
type Tier string

const (
	// TierSimple covers greetings, short facts, and basic commands.
	TierSimple Tier = "simple"
	// TierModerate covers multi-step or context-dependent questions.
	TierModerate Tier = "moderate"
	// TierComplex covers deep reasoning, creation, and long rambling input.
	TierComplex Tier = "complex"
	// TierCurrentInfo marks queries needing real-time information; resolved
	// to the grounding backend when one is configured, else demoted to
	// TierModerate by the router.
	TierCurrentInfo Tier = "current_info"
)

// Tiers lists every valid tier.
var Tiers = []Tier{TierSimple, TierModerate, TierComplex, TierCurrentInfo}

// Valid reports whether t is one of the four defined tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierSimple, TierModerate, TierComplex, TierCurrentInfo:
		return true
	}
	return false
}

// ParseTier converts a string into a Tier, accepting any case.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("classifier: unknown tier %q", s)
	}
	return t, nil
}

// Length thresholds for the cascade's structural stages.
const (
	veryShortQueryChars = 20
	shortCommandChars   = 40
	shortFactChars      = 80
	longQueryChars      = 200
	maxPlainSegments    = 3
)

var greetingPatterns = []string{
	`\b(hello|hi|hey|good morning|good afternoon|good evening)\b`,
	`\b(how are you|what'?s up|sup)\b`,
	`\b(bye|goodbye|see you|later)\b`,
	`\b(thanks|thank you|thx)\b`,
	`\b(yes|no|ok|okay|sure|nope)\b`,
}

// Short factual questions a small model answers directly.
var simpleFactPatterns = []string{
	`\bwhat is \d`,
	`\bwhat'?s \d`,
	`\b(\d+)\s*(plus|minus|times|divided by|multiplied by|\+|-|\*|/)\s*(\d+)\b`,
	`\bwhat (colour|color) is\b`,
	`\bwhat is (his|her|their|my|your) (favourite|favorite)\b`,
	`\bhow old is\b`,
	`\bwhat does .{1,20} mean\b`,
}

var simpleCommandPatterns = []string{
	`\b(move|turn|stop|go)\b`,
	`\b(forward|backward|left|right)\b`,
	`\b(play|speak|say)\b`,
}

var moderatePatterns = []string{
	`\b(how|why|when|where|who)\b`,
	`\b(explain|describe|tell me about)\b`,
	`\b(what is|what are|what does)\b`,
}

var complexPatterns = []string{
	`\b(analy[sz]e|analysis|compare|comparison|evaluate|assess)\b`,
	`\b(create|generate|write|compose)\b`,
	`\b(imagine|suppose|what if)\b`,
	`\b(multiple|several|various)\b`,
}

var currentInfoPatterns = []string{
	`\b(latest|recent|current|this week|this month|this year)\b`,
	`\b(news|update|announcement|release|launched|announced)\b`,
	`\b(price|cost|availability|stock|in stock|out of stock)\b`,
	`\b(what'?s happening|what is happening|what happened)\b`,
}

// Tool-backed intents: a downstream capability fetches the factual payload,
// so the backend only phrases a sentence. Checked before current-info.
var toolBackedPatterns = []string{
	`\b(weather|forecast|temperature|rain|sunny|cloudy|windy)\b`,
	`\b(score|result|match|game|won|lost|playing)\b`,
}

// Options configures a Classifier.
type Options struct {
	// CacheTTL is how long a classification stays cached. Zero means
	// DefaultCacheTTL.
	CacheTTL time.Duration

	// CurrentInfoPatterns replaces the built-in current-info pattern list
	// when non-empty.
	CurrentInfoPatterns []string

	// ExtraSimpleFactPatterns appends to the built-in short-factual list.
	// Deployments use this for household-specific questions the small model
	// already knows the answers to.
	ExtraSimpleFactPatterns []string
}

// DefaultCacheTTL matches a typical conversational repeat window.
const DefaultCacheTTL = 5 * time.Minute

// ruleset is one immutable compiled rule generation. Reload builds a fresh
// ruleset and swaps the pointer; in-flight classifications keep the
// generation they started with.
type ruleset struct {
	cacheTTL time.Duration

	greeting    []*regexp.Regexp
	simpleFact  []*regexp.Regexp
	simpleCmd   []*regexp.Regexp
	toolBacked  []*regexp.Regexp
	moderate    []*regexp.Regexp
	complexPats []*regexp.Regexp
	currentInfo []*regexp.Regexp
}

// Classifier maps a query string to a Tier. Rule evaluation is a pure
// function of the query text; the cache only short-circuits re-evaluation.
// Safe for concurrent use.
type Classifier struct {
	rules atomic.Pointer[ruleset]
	cache *ttlcache.Cache[string, Tier]

	// evaluations counts full cascade runs (cache misses).
	evaluations atomic.Uint64
	byTier      [4]atomic.Uint64
}

// New builds a Classifier, compiling every pattern up front. It fails only
// when a configured pattern does not compile.
func New(opts Options) (*Classifier, error) {
	rs, err := compileRules(opts)
	if err != nil {
		return nil, err
	}
	c := &Classifier{cache: ttlcache.New[string, Tier]()}
	c.rules.Store(rs)
	return c, nil
}

// Reload compiles a new ruleset from opts and swaps it in, dropping the
// classification cache so stale tiers don't outlive the old rules. The
// existing ruleset stays active when compilation fails.
func (c *Classifier) Reload(opts Options) error {
	rs, err := compileRules(opts)
	if err != nil {
		return err
	}
	c.rules.Store(rs)
	c.cache.Clear()
	return nil
}

func compileRules(opts Options) (*ruleset, error) {
	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	rs := &ruleset{cacheTTL: ttl}

	currentInfoList := currentInfoPatterns
	if len(opts.CurrentInfoPatterns) > 0 {
		currentInfoList = opts.CurrentInfoPatterns
	}
	factList := append(append([]string{}, simpleFactPatterns...), opts.ExtraSimpleFactPatterns...)

	var err error
	if rs.greeting, err = compileAll(greetingPatterns); err != nil {
		return nil, err
	}
	if rs.simpleFact, err = compileAll(factList); err != nil {
		return nil, err
	}
	if rs.simpleCmd, err = compileAll(simpleCommandPatterns); err != nil {
		return nil, err
	}
	if rs.toolBacked, err = compileAll(toolBackedPatterns); err != nil {
		return nil, err
	}
	if rs.moderate, err = compileAll(moderatePatterns); err != nil {
		return nil, err
	}
	if rs.complexPats, err = compileAll(complexPatterns); err != nil {
		return nil, err
	}
	if rs.currentInfo, err = compileAll(currentInfoList); err != nil {
		return nil, err
	}
	return rs, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("classifier: bad pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// SetClock swaps the cache's time source. Test use only.
func (c *Classifier) SetClock(now func() time.Time) {
	c.cache.SetClock(now)
}

// Classify assigns a tier to query. It never fails: malformed or empty input
// falls through the structural stages and resolves to TierSimple. Every exit
// path caches its result under the normalized query text.
func (c *Classifier) Classify(query string) Tier {
	normalized := strings.ToLower(strings.TrimSpace(query))

	if tier, ok := c.cache.Get(normalized); ok {
		return tier
	}

	rs := c.rules.Load()
	tier := c.evaluate(rs, query, normalized)
	c.cache.Set(normalized, tier, rs.cacheTTL)
	c.countTier(tier)

	log.WithFields(log.Fields{
		"tier":  tier,
		"chars": len(query),
	}).Debugf("classified %q", truncate(query, 50))

	return tier
}

// evaluate runs the full cascade. Stages short-circuit in a fixed order;
// later stages are unreachable once an earlier one matches.
func (c *Classifier) evaluate(rs *ruleset, query, normalized string) Tier {
	c.evaluations.Add(1)

	length := len(query)
	segments := countSegments(query)

	if matchAny(rs.toolBacked, normalized) {
		return TierSimple
	}
	if matchAny(rs.currentInfo, normalized) {
		return TierCurrentInfo
	}
	if matchAny(rs.complexPats, normalized) {
		return TierComplex
	}
	if length > longQueryChars || segments > maxPlainSegments {
		return TierComplex
	}
	if length < shortFactChars && matchAny(rs.simpleFact, normalized) {
		return TierSimple
	}
	if matchAny(rs.moderate, normalized) {
		return TierModerate
	}
	if length < veryShortQueryChars && matchAny(rs.greeting, normalized) {
		return TierSimple
	}
	if length < shortCommandChars && matchAny(rs.simpleCmd, normalized) {
		return TierSimple
	}
	if length < veryShortQueryChars {
		return TierSimple
	}
	if length <= longQueryChars {
		return TierModerate
	}
	return TierSimple
}

// NeedsCurrentInfo reports whether query matches the current-info vocabulary
// alone, ignoring the rest of the cascade.
func (c *Classifier) NeedsCurrentInfo(query string) bool {
	return matchAny(c.rules.Load().currentInfo, strings.ToLower(strings.TrimSpace(query)))
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// countSegments counts non-empty sentence-like segments split on '.'.
func countSegments(query string) int {
	n := 0
	for _, seg := range strings.Split(query, ".") {
		if strings.TrimSpace(seg) != "" {
			n++
		}
	}
	return n
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func (c *Classifier) countTier(t Tier) {
	switch t {
	case TierSimple:
		c.byTier[0].Add(1)
	case TierModerate:
		c.byTier[1].Add(1)
	case TierComplex:
		c.byTier[2].Add(1)
	case TierCurrentInfo:
		c.byTier[3].Add(1)
	}
}

// Evaluations returns how many times the rule cascade actually ran. Cache
// hits do not increment it, which is what TTL tests observe.
func (c *Classifier) Evaluations() uint64 {
	return c.evaluations.Load()
}

// Stats is a snapshot of classifier activity.
type Stats struct {
	CacheEntries int             `json:"cache_entries"`
	Evaluations  uint64          `json:"evaluations"`
	ByTier       map[Tier]uint64 `json:"by_tier"`
}

// CacheStats returns a snapshot of cache size and evaluation counts.
func (c *Classifier) CacheStats() Stats {
	return Stats{
		CacheEntries: c.cache.Len(),
		Evaluations:  c.evaluations.Load(),
		ByTier: map[Tier]uint64{
			TierSimple:      c.byTier[0].Load(),
			TierModerate:    c.byTier[1].Load(),
			TierComplex:     c.byTier[2].Load(),
			TierCurrentInfo: c.byTier[3].Load(),
		},
	}
}

// ClearCache drops all cached classifications.
func (c *Classifier) ClearCache() {
	c.cache.Clear()
}

// SweepCache eagerly removes expired cache entries, returning the count.
func (c *Classifier) SweepCache() int {
	return c.cache.Sweep()
}
