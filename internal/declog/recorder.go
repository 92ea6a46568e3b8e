// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package declog persists routing decisions to a local SQLite database for
// offline inspection. Queries are stored as hashes, never verbatim.
package declog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"
)

// Decision is one recorded routing outcome.
type Decision struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	QueryHash       string    `json:"query_hash"`
	Tier            string    `json:"tier"`
	ResolvedTier    string    `json:"resolved_tier"`
	Source          string    `json:"source"`
	Caller          string    `json:"caller,omitempty"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	AccessMethod    string    `json:"access_method"`
	CacheHit        bool      `json:"cache_hit"`
	LatencyMs       int64     `json:"latency_ms"`
	CostEstimateUSD float64   `json:"cost_estimate_usd"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// Recorder stores decisions with a retention window. Safe for concurrent use.
type Recorder struct {
	mu            sync.RWMutex
	db            *sql.DB
	dbPath        string
	retentionDays int
	enabled       bool
}

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	query_hash TEXT NOT NULL,
	tier TEXT NOT NULL,
	resolved_tier TEXT NOT NULL,
	source TEXT NOT NULL,
	caller TEXT,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	access_method TEXT,
	cache_hit INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL,
	cost_estimate_usd REAL,
	error_message TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
CREATE INDEX IF NOT EXISTS idx_decisions_tier ON decisions(tier);
CREATE INDEX IF NOT EXISTS idx_decisions_model ON decisions(model);
CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at);
`

// NewRecorder creates a Recorder writing to dbPath. Call Initialize before
// recording.
func NewRecorder(dbPath string, retentionDays int) (*Recorder, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("declog: database path cannot be empty")
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Recorder{dbPath: dbPath, retentionDays: retentionDays}, nil
}

// NewRecorderWithDB wraps an existing database handle. The schema is assumed
// present; used by tests and embedders that manage the connection.
func NewRecorderWithDB(db *sql.DB, retentionDays int) *Recorder {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Recorder{db: db, retentionDays: retentionDays, enabled: true}
}

// Initialize opens the database and creates the schema.
func (r *Recorder) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enabled {
		return nil
	}

	if dir := filepath.Dir(r.dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("declog: failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", r.dbPath)
	if err != nil {
		return fmt.Errorf("declog: failed to open database: %w", err)
	}
	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("declog: failed to create schema: %w", err)
	}

	r.db = db
	r.enabled = true
	log.Infof("Decision log initialized (db: %s, retention: %d days)", r.dbPath, r.retentionDays)

	go r.cleanupOldDecisions(context.Background())
	return nil
}

// IsEnabled reports whether the recorder is ready to accept decisions.
func (r *Recorder) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// HashQuery returns the stable hash under which a query is logged.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:8])
}

// Record inserts one decision. A zero Timestamp is filled with the current
// time.
func (r *Recorder) Record(ctx context.Context, d *Decision) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.enabled {
		return fmt.Errorf("declog: recorder not initialized")
	}
	if d == nil {
		return fmt.Errorf("declog: decision cannot be nil")
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}

	const insert = `
	INSERT INTO decisions (
		timestamp, query_hash, tier, resolved_tier, source, caller,
		provider, model, access_method, cache_hit, latency_ms,
		cost_estimate_usd, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, insert,
		d.Timestamp,
		d.QueryHash,
		d.Tier,
		d.ResolvedTier,
		d.Source,
		d.Caller,
		d.Provider,
		d.Model,
		d.AccessMethod,
		boolToInt(d.CacheHit),
		d.LatencyMs,
		d.CostEstimateUSD,
		d.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("declog: failed to insert decision: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		d.ID = id
	}
	return nil
}

// GetRecent returns the newest decisions, most recent first.
func (r *Recorder) GetRecent(ctx context.Context, limit int) ([]*Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.enabled {
		return nil, fmt.Errorf("declog: recorder not initialized")
	}
	if limit <= 0 {
		limit = 100
	}

	const query = `
	SELECT id, timestamp, query_hash, tier, resolved_tier, source, caller,
	       provider, model, access_method, cache_hit, latency_ms,
	       cost_estimate_usd, error_message
	FROM decisions
	ORDER BY timestamp DESC
	LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("declog: failed to query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*Decision
	for rows.Next() {
		var d Decision
		var cacheHit int
		var caller, accessMethod, errMsg sql.NullString
		var cost sql.NullFloat64
		if err := rows.Scan(&d.ID, &d.Timestamp, &d.QueryHash, &d.Tier, &d.ResolvedTier,
			&d.Source, &caller, &d.Provider, &d.Model, &accessMethod,
			&cacheHit, &d.LatencyMs, &cost, &errMsg); err != nil {
			log.Warnf("Failed to scan decision record: %v", err)
			continue
		}
		d.Caller = caller.String
		d.AccessMethod = accessMethod.String
		d.ErrorMessage = errMsg.String
		d.CostEstimateUSD = cost.Float64
		d.CacheHit = cacheHit != 0
		decisions = append(decisions, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("declog: error iterating decisions: %w", err)
	}
	return decisions, nil
}

// Stats is an aggregate view over the stored decisions.
type Stats struct {
	TotalDecisions   int64            `json:"total_decisions"`
	CacheHitRate     float64          `json:"cache_hit_rate"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	TotalCostUSD     float64          `json:"total_cost_usd"`
	TierDistribution map[string]int64 `json:"tier_distribution"`
}

// GetStats aggregates counters over every stored decision.
func (r *Recorder) GetStats(ctx context.Context) (*Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.enabled {
		return nil, fmt.Errorf("declog: recorder not initialized")
	}

	stats := &Stats{TierDistribution: make(map[string]int64)}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decisions").Scan(&stats.TotalDecisions); err != nil {
		return nil, fmt.Errorf("declog: failed to count decisions: %w", err)
	}

	var hits int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decisions WHERE cache_hit = 1").Scan(&hits); err != nil {
		return nil, fmt.Errorf("declog: failed to count cache hits: %w", err)
	}
	if stats.TotalDecisions > 0 {
		stats.CacheHitRate = float64(hits) / float64(stats.TotalDecisions)
	}

	var avgLatency sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, "SELECT AVG(latency_ms) FROM decisions").Scan(&avgLatency); err != nil {
		return nil, fmt.Errorf("declog: failed to get average latency: %w", err)
	}
	stats.AvgLatencyMs = avgLatency.Float64

	var totalCost sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, "SELECT SUM(cost_estimate_usd) FROM decisions").Scan(&totalCost); err != nil {
		return nil, fmt.Errorf("declog: failed to sum cost: %w", err)
	}
	stats.TotalCostUSD = totalCost.Float64

	rows, err := r.db.QueryContext(ctx, "SELECT tier, COUNT(*) FROM decisions GROUP BY tier")
	if err != nil {
		return nil, fmt.Errorf("declog: failed to get tier distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var count int64
		if err := rows.Scan(&tier, &count); err != nil {
			continue
		}
		stats.TierDistribution[tier] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("declog: error iterating tier distribution: %w", err)
	}
	return stats, nil
}

// cleanupOldDecisions removes records older than the retention period.
// Called without holding the lock.
func (r *Recorder) cleanupOldDecisions(ctx context.Context) {
	if !r.IsEnabled() {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -r.retentionDays)
	result, err := r.db.ExecContext(ctx, "DELETE FROM decisions WHERE created_at < ?", cutoff)
	if err != nil {
		log.Warnf("Failed to clean up old routing decisions: %v", err)
		return
	}
	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		log.Infof("Cleaned up %d routing decisions older than %d days", affected, r.retentionDays)
	}
}

// Shutdown flushes retention cleanup and closes the database.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r.IsEnabled() {
		r.cleanupOldDecisions(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return nil
	}
	r.enabled = false
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			return fmt.Errorf("declog: failed to close database: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
