// Package store provides SQLite-backed persistence for usage records
// and session statistics, so reports survive daemon restarts.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cachewarm/internal/stats"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Store wraps the usage database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the usage database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening usage db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertRecord appends one observed exchange.
func (s *Store) InsertRecord(requestID string, r stats.Record) error {
	isHit := 0
	if r.IsHit() {
		isHit = 1
	}
	_, err := s.db.Exec(`INSERT INTO usage_records
		(request_id, provider, model, cache_read_tokens, cache_write_tokens,
		 input_tokens, output_tokens, is_hit, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		requestID, r.Provider, r.Model, r.CacheReadTokens, r.CacheWriteTokens,
		r.InputTokens, r.OutputTokens, isHit, r.ObservedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// RecentRecords returns up to limit records, newest first.
func (s *Store) RecentRecords(limit int) ([]stats.Record, error) {
	rows, err := s.db.Query(`SELECT
		provider, model, cache_read_tokens, cache_write_tokens,
		input_tokens, output_tokens, observed_at
		FROM usage_records ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []stats.Record
	for rows.Next() {
		var r stats.Record
		var observedStr string
		err := rows.Scan(&r.Provider, &r.Model, &r.CacheReadTokens, &r.CacheWriteTokens,
			&r.InputTokens, &r.OutputTokens, &observedStr)
		if err != nil {
			return nil, err
		}
		r.ObservedAt, _ = time.Parse(time.RFC3339, observedStr)
		records = append(records, r)
	}
	return records, rows.Err()
}

// ModelUsage aggregates per-model totals across all stored records.
type ModelUsage struct {
	Model            string
	Requests         int
	Hits             int
	CacheReadTokens  int64
	CacheWriteTokens int64
	InputTokens      int64
	OutputTokens     int64
}

// ModelBreakdown returns per-model totals sorted by cache read volume.
func (s *Store) ModelBreakdown() ([]ModelUsage, error) {
	rows, err := s.db.Query(`SELECT
		model, COUNT(*), SUM(is_hit), SUM(cache_read_tokens), SUM(cache_write_tokens),
		SUM(input_tokens), SUM(output_tokens)
		FROM usage_records GROUP BY model`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var breakdown []ModelUsage
	for rows.Next() {
		var mu ModelUsage
		err := rows.Scan(&mu.Model, &mu.Requests, &mu.Hits, &mu.CacheReadTokens,
			&mu.CacheWriteTokens, &mu.InputTokens, &mu.OutputTokens)
		if err != nil {
			return nil, err
		}
		breakdown = append(breakdown, mu)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].CacheReadTokens > breakdown[j].CacheReadTokens
	})
	return breakdown, nil
}

// SaveSnapshot persists the current session statistics, replacing any
// previous snapshot.
func (s *Store) SaveSnapshot(snap stats.Snapshot) error {
	lastHit := ""
	if !snap.LastHitAt.IsZero() {
		lastHit = snap.LastHitAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO snapshots
		(id, total_requests, hits, misses, cache_read_tokens, cache_write_tokens,
		 input_tokens, output_tokens, estimated_savings, consecutive_misses,
		 last_hit_at, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.TotalRequests, snap.Hits, snap.Misses,
		snap.CacheReadTokens, snap.CacheWriteTokens, snap.InputTokens, snap.OutputTokens,
		snap.EstimatedSavingsUSD, snap.ConsecutiveMisses,
		lastHit, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// LoadSnapshot returns the persisted session statistics. The second
// result is false when no snapshot was ever saved.
func (s *Store) LoadSnapshot() (stats.Snapshot, bool, error) {
	var snap stats.Snapshot
	var lastHit sql.NullString
	err := s.db.QueryRow(`SELECT
		total_requests, hits, misses, cache_read_tokens, cache_write_tokens,
		input_tokens, output_tokens, estimated_savings, consecutive_misses, last_hit_at
		FROM snapshots WHERE id = 1`).Scan(
		&snap.TotalRequests, &snap.Hits, &snap.Misses,
		&snap.CacheReadTokens, &snap.CacheWriteTokens, &snap.InputTokens, &snap.OutputTokens,
		&snap.EstimatedSavingsUSD, &snap.ConsecutiveMisses, &lastHit,
	)
	if err == sql.ErrNoRows {
		return stats.Snapshot{}, false, nil
	}
	if err != nil {
		return stats.Snapshot{}, false, err
	}
	if lastHit.Valid && lastHit.String != "" {
		snap.LastHitAt, _ = time.Parse(time.RFC3339, lastHit.String)
	}
	return snap, true, nil
}

// RecordCount returns the number of stored usage records.
func (s *Store) RecordCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM usage_records").Scan(&count)
	return count, err
}

// ResetAll clears all stored records and the snapshot.
func (s *Store) ResetAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM usage_records"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM snapshots"); err != nil {
		return err
	}
	return tx.Commit()
}
