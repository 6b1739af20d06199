// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package history keeps every telemetry snapshot in a local SQLite
// database, independent of whether it reached the broker.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"gbebox/internal/telemetry"
	"gbebox/pkg/logger"

	_ "modernc.org/sqlite"
)

const (
	// fixed width so rows sort by text
	sortableTime = "2006-01-02T15:04:05.000000000Z"

	defaultLimit = 24
	maxLimit     = 24 * 31
)

// Store is safe for concurrent use.
type Store struct {
	log *logger.Logger
	db  *sql.DB
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{log: logger.New("History"), db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id       TEXT PRIMARY KEY,
		board    TEXT NOT NULL,
		taken_at TEXT NOT NULL,
		trusted  INTEGER NOT NULL,
		body     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS snapshots_taken_at ON snapshots (taken_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores snap. Storing the same snapshot twice keeps one row.
func (s *Store) Record(ctx context.Context, snap telemetry.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, board, taken_at, trusted, body)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		snap.ID, snap.Board, snap.Time.UTC().Format(sortableTime), snap.Trusted, string(body),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", snap.ID, err)
	}
	return nil
}

// Recent returns up to limit snapshots, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]telemetry.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM snapshots ORDER BY taken_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	out := []telemetry.Snapshot{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var snap telemetry.Snapshot
		if err := json.Unmarshal([]byte(body), &snap); err != nil {
			s.log.Warn("skipping undecodable row: %v", err)
			continue
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep snapshots.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY taken_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return res.RowsAffected()
}

// ServeHTTP lists recent snapshots as JSON records. ?limit=N picks how
// many.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLimit)
	}

	snaps, err := s.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("recent: %v", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	type row struct {
		ID     string           `json:"id"`
		Record telemetry.Record `json:"record"`
	}
	out := make([]row, len(snaps))
	for i, snap := range snaps {
		out[i] = row{snap.ID, snap.Columns()}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.Error("encode: %v", err)
	}
}
