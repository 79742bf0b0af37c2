// Copyright 2025 The recapd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store persists completed runs and conversation turns in a
// relational database. SQLite serves single-instance deployments; postgres
// and mysql serve shared ones.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/pipeline"
	"github.com/recapd/recapd/pkg/qa"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const createResultsTableSQL = `
CREATE TABLE IF NOT EXISTS summary_results (
    run_id VARCHAR(64) NOT NULL,
    content_id VARCHAR(255) NOT NULL,
    mode VARCHAR(32) NOT NULL,
    features VARCHAR(255),
    timed_out BOOLEAN NOT NULL,
    state_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (run_id)
);

CREATE INDEX IF NOT EXISTS idx_results_content_id ON summary_results(content_id);
CREATE INDEX IF NOT EXISTS idx_results_created_at ON summary_results(created_at);
`

const createTurnsTableSQL = `
CREATE TABLE IF NOT EXISTS conversation_turns (
    id VARCHAR(64) NOT NULL,
    content_id VARCHAR(255) NOT NULL,
    client_id VARCHAR(255) NOT NULL,
    role VARCHAR(16) NOT NULL,
    text TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id)
);

CREATE INDEX IF NOT EXISTS idx_turns_content_client ON conversation_turns(content_id, client_id);
CREATE INDEX IF NOT EXISTS idx_turns_created_at ON conversation_turns(created_at);
`

// SQLStore is the database-backed persistence layer.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// New opens a connection per the configuration, verifies it, and ensures
// the schema exists.
func New(cfg *config.DatabaseConfig) (*SQLStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	driverName := cfg.Driver
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}

	db, err := sql.Open(driverName, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	return NewWithDB(db, cfg.Driver)
}

// NewWithDB wraps an existing connection, for tests and pooled setups.
func NewWithDB(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres, mysql)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

var _ pipeline.ResultStore = (*SQLStore)(nil)

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, ddl := range []string{createResultsTableSQL, createTurnsTableSQL} {
		if s.dialect == "mysql" {
			// MySQL rejects multi-statement DDL and IF NOT EXISTS on
			// indexes; run the statements one by one and tolerate
			// duplicate-index errors.
			for _, stmt := range strings.Split(ddl, ";") {
				stmt = strings.TrimSpace(strings.ReplaceAll(stmt, "IF NOT EXISTS idx_", "idx_"))
				if stmt == "" {
					continue
				}
				if _, err := s.db.ExecContext(ctx, stmt); err != nil && !strings.Contains(err.Error(), "Duplicate") {
					return err
				}
			}
			continue
		}
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// q rewrites "?" placeholders to "$n" for postgres.
func (s *SQLStore) q(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveResult persists one completed run. Saving the same run twice is a
// no-op rather than an error; retries happen.
func (s *SQLStore) SaveResult(ctx context.Context, state *pipeline.State) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	query := `
INSERT INTO summary_results (run_id, content_id, mode, features, timed_out, state_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if s.dialect == "postgres" {
		query += " ON CONFLICT (run_id) DO NOTHING"
	} else if s.dialect == "sqlite" {
		query = strings.Replace(query, "INSERT INTO", "INSERT OR IGNORE INTO", 1)
	} else {
		query = strings.Replace(query, "INSERT INTO", "INSERT IGNORE INTO", 1)
	}

	_, err = s.db.ExecContext(ctx, s.q(query),
		state.RunID,
		state.ContentID,
		string(state.Mode),
		strings.Join(state.Features.Flags(), ","),
		state.TimedOut,
		string(stateJSON),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save result %s: %w", state.RunID, err)
	}
	return nil
}

// GetResult loads a persisted run by its ID.
func (s *SQLStore) GetResult(ctx context.Context, runID string) (*pipeline.State, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT state_json FROM summary_results WHERE run_id = ?`), runID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result %s: %w", runID, err)
	}

	var state pipeline.State
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("failed to decode result %s: %w", runID, err)
	}
	return &state, nil
}

// ListResults returns the most recent persisted runs for a content item,
// newest first.
func (s *SQLStore) ListResults(ctx context.Context, contentID string, limit int) ([]*pipeline.State, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT state_json FROM summary_results WHERE content_id = ? ORDER BY created_at DESC LIMIT ?`),
		contentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results for %s: %w", contentID, err)
	}
	defer rows.Close()

	var states []*pipeline.State
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, err
		}
		var state pipeline.State
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			return nil, fmt.Errorf("failed to decode stored result: %w", err)
		}
		states = append(states, &state)
	}
	return states, rows.Err()
}

// SaveTurn appends one conversation turn for a client and content item.
func (s *SQLStore) SaveTurn(ctx context.Context, id, contentID, clientID string, role qa.Role, text string) error {
	if id == "" || contentID == "" || clientID == "" {
		return fmt.Errorf("turn id, content id, and client id are required")
	}

	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO conversation_turns (id, content_id, client_id, role, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		id, contentID, clientID, string(role), text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save conversation turn: %w", err)
	}
	return nil
}

// History returns the conversation for a client and content item, oldest
// first, capped at limit turns.
func (s *SQLStore) History(ctx context.Context, contentID, clientID string, limit int) ([]qa.Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT role, text FROM conversation_turns WHERE content_id = ? AND client_id = ? ORDER BY created_at DESC LIMIT ?`),
		contentID, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	defer rows.Close()

	var turns []qa.Turn
	for rows.Next() {
		var role, text string
		if err := rows.Scan(&role, &text); err != nil {
			return nil, err
		}
		turns = append(turns, qa.Turn{Role: qa.Role(role), Text: text})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// DeleteExpired drops results older than the cutoff.
func (s *SQLStore) DeleteExpired(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM summary_results WHERE created_at < ?`), before.UTC())
	return err
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
