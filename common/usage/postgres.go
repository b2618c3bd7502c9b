// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Postgres driver registration for callers opening the pool here.
	_ "github.com/lib/pq"
)

// PostgresRecorder persists attempt records to a usage_attempts table.
// It only writes; read-side aggregation for reporting is served by
// Summary, which queries the same table.
//
// Expected schema:
//
//	CREATE TABLE usage_attempts (
//	    id            TEXT PRIMARY KEY,
//	    request_id    TEXT NOT NULL,
//	    session_id    TEXT,
//	    provider      TEXT NOT NULL,
//	    model         TEXT NOT NULL,
//	    started_at    TIMESTAMPTZ NOT NULL,
//	    finished_at   TIMESTAMPTZ NOT NULL,
//	    outcome       TEXT NOT NULL,
//	    input_tokens  INTEGER NOT NULL,
//	    output_tokens INTEGER NOT NULL,
//	    cost_usd      DOUBLE PRECISION NOT NULL
//	);
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder creates a recorder on an existing database pool.
func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record implements Recorder with a single insert per attempt.
func (r *PostgresRecorder) Record(ctx context.Context, a Attempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_attempts (
			id, request_id, session_id, provider, model,
			started_at, finished_at, outcome,
			input_tokens, output_tokens, cost_usd
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.RequestID, nullString(a.SessionID), a.Provider, a.Model,
		a.StartedAt, a.FinishedAt, a.Outcome,
		a.InputTokens, a.OutputTokens, a.CostUSD)

	if err != nil {
		return fmt.Errorf("record attempt %s: %w", a.ID, err)
	}
	return nil
}

// Summary aggregates persisted attempts matching the filter.
func (r *PostgresRecorder) Summary(ctx context.Context, filter Filter) (Summary, error) {
	query := `
		SELECT provider, model, outcome, input_tokens, output_tokens, cost_usd
		FROM usage_attempts
		WHERE ($1 = '' OR session_id = $1)
		  AND ($2 = '' OR request_id = $2)
		  AND ($3 = '' OR provider = $3)
		  AND ($4 = '' OR model = $4)
		  AND ($5::timestamptz IS NULL OR started_at >= $5)
		  AND ($6::timestamptz IS NULL OR started_at < $6)
	`
	rows, err := r.db.QueryContext(ctx, query,
		filter.SessionID, filter.RequestID, filter.Provider, filter.Model,
		nullTime(filter.Since), nullTime(filter.Until))
	if err != nil {
		return Summary{}, fmt.Errorf("query usage summary: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.Provider, &a.Model, &a.Outcome,
			&a.InputTokens, &a.OutputTokens, &a.CostUSD); err != nil {
			return Summary{}, fmt.Errorf("scan usage row: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate usage rows: %w", err)
	}
	return Summarize(attempts), nil
}

// nullString converts an empty string to NULL for insertion.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullTime converts a zero time to NULL for query parameters.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
