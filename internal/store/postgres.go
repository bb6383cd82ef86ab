// Package store persists discovered cycles to PostgreSQL via pgx, so the
// orchestrator can merge newly-enumerated cycles with what a previous
// process run already found (spec §3 "Lifecycle").
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/barter-engine/pkg/models"
)

// PostgresStore is a pgx-backed orchestrator.CycleStore implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for the barter discovery engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the schema.sql file.
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/store/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}

	_, err = s.pool.Exec(context.Background(), string(schemaBytes))
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Cycle persistence schema initialized")
	return nil
}

// SaveCycles upserts one batch of discovered cycles, keyed by their
// canonical id, inside a single transaction.
func (s *PostgresStore) SaveCycles(ctx context.Context, cycles []models.Cycle) error {
	if len(cycles) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsertSQL = `
		INSERT INTO cycles (canonical_id, participants, items, steps, efficiency, quality_score, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (canonical_id) DO UPDATE
		SET quality_score = EXCLUDED.quality_score,
		    status = EXCLUDED.status,
		    steps = EXCLUDED.steps;
	`
	for _, c := range cycles {
		participants, err := json.Marshal(c.Participants)
		if err != nil {
			return fmt.Errorf("marshal participants for %s: %w", c.CanonicalID, err)
		}
		items, err := json.Marshal(c.Items)
		if err != nil {
			return fmt.Errorf("marshal items for %s: %w", c.CanonicalID, err)
		}
		steps, err := json.Marshal(c.Steps)
		if err != nil {
			return fmt.Errorf("marshal steps for %s: %w", c.CanonicalID, err)
		}
		if _, err := tx.Exec(ctx, upsertSQL,
			c.CanonicalID, participants, items, steps, c.Efficiency, c.QualityScore, c.Status, c.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert cycle %s: %v", c.CanonicalID, err)
		}
	}

	return tx.Commit(ctx)
}

// Cycles returns every persisted cycle whose status is anything other
// than "expired" — "expired" rows are excluded so stale cycles drop out of
// future merges without needing an explicit delete.
func (s *PostgresStore) Cycles(ctx context.Context) ([]models.Cycle, error) {
	const querySQL = `
		SELECT canonical_id, participants, items, steps, efficiency, quality_score, status, created_at
		FROM cycles
		WHERE status != 'expired'
		ORDER BY created_at DESC;
	`
	rows, err := s.pool.Query(ctx, querySQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Cycle
	for rows.Next() {
		var (
			c                               models.Cycle
			participants, items, steps      []byte
		)
		if err := rows.Scan(&c.CanonicalID, &participants, &items, &steps, &c.Efficiency, &c.QualityScore, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(participants, &c.Participants); err != nil {
			return nil, fmt.Errorf("unmarshal participants for %s: %w", c.CanonicalID, err)
		}
		if err := json.Unmarshal(items, &c.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items for %s: %w", c.CanonicalID, err)
		}
		if err := json.Unmarshal(steps, &c.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps for %s: %w", c.CanonicalID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ExpireCycle marks a cycle's status as expired, e.g. when a mutation
// invalidates one of its steps without a fresh discovery pass replacing it.
func (s *PostgresStore) ExpireCycle(ctx context.Context, canonicalID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE cycles SET status = 'expired' WHERE canonical_id = $1`, canonicalID)
	return err
}

// GetPool exposes the connection pool for callers that need direct access
// (migrations, health checks).
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}
