// Package postgres provides a PostgreSQL contact sink and progress store
// built on pgx.
//
// Records are inserted one statement at a time outside a transaction so
// that a rejected row leaves the rest of the batch in place.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
)

//go:embed schema.sql
var schema string

var (
	_ driven.Sink          = (*Store)(nil)
	_ driven.ProgressStore = (*Store)(nil)
)

// Store is a PostgreSQL-backed contact sink and progress store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn and applies the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s, err := NewStoreFromPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreFromPool wraps an existing pool and applies the schema. Close
// closes the pool.
func NewStoreFromPool(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// SaveBatch inserts every record it can. Duplicates and constraint
// violations are reported per record; a lost connection fails the batch.
func (s *Store) SaveBatch(ctx context.Context, records []domain.ContactRecord) (domain.SaveResult, error) {
	var res domain.SaveResult

	for _, r := range records {
		origins, err := json.Marshal(r.Origins)
		if err != nil {
			res.Failed = append(res.Failed, failure(r, "encoding origins: "+err.Error()))
			continue
		}

		tag, err := s.pool.Exec(ctx, `
			INSERT INTO contacts (
				run_id, entity_id, region, partition_id, profile_url,
				identifiers, origins, failures, discovered_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id, entity_id, partition_id) DO NOTHING`,
			r.RunID, r.EntityID, r.Region, r.Partition, r.ProfileURL,
			r.Identifiers, origins, r.Failures, r.DiscoveredAt.UTC(),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				res.Failed = append(res.Failed, failure(r, pgErr.Code+": "+pgErr.Message))
				continue
			}
			return res, fmt.Errorf("%w: inserting %s: %w", domain.ErrPersistence, r.EntityID, err)
		}
		if tag.RowsAffected() == 0 {
			res.Failed = append(res.Failed, failure(r, "duplicate"))
			continue
		}
		res.Saved++
	}
	return res, nil
}

func failure(r domain.ContactRecord, reason string) domain.RecordFailure {
	return domain.RecordFailure{EntityID: r.EntityID, Partition: r.Partition, Reason: reason}
}

// Records returns the stored records of a run in insertion order.
// An empty runID returns every record.
func (s *Store) Records(ctx context.Context, runID string) ([]domain.ContactRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, entity_id, region, partition_id, profile_url,
			identifiers, origins, failures, discovered_at
		FROM contacts
		WHERE $1::text = '' OR run_id = $1::text
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ContactRecord, error) {
		var (
			r       domain.ContactRecord
			origins []byte
		)
		if err := row.Scan(
			&r.RunID, &r.EntityID, &r.Region, &r.Partition, &r.ProfileURL,
			&r.Identifiers, &origins, &r.Failures, &r.DiscoveredAt,
		); err != nil {
			return r, err
		}
		if err := json.Unmarshal(origins, &r.Origins); err != nil {
			return r, fmt.Errorf("decoding origins: %w", err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning contacts: %w", err)
	}
	return records, nil
}

// Load returns the checkpoint of a plan.
func (s *Store) Load(ctx context.Context, planID string) (domain.Checkpoint, bool, error) {
	var cp domain.Checkpoint
	err := s.pool.QueryRow(ctx, "SELECT run_id, position FROM progress WHERE plan_id = $1", planID).
		Scan(&cp.RunID, &cp.Position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Checkpoint{}, false, nil
		}
		return domain.Checkpoint{}, false, fmt.Errorf("loading progress: %w", err)
	}
	return cp, true, nil
}

// Save stores or updates the checkpoint of a plan.
func (s *Store) Save(ctx context.Context, planID string, cp domain.Checkpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO progress (plan_id, run_id, position, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (plan_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			position = EXCLUDED.position,
			updated_at = EXCLUDED.updated_at`,
		planID, cp.RunID, cp.Position, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	return nil
}
