package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/devtrawl/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
)

// DatabaseFile is the database file name inside the data directory.
const DatabaseFile = "devtrawl.db"

var (
	_ driven.Sink          = (*Store)(nil)
	_ driven.ProgressStore = (*Store)(nil)
)

// Store is a SQLite-backed contact sink and progress store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store in the specified data directory.
// If dataDir is empty, defaults to ~/.devtrawl/data/devtrawl.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".devtrawl", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_contacts.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Sink ====================

// SaveBatch inserts records in one transaction. A record whose
// (run, entity, partition) key already exists is reported as a duplicate;
// other rows are still inserted.
func (s *Store) SaveBatch(ctx context.Context, records []domain.ContactRecord) (domain.SaveResult, error) {
	var res domain.SaveResult
	if len(records) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("%w: beginning transaction: %w", domain.ErrPersistence, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contacts (
			run_id, entity_id, region, partition_id, profile_url,
			identifiers, origins, failures, discovered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, entity_id, partition_id) DO NOTHING
	`)
	if err != nil {
		return res, fmt.Errorf("%w: preparing insert: %w", domain.ErrPersistence, err)
	}
	defer stmt.Close()

	for _, r := range records {
		reason, err := insertRecord(ctx, stmt, r)
		if err != nil {
			return domain.SaveResult{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		if reason != "" {
			res.Failed = append(res.Failed, domain.RecordFailure{
				EntityID:  r.EntityID,
				Partition: r.Partition,
				Reason:    reason,
			})
			continue
		}
		res.Saved++
	}

	if err := tx.Commit(); err != nil {
		return domain.SaveResult{}, fmt.Errorf("%w: committing batch: %w", domain.ErrPersistence, err)
	}
	return res, nil
}

// insertRecord inserts one row. It returns a non-empty reason when the row
// was rejected, and an error only when the connection itself failed.
func insertRecord(ctx context.Context, stmt *sql.Stmt, r domain.ContactRecord) (string, error) {
	identifiers, err := json.Marshal(r.Identifiers)
	if err != nil {
		return "encoding identifiers: " + err.Error(), nil
	}
	origins, err := json.Marshal(r.Origins)
	if err != nil {
		return "encoding origins: " + err.Error(), nil
	}

	result, err := stmt.ExecContext(ctx,
		r.RunID, r.EntityID, r.Region, r.Partition, r.ProfileURL,
		string(identifiers), string(origins), r.Failures, r.DiscoveredAt.UTC(),
	)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
			return "", err
		}
		return err.Error(), nil
	}

	n, err := result.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "duplicate", nil
	}
	return "", nil
}

// Records returns the stored records of a run in insertion order.
// An empty runID returns every record.
func (s *Store) Records(ctx context.Context, runID string) ([]domain.ContactRecord, error) {
	query := `
		SELECT run_id, entity_id, region, partition_id, profile_url,
			identifiers, origins, failures, discovered_at
		FROM contacts`
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	defer rows.Close()

	var records []domain.ContactRecord
	for rows.Next() {
		var (
			r                    domain.ContactRecord
			identifiers, origins string
			discoveredAt         time.Time
		)
		if err := rows.Scan(
			&r.RunID, &r.EntityID, &r.Region, &r.Partition, &r.ProfileURL,
			&identifiers, &origins, &r.Failures, &discoveredAt,
		); err != nil {
			return nil, fmt.Errorf("scanning contact: %w", err)
		}
		if err := json.Unmarshal([]byte(identifiers), &r.Identifiers); err != nil {
			return nil, fmt.Errorf("decoding identifiers: %w", err)
		}
		if err := json.Unmarshal([]byte(origins), &r.Origins); err != nil {
			return nil, fmt.Errorf("decoding origins: %w", err)
		}
		r.DiscoveredAt = discoveredAt
		records = append(records, r)
	}
	return records, rows.Err()
}

// ==================== Progress Store ====================

// Load returns the checkpoint of a plan.
func (s *Store) Load(ctx context.Context, planID string) (domain.Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT run_id, position FROM progress WHERE plan_id = ?", planID)

	var cp domain.Checkpoint
	if err := row.Scan(&cp.RunID, &cp.Position); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Checkpoint{}, false, nil
		}
		return domain.Checkpoint{}, false, fmt.Errorf("loading progress: %w", err)
	}
	return cp, true, nil
}

// Save stores or updates the checkpoint of a plan.
func (s *Store) Save(ctx context.Context, planID string, cp domain.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress (plan_id, run_id, position, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			run_id = excluded.run_id,
			position = excluded.position,
			updated_at = excluded.updated_at
	`, planID, cp.RunID, cp.Position, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	return nil
}
