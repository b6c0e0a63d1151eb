package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/prarena/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors when a run archives while
	// the API reads history.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Runs ---

// ArchiveRun inserts the run and its ranked results in one transaction.
func (s *SQLiteStore) ArchiveRun(ctx context.Context, run *models.Run, results []models.CombinationResult) error {
	if run.ID == "" {
		run.ID = newULID()
	}
	run.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, stage, status, fail_reason, started_at, finished_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Stage, run.Status, run.FailReason, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("archive run: %w", err)
	}

	for _, r := range results {
		details, err := json.Marshal(r.Details)
		if err != nil {
			return fmt.Errorf("marshal details for %s+%s: %w", r.Model, r.PromptID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_results (id, run_id, model, prompt_id, prompt_content, critical_detection_rate, hallucination_rate, helpfulness_rate, composite, passed, verdict, rank, details)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			newULID(), run.ID, r.Model, r.PromptID, r.PromptContent,
			r.CriticalDetectionRate, r.HallucinationRate, r.HelpfulnessRate,
			r.Composite, boolToInt(r.Passed), r.Verdict, r.Rank, string(details),
		)
		if err != nil {
			return fmt.Errorf("archive result %s+%s: %w", r.Model, r.PromptID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

// ListRuns returns archived runs newest first, optionally filtered by stage.
func (s *SQLiteStore) ListRuns(ctx context.Context, stage models.RunStage, limit int) ([]*models.Run, error) {
	query := `SELECT id, stage, status, fail_reason, started_at, finished_at, created_at FROM runs`
	args := []any{}
	if stage != "" {
		query += " WHERE stage = ?"
		args = append(args, stage)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		r := &models.Run{}
		if err := rows.Scan(&r.ID, &r.Stage, &r.Status, &r.FailReason, &r.StartedAt, &r.FinishedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one archived run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	r := &models.Run{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, stage, status, fail_reason, started_at, finished_at, created_at FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Stage, &r.Status, &r.FailReason, &r.StartedAt, &r.FinishedAt, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// GetRunResults returns the archived results of a run in rank order.
func (s *SQLiteStore) GetRunResults(ctx context.Context, runID string) ([]models.CombinationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, prompt_id, prompt_content, critical_detection_rate, hallucination_rate, helpfulness_rate, composite, passed, verdict, rank, details
		FROM run_results WHERE run_id = ? ORDER BY rank`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get run results: %w", err)
	}
	defer rows.Close()

	var results []models.CombinationResult
	for rows.Next() {
		var r models.CombinationResult
		var passed int
		var details string
		if err := rows.Scan(&r.Model, &r.PromptID, &r.PromptContent,
			&r.CriticalDetectionRate, &r.HallucinationRate, &r.HelpfulnessRate,
			&r.Composite, &passed, &r.Verdict, &r.Rank, &details); err != nil {
			return nil, fmt.Errorf("scan run result: %w", err)
		}
		r.Passed = passed != 0
		if details != "" {
			if err := json.Unmarshal([]byte(details), &r.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
